package repository

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/socratic-tutor-api/internal/models"
)

func newRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	sqlxDB := sqlx.NewDb(db, "postgres")
	return sqlxDB, mock, func() {
		sqlxDB.Close()
		db.Close()
	}
}

func strPtr(v string) *string { return &v }

func TestPromptRepositoryFindActiveGlobal(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewPromptRepository(db)
	rows := sqlmock.NewRows([]string{"id", "scope_type", "class_id", "content", "version", "is_active", "created_by", "created_at"}).
		AddRow("g1", "GLOBAL", nil, "全局要求", 3, true, "admin-1", time.Now())
	mock.ExpectQuery("SELECT id, scope_type").
		WithArgs(models.ScopeGlobal, nil).
		WillReturnRows(rows)

	prompt, err := repo.FindActive(context.Background(), models.ScopeGlobal, nil)
	require.NoError(t, err)
	assert.Equal(t, 3, prompt.Version)
	assert.Nil(t, prompt.ClassID)
}

func TestPromptRepositoryCreateAssignsNextVersion(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewPromptRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT COALESCE").
		WithArgs(models.ScopeGlobal, nil).
		WillReturnRows(sqlmock.NewRows([]string{"coalesce"}).AddRow(4))
	mock.ExpectExec("INSERT INTO prompt_scopes").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	prompt := &models.PromptScope{ID: "p1", ScopeType: models.ScopeGlobal, Content: "新版本", CreatedBy: "admin-1"}
	require.NoError(t, repo.Create(context.Background(), prompt, false))
	assert.Equal(t, 5, prompt.Version)
}

func TestPromptRepositoryCreateWithAutoActivate(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewPromptRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT COALESCE").
		WithArgs(models.ScopeClass, "class-1").
		WillReturnRows(sqlmock.NewRows([]string{"coalesce"}).AddRow(0))
	mock.ExpectExec("UPDATE prompt_scopes SET is_active = FALSE").
		WithArgs(models.ScopeClass, "class-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO prompt_scopes").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	prompt := &models.PromptScope{ID: "p1", ScopeType: models.ScopeClass, ClassID: strPtr("class-1"), Content: "班级要求", IsActive: true, CreatedBy: "teacher-1"}
	require.NoError(t, repo.Create(context.Background(), prompt, true))
	assert.Equal(t, 1, prompt.Version)
}

func TestPromptRepositoryCreateRollsBackOnInsertFailure(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewPromptRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT COALESCE").
		WithArgs(models.ScopeGlobal, nil).
		WillReturnRows(sqlmock.NewRows([]string{"coalesce"}).AddRow(1))
	mock.ExpectExec("INSERT INTO prompt_scopes").
		WillReturnError(assert.AnError)
	mock.ExpectRollback()

	prompt := &models.PromptScope{ID: "p1", ScopeType: models.ScopeGlobal, Content: "x", CreatedBy: "admin-1"}
	require.Error(t, repo.Create(context.Background(), prompt, false))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPromptRepositoryActivate(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewPromptRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE prompt_scopes SET is_active = FALSE").
		WithArgs(models.ScopeGlobal, nil).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE prompt_scopes SET is_active = TRUE").
		WithArgs("g1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	prompt := &models.PromptScope{ID: "g1", ScopeType: models.ScopeGlobal, Version: 1}
	require.NoError(t, repo.Activate(context.Background(), prompt))
	require.NoError(t, mock.ExpectationsWereMet())
}
