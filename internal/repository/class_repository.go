package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/socratic-tutor-api/internal/models"
)

// ClassRepository reads roster data maintained by the platform's class
// management service. This API never writes these tables.
type ClassRepository struct {
	db *sqlx.DB
}

// NewClassRepository constructs the repository.
func NewClassRepository(db *sqlx.DB) *ClassRepository {
	return &ClassRepository{db: db}
}

// IsStudentInClass reports whether the student is enrolled in the class.
func (r *ClassRepository) IsStudentInClass(ctx context.Context, classID, studentID string) (bool, error) {
	const query = `SELECT EXISTS (SELECT 1 FROM class_students WHERE class_id = $1 AND student_id = $2)`
	var enrolled bool
	if err := r.db.GetContext(ctx, &enrolled, query, classID, studentID); err != nil {
		return false, fmt.Errorf("check class enrollment: %w", err)
	}
	return enrolled, nil
}

// IsTeacherOfClass reports whether the teacher is assigned to the class.
func (r *ClassRepository) IsTeacherOfClass(ctx context.Context, classID, teacherID string) (bool, error) {
	const query = `SELECT EXISTS (SELECT 1 FROM class_teachers WHERE class_id = $1 AND teacher_id = $2)`
	var assigned bool
	if err := r.db.GetContext(ctx, &assigned, query, classID, teacherID); err != nil {
		return false, fmt.Errorf("check class assignment: %w", err)
	}
	return assigned, nil
}

// FindClass fetches a class row for listing enrichment.
func (r *ClassRepository) FindClass(ctx context.Context, id string) (*models.Class, error) {
	const query = `SELECT id, name FROM classes WHERE id = $1`
	var class models.Class
	if err := r.db.GetContext(ctx, &class, query, id); err != nil {
		return nil, err
	}
	return &class, nil
}

// FindUserFullName resolves a display name for listing enrichment.
func (r *ClassRepository) FindUserFullName(ctx context.Context, userID string) (string, error) {
	const query = `SELECT full_name FROM users WHERE id = $1`
	var name string
	if err := r.db.GetContext(ctx, &name, query, userID); err != nil {
		return "", err
	}
	return name, nil
}
