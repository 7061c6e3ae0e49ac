package models

// Class is a read-only projection of the roster service's classes table.
// Membership rows (class_students, class_teachers) are queried directly.
type Class struct {
	ID   string `db:"id" json:"id"`
	Name string `db:"name" json:"name"`
}
