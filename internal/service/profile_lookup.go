package service

import (
	"context"

	"github.com/noah-isme/pg-defence-api/internal/models"
)

type studentByUser interface {
	FindByUserID(ctx context.Context, userID string) (*models.StudentDetail, error)
}

type lecturerByUser interface {
	FindByUserID(ctx context.Context, userID string) (*models.LecturerDetail, error)
}

// ProfileLookup resolves the person record owned by an identity.
type ProfileLookup struct {
	students  studentByUser
	lecturers lecturerByUser
}

// NewProfileLookup constructs a ProfileLookup.
func NewProfileLookup(students studentByUser, lecturers lecturerByUser) *ProfileLookup {
	return &ProfileLookup{students: students, lecturers: lecturers}
}

// FindStudentByUserID returns the student owned by userID or sql.ErrNoRows.
func (p *ProfileLookup) FindStudentByUserID(ctx context.Context, userID string) (*models.StudentDetail, error) {
	return p.students.FindByUserID(ctx, userID)
}

// FindLecturerByUserID returns the lecturer owned by userID or sql.ErrNoRows.
func (p *ProfileLookup) FindLecturerByUserID(ctx context.Context, userID string) (*models.LecturerDetail, error) {
	return p.lecturers.FindByUserID(ctx, userID)
}
