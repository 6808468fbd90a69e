package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"testing"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"

	appErrors "github.com/noah-isme/pg-defence-api/pkg/errors"
)

func TestTranslateWriteError(t *testing.T) {
	dup := fmt.Errorf("create faculty: %w", &pq.Error{Code: "23505"})
	assert.ErrorIs(t, translateWriteError(dup, "faculty"), appErrors.ErrConflict)
	assert.ErrorIs(t, translateWriteError(errors.New("boom"), "faculty"), appErrors.ErrInternal)
}

func TestTranslateDeleteError(t *testing.T) {
	assert.NoError(t, translateDeleteError(nil, "department"))
	assert.ErrorIs(t, translateDeleteError(sql.ErrNoRows, "department"), appErrors.ErrNotFound)
	referenced := fmt.Errorf("delete department: %w", &pq.Error{Code: "23503"})
	assert.ErrorIs(t, translateDeleteError(referenced, "department"), appErrors.ErrConflict)
}

func TestOrgServiceValidatesPayload(t *testing.T) {
	svc := NewOrgService(nil, nil, nil)
	_, err := svc.CreateFaculty(context.Background(), CreateFacultyRequest{})
	assert.ErrorIs(t, err, appErrors.ErrValidation)
	_, err = svc.CreateDepartment(context.Background(), CreateDepartmentRequest{Name: "Physics"})
	assert.ErrorIs(t, err, appErrors.ErrValidation)
}
