package service

import (
	"context"
	"io"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/pg-defence-api/internal/authz"
	"github.com/noah-isme/pg-defence-api/internal/models"
	appErrors "github.com/noah-isme/pg-defence-api/pkg/errors"
	"github.com/noah-isme/pg-defence-api/pkg/storage"
)

const samplePDF = "%PDF-1.4\n1 0 obj\n<< /Type /Catalog >>\nendobj\n"

type submissionFixture struct {
	svc      *SubmissionService
	repo     *mockSubmissionRepo
	notifier *mockNotifier
}

func newSubmissionFixture(t *testing.T) *submissionFixture {
	t.Helper()
	store, err := storage.NewLocalStorage(t.TempDir(), "/uploads")
	require.NoError(t, err)
	students := newMockStudentRepo(models.StudentDetail{Student: models.Student{
		ID: "stu-1", UserID: "u-stu-1", MatricNo: "PG/001", FirstName: "Ada", LastName: "Obi",
		MajorSupervisorID: strPtr("lec-major"), MinorSupervisorID: strPtr("lec-minor"),
	}})
	lecturers := newMockLecturerRepo(
		models.LecturerDetail{Lecturer: models.Lecturer{ID: "lec-major", UserID: "u-major"}},
		models.LecturerDetail{Lecturer: models.Lecturer{ID: "lec-minor", UserID: "u-minor"}},
		models.LecturerDetail{Lecturer: models.Lecturer{ID: "lec-other", UserID: "u-other"}},
	)
	repo := newMockSubmissionRepo()
	notifier := &mockNotifier{}
	svc := NewSubmissionService(repo, students, lecturers, store, storage.NewSignedURLSigner("secret", time.Hour), notifier, SubmissionConfig{
		MaxFileSize:  1024,
		AllowedMIMEs: []string{"application/pdf"},
		DownloadPath: "/api/v1/submissions/download",
	}, nil, nil)
	return &submissionFixture{svc: svc, repo: repo, notifier: notifier}
}

func (f *submissionFixture) upload(t *testing.T) *models.ProjectVersion {
	t.Helper()
	version, err := f.svc.Upload(context.Background(), "u-stu-1", UploadInput{
		Title:    "Chapter one",
		Filename: "Draft.PDF",
		Size:     int64(len(samplePDF)),
		Content:  strings.NewReader(samplePDF),
	})
	require.NoError(t, err)
	return version
}

func principal(id string, roles ...models.Role) *authz.Principal {
	return &authz.Principal{IdentityID: id, Roles: roles}
}

func TestUploadStoresVersionAndNotifiesSupervisors(t *testing.T) {
	f := newSubmissionFixture(t)
	first := f.upload(t)
	second := f.upload(t)

	assert.Equal(t, 1, first.Version)
	assert.Equal(t, 2, second.Version)
	assert.Equal(t, "application/pdf", first.MimeType)
	assert.Equal(t, int64(len(samplePDF)), first.SizeBytes)
	assert.True(t, strings.HasPrefix(first.FilePath, "projects/stu-1/"))
	assert.True(t, strings.HasSuffix(first.FilePath, ".pdf"))
	assert.Equal(t, "/uploads/"+first.FilePath, first.FileURL)
	assert.Equal(t, []string{"u-major", "u-major", "u-minor", "u-minor"}, f.notifier.recipients(models.NotificationProjectUploaded))

	versions, err := f.svc.ListMine(context.Background(), "u-stu-1")
	require.NoError(t, err)
	require.Len(t, versions, 2)
	assert.Equal(t, 2, versions[0].Version)
}

func TestUploadRejectsTypeAndSize(t *testing.T) {
	f := newSubmissionFixture(t)
	_, err := f.svc.Upload(context.Background(), "u-stu-1", UploadInput{Title: "Notes", Filename: "notes.txt", Size: 5, Content: strings.NewReader("hello")})
	assert.ErrorIs(t, err, appErrors.ErrValidation)

	big := samplePDF + strings.Repeat("x", 2048)
	_, err = f.svc.Upload(context.Background(), "u-stu-1", UploadInput{Title: "Big", Filename: "big.pdf", Size: int64(len(big)), Content: strings.NewReader(big)})
	assert.ErrorIs(t, err, appErrors.ErrValidation)

	_, err = f.svc.Upload(context.Background(), "u-stu-1", UploadInput{Title: "Lying", Filename: "big.pdf", Size: 10, Content: strings.NewReader(big)})
	assert.ErrorIs(t, err, appErrors.ErrValidation)

	_, err = f.svc.Upload(context.Background(), "u-major", UploadInput{Title: "x", Filename: "x.pdf", Size: 10, Content: strings.NewReader(samplePDF)})
	assert.ErrorIs(t, err, appErrors.ErrNotFound)
	assert.Empty(t, f.repo.versions)
}

func TestCommentRestrictedToAssignedLecturers(t *testing.T) {
	f := newSubmissionFixture(t)
	version := f.upload(t)

	_, err := f.svc.Comment(context.Background(), principal("u-other", models.RoleLecturer), version.ID, CommentRequest{Body: "hi"})
	assert.ErrorIs(t, err, appErrors.ErrForbidden)

	_, err = f.svc.Comment(context.Background(), principal("u-stu-1", models.RoleStudent), version.ID, CommentRequest{Body: "hi"})
	assert.ErrorIs(t, err, appErrors.ErrForbidden)

	comment, err := f.svc.Comment(context.Background(), principal("u-minor", models.RoleLecturer), version.ID, CommentRequest{Body: " Tighten the abstract. "})
	require.NoError(t, err)
	assert.Equal(t, "Tighten the abstract.", comment.Body)

	_, err = f.svc.Comment(context.Background(), principal("u-pg", models.RolePGCoord), version.ID, CommentRequest{Body: "Noted"})
	require.NoError(t, err)

	comments, err := f.svc.ListComments(context.Background(), principal("u-stu-1", models.RoleStudent), version.ID)
	require.NoError(t, err)
	assert.Len(t, comments, 2)
	assert.Equal(t, []string{"u-stu-1", "u-stu-1"}, f.notifier.recipients(models.NotificationProjectComment))
}

func TestApproveRequiresMajorSupervisor(t *testing.T) {
	f := newSubmissionFixture(t)
	version := f.upload(t)

	_, err := f.svc.Approve(context.Background(), principal("u-minor", models.RoleMinorSupervisor), version.ID)
	assert.ErrorIs(t, err, appErrors.ErrForbidden)

	approved, err := f.svc.Approve(context.Background(), principal("u-major", models.RoleMajorSupervisor), version.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ProjectStatusApproved, approved.Status)
	assert.Equal(t, []string{"u-stu-1"}, f.notifier.recipients(models.NotificationProjectApproved))

	_, err = f.svc.Approve(context.Background(), principal("u-major", models.RoleMajorSupervisor), version.ID)
	assert.ErrorIs(t, err, appErrors.ErrConflict)
}

func TestDownloadLinkRoundTrip(t *testing.T) {
	f := newSubmissionFixture(t)
	version := f.upload(t)

	_, err := f.svc.DownloadLink(context.Background(), principal("u-other", models.RoleLecturer), version.ID)
	assert.ErrorIs(t, err, appErrors.ErrForbidden)

	link, err := f.svc.DownloadLink(context.Background(), principal("u-stu-1", models.RoleStudent), version.ID)
	require.NoError(t, err)
	parsed, err := url.Parse(link.URL)
	require.NoError(t, err)
	assert.Equal(t, "/api/v1/submissions/download", parsed.Path)

	file, err := f.svc.Download(context.Background(), parsed.Query().Get("token"))
	require.NoError(t, err)
	defer file.File.Close()
	body, err := io.ReadAll(file.File)
	require.NoError(t, err)
	assert.Equal(t, samplePDF, string(body))

	_, err = f.svc.Download(context.Background(), "garbage")
	assert.ErrorIs(t, err, appErrors.ErrForbidden)
}
