package service

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/pg-defence-api/internal/authz"
	"github.com/noah-isme/pg-defence-api/internal/models"
	appErrors "github.com/noah-isme/pg-defence-api/pkg/errors"
)

const sniffLength = 512

type submissionRepository interface {
	CreateVersion(ctx context.Context, version *models.ProjectVersion) error
	FindVersion(ctx context.Context, id string) (*models.ProjectVersion, error)
	ListByStudent(ctx context.Context, studentID string) ([]models.ProjectVersion, error)
	Approve(ctx context.Context, id, approverID string, at time.Time) error
	CreateComment(ctx context.Context, comment *models.ProjectComment) error
	ListComments(ctx context.Context, versionID string) ([]models.ProjectComment, error)
}

type submissionStudents interface {
	FindByID(ctx context.Context, id string) (*models.StudentDetail, error)
	FindByUserID(ctx context.Context, userID string) (*models.StudentDetail, error)
}

type fileStore interface {
	SaveStream(filename string, r io.Reader) (string, error)
	Open(filename string) (*os.File, error)
	Delete(filename string) error
	URL(filename string) string
}

type downloadSigner interface {
	Generate(resourceID, relPath string) (string, time.Time, error)
	Parse(token string) (resourceID, relPath string, err error)
}

// SubmissionConfig bounds uploads and shapes download links.
type SubmissionConfig struct {
	MaxFileSize  int64
	AllowedMIMEs []string
	DownloadPath string
}

// UploadInput is a project draft received from a student.
type UploadInput struct {
	Title    string `validate:"required"`
	Filename string `validate:"required"`
	Size     int64
	Content  io.Reader `validate:"required"`
}

// CommentRequest carries feedback on a project version.
type CommentRequest struct {
	Body string `json:"body" validate:"required"`
}

// ProjectFile is an opened project file ready to stream.
type ProjectFile struct {
	Version *models.ProjectVersion
	File    *os.File
}

// SubmissionService stores project drafts and their review trail.
type SubmissionService struct {
	repo      submissionRepository
	students  submissionStudents
	lecturers lecturerLookup
	storage   fileStore
	signer    downloadSigner
	notifier  Notifier
	config    SubmissionConfig
	allowed   map[string]struct{}
	validator *validator.Validate
	logger    *zap.Logger
	now       func() time.Time
}

// NewSubmissionService constructs the submission service.
func NewSubmissionService(repo submissionRepository, students submissionStudents, lecturers lecturerLookup, storage fileStore, signer downloadSigner, notifier Notifier, config SubmissionConfig, validate *validator.Validate, logger *zap.Logger) *SubmissionService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	allowed := make(map[string]struct{}, len(config.AllowedMIMEs))
	for _, m := range config.AllowedMIMEs {
		allowed[strings.ToLower(strings.TrimSpace(m))] = struct{}{}
	}
	return &SubmissionService{
		repo:      repo,
		students:  students,
		lecturers: lecturers,
		storage:   storage,
		signer:    signer,
		notifier:  notifier,
		config:    config,
		allowed:   allowed,
		validator: validate,
		logger:    logger,
		now:       time.Now,
	}
}

// Upload stores a new version of the caller's project and notifies the assigned supervisors.
func (s *SubmissionService) Upload(ctx context.Context, callerID string, in UploadInput) (*models.ProjectVersion, error) {
	if err := s.validator.Struct(in); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid upload payload")
	}
	student, err := s.ownStudent(ctx, callerID)
	if err != nil {
		return nil, err
	}
	if s.config.MaxFileSize > 0 && in.Size > s.config.MaxFileSize {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("file exceeds the %d byte limit", s.config.MaxFileSize))
	}

	head := make([]byte, sniffLength)
	n, err := io.ReadFull(in.Content, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "failed to read upload")
	}
	head = head[:n]
	mimeType := detectMIME(head)
	if len(s.allowed) > 0 {
		if _, ok := s.allowed[mimeType]; !ok {
			return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("file type %s is not allowed", mimeType))
		}
	}

	ext := strings.ToLower(filepath.Ext(in.Filename))
	rel := path.Join("projects", student.ID, uuid.NewString()+ext)
	body := io.MultiReader(bytes.NewReader(head), in.Content)
	if s.config.MaxFileSize > 0 {
		body = io.LimitReader(body, s.config.MaxFileSize+1)
	}
	counter := &countingReader{r: body}
	rel, err = s.storage.SaveStream(rel, counter)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store file")
	}
	if s.config.MaxFileSize > 0 && counter.n > s.config.MaxFileSize {
		s.discard(rel)
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("file exceeds the %d byte limit", s.config.MaxFileSize))
	}

	version := &models.ProjectVersion{
		StudentID: student.ID,
		Title:     strings.TrimSpace(in.Title),
		FilePath:  rel,
		FileURL:   s.storage.URL(rel),
		MimeType:  mimeType,
		SizeBytes: counter.n,
	}
	if err := s.repo.CreateVersion(ctx, version); err != nil {
		s.discard(rel)
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record project version")
	}

	s.notifier.Notify(ctx, notifyAll(s.supervisorIdentities(ctx, &student.Student), models.Notification{
		Type:       models.NotificationProjectUploaded,
		Title:      "New project draft",
		Message:    fmt.Sprintf("%s uploaded version %d of %q.", student.FullName(), version.Version, version.Title),
		Resource:   "project_version",
		ResourceID: &version.ID,
	})...)
	s.logger.Info("project version uploaded",
		zap.String("student_id", student.ID),
		zap.Int("version", version.Version),
		zap.Int64("size_bytes", version.SizeBytes),
	)
	return version, nil
}

// ListMine returns the caller's project versions, newest first.
func (s *SubmissionService) ListMine(ctx context.Context, callerID string) ([]models.ProjectVersion, error) {
	student, err := s.ownStudent(ctx, callerID)
	if err != nil {
		return nil, err
	}
	return s.listVersions(ctx, student.ID)
}

// ListByStudent returns the versions of a student the principal may view.
func (s *SubmissionService) ListByStudent(ctx context.Context, principal *authz.Principal, studentID string) ([]models.ProjectVersion, error) {
	student, err := s.loadStudent(ctx, studentID)
	if err != nil {
		return nil, err
	}
	if !s.canView(ctx, principal, student) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "not allowed to view this student's projects")
	}
	return s.listVersions(ctx, student.ID)
}

// Comment leaves feedback on a version. Only the student's assigned lecturers and
// hod, pgcoord or provost may comment.
func (s *SubmissionService) Comment(ctx context.Context, principal *authz.Principal, versionID string, req CommentRequest) (*models.ProjectComment, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid comment payload")
	}
	version, student, err := s.loadVersion(ctx, versionID)
	if err != nil {
		return nil, err
	}
	if !principal.HasRole(models.RoleHOD, models.RolePGCoord, models.RoleProvost) && !s.isSupervisor(ctx, principal, student) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only assigned lecturers may comment on this project")
	}
	comment := &models.ProjectComment{VersionID: version.ID, AuthorID: principal.IdentityID, Body: strings.TrimSpace(req.Body)}
	if err := s.repo.CreateComment(ctx, comment); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store comment")
	}
	s.notifier.Notify(ctx, models.Notification{
		RecipientID: student.UserID,
		Type:        models.NotificationProjectComment,
		Title:       "New comment on your project",
		Message:     fmt.Sprintf("A reviewer commented on version %d of %q.", version.Version, version.Title),
		Resource:    "project_version",
		ResourceID:  &version.ID,
	})
	return comment, nil
}

// ListComments returns the comments on a version the principal may view.
func (s *SubmissionService) ListComments(ctx context.Context, principal *authz.Principal, versionID string) ([]models.ProjectComment, error) {
	version, student, err := s.loadVersion(ctx, versionID)
	if err != nil {
		return nil, err
	}
	if !s.canView(ctx, principal, student) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "not allowed to view this project")
	}
	comments, err := s.repo.ListComments(ctx, version.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list comments")
	}
	if comments == nil {
		comments = []models.ProjectComment{}
	}
	return comments, nil
}

// Approve marks a version approved. Only the student's major supervisor may approve.
func (s *SubmissionService) Approve(ctx context.Context, principal *authz.Principal, versionID string) (*models.ProjectVersion, error) {
	version, student, err := s.loadVersion(ctx, versionID)
	if err != nil {
		return nil, err
	}
	lecturer, err := s.lecturers.FindByUserID(ctx, principal.IdentityID)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load lecturer")
	}
	if lecturer == nil || student.MajorSupervisorID == nil || *student.MajorSupervisorID != lecturer.ID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only the major supervisor may approve this project")
	}
	if version.Status == models.ProjectStatusApproved {
		return nil, appErrors.Clone(appErrors.ErrConflict, "project version already approved")
	}
	at := s.now().UTC()
	if err := s.repo.Approve(ctx, version.ID, principal.IdentityID, at); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "project version not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to approve project version")
	}
	approver := principal.IdentityID
	version.Status = models.ProjectStatusApproved
	version.ApprovedBy = &approver
	version.ApprovedAt = &at
	s.notifier.Notify(ctx, models.Notification{
		RecipientID: student.UserID,
		Type:        models.NotificationProjectApproved,
		Title:       "Project approved",
		Message:     fmt.Sprintf("Version %d of %q was approved by your major supervisor.", version.Version, version.Title),
		Resource:    "project_version",
		ResourceID:  &version.ID,
	})
	return version, nil
}

// DownloadLink issues a short-lived signed link to the version's file.
func (s *SubmissionService) DownloadLink(ctx context.Context, principal *authz.Principal, versionID string) (*models.ProjectDownload, error) {
	version, student, err := s.loadVersion(ctx, versionID)
	if err != nil {
		return nil, err
	}
	if !s.canView(ctx, principal, student) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "not allowed to download this project")
	}
	token, expiresAt, err := s.signer.Generate(version.ID, version.FilePath)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to sign download link")
	}
	link := fmt.Sprintf("%s?token=%s", s.config.DownloadPath, url.QueryEscape(token))
	return &models.ProjectDownload{URL: link, ExpiresAt: expiresAt}, nil
}

// Download opens the file addressed by a signed token. The caller closes File.
func (s *SubmissionService) Download(ctx context.Context, token string) (*ProjectFile, error) {
	versionID, rel, err := s.signer.Parse(token)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrForbidden.Code, appErrors.ErrForbidden.Status, "invalid or expired download link")
	}
	version, err := s.repo.FindVersion(ctx, versionID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "project version not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load project version")
	}
	if version.FilePath != rel {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "invalid or expired download link")
	}
	file, err := s.storage.Open(rel)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "project file not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to open project file")
	}
	return &ProjectFile{Version: version, File: file}, nil
}

func (s *SubmissionService) listVersions(ctx context.Context, studentID string) ([]models.ProjectVersion, error) {
	versions, err := s.repo.ListByStudent(ctx, studentID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list project versions")
	}
	if versions == nil {
		versions = []models.ProjectVersion{}
	}
	return versions, nil
}

func (s *SubmissionService) ownStudent(ctx context.Context, callerID string) (*models.StudentDetail, error) {
	student, err := s.students.FindByUserID(ctx, callerID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student profile not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}
	return student, nil
}

func (s *SubmissionService) loadStudent(ctx context.Context, id string) (*models.StudentDetail, error) {
	student, err := s.students.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}
	return student, nil
}

func (s *SubmissionService) loadVersion(ctx context.Context, id string) (*models.ProjectVersion, *models.StudentDetail, error) {
	version, err := s.repo.FindVersion(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil, appErrors.Clone(appErrors.ErrNotFound, "project version not found")
		}
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load project version")
	}
	student, err := s.loadStudent(ctx, version.StudentID)
	if err != nil {
		return nil, nil, err
	}
	return version, student, nil
}

// canView allows the owning student, the student's assigned lecturers and the
// hod, pgcoord, provost and admin roles.
func (s *SubmissionService) canView(ctx context.Context, principal *authz.Principal, student *models.StudentDetail) bool {
	if principal == nil {
		return false
	}
	if student.UserID == principal.IdentityID {
		return true
	}
	if principal.HasRole(models.RoleHOD, models.RolePGCoord, models.RoleProvost, models.RoleAdmin) {
		return true
	}
	return s.isSupervisor(ctx, principal, student)
}

func (s *SubmissionService) isSupervisor(ctx context.Context, principal *authz.Principal, student *models.StudentDetail) bool {
	if principal == nil {
		return false
	}
	lecturer, err := s.lecturers.FindByUserID(ctx, principal.IdentityID)
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			s.logger.Warn("failed to resolve lecturer", zap.String("user_id", principal.IdentityID), zap.Error(err))
		}
		return false
	}
	return student.IsSupervisedBy(lecturer.ID)
}

func (s *SubmissionService) supervisorIdentities(ctx context.Context, student *models.Student) []string {
	ids := student.SupervisorIDs()
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		lecturer, err := s.lecturers.FindByID(ctx, id)
		if err != nil {
			s.logger.Warn("failed to resolve supervisor", zap.String("lecturer_id", id), zap.Error(err))
			continue
		}
		out = append(out, lecturer.UserID)
	}
	return out
}

func (s *SubmissionService) discard(rel string) {
	if err := s.storage.Delete(rel); err != nil {
		s.logger.Warn("failed to remove stored file", zap.String("path", rel), zap.Error(err))
	}
}

func detectMIME(head []byte) string {
	detected := http.DetectContentType(head)
	if base, _, err := mime.ParseMediaType(detected); err == nil {
		return strings.ToLower(base)
	}
	return strings.ToLower(detected)
}

type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}
