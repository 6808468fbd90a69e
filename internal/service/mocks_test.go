package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/noah-isme/pg-defence-api/internal/models"
	appErrors "github.com/noah-isme/pg-defence-api/pkg/errors"
	"github.com/noah-isme/pg-defence-api/pkg/mailer"
)

func strPtr(s string) *string { return &s }

func intPtr(v int) *int { return &v }

type mockNotifier struct {
	sent []models.Notification
}

func (m *mockNotifier) Notify(ctx context.Context, notifications ...models.Notification) {
	for _, n := range notifications {
		if n.RecipientID == "" {
			continue
		}
		m.sent = append(m.sent, n)
	}
}

func (m *mockNotifier) recipients(kind string) []string {
	var out []string
	for _, n := range m.sent {
		if n.Type == kind {
			out = append(out, n.RecipientID)
		}
	}
	sort.Strings(out)
	return out
}

type mockStudentRepo struct {
	students map[string]*models.StudentDetail
	created  []*models.User
	seq      int
}

func newMockStudentRepo(students ...models.StudentDetail) *mockStudentRepo {
	repo := &mockStudentRepo{students: map[string]*models.StudentDetail{}}
	for i := range students {
		st := students[i]
		repo.students[st.ID] = &st
	}
	return repo
}

func (m *mockStudentRepo) List(ctx context.Context, filter models.StudentFilter) ([]models.StudentDetail, int, error) {
	var out []models.StudentDetail
	for _, st := range m.sorted() {
		if filter.SupervisorID != "" && !st.IsSupervisedBy(filter.SupervisorID) {
			continue
		}
		if filter.Stage != "" && st.CurrentStage != filter.Stage {
			continue
		}
		out = append(out, *st)
	}
	return out, len(out), nil
}

func (m *mockStudentRepo) FindByID(ctx context.Context, id string) (*models.StudentDetail, error) {
	st, ok := m.students[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	cp := *st
	return &cp, nil
}

func (m *mockStudentRepo) FindByUserID(ctx context.Context, userID string) (*models.StudentDetail, error) {
	for _, st := range m.students {
		if st.UserID == userID {
			cp := *st
			return &cp, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (m *mockStudentRepo) FindByIDs(ctx context.Context, ids []string) ([]models.Student, error) {
	var out []models.Student
	for _, id := range ids {
		if st, ok := m.students[id]; ok {
			out = append(out, st.Student)
		}
	}
	return out, nil
}

func (m *mockStudentRepo) ListCohort(ctx context.Context, filter models.CohortFilter) ([]models.Student, error) {
	var out []models.Student
	for _, st := range m.sorted() {
		if st.CurrentStage != filter.Stage || st.Program != filter.Program || st.SessionID != filter.SessionID {
			continue
		}
		if filter.Department != "" && st.Department != filter.Department {
			continue
		}
		out = append(out, st.Student)
	}
	return out, nil
}

func (m *mockStudentRepo) ExistsByMatricNo(ctx context.Context, matricNo string, excludeID string) (bool, error) {
	for _, st := range m.students {
		if strings.EqualFold(st.MatricNo, matricNo) && st.ID != excludeID {
			return true, nil
		}
	}
	return false, nil
}

func (m *mockStudentRepo) CreateWithIdentity(ctx context.Context, user *models.User, student *models.Student) error {
	m.seq++
	user.ID = fmt.Sprintf("user-new-%d", m.seq)
	student.ID = fmt.Sprintf("stu-new-%d", m.seq)
	student.UserID = user.ID
	m.created = append(m.created, user)
	m.students[student.ID] = &models.StudentDetail{Student: *student, Email: user.Email}
	return nil
}

func (m *mockStudentRepo) Update(ctx context.Context, student *models.Student) error {
	st, ok := m.students[student.ID]
	if !ok {
		return sql.ErrNoRows
	}
	st.Student = *student
	return nil
}

func (m *mockStudentRepo) Delete(ctx context.Context, id string) error {
	if _, ok := m.students[id]; !ok {
		return sql.ErrNoRows
	}
	delete(m.students, id)
	return nil
}

func (m *mockStudentRepo) AssignSupervisor(ctx context.Context, studentID string, slot models.SupervisorType, lecturerID string) error {
	st, ok := m.students[studentID]
	if !ok {
		return sql.ErrNoRows
	}
	id := lecturerID
	switch slot {
	case models.SupervisorMajor:
		st.MajorSupervisorID = &id
	case models.SupervisorMinor:
		st.MinorSupervisorID = &id
	case models.SupervisorInternalExaminer:
		st.InternalExaminerID = &id
	case models.SupervisorCollegeRep:
		st.CollegeRepID = &id
	}
	return nil
}

func (m *mockStudentRepo) AdvanceStage(ctx context.Context, studentID string, from, to models.Stage, outcome models.StageOutcome) (bool, error) {
	st, ok := m.students[studentID]
	if !ok || st.CurrentStage != from {
		return false, nil
	}
	st.CurrentStage = to
	st.StageScores = withOutcome(st.StageScores, from, outcome)
	return true, nil
}

func (m *mockStudentRepo) RecordStageOutcome(ctx context.Context, studentID string, stage models.Stage, outcome models.StageOutcome) error {
	st, ok := m.students[studentID]
	if !ok {
		return sql.ErrNoRows
	}
	st.StageScores = withOutcome(st.StageScores, stage, outcome)
	return nil
}

func (m *mockStudentRepo) sorted() []*models.StudentDetail {
	out := make([]*models.StudentDetail, 0, len(m.students))
	for _, st := range m.students {
		out = append(out, st)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func withOutcome(scores models.StageScores, stage models.Stage, outcome models.StageOutcome) models.StageScores {
	if scores == nil {
		scores = models.StageScores{}
	}
	scores[stage] = outcome
	return scores
}

type mockLecturerRepo struct {
	lecturers map[string]*models.LecturerDetail
	seq       int
}

func newMockLecturerRepo(lecturers ...models.LecturerDetail) *mockLecturerRepo {
	repo := &mockLecturerRepo{lecturers: map[string]*models.LecturerDetail{}}
	for i := range lecturers {
		l := lecturers[i]
		repo.lecturers[l.ID] = &l
	}
	return repo
}

func (m *mockLecturerRepo) List(ctx context.Context, filter models.LecturerFilter) ([]models.LecturerDetail, int, error) {
	var out []models.LecturerDetail
	for _, l := range m.lecturers {
		out = append(out, *l)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, len(out), nil
}

func (m *mockLecturerRepo) FindByID(ctx context.Context, id string) (*models.LecturerDetail, error) {
	l, ok := m.lecturers[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	cp := *l
	return &cp, nil
}

func (m *mockLecturerRepo) FindByUserID(ctx context.Context, userID string) (*models.LecturerDetail, error) {
	for _, l := range m.lecturers {
		if l.UserID == userID {
			cp := *l
			return &cp, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (m *mockLecturerRepo) ExistsByStaffID(ctx context.Context, staffID string) (bool, error) {
	for _, l := range m.lecturers {
		if l.StaffID == staffID {
			return true, nil
		}
	}
	return false, nil
}

func (m *mockLecturerRepo) CreateWithIdentity(ctx context.Context, user *models.User, lecturer *models.Lecturer) error {
	m.seq++
	user.ID = fmt.Sprintf("user-lec-%d", m.seq)
	lecturer.ID = fmt.Sprintf("lec-new-%d", m.seq)
	lecturer.UserID = user.ID
	m.lecturers[lecturer.ID] = &models.LecturerDetail{Lecturer: *lecturer, Email: user.Email, Roles: user.Roles, IsPanelMember: user.IsPanelMember}
	return nil
}

func (m *mockLecturerRepo) Delete(ctx context.Context, id string) error {
	if _, ok := m.lecturers[id]; !ok {
		return sql.ErrNoRows
	}
	delete(m.lecturers, id)
	return nil
}

// mockIdentityRepo stands in for the users table.
type mockIdentityRepo struct {
	users     map[string]*models.User
	granted   []string
	revoked   []string
	passwords map[string]string
}

func newMockIdentityRepo(users ...models.User) *mockIdentityRepo {
	repo := &mockIdentityRepo{users: map[string]*models.User{}, passwords: map[string]string{}}
	for i := range users {
		u := users[i]
		repo.users[u.ID] = &u
	}
	return repo
}

func (m *mockIdentityRepo) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	for _, u := range m.users {
		if strings.EqualFold(u.Email, email) {
			return true, nil
		}
	}
	return false, nil
}

func (m *mockIdentityRepo) GrantRole(ctx context.Context, id string, role models.Role) error {
	m.granted = append(m.granted, id+":"+string(role))
	if u, ok := m.users[id]; ok && !u.HasRole(role) {
		u.Roles = append(u.Roles, string(role))
	}
	return nil
}

func (m *mockIdentityRepo) RevokeRole(ctx context.Context, id string, role models.Role) error {
	m.revoked = append(m.revoked, id+":"+string(role))
	return nil
}

func (m *mockIdentityRepo) SetPanelMember(ctx context.Context, id string, flag bool) error {
	u, ok := m.users[id]
	if !ok {
		return sql.ErrNoRows
	}
	u.IsPanelMember = flag
	return nil
}

func (m *mockIdentityRepo) CountPanelMembers(ctx context.Context, ids []string) (int, error) {
	count := 0
	for _, id := range ids {
		if u, ok := m.users[id]; ok && u.IsPanelMember {
			count++
		}
	}
	return count, nil
}

func (m *mockIdentityRepo) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	for _, u := range m.users {
		if strings.EqualFold(u.Email, email) {
			cp := *u
			return &cp, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (m *mockIdentityRepo) FindByID(ctx context.Context, id string) (*models.User, error) {
	u, ok := m.users[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	cp := *u
	return &cp, nil
}

func (m *mockIdentityRepo) UpdatePassword(ctx context.Context, id, passwordHash string, updatedAt time.Time) error {
	u, ok := m.users[id]
	if !ok {
		return sql.ErrNoRows
	}
	u.PasswordHash = passwordHash
	m.passwords[id] = passwordHash
	return nil
}

type mockOrg struct {
	departments map[string]models.Department
	sessions    map[string]models.AcademicSession
}

func (m *mockOrg) FindDepartment(ctx context.Context, id string) (*models.Department, error) {
	d, ok := m.departments[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &d, nil
}

func (m *mockOrg) FindSession(ctx context.Context, id string) (*models.AcademicSession, error) {
	s, ok := m.sessions[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &s, nil
}

type mockDefenceRepo struct {
	defences map[string]*models.Defence
	scores   map[string]models.ScoreEntry
	seq      int
}

func newMockDefenceRepo() *mockDefenceRepo {
	return &mockDefenceRepo{defences: map[string]*models.Defence{}, scores: map[string]models.ScoreEntry{}}
}

func (m *mockDefenceRepo) Create(ctx context.Context, defence *models.Defence) error {
	m.seq++
	if defence.ID == "" {
		defence.ID = fmt.Sprintf("def-%d", m.seq)
	}
	cp := *defence
	m.defences[defence.ID] = &cp
	return nil
}

func (m *mockDefenceRepo) FindByID(ctx context.Context, id string) (*models.Defence, error) {
	d, ok := m.defences[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	cp := *d
	return &cp, nil
}

func (m *mockDefenceRepo) List(ctx context.Context, filter models.DefenceFilter) ([]models.Defence, int, error) {
	var out []models.Defence
	for _, d := range m.defences {
		if filter.PanelMember != "" && !d.HasPanelMember(filter.PanelMember) {
			continue
		}
		out = append(out, *d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, len(out), nil
}

func (m *mockDefenceRepo) Start(ctx context.Context, id string, at time.Time) (bool, error) {
	d, ok := m.defences[id]
	if !ok || d.Started {
		return false, nil
	}
	d.Started = true
	d.StartedAt = &at
	return true, nil
}

func (m *mockDefenceRepo) End(ctx context.Context, id string, at time.Time) (bool, error) {
	d, ok := m.defences[id]
	if !ok || !d.Started || d.Ended {
		return false, nil
	}
	d.Ended = true
	d.EndedAt = &at
	return true, nil
}

func (m *mockDefenceRepo) UpsertScore(ctx context.Context, entry *models.ScoreEntry) (bool, error) {
	d, ok := m.defences[entry.DefenceID]
	if !ok || !d.Started || d.Ended {
		return false, nil
	}
	key := entry.DefenceID + "|" + entry.StudentID + "|" + entry.PanelMemberID
	entry.ID = "score-" + key
	if prev, ok := m.scores[key]; ok {
		entry.ID, entry.CreatedAt = prev.ID, prev.CreatedAt
	}
	m.scores[key] = *entry
	return true, nil
}

func (m *mockDefenceRepo) ListScores(ctx context.Context, defenceID string) ([]models.ScoreEntry, error) {
	var out []models.ScoreEntry
	for _, e := range m.scores {
		if e.DefenceID == defenceID {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *mockDefenceRepo) LatestEnded(ctx context.Context, studentID string, stage models.Stage) (*models.Defence, error) {
	var latest *models.Defence
	for _, d := range m.defences {
		if d.Stage != stage || !d.Ended || !d.HasStudent(studentID) {
			continue
		}
		if latest == nil || d.EndedAt.After(*latest.EndedAt) {
			latest = d
		}
	}
	if latest == nil {
		return nil, sql.ErrNoRows
	}
	cp := *latest
	return &cp, nil
}

type mockSheetRepo struct {
	sheets map[models.ScoreSheetKey]models.ScoreSheet
	writes int
}

func newMockSheetRepo() *mockSheetRepo {
	return &mockSheetRepo{sheets: map[models.ScoreSheetKey]models.ScoreSheet{}}
}

func (m *mockSheetRepo) put(key models.ScoreSheetKey, criteria ...models.Criterion) {
	m.sheets[key] = models.ScoreSheet{ID: "sheet-" + string(key.Scope) + key.Department, Scope: key.Scope, Department: key.Department, Criteria: criteria}
}

func (m *mockSheetRepo) Find(ctx context.Context, key models.ScoreSheetKey) (*models.ScoreSheet, error) {
	sheet, ok := m.sheets[key]
	if !ok {
		return nil, sql.ErrNoRows
	}
	sheet.Criteria = append(models.Criteria{}, sheet.Criteria...)
	return &sheet, nil
}

func (m *mockSheetRepo) FindForDepartments(ctx context.Context, departments []string) (map[string]models.ScoreSheet, error) {
	out := map[string]models.ScoreSheet{}
	for _, d := range departments {
		if sheet, ok := m.sheets[models.DepartmentSheet(d)]; ok {
			out[d] = sheet
		}
	}
	return out, nil
}

func (m *mockSheetRepo) Mutate(ctx context.Context, key models.ScoreSheetKey, fn func(current models.Criteria) (models.Criteria, error)) (*models.ScoreSheet, error) {
	sheet, ok := m.sheets[key]
	if !ok {
		sheet = models.ScoreSheet{ID: "sheet-" + string(key.Scope) + key.Department, Scope: key.Scope, Department: key.Department, Criteria: models.Criteria{}}
	}
	next, err := fn(append(models.Criteria{}, sheet.Criteria...))
	if err != nil {
		return nil, err
	}
	sheet.Criteria = next
	m.sheets[key] = sheet
	m.writes++
	return &sheet, nil
}

type mockCacheRepo struct {
	entries map[string][]byte
	deleted []string
}

func newMockCacheRepo() *mockCacheRepo {
	return &mockCacheRepo{entries: map[string][]byte{}}
}

func (m *mockCacheRepo) Get(ctx context.Context, key string, dest interface{}) error {
	raw, ok := m.entries[key]
	if !ok {
		return appErrors.ErrCacheMiss
	}
	return json.Unmarshal(raw, dest)
}

func (m *mockCacheRepo) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	m.entries[key] = raw
	return nil
}

func (m *mockCacheRepo) DeleteByPattern(ctx context.Context, pattern string) error {
	m.deleted = append(m.deleted, pattern)
	prefix := strings.TrimSuffix(pattern, "*")
	for key := range m.entries {
		if strings.HasPrefix(key, prefix) {
			delete(m.entries, key)
		}
	}
	return nil
}

type mockSubmissionRepo struct {
	versions map[string]*models.ProjectVersion
	comments []models.ProjectComment
	seq      int
}

func newMockSubmissionRepo() *mockSubmissionRepo {
	return &mockSubmissionRepo{versions: map[string]*models.ProjectVersion{}}
}

func (m *mockSubmissionRepo) CreateVersion(ctx context.Context, version *models.ProjectVersion) error {
	m.seq++
	version.ID = fmt.Sprintf("ver-%d", m.seq)
	latest := 0
	for _, v := range m.versions {
		if v.StudentID == version.StudentID && v.Version > latest {
			latest = v.Version
		}
	}
	version.Version = latest + 1
	if version.Status == "" {
		version.Status = models.ProjectStatusSubmitted
	}
	cp := *version
	m.versions[version.ID] = &cp
	return nil
}

func (m *mockSubmissionRepo) FindVersion(ctx context.Context, id string) (*models.ProjectVersion, error) {
	v, ok := m.versions[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	cp := *v
	return &cp, nil
}

func (m *mockSubmissionRepo) ListByStudent(ctx context.Context, studentID string) ([]models.ProjectVersion, error) {
	var out []models.ProjectVersion
	for _, v := range m.versions {
		if v.StudentID == studentID {
			out = append(out, *v)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Version > out[j].Version })
	return out, nil
}

func (m *mockSubmissionRepo) Approve(ctx context.Context, id, approverID string, at time.Time) error {
	v, ok := m.versions[id]
	if !ok {
		return sql.ErrNoRows
	}
	v.Status = models.ProjectStatusApproved
	v.ApprovedBy = &approverID
	v.ApprovedAt = &at
	return nil
}

func (m *mockSubmissionRepo) CreateComment(ctx context.Context, comment *models.ProjectComment) error {
	comment.ID = fmt.Sprintf("cmt-%d", len(m.comments)+1)
	m.comments = append(m.comments, *comment)
	return nil
}

func (m *mockSubmissionRepo) ListComments(ctx context.Context, versionID string) ([]models.ProjectComment, error) {
	var out []models.ProjectComment
	for _, c := range m.comments {
		if c.VersionID == versionID {
			out = append(out, c)
		}
	}
	return out, nil
}

type mockMailer struct {
	messages []mailer.Message
	err      error
}

func (m *mockMailer) Send(ctx context.Context, msg mailer.Message) error {
	m.messages = append(m.messages, msg)
	return m.err
}

type mockNotificationRepo struct {
	stored []models.Notification
	err    error
}

func (m *mockNotificationRepo) CreateBatch(ctx context.Context, notifications []models.Notification) error {
	if m.err != nil {
		return m.err
	}
	m.stored = append(m.stored, notifications...)
	return nil
}

func (m *mockNotificationRepo) List(ctx context.Context, filter models.NotificationFilter) ([]models.Notification, int, error) {
	var out []models.Notification
	for _, n := range m.stored {
		if n.RecipientID == filter.RecipientID {
			out = append(out, n)
		}
	}
	return out, len(out), nil
}

func (m *mockNotificationRepo) MarkRead(ctx context.Context, id, recipientID string) error {
	for i := range m.stored {
		if m.stored[i].ID == id && m.stored[i].RecipientID == recipientID {
			m.stored[i].Read = true
			return nil
		}
	}
	return sql.ErrNoRows
}

func (m *mockNotificationRepo) MarkAllRead(ctx context.Context, recipientID string) (int64, error) {
	var n int64
	for i := range m.stored {
		if m.stored[i].RecipientID == recipientID && !m.stored[i].Read {
			m.stored[i].Read = true
			n++
		}
	}
	return n, nil
}
