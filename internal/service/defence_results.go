package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"

	"go.uber.org/zap"

	"github.com/noah-isme/pg-defence-api/internal/models"
	appErrors "github.com/noah-isme/pg-defence-api/pkg/errors"
	"github.com/noah-isme/pg-defence-api/pkg/export"
)

// Exporter renders a dataset into a downloadable document.
type Exporter interface {
	ContentType() string
	Render(data export.Dataset, titles ...string) ([]byte, error)
}

// ExportFile is a rendered results document.
type ExportFile struct {
	Filename    string
	ContentType string
	Content     []byte
}

var resultHeaders = []string{"Matric No", "Name", "Department", "Sheet", "Panel Scored", "Aggregate"}

// Results computes the aggregate score of every student in the defence.
func (s *DefenceService) Results(ctx context.Context, id string) (*models.DefenceResults, error) {
	defence, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	students, err := s.students.FindByIDs(ctx, defence.StudentIDs)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load cohort")
	}
	results, err := s.results(ctx, defence, students)
	if err != nil {
		return nil, err
	}
	return &models.DefenceResults{Defence: defence, Students: results}, nil
}

// Export renders the results table as csv or pdf.
func (s *DefenceService) Export(ctx context.Context, id, format string) (*ExportFile, error) {
	var exporter Exporter
	switch format {
	case "", "csv":
		format = "csv"
		exporter = export.NewCSVExporter()
	case "pdf":
		exporter = export.NewPDFExporter()
	default:
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unsupported export format %q", format))
	}

	results, err := s.Results(ctx, id)
	if err != nil {
		return nil, err
	}
	data := export.Dataset{Headers: resultHeaders}
	for _, r := range results.Students {
		data.Rows = append(data.Rows, map[string]string{
			"Matric No":    r.MatricNo,
			"Name":         r.Name,
			"Department":   r.Department,
			"Sheet":        string(r.SheetScope),
			"Panel Scored": strconv.Itoa(r.PanelScored),
			"Aggregate":    strconv.FormatFloat(r.Aggregate, 'f', 2, 64),
		})
	}
	defence := results.Defence
	content, err := exporter.Render(data,
		fmt.Sprintf("%s defence results", stageLabel(defence.Stage)),
		fmt.Sprintf("Programme %s, scheduled %s", defence.Program, defence.ScheduledAt.Format("2 Jan 2006 15:04")),
	)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render results")
	}
	return &ExportFile{
		Filename:    fmt.Sprintf("defence-%s-results.%s", defence.ID, format),
		ContentType: exporter.ContentType(),
		Content:     content,
	}, nil
}

func (s *DefenceService) results(ctx context.Context, defence *models.Defence, students []models.Student) ([]models.StudentResult, error) {
	entries, err := s.repo.ListScores(ctx, defence.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load scores")
	}
	byStudent := make(map[string][]models.ScoreEntry)
	for _, e := range entries {
		byStudent[e.StudentID] = append(byStudent[e.StudentID], e)
	}

	departments := make([]string, 0, len(students))
	for _, st := range students {
		if st.Department != "" {
			departments = append(departments, st.Department)
		}
	}
	deptSheets, err := s.sheets.FindForDepartments(ctx, uniqueStrings(departments))
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load score sheets")
	}
	var general models.Criteria
	sheet, err := s.sheets.Find(ctx, models.GeneralSheet)
	switch {
	case err == nil:
		general = sheet.Criteria
	case errors.Is(err, sql.ErrNoRows):
	default:
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load general score sheet")
	}

	out := make([]models.StudentResult, 0, len(students))
	for _, st := range students {
		scope, criteria := models.ScoreSheetGeneral, general
		if dept, ok := deptSheets[st.Department]; ok && len(dept.Criteria) > 0 {
			scope, criteria = models.ScoreSheetDepartment, dept.Criteria
		}
		result := Aggregate(criteria, byStudent[st.ID])
		result.StudentID = st.ID
		result.MatricNo = st.MatricNo
		result.Name = st.FullName()
		result.Department = st.Department
		result.SheetScope = scope
		out = append(out, result)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].MatricNo < out[j].MatricNo })
	s.logger.Debug("defence results computed", zap.String("defence_id", defence.ID), zap.Int("students", len(out)))
	return out, nil
}

// Aggregate scores one student against criteria. Each criterion contributes
// weight/100 times the mean of the panel scores given for it; criteria nobody scored
// contribute 0.
func Aggregate(criteria models.Criteria, entries []models.ScoreEntry) models.StudentResult {
	result := models.StudentResult{PanelScored: len(entries), Breakdown: make([]models.CriterionResult, 0, len(criteria))}
	var total float64
	for _, c := range criteria {
		var sum float64
		var n int
		for _, e := range entries {
			for _, item := range e.Scores {
				if item.CriterionID == c.ID {
					sum += item.Score
					n++
				}
			}
		}
		var mean float64
		if n > 0 {
			mean = sum / float64(n)
		}
		weighted := float64(c.Weight) * mean / 100
		total += weighted
		result.Breakdown = append(result.Breakdown, models.CriterionResult{
			CriterionID: c.ID,
			Name:        c.Name,
			Weight:      c.Weight,
			Mean:        round2(mean),
			Weighted:    round2(weighted),
		})
	}
	result.Aggregate = round2(total)
	return result
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
