package service

import (
	"context"
	"fmt"
	"time"

	"github.com/field-worklog-bot/internal/models"
	"github.com/field-worklog-bot/internal/repository"
	"github.com/field-worklog-bot/internal/validation"
	"github.com/rs/zerolog"
)

// reportService is the concrete implementation of ReportService
type reportService struct {
	reports   repository.ReportRepository
	validator *validation.Validator
	window    time.Duration
	now       func() time.Time
	log       zerolog.Logger
}

func newReportService(reports repository.ReportRepository, window time.Duration, log zerolog.Logger) *reportService {
	return &reportService{
		reports:   reports,
		validator: validation.NewValidator(),
		window:    window,
		now:       time.Now,
		log:       log.With().Str("service", "report").Logger(),
	}
}

// NewReportService creates a ReportService; window bounds how long an owner may change a report
func NewReportService(reports repository.ReportRepository, window time.Duration, log zerolog.Logger) ReportService {
	return newReportService(reports, window, log)
}

func (s *reportService) Create(ctx context.Context, report *models.Report) error {
	if errs := s.validator.ValidateReport(report); len(errs) > 0 {
		return &errs[0]
	}
	if err := s.reports.Create(ctx, report); err != nil {
		return err
	}
	s.log.Info().
		Int64("report_id", report.ID).
		Int64("creator_id", report.CreatorID).
		Str("work_date", report.WorkDate.Format(models.DateLayout)).
		Int("hours", report.Hours).
		Msg("Report created")
	return nil
}

func (s *reportService) Owned(ctx context.Context, actorID, reportID int64) (*models.Report, error) {
	report, err := s.reports.GetByID(ctx, reportID)
	if err != nil {
		return nil, err
	}
	if report == nil {
		return nil, fmt.Errorf("report %d: %w", reportID, models.ErrReportNotFound)
	}
	if report.CreatorID != actorID {
		return nil, &models.OwnershipError{ReportID: reportID, Reason: "only the author can change this report"}
	}
	if s.now().Sub(report.CreatedAt) > s.window {
		return nil, &models.OwnershipError{
			ReportID: reportID,
			Reason:   fmt.Sprintf("reports can only be changed within %s of creation", humanDuration(s.window)),
		}
	}
	return report, nil
}

func (s *reportService) ApplyEdit(ctx context.Context, actorID, reportID int64, edit models.FieldEdit) (*models.Report, error) {
	report, err := s.Owned(ctx, actorID, reportID)
	if err != nil {
		return nil, err
	}
	if !edit.Field.AppliesTo(report) {
		return nil, &models.ValidationError{Field: edit.Field.String(), Message: "this field does not apply to the report"}
	}

	edit.Apply(report)
	if errs := s.validator.ValidateReport(report); len(errs) > 0 {
		return nil, &errs[0]
	}
	if err := s.reports.Update(ctx, report); err != nil {
		return nil, err
	}

	s.log.Info().
		Int64("report_id", reportID).
		Str("field", edit.Field.String()).
		Msg("Report field updated")
	return report, nil
}

func (s *reportService) Delete(ctx context.Context, actorID, reportID int64) error {
	if _, err := s.Owned(ctx, actorID, reportID); err != nil {
		return err
	}
	if err := s.reports.Delete(ctx, reportID); err != nil {
		return err
	}
	s.log.Info().Int64("report_id", reportID).Int64("actor_id", actorID).Msg("Report deleted")
	return nil
}

func (s *reportService) Recent(ctx context.Context, userID int64) ([]*models.Report, error) {
	return s.reports.Recent(ctx, userID, s.now().Add(-s.window))
}

func (s *reportService) SumHours(ctx context.Context, userID int64, date time.Time, excludeID int64) (int, error) {
	return s.reports.SumHours(ctx, userID, date, excludeID)
}

func humanDuration(d time.Duration) string {
	if d%time.Hour == 0 {
		return fmt.Sprintf("%dh", int(d/time.Hour))
	}
	return d.String()
}
