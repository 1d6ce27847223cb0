package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/seva-hours-api/internal/dto"
	"github.com/noah-isme/seva-hours-api/internal/models"
	"github.com/noah-isme/seva-hours-api/internal/repository"
	appErrors "github.com/noah-isme/seva-hours-api/pkg/errors"
	"github.com/noah-isme/seva-hours-api/pkg/export"
	"github.com/noah-isme/seva-hours-api/pkg/spreadsheet"
	"github.com/noah-isme/seva-hours-api/pkg/storage"
)

type attendanceEventReader interface {
	FindByID(ctx context.Context, id string) (*models.Event, error)
	Attendance(ctx context.Context, eventID string) ([]models.EventAttendee, error)
}

type attendanceStudentReader interface {
	FindByID(ctx context.Context, id string) (*models.Student, error)
	FindByRollNo(ctx context.Context, rollNo string) (*models.Student, error)
	FindEligibleByRollNo(ctx context.Context, rollNo string) (*models.Student, error)
}

type ledgerWriter interface {
	Credit(ctx context.Context, studentID, eventID string, hours float64, mode models.CreditMode, now time.Time) (*repository.CreditResult, error)
}

type uploadArchive interface {
	Save(name string, data []byte) (string, error)
}

// AttendanceServiceParams groups constructor dependencies.
type AttendanceServiceParams struct {
	Events    attendanceEventReader
	Students  attendanceStudentReader
	Ledger    ledgerWriter
	Notifier  notifier
	Cache     *CacheService
	Metrics   *MetricsService
	Archive   uploadArchive
	Validator *validator.Validate
	Logger    *zap.Logger
}

// AttendanceService reconciles attendance sheets and manual credits against
// the student directory and the hours ledger.
type AttendanceService struct {
	events    attendanceEventReader
	students  attendanceStudentReader
	ledger    ledgerWriter
	notifier  notifier
	cache     *CacheService
	metrics   *MetricsService
	archive   uploadArchive
	validator *validator.Validate
	logger    *zap.Logger
	now       func() time.Time
}

// NewAttendanceService constructs the attendance service.
func NewAttendanceService(params AttendanceServiceParams) *AttendanceService {
	validate := params.Validator
	if validate == nil {
		validate = validator.New()
	}
	logger := params.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	notify := params.Notifier
	if notify == nil {
		notify = noopNotifier{}
	}
	return &AttendanceService{
		events:    params.Events,
		students:  params.Students,
		ledger:    params.Ledger,
		notifier:  notify,
		cache:     params.Cache,
		metrics:   params.Metrics,
		archive:   params.Archive,
		validator: validate,
		logger:    logger,
		now:       time.Now,
	}
}

// Upload ingests an attendance sheet for an event. Structural problems fail
// the whole upload before any student is touched; row problems are reported
// in the result and never abort the batch. Every credited row overwrites the
// student's entry for the event so re-uploading a sheet is idempotent.
func (s *AttendanceService) Upload(ctx context.Context, eventID, adminID, filename string, content []byte) (*dto.AttendanceUploadResult, error) {
	start := time.Now()
	event, err := s.loadEvent(ctx, eventID)
	if err != nil {
		return nil, err
	}

	table, err := spreadsheet.Parse(content)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInvalidSpreadsheet.Code, appErrors.ErrInvalidSpreadsheet.Status, err.Error())
	}

	result := &dto.AttendanceUploadResult{
		EventID:             event.ID,
		EventName:           event.Name,
		TotalRecords:        len(table.Rows),
		Errors:              []string{},
		ProcessedStudentIDs: []string{},
		Outcomes:            make([]dto.RowOutcome, 0, len(table.Rows)),
	}
	result.ArchivedAs = s.archiveUpload(event.ID, filename, content)

	for _, row := range table.Rows {
		outcome := s.processRow(ctx, event, row)
		result.Outcomes = append(result.Outcomes, outcome)
		if outcome.Status == dto.RowStatusCredited {
			result.ProcessedRecords++
			result.ProcessedStudentIDs = append(result.ProcessedStudentIDs, outcome.StudentID)
			continue
		}
		result.FailedRecords++
		result.Errors = append(result.Errors, outcome.Reason)
	}
	result.Message = fmt.Sprintf("Successfully processed %d out of %d records", result.ProcessedRecords, result.TotalRecords)

	s.metrics.ObserveUpload(result.ProcessedRecords, result.FailedRecords, time.Since(start))
	s.logger.Info("attendance upload processed",
		zap.String("event_id", event.ID),
		zap.String("admin_id", adminID),
		zap.Int("total", result.TotalRecords),
		zap.Int("processed", result.ProcessedRecords),
		zap.Int("failed", result.FailedRecords),
	)

	if result.ProcessedRecords > 0 {
		s.cache.InvalidateHours(ctx)
		s.notifyCredited(ctx, event, result.ProcessedStudentIDs)
	}
	if adminID != "" {
		s.notifier.Notify(ctx, models.Notification{
			UserID:   adminID,
			UserType: models.RoleAdmin,
			Title:    "Attendance Upload Complete",
			Message:  fmt.Sprintf("%s: processed %d/%d records", event.Name, result.ProcessedRecords, result.TotalRecords),
			Type:     models.NotificationSuccess,
		})
	}
	return result, nil
}

func (s *AttendanceService) processRow(ctx context.Context, event *models.Event, row spreadsheet.Row) dto.RowOutcome {
	outcome := dto.RowOutcome{Row: row.Number, RollNo: row.RollNo, Status: dto.RowStatusFailed}
	raw := strings.TrimSpace(row.RollNo)
	if raw == "" {
		outcome.Reason = fmt.Sprintf("Row %d: Missing roll number", row.Number)
		return outcome
	}
	rollNo := models.NormalizeRollNo(raw)
	if !models.ValidRollNo(rollNo) {
		outcome.Reason = fmt.Sprintf("Row %d: Invalid roll number format - %s", row.Number, raw)
		return outcome
	}

	student, err := s.students.FindEligibleByRollNo(ctx, rollNo)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			outcome.Reason = fmt.Sprintf("Row %d: Student not found or not approved - %s", row.Number, raw)
		} else {
			outcome.Reason = fmt.Sprintf("Row %d: Processing error - %v", row.Number, err)
		}
		return outcome
	}
	outcome.StudentID = student.ID

	if _, err := s.ledger.Credit(ctx, student.ID, event.ID, event.GivenHours, models.CreditModeOverwrite, s.now().UTC()); err != nil {
		s.logger.Warn("attendance credit failed", zap.String("event_id", event.ID), zap.String("roll_no", rollNo), zap.Error(err))
		outcome.Reason = fmt.Sprintf("Row %d: Processing error - %v", row.Number, err)
		return outcome
	}
	s.metrics.RecordCredit(models.CreditModeOverwrite)
	outcome.Status = dto.RowStatusCredited
	return outcome
}

func (s *AttendanceService) notifyCredited(ctx context.Context, event *models.Event, studentIDs []string) {
	seen := make(map[string]struct{}, len(studentIDs))
	for _, id := range studentIDs {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		s.notifier.Notify(ctx, models.Notification{
			UserID:   id,
			UserType: models.RoleStudent,
			Title:    "Attendance Recorded",
			Message:  fmt.Sprintf("Your attendance for %s was recorded. Hours credited: %s.", event.Name, formatHours(event.GivenHours)),
			Type:     models.NotificationSuccess,
		})
	}
}

func (s *AttendanceService) archiveUpload(eventID, filename string, content []byte) string {
	if s.archive == nil {
		return ""
	}
	if filename == "" {
		filename = "attendance.xlsx"
	}
	name, err := s.archive.Save(storage.ArchiveName(eventID, filename, s.now().UTC()), content)
	if err != nil {
		s.logger.Warn("failed to archive attendance upload", zap.String("event_id", eventID), zap.Error(err))
		return ""
	}
	return name
}

// ManualCredit credits one student for an event. Unlike an upload it refuses
// to replace an existing credit.
func (s *AttendanceService) ManualCredit(ctx context.Context, eventID string, req dto.ManualCreditRequest) (*dto.ManualCreditResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid manual credit payload")
	}
	event, err := s.loadEvent(ctx, eventID)
	if err != nil {
		return nil, err
	}
	student, err := s.resolveStudent(ctx, req.StudentID, req.RollNo)
	if err != nil {
		return nil, err
	}
	if !student.Approved {
		return nil, appErrors.ErrNotApproved
	}
	if !student.Active {
		return nil, appErrors.ErrInactiveAccount
	}

	hours := event.GivenHours
	if req.Hours != nil {
		hours = *req.Hours
	}
	res, err := s.ledger.Credit(ctx, student.ID, event.ID, hours, models.CreditModeStrict, s.now().UTC())
	if err != nil {
		return nil, mapCreditError(err, student.RollNo)
	}
	s.metrics.RecordCredit(models.CreditModeStrict)
	s.cache.InvalidateHours(ctx)

	s.notifier.Notify(ctx, models.Notification{
		UserID:   student.ID,
		UserType: models.RoleStudent,
		Title:    "Added to Event",
		Message:  fmt.Sprintf("You were added to %s. Hours credited: %s.", event.Name, formatHours(res.Change.Entry.Hours)),
		Type:     models.NotificationSuccess,
	})
	return &dto.ManualCreditResponse{
		StudentID:     student.ID,
		RollNo:        student.RollNo,
		EventID:       event.ID,
		CreditedHours: res.Change.Entry.Hours,
		NewTotalHours: res.TotalHours,
		AttendedAt:    res.Change.Entry.AttendedAt,
	}, nil
}

// AddBonusHours adds a bounded delta on top of an existing credit.
func (s *AttendanceService) AddBonusHours(ctx context.Context, eventID string, req dto.BonusHoursRequest) (*dto.BonusHoursResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "bonus hours must be between 0 and 10")
	}
	event, err := s.loadEvent(ctx, eventID)
	if err != nil {
		return nil, err
	}
	student, err := s.resolveStudent(ctx, req.StudentID, req.RollNo)
	if err != nil {
		return nil, err
	}

	res, err := s.ledger.Credit(ctx, student.ID, event.ID, *req.BonusHours, models.CreditModeBonus, s.now().UTC())
	if err != nil {
		return nil, mapCreditError(err, student.RollNo)
	}
	s.metrics.RecordCredit(models.CreditModeBonus)
	s.cache.InvalidateHours(ctx)

	s.notifier.Notify(ctx, models.Notification{
		UserID:   student.ID,
		UserType: models.RoleStudent,
		Title:    "Bonus Hours Added",
		Message:  fmt.Sprintf("You received %s bonus hours for %s. Total hours: %s", formatHours(*req.BonusHours), event.Name, formatHours(res.Change.Entry.Hours)),
		Type:     models.NotificationSuccess,
	})
	return &dto.BonusHoursResponse{
		StudentID:     student.ID,
		EventID:       event.ID,
		OriginalHours: res.Change.PreviousHours,
		BonusHours:    *req.BonusHours,
		NewEventHours: res.Change.Entry.Hours,
		NewTotalHours: res.TotalHours,
	}, nil
}

// Template returns the blank attendance workbook.
func (s *AttendanceService) Template() (*dto.FileDownload, error) {
	data, err := spreadsheet.Template()
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to build template")
	}
	xlsx := export.NewXLSXExporter()
	return &dto.FileDownload{Filename: "attendance_template.xlsx", ContentType: xlsx.ContentType(), Data: data}, nil
}

// Export renders the attendance view of an event.
func (s *AttendanceService) Export(ctx context.Context, eventID, format string) (*dto.FileDownload, error) {
	exporter, err := export.ForFormat(format)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "unsupported export format")
	}
	event, err := s.loadEvent(ctx, eventID)
	if err != nil {
		return nil, err
	}
	attendees, err := s.events.Attendance(ctx, eventID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load attendance")
	}

	dataset := export.Dataset{
		Title:   fmt.Sprintf("%s (%s)", event.Name, event.Date.Format("2006-01-02")),
		Headers: []string{"Roll No", "Name", "Email", "Branch", "Hours", "Attended At"},
		Rows:    make([]map[string]string, 0, len(attendees)),
	}
	for _, a := range attendees {
		row := map[string]string{
			"Roll No": a.RollNo,
			"Name":    a.FullName,
			"Email":   a.Email,
			"Branch":  derefString(a.Branch),
		}
		if a.Hours != nil {
			row["Hours"] = formatHours(*a.Hours)
		}
		if a.AttendedAt != nil {
			row["Attended At"] = a.AttendedAt.UTC().Format(time.RFC3339)
		}
		dataset.Rows = append(dataset.Rows, row)
	}

	data, err := exporter.Render(dataset)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render export")
	}
	return &dto.FileDownload{
		Filename:    fmt.Sprintf("attendance-%s.%s", event.ID, exporter.Extension()),
		ContentType: exporter.ContentType(),
		Data:        data,
	}, nil
}

func (s *AttendanceService) loadEvent(ctx context.Context, id string) (*models.Event, error) {
	event, err := s.events.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "event not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load event")
	}
	return event, nil
}

func (s *AttendanceService) resolveStudent(ctx context.Context, studentID, rollNo string) (*models.Student, error) {
	var (
		student *models.Student
		err     error
	)
	if studentID != "" {
		student, err = s.students.FindByID(ctx, studentID)
	} else {
		student, err = s.students.FindByRollNo(ctx, models.NormalizeRollNo(rollNo))
	}
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}
	return student, nil
}

func mapCreditError(err error, rollNo string) error {
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return appErrors.Clone(appErrors.ErrNotFound, "student not found")
	case errors.Is(err, models.ErrDuplicateCredit):
		return appErrors.Clone(appErrors.ErrDuplicateCredit, fmt.Sprintf("Student %s already attended this event", rollNo))
	case errors.Is(err, models.ErrNoCredit):
		return appErrors.ErrNoCredit
	case errors.Is(err, models.ErrInvalidHours):
		return appErrors.Clone(appErrors.ErrValidation, "invalid hours")
	default:
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to credit hours")
	}
}
