package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/noah-isme/seva-hours-api/internal/dto"
	"github.com/noah-isme/seva-hours-api/internal/models"
	appErrors "github.com/noah-isme/seva-hours-api/pkg/errors"
	"github.com/noah-isme/seva-hours-api/pkg/export"
)

type studentRepository interface {
	List(ctx context.Context, filter models.StudentFilter) ([]models.Student, int, error)
	FindByID(ctx context.Context, id string) (*models.Student, error)
	FindByRollNo(ctx context.Context, rollNo string) (*models.Student, error)
	ExistsByRollNoOrEmail(ctx context.Context, rollNo, email, excludeID string) (bool, error)
	Create(ctx context.Context, student *models.Student) error
	UpdateProfile(ctx context.Context, student *models.Student) error
	Approve(ctx context.Context, id, adminID string, at time.Time) (bool, error)
	SetActive(ctx context.Context, id string, active bool) error
	Delete(ctx context.Context, id string) error
	Leaderboard(ctx context.Context, page, size int) ([]models.LeaderboardEntry, int, error)
	Ledger(ctx context.Context, studentID string) ([]models.LedgerEntry, error)
	HoursReport(ctx context.Context, filter dto.HoursReportFilter) ([]models.Student, error)
}

// StudentServiceParams groups constructor dependencies.
type StudentServiceParams struct {
	Repo      studentRepository
	Notifier  notifier
	Cache     *CacheService
	Validator *validator.Validate
	Logger    *zap.Logger
	OrgDomain string
}

// StudentService manages the student directory.
type StudentService struct {
	repo      studentRepository
	notifier  notifier
	cache     *CacheService
	validator *validator.Validate
	logger    *zap.Logger
	orgDomain string
	now       func() time.Time
}

// NewStudentService constructs a StudentService.
func NewStudentService(params StudentServiceParams) *StudentService {
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
	svc := &StudentService{
		repo:      params.Repo,
		notifier:  notify,
		cache:     params.Cache,
		validator: validate,
		logger:    logger,
		orgDomain: strings.ToLower(strings.TrimPrefix(strings.TrimSpace(params.OrgDomain), "@")),
		now:       time.Now,
	}
	if err := registerValidations(svc.validator, studentValidations); err != nil {
		panic(err)
	}
	return svc
}

var studentValidations = map[string]validator.Func{
	"rollno": func(fl validator.FieldLevel) bool {
		return models.ValidRollNo(models.NormalizeRollNo(fl.Field().String()))
	},
	"phone": func(fl validator.FieldLevel) bool {
		return models.ValidPhone(strings.TrimSpace(fl.Field().String()))
	},
}

func registerValidations(v *validator.Validate, rules map[string]validator.Func) error {
	for tag, fn := range rules {
		if err := v.RegisterValidation(tag, fn); err != nil {
			return fmt.Errorf("register %q validation: %w", tag, err)
		}
	}
	return nil
}

// Register creates a pending student account and alerts administrators.
func (s *StudentService) Register(ctx context.Context, req models.RegisterStudentRequest) (*models.Student, error) {
	req.FullName = strings.TrimSpace(req.FullName)
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid registration payload")
	}
	if !emailInDomain(req.Email, s.orgDomain) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, fmt.Sprintf("Only %s email accounts are allowed for registration", s.orgDomain))
	}

	rollNo := models.NormalizeRollNo(req.RollNo)
	exists, err := s.repo.ExistsByRollNoOrEmail(ctx, rollNo, req.Email, "")
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check student")
	}
	if exists {
		return nil, appErrors.Clone(appErrors.ErrConflict, "student with this roll number or email already exists")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to hash password")
	}

	student := &models.Student{
		RollNo:       rollNo,
		Email:        req.Email,
		FullName:     req.FullName,
		Phone:        trimmedPtr(req.Phone),
		Year:         req.Year,
		Branch:       upperPtr(req.Branch),
		PasswordHash: string(hash),
		Active:       true,
	}
	if err := s.repo.Create(ctx, student); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create student")
	}

	s.notifier.NotifyAdmins(ctx, models.Notification{
		Title:   "New Student Registration",
		Message: fmt.Sprintf("%s (%s) has registered and is awaiting approval.", student.FullName, student.RollNo),
		Type:    models.NotificationInfo,
	})
	return student, nil
}

// Get returns a student by ID.
func (s *StudentService) Get(ctx context.Context, id string) (*models.Student, error) {
	student, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}
	return student, nil
}

// List returns students with pagination metadata.
func (s *StudentService) List(ctx context.Context, filter models.StudentFilter) ([]models.Student, *models.Pagination, error) {
	if filter.Page <= 0 {
		filter.Page = 1
	}
	if filter.PageSize <= 0 || filter.PageSize > 100 {
		filter.PageSize = 20
	}
	students, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list students")
	}
	if students == nil {
		students = []models.Student{}
	}
	return students, &models.Pagination{Page: filter.Page, PageSize: filter.PageSize, TotalCount: total}, nil
}

// Pending lists active registrations awaiting approval.
func (s *StudentService) Pending(ctx context.Context, page, size int) ([]models.Student, *models.Pagination, error) {
	approved, active := false, true
	return s.List(ctx, models.StudentFilter{Approved: &approved, Active: &active, Page: page, PageSize: size, SortBy: "registered_at", SortOrder: "desc"})
}

// Approve approves a pending registration.
func (s *StudentService) Approve(ctx context.Context, id, adminID string) (*models.Student, error) {
	student, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if student.Approved {
		return nil, appErrors.ErrAlreadyApproved
	}
	now := s.now().UTC()
	ok, err := s.repo.Approve(ctx, id, adminID, now)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to approve student")
	}
	if !ok {
		return nil, appErrors.ErrAlreadyApproved
	}
	student.Approved = true
	student.ApprovedAt = &now
	if adminID != "" {
		student.ApprovedBy = &adminID
	}

	s.notifier.Notify(ctx, models.Notification{
		UserID:   student.ID,
		UserType: models.RoleStudent,
		Title:    "Registration Approved",
		Message:  "Your registration has been approved. You can now log in and join events.",
		Type:     models.NotificationSuccess,
	})
	s.cache.InvalidateHours(ctx)
	return student, nil
}

// Reject declines a registration by deactivating the account.
func (s *StudentService) Reject(ctx context.Context, id string, req models.RejectStudentRequest) error {
	if err := s.validator.Struct(req); err != nil {
		return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid reject payload")
	}
	student, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := s.repo.SetActive(ctx, id, false); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to reject student")
	}
	message := "Your registration has been rejected."
	if reason := strings.TrimSpace(req.Reason); reason != "" {
		message += " Reason: " + reason
	}
	s.notifier.Notify(ctx, models.Notification{
		UserID:   student.ID,
		UserType: models.RoleStudent,
		Title:    "Registration Rejected",
		Message:  message,
		Type:     models.NotificationError,
	})
	return nil
}

// SetBlocked blocks or unblocks a student.
func (s *StudentService) SetBlocked(ctx context.Context, id string, blocked bool) (*models.Student, error) {
	student, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.repo.SetActive(ctx, id, !blocked); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update student status")
	}
	student.Active = !blocked
	s.cache.InvalidateHours(ctx)
	return student, nil
}

// Update applies admin edits to a student profile.
func (s *StudentService) Update(ctx context.Context, id string, req models.UpdateStudentRequest) (*models.Student, error) {
	if req.Email != nil {
		email := strings.ToLower(strings.TrimSpace(*req.Email))
		req.Email = &email
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid student payload")
	}
	student, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if req.Email != nil && *req.Email != student.Email {
		if !emailInDomain(*req.Email, s.orgDomain) {
			return nil, appErrors.Clone(appErrors.ErrForbidden, fmt.Sprintf("Only %s email accounts are allowed", s.orgDomain))
		}
		exists, err := s.repo.ExistsByRollNoOrEmail(ctx, student.RollNo, *req.Email, student.ID)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check student")
		}
		if exists {
			return nil, appErrors.Clone(appErrors.ErrConflict, "email already in use")
		}
		student.Email = *req.Email
	}
	if req.FullName != nil {
		student.FullName = strings.TrimSpace(*req.FullName)
	}
	if req.Phone != nil {
		student.Phone = trimmedPtr(req.Phone)
	}
	if req.Year != nil {
		student.Year = req.Year
	}
	if req.Branch != nil {
		student.Branch = upperPtr(req.Branch)
	}

	if err := s.repo.UpdateProfile(ctx, student); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update student")
	}
	s.cache.InvalidateHours(ctx)
	return student, nil
}

// Delete removes a student and their ledger permanently.
func (s *StudentService) Delete(ctx context.Context, id string) error {
	if _, err := s.Get(ctx, id); err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete student")
	}
	s.cache.InvalidateHours(ctx)
	return nil
}

// Profile returns a student with the events they were credited for.
func (s *StudentService) Profile(ctx context.Context, id string) (*dto.StudentProfile, error) {
	student, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	ledger, err := s.Ledger(ctx, id)
	if err != nil {
		return nil, err
	}
	return &dto.StudentProfile{Student: *student, Ledger: ledger, EventCount: len(ledger)}, nil
}

// ProfileByRollNo is the public profile lookup keyed by roll number.
func (s *StudentService) ProfileByRollNo(ctx context.Context, rollNo string) (*dto.StudentProfile, error) {
	student, err := s.findByRollNo(ctx, rollNo)
	if err != nil {
		return nil, err
	}
	ledger, err := s.Ledger(ctx, student.ID)
	if err != nil {
		return nil, err
	}
	return &dto.StudentProfile{Student: *student, Ledger: ledger, EventCount: len(ledger)}, nil
}

// LedgerByRollNo returns the public hours history for a roll number.
func (s *StudentService) LedgerByRollNo(ctx context.Context, rollNo string) (*dto.StudentLedger, error) {
	student, err := s.findByRollNo(ctx, rollNo)
	if err != nil {
		return nil, err
	}
	ledger, err := s.Ledger(ctx, student.ID)
	if err != nil {
		return nil, err
	}
	return &dto.StudentLedger{RollNo: student.RollNo, TotalHours: student.TotalHours, EventCount: len(ledger), Events: ledger}, nil
}

func (s *StudentService) findByRollNo(ctx context.Context, rollNo string) (*models.Student, error) {
	normalized := models.NormalizeRollNo(rollNo)
	if normalized == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "roll number is required")
	}
	student, err := s.repo.FindByRollNo(ctx, normalized)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}
	return student, nil
}

// Ledger lists the student's credits, newest first.
func (s *StudentService) Ledger(ctx context.Context, id string) ([]models.LedgerEntry, error) {
	entries, err := s.repo.Ledger(ctx, id)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load ledger")
	}
	if entries == nil {
		entries = []models.LedgerEntry{}
	}
	return entries, nil
}

// Status reports the public registration state for a roll number.
func (s *StudentService) Status(ctx context.Context, rollNo string) (*models.RegistrationStatus, error) {
	student, err := s.repo.FindByRollNo(ctx, models.NormalizeRollNo(rollNo))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "no registration found for this roll number")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load registration")
	}
	status := "pending"
	if student.Approved {
		status = "approved"
	}
	return &models.RegistrationStatus{
		FullName:     student.FullName,
		RollNo:       student.RollNo,
		Email:        student.Email,
		Approved:     student.Approved,
		Status:       status,
		RegisteredAt: student.RegisteredAt,
		ApprovedAt:   student.ApprovedAt,
		TotalHours:   student.TotalHours,
	}, nil
}

type leaderboardPage struct {
	Entries []models.LeaderboardEntry `json:"entries"`
	Total   int                       `json:"total"`
}

// Leaderboard ranks students by total hours. Pages are cached until the next
// credit.
func (s *StudentService) Leaderboard(ctx context.Context, page, size int) ([]models.LeaderboardEntry, *models.Pagination, error) {
	if page <= 0 {
		page = 1
	}
	if size <= 0 || size > 100 {
		size = 20
	}
	key := leaderboardCacheKey(page, size)
	var cached leaderboardPage
	if s.cache.Get(ctx, key, &cached) {
		return cached.Entries, &models.Pagination{Page: page, PageSize: size, TotalCount: cached.Total}, nil
	}

	entries, total, err := s.repo.Leaderboard(ctx, page, size)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load leaderboard")
	}
	if entries == nil {
		entries = []models.LeaderboardEntry{}
	}
	s.cache.Set(ctx, key, leaderboardPage{Entries: entries, Total: total}, 0)
	return entries, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// HoursReport aggregates hours for approved active students.
func (s *StudentService) HoursReport(ctx context.Context, filter dto.HoursReportFilter) (*dto.HoursReport, error) {
	if filter.From != nil && filter.To != nil && filter.To.Before(*filter.From) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "to must not be before from")
	}
	students, err := s.repo.HoursReport(ctx, filter)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to build hours report")
	}
	if students == nil {
		students = []models.Student{}
	}
	return &dto.HoursReport{
		Summary:  summariseHours(students),
		Branches: branchBreakdown(students),
		Students: students,
	}, nil
}

// Export renders the filtered student directory in the requested format.
func (s *StudentService) Export(ctx context.Context, filter models.StudentFilter, format string) (*dto.FileDownload, error) {
	exporter, err := export.ForFormat(format)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "unsupported export format")
	}
	filter.Page = 1
	filter.PageSize = 100

	dataset := export.Dataset{
		Title:   "Students",
		Headers: []string{"Roll No", "Name", "Email", "Branch", "Year", "Total Hours", "Approved", "Active"},
	}
	for {
		students, total, err := s.repo.List(ctx, filter)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list students")
		}
		for _, st := range students {
			dataset.Rows = append(dataset.Rows, map[string]string{
				"Roll No":     st.RollNo,
				"Name":        st.FullName,
				"Email":       st.Email,
				"Branch":      derefString(st.Branch),
				"Year":        derefInt(st.Year),
				"Total Hours": formatHours(st.TotalHours),
				"Approved":    strconv.FormatBool(st.Approved),
				"Active":      strconv.FormatBool(st.Active),
			})
		}
		if len(students) == 0 || filter.Page*filter.PageSize >= total {
			break
		}
		filter.Page++
	}

	data, err := exporter.Render(dataset)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render export")
	}
	return &dto.FileDownload{
		Filename:    fmt.Sprintf("students-%s.%s", s.now().UTC().Format("20060102"), exporter.Extension()),
		ContentType: exporter.ContentType(),
		Data:        data,
	}, nil
}

func summariseHours(students []models.Student) dto.HoursReportSummary {
	summary := dto.HoursReportSummary{TotalStudents: len(students)}
	if len(students) == 0 {
		return summary
	}
	summary.MinHours = math.Inf(1)
	for _, st := range students {
		summary.TotalHours += st.TotalHours
		summary.MaxHours = math.Max(summary.MaxHours, st.TotalHours)
		summary.MinHours = math.Min(summary.MinHours, st.TotalHours)
	}
	summary.TotalHours = roundTo2(summary.TotalHours)
	summary.AvgHours = roundTo2(summary.TotalHours / float64(len(students)))
	return summary
}

func branchBreakdown(students []models.Student) []dto.BranchStat {
	index := map[string]*dto.BranchStat{}
	for _, st := range students {
		branch := derefString(st.Branch)
		if branch == "" {
			branch = "UNASSIGNED"
		}
		stat, ok := index[branch]
		if !ok {
			stat = &dto.BranchStat{Branch: branch}
			index[branch] = stat
		}
		stat.Count++
		stat.TotalHours += st.TotalHours
	}
	out := make([]dto.BranchStat, 0, len(index))
	for _, stat := range index {
		stat.TotalHours = roundTo2(stat.TotalHours)
		stat.AvgHours = roundTo2(stat.TotalHours / float64(stat.Count))
		out = append(out, *stat)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].TotalHours == out[j].TotalHours {
			return out[i].Branch < out[j].Branch
		}
		return out[i].TotalHours > out[j].TotalHours
	})
	return out
}

func roundTo2(v float64) float64 {
	return math.Round(v*100) / 100
}

func formatHours(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func trimmedPtr(v *string) *string {
	if v == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*v)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}

func upperPtr(v *string) *string {
	trimmed := trimmedPtr(v)
	if trimmed == nil {
		return nil
	}
	upper := strings.ToUpper(*trimmed)
	return &upper
}

func derefString(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}

func derefInt(v *int) string {
	if v == nil {
		return ""
	}
	return strconv.Itoa(*v)
}
