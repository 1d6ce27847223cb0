package service

import (
	"context"
	"crypto/subtle"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/noah-isme/seva-hours-api/internal/models"
	appErrors "github.com/noah-isme/seva-hours-api/pkg/errors"
	"github.com/noah-isme/seva-hours-api/pkg/googleauth"
)

type authAdminRepository interface {
	FindByEmail(ctx context.Context, email string) (*models.Admin, error)
	Create(ctx context.Context, admin *models.Admin) error
	UpdateLastLogin(ctx context.Context, id string, ts time.Time) error
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

type authStudentRepository interface {
	FindByEmail(ctx context.Context, email string) (*models.Student, error)
	FindByRollNo(ctx context.Context, rollNo string) (*models.Student, error)
	Create(ctx context.Context, student *models.Student) error
	UpdateLastLogin(ctx context.Context, id string, ts time.Time) error
}

type googleVerifier interface {
	Verify(idToken string) (*googleauth.Identity, error)
}

// AuthConfig defines configuration for authentication flows.
type AuthConfig struct {
	AccessTokenSecret string
	AccessTokenExpiry time.Duration
	Issuer            string
	AdminPasskey      string
	OrgDomain         string
}

// AuthService provides authentication use cases for admins and students.
type AuthService struct {
	admins    authAdminRepository
	students  authStudentRepository
	google    googleVerifier
	validator *validator.Validate
	logger    *zap.Logger
	config    AuthConfig
	now       func() time.Time
}

// NewAuthService constructs an AuthService instance.
func NewAuthService(admins authAdminRepository, students authStudentRepository, validate *validator.Validate, logger *zap.Logger, config AuthConfig) *AuthService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	if config.AccessTokenExpiry <= 0 {
		config.AccessTokenExpiry = 7 * 24 * time.Hour
	}
	return &AuthService{admins: admins, students: students, validator: validate, logger: logger, config: config, now: time.Now}
}

// UseGoogleVerifier enables the Google sign-in flows.
func (s *AuthService) UseGoogleVerifier(v googleVerifier) {
	s.google = v
}

// AdminLogin authenticates an administrator. When an organisation passkey is
// configured it must be supplied as well.
func (s *AuthService) AdminLogin(ctx context.Context, req models.AdminLoginRequest) (*models.LoginResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid login payload")
	}
	if s.config.AdminPasskey != "" && !s.passkeyMatches(req.Passkey) {
		return nil, appErrors.Clone(appErrors.ErrInvalidCredentials, "invalid passkey")
	}

	admin, err := s.admins.FindByEmail(ctx, strings.ToLower(strings.TrimSpace(req.Email)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrInvalidCredentials, "invalid email or password")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to fetch admin")
	}
	if !admin.Active {
		return nil, appErrors.Clone(appErrors.ErrInvalidCredentials, "invalid email or password")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(admin.PasswordHash), []byte(req.Password)); err != nil {
		return nil, appErrors.Clone(appErrors.ErrInvalidCredentials, "invalid email or password")
	}

	return s.adminSession(ctx, admin, "password", req.IP, req.UserAgent)
}

// AdminGoogleLogin signs an existing administrator in with a Google ID token.
// Passkey and organisation domain rules match password login.
func (s *AuthService) AdminGoogleLogin(ctx context.Context, req models.AdminGoogleLoginRequest) (*models.LoginResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid login payload")
	}
	if s.config.AdminPasskey != "" && !s.passkeyMatches(req.Passkey) {
		return nil, appErrors.Clone(appErrors.ErrInvalidCredentials, "invalid passkey")
	}
	identity, err := s.verifyGoogle(req.IDToken)
	if err != nil {
		return nil, err
	}

	admin, err := s.admins.FindByEmail(ctx, identity.Email)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "admin account not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to fetch admin")
	}
	if !admin.Active {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "admin account not found")
	}
	return s.adminSession(ctx, admin, "google", req.IP, req.UserAgent)
}

func (s *AuthService) adminSession(ctx context.Context, admin *models.Admin, method, ip, userAgent string) (*models.LoginResponse, error) {
	now := s.now().UTC()
	token, err := s.generateAccessToken(&models.JWTClaims{UserID: admin.ID, Role: models.RoleAdmin, Email: admin.Email, FullName: admin.FullName}, now)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create access token")
	}

	if err := s.admins.UpdateLastLogin(ctx, admin.ID, now); err != nil {
		s.logger.Warn("failed to update admin last login", zap.Error(err))
	}
	if err := s.admins.CreateAuditLog(ctx, &models.AuditLog{
		UserID:     &admin.ID,
		Action:     models.AuditActionLogin,
		Resource:   "auth",
		ResourceID: &admin.ID,
		NewValues:  []byte(fmt.Sprintf(`{"status":"success","method":%q}`, method)),
		IPAddress:  ip,
		UserAgent:  userAgent,
	}); err != nil {
		s.logger.Warn("failed to record login audit log", zap.Error(err))
	}
	s.logger.Info("admin login", zap.String("email", admin.Email), zap.String("method", method))

	return &models.LoginResponse{
		AccessToken: token,
		ExpiresIn:   int64(s.config.AccessTokenExpiry.Seconds()),
		IssuedAt:    now,
		User: models.UserInfo{
			ID:       admin.ID,
			Email:    admin.Email,
			FullName: admin.FullName,
			Role:     models.RoleAdmin,
		},
	}, nil
}

// AdminRegister creates an administrator account. Registration is only open
// when a passkey is configured and supplied.
func (s *AuthService) AdminRegister(ctx context.Context, req models.AdminRegisterRequest) (*models.Admin, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid admin registration payload")
	}
	if s.config.AdminPasskey == "" {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "admin registration is disabled")
	}
	if !s.passkeyMatches(req.Passkey) {
		return nil, appErrors.Clone(appErrors.ErrInvalidCredentials, "invalid passkey")
	}

	email := strings.ToLower(strings.TrimSpace(req.Email))
	if !emailInDomain(email, s.config.OrgDomain) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only organization email accounts are allowed")
	}

	if _, err := s.admins.FindByEmail(ctx, email); err == nil {
		return nil, appErrors.Clone(appErrors.ErrConflict, "admin with this email already exists")
	} else if !errors.Is(err, sql.ErrNoRows) {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check admin")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to hash password")
	}
	admin := &models.Admin{
		Email:        email,
		PasswordHash: string(hash),
		FullName:     strings.TrimSpace(req.FullName),
		Role:         models.RoleAdmin,
		Active:       true,
	}
	if err := s.admins.Create(ctx, admin); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create admin")
	}
	if err := s.admins.CreateAuditLog(ctx, &models.AuditLog{
		UserID:     &admin.ID,
		Action:     models.AuditActionAdminRegister,
		Resource:   "admins",
		ResourceID: &admin.ID,
	}); err != nil {
		s.logger.Warn("failed to record admin registration audit log", zap.Error(err))
	}
	s.logger.Info("admin registered", zap.String("email", admin.Email))
	return admin, nil
}

// StudentLogin authenticates a student by roll number or, when the
// identifier contains "@", by email.
func (s *AuthService) StudentLogin(ctx context.Context, req models.StudentLoginRequest) (*models.LoginResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid login payload")
	}

	identifier := strings.TrimSpace(req.Identifier)
	var (
		student *models.Student
		err     error
	)
	if strings.Contains(identifier, "@") {
		student, err = s.students.FindByEmail(ctx, strings.ToLower(identifier))
	} else {
		student, err = s.students.FindByRollNo(ctx, models.NormalizeRollNo(identifier))
	}
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrInvalidCredentials, "invalid roll number or password")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to fetch student")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(student.PasswordHash), []byte(req.Password)); err != nil {
		return nil, appErrors.Clone(appErrors.ErrInvalidCredentials, "invalid roll number or password")
	}
	return s.studentSession(ctx, student)
}

// StudentGoogleLogin signs a student in with a Google ID token. A first
// sign-in creates a pending account for the supplied roll number.
func (s *AuthService) StudentGoogleLogin(ctx context.Context, req models.StudentGoogleLoginRequest) (*models.LoginResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid login payload")
	}
	identity, err := s.verifyGoogle(req.IDToken)
	if err != nil {
		return nil, err
	}

	student, err := s.students.FindByEmail(ctx, identity.Email)
	switch {
	case err == nil:
	case errors.Is(err, sql.ErrNoRows):
		student, err = s.registerGoogleStudent(ctx, identity, req.RollNo)
		if err != nil {
			return nil, err
		}
	default:
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to fetch student")
	}
	return s.studentSession(ctx, student)
}

func (s *AuthService) registerGoogleStudent(ctx context.Context, identity *googleauth.Identity, rawRollNo string) (*models.Student, error) {
	rollNo := models.NormalizeRollNo(rawRollNo)
	if rollNo == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "new users must provide roll_no")
	}
	if !models.ValidRollNo(rollNo) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "invalid roll number format")
	}
	if _, err := s.students.FindByRollNo(ctx, rollNo); err == nil {
		return nil, appErrors.Clone(appErrors.ErrConflict, "roll number is already registered")
	} else if !errors.Is(err, sql.ErrNoRows) {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check student")
	}

	// The password is never disclosed; the account signs in through Google.
	hash, err := bcrypt.GenerateFromPassword([]byte(uuid.NewString()), bcrypt.DefaultCost)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to hash password")
	}
	name := identity.Name
	if name == "" {
		name = strings.SplitN(identity.Email, "@", 2)[0]
	}
	student := &models.Student{
		RollNo:       rollNo,
		Email:        identity.Email,
		FullName:     name,
		PasswordHash: string(hash),
		Active:       true,
	}
	if err := s.students.Create(ctx, student); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create student")
	}
	s.logger.Info("student registered through google", zap.String("roll_no", rollNo))
	return student, nil
}

func (s *AuthService) studentSession(ctx context.Context, student *models.Student) (*models.LoginResponse, error) {
	if !student.Approved {
		return nil, appErrors.Clone(appErrors.ErrNotApproved, "your account is pending approval")
	}
	if !student.Active {
		return nil, appErrors.Clone(appErrors.ErrInactiveAccount, "your account has been deactivated")
	}

	now := s.now().UTC()
	token, err := s.generateAccessToken(&models.JWTClaims{
		UserID:   student.ID,
		Role:     models.RoleStudent,
		Email:    student.Email,
		FullName: student.FullName,
		RollNo:   student.RollNo,
	}, now)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create access token")
	}
	if err := s.students.UpdateLastLogin(ctx, student.ID, now); err != nil {
		s.logger.Warn("failed to update student last login", zap.Error(err))
	}

	approved := student.Approved
	hours := student.TotalHours
	return &models.LoginResponse{
		AccessToken: token,
		ExpiresIn:   int64(s.config.AccessTokenExpiry.Seconds()),
		IssuedAt:    now,
		User: models.UserInfo{
			ID:         student.ID,
			Email:      student.Email,
			FullName:   student.FullName,
			Role:       models.RoleStudent,
			RollNo:     student.RollNo,
			Approved:   &approved,
			TotalHours: &hours,
		},
	}, nil
}

// ValidateToken parses and validates an access token returning the claims.
func (s *AuthService) ValidateToken(tokenString string) (*models.JWTClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &models.JWTClaims{}, func(token *jwt.Token) (interface{}, error) {
		if token.Method != jwt.SigningMethodHS256 {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(s.config.AccessTokenSecret), nil
	})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrUnauthorized.Code, appErrors.ErrUnauthorized.Status, "invalid token")
	}

	claims, ok := token.Claims.(*models.JWTClaims)
	if !ok || !token.Valid {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "invalid token claims")
	}
	if claims.Role != models.RoleAdmin && claims.Role != models.RoleStudent {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "invalid token role")
	}
	return claims, nil
}

func (s *AuthService) generateAccessToken(claims *models.JWTClaims, issuedAt time.Time) (string, error) {
	expiresAt := issuedAt.Add(s.config.AccessTokenExpiry)
	claims.RegisteredClaims = jwt.RegisteredClaims{
		Issuer:    s.config.Issuer,
		Subject:   claims.UserID,
		ExpiresAt: jwt.NewNumericDate(expiresAt),
		IssuedAt:  jwt.NewNumericDate(issuedAt),
		NotBefore: jwt.NewNumericDate(issuedAt),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(s.config.AccessTokenSecret))
}

func (s *AuthService) verifyGoogle(idToken string) (*googleauth.Identity, error) {
	if s.google == nil {
		return nil, appErrors.Clone(appErrors.ErrInternal, "google sign-in is not configured")
	}
	identity, err := s.google.Verify(idToken)
	if err != nil {
		if errors.Is(err, googleauth.ErrNotConfigured) {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "google sign-in is not configured")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInvalidCredentials.Code, appErrors.ErrInvalidCredentials.Status, "invalid google token")
	}
	if !identity.EmailVerified {
		return nil, appErrors.Clone(appErrors.ErrInvalidCredentials, "google email not verified")
	}
	if !emailInDomain(identity.Email, s.config.OrgDomain) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only organization accounts are allowed")
	}
	return identity, nil
}

func (s *AuthService) passkeyMatches(candidate string) bool {
	return subtle.ConstantTimeCompare([]byte(candidate), []byte(s.config.AdminPasskey)) == 1
}

// emailInDomain reports whether email belongs to domain. An empty domain
// accepts every address.
func emailInDomain(email, domain string) bool {
	if domain == "" {
		return true
	}
	return strings.HasSuffix(strings.ToLower(email), "@"+strings.ToLower(domain))
}
