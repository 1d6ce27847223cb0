package service

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/noah-isme/seva-hours-api/internal/models"
	appErrors "github.com/noah-isme/seva-hours-api/pkg/errors"
	"github.com/noah-isme/seva-hours-api/pkg/googleauth"
)

type mockAdminRepo struct {
	byEmail     map[string]*models.Admin
	created     []*models.Admin
	auditLogs   []*models.AuditLog
	lastLoginID string
	findErr     error
}

func (m *mockAdminRepo) FindByEmail(ctx context.Context, email string) (*models.Admin, error) {
	if m.findErr != nil {
		return nil, m.findErr
	}
	if admin, ok := m.byEmail[email]; ok {
		return admin, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockAdminRepo) Create(ctx context.Context, admin *models.Admin) error {
	admin.ID = "admin-new"
	m.created = append(m.created, admin)
	return nil
}

func (m *mockAdminRepo) UpdateLastLogin(ctx context.Context, id string, ts time.Time) error {
	m.lastLoginID = id
	return nil
}

func (m *mockAdminRepo) CreateAuditLog(ctx context.Context, log *models.AuditLog) error {
	m.auditLogs = append(m.auditLogs, log)
	return nil
}

type mockLoginStudentRepo struct {
	student     *models.Student
	created     []*models.Student
	lookedUpBy  string
	lastLoginID string
}

func (m *mockLoginStudentRepo) FindByEmail(ctx context.Context, email string) (*models.Student, error) {
	m.lookedUpBy = "email:" + email
	if m.student == nil || m.student.Email != email {
		return nil, sql.ErrNoRows
	}
	return m.student, nil
}

func (m *mockLoginStudentRepo) FindByRollNo(ctx context.Context, rollNo string) (*models.Student, error) {
	m.lookedUpBy = "roll:" + rollNo
	if m.student == nil || m.student.RollNo != rollNo {
		return nil, sql.ErrNoRows
	}
	return m.student, nil
}

func (m *mockLoginStudentRepo) Create(ctx context.Context, student *models.Student) error {
	student.ID = "student-new"
	m.created = append(m.created, student)
	return nil
}

func (m *mockLoginStudentRepo) UpdateLastLogin(ctx context.Context, id string, ts time.Time) error {
	m.lastLoginID = id
	return nil
}

type fakeGoogleVerifier struct {
	identities map[string]*googleauth.Identity
	err        error
}

func (f *fakeGoogleVerifier) Verify(idToken string) (*googleauth.Identity, error) {
	if f.err != nil {
		return nil, f.err
	}
	identity, ok := f.identities[idToken]
	if !ok {
		return nil, errors.New("token signature mismatch")
	}
	return identity, nil
}

func googleIdentities() *fakeGoogleVerifier {
	return &fakeGoogleVerifier{identities: map[string]*googleauth.Identity{
		"admin-token":      {Subject: "g1", Email: "admin@college.edu", EmailVerified: true, Name: "Admin"},
		"asha-token":       {Subject: "g2", Email: "asha@college.edu", EmailVerified: true, Name: "Asha"},
		"ravi-token":       {Subject: "g3", Email: "ravi@college.edu", EmailVerified: true, Name: "Ravi"},
		"unverified-token": {Subject: "g4", Email: "admin@college.edu", EmailVerified: false},
		"outsider-token":   {Subject: "g5", Email: "admin@gmail.com", EmailVerified: true},
		"stranger-token":   {Subject: "g6", Email: "stranger@college.edu", EmailVerified: true},
	}}
}

func hashPassword(t *testing.T, password string) string {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	require.NoError(t, err)
	return string(hash)
}

func newTestAuthService(admins *mockAdminRepo, students *mockLoginStudentRepo, cfg AuthConfig) *AuthService {
	if cfg.AccessTokenSecret == "" {
		cfg.AccessTokenSecret = "secret"
	}
	cfg.AccessTokenExpiry = time.Hour
	return NewAuthService(admins, students, validator.New(), zap.NewNop(), cfg)
}

func TestAuthServiceAdminLogin(t *testing.T) {
	admins := &mockAdminRepo{byEmail: map[string]*models.Admin{
		"admin@college.edu": {ID: "a1", Email: "admin@college.edu", FullName: "Admin", PasswordHash: hashPassword(t, "password"), Active: true},
	}}
	svc := newTestAuthService(admins, &mockLoginStudentRepo{}, AuthConfig{AdminPasskey: "key"})

	_, err := svc.AdminLogin(context.Background(), models.AdminLoginRequest{Email: "admin@college.edu", Password: "password", Passkey: "wrong"})
	assert.ErrorIs(t, err, appErrors.ErrInvalidCredentials)

	res, err := svc.AdminLogin(context.Background(), models.AdminLoginRequest{Email: "Admin@College.edu", Password: "password", Passkey: "key"})
	require.NoError(t, err)
	assert.Equal(t, models.RoleAdmin, res.User.Role)
	assert.Equal(t, int64(3600), res.ExpiresIn)
	assert.Equal(t, "a1", admins.lastLoginID)
	require.Len(t, admins.auditLogs, 1)
	assert.Equal(t, models.AuditActionLogin, admins.auditLogs[0].Action)

	claims, err := svc.ValidateToken(res.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "a1", claims.UserID)
	assert.Equal(t, models.RoleAdmin, claims.Role)
}

func TestAuthServiceAdminLoginRejectsBadPassword(t *testing.T) {
	admins := &mockAdminRepo{byEmail: map[string]*models.Admin{
		"admin@college.edu": {ID: "a1", Email: "admin@college.edu", PasswordHash: hashPassword(t, "password"), Active: true},
	}}
	svc := newTestAuthService(admins, &mockLoginStudentRepo{}, AuthConfig{})

	_, err := svc.AdminLogin(context.Background(), models.AdminLoginRequest{Email: "admin@college.edu", Password: "nottheone"})
	assert.ErrorIs(t, err, appErrors.ErrInvalidCredentials)

	admins.findErr = errors.New("db down")
	_, err = svc.AdminLogin(context.Background(), models.AdminLoginRequest{Email: "admin@college.edu", Password: "password"})
	assert.ErrorIs(t, err, appErrors.ErrInternal)
}

func TestAuthServiceAdminRegister(t *testing.T) {
	admins := &mockAdminRepo{byEmail: map[string]*models.Admin{"taken@college.edu": {ID: "a1"}}}
	svc := newTestAuthService(admins, &mockLoginStudentRepo{}, AuthConfig{AdminPasskey: "key", OrgDomain: "college.edu"})
	ctx := context.Background()

	_, err := svc.AdminRegister(ctx, models.AdminRegisterRequest{FullName: "New Admin", Email: "new@gmail.com", Password: "password", Passkey: "key"})
	assert.ErrorIs(t, err, appErrors.ErrForbidden)

	_, err = svc.AdminRegister(ctx, models.AdminRegisterRequest{FullName: "New Admin", Email: "taken@college.edu", Password: "password", Passkey: "key"})
	assert.ErrorIs(t, err, appErrors.ErrConflict)

	_, err = svc.AdminRegister(ctx, models.AdminRegisterRequest{FullName: "New Admin", Email: "new@college.edu", Password: "password", Passkey: "nope"})
	assert.ErrorIs(t, err, appErrors.ErrInvalidCredentials)

	admin, err := svc.AdminRegister(ctx, models.AdminRegisterRequest{FullName: " New Admin ", Email: "New@College.edu", Password: "password", Passkey: "key"})
	require.NoError(t, err)
	assert.Equal(t, "new@college.edu", admin.Email)
	assert.Equal(t, "New Admin", admin.FullName)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(admin.PasswordHash), []byte("password")))
}

func TestAuthServiceAdminRegisterDisabledWithoutPasskey(t *testing.T) {
	svc := newTestAuthService(&mockAdminRepo{}, &mockLoginStudentRepo{}, AuthConfig{})
	_, err := svc.AdminRegister(context.Background(), models.AdminRegisterRequest{FullName: "New Admin", Email: "new@college.edu", Password: "password", Passkey: "anything"})
	assert.ErrorIs(t, err, appErrors.ErrForbidden)
}

func TestAuthServiceStudentLogin(t *testing.T) {
	student := &models.Student{ID: "s1", RollNo: "CS23B1001", Email: "asha@college.edu", FullName: "Asha", PasswordHash: hashPassword(t, "secret1"), Approved: true, Active: true, TotalHours: 7.5}
	students := &mockLoginStudentRepo{student: student}
	svc := newTestAuthService(&mockAdminRepo{}, students, AuthConfig{})
	ctx := context.Background()

	res, err := svc.StudentLogin(ctx, models.StudentLoginRequest{Identifier: " cs23b1001 ", Password: "secret1"})
	require.NoError(t, err)
	assert.Equal(t, "roll:CS23B1001", students.lookedUpBy)
	assert.Equal(t, "CS23B1001", res.User.RollNo)
	require.NotNil(t, res.User.TotalHours)
	assert.Equal(t, 7.5, *res.User.TotalHours)

	claims, err := svc.ValidateToken(res.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, models.RoleStudent, claims.Role)
	assert.Equal(t, "CS23B1001", claims.RollNo)

	_, err = svc.StudentLogin(ctx, models.StudentLoginRequest{Identifier: "Asha@College.edu", Password: "secret1"})
	require.NoError(t, err)
	assert.Equal(t, "email:asha@college.edu", students.lookedUpBy)
}

func TestAuthServiceStudentLoginStates(t *testing.T) {
	student := &models.Student{ID: "s1", RollNo: "CS23B1001", Email: "asha@college.edu", PasswordHash: hashPassword(t, "secret1")}
	svc := newTestAuthService(&mockAdminRepo{}, &mockLoginStudentRepo{student: student}, AuthConfig{})
	ctx := context.Background()

	_, err := svc.StudentLogin(ctx, models.StudentLoginRequest{Identifier: "CS23B1001", Password: "secret1"})
	assert.ErrorIs(t, err, appErrors.ErrNotApproved)

	student.Approved = true
	_, err = svc.StudentLogin(ctx, models.StudentLoginRequest{Identifier: "CS23B1001", Password: "secret1"})
	assert.ErrorIs(t, err, appErrors.ErrInactiveAccount)

	_, err = svc.StudentLogin(ctx, models.StudentLoginRequest{Identifier: "CS23B1001", Password: "wrong"})
	assert.ErrorIs(t, err, appErrors.ErrInvalidCredentials)

	_, err = svc.StudentLogin(ctx, models.StudentLoginRequest{Identifier: "CS23B9999", Password: "secret1"})
	assert.ErrorIs(t, err, appErrors.ErrInvalidCredentials)
}

func TestAuthServiceValidateTokenRejectsForeignSecret(t *testing.T) {
	svc := newTestAuthService(&mockAdminRepo{}, &mockLoginStudentRepo{}, AuthConfig{AccessTokenSecret: "one"})
	other := newTestAuthService(&mockAdminRepo{}, &mockLoginStudentRepo{}, AuthConfig{AccessTokenSecret: "two"})

	token, err := other.generateAccessToken(&models.JWTClaims{UserID: "a1", Role: models.RoleAdmin}, time.Now().UTC())
	require.NoError(t, err)
	_, err = svc.ValidateToken(token)
	assert.ErrorIs(t, err, appErrors.ErrUnauthorized)
}

func TestAuthServiceAdminGoogleLogin(t *testing.T) {
	admins := &mockAdminRepo{byEmail: map[string]*models.Admin{
		"admin@college.edu": {ID: "a1", Email: "admin@college.edu", FullName: "Admin", Active: true},
	}}
	svc := newTestAuthService(admins, &mockLoginStudentRepo{}, AuthConfig{AdminPasskey: "key", OrgDomain: "college.edu"})
	svc.UseGoogleVerifier(googleIdentities())
	ctx := context.Background()

	res, err := svc.AdminGoogleLogin(ctx, models.AdminGoogleLoginRequest{IDToken: "admin-token", Passkey: "key"})
	require.NoError(t, err)
	assert.Equal(t, "a1", res.User.ID)
	assert.Equal(t, "a1", admins.lastLoginID)
	require.Len(t, admins.auditLogs, 1)
	assert.JSONEq(t, `{"status":"success","method":"google"}`, string(admins.auditLogs[0].NewValues))

	_, err = svc.AdminGoogleLogin(ctx, models.AdminGoogleLoginRequest{IDToken: "admin-token", Passkey: "wrong"})
	assert.ErrorIs(t, err, appErrors.ErrInvalidCredentials)

	_, err = svc.AdminGoogleLogin(ctx, models.AdminGoogleLoginRequest{IDToken: "forged", Passkey: "key"})
	assert.ErrorIs(t, err, appErrors.ErrInvalidCredentials)

	_, err = svc.AdminGoogleLogin(ctx, models.AdminGoogleLoginRequest{IDToken: "unverified-token", Passkey: "key"})
	assert.ErrorIs(t, err, appErrors.ErrInvalidCredentials)

	_, err = svc.AdminGoogleLogin(ctx, models.AdminGoogleLoginRequest{IDToken: "outsider-token", Passkey: "key"})
	assert.ErrorIs(t, err, appErrors.ErrForbidden)

	_, err = svc.AdminGoogleLogin(ctx, models.AdminGoogleLoginRequest{IDToken: "stranger-token", Passkey: "key"})
	assert.ErrorIs(t, err, appErrors.ErrNotFound)

	_, err = svc.AdminGoogleLogin(ctx, models.AdminGoogleLoginRequest{Passkey: "key"})
	assert.ErrorIs(t, err, appErrors.ErrValidation)
}

func TestAuthServiceGoogleLoginNotConfigured(t *testing.T) {
	svc := newTestAuthService(&mockAdminRepo{}, &mockLoginStudentRepo{}, AuthConfig{})
	_, err := svc.StudentGoogleLogin(context.Background(), models.StudentGoogleLoginRequest{IDToken: "asha-token"})
	assert.ErrorIs(t, err, appErrors.ErrInternal)

	svc.UseGoogleVerifier(&fakeGoogleVerifier{err: googleauth.ErrNotConfigured})
	_, err = svc.AdminGoogleLogin(context.Background(), models.AdminGoogleLoginRequest{IDToken: "admin-token"})
	assert.ErrorIs(t, err, appErrors.ErrInternal)
}

func TestAuthServiceStudentGoogleLoginExistingStudent(t *testing.T) {
	student := &models.Student{ID: "s1", RollNo: "CS23B1001", Email: "asha@college.edu", FullName: "Asha", Approved: true, Active: true}
	students := &mockLoginStudentRepo{student: student}
	svc := newTestAuthService(&mockAdminRepo{}, students, AuthConfig{OrgDomain: "college.edu"})
	svc.UseGoogleVerifier(googleIdentities())

	res, err := svc.StudentGoogleLogin(context.Background(), models.StudentGoogleLoginRequest{IDToken: "asha-token"})
	require.NoError(t, err)
	assert.Equal(t, "CS23B1001", res.User.RollNo)
	assert.Equal(t, "s1", students.lastLoginID)
	assert.Empty(t, students.created)

	student.Approved = false
	_, err = svc.StudentGoogleLogin(context.Background(), models.StudentGoogleLoginRequest{IDToken: "asha-token"})
	assert.ErrorIs(t, err, appErrors.ErrNotApproved)
}

func TestAuthServiceStudentGoogleLoginFirstSignIn(t *testing.T) {
	existing := &models.Student{ID: "s1", RollNo: "CS23B1001", Email: "asha@college.edu", Approved: true, Active: true}
	students := &mockLoginStudentRepo{student: existing}
	svc := newTestAuthService(&mockAdminRepo{}, students, AuthConfig{OrgDomain: "college.edu"})
	svc.UseGoogleVerifier(googleIdentities())
	ctx := context.Background()

	_, err := svc.StudentGoogleLogin(ctx, models.StudentGoogleLoginRequest{IDToken: "ravi-token"})
	assert.ErrorIs(t, err, appErrors.ErrValidation)

	_, err = svc.StudentGoogleLogin(ctx, models.StudentGoogleLoginRequest{IDToken: "ravi-token", RollNo: "not a roll"})
	assert.ErrorIs(t, err, appErrors.ErrValidation)

	_, err = svc.StudentGoogleLogin(ctx, models.StudentGoogleLoginRequest{IDToken: "ravi-token", RollNo: "cs23b1001"})
	assert.ErrorIs(t, err, appErrors.ErrConflict)
	assert.Empty(t, students.created)

	_, err = svc.StudentGoogleLogin(ctx, models.StudentGoogleLoginRequest{IDToken: "ravi-token", RollNo: " cs23b1002 "})
	assert.ErrorIs(t, err, appErrors.ErrNotApproved)
	require.Len(t, students.created, 1)
	created := students.created[0]
	assert.Equal(t, "CS23B1002", created.RollNo)
	assert.Equal(t, "ravi@college.edu", created.Email)
	assert.Equal(t, "Ravi", created.FullName)
	assert.True(t, created.Active)
	assert.False(t, created.Approved)
	assert.NotEmpty(t, created.PasswordHash)
}
