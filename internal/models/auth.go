package models

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// AdminLoginRequest holds credentials for authenticating an administrator.
// Passkey is checked only when the organisation configures one.
type AdminLoginRequest struct {
	Email     string `json:"email" validate:"required,email"`
	Password  string `json:"password" validate:"required,min=6"`
	Passkey   string `json:"pass_key"`
	IP        string `json:"-"`
	UserAgent string `json:"-"`
}

// AdminRegisterRequest creates a new administrator account.
type AdminRegisterRequest struct {
	FullName string `json:"full_name" validate:"required,min=2,max=100"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=6"`
	Passkey  string `json:"pass_key" validate:"required"`
}

// StudentLoginRequest authenticates a student by roll number or email.
type StudentLoginRequest struct {
	Identifier string `json:"roll_no" validate:"required"`
	Password   string `json:"password" validate:"required"`
	IP         string `json:"-"`
	UserAgent  string `json:"-"`
}

// AdminGoogleLoginRequest signs an existing administrator in with a Google
// ID token.
type AdminGoogleLoginRequest struct {
	IDToken   string `json:"id_token" validate:"required"`
	Passkey   string `json:"pass_key"`
	IP        string `json:"-"`
	UserAgent string `json:"-"`
}

// StudentGoogleLoginRequest signs a student in with a Google ID token. RollNo
// is required only when no student exists for the token's email.
type StudentGoogleLoginRequest struct {
	IDToken string `json:"id_token" validate:"required"`
	RollNo  string `json:"roll_no"`
}

// LoginResponse returns the issued token and user info.
type LoginResponse struct {
	AccessToken string    `json:"access_token"`
	ExpiresIn   int64     `json:"expires_in"`
	User        UserInfo  `json:"user"`
	IssuedAt    time.Time `json:"issued_at"`
}

// UserInfo describes the authenticated user in responses.
type UserInfo struct {
	ID         string   `json:"id"`
	Email      string   `json:"email"`
	FullName   string   `json:"full_name"`
	Role       UserRole `json:"role"`
	RollNo     string   `json:"roll_no,omitempty"`
	Approved   *bool    `json:"approved,omitempty"`
	TotalHours *float64 `json:"total_hours,omitempty"`
}

// JWTClaims represents the JWT payload for access tokens.
type JWTClaims struct {
	UserID   string   `json:"user_id"`
	Role     UserRole `json:"role"`
	Email    string   `json:"email"`
	FullName string   `json:"full_name"`
	RollNo   string   `json:"roll_no,omitempty"`
	jwt.RegisteredClaims
}
