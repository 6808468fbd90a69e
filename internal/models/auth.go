package models

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Token purposes distinguish session tokens from single-use reset tokens.
const (
	TokenPurposeSession       = "session"
	TokenPurposePasswordReset = "password_reset"
)

// LoginRequest holds credentials for authenticating a user.
type LoginRequest struct {
	Email     string `json:"email" validate:"required,email"`
	Password  string `json:"password" validate:"required"`
	IP        string `json:"-"`
	UserAgent string `json:"-"`
}

// LoginResponse returns the issued token and user info.
type LoginResponse struct {
	AccessToken string    `json:"access_token"`
	ExpiresIn   int64     `json:"expires_in"`
	User        UserInfo  `json:"user"`
	IssuedAt    time.Time `json:"issued_at"`
}

// ChangePasswordRequest payload for updating password.
type ChangePasswordRequest struct {
	OldPassword string `json:"old_password" validate:"required"`
	NewPassword string `json:"new_password" validate:"required,min=6"`
}

// ForgotPasswordRequest payload for initiating the reset flow.
type ForgotPasswordRequest struct {
	Email string `json:"email" validate:"required,email"`
}

// ResetPasswordRequest completes the reset flow.
type ResetPasswordRequest struct {
	Token       string `json:"token" validate:"required"`
	NewPassword string `json:"new_password" validate:"required,min=6"`
}

// UserInfo describes the authenticated user in responses.
type UserInfo struct {
	ID            string   `json:"id"`
	Email         string   `json:"email"`
	Roles         []Role   `json:"roles"`
	Permissions   []string `json:"permissions,omitempty"`
	IsPanelMember bool     `json:"is_panel_member"`
	DisplayName   string   `json:"display_name,omitempty"`
	StudentID     string   `json:"student_id,omitempty"`
	LecturerID    string   `json:"lecturer_id,omitempty"`
}

// JWTClaims is the token payload. Permissions are informational; the gate recomputes
// them from Roles on every request. Stamp binds reset tokens to the password hash they
// were issued against.
type JWTClaims struct {
	UserID      string   `json:"user_id"`
	Email       string   `json:"email"`
	Roles       []Role   `json:"roles"`
	Permissions []string `json:"permissions,omitempty"`
	Purpose     string   `json:"purpose"`
	Stamp       string   `json:"stamp,omitempty"`
	jwt.RegisteredClaims
}
