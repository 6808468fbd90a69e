package service

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/noah-isme/pg-defence-api/internal/authz"
	"github.com/noah-isme/pg-defence-api/internal/models"
	appErrors "github.com/noah-isme/pg-defence-api/pkg/errors"
	"github.com/noah-isme/pg-defence-api/pkg/mailer"
)

type authUserRepository interface {
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	FindByID(ctx context.Context, id string) (*models.User, error)
	UpdatePassword(ctx context.Context, id, passwordHash string, updatedAt time.Time) error
}

type authProfileRepository interface {
	FindStudentByUserID(ctx context.Context, userID string) (*models.StudentDetail, error)
	FindLecturerByUserID(ctx context.Context, userID string) (*models.LecturerDetail, error)
}

// AuthConfig defines configuration for authentication flows.
type AuthConfig struct {
	Secret        string
	Issuer        string
	SessionExpiry time.Duration
	ResetExpiry   time.Duration
	FrontendURL   string
}

// AuthService provides authentication use cases.
type AuthService struct {
	repo      authUserRepository
	profiles  authProfileRepository
	policy    *authz.Policy
	mail      mailer.Mailer
	validator *validator.Validate
	logger    *zap.Logger
	config    AuthConfig
	now       func() time.Time
}

// NewAuthService constructs an AuthService instance. profiles and mail may be nil.
func NewAuthService(repo authUserRepository, profiles authProfileRepository, policy *authz.Policy, mail mailer.Mailer, validate *validator.Validate, logger *zap.Logger, config AuthConfig) *AuthService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	if policy == nil {
		policy = authz.DefaultPolicy()
	}
	if config.SessionExpiry <= 0 {
		config.SessionExpiry = 7 * 24 * time.Hour
	}
	if config.ResetExpiry <= 0 {
		config.ResetExpiry = time.Hour
	}
	return &AuthService{repo: repo, profiles: profiles, policy: policy, mail: mail, validator: validate, logger: logger, config: config, now: time.Now}
}

// Login authenticates a user and returns a session token.
func (s *AuthService) Login(ctx context.Context, req models.LoginRequest) (*models.LoginResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid login payload")
	}

	user, err := s.repo.FindByEmail(ctx, strings.TrimSpace(req.Email))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrInvalidCredentials, "invalid email or password")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to fetch user")
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		return nil, appErrors.Clone(appErrors.ErrInvalidCredentials, "invalid email or password")
	}

	issuedAt := s.now().UTC()
	token, err := s.issue(user, models.TokenPurposeSession, "", issuedAt, s.config.SessionExpiry)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create access token")
	}

	s.logger.Info("user logged in", zap.String("user_id", user.ID), zap.String("ip", req.IP))

	return &models.LoginResponse{
		AccessToken: token,
		ExpiresIn:   int64(s.config.SessionExpiry.Seconds()),
		IssuedAt:    issuedAt,
		User:        s.userInfo(ctx, user),
	}, nil
}

// Me returns the profile of the authenticated identity.
func (s *AuthService) Me(ctx context.Context, userID string) (*models.UserInfo, error) {
	user, err := s.repo.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "user not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load user")
	}
	info := s.userInfo(ctx, user)
	return &info, nil
}

// ChangePassword changes the password for the given user ID.
func (s *AuthService) ChangePassword(ctx context.Context, userID string, req models.ChangePasswordRequest) error {
	if err := s.validator.Struct(req); err != nil {
		return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid change password payload")
	}

	user, err := s.repo.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "user not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load user")
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.OldPassword)); err != nil {
		return appErrors.Clone(appErrors.ErrForbidden, "old password does not match")
	}

	return s.setPassword(ctx, userID, req.NewPassword)
}

// ForgotPassword emails a one hour reset link. Unknown emails succeed silently so the
// response does not reveal which addresses exist.
func (s *AuthService) ForgotPassword(ctx context.Context, req models.ForgotPasswordRequest) error {
	if err := s.validator.Struct(req); err != nil {
		return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid forgot password payload")
	}

	user, err := s.repo.FindByEmail(ctx, strings.TrimSpace(req.Email))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			s.logger.Info("password reset requested for unknown email")
			return nil
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to fetch user")
	}

	token, err := s.issue(user, models.TokenPurposePasswordReset, passwordStamp(user.PasswordHash), s.now().UTC(), s.config.ResetExpiry)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create reset token")
	}

	if s.mail == nil {
		s.logger.Warn("no mailer configured, reset email not sent", zap.String("user_id", user.ID))
		return nil
	}
	link := fmt.Sprintf("%s/reset-password?token=%s", strings.TrimRight(s.config.FrontendURL, "/"), url.QueryEscape(token))
	msg := mailer.Message{
		To:      user.Email,
		Subject: "Reset your password",
		HTML: fmt.Sprintf(`<p>A password reset was requested for your account.</p>
<p><a href="%s">Choose a new password</a>. The link expires in %s.</p>
<p>If you did not request this you can ignore this email.</p>`, link, s.config.ResetExpiry),
	}
	if err := s.mail.Send(ctx, msg); err != nil {
		s.logger.Warn("failed to send reset email", zap.String("user_id", user.ID), zap.Error(err))
	}
	return nil
}

// ResetPassword completes the reset flow. A token stops working once the password changes.
func (s *AuthService) ResetPassword(ctx context.Context, req models.ResetPasswordRequest) error {
	if err := s.validator.Struct(req); err != nil {
		return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid reset password payload")
	}

	claims, err := s.ValidateToken(req.Token, models.TokenPurposePasswordReset)
	if err != nil {
		return err
	}

	user, err := s.repo.FindByID(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrUnauthenticated, "invalid reset token")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load user")
	}
	if claims.Stamp != passwordStamp(user.PasswordHash) {
		return appErrors.Clone(appErrors.ErrUnauthenticated, "reset token already used")
	}

	return s.setPassword(ctx, user.ID, req.NewPassword)
}

// ValidateToken parses and validates a token issued for purpose.
func (s *AuthService) ValidateToken(tokenString, purpose string) (*models.JWTClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &models.JWTClaims{}, func(token *jwt.Token) (interface{}, error) {
		if token.Method != jwt.SigningMethodHS256 {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(s.config.Secret), nil
	}, jwt.WithTimeFunc(s.now), jwt.WithExpirationRequired())
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrUnauthenticated.Code, appErrors.ErrUnauthenticated.Status, "invalid token")
	}

	claims, ok := token.Claims.(*models.JWTClaims)
	if !ok || !token.Valid {
		return nil, appErrors.Clone(appErrors.ErrUnauthenticated, "invalid token claims")
	}
	if claims.Purpose != purpose {
		return nil, appErrors.Clone(appErrors.ErrUnauthenticated, "token not valid for this use")
	}
	if claims.UserID == "" {
		return nil, appErrors.Clone(appErrors.ErrUnauthenticated, "token has no subject")
	}
	return claims, nil
}

// HashPassword returns a bcrypt hash.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

func (s *AuthService) setPassword(ctx context.Context, userID, password string) error {
	newHash, err := HashPassword(password)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to hash password")
	}
	if err := s.repo.UpdatePassword(ctx, userID, newHash, s.now().UTC()); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "user not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update password")
	}
	s.logger.Info("password updated", zap.String("user_id", userID))
	return nil
}

func (s *AuthService) issue(user *models.User, purpose, stamp string, issuedAt time.Time, ttl time.Duration) (string, error) {
	roles := user.RoleList()
	claims := &models.JWTClaims{
		UserID:  user.ID,
		Email:   user.Email,
		Roles:   roles,
		Purpose: purpose,
		Stamp:   stamp,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.config.Issuer,
			Subject:   user.ID,
			ExpiresAt: jwt.NewNumericDate(issuedAt.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			NotBefore: jwt.NewNumericDate(issuedAt),
		},
	}
	if purpose == models.TokenPurposeSession {
		claims.Permissions = permissionStrings(s.policy.Resolve(roles))
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(s.config.Secret))
}

func (s *AuthService) userInfo(ctx context.Context, user *models.User) models.UserInfo {
	roles := user.RoleList()
	info := models.UserInfo{
		ID:            user.ID,
		Email:         user.Email,
		Roles:         roles,
		Permissions:   permissionStrings(s.policy.Resolve(roles)),
		IsPanelMember: user.IsPanelMember,
	}
	if s.profiles == nil {
		return info
	}
	if student, err := s.profiles.FindStudentByUserID(ctx, user.ID); err == nil {
		info.StudentID = student.ID
		info.DisplayName = student.FullName()
	} else if !errors.Is(err, sql.ErrNoRows) {
		s.logger.Warn("failed to load student profile", zap.String("user_id", user.ID), zap.Error(err))
	}
	if lecturer, err := s.profiles.FindLecturerByUserID(ctx, user.ID); err == nil {
		info.LecturerID = lecturer.ID
		info.DisplayName = lecturer.DisplayName()
	} else if !errors.Is(err, sql.ErrNoRows) {
		s.logger.Warn("failed to load lecturer profile", zap.String("user_id", user.ID), zap.Error(err))
	}
	return info
}

func permissionStrings(perms []authz.Permission) []string {
	out := make([]string, len(perms))
	for i, p := range perms {
		out[i] = string(p)
	}
	return out
}

func passwordStamp(hash string) string {
	sum := sha256.Sum256([]byte(hash))
	return hex.EncodeToString(sum[:8])
}
