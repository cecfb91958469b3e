// Package auth implements login, token issuance and TOTP enrolment.
package auth

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
	"golang.org/x/crypto/bcrypt"

	"propvest/pkg/domain"
	"propvest/pkg/errors"
	"propvest/pkg/logger"
)

const (
	ActionLogin       = "auth.login"
	ActionTOTPEnroll  = "auth.totp.enroll"
	ActionTOTPConfirm = "auth.totp.confirm"
)

type Repository interface {
	FindByID(ctx context.Context, id int64) (*domain.User, error)
	FindByEmail(ctx context.Context, email string) (*domain.User, error)
	SetTOTP(ctx context.Context, id int64, secret *string, enabled bool) error
	UpdateLastLogin(ctx context.Context, id int64, at time.Time) error
}

// AuditLogger records login attempts.
type AuditLogger interface {
	Log(ctx context.Context, entry *domain.SecurityLog)
}

// Service provides login, token issuance and TOTP second factor.
type Service struct {
	repo      Repository
	audit     AuditLogger
	jwtSecret string
	jwtExpiry time.Duration
	issuer    string
	logger    logger.Logger
	now       func() time.Time
}

func NewService(repo Repository, audit AuditLogger, jwtSecret string, jwtExpiry time.Duration, issuer string, log logger.Logger) *Service {
	return &Service{
		repo:      repo,
		audit:     audit,
		jwtSecret: jwtSecret,
		jwtExpiry: jwtExpiry,
		issuer:    issuer,
		logger:    log,
		now:       time.Now,
	}
}

// LoginRequest captures credentials for login. TOTPCode is required once the
// user has confirmed TOTP enrolment.
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
	TOTPCode string `json:"totp_code" validate:"omitempty,len=6,numeric"`
}

// ClientInfo identifies the caller for the security log.
type ClientInfo struct {
	IPAddress string
	UserAgent string
}

// TokenResponse is returned on successful login.
type TokenResponse struct {
	AccessToken string       `json:"access_token"`
	ExpiresAt   time.Time    `json:"expires_at"`
	User        *domain.User `json:"user"`
}

// Login authenticates a user and returns a signed token. Every attempt is
// written to the security log.
func (s *Service) Login(ctx context.Context, req *LoginRequest, client ClientInfo) (*TokenResponse, error) {
	user, err := s.authenticate(ctx, req)
	s.recordLogin(ctx, req.Email, user, client, err)
	if err != nil {
		return nil, err
	}

	now := s.now()
	if err := s.repo.UpdateLastLogin(ctx, user.ID, now.UTC()); err != nil {
		s.logger.Warn("Last login not recorded", map[string]interface{}{
			"user_id": user.ID,
			"error":   err.Error(),
		})
	}
	user.LastLogin = &now
	user.TOTPSecret = nil

	return s.issueToken(user)
}

func (s *Service) authenticate(ctx context.Context, req *LoginRequest) (*domain.User, error) {
	user, err := s.repo.FindByEmail(ctx, strings.TrimSpace(req.Email))
	if err != nil {
		if errors.Is(err, errors.ErrUserNotFound) {
			return nil, errors.ErrInvalidCredentials
		}
		return nil, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		return nil, errors.ErrInvalidCredentials
	}
	if !user.IsActive {
		return user, errors.ErrUserInactive
	}

	if user.IsTOTPEnabled {
		if req.TOTPCode == "" {
			return user, errors.ErrTOTPRequired
		}
		if user.TOTPSecret == nil || !totp.Validate(req.TOTPCode, *user.TOTPSecret) {
			return user, errors.ErrInvalidTOTP
		}
	}
	return user, nil
}

func (s *Service) recordLogin(ctx context.Context, email string, user *domain.User, client ClientInfo, err error) {
	entry := &domain.SecurityLog{
		Action:    ActionLogin,
		Resource:  "user",
		IPAddress: client.IPAddress,
		UserAgent: client.UserAgent,
		Status:    200,
		Details:   domain.Metadata{"email": strings.ToLower(strings.TrimSpace(email))},
	}
	if user != nil {
		id := user.ID
		ref := strconv.FormatInt(id, 10)
		entry.UserID = &id
		entry.ResourceID = &ref
	}
	if err != nil {
		entry.Status = 401
		entry.Details["reason"] = err.Error()
	}
	s.audit.Log(ctx, entry)
}

// Claims is the identity carried by an access token.
type Claims struct {
	UserID int64
	Email  string
	Role   domain.UserRole
}

func (s *Service) issueToken(user *domain.User) (*TokenResponse, error) {
	now := s.now()
	expiresAt := now.Add(s.jwtExpiry)

	claims := jwt.MapClaims{
		"user_id": strconv.FormatInt(user.ID, 10),
		"email":   user.Email,
		"role":    string(user.Role),
		"exp":     expiresAt.Unix(),
		"iat":     now.Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	accessToken, err := token.SignedString([]byte(s.jwtSecret))
	if err != nil {
		return nil, fmt.Errorf("failed to sign token: %w", err)
	}

	return &TokenResponse{
		AccessToken: accessToken,
		ExpiresAt:   expiresAt,
		User:        user,
	}, nil
}

// ParseToken validates an HS256 token and returns its claims.
func ParseToken(tokenString, secret string) (*Claims, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return []byte(secret), nil
	}, jwt.WithExpirationRequired())
	if err != nil || !token.Valid {
		return nil, errors.ErrAccessDenied
	}

	mc, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, errors.ErrAccessDenied
	}
	raw, _ := mc["user_id"].(string)
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return nil, errors.ErrAccessDenied
	}
	claims := &Claims{UserID: id}
	claims.Email, _ = mc["email"].(string)
	if role, ok := mc["role"].(string); ok {
		claims.Role = domain.UserRole(role)
	}
	return claims, nil
}

// Enrollment is shown once so the user can add the secret to an
// authenticator app.
type Enrollment struct {
	Secret string `json:"secret"`
	URL    string `json:"otpauth_url"`
}

// EnrollTOTP stores a fresh secret that stays inactive until ConfirmTOTP.
func (s *Service) EnrollTOTP(ctx context.Context, userID int64) (*Enrollment, error) {
	user, err := s.repo.FindByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user.IsTOTPEnabled {
		return nil, errors.NewValidationError("totp", "Two-factor authentication is already enabled")
	}

	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      s.issuer,
		AccountName: user.Email,
		Period:      30,
		SecretSize:  20,
		Algorithm:   otp.AlgorithmSHA1,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to generate TOTP secret: %w", err)
	}

	secret := key.Secret()
	if err := s.repo.SetTOTP(ctx, userID, &secret, false); err != nil {
		return nil, err
	}
	s.logger.Info("TOTP enrolment started", map[string]interface{}{"user_id": userID})
	return &Enrollment{Secret: secret, URL: key.URL()}, nil
}

// ConfirmTOTP turns the second factor on once the user proves possession of
// the enrolled secret.
func (s *Service) ConfirmTOTP(ctx context.Context, userID int64, code string) error {
	user, err := s.repo.FindByID(ctx, userID)
	if err != nil {
		return err
	}
	if user.TOTPSecret == nil {
		return errors.NewValidationError("totp", "Start enrolment first")
	}
	if !totp.Validate(code, *user.TOTPSecret) {
		return errors.ErrInvalidTOTP
	}
	if err := s.repo.SetTOTP(ctx, userID, user.TOTPSecret, true); err != nil {
		return err
	}
	s.logger.Info("TOTP enabled", map[string]interface{}{"user_id": userID})
	return nil
}

// DisableTOTP clears the second factor after checking a current code.
func (s *Service) DisableTOTP(ctx context.Context, userID int64, code string) error {
	user, err := s.repo.FindByID(ctx, userID)
	if err != nil {
		return err
	}
	if !user.IsTOTPEnabled || user.TOTPSecret == nil {
		return nil
	}
	if !totp.Validate(code, *user.TOTPSecret) {
		return errors.ErrInvalidTOTP
	}
	return s.repo.SetTOTP(ctx, userID, nil, false)
}
