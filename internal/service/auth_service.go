package service

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"leftuber-api/internal/models"
	"leftuber-api/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const minPhoneLength = 7

// AuthOptions tunes the OTP gate
type AuthOptions struct {
	Cooldown    time.Duration
	MaxAttempts int
	// ExposeCode returns the issued code to the caller; never set in production
	ExposeCode bool
}

// AuthService issues OTP codes and exchanges them for session tokens
type AuthService struct {
	users          UserStore
	otps           OTPStore
	limiter        OTPLimiter
	tokens         TokenIssuer
	eventPublisher EventPublisher
	opts           AuthOptions
	now            func() time.Time
	logger         *zap.Logger
}

// DefaultMaxAttempts replaces a non-positive AuthOptions.MaxAttempts
const DefaultMaxAttempts = 5

// NewAuthService creates a new auth service
func NewAuthService(
	users UserStore,
	otps OTPStore,
	limiter OTPLimiter,
	tokens TokenIssuer,
	eventPublisher EventPublisher,
	opts AuthOptions,
) *AuthService {
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = DefaultMaxAttempts
	}
	return &AuthService{
		users:          users,
		otps:           otps,
		limiter:        limiter,
		tokens:         tokens,
		eventPublisher: eventPublisher,
		opts:           opts,
		now:            time.Now,
		logger:         util.GetLogger(),
	}
}

// SendCodeRequest asks for a login code
type SendCodeRequest struct {
	Phone string `json:"phone" binding:"required"`
}

// VerifyCodeRequest exchanges a code for a session
type VerifyCodeRequest struct {
	Phone string `json:"phone" binding:"required"`
	Code  string `json:"otp" binding:"required"`
}

// CompleteProfileRequest sets the caller's role and display name
type CompleteProfileRequest struct {
	Role string `json:"role" binding:"required"`
	Name string `json:"name"`
}

// CodeIssued is the outcome of RequestCode
type CodeIssued struct {
	Phone     string    `json:"phone"`
	ExpiresAt time.Time `json:"expiresAt"`
	Code      string    `json:"otp,omitempty"`
}

// Session is a signed credential with the user it belongs to
type Session struct {
	Token     string       `json:"token"`
	User      *models.User `json:"user"`
	IsNewUser bool         `json:"isNewUser"`
}

// releaseCooldown frees the resend slot when no code was issued
func (s *AuthService) releaseCooldown(ctx context.Context, phone string) {
	if err := s.limiter.ReleaseCooldown(ctx, phone); err != nil {
		s.logger.Warn("Failed to release OTP cooldown", zap.String("phone", phone), zap.Error(err))
	}
}

// RequestCode issues a fresh code for phone
func (s *AuthService) RequestCode(ctx context.Context, phone string) (*CodeIssued, error) {
	ctx, span := util.StartSpan(ctx, "AuthService.RequestCode")
	defer span.End()

	phone = strings.TrimSpace(phone)
	if len(phone) < minPhoneLength {
		return nil, fmt.Errorf("%w: valid phone number required", models.ErrValidation)
	}

	ok, err := s.limiter.AcquireCooldown(ctx, phone, s.opts.Cooldown)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: wait before requesting another code", models.ErrRateLimited)
	}

	code, err := generateCode()
	if err != nil {
		s.releaseCooldown(ctx, phone)
		return nil, fmt.Errorf("failed to generate otp: %w", err)
	}

	otp := &models.OtpCode{
		ID:        uuid.New().String(),
		Phone:     phone,
		Code:      code,
		ExpiresAt: s.now().Add(models.OTPValidity),
	}
	if err := s.otps.CreateOTP(ctx, otp); err != nil {
		s.releaseCooldown(ctx, phone)
		return nil, fmt.Errorf("failed to store otp: %w", err)
	}

	event := &models.OTPRequestedEvent{
		BaseEvent: newBaseEvent(models.EventTypeOTPRequested),
		Phone:     phone,
		Code:      code,
		ExpiresAt: otp.ExpiresAt,
	}
	if err := s.eventPublisher.PublishOTPRequested(ctx, event); err != nil {
		s.logger.Error("Failed to publish OTPRequested event", zap.Error(err))
	}

	util.OTPRequestedTotal.Inc()
	s.logger.Info("OTP issued", zap.String("phone", phone), zap.Time("expires_at", otp.ExpiresAt))

	issued := &CodeIssued{Phone: phone, ExpiresAt: otp.ExpiresAt}
	if s.opts.ExposeCode {
		issued.Code = code
	}
	return issued, nil
}

// VerifyCode consumes a code and returns a session, creating the user on
// first login
func (s *AuthService) VerifyCode(ctx context.Context, phone, code string) (*Session, error) {
	ctx, span := util.StartSpan(ctx, "AuthService.VerifyCode")
	defer span.End()

	phone = strings.TrimSpace(phone)
	code = strings.TrimSpace(code)
	if phone == "" || code == "" {
		return nil, fmt.Errorf("%w: phone and otp required", models.ErrValidation)
	}

	attempts, err := s.limiter.Attempts(ctx, phone)
	if err != nil {
		return nil, err
	}
	if attempts >= s.opts.MaxAttempts {
		util.OTPVerificationsTotal.WithLabelValues("throttled").Inc()
		return nil, fmt.Errorf("%w: too many failed attempts", models.ErrRateLimited)
	}

	if _, err := s.otps.ConsumeOTP(ctx, phone, code, s.now()); err != nil {
		if !errors.Is(err, models.ErrNotFound) {
			return nil, err
		}
		if _, incErr := s.limiter.IncrementAttempts(ctx, phone, models.OTPValidity); incErr != nil {
			s.logger.Error("Failed to count otp attempt", zap.Error(incErr))
		}
		util.OTPVerificationsTotal.WithLabelValues("invalid").Inc()
		return nil, models.ErrInvalidOTP
	}

	user, isNew, err := s.findOrCreateUser(ctx, phone)
	if err != nil {
		return nil, err
	}

	if err := s.limiter.ResetAttempts(ctx, phone); err != nil {
		s.logger.Warn("Failed to reset otp attempts", zap.Error(err))
	}

	token, err := s.tokens.Issue(user)
	if err != nil {
		return nil, err
	}

	util.OTPVerificationsTotal.WithLabelValues("ok").Inc()
	s.logger.Info("User logged in", zap.String("user_id", user.ID), zap.Bool("new_user", isNew))

	return &Session{Token: token, User: user, IsNewUser: isNew}, nil
}

func (s *AuthService) findOrCreateUser(ctx context.Context, phone string) (*models.User, bool, error) {
	user, err := s.users.GetUserByPhone(ctx, phone)
	if err == nil {
		return user, false, nil
	}
	if !errors.Is(err, models.ErrNotFound) {
		return nil, false, err
	}

	suffix := phone
	if len(suffix) > 4 {
		suffix = suffix[len(suffix)-4:]
	}
	user = &models.User{
		ID:    uuid.New().String(),
		Phone: phone,
		Name:  "User" + suffix,
		Role:  models.RoleBuyer,
	}
	err = s.users.CreateUser(ctx, user)
	if errors.Is(err, models.ErrConflict) {
		// lost the race against a concurrent first login
		user, err = s.users.GetUserByPhone(ctx, phone)
		return user, false, err
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to create user: %w", err)
	}

	util.UsersRegisteredTotal.Inc()
	return user, true, nil
}

// CompleteProfile sets the caller's role and name and reissues the token
// so it carries the new role
func (s *AuthService) CompleteProfile(ctx context.Context, requester models.Identity, role, name string) (*Session, error) {
	ctx, span := util.StartSpan(ctx, "AuthService.CompleteProfile")
	defer span.End()

	r := models.Role(strings.ToUpper(strings.TrimSpace(role)))
	if !r.Valid() {
		return nil, fmt.Errorf("%w: invalid role %q", models.ErrValidation, role)
	}

	user, err := s.users.GetUserByID(ctx, requester.UserID)
	if err != nil {
		return nil, err
	}

	patch := models.UserPatch{
		Role:             models.SetTo(r),
		ProfileCompleted: models.SetTo(true),
	}
	name = strings.TrimSpace(name)
	switch {
	case name != "":
		patch.Name = models.SetTo(name)
	case !user.ProfileCompleted:
		return nil, fmt.Errorf("%w: name required", models.ErrValidation)
	}

	user, err = s.users.UpdateUser(ctx, user.ID, patch)
	if err != nil {
		return nil, err
	}

	token, err := s.tokens.Issue(user)
	if err != nil {
		return nil, err
	}

	s.logger.Info("Profile completed", zap.String("user_id", user.ID), zap.String("role", string(user.Role)))
	return &Session{Token: token, User: user}, nil
}

// generateCode returns a uniformly random zero-padded code of OTPLength digits
func generateCode() (string, error) {
	max := big.NewInt(1)
	for i := 0; i < models.OTPLength; i++ {
		max.Mul(max, big.NewInt(10))
	}
	n, err := rand.Int(rand.Reader, max)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%0*d", models.OTPLength, n.Int64()), nil
}
