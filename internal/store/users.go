package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"leftuber-api/internal/models"
)

// CreateUser inserts a user. A taken phone number yields models.ErrConflict.
func (s *Store) CreateUser(ctx context.Context, u *models.User) error {
	query := `
		INSERT INTO users (id, phone, name, role, push_token, profile_completed)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at, updated_at`

	err := s.db.QueryRowxContext(ctx, query,
		u.ID, u.Phone, u.Name, u.Role, u.PushToken, u.ProfileCompleted,
	).Scan(&u.CreatedAt, &u.UpdatedAt)
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: phone %s already registered", models.ErrConflict, u.Phone)
	}
	return err
}

// GetUserByID retrieves a user by ID
func (s *Store) GetUserByID(ctx context.Context, id string) (*models.User, error) {
	return s.getUser(ctx, "SELECT * FROM users WHERE id = $1", id)
}

// GetUserByPhone retrieves a user by phone number
func (s *Store) GetUserByPhone(ctx context.Context, phone string) (*models.User, error) {
	return s.getUser(ctx, "SELECT * FROM users WHERE phone = $1", phone)
}

func (s *Store) getUser(ctx context.Context, query string, arg string) (*models.User, error) {
	var u models.User
	err := s.db.GetContext(ctx, &u, query, arg)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: user %s", models.ErrNotFound, arg)
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// UpdateUser writes only the fields set in patch
func (s *Store) UpdateUser(ctx context.Context, id string, patch models.UserPatch) (*models.User, error) {
	var b setBuilder
	if patch.Name.Set {
		b.add("name", patch.Name.Value)
	}
	if patch.Role.Set {
		b.add("role", patch.Role.Value)
	}
	if patch.PushToken.Set {
		b.add("push_token", patch.PushToken.Value)
	}
	if patch.ProfileCompleted.Set {
		b.add("profile_completed", patch.ProfileCompleted.Value)
	}
	if b.empty() {
		return s.GetUserByID(ctx, id)
	}

	query, args := b.build("users", id)
	var u models.User
	err := s.db.GetContext(ctx, &u, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: user %s", models.ErrNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// CreateOTP stores a freshly issued code
func (s *Store) CreateOTP(ctx context.Context, otp *models.OtpCode) error {
	return s.db.QueryRowxContext(ctx, `
		INSERT INTO otp_codes (id, phone, code, expires_at)
		VALUES ($1, $2, $3, $4)
		RETURNING created_at`,
		otp.ID, otp.Phone, otp.Code, otp.ExpiresAt,
	).Scan(&otp.CreatedAt)
}

// ConsumeOTP marks the newest unused, unexpired code matching phone and
// code as used and returns it. Selection and marking are one statement,
// so a code is consumed at most once even under concurrent verifies.
func (s *Store) ConsumeOTP(ctx context.Context, phone, code string, now time.Time) (*models.OtpCode, error) {
	var otp models.OtpCode
	err := s.db.GetContext(ctx, &otp, `
		UPDATE otp_codes SET used = TRUE
		WHERE id = (
			SELECT id FROM otp_codes
			WHERE phone = $1 AND code = $2 AND used = FALSE AND expires_at > $3
			ORDER BY created_at DESC
			LIMIT 1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING *`,
		phone, code, now)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: otp for %s", models.ErrNotFound, phone)
	}
	if err != nil {
		return nil, err
	}
	return &otp, nil
}

// DeleteStaleOTPs removes codes that are used or expired before cutoff
func (s *Store) DeleteStaleOTPs(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		"DELETE FROM otp_codes WHERE used = TRUE OR expires_at < $1", cutoff)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
