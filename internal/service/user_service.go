package service

import (
	"context"
	"fmt"
	"strings"

	"leftuber-api/internal/models"
	"leftuber-api/internal/util"

	"go.uber.org/zap"
)

// UserService serves the caller's own profile
type UserService struct {
	store  UserStore
	logger *zap.Logger
}

// NewUserService creates a new user service
func NewUserService(store UserStore) *UserService {
	return &UserService{store: store, logger: util.GetLogger()}
}

// UpdateMeRequest is a partial profile update
type UpdateMeRequest struct {
	Name      models.Patch[string] `json:"name"`
	PushToken models.Patch[string] `json:"pushToken"`
}

// Me returns the caller's profile
func (s *UserService) Me(ctx context.Context, requester models.Identity) (*models.User, error) {
	ctx, span := util.StartSpan(ctx, "UserService.Me")
	defer span.End()

	return s.store.GetUserByID(ctx, requester.UserID)
}

// UpdateMe changes the caller's name or push token
func (s *UserService) UpdateMe(ctx context.Context, requester models.Identity, req *UpdateMeRequest) (*models.User, error) {
	ctx, span := util.StartSpan(ctx, "UserService.UpdateMe")
	defer span.End()

	var patch models.UserPatch
	if req.Name.Set {
		name := strings.TrimSpace(req.Name.Value)
		if name == "" {
			return nil, fmt.Errorf("%w: name cannot be blank", models.ErrValidation)
		}
		patch.Name = models.SetTo(name)
	}
	patch.PushToken = req.PushToken

	user, err := s.store.UpdateUser(ctx, requester.UserID, patch)
	if err != nil {
		return nil, err
	}
	s.logger.Debug("Profile updated", zap.String("user_id", user.ID))
	return user, nil
}

// Stats summarises a merchant's listings and sales
func (s *UserService) Stats(ctx context.Context, requester models.Identity) (*models.MerchantStats, error) {
	ctx, span := util.StartSpan(ctx, "UserService.Stats")
	defer span.End()

	if requester.Role != models.RoleMerchant {
		return nil, fmt.Errorf("%w: merchant only", models.ErrForbidden)
	}
	return s.store.MerchantStats(ctx, requester.UserID)
}
