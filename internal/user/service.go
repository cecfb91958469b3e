// Package user manages platform accounts and the sales teams they belong to.
package user

import (
	"context"
	"fmt"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"propvest/pkg/domain"
	"propvest/pkg/errors"
	"propvest/pkg/logger"
)

type Repository interface {
	// Create inserts user and, when wallet is not nil, its wallet atomically.
	Create(ctx context.Context, user *domain.User, wallet *domain.Wallet) error
	FindByID(ctx context.Context, id int64) (*domain.User, error)
	Update(ctx context.Context, user *domain.User) error
	List(ctx context.Context, filter domain.UserFilter) ([]*domain.User, int, error)
}

type Service struct {
	repo   Repository
	teams  TeamRepository
	logger logger.Logger
	now    func() time.Time
}

func NewService(repo Repository, teams TeamRepository, log logger.Logger) *Service {
	return &Service{
		repo:   repo,
		teams:  teams,
		logger: log,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

type CreateRequest struct {
	Name     string          `json:"name" validate:"required,max=120"`
	Email    string          `json:"email" validate:"required,email"`
	Phone    *string         `json:"phone" validate:"omitempty,in_phone"`
	Password string          `json:"password" validate:"required,min=8"`
	Role     domain.UserRole `json:"role" validate:"required,oneof=customer admin manager"`
	TeamID   *int64          `json:"team_id" validate:"omitempty,gt=0"`
}

// Create registers a user. Customers get an empty wallet in the same
// transaction.
func (s *Service) Create(ctx context.Context, req *CreateRequest) (*domain.User, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}
	if err := s.checkTeam(ctx, req.TeamID); err != nil {
		return nil, err
	}

	now := s.now()
	u := &domain.User{
		Name:         strings.TrimSpace(req.Name),
		Email:        strings.ToLower(strings.TrimSpace(req.Email)),
		Phone:        req.Phone,
		PasswordHash: string(hash),
		Role:         req.Role,
		TeamID:       req.TeamID,
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	var wallet *domain.Wallet
	if u.Role == domain.RoleCustomer {
		wallet = &domain.Wallet{Status: domain.WalletStatusActive}
	}
	if err := s.repo.Create(ctx, u, wallet); err != nil {
		return nil, err
	}

	fields := map[string]interface{}{"user_id": u.ID, "role": u.Role}
	if wallet != nil {
		fields["wallet_id"] = wallet.ID
	}
	s.logger.Info("User created", fields)
	return u, nil
}

type UpdateRequest struct {
	Name     *string          `json:"name" validate:"omitempty,max=120"`
	Email    *string          `json:"email" validate:"omitempty,email"`
	Phone    *string          `json:"phone" validate:"omitempty,in_phone"`
	Password *string          `json:"password" validate:"omitempty,min=8"`
	Role     *domain.UserRole `json:"role" validate:"omitempty,oneof=customer admin manager"`
	TeamID   *int64           `json:"team_id" validate:"omitempty,gte=0"`
	IsActive *bool            `json:"is_active"`
}

// Update applies the fields present in req. A team_id of 0 removes the user
// from their team.
func (s *Service) Update(ctx context.Context, id int64, req *UpdateRequest, actorID int64) (*domain.User, error) {
	u, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if req.Name != nil {
		u.Name = strings.TrimSpace(*req.Name)
	}
	if req.Email != nil {
		u.Email = strings.ToLower(strings.TrimSpace(*req.Email))
	}
	if req.Phone != nil {
		u.Phone = req.Phone
	}
	if req.Role != nil {
		if id == actorID && *req.Role != u.Role {
			return nil, errors.NewValidationError("role", "You cannot change your own role")
		}
		u.Role = *req.Role
	}
	if req.TeamID != nil {
		if *req.TeamID == 0 {
			u.TeamID = nil
		} else {
			if err := s.checkTeam(ctx, req.TeamID); err != nil {
				return nil, err
			}
			u.TeamID = req.TeamID
		}
	}
	if req.IsActive != nil {
		if id == actorID && !*req.IsActive {
			return nil, errors.NewValidationError("is_active", "You cannot deactivate yourself")
		}
		u.IsActive = *req.IsActive
	}

	// An empty hash leaves the stored password untouched.
	u.PasswordHash = ""
	if req.Password != nil {
		hash, err := bcrypt.GenerateFromPassword([]byte(*req.Password), bcrypt.DefaultCost)
		if err != nil {
			return nil, fmt.Errorf("failed to hash password: %w", err)
		}
		u.PasswordHash = string(hash)
	}

	if err := s.repo.Update(ctx, u); err != nil {
		return nil, err
	}
	u.PasswordHash = ""
	u.TOTPSecret = nil

	s.logger.Info("User updated", map[string]interface{}{"user_id": id, "actor_id": actorID})
	return u, nil
}

// Delete deactivates the account. Users own ledger history, so rows are
// never removed.
func (s *Service) Delete(ctx context.Context, id, actorID int64) error {
	if id == actorID {
		return errors.NewValidationError("id", "You cannot delete yourself")
	}
	u, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return err
	}
	if !u.IsActive {
		return nil
	}
	u.IsActive = false
	u.PasswordHash = ""
	if err := s.repo.Update(ctx, u); err != nil {
		return err
	}
	s.logger.Info("User deactivated", map[string]interface{}{"user_id": id, "actor_id": actorID})
	return nil
}

func (s *Service) Get(ctx context.Context, id int64) (*domain.User, error) {
	u, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	u.TOTPSecret = nil
	return u, nil
}

func (s *Service) List(ctx context.Context, filter domain.UserFilter) ([]*domain.User, int, error) {
	if filter.Limit <= 0 || filter.Limit > 200 {
		filter.Limit = 50
	}
	return s.repo.List(ctx, filter)
}

func (s *Service) checkTeam(ctx context.Context, teamID *int64) error {
	if teamID == nil {
		return nil
	}
	if _, err := s.teams.FindByID(ctx, *teamID); err != nil {
		if errors.Is(err, errors.ErrTeamNotFound) {
			return errors.NewValidationError("team_id", "Team does not exist")
		}
		return err
	}
	return nil
}
