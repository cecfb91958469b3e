package user

import (
	"context"
	"sort"
	"strings"

	"propvest/pkg/domain"
	"propvest/pkg/errors"
)

type TeamRepository interface {
	Create(ctx context.Context, team *domain.Team) error
	FindByID(ctx context.Context, id int64) (*domain.Team, error)
	Update(ctx context.Context, team *domain.Team) error
	Delete(ctx context.Context, id int64) error
	List(ctx context.Context, limit, offset int) ([]*domain.Team, int, error)
	AssignMembers(ctx context.Context, teamID int64, userIDs []int64) error
}

type TeamRequest struct {
	Name        string  `json:"name" validate:"required,max=120"`
	Description *string `json:"description" validate:"omitempty,max=1000"`
	LeaderID    *int64  `json:"leader_id" validate:"omitempty,gt=0"`
}

func (s *Service) CreateTeam(ctx context.Context, req *TeamRequest) (*domain.Team, error) {
	if err := s.checkLeader(ctx, req.LeaderID); err != nil {
		return nil, err
	}
	now := s.now()
	team := &domain.Team{
		Name:        strings.TrimSpace(req.Name),
		Description: req.Description,
		LeaderID:    req.LeaderID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.teams.Create(ctx, team); err != nil {
		return nil, err
	}
	s.logger.Info("Team created", map[string]interface{}{"team_id": team.ID})
	return team, nil
}

func (s *Service) UpdateTeam(ctx context.Context, id int64, req *TeamRequest) (*domain.Team, error) {
	team, err := s.teams.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.checkLeader(ctx, req.LeaderID); err != nil {
		return nil, err
	}
	team.Name = strings.TrimSpace(req.Name)
	team.Description = req.Description
	team.LeaderID = req.LeaderID
	team.UpdatedAt = s.now()
	if err := s.teams.Update(ctx, team); err != nil {
		return nil, err
	}
	return team, nil
}

func (s *Service) DeleteTeam(ctx context.Context, id int64) error {
	if err := s.teams.Delete(ctx, id); err != nil {
		return err
	}
	s.logger.Info("Team deleted", map[string]interface{}{"team_id": id})
	return nil
}

func (s *Service) GetTeam(ctx context.Context, id int64) (*domain.Team, error) {
	return s.teams.FindByID(ctx, id)
}

func (s *Service) ListTeams(ctx context.Context, limit, offset int) ([]*domain.Team, int, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	return s.teams.List(ctx, limit, offset)
}

type AssignRequest struct {
	UserIDs []int64 `json:"user_ids" validate:"dive,gt=0"`
}

// AssignMembers replaces the team's membership. Duplicate ids are ignored.
func (s *Service) AssignMembers(ctx context.Context, teamID int64, userIDs []int64) (*domain.Team, error) {
	seen := make(map[int64]struct{}, len(userIDs))
	ids := make([]int64, 0, len(userIDs))
	for _, id := range userIDs {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	if err := s.teams.AssignMembers(ctx, teamID, ids); err != nil {
		return nil, err
	}
	s.logger.Info("Team members assigned", map[string]interface{}{
		"team_id": teamID,
		"members": len(ids),
	})
	return s.teams.FindByID(ctx, teamID)
}

func (s *Service) checkLeader(ctx context.Context, leaderID *int64) error {
	if leaderID == nil {
		return nil
	}
	if _, err := s.repo.FindByID(ctx, *leaderID); err != nil {
		if errors.Is(err, errors.ErrUserNotFound) {
			return errors.NewValidationError("leader_id", "Leader does not exist")
		}
		return err
	}
	return nil
}
