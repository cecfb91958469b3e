package postgres

import (
	"context"

	"github.com/jmoiron/sqlx"

	"propvest/pkg/domain"
	"propvest/pkg/errors"
)

const teamSelect = `
	SELECT t.id, t.name, t.description, t.leader_id, t.created_at, t.updated_at,
		(SELECT COUNT(*) FROM users u WHERE u.team_id = t.id) AS member_count
	FROM teams t`

type TeamRepository struct {
	db *sqlx.DB
}

func NewTeamRepository(db *sqlx.DB) *TeamRepository {
	return &TeamRepository{db: db}
}

func (r *TeamRepository) Create(ctx context.Context, team *domain.Team) error {
	query := `
		INSERT INTO teams (name, description, leader_id, created_at, updated_at)
		VALUES (:name, :description, :leader_id, :created_at, :updated_at)
		RETURNING id
	`
	id, err := insertReturningID(ctx, r.db, query, team)
	if err != nil {
		return mapTeamError(err, "failed to create team")
	}
	team.ID = id
	return nil
}

func mapTeamError(err error, message string) error {
	if _, ok := pqError(err, codeUniqueViolation); ok {
		return errors.NewValidationError("name", "Team name already exists")
	}
	if _, ok := pqError(err, codeForeignKeyViolation); ok {
		return errors.ErrUserNotFound
	}
	return errors.Wrap(err, message)
}

func (r *TeamRepository) FindByID(ctx context.Context, id int64) (*domain.Team, error) {
	team := &domain.Team{}
	if err := r.db.GetContext(ctx, team, teamSelect+` WHERE t.id = $1`, id); err != nil {
		if isNoRows(err) {
			return nil, errors.ErrTeamNotFound
		}
		return nil, errors.Wrap(err, "failed to find team")
	}
	return team, nil
}

func (r *TeamRepository) Update(ctx context.Context, team *domain.Team) error {
	res, err := r.db.NamedExecContext(ctx, `
		UPDATE teams SET name = :name, description = :description, leader_id = :leader_id, updated_at = :updated_at
		WHERE id = :id
	`, team)
	if err != nil {
		return mapTeamError(err, "failed to update team")
	}
	return expectOneRow(res, errors.ErrTeamNotFound)
}

// Delete removes the team; its members keep their accounts with no team.
func (r *TeamRepository) Delete(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM teams WHERE id = $1`, id)
	if err != nil {
		return errors.Wrap(err, "failed to delete team")
	}
	return expectOneRow(res, errors.ErrTeamNotFound)
}

func (r *TeamRepository) List(ctx context.Context, limit, offset int) ([]*domain.Team, int, error) {
	var total int
	if err := r.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM teams`); err != nil {
		return nil, 0, errors.Wrap(err, "failed to count teams")
	}
	teams := []*domain.Team{}
	if err := r.db.SelectContext(ctx, &teams, teamSelect+` ORDER BY t.name LIMIT $1 OFFSET $2`, limit, offset); err != nil {
		return nil, 0, errors.Wrap(err, "failed to list teams")
	}
	return teams, total, nil
}

// AssignMembers replaces the team's membership with userIDs.
func (r *TeamRepository) AssignMembers(ctx context.Context, teamID int64, userIDs []int64) error {
	return inTx(ctx, r.db, func(tx *sqlx.Tx) error {
		var locked int64
		if err := tx.GetContext(ctx, &locked, `SELECT id FROM teams WHERE id = $1 FOR UPDATE`, teamID); err != nil {
			if isNoRows(err) {
				return errors.ErrTeamNotFound
			}
			return errors.Wrap(err, "failed to lock team")
		}
		if _, err := tx.ExecContext(ctx, `UPDATE users SET team_id = NULL, updated_at = NOW() WHERE team_id = $1`, teamID); err != nil {
			return errors.Wrap(err, "failed to clear team members")
		}
		if len(userIDs) == 0 {
			return nil
		}
		query, args, err := sqlx.In(`UPDATE users SET team_id = ?, updated_at = NOW() WHERE id IN (?)`, teamID, userIDs)
		if err != nil {
			return errors.Wrap(err, "failed to build query")
		}
		res, err := tx.ExecContext(ctx, tx.Rebind(query), args...)
		if err != nil {
			return errors.Wrap(err, "failed to assign team members")
		}
		n, err := res.RowsAffected()
		if err != nil {
			return errors.Wrap(err, "failed to get rows affected")
		}
		if int(n) != len(userIDs) {
			return errors.ErrUserNotFound
		}
		return nil
	})
}
