package postgres

import (
	"context"

	"github.com/jmoiron/sqlx"

	"propvest/pkg/domain"
	"propvest/pkg/errors"
)

type SecurityLogRepository struct {
	db *sqlx.DB
}

func NewSecurityLogRepository(db *sqlx.DB) *SecurityLogRepository {
	return &SecurityLogRepository{db: db}
}

func (r *SecurityLogRepository) Create(ctx context.Context, entry *domain.SecurityLog) error {
	query := `
		INSERT INTO security_logs (user_id, action, resource, resource_id, ip_address, user_agent, status, details, created_at)
		VALUES (:user_id, :action, :resource, :resource_id, :ip_address, :user_agent, :status, :details, :created_at)
		RETURNING id`

	id, err := insertReturningID(ctx, r.db, query, entry)
	if err != nil {
		return errors.Wrap(err, "failed to log security event")
	}
	entry.ID = id
	return nil
}

func (r *SecurityLogRepository) List(ctx context.Context, f domain.SecurityLogFilter) ([]*domain.SecurityLog, int, error) {
	w := &where{}
	if f.UserID != nil {
		w.add("user_id = $%d", *f.UserID)
	}
	if f.Action != "" {
		w.add("action = $%d", f.Action)
	}
	if f.From != nil {
		w.add("created_at >= $%d", *f.From)
	}
	if f.To != nil {
		w.add("created_at <= $%d", *f.To)
	}

	var total int
	if err := r.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM security_logs`+w.String(), w.args...); err != nil {
		return nil, 0, errors.Wrap(err, "failed to get total security log count")
	}

	suffix, args := w.page(f.Limit, f.Offset)
	logs := []*domain.SecurityLog{}
	query := `SELECT * FROM security_logs` + w.String() + ` ORDER BY created_at DESC, id DESC` + suffix
	if err := r.db.SelectContext(ctx, &logs, query, args...); err != nil {
		return nil, 0, errors.Wrap(err, "failed to get security logs")
	}
	return logs, total, nil
}
