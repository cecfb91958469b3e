package postgres

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"

	"propvest/internal/security"
	"propvest/pkg/domain"
	"propvest/pkg/errors"
)

const userColumns = `
	id, name, email, phone, password_hash, role, team_id, is_active,
	totp_secret, is_totp_enabled, last_login, created_at, updated_at`

type UserRepository struct {
	db     *sqlx.DB
	crypto *security.CryptoService
}

func NewUserRepository(db *sqlx.DB, crypto *security.CryptoService) *UserRepository {
	return &UserRepository{db: db, crypto: crypto}
}

// Create inserts the user and, when wallet is not nil, its wallet in the
// same transaction.
func (r *UserRepository) Create(ctx context.Context, user *domain.User, wallet *domain.Wallet) error {
	return inTx(ctx, r.db, func(tx *sqlx.Tx) error {
		query := `
			INSERT INTO users (name, email, phone, password_hash, role, team_id, is_active, created_at, updated_at)
			VALUES (:name, :email, :phone, :password_hash, :role, :team_id, :is_active, :created_at, :updated_at)
			RETURNING id
		`
		id, err := insertReturningID(ctx, tx, query, user)
		if err != nil {
			if _, ok := pqError(err, codeUniqueViolation); ok {
				return errors.ErrUserAlreadyExists
			}
			return errors.Wrap(err, "failed to create user")
		}
		user.ID = id

		if wallet == nil {
			return nil
		}
		wallet.UserID = id
		wallet.CreatedAt, wallet.UpdatedAt = user.CreatedAt, user.CreatedAt
		if wallet.Status == "" {
			wallet.Status = domain.WalletStatusActive
		}
		return createWallet(ctx, tx, wallet)
	})
}

func (r *UserRepository) decryptUser(user *domain.User) error {
	if user.TOTPSecret == nil {
		return nil
	}
	plain, err := r.crypto.Decrypt(*user.TOTPSecret)
	if err != nil {
		return errors.Wrap(err, "failed to decrypt TOTP secret")
	}
	user.TOTPSecret = &plain
	return nil
}

func (r *UserRepository) findOne(ctx context.Context, query string, arg interface{}) (*domain.User, error) {
	var user domain.User
	if err := r.db.GetContext(ctx, &user, query, arg); err != nil {
		if isNoRows(err) {
			return nil, errors.ErrUserNotFound
		}
		return nil, errors.Wrap(err, "failed to find user")
	}
	if err := r.decryptUser(&user); err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *UserRepository) FindByID(ctx context.Context, id int64) (*domain.User, error) {
	return r.findOne(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
}

func (r *UserRepository) FindByEmail(ctx context.Context, email string) (*domain.User, error) {
	return r.findOne(ctx, `SELECT `+userColumns+` FROM users WHERE LOWER(email) = LOWER($1)`, email)
}

// Update writes profile, role, team and activation fields. The password is
// only written when PasswordHash is not empty.
func (r *UserRepository) Update(ctx context.Context, user *domain.User) error {
	user.UpdatedAt = time.Now().UTC()
	query := `
		UPDATE users SET
			name = :name,
			email = :email,
			phone = :phone,
			role = :role,
			team_id = :team_id,
			is_active = :is_active,
			password_hash = CASE WHEN :password_hash = '' THEN password_hash ELSE :password_hash END,
			updated_at = :updated_at
		WHERE id = :id
	`
	res, err := r.db.NamedExecContext(ctx, query, user)
	if err != nil {
		if _, ok := pqError(err, codeUniqueViolation); ok {
			return errors.ErrUserAlreadyExists
		}
		return errors.Wrap(err, "failed to update user")
	}
	return expectOneRow(res, errors.ErrUserNotFound)
}

// SetTOTP stores the sealed TOTP secret. A nil secret clears enrolment.
func (r *UserRepository) SetTOTP(ctx context.Context, id int64, secret *string, enabled bool) error {
	var sealed *string
	if secret != nil {
		enc, err := r.crypto.Encrypt(*secret)
		if err != nil {
			return errors.Wrap(err, "failed to encrypt TOTP secret")
		}
		sealed = &enc
	}
	res, err := r.db.ExecContext(ctx, `
		UPDATE users SET totp_secret = $1, is_totp_enabled = $2, updated_at = NOW() WHERE id = $3
	`, sealed, enabled, id)
	if err != nil {
		return errors.Wrap(err, "failed to update TOTP settings")
	}
	return expectOneRow(res, errors.ErrUserNotFound)
}

func (r *UserRepository) UpdateLastLogin(ctx context.Context, id int64, at time.Time) error {
	_, err := r.db.ExecContext(ctx, `UPDATE users SET last_login = $1 WHERE id = $2`, at, id)
	return errors.Wrap(err, "failed to update last login")
}

func (r *UserRepository) List(ctx context.Context, f domain.UserFilter) ([]*domain.User, int, error) {
	w := &where{}
	if f.Role != nil {
		w.add("role = $%d", *f.Role)
	}
	if f.TeamID != nil {
		w.add("team_id = $%d", *f.TeamID)
	}
	if f.IsActive != nil {
		w.add("is_active = $%d", *f.IsActive)
	}
	if f.Search != "" {
		w.add("(name ILIKE $%[1]d OR email ILIKE $%[1]d)", "%"+f.Search+"%")
	}

	var total int
	if err := r.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM users`+w.String(), w.args...); err != nil {
		return nil, 0, errors.Wrap(err, "failed to count users")
	}

	suffix, args := w.page(f.Limit, f.Offset)
	users := []*domain.User{}
	query := `SELECT ` + userColumns + ` FROM users` + w.String() + ` ORDER BY id DESC` + suffix
	if err := r.db.SelectContext(ctx, &users, query, args...); err != nil {
		return nil, 0, errors.Wrap(err, "failed to list users")
	}
	for _, u := range users {
		// listings never expose the secret
		u.TOTPSecret = nil
	}
	return users, total, nil
}
