package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/vibast-solutions/ms-go-user/app/entity"
)

type UserRepository struct {
	db *sql.DB
}

func NewUserRepository(db *sql.DB) *UserRepository {
	return &UserRepository{db: db}
}

const userColumns = `id, username, email, full_name, password_hash, avatar_url, cover_image_url,
		       refresh_token, created_at, updated_at`

func (r *UserRepository) Create(ctx context.Context, user *entity.User) error {
	query := `
		INSERT INTO users (username, email, full_name, password_hash, avatar_url, cover_image_url, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`
	result, err := r.db.ExecContext(ctx, query,
		user.Username,
		user.Email,
		user.FullName,
		user.PasswordHash,
		user.AvatarURL,
		user.CoverImageURL,
		user.CreatedAt,
		user.UpdatedAt,
	)
	if err != nil {
		return err
	}

	id, err := result.LastInsertId()
	if err != nil {
		return err
	}
	user.ID = uint64(id)
	return nil
}

func (r *UserRepository) FindByID(ctx context.Context, id uint64) (*entity.User, error) {
	query := `
		SELECT ` + userColumns + `
		FROM users WHERE id = ?
	`
	return r.scanOne(r.db.QueryRowContext(ctx, query, id))
}

func (r *UserRepository) FindByUsername(ctx context.Context, username string) (*entity.User, error) {
	query := `
		SELECT ` + userColumns + `
		FROM users WHERE username = ?
	`
	return r.scanOne(r.db.QueryRowContext(ctx, query, username))
}

// FindByUsernameOrEmail returns the first user matching either field.
// Uniqueness of both columns guarantees at most one row can match each.
func (r *UserRepository) FindByUsernameOrEmail(ctx context.Context, username, email string) (*entity.User, error) {
	query := `
		SELECT ` + userColumns + `
		FROM users WHERE username = ? OR email = ?
		LIMIT 1
	`
	return r.scanOne(r.db.QueryRowContext(ctx, query, username, email))
}

// SetRefreshToken unconditionally overwrites the single refresh-token slot.
// Passing an invalid NullString clears it (logout).
func (r *UserRepository) SetRefreshToken(ctx context.Context, userID uint64, token sql.NullString) error {
	query := `UPDATE users SET refresh_token = ?, updated_at = ? WHERE id = ?`
	_, err := r.db.ExecContext(ctx, query, token, time.Now(), userID)
	return err
}

// RotateRefreshToken swaps the stored refresh token from current to next in a
// single conditional statement. Returns the number of rows updated: zero means
// the stored token no longer equals current and the rotation lost the race.
func (r *UserRepository) RotateRefreshToken(ctx context.Context, userID uint64, current, next string) (int64, error) {
	query := `UPDATE users SET refresh_token = ?, updated_at = ? WHERE id = ? AND refresh_token = ?`
	result, err := r.db.ExecContext(ctx, query, next, time.Now(), userID, current)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

func (r *UserRepository) UpdatePassword(ctx context.Context, userID uint64, passwordHash string) error {
	query := `UPDATE users SET password_hash = ?, updated_at = ? WHERE id = ?`
	_, err := r.db.ExecContext(ctx, query, passwordHash, time.Now(), userID)
	return err
}

func (r *UserRepository) UpdateDetails(ctx context.Context, userID uint64, fullName, email string) error {
	query := `UPDATE users SET full_name = ?, email = ?, updated_at = ? WHERE id = ?`
	_, err := r.db.ExecContext(ctx, query, fullName, email, time.Now(), userID)
	return err
}

func (r *UserRepository) UpdateAvatarURL(ctx context.Context, userID uint64, url string) error {
	query := `UPDATE users SET avatar_url = ?, updated_at = ? WHERE id = ?`
	_, err := r.db.ExecContext(ctx, query, url, time.Now(), userID)
	return err
}

func (r *UserRepository) UpdateCoverImageURL(ctx context.Context, userID uint64, url string) error {
	query := `UPDATE users SET cover_image_url = ?, updated_at = ? WHERE id = ?`
	_, err := r.db.ExecContext(ctx, query, url, time.Now(), userID)
	return err
}

func (r *UserRepository) scanOne(row *sql.Row) (*entity.User, error) {
	user := &entity.User{}
	err := row.Scan(
		&user.ID,
		&user.Username,
		&user.Email,
		&user.FullName,
		&user.PasswordHash,
		&user.AvatarURL,
		&user.CoverImageURL,
		&user.RefreshToken,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return user, nil
}
