package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rs/xid"
	"github.com/sakif/snippetcms/internal/apperror"
	"github.com/sakif/snippetcms/internal/model"
	"github.com/sakif/snippetcms/internal/repository"
)

// compile-time check that *DB implements repository.UserRepository
var _ repository.UserRepository = (*DB)(nil)

const userSelect = `SELECT id, username, password_hash, github_id, email, avatar_url,
	is_active, is_staff, is_superuser, created_at, updated_at FROM users`

// CreateUser inserts a new user together with its permissions.
// Returns apperror.ErrConflict when the username is taken.
func (db *DB) CreateUser(ctx context.Context, user *model.User) error {
	if _, err := db.GetUserByUsername(ctx, user.Username); err == nil {
		return apperror.Conflict("user", "username", user.Username)
	} else if !errors.Is(err, apperror.ErrNotFound) {
		return err
	}

	now := time.Now().UTC()
	user.ID = xid.New().String()
	user.CreatedAt = now
	user.UpdatedAt = now

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: beginning transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO users (id, username, password_hash, github_id, email, avatar_url,
			is_active, is_staff, is_superuser, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		user.ID,
		user.Username,
		user.PasswordHash,
		nullableInt64(user.GitHubID),
		user.Email,
		user.AvatarURL,
		user.IsActive,
		user.IsStaff,
		user.IsSuperuser,
		user.CreatedAt,
		user.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("sqlite: inserting user %q: %w", user.Username, err)
	}

	if err := replacePermissions(ctx, tx, user.ID, user.Permissions); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite: committing user %q: %w", user.Username, err)
	}
	return nil
}

// UpsertGitHubUser inserts or refreshes a user keyed on GitHubID.
//
// Existing users keep their ID, username, flags and permissions; only the
// profile fields (email, avatar) are refreshed. New users are created with
// the login as username and no admin rights.
func (db *DB) UpsertGitHubUser(ctx context.Context, user *model.User) error {
	if user.GitHubID == nil {
		return apperror.ValidationFailed("githubId", "GitHub ID is required")
	}

	var existingID string
	err := db.conn.QueryRowContext(ctx,
		`SELECT id FROM users WHERE github_id = ?`, *user.GitHubID,
	).Scan(&existingID)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("sqlite: looking up user by github_id %d: %w", *user.GitHubID, err)
	}

	if existingID == "" {
		user.IsActive = true
		user.IsStaff = false
		user.IsSuperuser = false
		user.Permissions = nil
		return db.CreateUser(ctx, user)
	}

	_, err = db.conn.ExecContext(ctx,
		`UPDATE users SET email = ?, avatar_url = ?, updated_at = ? WHERE id = ?`,
		user.Email,
		user.AvatarURL,
		time.Now().UTC(),
		existingID,
	)
	if err != nil {
		return fmt.Errorf("sqlite: updating user %s: %w", existingID, err)
	}

	stored, err := db.GetUserByID(ctx, existingID)
	if err != nil {
		return err
	}
	*user = *stored
	return nil
}

// GetUserByID retrieves a user and their permissions by internal ID.
// Returns apperror.ErrNotFound if no user exists with that ID.
func (db *DB) GetUserByID(ctx context.Context, id string) (*model.User, error) {
	return db.getUser(ctx, `id = ?`, id)
}

// GetUserByUsername retrieves a user and their permissions by username.
func (db *DB) GetUserByUsername(ctx context.Context, username string) (*model.User, error) {
	return db.getUser(ctx, `username = ?`, username)
}

// SetPermissions replaces the user's permission codenames.
func (db *DB) SetPermissions(ctx context.Context, userID string, codenames []string) error {
	if _, err := db.GetUserByID(ctx, userID); err != nil {
		return err
	}

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if err := replacePermissions(ctx, tx, userID, codenames); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite: committing permissions for %s: %w", userID, err)
	}
	return nil
}

// SetStaff grants or revokes admin access.
func (db *DB) SetStaff(ctx context.Context, userID string, staff bool) error {
	res, err := db.conn.ExecContext(ctx,
		`UPDATE users SET is_staff = ?, updated_at = ? WHERE id = ?`,
		staff, time.Now().UTC(), userID,
	)
	if err != nil {
		return fmt.Errorf("sqlite: updating staff flag for %s: %w", userID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperror.NotFound("user", userID)
	}
	return nil
}

func (db *DB) getUser(ctx context.Context, where string, arg any) (*model.User, error) {
	var (
		u        model.User
		githubID sql.NullInt64
	)

	err := db.conn.QueryRowContext(ctx, userSelect+` WHERE `+where, arg).Scan(
		&u.ID,
		&u.Username,
		&u.PasswordHash,
		&githubID,
		&u.Email,
		&u.AvatarURL,
		&u.IsActive,
		&u.IsStaff,
		&u.IsSuperuser,
		&u.CreatedAt,
		&u.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("user", fmt.Sprint(arg))
		}
		return nil, fmt.Errorf("sqlite: getting user %v: %w", arg, err)
	}
	if githubID.Valid {
		id := githubID.Int64
		u.GitHubID = &id
	}

	perms, err := db.permissions(ctx, u.ID)
	if err != nil {
		return nil, err
	}
	u.Permissions = perms

	return &u, nil
}

func (db *DB) permissions(ctx context.Context, userID string) ([]string, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT codename FROM user_permissions WHERE user_id = ? ORDER BY codename`, userID)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing permissions for %s: %w", userID, err)
	}
	defer rows.Close()

	var perms []string
	for rows.Next() {
		var codename string
		if err := rows.Scan(&codename); err != nil {
			return nil, fmt.Errorf("sqlite: scanning permission: %w", err)
		}
		perms = append(perms, codename)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating permissions: %w", err)
	}
	return perms, nil
}

func replacePermissions(ctx context.Context, tx *sql.Tx, userID string, codenames []string) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM user_permissions WHERE user_id = ?`, userID); err != nil {
		return fmt.Errorf("sqlite: clearing permissions for %s: %w", userID, err)
	}
	for _, codename := range codenames {
		_, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO user_permissions (user_id, codename) VALUES (?, ?)`,
			userID, codename)
		if err != nil {
			return fmt.Errorf("sqlite: granting %s to %s: %w", codename, userID, err)
		}
	}
	return nil
}

func nullableInt64(v *int64) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *v, Valid: true}
}
