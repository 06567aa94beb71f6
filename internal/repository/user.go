package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/foxzi/walink/internal/models"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// ErrInvalidCredentials is returned when email or password do not match
var ErrInvalidCredentials = errors.New("invalid email or password")

type UserRepository struct {
	db DBTX
}

func NewUserRepository(db DBTX) *UserRepository {
	return &UserRepository{db: db}
}

// Create hashes the password and stores a new operator
func (r *UserRepository) Create(ctx context.Context, email, password, name string) (*models.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return nil, &models.ValidationError{Field: "email", Message: "email is required"}
	}
	if len(password) < 8 {
		return nil, &models.ValidationError{Field: "password", Message: "password must be at least 8 characters"}
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	now := time.Now().UTC()
	u := &models.User{
		ID:           uuid.New().String(),
		Email:        email,
		PasswordHash: string(hash),
		Name:         name,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	_, err = r.db.ExecContext(ctx,
		"INSERT INTO users (id, email, password_hash, name, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)",
		u.ID, u.Email, u.PasswordHash, u.Name, u.CreatedAt, u.UpdatedAt,
	)
	if isUniqueViolation(err) {
		return nil, fmt.Errorf("user %s: %w", email, ErrConflict)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}
	return u, nil
}

// Authenticate checks the password of the user with the given email
func (r *UserRepository) Authenticate(ctx context.Context, email, password string) (*models.User, error) {
	u, err := r.GetByEmail(ctx, email)
	if errors.Is(err, ErrNotFound) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}
	return u, nil
}

// GetByEmail returns a user by email
func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	return r.getWhere(ctx, "email = ?", strings.ToLower(strings.TrimSpace(email)))
}

// GetByID returns a user by ID
func (r *UserRepository) GetByID(ctx context.Context, id string) (*models.User, error) {
	return r.getWhere(ctx, "id = ?", id)
}

func (r *UserRepository) getWhere(ctx context.Context, cond string, arg any) (*models.User, error) {
	u := &models.User{}
	err := r.db.QueryRowContext(ctx, `
		SELECT id, email, password_hash, COALESCE(name, ''), created_at, updated_at
		FROM users WHERE `+cond, arg,
	).Scan(&u.ID, &u.Email, &u.PasswordHash, &u.Name, &u.CreatedAt, &u.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return u, nil
}

// List returns all users ordered by email
func (r *UserRepository) List(ctx context.Context) ([]models.User, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, email, COALESCE(name, ''), created_at, updated_at
		FROM users ORDER BY email`)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	defer rows.Close()

	users := []models.User{}
	for rows.Next() {
		var u models.User
		if err := rows.Scan(&u.ID, &u.Email, &u.Name, &u.CreatedAt, &u.UpdatedAt); err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

// SetPassword replaces the password of the user with the given email and
// revokes their sessions
func (r *UserRepository) SetPassword(ctx context.Context, email, password string) error {
	if len(password) < 8 {
		return &models.ValidationError{Field: "password", Message: "password must be at least 8 characters"}
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}

	email = strings.ToLower(strings.TrimSpace(email))
	return withTx(ctx, r.db, func(q DBTX) error {
		res, err := q.ExecContext(ctx,
			"UPDATE users SET password_hash = ?, updated_at = ? WHERE email = ?",
			string(hash), time.Now().UTC(), email,
		)
		if err != nil {
			return fmt.Errorf("failed to update password: %w", err)
		}
		if err := notFoundIfNone(res); err != nil {
			return err
		}
		_, err = q.ExecContext(ctx,
			"DELETE FROM sessions WHERE user_id = (SELECT id FROM users WHERE email = ?)", email)
		if err != nil {
			return fmt.Errorf("failed to revoke sessions: %w", err)
		}
		return nil
	})
}

// DeleteByEmail removes a user and their sessions
func (r *UserRepository) DeleteByEmail(ctx context.Context, email string) error {
	res, err := r.db.ExecContext(ctx, "DELETE FROM users WHERE email = ?", strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		return fmt.Errorf("failed to delete user: %w", err)
	}
	return notFoundIfNone(res)
}

type SessionRepository struct {
	db DBTX
}

func NewSessionRepository(db DBTX) *SessionRepository {
	return &SessionRepository{db: db}
}

// Create opens a session for the user valid for ttl
func (r *SessionRepository) Create(ctx context.Context, userID string, ttl time.Duration) (*models.Session, error) {
	now := time.Now().UTC()
	s := &models.Session{
		ID:        uuid.New().String(),
		UserID:    userID,
		ExpiresAt: now.Add(ttl),
		CreatedAt: now,
	}
	_, err := r.db.ExecContext(ctx,
		"INSERT INTO sessions (id, user_id, expires_at, created_at) VALUES (?, ?, ?, ?)",
		s.ID, s.UserID, s.ExpiresAt, s.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}
	return s, nil
}

// Get returns an unexpired session by ID
func (r *SessionRepository) Get(ctx context.Context, id string) (*models.Session, error) {
	s := &models.Session{}
	err := r.db.QueryRowContext(ctx,
		"SELECT id, user_id, expires_at, created_at FROM sessions WHERE id = ?", id,
	).Scan(&s.ID, &s.UserID, &s.ExpiresAt, &s.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	if !s.ExpiresAt.After(time.Now()) {
		return nil, ErrNotFound
	}
	return s, nil
}

// Delete removes a session
func (r *SessionRepository) Delete(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, "DELETE FROM sessions WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

// DeleteExpired removes sessions that expired before now
func (r *SessionRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	rows, err := r.db.QueryContext(ctx, "SELECT id, expires_at FROM sessions")
	if err != nil {
		return 0, fmt.Errorf("failed to list sessions: %w", err)
	}
	var expired []string
	for rows.Next() {
		var id string
		var expiresAt time.Time
		if err := rows.Scan(&id, &expiresAt); err != nil {
			rows.Close()
			return 0, err
		}
		if !expiresAt.After(now) {
			expired = append(expired, id)
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, err
	}

	var deleted int64
	for _, id := range expired {
		res, err := r.db.ExecContext(ctx, "DELETE FROM sessions WHERE id = ?", id)
		if err != nil {
			return deleted, fmt.Errorf("failed to delete session: %w", err)
		}
		n, _ := res.RowsAffected()
		deleted += n
	}
	return deleted, nil
}
