// Package persistence is the reference host's database layer: one table,
// one repository, enough to give the orchestrator's "persist user" step a
// real collaborator to call.
package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"
)

// Config holds the connection settings for the user repository's pool.
type Config struct {
	ConnectionString  string `yaml:"connection_string" default:"" validate:"required"`
	MaxOpenConns      int    `yaml:"max_open_conns" default:"10" validate:"gte=1,lte=100"`
	MaxIdleConns      int    `yaml:"max_idle_conns" default:"5" validate:"gte=0,lte=50"`
	ConnMaxLifetimeMs int    `yaml:"conn_max_lifetime_ms" default:"300000" validate:"gte=0"`
}

// User is the single domain entity the reference host persists.
type User struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"created_at"`
}

// UserRepository provides the persistence step action and its compensating
// delete, backed by a pooled *sql.DB.
type UserRepository struct {
	db *sql.DB
}

// NewUserRepository opens the connection pool and verifies it with a ping.
func NewUserRepository(cfg Config) (*UserRepository, error) {
	db, err := sql.Open("postgres", cfg.ConnectionString)
	if err != nil {
		return nil, fmt.Errorf("persistence: open connection: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(time.Duration(cfg.ConnMaxLifetimeMs) * time.Millisecond)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("persistence: ping: %w", err)
	}

	return &UserRepository{db: db}, nil
}

// Close releases the underlying connection pool.
func (r *UserRepository) Close() error {
	return r.db.Close()
}

// Insert persists a new user row. Grounded as the saga's "persist user" step
// action.
func (r *UserRepository) Insert(ctx context.Context, u User) (User, error) {
	const q = `INSERT INTO users (id, name, email, created_at) VALUES ($1, $2, $3, $4)`
	if _, err := r.db.ExecContext(ctx, q, u.ID, u.Name, u.Email, u.CreatedAt); err != nil {
		return User{}, fmt.Errorf("persistence: insert user: %w", err)
	}
	return u, nil
}

// Delete removes a user row by id. This is the compensation for Insert: it
// undoes the persist step when a later step in the saga fails.
func (r *UserRepository) Delete(ctx context.Context, id string) error {
	const q = `DELETE FROM users WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, q, id); err != nil {
		return fmt.Errorf("persistence: delete user %s: %w", id, err)
	}
	return nil
}

// Get fetches a user row by id.
func (r *UserRepository) Get(ctx context.Context, id string) (User, bool, error) {
	const q = `SELECT id, name, email, created_at FROM users WHERE id = $1`
	row := r.db.QueryRowContext(ctx, q, id)

	var u User
	switch err := row.Scan(&u.ID, &u.Name, &u.Email, &u.CreatedAt); err {
	case nil:
		return u, true, nil
	case sql.ErrNoRows:
		return User{}, false, nil
	default:
		return User{}, false, fmt.Errorf("persistence: get user %s: %w", id, err)
	}
}
