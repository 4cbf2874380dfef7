package user

import (
	"context"
	"database/sql"
	"errors"
)

var ErrNotFound = errors.New("user not found")

type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) CreateUser(ctx context.Context, u *User) error {
	query := `INSERT INTO users (id, name, username, phone_no, about, password)
	          VALUES ($1, $2, $3, $4, $5, $6)`
	_, err := r.db.ExecContext(ctx, query, u.ID, u.Name, u.Username, u.PhoneNo, u.About, u.Password)
	return err
}

// GetByIdentifier resolves a login identifier, which may be a username or
// a phone number.
func (r *Repository) GetByIdentifier(ctx context.Context, identifier string) (*User, error) {
	u := &User{}
	query := `SELECT id, name, username, phone_no, about, password
	          FROM users WHERE username = $1 OR phone_no = $1`
	err := r.db.QueryRowContext(ctx, query, identifier).
		Scan(&u.ID, &u.Name, &u.Username, &u.PhoneNo, &u.About, &u.Password)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return u, nil
}

func (r *Repository) GetByPhone(ctx context.Context, phoneNo string) (*User, error) {
	u := &User{}
	query := `SELECT id, name, username, phone_no, about, password
	          FROM users WHERE phone_no = $1`
	err := r.db.QueryRowContext(ctx, query, phoneNo).
		Scan(&u.ID, &u.Name, &u.Username, &u.PhoneNo, &u.About, &u.Password)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return u, nil
}

// ListContacts returns every other user as a directory entry.
func (r *Repository) ListContacts(ctx context.Context, userID string) ([]*User, error) {
	query := `SELECT id, name, username, phone_no, about
	          FROM users WHERE id <> $1 ORDER BY name`
	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []*User
	for rows.Next() {
		u := &User{}
		if err := rows.Scan(&u.ID, &u.Name, &u.Username, &u.PhoneNo, &u.About); err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}
