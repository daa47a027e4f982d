// Package directory resolves notification targets from the users table.
package directory

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/segyhp/emi-engine/internal/domain"
)

// ErrUserNotFound is returned when the user id is unknown
var ErrUserNotFound = errors.New("user not found")

type Directory struct {
	db *sqlx.DB
}

func New(db *sqlx.DB) *Directory {
	return &Directory{db: db}
}

func (d *Directory) GetUser(ctx context.Context, userID string) (*domain.User, error) {
	var user domain.User
	err := d.db.GetContext(ctx, &user, `SELECT id, name, email FROM users WHERE id = $1`, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", ErrUserNotFound, userID)
		}
		return nil, err
	}
	return &user, nil
}
