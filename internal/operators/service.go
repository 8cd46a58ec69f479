// Package operators holds the accounts that drive the admin plane: fleet
// staff who register devices and schedule commands. Device credentials are
// a separate mechanism, see the devices package.
package operators

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ngajar-feri/myrvm-edge/internal/auth"
)

var (
	ErrUsernameExists     = errors.New("username already exists")
	ErrInvalidCredentials = errors.New("invalid credentials")
)

type Operator struct {
	ID        uuid.UUID
	Username  string
	CreatedAt time.Time
}

type Service struct {
	pool      *pgxpool.Pool
	tokenConf auth.Config
}

func NewService(pool *pgxpool.Pool, tokenConf auth.Config) *Service {
	return &Service{pool: pool, tokenConf: tokenConf}
}

func (s *Service) Register(ctx context.Context, username, password string) (*Operator, error) {
	hash, err := HashPassword(password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	var op Operator
	row := s.pool.QueryRow(ctx, `
		INSERT INTO operators (username, password_hash)
		VALUES ($1, $2)
		RETURNING id, username, created_at`, username, hash)
	if err := row.Scan(&op.ID, &op.Username, &op.CreatedAt); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return nil, ErrUsernameExists
		}
		return nil, fmt.Errorf("create operator: %w", err)
	}
	return &op, nil
}

func (s *Service) Login(ctx context.Context, username, password string) (string, error) {
	var (
		id   uuid.UUID
		hash string
	)
	row := s.pool.QueryRow(ctx, `
		SELECT id, password_hash FROM operators WHERE username = $1`, username)
	if err := row.Scan(&id, &hash); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", ErrInvalidCredentials
		}
		return "", fmt.Errorf("query operator: %w", err)
	}

	if !CheckPassword(password, hash) {
		return "", ErrInvalidCredentials
	}

	token, err := auth.GenerateOperatorToken(s.tokenConf, id.String(), username)
	if err != nil {
		return "", fmt.Errorf("generate token: %w", err)
	}
	return token, nil
}
