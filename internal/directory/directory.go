// Package directory resolves numeric user ids to display identities and
// remembers which recipients turned out to be bot accounts.
package directory

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Person is a resolved recipient identity.
type Person struct {
	Name     string
	Username string
	IsBot    bool
}

// Directory is the recipient-lookup collaborator.
type Directory interface {
	// ResolveDisplayNames returns identities for the given user ids.
	// Unknown ids are simply absent from the result.
	ResolveDisplayNames(ctx context.Context, userIDs []int64) (map[int64]Person, error)
	// MarkBot permanently flags a user id as a bot account so future
	// passes skip it without a lookup.
	MarkBot(ctx context.Context, userID int64) error
}

// PGDirectory implements Directory over Postgres.
type PGDirectory struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewPGDirectory creates a Postgres-backed recipient directory.
func NewPGDirectory(pool *pgxpool.Pool, log *slog.Logger) *PGDirectory {
	if log == nil {
		log = slog.Default()
	}
	return &PGDirectory{
		pool:   pool,
		logger: log.With(slog.String("service", "directory")),
	}
}

func (d *PGDirectory) ResolveDisplayNames(ctx context.Context, userIDs []int64) (map[int64]Person, error) {
	result := make(map[int64]Person, len(userIDs))
	if len(userIDs) == 0 {
		return result, nil
	}
	rows, err := d.pool.Query(ctx,
		`SELECT user_id, display_name, username, is_bot FROM chat_recipients WHERE user_id = ANY($1)`,
		userIDs)
	if err != nil {
		return nil, fmt.Errorf("resolve recipients: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			userID int64
			person Person
		)
		if err := rows.Scan(&userID, &person.Name, &person.Username, &person.IsBot); err != nil {
			return nil, fmt.Errorf("scan recipient: %w", err)
		}
		result[userID] = person
	}
	return result, rows.Err()
}

func (d *PGDirectory) MarkBot(ctx context.Context, userID int64) error {
	_, err := d.pool.Exec(ctx,
		`INSERT INTO chat_recipients (user_id, is_bot) VALUES ($1, TRUE)
		 ON CONFLICT (user_id) DO UPDATE SET is_bot = TRUE, updated_at = now()`,
		userID)
	if err != nil {
		return fmt.Errorf("mark bot: %w", err)
	}
	d.logger.Info("recipient flagged as bot", slog.Int64("user_id", userID))
	return nil
}
