package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// PostgresMessageChecker is the cold tier of the two-tier dedup: it
// looks messages up in the durable processed-message log when the
// in-memory LRU misses.
type PostgresMessageChecker struct {
	db *sql.DB
}

func NewPostgresMessageChecker(db *sql.DB) *PostgresMessageChecker {
	return &PostgresMessageChecker{
		db: db,
	}
}

// IsDuplicate checks if the message exists in the processed-message log.
func (pc *PostgresMessageChecker) IsDuplicate(kind string, messageID string) (bool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()

	query := `
        SELECT 1
        FROM message_log.processed_messages
        WHERE message_id = $1 AND kind = $2
        LIMIT 1
    `

	var exists int
	err := pc.db.QueryRowContext(ctx, query, messageID, kind).Scan(&exists)

	if err == sql.ErrNoRows {
		return false, nil // Not found - not a duplicate
	}

	if err != nil {
		return false, err // DB error
	}

	return true, nil // Found - is duplicate
}

// LoadRecentKeys returns composite "kind:message_id" keys for the most
// recently processed messages, used to warm the LRU on restart.
func (pc *PostgresMessageChecker) LoadRecentKeys(ctx context.Context, limit int) ([]string, error) {
	rows, err := pc.db.QueryContext(ctx, `
        SELECT kind, message_id
        FROM message_log.processed_messages
        ORDER BY processed_at DESC
        LIMIT $1
    `, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var kind, id string
		if err := rows.Scan(&kind, &id); err != nil {
			return nil, err
		}
		keys = append(keys, fmt.Sprintf("%s:%s", kind, id))
	}
	return keys, rows.Err()
}
