package db

import (
	"database/sql"

	"github.com/YannKr/certstamp/internal/model"
)

func CreateAPIKey(database *sql.DB, k *model.APIKey) error {
	return withRetry("create api key", func() error {
		_, err := database.Exec(
			`INSERT INTO api_keys (id, name, role, key_prefix, key_hash) VALUES (?, ?, ?, ?, ?)`,
			k.ID, k.Name, k.Role, k.KeyPrefix, k.KeyHash,
		)
		return err
	})
}

func CountAPIKeys(database *sql.DB) (int, error) {
	var n int
	err := database.QueryRow(`SELECT COUNT(*) FROM api_keys`).Scan(&n)
	return n, err
}

func GetAPIKeyByPrefix(database *sql.DB, prefix string) (*model.APIKey, error) {
	k := &model.APIKey{}
	var createdAt SQLiteTime
	var lastUsed sql.NullString
	err := database.QueryRow(
		`SELECT id, name, role, key_prefix, key_hash, created_at, last_used_at
		 FROM api_keys WHERE key_prefix = ?`, prefix,
	).Scan(&k.ID, &k.Name, &k.Role, &k.KeyPrefix, &k.KeyHash, &createdAt, &lastUsed)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	k.CreatedAt = createdAt.Time
	if lastUsed.Valid {
		var lu SQLiteTime
		if lu.Scan(lastUsed.String) == nil {
			k.LastUsedAt = &lu.Time
		}
	}
	return k, nil
}

func TouchAPIKeyUsed(database *sql.DB, id string) error {
	_, err := database.Exec(
		`UPDATE api_keys SET last_used_at = strftime('%Y-%m-%dT%H:%M:%fZ', 'now') WHERE id = ?`, id,
	)
	return err
}
