package store

import (
	"context"
	"database/sql"

	"github.com/thinkparq/mgmtd/errors"
)

// SetConfigValue upserts one key in the store's internal config table,
// shared by the schema_version bookkeeping in migrations.go and the
// cluster-wide settings named in §3 (cluster_uuid, enterprise_features_allowed).
func (s *Store) SetConfigValue(ctx context.Context, key, value string) error {
	_, err := s.Submit(ctx, func(tx *sql.Tx) (any, error) {
		_, err := tx.Exec(`INSERT INTO config(key, value) VALUES (?, ?)
			ON CONFLICT(key) DO UPDATE SET value = excluded.value`, key, value)
		if err != nil {
			return nil, errors.Wrap(errors.KindIO, "store.SetConfigValue", err)
		}
		return nil, nil
	})
	return err
}

// GetConfigValue returns ("", false, nil) if key has never been set.
func (s *Store) GetConfigValue(ctx context.Context, key string) (string, bool, error) {
	v, err := s.Query(ctx, func(db *sql.DB) (any, error) {
		var value string
		row := db.QueryRow(`SELECT value FROM config WHERE key = ?`, key)
		if err := row.Scan(&value); err != nil {
			if err == sql.ErrNoRows {
				return [2]string{"", ""}, nil
			}
			return nil, errors.Wrap(errors.KindIO, "store.GetConfigValue", err)
		}
		return [2]string{value, "set"}, nil
	})
	if err != nil {
		return "", false, err
	}
	pair := v.([2]string)
	return pair[0], pair[1] == "set", nil
}

// ClusterUUID returns the store's cluster_uuid, generating and persisting
// one on first call (cold-start, S1).
func (s *Store) ClusterUUID(ctx context.Context, gen func() string) (string, error) {
	v, exists, err := s.GetConfigValue(ctx, "cluster_uuid")
	if err != nil {
		return "", err
	}
	if exists {
		return v, nil
	}
	id := gen()
	if err := s.SetConfigValue(ctx, "cluster_uuid", id); err != nil {
		return "", err
	}
	return id, nil
}
