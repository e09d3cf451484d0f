package store

import (
	"context"
	"database/sql"

	"github.com/thinkparq/mgmtd/errors"
	"github.com/thinkparq/mgmtd/model"
)

// SetQuotaLimit upserts a per-identity limit for one (quota_id, id_type,
// quota_type, pool). Used by the quota CLI/RPC surface, not the periodic
// pull/push engine.
func (s *Store) SetQuotaLimit(ctx context.Context, l model.QuotaLimit) error {
	_, err := s.Submit(ctx, func(tx *sql.Tx) (any, error) {
		_, err := tx.Exec(`INSERT INTO quota_limits(quota_id, id_type, quota_type, pool_uid, value)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT(quota_id, id_type, quota_type, pool_uid) DO UPDATE SET value = excluded.value`,
			l.QuotaID, string(l.IDType), string(l.QuotaType), l.PoolUID, l.Value)
		if err != nil {
			return nil, translateConstraint("store.SetQuotaLimit", err)
		}
		return nil, nil
	})
	return err
}

func (s *Store) DeleteQuotaLimit(ctx context.Context, id uint32, idType model.IDType, qType model.QuotaType, poolUID model.UID) error {
	_, err := s.Submit(ctx, func(tx *sql.Tx) (any, error) {
		_, err := tx.Exec(`DELETE FROM quota_limits WHERE quota_id=? AND id_type=? AND quota_type=? AND pool_uid=?`,
			id, string(idType), string(qType), poolUID)
		if err != nil {
			return nil, errors.Wrap(errors.KindIO, "store.DeleteQuotaLimit", err)
		}
		return nil, nil
	})
	return err
}

// ListQuotaLimits returns every explicit limit for one pool, used by the
// quota engine's compare phase (§4.G) to build the enumerated identity set.
func (s *Store) ListQuotaLimits(ctx context.Context, poolUID model.UID) ([]model.QuotaLimit, error) {
	v, err := s.Query(ctx, func(db *sql.DB) (any, error) {
		rows, err := db.Query(`SELECT quota_id, id_type, quota_type, pool_uid, value FROM quota_limits WHERE pool_uid = ?`, poolUID)
		if err != nil {
			return nil, errors.Wrap(errors.KindIO, "store.ListQuotaLimits", err)
		}
		defer rows.Close()
		var out []model.QuotaLimit
		for rows.Next() {
			var l model.QuotaLimit
			var idType, qType string
			if err := rows.Scan(&l.QuotaID, &idType, &qType, &l.PoolUID, &l.Value); err != nil {
				return nil, errors.Wrap(errors.KindIO, "store.ListQuotaLimits", err)
			}
			l.IDType, l.QuotaType = model.IDType(idType), model.QuotaType(qType)
			out = append(out, l)
		}
		return out, rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return v.([]model.QuotaLimit), nil
}

func (s *Store) SetQuotaDefaultLimit(ctx context.Context, l model.QuotaDefaultLimit) error {
	_, err := s.Submit(ctx, func(tx *sql.Tx) (any, error) {
		_, err := tx.Exec(`INSERT INTO quota_default_limits(id_type, quota_type, pool_uid, value)
			VALUES (?, ?, ?, ?)
			ON CONFLICT(id_type, quota_type, pool_uid) DO UPDATE SET value = excluded.value`,
			string(l.IDType), string(l.QuotaType), l.PoolUID, l.Value)
		if err != nil {
			return nil, translateConstraint("store.SetQuotaDefaultLimit", err)
		}
		return nil, nil
	})
	return err
}

func (s *Store) GetQuotaDefaultLimit(ctx context.Context, idType model.IDType, qType model.QuotaType, poolUID model.UID) (uint64, error) {
	v, err := s.Query(ctx, func(db *sql.DB) (any, error) {
		var value uint64
		row := db.QueryRow(`SELECT value FROM quota_default_limits WHERE id_type=? AND quota_type=? AND pool_uid=?`,
			string(idType), string(qType), poolUID)
		if err := row.Scan(&value); err != nil {
			if err == sql.ErrNoRows {
				return uint64(0), nil
			}
			return nil, errors.Wrap(errors.KindIO, "store.GetQuotaDefaultLimit", err)
		}
		return value, nil
	})
	if err != nil {
		return 0, err
	}
	return v.(uint64), nil
}

// RecordQuotaUsage replaces one target's reported usage rows for a pool, as
// pulled via BeeMsg GetQuotaInfo (§4.B, §4.G). The pull is always a full
// replace of that target's contribution, never an incremental update.
func (s *Store) RecordQuotaUsage(ctx context.Context, targetUID model.UID, usage []model.QuotaUsage) error {
	_, err := s.Submit(ctx, func(tx *sql.Tx) (any, error) {
		if _, err := tx.Exec(`DELETE FROM quota_usage WHERE target_uid = ?`, targetUID); err != nil {
			return nil, errors.Wrap(errors.KindIO, "store.RecordQuotaUsage", err)
		}
		for _, u := range usage {
			_, err := tx.Exec(`INSERT INTO quota_usage(quota_id, id_type, quota_type, target_uid, value) VALUES (?, ?, ?, ?, ?)`,
				u.QuotaID, string(u.IDType), string(u.QuotaType), targetUID, u.Value)
			if err != nil {
				return nil, translateConstraint("store.RecordQuotaUsage", err)
			}
		}
		return nil, nil
	})
	return err
}

// SumQuotaUsage aggregates usage for one identity across every target in a
// pool, the value the quota engine compares against the effective limit.
func (s *Store) SumQuotaUsage(ctx context.Context, poolUID model.UID, id uint32, idType model.IDType, qType model.QuotaType) (uint64, error) {
	v, err := s.Query(ctx, func(db *sql.DB) (any, error) {
		var sum sql.NullInt64
		row := db.QueryRow(`SELECT sum(u.value) FROM quota_usage u JOIN targets t ON t.uid = u.target_uid
			WHERE t.pool_uid = ? AND u.quota_id = ? AND u.id_type = ? AND u.quota_type = ?`,
			poolUID, id, string(idType), string(qType))
		if err := row.Scan(&sum); err != nil {
			return nil, errors.Wrap(errors.KindIO, "store.SumQuotaUsage", err)
		}
		return uint64(sum.Int64), nil
	})
	if err != nil {
		return 0, err
	}
	return v.(uint64), nil
}

// ListQuotaIdentities returns every distinct identity with recorded usage
// in a pool, used to seed the exceeded-set computation alongside the
// explicitly enumerated identities from the quota config (§4.G).
func (s *Store) ListQuotaIdentities(ctx context.Context, poolUID model.UID, idType model.IDType, qType model.QuotaType) ([]uint32, error) {
	v, err := s.Query(ctx, func(db *sql.DB) (any, error) {
		rows, err := db.Query(`SELECT DISTINCT u.quota_id FROM quota_usage u JOIN targets t ON t.uid = u.target_uid
			WHERE t.pool_uid = ? AND u.id_type = ? AND u.quota_type = ?`, poolUID, string(idType), string(qType))
		if err != nil {
			return nil, errors.Wrap(errors.KindIO, "store.ListQuotaIdentities", err)
		}
		defer rows.Close()
		var out []uint32
		for rows.Next() {
			var id uint32
			if err := rows.Scan(&id); err != nil {
				return nil, errors.Wrap(errors.KindIO, "store.ListQuotaIdentities", err)
			}
			out = append(out, id)
		}
		return out, rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return v.([]uint32), nil
}
