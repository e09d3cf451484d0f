package store

import (
	"context"
	"database/sql"

	"github.com/thinkparq/mgmtd/errors"
	"github.com/thinkparq/mgmtd/model"
)

func (s *Store) CreateStoragePool(ctx context.Context, alias string, poolID uint16) (model.UID, error) {
	v, err := s.Submit(ctx, func(tx *sql.Tx) (any, error) {
		res, err := tx.Exec(`INSERT INTO entities(kind, alias) VALUES ('pool', ?)`, alias)
		if err != nil {
			return nil, translateConstraint("store.CreateStoragePool", err)
		}
		uid, err := res.LastInsertId()
		if err != nil {
			return nil, errors.Wrap(errors.KindIO, "store.CreateStoragePool", err)
		}
		if _, err := tx.Exec(`INSERT INTO storage_pools(uid, pool_id) VALUES (?, ?)`, uid, poolID); err != nil {
			return nil, translateConstraint("store.CreateStoragePool", err)
		}
		return model.UID(uid), nil
	})
	if err != nil {
		return 0, err
	}
	return v.(model.UID), nil
}

// DeleteStoragePool rejects deletion of the default pool (I6) or a pool
// that still contains targets (protected by RESTRICT on targets.pool_uid).
func (s *Store) DeleteStoragePool(ctx context.Context, uid model.UID) error {
	_, err := s.Submit(ctx, func(tx *sql.Tx) (any, error) {
		var poolID uint16
		row := tx.QueryRow(`SELECT pool_id FROM storage_pools WHERE uid = ?`, uid)
		if err := row.Scan(&poolID); err != nil {
			if err == sql.ErrNoRows {
				return nil, errors.ErrNotFound
			}
			return nil, errors.Wrap(errors.KindIO, "store.DeleteStoragePool", err)
		}
		if poolID == model.DefaultStoragePoolID {
			return nil, errors.ErrDefaultPoolProtect
		}
		if _, err := tx.Exec(`DELETE FROM storage_pools WHERE uid = ?`, uid); err != nil {
			return nil, translateConstraint("store.DeleteStoragePool", err)
		}
		return nil, nil
	})
	return err
}

func (s *Store) ListStoragePools(ctx context.Context) ([]*model.StoragePool, error) {
	v, err := s.Query(ctx, func(db *sql.DB) (any, error) {
		rows, err := db.Query(`SELECT p.uid, e.alias, p.pool_id FROM storage_pools p JOIN entities e ON e.uid = p.uid ORDER BY p.pool_id`)
		if err != nil {
			return nil, errors.Wrap(errors.KindIO, "store.ListStoragePools", err)
		}
		defer rows.Close()
		var out []*model.StoragePool
		for rows.Next() {
			p := &model.StoragePool{}
			if err := rows.Scan(&p.UID, &p.Alias, &p.PoolID); err != nil {
				return nil, errors.Wrap(errors.KindIO, "store.ListStoragePools", err)
			}
			out = append(out, p)
		}
		return out, rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return v.([]*model.StoragePool), nil
}

func (s *Store) GetStoragePool(ctx context.Context, uid model.UID) (*model.StoragePool, error) {
	v, err := s.Query(ctx, func(db *sql.DB) (any, error) {
		p := &model.StoragePool{}
		row := db.QueryRow(`SELECT p.uid, e.alias, p.pool_id FROM storage_pools p JOIN entities e ON e.uid = p.uid WHERE p.uid = ?`, uid)
		if err := row.Scan(&p.UID, &p.Alias, &p.PoolID); err != nil {
			if err == sql.ErrNoRows {
				return nil, errors.ErrNotFound
			}
			return nil, errors.Wrap(errors.KindIO, "store.GetStoragePool", err)
		}
		return p, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*model.StoragePool), nil
}
