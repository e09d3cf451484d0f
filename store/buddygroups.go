package store

import (
	"context"
	"database/sql"

	"github.com/thinkparq/mgmtd/errors"
	"github.com/thinkparq/mgmtd/model"
)

// CreateBuddyGroup enforces I3: the two endpoints must be distinct targets
// of matching kind, and neither may already be primary or secondary of
// another group of the same kind.
func (s *Store) CreateBuddyGroup(ctx context.Context, g *model.BuddyGroup) (model.UID, error) {
	if g.PrimaryUID == g.SecondaryUID {
		return 0, errors.New(errors.KindConstraint, "store.CreateBuddyGroup", "primary and secondary must be distinct targets")
	}
	v, err := s.Submit(ctx, func(tx *sql.Tx) (any, error) {
		for _, memberUID := range []model.UID{g.PrimaryUID, g.SecondaryUID} {
			var kind string
			row := tx.QueryRow(`SELECT kind FROM targets WHERE uid = ?`, memberUID)
			if err := row.Scan(&kind); err != nil {
				if err == sql.ErrNoRows {
					return nil, errors.New(errors.KindConstraint, "store.CreateBuddyGroup", "buddy group member does not exist")
				}
				return nil, errors.Wrap(errors.KindIO, "store.CreateBuddyGroup", err)
			}
			if model.TargetKind(kind) != g.Kind {
				return nil, errors.New(errors.KindConstraint, "store.CreateBuddyGroup", "buddy group members must match the group's kind")
			}
			var inUse int
			row = tx.QueryRow(`SELECT count(*) FROM buddy_groups WHERE kind = ? AND (primary_uid = ? OR secondary_uid = ?)`,
				string(g.Kind), memberUID, memberUID)
			if err := row.Scan(&inUse); err != nil {
				return nil, errors.Wrap(errors.KindIO, "store.CreateBuddyGroup", err)
			}
			if inUse > 0 {
				return nil, errors.New(errors.KindConstraint, "store.CreateBuddyGroup",
					"target is already a member of another buddy group of this kind")
			}
		}

		res, err := tx.Exec(`INSERT INTO entities(kind, alias) VALUES ('buddy_group', ?)`, g.Alias)
		if err != nil {
			return nil, translateConstraint("store.CreateBuddyGroup", err)
		}
		uid, err := res.LastInsertId()
		if err != nil {
			return nil, errors.Wrap(errors.KindIO, "store.CreateBuddyGroup", err)
		}
		var poolUID any
		if g.PoolUID != 0 {
			poolUID = g.PoolUID
		}
		_, err = tx.Exec(`INSERT INTO buddy_groups(uid, kind, group_id, primary_uid, secondary_uid, pool_uid)
			VALUES (?, ?, ?, ?, ?, ?)`, uid, string(g.Kind), g.GroupID, g.PrimaryUID, g.SecondaryUID, poolUID)
		if err != nil {
			return nil, translateConstraint("store.CreateBuddyGroup", err)
		}
		return model.UID(uid), nil
	})
	if err != nil {
		return 0, err
	}
	return v.(model.UID), nil
}

// Failover atomically swaps a group's primary and secondary (§4.H, S6).
// The caller (buddy coordinator) is responsible for having verified the
// new primary is healthy before calling this.
func (s *Store) Failover(ctx context.Context, groupUID model.UID) (primary, secondary model.UID, err error) {
	v, err := s.Submit(ctx, func(tx *sql.Tx) (any, error) {
		var p, sec model.UID
		row := tx.QueryRow(`SELECT primary_uid, secondary_uid FROM buddy_groups WHERE uid = ?`, groupUID)
		if err := row.Scan(&p, &sec); err != nil {
			if err == sql.ErrNoRows {
				return nil, errors.ErrNotFound
			}
			return nil, errors.Wrap(errors.KindIO, "store.Failover", err)
		}
		if _, err := tx.Exec(`UPDATE buddy_groups SET primary_uid = ?, secondary_uid = ? WHERE uid = ?`, sec, p, groupUID); err != nil {
			return nil, translateConstraint("store.Failover", err)
		}
		return [2]model.UID{sec, p}, nil
	})
	if err != nil {
		return 0, 0, err
	}
	pair := v.([2]model.UID)
	return pair[0], pair[1], nil
}

func (s *Store) DeleteBuddyGroup(ctx context.Context, uid model.UID) error {
	_, err := s.Submit(ctx, func(tx *sql.Tx) (any, error) {
		res, err := tx.Exec(`DELETE FROM buddy_groups WHERE uid = ?`, uid)
		if err != nil {
			return nil, translateConstraint("store.DeleteBuddyGroup", err)
		}
		n, _ := res.RowsAffected()
		if n == 0 {
			return nil, errors.ErrNotFound
		}
		return nil, nil
	})
	return err
}

const buddyGroupSelect = `SELECT g.uid, e.alias, g.kind, g.group_id, g.primary_uid, g.secondary_uid, g.pool_uid
	FROM buddy_groups g JOIN entities e ON e.uid = g.uid`

func (s *Store) GetBuddyGroup(ctx context.Context, uid model.UID) (*model.BuddyGroup, error) {
	v, err := s.Query(ctx, func(db *sql.DB) (any, error) {
		return scanBuddyGroup(db.QueryRow(buddyGroupSelect+` WHERE g.uid = ?`, uid))
	})
	if err != nil {
		return nil, err
	}
	return v.(*model.BuddyGroup), nil
}

func (s *Store) ListBuddyGroups(ctx context.Context, kind model.TargetKind) ([]*model.BuddyGroup, error) {
	v, err := s.Query(ctx, func(db *sql.DB) (any, error) {
		rows, err := db.Query(buddyGroupSelect+` WHERE g.kind = ? ORDER BY g.group_id`, string(kind))
		if err != nil {
			return nil, errors.Wrap(errors.KindIO, "store.ListBuddyGroups", err)
		}
		defer rows.Close()
		var out []*model.BuddyGroup
		for rows.Next() {
			g, err := scanBuddyGroup(rows)
			if err != nil {
				return nil, err
			}
			out = append(out, g)
		}
		return out, rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return v.([]*model.BuddyGroup), nil
}

func (s *Store) NextGroupID(ctx context.Context, kind model.TargetKind) (uint16, error) {
	v, err := s.Query(ctx, func(db *sql.DB) (any, error) {
		rows, err := db.Query(`SELECT group_id FROM buddy_groups WHERE kind = ? ORDER BY group_id`, string(kind))
		if err != nil {
			return nil, errors.Wrap(errors.KindIO, "store.NextGroupID", err)
		}
		defer rows.Close()
		return smallestUnused16(rows)
	})
	if err != nil {
		return 0, err
	}
	return v.(uint16), nil
}

func scanBuddyGroup(row rowScanner) (*model.BuddyGroup, error) {
	g := &model.BuddyGroup{}
	var kind string
	var poolUID sql.NullInt64
	if err := row.Scan(&g.UID, &g.Alias, &kind, &g.GroupID, &g.PrimaryUID, &g.SecondaryUID, &poolUID); err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.ErrNotFound
		}
		return nil, errors.Wrap(errors.KindIO, "store.scanBuddyGroup", err)
	}
	g.Kind = model.TargetKind(kind)
	g.PoolUID = model.UID(poolUID.Int64)
	return g, nil
}
