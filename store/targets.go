package store

import (
	"context"
	"database/sql"
	"strconv"

	"github.com/thinkparq/mgmtd/errors"
	"github.com/thinkparq/mgmtd/model"
)

// CreateTarget inserts a target. Meta targets must have a parent node
// (I7); storage targets may be created unmapped (NodeUID == 0). The caller
// is responsible for t.TargetID already being unique within its kind; use
// CreateTargetAutoID when the caller wants the store to assign one.
func (s *Store) CreateTarget(ctx context.Context, t *model.Target) (model.UID, error) {
	if t.Kind == model.TargetMeta && t.NodeUID == 0 {
		return 0, errors.New(errors.KindConstraint, "store.CreateTarget", "meta targets may not be unmapped")
	}
	v, err := s.Submit(ctx, func(tx *sql.Tx) (any, error) {
		return insertTargetTx(tx, t)
	})
	if err != nil {
		return 0, err
	}
	return v.(model.UID), nil
}

// CreateTargetAutoID assigns t the smallest unused target_id in its kind's
// namespace and inserts it inside the same writer transaction, so two
// concurrent RegisterTarget/AddTarget calls for the same kind can never
// both scan the same "smallest unused" id before either commits (P3).
// An empty t.Alias is filled in as "<kind>_target_<id>".
func (s *Store) CreateTargetAutoID(ctx context.Context, t *model.Target) (model.UID, error) {
	if t.Kind == model.TargetMeta && t.NodeUID == 0 {
		return 0, errors.New(errors.KindConstraint, "store.CreateTargetAutoID", "meta targets may not be unmapped")
	}
	v, err := s.Submit(ctx, func(tx *sql.Tx) (any, error) {
		id, err := nextTargetIDTx(tx, t.Kind)
		if err != nil {
			return nil, err
		}
		t.TargetID = id
		if t.Alias == "" {
			t.Alias = string(t.Kind) + "_target_" + strconv.FormatUint(uint64(id), 10)
		}
		return insertTargetTx(tx, t)
	})
	if err != nil {
		return 0, err
	}
	return v.(model.UID), nil
}

func insertTargetTx(tx *sql.Tx, t *model.Target) (model.UID, error) {
	if t.NodeUID != 0 {
		var nodeKind string
		row := tx.QueryRow(`SELECT kind FROM nodes WHERE uid = ?`, t.NodeUID)
		if err := row.Scan(&nodeKind); err != nil {
			if err == sql.ErrNoRows {
				return 0, errors.New(errors.KindConstraint, "store.CreateTarget", "parent node does not exist")
			}
			return 0, errors.Wrap(errors.KindIO, "store.CreateTarget", err)
		}
		if model.NodeKind(nodeKind) != t.Kind.NodeKind() {
			return 0, errors.New(errors.KindConstraint, "store.CreateTarget", "target kind must match parent node kind")
		}
	}

	res, err := tx.Exec(`INSERT INTO entities(kind, alias) VALUES ('target', ?)`, t.Alias)
	if err != nil {
		return 0, translateConstraint("store.CreateTarget", err)
	}
	uid, err := res.LastInsertId()
	if err != nil {
		return 0, errors.Wrap(errors.KindIO, "store.CreateTarget", err)
	}

	var nodeUID, poolUID any
	if t.NodeUID != 0 {
		nodeUID = t.NodeUID
	}
	if t.PoolUID != 0 {
		poolUID = t.PoolUID
	}
	_, err = tx.Exec(`INSERT INTO targets(uid, kind, target_id, node_uid, pool_uid, consistency)
		VALUES (?, ?, ?, ?, ?, ?)`, uid, string(t.Kind), t.TargetID, nodeUID, poolUID, string(model.ConsistencyGood))
	if err != nil {
		return 0, translateConstraint("store.CreateTarget", err)
	}
	return model.UID(uid), nil
}

// UpdateTargetCapacity records a capacity report (§3's "may be NULL until
// first report"); nil-able fields are always written together.
func (s *Store) UpdateTargetCapacity(ctx context.Context, uid model.UID, cap model.Capacity, reportedAt int64) error {
	_, err := s.Submit(ctx, func(tx *sql.Tx) (any, error) {
		res, err := tx.Exec(`UPDATE targets SET total_space=?, total_inodes=?, free_space=?, free_inodes=?, last_capacity_report_at=?
			WHERE uid = ?`, cap.TotalSpace, cap.TotalInodes, cap.FreeSpace, cap.FreeInodes, reportedAt, uid)
		if err != nil {
			return nil, errors.Wrap(errors.KindIO, "store.UpdateTargetCapacity", err)
		}
		n, _ := res.RowsAffected()
		if n == 0 {
			return nil, errors.ErrNotFound
		}
		return nil, nil
	})
	return err
}

// SetTargetConsistency updates a target's consistency state, used by both
// the buddy-group coordinator and the BeeMsg SetTargetConsistency handler.
func (s *Store) SetTargetConsistency(ctx context.Context, uid model.UID, c model.Consistency) error {
	_, err := s.Submit(ctx, func(tx *sql.Tx) (any, error) {
		res, err := tx.Exec(`UPDATE targets SET consistency = ? WHERE uid = ?`, string(c), uid)
		if err != nil {
			return nil, errors.Wrap(errors.KindIO, "store.SetTargetConsistency", err)
		}
		n, _ := res.RowsAffected()
		if n == 0 {
			return nil, errors.ErrNotFound
		}
		return nil, nil
	})
	return err
}

// RemapTarget sets (or clears, with nodeUID==0) a storage target's parent
// node. Meta targets may never be unmapped (I7).
func (s *Store) RemapTarget(ctx context.Context, uid model.UID, nodeUID model.UID) error {
	_, err := s.Submit(ctx, func(tx *sql.Tx) (any, error) {
		var kind string
		row := tx.QueryRow(`SELECT kind FROM targets WHERE uid = ?`, uid)
		if err := row.Scan(&kind); err != nil {
			if err == sql.ErrNoRows {
				return nil, errors.ErrNotFound
			}
			return nil, errors.Wrap(errors.KindIO, "store.RemapTarget", err)
		}
		if model.TargetKind(kind) == model.TargetMeta && nodeUID == 0 {
			return nil, errors.New(errors.KindConstraint, "store.RemapTarget", "meta targets may not be unmapped")
		}
		var val any
		if nodeUID != 0 {
			val = nodeUID
		}
		if _, err := tx.Exec(`UPDATE targets SET node_uid = ? WHERE uid = ?`, val, uid); err != nil {
			return nil, translateConstraint("store.RemapTarget", err)
		}
		return nil, nil
	})
	return err
}

func (s *Store) DeleteTarget(ctx context.Context, uid model.UID) error {
	_, err := s.Submit(ctx, func(tx *sql.Tx) (any, error) {
		res, err := tx.Exec(`DELETE FROM targets WHERE uid = ?`, uid)
		if err != nil {
			return nil, translateConstraint("store.DeleteTarget", err)
		}
		n, _ := res.RowsAffected()
		if n == 0 {
			return nil, errors.ErrNotFound
		}
		return nil, nil
	})
	return err
}

func (s *Store) GetTarget(ctx context.Context, uid model.UID) (*model.Target, error) {
	v, err := s.Query(ctx, func(db *sql.DB) (any, error) {
		return scanTarget(db.QueryRow(targetSelect+` WHERE t.uid = ?`, uid))
	})
	if err != nil {
		return nil, err
	}
	return v.(*model.Target), nil
}

// ListTargets returns all targets of the given kind, ordered by target_id.
func (s *Store) ListTargets(ctx context.Context, kind model.TargetKind) ([]*model.Target, error) {
	v, err := s.Query(ctx, func(db *sql.DB) (any, error) {
		rows, err := db.Query(targetSelect+` WHERE t.kind = ? ORDER BY t.target_id`, string(kind))
		if err != nil {
			return nil, errors.Wrap(errors.KindIO, "store.ListTargets", err)
		}
		defer rows.Close()
		var out []*model.Target
		for rows.Next() {
			t, err := scanTarget(rows)
			if err != nil {
				return nil, err
			}
			out = append(out, t)
		}
		return out, rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return v.([]*model.Target), nil
}

// ListTargetsByPool returns all storage targets in the given pool; used by
// the capacity-pool classifier (§4.F) and the quota engine (§4.G).
func (s *Store) ListTargetsByPool(ctx context.Context, poolUID model.UID) ([]*model.Target, error) {
	v, err := s.Query(ctx, func(db *sql.DB) (any, error) {
		rows, err := db.Query(targetSelect+` WHERE t.pool_uid = ? ORDER BY t.target_id`, poolUID)
		if err != nil {
			return nil, errors.Wrap(errors.KindIO, "store.ListTargetsByPool", err)
		}
		defer rows.Close()
		var out []*model.Target
		for rows.Next() {
			t, err := scanTarget(rows)
			if err != nil {
				return nil, err
			}
			out = append(out, t)
		}
		return out, rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return v.([]*model.Target), nil
}

// NextTargetID is a read-only preview against the Query pool, not the
// writer: it must not be used to decide what id to insert, since another
// writer transaction could claim that id in between (see
// CreateTargetAutoID, which does both atomically).
func (s *Store) NextTargetID(ctx context.Context, kind model.TargetKind) (uint16, error) {
	v, err := s.Query(ctx, func(db *sql.DB) (any, error) {
		rows, err := db.Query(`SELECT target_id FROM targets WHERE kind = ? ORDER BY target_id`, string(kind))
		if err != nil {
			return nil, errors.Wrap(errors.KindIO, "store.NextTargetID", err)
		}
		defer rows.Close()
		return smallestUnused16(rows)
	})
	if err != nil {
		return 0, err
	}
	return v.(uint16), nil
}

func nextTargetIDTx(tx *sql.Tx, kind model.TargetKind) (uint16, error) {
	rows, err := tx.Query(`SELECT target_id FROM targets WHERE kind = ? ORDER BY target_id`, string(kind))
	if err != nil {
		return 0, errors.Wrap(errors.KindIO, "store.nextTargetIDTx", err)
	}
	defer rows.Close()
	return smallestUnused16(rows)
}

const targetSelect = `SELECT t.uid, e.alias, t.kind, t.target_id, t.node_uid, t.pool_uid,
	t.total_space, t.total_inodes, t.free_space, t.free_inodes, t.last_capacity_report_at, t.consistency
	FROM targets t JOIN entities e ON e.uid = t.uid`

func scanTarget(row rowScanner) (*model.Target, error) {
	t := &model.Target{}
	var kind, consistency string
	var nodeUID, poolUID sql.NullInt64
	var totalSpace, totalInodes, freeSpace, freeInodes sql.NullInt64
	if err := row.Scan(&t.UID, &t.Alias, &kind, &t.TargetID, &nodeUID, &poolUID,
		&totalSpace, &totalInodes, &freeSpace, &freeInodes, &t.LastCapacityReportAt, &consistency); err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.ErrNotFound
		}
		return nil, errors.Wrap(errors.KindIO, "store.scanTarget", err)
	}
	t.Kind = model.TargetKind(kind)
	t.Consistency = model.Consistency(consistency)
	t.NodeUID = model.UID(nodeUID.Int64)
	t.PoolUID = model.UID(poolUID.Int64)
	if totalSpace.Valid {
		t.Capacity = model.Capacity{
			Valid:       true,
			TotalSpace:  uint64(totalSpace.Int64),
			TotalInodes: uint64(totalInodes.Int64),
			FreeSpace:   uint64(freeSpace.Int64),
			FreeInodes:  uint64(freeInodes.Int64),
		}
	}
	return t, nil
}
