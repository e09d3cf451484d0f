package store

import (
	"context"
	"database/sql"

	"github.com/thinkparq/mgmtd/errors"
	"github.com/thinkparq/mgmtd/model"
)

// CreateNode inserts a new node entity and its NIC list in one transaction,
// returning the newly minted UID. alias must be globally unique (I8). The
// caller is responsible for n.NodeID already being unique within its kind;
// use CreateNodeAutoID when the caller wants the store to assign one.
func (s *Store) CreateNode(ctx context.Context, n *model.Node) (model.UID, error) {
	v, err := s.Submit(ctx, func(tx *sql.Tx) (any, error) {
		return insertNodeTx(tx, n)
	})
	if err != nil {
		return 0, err
	}
	return v.(model.UID), nil
}

// CreateNodeAutoID assigns n the smallest unused node_id in its kind's
// namespace and inserts it, both inside the same writer transaction. Doing
// the scan and the insert as one Submit call (rather than a separate
// NextNodeID query followed by CreateNode) is what makes concurrent
// RegisterNode calls for the same kind each land on a distinct id (P3):
// the single writer goroutine never interleaves two callers' scan-then-
// insert sequences. alias, if non-nil, is called with the assigned id to
// fill n.Alias before the insert, for callers whose alias convention is
// derived from the id (e.g. topology's "<kind>_<id>" default).
func (s *Store) CreateNodeAutoID(ctx context.Context, n *model.Node, alias func(id uint16) string) (model.UID, error) {
	v, err := s.Submit(ctx, func(tx *sql.Tx) (any, error) {
		id, err := nextNodeIDTx(tx, n.Kind)
		if err != nil {
			return nil, err
		}
		n.NodeID = id
		if alias != nil {
			n.Alias = alias(id)
		}
		return insertNodeTx(tx, n)
	})
	if err != nil {
		return 0, err
	}
	return v.(model.UID), nil
}

func insertNodeTx(tx *sql.Tx, n *model.Node) (model.UID, error) {
	res, err := tx.Exec(`INSERT INTO entities(kind, alias) VALUES ('node', ?)`, n.Alias)
	if err != nil {
		return 0, translateConstraint("store.CreateNode", err)
	}
	uid, err := res.LastInsertId()
	if err != nil {
		return 0, errors.Wrap(errors.KindIO, "store.CreateNode", err)
	}
	_, err = tx.Exec(`INSERT INTO nodes(uid, kind, node_id, port, last_contact, machine_uuid, state)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		uid, string(n.Kind), n.NodeID, n.Port, n.LastContact, n.MachineUUID, string(n.State))
	if err != nil {
		return 0, translateConstraint("store.CreateNode", err)
	}
	if err := replaceNics(tx, model.UID(uid), n.Nics); err != nil {
		return 0, err
	}
	return model.UID(uid), nil
}

func replaceNics(tx *sql.Tx, nodeUID model.UID, nics []model.Nic) error {
	if _, err := tx.Exec(`DELETE FROM nics WHERE node_uid = ?`, nodeUID); err != nil {
		return errors.Wrap(errors.KindIO, "store.replaceNics", err)
	}
	for i, nic := range nics {
		if _, err := tx.Exec(`INSERT INTO nics(node_uid, ord, nic_type, addr, if_name) VALUES (?, ?, ?, ?, ?)`,
			nodeUID, i, uint8(nic.Type), nic.Addr, nic.IfName); err != nil {
			return translateConstraint("store.replaceNics", err)
		}
	}
	return nil
}

// UpdateNodeHeartbeat updates last_contact and, optionally, state; used by
// both the BeeMsg heartbeat handler and the liveness ticker (§4.E).
func (s *Store) UpdateNodeHeartbeat(ctx context.Context, uid model.UID, lastContact int64, state model.RegistrationState) error {
	_, err := s.Submit(ctx, func(tx *sql.Tx) (any, error) {
		res, err := tx.Exec(`UPDATE nodes SET last_contact = ?, state = ? WHERE uid = ?`,
			lastContact, string(state), uid)
		if err != nil {
			return nil, errors.Wrap(errors.KindIO, "store.UpdateNodeHeartbeat", err)
		}
		n, _ := res.RowsAffected()
		if n == 0 {
			return nil, errors.ErrNotFound
		}
		return nil, nil
	})
	return err
}

// DeleteNode removes a node and, via ON DELETE CASCADE, its NIC rows and
// entity registry row. Targets that reference it as parent are protected by
// RESTRICT (§4.A) unless they are storage targets being explicitly unmapped
// first by the caller.
func (s *Store) DeleteNode(ctx context.Context, uid model.UID) error {
	if uid == model.ManagementUID {
		return errors.ErrManagementProtect
	}
	_, err := s.Submit(ctx, func(tx *sql.Tx) (any, error) {
		res, err := tx.Exec(`DELETE FROM nodes WHERE uid = ?`, uid)
		if err != nil {
			return nil, translateConstraint("store.DeleteNode", err)
		}
		n, _ := res.RowsAffected()
		if n == 0 {
			return nil, errors.ErrNotFound
		}
		return nil, nil
	})
	return err
}

// GetNode fetches one node by UID, including its NIC list, using a
// read-only handle (no writer serialization needed for reads).
func (s *Store) GetNode(ctx context.Context, uid model.UID) (*model.Node, error) {
	v, err := s.Query(ctx, func(db *sql.DB) (any, error) {
		return scanNode(db, `n.uid = ?`, uid)
	})
	if err != nil {
		return nil, err
	}
	return v.(*model.Node), nil
}

// ListNodes returns all nodes of the given kind, ordered by node_id.
func (s *Store) ListNodes(ctx context.Context, kind model.NodeKind) ([]*model.Node, error) {
	v, err := s.Query(ctx, func(db *sql.DB) (any, error) {
		rows, err := db.QueryContext(ctx, `SELECT n.uid, e.alias, n.kind, n.node_id, n.port, n.last_contact, n.machine_uuid, n.state
			FROM nodes n JOIN entities e ON e.uid = n.uid WHERE n.kind = ? ORDER BY n.node_id`, string(kind))
		if err != nil {
			return nil, errors.Wrap(errors.KindIO, "store.ListNodes", err)
		}
		defer rows.Close()
		var out []*model.Node
		for rows.Next() {
			n, err := scanNodeRow(rows)
			if err != nil {
				return nil, err
			}
			out = append(out, n)
		}
		for _, n := range out {
			nics, err := loadNics(db, n.UID)
			if err != nil {
				return nil, err
			}
			n.Nics = nics
		}
		return out, rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return v.([]*model.Node), nil
}

// NextNodeID returns the smallest unused node_id in kind's namespace, per
// the ID assignment rule in §4.E. This is a read-only preview against the
// Query pool, not the writer: it must not be used to decide what id to
// insert, since another writer transaction could claim that id in between
// (see CreateNodeAutoID, which does both atomically).
func (s *Store) NextNodeID(ctx context.Context, kind model.NodeKind) (uint16, error) {
	v, err := s.Query(ctx, func(db *sql.DB) (any, error) {
		rows, err := db.QueryContext(ctx, `SELECT node_id FROM nodes WHERE kind = ? ORDER BY node_id`, string(kind))
		if err != nil {
			return nil, errors.Wrap(errors.KindIO, "store.NextNodeID", err)
		}
		defer rows.Close()
		return smallestUnused16(rows)
	})
	if err != nil {
		return 0, err
	}
	return v.(uint16), nil
}

// FindNodeByMachineUUID supports idempotent re-registration (P4): the same
// machine UUID must always get back the same node_id.
func (s *Store) FindNodeByMachineUUID(ctx context.Context, kind model.NodeKind, machineUUID string) (*model.Node, error) {
	v, err := s.Query(ctx, func(db *sql.DB) (any, error) {
		n, err := scanNode(db, `n.kind = ? AND n.machine_uuid = ?`, string(kind), machineUUID)
		if err != nil {
			return nil, err
		}
		return n, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*model.Node), nil
}

// nextNodeIDTx scans for the smallest unused node_id within the calling
// transaction, so the scan and the row it informs are serialized by the
// same writer goroutine and can never race against another insert.
func nextNodeIDTx(tx *sql.Tx, kind model.NodeKind) (uint16, error) {
	rows, err := tx.Query(`SELECT node_id FROM nodes WHERE kind = ? ORDER BY node_id`, string(kind))
	if err != nil {
		return 0, errors.Wrap(errors.KindIO, "store.nextNodeIDTx", err)
	}
	defer rows.Close()
	return smallestUnused16(rows)
}

func smallestUnused16(rows *sql.Rows) (uint16, error) {
	want := uint16(1)
	for rows.Next() {
		var id uint16
		if err := rows.Scan(&id); err != nil {
			return 0, errors.Wrap(errors.KindIO, "store.smallestUnused16", err)
		}
		if id == want {
			want++
			continue
		}
		if id > want {
			break
		}
	}
	if err := rows.Err(); err != nil {
		return 0, errors.Wrap(errors.KindIO, "store.smallestUnused16", err)
	}
	if want == 0 {
		return 0, errors.ErrIDExhausted
	}
	return want, nil
}

func scanNode(db *sql.DB, where string, args ...any) (*model.Node, error) {
	row := db.QueryRow(`SELECT n.uid, e.alias, n.kind, n.node_id, n.port, n.last_contact, n.machine_uuid, n.state
		FROM nodes n JOIN entities e ON e.uid = n.uid WHERE `+where, args...)
	n, err := scanNodeRow(row)
	if err != nil {
		return nil, err
	}
	nics, err := loadNics(db, n.UID)
	if err != nil {
		return nil, err
	}
	n.Nics = nics
	return n, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanNodeRow(row rowScanner) (*model.Node, error) {
	n := &model.Node{}
	var kind, state string
	var machineUUID sql.NullString
	if err := row.Scan(&n.UID, &n.Alias, &kind, &n.NodeID, &n.Port, &n.LastContact, &machineUUID, &state); err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.ErrNotFound
		}
		return nil, errors.Wrap(errors.KindIO, "store.scanNodeRow", err)
	}
	n.Kind = model.NodeKind(kind)
	n.State = model.RegistrationState(state)
	n.MachineUUID = machineUUID.String
	return n, nil
}

func loadNics(db *sql.DB, nodeUID model.UID) ([]model.Nic, error) {
	rows, err := db.Query(`SELECT nic_type, addr, if_name FROM nics WHERE node_uid = ? ORDER BY ord`, nodeUID)
	if err != nil {
		return nil, errors.Wrap(errors.KindIO, "store.loadNics", err)
	}
	defer rows.Close()
	var out []model.Nic
	for rows.Next() {
		var t uint8
		var nic model.Nic
		if err := rows.Scan(&t, &nic.Addr, &nic.IfName); err != nil {
			return nil, errors.Wrap(errors.KindIO, "store.loadNics", err)
		}
		nic.Type = model.NicType(t)
		out = append(out, nic)
	}
	return out, rows.Err()
}
