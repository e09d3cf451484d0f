package store

import (
	"context"
	"database/sql"

	"github.com/thinkparq/mgmtd/errors"
	"github.com/thinkparq/mgmtd/model"
)

// SetRootInodePointer points the root inode at a metadata target XOR a
// metadata buddy group, enforcing I4. The singleton row is created on
// first call and updated thereafter.
func (s *Store) SetRootInodePointer(ctx context.Context, p model.RootInodePointer) error {
	if !p.Valid() {
		return errors.New(errors.KindConstraint, "store.SetRootInodePointer",
			"root inode pointer must reference exactly one of target or buddy group")
	}
	_, err := s.Submit(ctx, func(tx *sql.Tx) (any, error) {
		var targetUID, groupUID any
		if p.TargetUID != 0 {
			targetUID = p.TargetUID
		}
		if p.GroupUID != 0 {
			groupUID = p.GroupUID
		}
		_, err := tx.Exec(`INSERT INTO root_inode_pointer(id, target_uid, group_uid) VALUES (1, ?, ?)
			ON CONFLICT(id) DO UPDATE SET target_uid = excluded.target_uid, group_uid = excluded.group_uid`,
			targetUID, groupUID)
		if err != nil {
			return nil, translateConstraint("store.SetRootInodePointer", err)
		}
		return nil, nil
	})
	return err
}

// GetRootInodePointer returns the current pointer, or the zero value (both
// fields unset) if it has never been set.
func (s *Store) GetRootInodePointer(ctx context.Context) (model.RootInodePointer, error) {
	v, err := s.Query(ctx, func(db *sql.DB) (any, error) {
		var targetUID, groupUID sql.NullInt64
		row := db.QueryRow(`SELECT target_uid, group_uid FROM root_inode_pointer WHERE id = 1`)
		if err := row.Scan(&targetUID, &groupUID); err != nil {
			if err == sql.ErrNoRows {
				return model.RootInodePointer{}, nil
			}
			return nil, errors.Wrap(errors.KindIO, "store.GetRootInodePointer", err)
		}
		return model.RootInodePointer{
			TargetUID: model.UID(targetUID.Int64),
			GroupUID:  model.UID(groupUID.Int64),
		}, nil
	})
	if err != nil {
		return model.RootInodePointer{}, err
	}
	return v.(model.RootInodePointer), nil
}
