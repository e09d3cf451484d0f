package store

import (
	"context"
	"database/sql"
	"strconv"

	"github.com/cubefs/cubefs/blobstore/common/trace"
	"github.com/thinkparq/mgmtd/errors"
)

type migration struct {
	version int
	name    string
	up      func(tx *sql.Tx) error
}

// migrations is the strict monotonic sequence from §4.A. schema_version in
// the config table tracks how many of these have been applied.
var migrations = []migration{
	{1, "initial schema", migrateInitialSchema},
	{2, "seed singletons", migrateSeedSingletons},
}

func (s *Store) migrate(ctx context.Context) error {
	span := trace.SpanFromContextSafe(ctx)

	tx, err := s.writer.Begin()
	if err != nil {
		return errors.Wrap(errors.KindIO, "store.migrate", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`CREATE TABLE IF NOT EXISTS config (key TEXT PRIMARY KEY, value TEXT NOT NULL)`); err != nil {
		return errors.Wrap(errors.KindMigrationFailed, "store.migrate", err)
	}

	current := 0
	row := tx.QueryRow(`SELECT value FROM config WHERE key = 'schema_version'`)
	var raw string
	if err := row.Scan(&raw); err == nil {
		n, err := strconv.Atoi(raw)
		if err != nil {
			return errors.Wrap(errors.KindMigrationFailed, "store.migrate", err)
		}
		current = n
	} else if err != sql.ErrNoRows {
		return errors.Wrap(errors.KindMigrationFailed, "store.migrate", err)
	}

	latest := len(migrations)
	if current > latest {
		return errors.New(errors.KindMigrationFailed, "store.migrate",
			"database schema is newer than this binary supports")
	}

	for _, m := range migrations {
		if m.version <= current {
			continue
		}
		span.Infof("applying migration %d: %s", m.version, m.name)
		if err := m.up(tx); err != nil {
			return errors.Wrap(errors.KindMigrationFailed, "store.migrate", err)
		}
	}

	if current != latest {
		if _, err := tx.Exec(`INSERT INTO config(key, value) VALUES('schema_version', ?)
			ON CONFLICT(key) DO UPDATE SET value = excluded.value`, strconv.Itoa(latest)); err != nil {
			return errors.Wrap(errors.KindMigrationFailed, "store.migrate", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return errors.Wrap(errors.KindMigrationFailed, "store.migrate", err)
	}
	return nil
}

func migrateInitialSchema(tx *sql.Tx) error {
	stmts := []string{
		`CREATE TABLE entities (
			uid INTEGER PRIMARY KEY AUTOINCREMENT,
			kind TEXT NOT NULL CHECK (kind IN ('node','target','pool','buddy_group','management')),
			alias TEXT NOT NULL UNIQUE CHECK (length(alias) >= 1)
		)`,
		`CREATE TABLE nodes (
			uid INTEGER PRIMARY KEY REFERENCES entities(uid) ON DELETE CASCADE,
			kind TEXT NOT NULL CHECK (kind IN ('meta','storage','client','management')),
			node_id INTEGER NOT NULL,
			port INTEGER NOT NULL,
			last_contact INTEGER NOT NULL DEFAULT 0,
			machine_uuid TEXT,
			state TEXT NOT NULL DEFAULT 'active',
			UNIQUE(kind, node_id)
		)`,
		`CREATE TABLE nics (
			uid INTEGER PRIMARY KEY AUTOINCREMENT,
			node_uid INTEGER NOT NULL REFERENCES nodes(uid) ON DELETE CASCADE,
			ord INTEGER NOT NULL,
			nic_type INTEGER NOT NULL CHECK (nic_type IN (1,2)),
			addr TEXT NOT NULL,
			if_name TEXT NOT NULL CHECK (instr(if_name, char(0)) = 0),
			UNIQUE(node_uid, ord)
		)`,
		`CREATE TABLE storage_pools (
			uid INTEGER PRIMARY KEY REFERENCES entities(uid) ON DELETE RESTRICT,
			pool_id INTEGER NOT NULL UNIQUE
		)`,
		`CREATE TABLE targets (
			uid INTEGER PRIMARY KEY REFERENCES entities(uid) ON DELETE CASCADE,
			kind TEXT NOT NULL CHECK (kind IN ('meta','storage')),
			target_id INTEGER NOT NULL,
			node_uid INTEGER REFERENCES nodes(uid) ON DELETE RESTRICT,
			pool_uid INTEGER REFERENCES storage_pools(uid) ON DELETE RESTRICT,
			total_space INTEGER,
			total_inodes INTEGER,
			free_space INTEGER,
			free_inodes INTEGER,
			last_capacity_report_at INTEGER NOT NULL DEFAULT 0,
			consistency TEXT NOT NULL DEFAULT 'good' CHECK (consistency IN ('good','needs_resync','bad')),
			UNIQUE(kind, target_id)
		)`,
		`CREATE TABLE buddy_groups (
			uid INTEGER PRIMARY KEY REFERENCES entities(uid) ON DELETE CASCADE,
			kind TEXT NOT NULL CHECK (kind IN ('meta','storage')),
			group_id INTEGER NOT NULL,
			primary_uid INTEGER NOT NULL REFERENCES targets(uid) ON DELETE RESTRICT,
			secondary_uid INTEGER NOT NULL REFERENCES targets(uid) ON DELETE RESTRICT,
			pool_uid INTEGER REFERENCES storage_pools(uid) ON DELETE RESTRICT,
			UNIQUE(kind, group_id),
			CHECK (primary_uid <> secondary_uid)
		)`,
		`CREATE TABLE root_inode_pointer (
			id INTEGER PRIMARY KEY CHECK (id = 1),
			target_uid INTEGER REFERENCES targets(uid) ON DELETE RESTRICT,
			group_uid INTEGER REFERENCES buddy_groups(uid) ON DELETE RESTRICT,
			CHECK ((target_uid IS NULL) <> (group_uid IS NULL))
		)`,
		`CREATE TABLE quota_limits (
			quota_id INTEGER NOT NULL,
			id_type TEXT NOT NULL CHECK (id_type IN ('user','group')),
			quota_type TEXT NOT NULL CHECK (quota_type IN ('space','inodes')),
			pool_uid INTEGER NOT NULL REFERENCES storage_pools(uid) ON DELETE CASCADE,
			value INTEGER NOT NULL,
			PRIMARY KEY (quota_id, id_type, quota_type, pool_uid)
		)`,
		`CREATE TABLE quota_default_limits (
			id_type TEXT NOT NULL CHECK (id_type IN ('user','group')),
			quota_type TEXT NOT NULL CHECK (quota_type IN ('space','inodes')),
			pool_uid INTEGER NOT NULL REFERENCES storage_pools(uid) ON DELETE CASCADE,
			value INTEGER NOT NULL,
			PRIMARY KEY (id_type, quota_type, pool_uid)
		)`,
		`CREATE TABLE quota_usage (
			quota_id INTEGER NOT NULL,
			id_type TEXT NOT NULL CHECK (id_type IN ('user','group')),
			quota_type TEXT NOT NULL CHECK (quota_type IN ('space','inodes')),
			target_uid INTEGER NOT NULL REFERENCES targets(uid) ON DELETE CASCADE,
			value INTEGER NOT NULL,
			PRIMARY KEY (quota_id, id_type, quota_type, target_uid)
		)`,
		// I1: deleting an entity deletes its subtype row and vice versa.
		// The entities -> subtype direction is handled by the subtype
		// tables' foreign keys on entities(uid) above; these triggers cover
		// the subtype -> entities direction: deleting a node, target, pool
		// or buddy group row removes its registry row.
		`CREATE TRIGGER trg_node_delete_entity AFTER DELETE ON nodes BEGIN
			DELETE FROM entities WHERE uid = old.uid;
		END`,
		`CREATE TRIGGER trg_target_delete_entity AFTER DELETE ON targets BEGIN
			DELETE FROM entities WHERE uid = old.uid;
		END`,
		`CREATE TRIGGER trg_pool_delete_entity AFTER DELETE ON storage_pools BEGIN
			DELETE FROM entities WHERE uid = old.uid;
		END`,
		`CREATE TRIGGER trg_group_delete_entity AFTER DELETE ON buddy_groups BEGIN
			DELETE FROM entities WHERE uid = old.uid;
		END`,
	}
	for _, stmt := range stmts {
		if _, err := tx.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// migrateSeedSingletons inserts the two rows that must always exist (I5,
// I6): the management node at UID 1 and the default storage pool.
func migrateSeedSingletons(tx *sql.Tx) error {
	res, err := tx.Exec(`INSERT INTO entities(uid, kind, alias) VALUES (1, 'management', 'management')`)
	if err != nil {
		return err
	}
	if _, err := res.RowsAffected(); err != nil {
		return err
	}
	if _, err := tx.Exec(`INSERT INTO nodes(uid, kind, node_id, port, state) VALUES (1, 'management', 1, 0, 'active')`); err != nil {
		return err
	}

	if _, err := tx.Exec(`INSERT INTO entities(kind, alias) VALUES ('pool', 'storage_pool_default')`); err != nil {
		return err
	}
	var poolUID int64
	row := tx.QueryRow(`SELECT uid FROM entities WHERE alias = 'storage_pool_default'`)
	if err := row.Scan(&poolUID); err != nil {
		return err
	}
	if _, err := tx.Exec(`INSERT INTO storage_pools(uid, pool_id) VALUES (?, 1)`, poolUID); err != nil {
		return err
	}
	return nil
}
