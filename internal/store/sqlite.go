package store

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"fmt"

	_ "github.com/mattn/go-sqlite3"

	"worklog/internal/entity"
)

//go:embed schema.sql
var schemaSQL string

// Schema version tracking:
// 1 - Initial schema
const currentSchemaVersion = 1

// SQLite is the durable client storage backing the store, one database per
// device profile.
type SQLite struct {
	db *sql.DB
}

// OpenSQLite creates or opens a database at the given path and applies the
// required pragmas and migrations. Idempotent.
//
// The database is configured with:
//   - WAL mode so another session can read during a write
//   - NORMAL synchronous mode (balance durability/performance)
//   - 5-second busy timeout for lock contention between sessions
func OpenSQLite(path string) (*SQLite, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("connect to database: %w", err)
	}

	// SQLite only supports one writer at a time, so limit connections
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("execute %q: %w", pragma, err)
		}
	}

	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	if err := migrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return &SQLite{db: db}, nil
}

// migrate applies incremental schema migrations based on user_version.
func migrate(db *sql.DB) error {
	var version int
	if err := db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("get user_version: %w", err)
	}
	if version < currentSchemaVersion {
		if _, err := db.Exec(fmt.Sprintf("PRAGMA user_version = %d", currentSchemaVersion)); err != nil {
			return fmt.Errorf("set user_version: %w", err)
		}
	}
	return nil
}

// Close closes the database connection.
func (p *SQLite) Close() error {
	if p.db == nil {
		return nil
	}
	return p.db.Close()
}

// Load reads the full durable snapshot.
func (p *SQLite) Load(ctx context.Context) (*State, error) {
	state := &State{
		Entities: make(map[entity.Type][]entity.Record, len(entity.AllTypes)),
		Identity: make(map[entity.ID]entity.ID),
	}
	for _, t := range entity.AllTypes {
		state.Entities[t] = nil
	}

	rows, err := p.db.QueryContext(ctx, `
		SELECT entity_type, id, fields, pending_updates
		FROM entities ORDER BY entity_type, id
	`)
	if err != nil {
		return nil, fmt.Errorf("load entities: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			typ         string
			id          int64
			fieldsJSON  string
			pendingJSON string
		)
		if err := rows.Scan(&typ, &id, &fieldsJSON, &pendingJSON); err != nil {
			return nil, fmt.Errorf("scan entity: %w", err)
		}
		rec := entity.Record{ID: entity.ID(id)}
		if err := json.Unmarshal([]byte(fieldsJSON), &rec.Fields); err != nil {
			return nil, fmt.Errorf("decode entity %s/%d fields: %w", typ, id, err)
		}
		if err := json.Unmarshal([]byte(pendingJSON), &rec.PendingUpdates); err != nil {
			return nil, fmt.Errorf("decode entity %s/%d pending updates: %w", typ, id, err)
		}
		t := entity.Type(typ)
		state.Entities[t] = append(state.Entities[t], rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("load entities: %w", err)
	}

	idRows, err := p.db.QueryContext(ctx, `SELECT temp_id, permanent_id FROM identity_map`)
	if err != nil {
		return nil, fmt.Errorf("load identity map: %w", err)
	}
	defer idRows.Close()
	for idRows.Next() {
		var temp, perm int64
		if err := idRows.Scan(&temp, &perm); err != nil {
			return nil, fmt.Errorf("scan identity entry: %w", err)
		}
		state.Identity[entity.ID(temp)] = entity.ID(perm)
	}
	if err := idRows.Err(); err != nil {
		return nil, fmt.Errorf("load identity map: %w", err)
	}

	reqRows, err := p.db.QueryContext(ctx, `SELECT body FROM requests ORDER BY position`)
	if err != nil {
		return nil, fmt.Errorf("load requests: %w", err)
	}
	defer reqRows.Close()
	for reqRows.Next() {
		var body string
		if err := reqRows.Scan(&body); err != nil {
			return nil, fmt.Errorf("scan request: %w", err)
		}
		var req entity.Request
		if err := json.Unmarshal([]byte(body), &req); err != nil {
			return nil, fmt.Errorf("decode request: %w", err)
		}
		state.Requests = append(state.Requests, req)
	}
	if err := reqRows.Err(); err != nil {
		return nil, fmt.Errorf("load requests: %w", err)
	}

	counters := map[string]*int64{
		"next_temp_id":    &state.Counters.NextTempID,
		"next_request_id": &state.Counters.NextRequestID,
		"next_group_id":   &state.Counters.NextGroupID,
	}
	for name, dst := range counters {
		err := p.db.QueryRowContext(ctx, `SELECT value FROM counters WHERE name = ?`, name).Scan(dst)
		if err != nil && err != sql.ErrNoRows {
			return nil, fmt.Errorf("load counter %s: %w", name, err)
		}
	}

	return state, nil
}

// Save writes the snapshot in one transaction. Only the entity collections
// named in changed are rewritten; the request queue, identity map, and
// counters are rewritten on every call.
func (p *SQLite) Save(ctx context.Context, state *State, changed []entity.Type) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin save: %w", err)
	}
	defer tx.Rollback()

	for _, t := range changed {
		if _, err := tx.ExecContext(ctx, `DELETE FROM entities WHERE entity_type = ?`, string(t)); err != nil {
			return fmt.Errorf("clear %s: %w", t, err)
		}
		for _, rec := range state.Entities[t] {
			fieldsJSON, err := json.Marshal(rec.Fields)
			if err != nil {
				return fmt.Errorf("encode %s/%d fields: %w", t, rec.ID, err)
			}
			pendingJSON, err := json.Marshal(rec.PendingUpdates)
			if err != nil {
				return fmt.Errorf("encode %s/%d pending updates: %w", t, rec.ID, err)
			}
			if rec.PendingUpdates == nil {
				pendingJSON = []byte("[]")
			}
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO entities (entity_type, id, fields, pending_updates)
				VALUES (?, ?, ?, ?)
			`, string(t), int64(rec.ID), string(fieldsJSON), string(pendingJSON)); err != nil {
				return fmt.Errorf("write %s/%d: %w", t, rec.ID, err)
			}
		}
	}

	// Identity entries never change once written, but Reset drops the whole
	// map; remove rows the snapshot no longer holds before the idempotent
	// insert.
	idRows, err := tx.QueryContext(ctx, `SELECT temp_id FROM identity_map`)
	if err != nil {
		return fmt.Errorf("read identity map: %w", err)
	}
	var stale []int64
	for idRows.Next() {
		var temp int64
		if err := idRows.Scan(&temp); err != nil {
			idRows.Close()
			return fmt.Errorf("scan identity entry: %w", err)
		}
		if _, ok := state.Identity[entity.ID(temp)]; !ok {
			stale = append(stale, temp)
		}
	}
	if err := idRows.Err(); err != nil {
		idRows.Close()
		return fmt.Errorf("read identity map: %w", err)
	}
	idRows.Close()
	for _, temp := range stale {
		if _, err := tx.ExecContext(ctx, `DELETE FROM identity_map WHERE temp_id = ?`, temp); err != nil {
			return fmt.Errorf("remove identity entry %d: %w", temp, err)
		}
	}
	for temp, perm := range state.Identity {
		if _, err := tx.ExecContext(ctx, `
			INSERT OR IGNORE INTO identity_map (temp_id, permanent_id) VALUES (?, ?)
		`, int64(temp), int64(perm)); err != nil {
			return fmt.Errorf("write identity entry: %w", err)
		}
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM requests`); err != nil {
		return fmt.Errorf("clear requests: %w", err)
	}
	for i, req := range state.Requests {
		body, err := json.Marshal(req)
		if err != nil {
			return fmt.Errorf("encode request %d: %w", req.ID, err)
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO requests (id, position, body) VALUES (?, ?, ?)
		`, req.ID, i, string(body)); err != nil {
			return fmt.Errorf("write request %d: %w", req.ID, err)
		}
	}

	counters := map[string]int64{
		"next_temp_id":    state.Counters.NextTempID,
		"next_request_id": state.Counters.NextRequestID,
		"next_group_id":   state.Counters.NextGroupID,
	}
	for name, value := range counters {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO counters (name, value) VALUES (?, ?)
			ON CONFLICT(name) DO UPDATE SET value = excluded.value
		`, name, value); err != nil {
			return fmt.Errorf("write counter %s: %w", name, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit save: %w", err)
	}
	return nil
}
