// Package remotesrv is a small self-hosted stand-in for a Realtime Database:
// a JSON tree two levels deep (collection/key) served over the same REST
// protocol, backed by SQLite.
package remotesrv

import (
	"bytes"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

const nodesSchema = `
CREATE TABLE IF NOT EXISTS nodes (
    collection TEXT NOT NULL,
    key TEXT NOT NULL,
    payload TEXT NOT NULL,
    updated_at DATETIME NOT NULL,
    PRIMARY KEY (collection, key)
);
`

// NodeStore persists collection/key nodes as raw JSON
type NodeStore struct {
	conn *sql.DB
}

// OpenNodeStore opens (creating if needed) the node database at dbPath
func OpenNodeStore(dbPath string) (*NodeStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}

	conn, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	conn.SetMaxOpenConns(1)

	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}
	if _, err := conn.Exec("PRAGMA busy_timeout=5000"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}
	conn.Exec("PRAGMA synchronous=NORMAL")

	store, err := NewNodeStore(conn)
	if err != nil {
		conn.Close()
		return nil, err
	}
	return store, nil
}

// NewNodeStore wraps an already open connection and creates the schema
func NewNodeStore(conn *sql.DB) (*NodeStore, error) {
	if _, err := conn.Exec(nodesSchema); err != nil {
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &NodeStore{conn: conn}, nil
}

// Ping checks the database connection is alive
func (s *NodeStore) Ping() error {
	return s.conn.Ping()
}

// Close checkpoints the WAL and closes the connection
func (s *NodeStore) Close() error {
	s.conn.Exec("PRAGMA wal_checkpoint(TRUNCATE)")
	return s.conn.Close()
}

// Put replaces a node. A JSON null payload deletes it.
func (s *NodeStore) Put(collection, key string, payload json.RawMessage) error {
	if isNull(payload) {
		return s.Delete(collection, key)
	}
	if !json.Valid(payload) {
		return fmt.Errorf("invalid JSON payload for %s/%s", collection, key)
	}
	var compact bytes.Buffer
	if err := json.Compact(&compact, payload); err != nil {
		return fmt.Errorf("compact payload: %w", err)
	}

	_, err := s.conn.Exec(`
		INSERT INTO nodes (collection, key, payload, updated_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(collection, key) DO UPDATE SET payload = excluded.payload, updated_at = excluded.updated_at
	`, collection, key, compact.String(), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("put %s/%s: %w", collection, key, err)
	}
	return nil
}

// Patch merges the top-level fields of patch into the node, creating it if
// needed. Fields set to null are removed. Returns the merged node.
func (s *NodeStore) Patch(collection, key string, patch map[string]json.RawMessage) (json.RawMessage, error) {
	tx, err := s.conn.Begin()
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	merged := make(map[string]json.RawMessage)
	var current string
	err = tx.QueryRow(`SELECT payload FROM nodes WHERE collection = ? AND key = ?`, collection, key).Scan(&current)
	switch {
	case err == sql.ErrNoRows:
	case err != nil:
		return nil, fmt.Errorf("read %s/%s: %w", collection, key, err)
	default:
		if err := json.Unmarshal([]byte(current), &merged); err != nil {
			return nil, fmt.Errorf("existing node %s/%s is not an object", collection, key)
		}
	}

	for field, v := range patch {
		if isNull(v) {
			delete(merged, field)
			continue
		}
		merged[field] = v
	}

	if len(merged) == 0 {
		if _, err := tx.Exec(`DELETE FROM nodes WHERE collection = ? AND key = ?`, collection, key); err != nil {
			return nil, err
		}
		return json.RawMessage("null"), tx.Commit()
	}

	data, err := json.Marshal(merged)
	if err != nil {
		return nil, fmt.Errorf("marshal merged node: %w", err)
	}
	_, err = tx.Exec(`
		INSERT INTO nodes (collection, key, payload, updated_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(collection, key) DO UPDATE SET payload = excluded.payload, updated_at = excluded.updated_at
	`, collection, key, string(data), time.Now().UTC())
	if err != nil {
		return nil, fmt.Errorf("patch %s/%s: %w", collection, key, err)
	}
	return data, tx.Commit()
}

// Delete removes a node. Deleting a missing node is not an error.
func (s *NodeStore) Delete(collection, key string) error {
	if _, err := s.conn.Exec(`DELETE FROM nodes WHERE collection = ? AND key = ?`, collection, key); err != nil {
		return fmt.Errorf("delete %s/%s: %w", collection, key, err)
	}
	return nil
}

// Get returns a node, or ok=false when it does not exist
func (s *NodeStore) Get(collection, key string) (json.RawMessage, bool, error) {
	var payload string
	err := s.conn.QueryRow(`SELECT payload FROM nodes WHERE collection = ? AND key = ?`, collection, key).Scan(&payload)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("get %s/%s: %w", collection, key, err)
	}
	return json.RawMessage(payload), true, nil
}

// List returns every node of a collection keyed by node key
func (s *NodeStore) List(collection string) (map[string]json.RawMessage, error) {
	rows, err := s.conn.Query(`SELECT key, payload FROM nodes WHERE collection = ? ORDER BY key`, collection)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", collection, err)
	}
	defer rows.Close()

	out := make(map[string]json.RawMessage)
	for rows.Next() {
		var key, payload string
		if err := rows.Scan(&key, &payload); err != nil {
			return nil, err
		}
		out[key] = json.RawMessage(payload)
	}
	return out, rows.Err()
}

// Count returns the number of nodes in a collection
func (s *NodeStore) Count(collection string) (int, error) {
	var n int
	err := s.conn.QueryRow(`SELECT COUNT(*) FROM nodes WHERE collection = ?`, collection).Scan(&n)
	return n, err
}

func isNull(raw json.RawMessage) bool {
	return len(bytes.TrimSpace(raw)) == 0 || string(bytes.TrimSpace(raw)) == "null"
}
