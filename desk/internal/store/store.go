// Package store is the SQLite data access layer for submissions, drafts,
// version history, the duplicate log and the per-run task log.
package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hazyhaar/copydesk/placeholder"
)

var (
	ErrNotFound = errors.New("store: not found")
	ErrExists   = errors.New("store: already exists")
)

type Store struct {
	DB *sql.DB
}

func New(db *sql.DB) *Store {
	return &Store{DB: db}
}

func nowMilli() int64 {
	return time.Now().UnixMilli()
}

func fromMilli(ms int64) time.Time {
	return time.UnixMilli(ms)
}

func marshalMap(m placeholder.Map) (string, error) {
	if m == nil {
		m = placeholder.Map{}
	}
	b, err := json.Marshal(m)
	if err != nil {
		return "", fmt.Errorf("store: marshal media map: %w", err)
	}
	return string(b), nil
}

func unmarshalMap(s string) (placeholder.Map, error) {
	m := placeholder.Map{}
	if s == "" {
		return m, nil
	}
	if err := json.Unmarshal([]byte(s), &m); err != nil {
		return nil, fmt.Errorf("store: unmarshal media map: %w", err)
	}
	return m, nil
}
