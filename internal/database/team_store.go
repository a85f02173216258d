package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"inkwell-backend/internal/llm"
	"inkwell-backend/internal/llm/discovery"
)

// snapshotKey is the settings row holding the serialized team.
const snapshotKey = "team_snapshot"

// TeamStore persists team snapshots and discovery results.
type TeamStore struct {
	db *sql.DB
}

// NewTeamStore creates a store over an opened database.
func NewTeamStore(db *sql.DB) *TeamStore {
	return &TeamStore{db: db}
}

// SaveSnapshot writes the team snapshot, replacing any previous one.
func (s *TeamStore) SaveSnapshot(ctx context.Context, snap *llm.Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO settings (key, value, updated_at) VALUES (?, ?, datetime('now'))
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		snapshotKey, string(data))
	if err != nil {
		return fmt.Errorf("failed to save snapshot: %w", err)
	}
	return nil
}

// LoadSnapshot reads the stored team snapshot. A missing row is not an
// error; it returns (nil, nil) so first-run callers can start empty.
func (s *TeamStore) LoadSnapshot(ctx context.Context) (*llm.Snapshot, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM settings WHERE key = ?`, snapshotKey).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load snapshot: %w", err)
	}

	var snap llm.Snapshot
	if err := json.Unmarshal([]byte(value), &snap); err != nil {
		return nil, fmt.Errorf("failed to unmarshal snapshot: %w", err)
	}
	return &snap, nil
}

// SaveDiscovered upserts discovery hits so past scan results survive
// restarts.
func (s *TeamStore) SaveDiscovered(ctx context.Context, results []discovery.Result) error {
	for _, r := range results {
		models, err := json.Marshal(r.Models)
		if err != nil {
			return fmt.Errorf("failed to marshal models for %s: %w", r.Endpoint, err)
		}
		_, err = s.db.ExecContext(ctx, `
			INSERT INTO discovered_servers (endpoint, ip, port, hostname, models, last_seen_at)
			VALUES (?, ?, ?, ?, ?, datetime('now'))
			ON CONFLICT(endpoint) DO UPDATE SET
				hostname = excluded.hostname,
				models = excluded.models,
				last_seen_at = excluded.last_seen_at`,
			r.Endpoint, r.IP, r.Port, r.Hostname, string(models))
		if err != nil {
			return fmt.Errorf("failed to save discovered server %s: %w", r.Endpoint, err)
		}
	}
	return nil
}

// ListDiscovered returns previously seen servers, most recent first.
func (s *TeamStore) ListDiscovered(ctx context.Context) ([]discovery.Result, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT endpoint, ip, port, hostname, models
		FROM discovered_servers ORDER BY last_seen_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list discovered servers: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var results []discovery.Result
	for rows.Next() {
		var r discovery.Result
		var models string
		if err := rows.Scan(&r.Endpoint, &r.IP, &r.Port, &r.Hostname, &models); err != nil {
			return nil, fmt.Errorf("failed to scan discovered server: %w", err)
		}
		if err := json.Unmarshal([]byte(models), &r.Models); err != nil {
			return nil, fmt.Errorf("failed to unmarshal models for %s: %w", r.Endpoint, err)
		}
		results = append(results, r)
	}
	return results, rows.Err()
}
