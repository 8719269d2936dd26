package repositories

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// MarkerRepository persists durable key-value session markers.
//
// Markers survive process restarts, unlike the ephemeral token store.
type MarkerRepository struct {
	db *sql.DB
}

// NewMarkerRepository creates a new [MarkerRepository] with the given database connection
func NewMarkerRepository(db *sql.DB) *MarkerRepository {
	return &MarkerRepository{db: db}
}

// Get returns the raw value for key, or [ErrNotFound].
func (r *MarkerRepository) Get(key string) (string, error) {
	var value string
	err := r.db.QueryRow("SELECT value FROM markers WHERE key = ?", key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", fmt.Errorf("%w: marker %s", ErrNotFound, key)
	}
	if err != nil {
		return "", fmt.Errorf("failed to query marker %s: %w", key, err)
	}
	return value, nil
}

// Set upserts the raw value for key.
func (r *MarkerRepository) Set(key, value string) error {
	query := `
		INSERT INTO markers (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
	`
	if _, err := r.db.Exec(query, key, value, time.Now()); err != nil {
		return fmt.Errorf("failed to set marker %s: %w", key, err)
	}
	return nil
}

// Delete removes the given keys. Missing keys are ignored.
func (r *MarkerRepository) Delete(keys ...string) error {
	if len(keys) == 0 {
		return nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(keys)), ",")
	args := make([]any, len(keys))
	for i, k := range keys {
		args[i] = k
	}

	if _, err := r.db.Exec("DELETE FROM markers WHERE key IN ("+placeholders+")", args...); err != nil {
		return fmt.Errorf("failed to delete markers: %w", err)
	}
	return nil
}

// Bool reads a boolean marker. Missing or malformed markers read as false.
func (r *MarkerRepository) Bool(key string) (bool, error) {
	value, err := r.Get(key)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	b, _ := strconv.ParseBool(value)
	return b, nil
}

// SetBool writes a boolean marker.
func (r *MarkerRepository) SetBool(key string, value bool) error {
	return r.Set(key, strconv.FormatBool(value))
}

// JSON decodes the marker at key into v.
func (r *MarkerRepository) JSON(key string, v any) error {
	value, err := r.Get(key)
	if err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(value), v); err != nil {
		return fmt.Errorf("failed to decode marker %s: %w", key, err)
	}
	return nil
}

// SetJSON encodes v and stores it at key.
func (r *MarkerRepository) SetJSON(key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode marker %s: %w", key, err)
	}
	return r.Set(key, string(data))
}
