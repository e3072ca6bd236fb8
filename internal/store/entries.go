package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Entry is a cached value with its bookkeeping. Data holds the JSON encoding
// of whatever the caller stored.
type Entry struct {
	ID        string          `json:"id"`
	Data      json.RawMessage `json:"data"`
	Timestamp time.Time       `json:"timestamp"`
	ExpiresAt time.Time       `json:"expires_at"`
	Version   int             `json:"version"`
	Tags      []string        `json:"tags,omitempty"`
}

// Expired reports whether the entry is logically absent at now. An entry
// is live strictly before its expiry instant, so a zero TTL is never served.
func (e *Entry) Expired(now time.Time) bool {
	return !now.Before(e.ExpiresAt)
}

type setOptions struct {
	ttl     time.Duration
	hasTTL  bool
	version int
	tags    []string
}

// SetOption adjusts a single Set call.
type SetOption func(*setOptions)

// WithTTL sets the entry lifetime. Zero or negative stores an already
// expired entry.
func WithTTL(d time.Duration) SetOption {
	return func(o *setOptions) {
		o.ttl = d
		o.hasTTL = true
	}
}

// WithVersion stamps the entry with a schema version.
func WithVersion(v int) SetOption {
	return func(o *setOptions) { o.version = v }
}

// WithTags attaches free-form tags to the entry.
func WithTags(tags ...string) SetOption {
	return func(o *setOptions) { o.tags = tags }
}

func checkPartition(p Partition) error {
	if !p.Valid() {
		return fmt.Errorf("unknown cache partition %q", p)
	}
	return nil
}

// Set stores data under (partition, key), replacing any existing entry.
func (s *Store) Set(partition Partition, key string, data any, opts ...SetOption) error {
	if err := checkPartition(partition); err != nil {
		return err
	}
	conn, err := s.db()
	if err != nil {
		return err
	}

	o := setOptions{version: SchemaVersion}
	for _, opt := range opts {
		opt(&o)
	}
	ttl := s.defaultTTL
	if o.hasTTL {
		ttl = o.ttl
	}
	if ttl < 0 {
		ttl = 0
	}

	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("encoding %s/%s: %w", partition, key, err)
	}
	var tags any
	if len(o.tags) > 0 {
		b, err := json.Marshal(o.tags)
		if err != nil {
			return fmt.Errorf("encoding tags: %w", err)
		}
		tags = string(b)
	}

	now := s.now()
	_, err = conn.Exec(`
		INSERT OR REPLACE INTO cache_entries (partition, key, data, created_at, expires_at, version, tags)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		string(partition), key, string(payload), now.UnixNano(), now.Add(ttl).UnixNano(), o.version, tags,
	)
	if err != nil {
		return fmt.Errorf("writing %s/%s: %w", partition, key, err)
	}
	return nil
}

// Entry returns the live entry at (partition, key), or nil on a miss.
// An expired entry is deleted as a side effect. Every call counts toward
// the hit/miss statistics.
func (s *Store) Entry(partition Partition, key string) (*Entry, error) {
	if err := checkPartition(partition); err != nil {
		return nil, err
	}
	conn, err := s.db()
	if err != nil {
		return nil, err
	}

	e, err := scanEntry(conn.QueryRow(`
		SELECT key, data, created_at, expires_at, version, tags
		FROM cache_entries WHERE partition = ? AND key = ?`,
		string(partition), key,
	))
	if errors.Is(err, sql.ErrNoRows) {
		s.misses.Add(1)
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading %s/%s: %w", partition, key, err)
	}

	if e.Expired(s.now()) {
		s.misses.Add(1)
		if _, err := conn.Exec(
			"DELETE FROM cache_entries WHERE partition = ? AND key = ?",
			string(partition), key,
		); err != nil {
			return nil, fmt.Errorf("deleting expired %s/%s: %w", partition, key, err)
		}
		return nil, nil
	}

	s.hits.Add(1)
	return e, nil
}

// Get decodes the live entry at (partition, key) into dst and reports
// whether it was found.
func (s *Store) Get(partition Partition, key string, dst any) (bool, error) {
	e, err := s.Entry(partition, key)
	if err != nil || e == nil {
		return false, err
	}
	if dst != nil {
		if err := json.Unmarshal(e.Data, dst); err != nil {
			return false, fmt.Errorf("decoding %s/%s: %w", partition, key, err)
		}
	}
	return true, nil
}

// Delete removes a single entry.
func (s *Store) Delete(partition Partition, key string) error {
	if err := checkPartition(partition); err != nil {
		return err
	}
	conn, err := s.db()
	if err != nil {
		return err
	}
	_, err = conn.Exec("DELETE FROM cache_entries WHERE partition = ? AND key = ?", string(partition), key)
	return err
}

// Clear empties one partition, or every partition when partition is "".
func (s *Store) Clear(partition Partition) error {
	conn, err := s.db()
	if err != nil {
		return err
	}
	if partition == "" {
		_, err = conn.Exec("DELETE FROM cache_entries")
		return err
	}
	if err := checkPartition(partition); err != nil {
		return err
	}
	_, err = conn.Exec("DELETE FROM cache_entries WHERE partition = ?", string(partition))
	return err
}

// CleanupExpired removes every expired entry in every partition and
// returns how many were removed.
func (s *Store) CleanupExpired() (int, error) {
	conn, err := s.db()
	if err != nil {
		return 0, err
	}
	res, err := conn.Exec("DELETE FROM cache_entries WHERE expires_at <= ?", s.now().UnixNano())
	if err != nil {
		return 0, fmt.Errorf("cleaning up expired entries: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntry(row rowScanner) (*Entry, error) {
	var (
		e                Entry
		data             string
		created, expires int64
		tags             sql.NullString
	)
	if err := row.Scan(&e.ID, &data, &created, &expires, &e.Version, &tags); err != nil {
		return nil, err
	}
	e.Data = json.RawMessage(data)
	e.Timestamp = time.Unix(0, created)
	e.ExpiresAt = time.Unix(0, expires)
	if tags.Valid && tags.String != "" {
		if err := json.Unmarshal([]byte(tags.String), &e.Tags); err != nil {
			return nil, fmt.Errorf("decoding tags of %s: %w", e.ID, err)
		}
	}
	return &e, nil
}
