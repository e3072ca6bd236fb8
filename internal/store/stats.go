package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// Stats summarizes the cache contents and the hit/miss counters accumulated
// since the store was created. Rates are percentages.
type Stats struct {
	TotalEntries int               `json:"total_entries"`
	TotalSize    int64             `json:"total_size"`
	HitRate      float64           `json:"hit_rate"`
	MissRate     float64           `json:"miss_rate"`
	OldestEntry  time.Time         `json:"oldest_entry"`
	NewestEntry  time.Time         `json:"newest_entry"`
	PerPartition map[Partition]int `json:"per_partition"`
}

// Stats returns aggregate statistics across all partitions.
func (s *Store) Stats() (*Stats, error) {
	conn, err := s.db()
	if err != nil {
		return nil, err
	}

	st := &Stats{PerPartition: make(map[Partition]int, len(Partitions))}
	for _, p := range Partitions {
		st.PerPartition[p] = 0
	}

	var (
		size           sql.NullInt64
		oldest, newest sql.NullInt64
	)
	err = conn.QueryRow(`
		SELECT COUNT(*), SUM(LENGTH(data) + LENGTH(key)), MIN(created_at), MAX(created_at)
		FROM cache_entries`,
	).Scan(&st.TotalEntries, &size, &oldest, &newest)
	if err != nil {
		return nil, fmt.Errorf("reading cache stats: %w", err)
	}
	st.TotalSize = size.Int64
	if oldest.Valid {
		st.OldestEntry = time.Unix(0, oldest.Int64)
	}
	if newest.Valid {
		st.NewestEntry = time.Unix(0, newest.Int64)
	}

	rows, err := conn.Query("SELECT partition, COUNT(*) FROM cache_entries GROUP BY partition")
	if err != nil {
		return nil, fmt.Errorf("reading partition counts: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			name  string
			count int
		)
		if err := rows.Scan(&name, &count); err != nil {
			return nil, err
		}
		st.PerPartition[Partition(name)] = count
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	hits, misses := s.hits.Load(), s.misses.Load()
	if total := hits + misses; total > 0 {
		st.HitRate = float64(hits) * 100 / float64(total)
		st.MissRate = float64(misses) * 100 / float64(total)
	}
	return st, nil
}

// Snapshot is a full copy of the cache, keyed by partition.
type Snapshot map[Partition][]Entry

// Count returns the number of entries in the snapshot.
func (sn Snapshot) Count() int {
	n := 0
	for _, entries := range sn {
		n += len(entries)
	}
	return n
}

// Export copies every stored entry, expired or not, into a snapshot.
func (s *Store) Export() (Snapshot, error) {
	conn, err := s.db()
	if err != nil {
		return nil, err
	}

	snap := make(Snapshot, len(Partitions))
	for _, p := range Partitions {
		rows, err := conn.Query(`
			SELECT key, data, created_at, expires_at, version, tags
			FROM cache_entries WHERE partition = ? ORDER BY key`,
			string(p),
		)
		if err != nil {
			return nil, fmt.Errorf("exporting %s: %w", p, err)
		}
		entries := []Entry{}
		for rows.Next() {
			e, err := scanEntry(rows)
			if err != nil {
				rows.Close()
				return nil, fmt.Errorf("exporting %s: %w", p, err)
			}
			entries = append(entries, *e)
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return nil, err
		}
		rows.Close()
		snap[p] = entries
	}
	return snap, nil
}

// Import replaces the contents of every partition present in snap. Each
// partition is cleared and refilled inside its own transaction.
func (s *Store) Import(snap Snapshot) error {
	conn, err := s.db()
	if err != nil {
		return err
	}

	for p := range snap {
		if !p.Valid() {
			return fmt.Errorf("unknown cache partition %q in snapshot", p)
		}
	}
	for _, p := range Partitions {
		entries, ok := snap[p]
		if !ok {
			continue
		}
		if err := importPartition(conn, p, entries); err != nil {
			return fmt.Errorf("importing %s: %w", p, err)
		}
	}
	return nil
}

func importPartition(conn *sql.DB, p Partition, entries []Entry) error {
	tx, err := conn.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM cache_entries WHERE partition = ?", string(p)); err != nil {
		return err
	}

	stmt, err := tx.Prepare(`
		INSERT OR REPLACE INTO cache_entries (partition, key, data, created_at, expires_at, version, tags)
		VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, e := range entries {
		var tags any
		if len(e.Tags) > 0 {
			b, err := json.Marshal(e.Tags)
			if err != nil {
				return err
			}
			tags = string(b)
		}
		data := string(e.Data)
		if data == "" {
			data = "null"
		}
		if _, err := stmt.Exec(
			string(p), e.ID, data, e.Timestamp.UnixNano(), e.ExpiresAt.UnixNano(), e.Version, tags,
		); err != nil {
			return err
		}
	}
	return tx.Commit()
}
