// Package sessionlog is a BoltDB-backed audit log of completed or
// torn-down node sessions, adapted from the teacher's
// internal/storage/grantsbolt.Store: same bucket-plus-timestamp-index
// shape, repurposed from quiz grants to TPDP session records.
package sessionlog

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"
)

const (
	bByID = "sessions_by_id"
	bByTS = "sessions_by_ts"

	defaultTO = 2 * time.Second
)

// Record is one node session's audit trail: who connected, where it was
// routed, and how much data crossed in each direction. SessionID is a
// process-local monotonic string, not a protocol concept — spec.md's
// handshake carries no session identifier of its own.
type Record struct {
	SessionID      string    `json:"session_id"`
	SourceAddr     string    `json:"source_addr"`
	DestHost       string    `json:"dest_host"`
	DestPort       uint16    `json:"dest_port"`
	OpenedAt       time.Time `json:"opened_at"`
	ClosedAt       time.Time `json:"closed_at"`
	BytesToDest    int64     `json:"bytes_to_dest"`
	BytesToSource  int64     `json:"bytes_to_source"`
	FailureReason  string    `json:"failure_reason,omitempty"`
}

// Store is a BoltDB-backed sessionlog.
type Store struct {
	db *bolt.DB
}

// Open opens (or creates) a BoltDB database at path.
func Open(path string) (*Store, error) {
	if path == "" {
		return nil, errors.New("sessionlog: empty db path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: defaultTO})
	if err != nil {
		return nil, err
	}

	s := &Store{db: db}
	if err := s.db.Update(func(tx *bolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists([]byte(bByID)); err != nil {
			return err
		}
		if _, err := tx.CreateBucketIfNotExists([]byte(bByTS)); err != nil {
			return err
		}
		return nil
	}); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) Close() error { return s.db.Close() }

// Put records one finished session, keyed by SessionID, indexed by
// ClosedAt for RecentSince.
func (s *Store) Put(r Record) error {
	if r.SessionID == "" {
		return errors.New("sessionlog: missing session id")
	}
	val, err := json.Marshal(r)
	if err != nil {
		return err
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		byID := tx.Bucket([]byte(bByID))
		byTS := tx.Bucket([]byte(bByTS))
		if err := byID.Put([]byte(r.SessionID), val); err != nil {
			return err
		}
		return byTS.Put(tsKey(r.ClosedAt.UnixNano(), r.SessionID), nil)
	})
}

// RecentSince returns, oldest first, every record closed at or after
// since, capped at limit (0 means no cap).
func (s *Store) RecentSince(since time.Time, limit int) ([]Record, error) {
	out := make([]Record, 0, 64)
	err := s.db.View(func(tx *bolt.Tx) error {
		byTS := tx.Bucket([]byte(bByTS))
		byID := tx.Bucket([]byte(bByID))
		c := byTS.Cursor()
		seek := tsKey(since.UnixNano(), "")
		for k, _ := c.Seek(seek); k != nil; k, _ = c.Next() {
			if limit > 0 && len(out) >= limit {
				break
			}
			_, id := splitTSKey(k)
			if id == "" {
				continue
			}
			raw := byID.Get([]byte(id))
			if raw == nil {
				continue
			}
			var r Record
			if err := json.Unmarshal(raw, &r); err != nil {
				continue
			}
			out = append(out, r)
		}
		return nil
	})
	return out, err
}

func tsKey(ts int64, sessionID string) []byte {
	b := make([]byte, 8+1+len(sessionID))
	binary.BigEndian.PutUint64(b[:8], uint64(ts))
	b[8] = 0
	copy(b[9:], sessionID)
	return b
}

func splitTSKey(k []byte) (int64, string) {
	if len(k) < 9 {
		return 0, ""
	}
	ts := int64(binary.BigEndian.Uint64(k[:8]))
	return ts, string(k[9:])
}
