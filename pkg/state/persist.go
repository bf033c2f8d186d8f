package state

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"
)

// persistRecord is the on-disk form of one key: the entry envelope plus the
// encoded payload. Flags carry the compressed/encrypted bits.
type persistRecord struct {
	Version   string        `json:"version"`
	CreatedAt time.Time     `json:"createdAt"`
	UpdatedAt time.Time     `json:"updatedAt"`
	TTL       time.Duration `json:"ttl"`
	Flags     uint8         `json:"flags"`
	Payload   []byte        `json:"payload"`
}

const (
	flagCompressed uint8 = 1 << 0
	flagEncrypted  uint8 = 1 << 1
)

func persistFlags(compressed, encrypted bool) uint8 {
	var f uint8
	if compressed {
		f |= flagCompressed
	}
	if encrypted {
		f |= flagEncrypted
	}
	return f
}

func persistFlagsSplit(f uint8) (compressed, encrypted bool) {
	return f&flagCompressed != 0, f&flagEncrypted != 0
}

// opLogEntry is one append-only log record for crash recovery.
type opLogEntry struct {
	Op        string    `json:"op"` // "set" or "delete"
	Namespace string    `json:"namespace"`
	Key       string    `json:"key"`
	Version   string    `json:"version,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

var bucketOpLog = []byte("oplog")

// persistStore holds durable namespace data in a single bbolt database:
// one bucket per namespace, one record per key, plus an append-only
// operations log bucket.
type persistStore struct {
	db *bolt.DB
}

func openPersistStore(dataDir string) (*persistStore, error) {
	if err := os.MkdirAll(dataDir, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create data dir: %w", err)
	}
	dbPath := filepath.Join(dataDir, "state.db")

	db, err := bolt.Open(dbPath, 0o600, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open state database: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketOpLog)
		return err
	})
	if err != nil {
		db.Close()
		return nil, err
	}
	return &persistStore{db: db}, nil
}

func (s *persistStore) close() error {
	return s.db.Close()
}

func (s *persistStore) put(namespace, key string, rec persistRecord) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists([]byte(namespace))
		if err != nil {
			return fmt.Errorf("failed to create bucket %s: %w", namespace, err)
		}
		data, err := json.Marshal(rec)
		if err != nil {
			return err
		}
		if err := b.Put([]byte(key), data); err != nil {
			return err
		}
		return s.appendLog(tx, opLogEntry{
			Op: "set", Namespace: namespace, Key: key,
			Version: rec.Version, Timestamp: rec.UpdatedAt,
		})
	})
}

func (s *persistStore) delete(namespace, key string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(namespace))
		if b == nil {
			return nil
		}
		if err := b.Delete([]byte(key)); err != nil {
			return err
		}
		return s.appendLog(tx, opLogEntry{
			Op: "delete", Namespace: namespace, Key: key, Timestamp: time.Now(),
		})
	})
}

func (s *persistStore) load(namespace string) (map[string]persistRecord, error) {
	out := make(map[string]persistRecord)
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(namespace))
		if b == nil {
			return nil
		}
		return b.ForEach(func(k, v []byte) error {
			var rec persistRecord
			if err := json.Unmarshal(v, &rec); err != nil {
				return err
			}
			out[string(k)] = rec
			return nil
		})
	})
	return out, err
}

func (s *persistStore) dropNamespace(namespace string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		if tx.Bucket([]byte(namespace)) == nil {
			return nil
		}
		return tx.DeleteBucket([]byte(namespace))
	})
}

// appendLog writes a crash-recovery record under a monotonically
// increasing sequence number.
func (s *persistStore) appendLog(tx *bolt.Tx, entry opLogEntry) error {
	b := tx.Bucket(bucketOpLog)
	seq, err := b.NextSequence()
	if err != nil {
		return err
	}
	data, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	return b.Put(seqKey(seq), data)
}

func seqKey(seq uint64) []byte {
	key := make([]byte, 8)
	for i := 7; i >= 0; i-- {
		key[i] = byte(seq)
		seq >>= 8
	}
	return key
}
