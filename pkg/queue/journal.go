package queue

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"
)

// journal is the durable backing for persistent queues: one bbolt bucket
// per queue, one record per pending message. Completions delete the record,
// so recovery sees exactly the messages that were still owed work.
type journal struct {
	db *bolt.DB
}

func openJournal(dataDir string) (*journal, error) {
	if err := os.MkdirAll(dataDir, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create data dir: %w", err)
	}
	dbPath := filepath.Join(dataDir, "queues.db")

	db, err := bolt.Open(dbPath, 0o600, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open queue journal: %w", err)
	}
	return &journal{db: db}, nil
}

func (j *journal) close() error {
	return j.db.Close()
}

func (j *journal) put(queueName string, msg *Message) error {
	return j.db.Update(func(tx *bolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists([]byte(queueName))
		if err != nil {
			return fmt.Errorf("failed to create bucket %s: %w", queueName, err)
		}
		data, err := json.Marshal(msg)
		if err != nil {
			return err
		}
		return b.Put([]byte(msg.ID), data)
	})
}

func (j *journal) delete(queueName, messageID string) error {
	return j.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(queueName))
		if b == nil {
			return nil
		}
		return b.Delete([]byte(messageID))
	})
}

func (j *journal) load(queueName string) ([]*Message, error) {
	var out []*Message
	err := j.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(queueName))
		if b == nil {
			return nil
		}
		return b.ForEach(func(k, v []byte) error {
			var msg Message
			if err := json.Unmarshal(v, &msg); err != nil {
				return err
			}
			out = append(out, &msg)
			return nil
		})
	})
	return out, err
}

func (j *journal) dropQueue(queueName string) error {
	return j.db.Update(func(tx *bolt.Tx) error {
		if tx.Bucket([]byte(queueName)) == nil {
			return nil
		}
		return tx.DeleteBucket([]byte(queueName))
	})
}
