package store

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	bolt "go.etcd.io/bbolt"

	"github.com/quells-bot/unified-chat/internal/models"
	"github.com/quells-bot/unified-chat/llm"
)

var (
	messagesBucket = []byte("messages") // one nested bucket per principal, keyed by position
	errorsBucket   = []byte("error_records")
)

// BoltStore keeps conversations in an embedded bbolt file. Writers are
// serialized by bbolt itself.
type BoltStore struct {
	db *bolt.DB
}

type boltErrorRecord struct {
	Kind       string    `json:"kind"`
	Message    string    `json:"message"`
	RecordedAt time.Time `json:"recorded_at"`
}

// NewBoltStore opens (creating if needed) the bbolt file at path.
func NewBoltStore(path string) (*BoltStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create store dir: %w", err)
	}
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 2 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open bolt: %w", err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(messagesBucket); err != nil {
			return err
		}
		_, err := tx.CreateBucketIfNotExists(errorsBucket)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init buckets: %w", err)
	}
	return &BoltStore{db: db}, nil
}

func positionKey(pos int64) []byte {
	k := make([]byte, 8)
	binary.BigEndian.PutUint64(k, uint64(pos))
	return k
}

func (s *BoltStore) LoadHistory(_ context.Context, principal string) ([]models.Message, error) {
	history := []models.Message{}
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(messagesBucket).Bucket([]byte(principal))
		if b == nil {
			return nil
		}
		// Big-endian keys iterate in position order.
		return b.ForEach(func(_, v []byte) error {
			var m models.Message
			if err := json.Unmarshal(v, &m); err != nil {
				return err
			}
			if _, err := llm.ParseRole(string(m.Role)); err != nil {
				return err
			}
			history = append(history, m)
			return nil
		})
	})
	if err != nil {
		return nil, storageErr("load history", err)
	}
	return history, nil
}

func (s *BoltStore) Append(_ context.Context, principal string, role llm.Role, content string) (models.Message, error) {
	m := models.Message{
		ID:        uuid.NewString(),
		Principal: principal,
		Role:      role,
		Content:   content,
		CreatedAt: time.Now().UTC(),
	}
	err := s.db.Update(func(tx *bolt.Tx) error {
		b, err := tx.Bucket(messagesBucket).CreateBucketIfNotExists([]byte(principal))
		if err != nil {
			return err
		}
		if k, _ := b.Cursor().Last(); k != nil {
			m.Position = int64(binary.BigEndian.Uint64(k)) + 1
		}
		key := positionKey(m.Position)
		if b.Get(key) != nil {
			return fmt.Errorf("%w: position %d", ErrConflict, m.Position)
		}
		enc, err := json.Marshal(m)
		if err != nil {
			return err
		}
		return b.Put(key, enc)
	})
	if err != nil {
		return models.Message{}, storageErr("append", err)
	}
	return m, nil
}

func (s *BoltStore) LoadError(_ context.Context, principal string) (*models.ErrorRecord, error) {
	var rec *models.ErrorRecord
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(errorsBucket).Get([]byte(principal))
		if v == nil {
			return nil
		}
		var stored boltErrorRecord
		if err := json.Unmarshal(v, &stored); err != nil {
			return err
		}
		kind, err := llm.ParseErrorKind(stored.Kind)
		if err != nil {
			return err
		}
		rec = &models.ErrorRecord{Kind: kind, Message: stored.Message, RecordedAt: stored.RecordedAt.UTC()}
		return nil
	})
	if err != nil {
		return nil, storageErr("load error", err)
	}
	return rec, nil
}

func (s *BoltStore) RecordError(_ context.Context, principal string, rec models.ErrorRecord) error {
	if rec.RecordedAt.IsZero() {
		rec.RecordedAt = time.Now().UTC()
	}
	enc, err := json.Marshal(boltErrorRecord{
		Kind:       rec.Kind.String(),
		Message:    rec.Message,
		RecordedAt: rec.RecordedAt,
	})
	if err != nil {
		return storageErr("record error", err)
	}
	err = s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(errorsBucket).Put([]byte(principal), enc)
	})
	if err != nil {
		return storageErr("record error", err)
	}
	return nil
}

func (s *BoltStore) ClearError(_ context.Context, principal string) error {
	err := s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(errorsBucket).Delete([]byte(principal))
	})
	if err != nil {
		return storageErr("clear error", err)
	}
	return nil
}

func (s *BoltStore) Close() error {
	return s.db.Close()
}
