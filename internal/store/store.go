// Package store persists per-principal conversation history and the last
// dispatch error.
package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/quells-bot/unified-chat/internal/models"
	"github.com/quells-bot/unified-chat/llm"
)

// Sentinel errors for store operations.
// Use errors.Is() to check for these errors in calling code.
var (
	// ErrStorage indicates the backend could not be read or written. No
	// partial history is ever returned alongside it.
	ErrStorage = errors.New("storage failure")

	// ErrConflict indicates another writer claimed the same position for a
	// principal. The append was not persisted.
	ErrConflict = errors.New("position conflict")
)

// Store is the durable conversation log.
//
// Appends for one principal are linearized; positions are dense and start at
// 0. Every successful Append is visible to the next LoadHistory.
type Store interface {
	LoadHistory(ctx context.Context, principal string) ([]models.Message, error)
	Append(ctx context.Context, principal string, role llm.Role, content string) (models.Message, error)
	LoadError(ctx context.Context, principal string) (*models.ErrorRecord, error)
	RecordError(ctx context.Context, principal string, rec models.ErrorRecord) error
	ClearError(ctx context.Context, principal string) error
	Close() error
}

func storageErr(op string, err error) error {
	if errors.Is(err, ErrConflict) {
		return fmt.Errorf("%s: %w", op, err)
	}
	return fmt.Errorf("%s: %w: %v", op, ErrStorage, err)
}
