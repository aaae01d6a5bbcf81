package store

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/surrealdb/surrealdb.go"
	"github.com/surrealdb/surrealdb.go/contrib/rews"
	"github.com/surrealdb/surrealdb.go/pkg/connection"
	"github.com/surrealdb/surrealdb.go/pkg/connection/gorillaws"
	"github.com/surrealdb/surrealdb.go/pkg/logger"
	surrealmodels "github.com/surrealdb/surrealdb.go/pkg/models"
	"github.com/surrealdb/surrealdb.go/surrealcbor"

	"github.com/quells-bot/unified-chat/internal/models"
	"github.com/quells-bot/unified-chat/llm"
)

func init() {
	// WebSocket upgrade fails under HTTP/2 ALPN negotiation on wss://.
	gorillaws.DefaultDialer.TLSClientConfig = &tls.Config{
		NextProtos: []string{"http/1.1"},
	}
}

// SurrealConfig holds SurrealDB connection configuration.
type SurrealConfig struct {
	URL       string
	Namespace string
	Database  string
	Username  string
	Password  string
	AuthLevel string // "root" or "database"
}

// SurrealStore keeps conversations in SurrealDB over an auto-reconnecting
// WebSocket.
type SurrealStore struct {
	conn   *rews.Connection[*gorillaws.Connection]
	db     *surrealdb.DB
	logger logger.Logger
	mu     sync.Mutex // serializes appends within the process
}

type messageRow struct {
	ID        surrealmodels.RecordID `json:"id"`
	Principal string                 `json:"principal"`
	Role      string                 `json:"role"`
	Content   string                 `json:"content"`
	Position  int64                  `json:"position"`
	CreatedAt time.Time              `json:"created_at"`
}

type positionRow struct {
	Position int64 `json:"position"`
}

type errorRow struct {
	Kind       string    `json:"kind"`
	Message    string    `json:"message"`
	RecordedAt time.Time `json:"recorded_at"`
}

// NewSurrealStore connects, authenticates, selects the namespace and database,
// and applies the schema.
func NewSurrealStore(ctx context.Context, cfg SurrealConfig, log *slog.Logger) (*SurrealStore, error) {
	if log == nil {
		log = slog.Default()
	}
	sdkLogger := logger.New(log.Handler())
	codec := surrealcbor.New()

	// gorillaws appends /rpc itself
	baseURL := strings.TrimSuffix(cfg.URL, "/rpc")

	conn := rews.New(
		func(ctx context.Context) (*gorillaws.Connection, error) {
			return gorillaws.New(&connection.Config{
				BaseURL:     baseURL,
				Marshaler:   codec,
				Unmarshaler: codec,
				Logger:      sdkLogger,
			}), nil
		},
		5*time.Second,
		codec,
		sdkLogger,
	)

	retryer := rews.NewExponentialBackoffRetryer()
	retryer.InitialDelay = 1 * time.Second
	retryer.MaxDelay = 30 * time.Second
	retryer.Multiplier = 2.0
	retryer.MaxRetries = 10
	conn.Retryer = retryer

	sdkLogger.Info("connecting to SurrealDB", "url", cfg.URL)
	if err := conn.Connect(ctx); err != nil {
		return nil, fmt.Errorf("connect: %w", err)
	}

	db, err := surrealdb.FromConnection(ctx, conn)
	if err != nil {
		_ = conn.Close(ctx)
		return nil, fmt.Errorf("from connection: %w", err)
	}

	auth := surrealdb.Auth{Username: cfg.Username, Password: cfg.Password}
	if cfg.AuthLevel == "database" {
		auth.Namespace = cfg.Namespace
		auth.Database = cfg.Database
	}
	if _, err := db.SignIn(ctx, auth); err != nil {
		_ = conn.Close(ctx)
		return nil, fmt.Errorf("signin: %w", err)
	}

	if err := db.Use(ctx, cfg.Namespace, cfg.Database); err != nil {
		_ = conn.Close(ctx)
		return nil, fmt.Errorf("use: %w", err)
	}

	if _, err := surrealdb.Query[any](ctx, db, surrealSchema, nil); err != nil {
		_ = conn.Close(ctx)
		return nil, fmt.Errorf("init schema: %w", err)
	}

	sdkLogger.Info("SurrealDB store ready", "namespace", cfg.Namespace, "database", cfg.Database)
	return &SurrealStore{conn: conn, db: db, logger: sdkLogger}, nil
}

func (s *SurrealStore) LoadHistory(ctx context.Context, principal string) ([]models.Message, error) {
	results, err := surrealdb.Query[[]messageRow](ctx, s.db, `
		SELECT * FROM message WHERE principal = $principal ORDER BY position ASC
	`, map[string]any{"principal": principal})
	if err != nil {
		return nil, storageErr("load history", err)
	}

	history := []models.Message{}
	if results == nil || len(*results) == 0 {
		return history, nil
	}
	for _, row := range (*results)[0].Result {
		m, err := row.message()
		if err != nil {
			return nil, storageErr("load history", err)
		}
		history = append(history, m)
	}
	return history, nil
}

func (s *SurrealStore) Append(ctx context.Context, principal string, role llm.Role, content string) (models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	last, err := surrealdb.Query[[]positionRow](ctx, s.db, `
		SELECT position FROM message WHERE principal = $principal ORDER BY position DESC LIMIT 1
	`, map[string]any{"principal": principal})
	if err != nil {
		return models.Message{}, storageErr("append", err)
	}
	position := int64(0)
	if last != nil && len(*last) > 0 && len((*last)[0].Result) > 0 {
		position = (*last)[0].Result[0].Position + 1
	}

	id := uuid.NewString()
	created, err := surrealdb.Query[[]messageRow](ctx, s.db, `
		CREATE type::record("message", $id) CONTENT {
			principal: $principal,
			role: $role,
			content: $content,
			position: $position,
			created_at: time::now()
		}
	`, map[string]any{
		"id":        id,
		"principal": principal,
		"role":      string(role),
		"content":   content,
		"position":  position,
	})
	if err != nil {
		return models.Message{}, storageErr("append", wrapQueryError(err))
	}
	if created == nil || len(*created) == 0 || len((*created)[0].Result) == 0 {
		return models.Message{}, storageErr("append", errors.New("create returned no record"))
	}
	m, err := (*created)[0].Result[0].message()
	if err != nil {
		return models.Message{}, storageErr("append", err)
	}
	return m, nil
}

func (s *SurrealStore) LoadError(ctx context.Context, principal string) (*models.ErrorRecord, error) {
	results, err := surrealdb.Query[[]errorRow](ctx, s.db, `
		SELECT kind, message, recorded_at FROM type::record("error_record", $principal)
	`, map[string]any{"principal": principal})
	if err != nil {
		return nil, storageErr("load error", err)
	}
	if results == nil || len(*results) == 0 || len((*results)[0].Result) == 0 {
		return nil, nil
	}
	row := (*results)[0].Result[0]
	kind, err := llm.ParseErrorKind(row.Kind)
	if err != nil {
		return nil, storageErr("load error", err)
	}
	return &models.ErrorRecord{Kind: kind, Message: row.Message, RecordedAt: row.RecordedAt.UTC()}, nil
}

func (s *SurrealStore) RecordError(ctx context.Context, principal string, rec models.ErrorRecord) error {
	if rec.RecordedAt.IsZero() {
		rec.RecordedAt = time.Now().UTC()
	}
	_, err := surrealdb.Query[any](ctx, s.db, `
		UPSERT type::record("error_record", $principal) CONTENT {
			kind: $kind,
			message: $message,
			recorded_at: type::datetime($recorded_at)
		}
	`, map[string]any{
		"principal":   principal,
		"kind":        rec.Kind.String(),
		"message":     rec.Message,
		"recorded_at": rec.RecordedAt.Format(time.RFC3339Nano),
	})
	if err != nil {
		return storageErr("record error", err)
	}
	return nil
}

func (s *SurrealStore) ClearError(ctx context.Context, principal string) error {
	_, err := surrealdb.Query[any](ctx, s.db, `
		DELETE type::record("error_record", $principal)
	`, map[string]any{"principal": principal})
	if err != nil {
		return storageErr("clear error", err)
	}
	return nil
}

// Close closes the SurrealDB connection.
func (s *SurrealStore) Close() error {
	s.logger.Info("closing SurrealDB connection")
	return s.conn.Close(context.Background())
}

func (r messageRow) message() (models.Message, error) {
	id, ok := r.ID.ID.(string)
	if !ok {
		return models.Message{}, fmt.Errorf("unexpected ID type: %T (expected string)", r.ID.ID)
	}
	role, err := llm.ParseRole(r.Role)
	if err != nil {
		return models.Message{}, err
	}
	return models.Message{
		ID:        id,
		Principal: r.Principal,
		Role:      role,
		Content:   r.Content,
		Position:  r.Position,
		CreatedAt: r.CreatedAt.UTC(),
	}, nil
}

// wrapQueryError maps a unique index violation to ErrConflict.
func wrapQueryError(err error) error {
	var queryErr *surrealdb.QueryError
	if errors.As(err, &queryErr) && strings.Contains(queryErr.Message, "already contains") {
		return fmt.Errorf("%w: %s", ErrConflict, queryErr.Message)
	}
	return err
}
