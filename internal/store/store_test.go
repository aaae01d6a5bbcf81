package store

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quells-bot/unified-chat/internal/models"
	"github.com/quells-bot/unified-chat/llm"
)

// runStoreSuite exercises the behavior every Store backend must share.
func runStoreSuite(t *testing.T, newStore func(t *testing.T) Store) {
	t.Run("EmptyHistory", func(t *testing.T) {
		s := newStore(t)
		history, err := s.LoadHistory(context.Background(), uniquePrincipal("empty"))
		require.NoError(t, err)
		assert.NotNil(t, history, "empty history should be a non-nil slice")
		assert.Empty(t, history)
	})

	t.Run("AppendOrdering", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		principal := uniquePrincipal("order")

		want := []struct {
			role llm.Role
			text string
		}{
			{llm.RoleUser, "Hi"},
			{llm.RoleAssistant, "Hello! How can I help?"},
			{llm.RoleUser, "What is the capital of France?"},
			{llm.RoleAssistant, "Paris."},
			{llm.RoleUser, "Thanks"},
		}
		for i, w := range want {
			m, err := s.Append(ctx, principal, w.role, w.text)
			require.NoError(t, err)
			assert.Equal(t, int64(i), m.Position)
			assert.NotEmpty(t, m.ID)
			assert.Equal(t, principal, m.Principal)
		}

		history, err := s.LoadHistory(ctx, principal)
		require.NoError(t, err)
		require.Len(t, history, len(want))
		for i, m := range history {
			assert.Equal(t, int64(i), m.Position)
			assert.Equal(t, want[i].role, m.Role)
			assert.Equal(t, want[i].text, m.Content)
		}
	})

	t.Run("PrincipalsIndependent", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		alice, bob := uniquePrincipal("alice"), uniquePrincipal("bob")

		_, err := s.Append(ctx, alice, llm.RoleUser, "from alice")
		require.NoError(t, err)
		m, err := s.Append(ctx, bob, llm.RoleUser, "from bob")
		require.NoError(t, err)
		assert.Equal(t, int64(0), m.Position, "positions are per principal")

		history, err := s.LoadHistory(ctx, alice)
		require.NoError(t, err)
		require.Len(t, history, 1)
		assert.Equal(t, "from alice", history[0].Content)
	})

	t.Run("ConcurrentAppends", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		principal := uniquePrincipal("concurrent")
		const n = 20

		var wg sync.WaitGroup
		errs := make(chan error, n)
		for i := range n {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if _, err := s.Append(ctx, principal, llm.RoleUser, fmt.Sprintf("msg %d", i)); err != nil {
					errs <- err
				}
			}()
		}
		wg.Wait()
		close(errs)
		for err := range errs {
			t.Fatalf("append failed: %v", err)
		}

		history, err := s.LoadHistory(ctx, principal)
		require.NoError(t, err)
		require.Len(t, history, n)
		for i, m := range history {
			assert.Equal(t, int64(i), m.Position, "positions should be dense and unique")
		}
	})

	t.Run("ErrorRecordLifecycle", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		principal := uniquePrincipal("errors")

		rec, err := s.LoadError(ctx, principal)
		require.NoError(t, err)
		assert.Nil(t, rec)

		require.NoError(t, s.RecordError(ctx, principal, models.ErrorRecord{
			Kind:    llm.ErrAuth,
			Message: "invalid api key",
		}))
		rec, err = s.LoadError(ctx, principal)
		require.NoError(t, err)
		require.NotNil(t, rec)
		assert.Equal(t, llm.ErrAuth, rec.Kind)
		assert.Equal(t, "invalid api key", rec.Message)
		assert.False(t, rec.RecordedAt.IsZero())

		// A later failure replaces the earlier one.
		require.NoError(t, s.RecordError(ctx, principal, models.ErrorRecord{
			Kind:       llm.ErrQuota,
			Message:    "quota exhausted",
			RecordedAt: time.Now(),
		}))
		rec, err = s.LoadError(ctx, principal)
		require.NoError(t, err)
		require.NotNil(t, rec)
		assert.Equal(t, llm.ErrQuota, rec.Kind)

		require.NoError(t, s.ClearError(ctx, principal))
		rec, err = s.LoadError(ctx, principal)
		require.NoError(t, err)
		assert.Nil(t, rec)

		require.NoError(t, s.ClearError(ctx, principal), "clearing twice is a no-op")
	})
}

func uniquePrincipal(prefix string) string {
	return fmt.Sprintf("%s_%d", prefix, time.Now().UnixNano())
}
