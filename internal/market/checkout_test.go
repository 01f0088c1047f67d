package market

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMapLockErr(t *testing.T) {
	ctx := context.Background()

	t.Run("lock_timeout fired", func(t *testing.T) {
		err := mapLockErr(ctx, &pgconn.PgError{Code: pgLockNotAvailable, Message: "canceling statement due to lock timeout"})
		require.ErrorIs(t, err, ErrLockTimeout)
		assert.True(t, Retryable(err))
		assert.Equal(t, KindLockTimeout, Kind(err))
	})

	t.Run("deadlock victim", func(t *testing.T) {
		err := mapLockErr(ctx, &pgconn.PgError{Code: pgDeadlockDetected, Message: "deadlock detected"})
		require.ErrorIs(t, err, ErrLockTimeout)
		assert.True(t, Retryable(err))
	})

	t.Run("context deadline", func(t *testing.T) {
		err := mapLockErr(ctx, fmt.Errorf("query: %w", context.DeadlineExceeded))
		require.ErrorIs(t, err, ErrLockTimeout)
		assert.True(t, Retryable(err))
	})

	t.Run("other pg errors pass through", func(t *testing.T) {
		pgErr := &pgconn.PgError{Code: "23514", Message: "check constraint violated"}
		err := mapLockErr(ctx, pgErr)
		assert.False(t, errors.Is(err, ErrLockTimeout))
		assert.False(t, Retryable(err))
		var got *pgconn.PgError
		require.True(t, errors.As(err, &got))
		assert.Equal(t, pgErr.Code, got.Code)
	})

	t.Run("domain errors pass through", func(t *testing.T) {
		assert.ErrorIs(t, mapLockErr(ctx, ErrEmptyCart), ErrEmptyCart)
	})
}
