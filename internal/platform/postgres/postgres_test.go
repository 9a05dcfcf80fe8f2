package postgres

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"accolade/internal/platform/config"
)

func TestIsUniqueViolation(t *testing.T) {
	assert.True(t, IsUniqueViolation(fmt.Errorf("insert: %w", &pgconn.PgError{Code: "23505"})))
	assert.True(t, IsUniqueViolation(&pq.Error{Code: "23505"}))
	assert.False(t, IsUniqueViolation(&pgconn.PgError{Code: "23503"}))
	assert.False(t, IsUniqueViolation(errors.New("plain")))
}

func TestOpen(t *testing.T) {
	t.Run("empty url means not configured", func(t *testing.T) {
		db, err := Open(context.Background(), config.DatabaseConfig{})
		require.NoError(t, err)
		assert.Nil(t, db)
	})

	t.Run("unknown driver", func(t *testing.T) {
		_, err := Open(context.Background(), config.DatabaseConfig{URL: "postgres://x", Driver: "mysql"})
		require.Error(t, err)
	})
}
