package infra

import (
	"context"
	"strings"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/congo-pay/p2pcore/internal/config"
	"github.com/congo-pay/p2pcore/internal/logging"
)

func TestOpenInDevelopmentWithoutStores(t *testing.T) {
	s, err := Open(context.Background(), config.Config{AppEnv: "development"}, logging.Discard())
	require.NoError(t, err)
	assert.Nil(t, s.DB)
	assert.Nil(t, s.Cache)
	s.Close(logging.Discard())
}

func TestOpenRequiresStoresInProduction(t *testing.T) {
	_, err := Open(context.Background(), config.Config{AppEnv: "production"}, logging.Discard())
	require.Error(t, err)
}

func TestOpenConnectsRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	s, err := Open(context.Background(), config.Config{AppEnv: "test", RedisURL: "redis://" + mr.Addr()}, logging.Discard())
	require.NoError(t, err)
	require.NotNil(t, s.Cache)
	defer s.Close(logging.Discard())
	assert.NoError(t, s.Cache.Ping(context.Background()).Err())
}

func TestOpenRejectsBadRedisURL(t *testing.T) {
	_, err := Open(context.Background(), config.Config{AppEnv: "development", RedisURL: "not-a-url"}, logging.Discard())
	require.Error(t, err)
}

func TestSchemaCoversEveryTable(t *testing.T) {
	for _, table := range []string{"users", "wallets", "accounts", "transactions", "entries", "transfer_journal"} {
		assert.True(t, strings.Contains(schema, "CREATE TABLE IF NOT EXISTS "+table+" "), table)
	}
}

func TestUnsettledIndexMatchesJournalScan(t *testing.T) {
	assert.Contains(t, schema, "ON transfer_journal (updated_at) WHERE state IN ('SUBMITTING', 'PENDING')")
}
