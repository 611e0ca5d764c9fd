package db

import (
	"context"
	"testing"

	"github.com/moltasthornblom/beam/config"

	"github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDSNRoundTrips(t *testing.T) {
	cfg := &config.Config{
		DBUser:     "beam",
		DBPassword: "p@ss:word",
		DBHost:     "db.internal",
		DBPort:     "3307",
		DBName:     "media",
	}

	parsed, err := mysql.ParseDSN(DSN(cfg))
	require.NoError(t, err)

	assert.Equal(t, "beam", parsed.User)
	assert.Equal(t, "p@ss:word", parsed.Passwd)
	assert.Equal(t, "db.internal:3307", parsed.Addr)
	assert.Equal(t, "media", parsed.DBName)
	assert.True(t, parsed.ParseTime)
}

func TestConnectRedisDisabled(t *testing.T) {
	client, err := ConnectRedis(context.Background(), &config.Config{})
	require.NoError(t, err)
	assert.Nil(t, client)
	assert.Error(t, CheckRedis(context.Background(), nil))
}

func TestAutoMigrateRequiresDB(t *testing.T) {
	assert.Error(t, AutoMigrate(nil))
	assert.NoError(t, CloseGormDB(nil))
}
