package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, "memory", cfg.DB.Driver)
	assert.Equal(t, int64(100), cfg.Withdrawal.MinAmount)
	assert.Equal(t, 500, cfg.Withdrawal.MaxAdminNote)
	assert.Equal(t, 3, cfg.Withdrawal.ContentionRetries)
	assert.Equal(t, "WD", cfg.Withdrawal.TxIDPrefix)
	assert.Equal(t, 5*time.Second, cfg.Withdrawal.StoreTimeout)
	assert.Equal(t, "inproc", cfg.Notify.Driver)
	assert.Empty(t, cfg.Seed)
}

func TestLoad_FileThenEnv(t *testing.T) {
	dir := t.TempDir()
	yaml := `
server:
  port: "9090"
db:
  driver: postgres
  databaseURL: postgres://localhost/payouts?sslmode=disable
withdrawal:
  minAmount: 250
  storeTimeout: 2s
notify:
  driver: asynq
seed:
  - sellerId: seller-1
    email: seller-1@example.com
    balance: 5000
  - sellerId: seller-2
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0o600))
	t.Setenv("WITHDRAWAL_MINAMOUNT", "300")
	t.Setenv("TOKEN_SECRET", "s3cret")

	cfg, err := Load(dir)
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.Server.Port)
	assert.Equal(t, "postgres", cfg.DB.Driver)
	assert.Equal(t, int64(300), cfg.Withdrawal.MinAmount, "environment wins over the file")
	assert.Equal(t, 2*time.Second, cfg.Withdrawal.StoreTimeout)
	assert.Equal(t, "s3cret", cfg.Token.Secret)
	assert.Equal(t, "asynq", cfg.Notify.Driver)
	require.Len(t, cfg.Seed, 2)
	assert.Equal(t, AccountSeed{SellerID: "seller-1", Email: "seller-1@example.com", Balance: 5000}, cfg.Seed[0])
	assert.Equal(t, "seller-2", cfg.Seed[1].SellerID)
}

func TestValidate(t *testing.T) {
	cfg, err := Load(t.TempDir())
	require.NoError(t, err)

	bad := *cfg
	bad.DB.Driver = "mongo"
	bad.Withdrawal.MinAmount = 0
	bad.Notify.Driver = "kafka"
	bad.Withdrawal.MaxAdminNote = -1
	bad.Seed = []AccountSeed{{SellerID: " "}, {SellerID: "s2", Balance: -5}}
	err = bad.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown db.driver "mongo"`)
	assert.Contains(t, err.Error(), "withdrawal.minAmount must be positive")
	assert.Contains(t, err.Error(), `unknown notify.driver "kafka"`)
	assert.Contains(t, err.Error(), "withdrawal.maxAdminNote must not be negative")
	assert.Contains(t, err.Error(), "seed[0].sellerId is required")
	assert.Contains(t, err.Error(), "seed[1].balance must not be negative")

	pg := *cfg
	pg.DB.Driver = "postgres"
	assert.ErrorContains(t, pg.Validate(), "db.databaseURL is required")
}
