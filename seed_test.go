package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"table-settlement/internal/config"
	"table-settlement/internal/logger"
	"table-settlement/internal/models"
	"table-settlement/internal/notify"
	"table-settlement/internal/storage"
)

func setupGlobals(t *testing.T, driver, transport string) {
	t.Helper()
	log = logger.NewDiscard()
	cfg = &config.Config{
		Database: config.DatabaseConfig{Driver: driver},
		Notify:   config.NotifyConfig{Transport: transport, BufferSize: 8},
	}
}

func TestSeedFloorIsRepeatable(t *testing.T) {
	setupGlobals(t, "memory", "log")
	ctx := context.Background()
	store := storage.NewInMemoryStore()

	created, err := seedFloor(ctx, store, 3, 4, demoMenu)
	require.NoError(t, err)
	assert.Equal(t, 3, created)

	repriced := []*models.MenuItem{{ID: "menu-pho-bo", Name: "Pho bo", Price: decimal.NewFromInt(65000), Available: true}}
	created, err = seedFloor(ctx, store, 5, 4, repriced)
	require.NoError(t, err)
	assert.Equal(t, 2, created)

	require.NoError(t, store.View(ctx, func(q storage.Queries) error {
		table, err := q.GetTable(ctx, "table-5")
		require.NoError(t, err)
		assert.Equal(t, models.TableAvailable, table.Status)

		item, err := q.GetMenuItem(ctx, "menu-pho-bo")
		require.NoError(t, err)
		assert.True(t, item.Price.Equal(decimal.NewFromInt(65000)))
		return nil
	}))

	_, err = seedFloor(ctx, store, 0, 4, demoMenu)
	assert.Error(t, err)
}

func TestLoadMenu(t *testing.T) {
	dir := t.TempDir()

	good := filepath.Join(dir, "menu.json")
	require.NoError(t, os.WriteFile(good, []byte(`[{"id":"menu-1","name":"Banh mi","price":"30000","available":true}]`), 0o600))
	menu, err := loadMenu(good)
	require.NoError(t, err)
	require.Len(t, menu, 1)
	assert.True(t, menu[0].Price.Equal(decimal.NewFromInt(30000)))

	bad := filepath.Join(dir, "bad.json")
	require.NoError(t, os.WriteFile(bad, []byte(`[{"id":"","name":"x","price":"1"}]`), 0o600))
	_, err = loadMenu(bad)
	assert.Error(t, err)

	_, err = loadMenu(filepath.Join(dir, "missing.json"))
	assert.Error(t, err)
}

func TestOpenStoreAndPublisher(t *testing.T) {
	setupGlobals(t, "memory", "log")

	store, err := openStore()
	require.NoError(t, err)
	assert.NoError(t, store.Close())

	publisher, err := openPublisher()
	require.NoError(t, err)
	assert.IsType(t, &notify.LogPublisher{}, publisher)

	setupGlobals(t, "sqlite", "carrier-pigeon")
	_, err = openStore()
	assert.Error(t, err)
	_, err = openPublisher()
	assert.Error(t, err)
}

func TestNewAppOnMemoryStore(t *testing.T) {
	setupGlobals(t, "memory", "log")
	cfg.Sync = config.SyncConfig{ReservationWindow: 2 * time.Hour}
	cfg.Session = config.SessionConfig{TTL: 2 * time.Hour}
	cfg.Settlement = config.SettlementConfig{TaxRate: decimal.NewFromFloat(0.1), TransactionPrefix: "TX"}

	a, err := newApp(context.Background())
	require.NoError(t, err)
	defer a.close()

	opened, err := a.svc.Sessions.CreateSession(context.Background(), &models.CreateSessionRequest{TableID: "table-1", CustomerCount: 2})
	require.NoError(t, err)
	assert.True(t, opened.Created)
}
