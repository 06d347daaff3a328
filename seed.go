package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"table-settlement/internal/models"
	"table-settlement/internal/storage"
)

var demoMenu = []*models.MenuItem{
	{ID: "menu-pho-bo", Name: "Pho bo", Price: decimal.NewFromInt(60000), Available: true},
	{ID: "menu-bun-cha", Name: "Bun cha", Price: decimal.NewFromInt(55000), Available: true},
	{ID: "menu-com-tam", Name: "Com tam", Price: decimal.NewFromInt(50000), Available: true},
	{ID: "menu-goi-cuon", Name: "Goi cuon", Price: decimal.NewFromInt(35000), Available: true},
	{ID: "menu-tra-da", Name: "Tra da", Price: decimal.NewFromInt(5000), Available: true},
	{ID: "menu-ca-phe", Name: "Ca phe sua da", Price: decimal.NewFromInt(25000), Available: true},
}

func seedCmd() *cobra.Command {
	var (
		tables   int
		capacity int
		menuFile string
	)
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Insert dining tables and menu items",
		Long: `Insert dining tables table-1..table-N and the menu.

Existing tables are left untouched. Existing menu items get the seeded price,
which only affects orders placed afterwards.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			menu := demoMenu
			if menuFile != "" {
				var err error
				if menu, err = loadMenu(menuFile); err != nil {
					return err
				}
			}

			store, err := openStore()
			if err != nil {
				return err
			}
			defer store.Close()

			created, err := seedFloor(cmd.Context(), store, tables, capacity, menu)
			if err != nil {
				return err
			}
			fmt.Printf("Seeded %d new tables and %d menu items\n", created, len(menu))
			return nil
		},
	}
	cmd.Flags().IntVarP(&tables, "tables", "n", 10, "number of tables")
	cmd.Flags().IntVarP(&capacity, "capacity", "c", 4, "seats per table")
	cmd.Flags().StringVar(&menuFile, "menu", "", "JSON file with menu items (defaults to the demo menu)")
	return cmd
}

func loadMenu(path string) ([]*models.MenuItem, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read menu: %w", err)
	}
	var menu []*models.MenuItem
	if err := json.Unmarshal(raw, &menu); err != nil {
		return nil, fmt.Errorf("failed to parse menu: %w", err)
	}
	for _, item := range menu {
		if item.ID == "" || item.Name == "" || item.Price.IsNegative() {
			return nil, fmt.Errorf("invalid menu item %q", item.ID)
		}
	}
	return menu, nil
}

// seedFloor inserts missing tables and upserts the menu in one transaction.
// It returns how many tables were created.
func seedFloor(ctx context.Context, store storage.Store, tables, capacity int, menu []*models.MenuItem) (int, error) {
	if tables < 1 || capacity < 1 {
		return 0, errors.New("tables and capacity must be positive")
	}

	created := 0
	err := store.WithTx(ctx, func(tx storage.Tx) error {
		now := time.Now().UTC()
		for n := 1; n <= tables; n++ {
			id := fmt.Sprintf("table-%d", n)
			_, err := tx.GetTable(ctx, id)
			if err == nil {
				continue
			}
			if !errors.Is(err, storage.ErrNotFound) {
				return err
			}
			if err := tx.InsertTable(ctx, &models.Table{ID: id, Number: n, Capacity: capacity, Status: models.TableAvailable, UpdatedAt: now}); err != nil {
				return err
			}
			created++
		}

		for _, item := range menu {
			_, err := tx.GetMenuItem(ctx, item.ID)
			switch {
			case err == nil:
				err = tx.UpdateMenuItemPrice(ctx, item)
			case errors.Is(err, storage.ErrNotFound):
				err = tx.InsertMenuItem(ctx, item)
			}
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("seed failed: %w", err)
	}
	log.LogDatabase("SEED", cfg.Database.Driver, fmt.Sprintf("%d tables created, %d menu items upserted", created, len(menu)))
	return created, nil
}
