package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"gighop/internal/adapters/observability"
	redisad "gighop/internal/adapters/redis"
	"gighop/internal/app"
	"gighop/internal/domain"
	"gighop/internal/shared"
	"gighop/internal/storage/memory"
	mysqlrepo "gighop/internal/storage/mysql"
)

var cfg shared.Config

var rootCmd = &cobra.Command{
	Use:           "maintenance",
	Short:         "Offline repair and reporting for the gighop store",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = shared.LoadMaintenance()
		log.Logger = observability.NewLogger(cfg.AppEnv)
		return err
	},
}

// deps opens the store and the optional cache for commands that need them.
type deps struct {
	store domain.TxStore
	cache domain.Cache
	close func()
}

func openDeps(ctx context.Context) (*deps, error) {
	d := &deps{close: func() {}}
	switch cfg.StoreDriver {
	case "memory":
		log.Warn().Msg("memory store selected; nothing persistent to maintain")
		d.store = memory.New()
	default:
		db, err := mysqlrepo.Open(ctx, cfg.MySQLDSN)
		if err != nil {
			return nil, fmt.Errorf("mysql: %w", err)
		}
		d.store = mysqlrepo.New(db)
		d.close = func() { _ = db.Close() }
	}
	if cfg.RedisAddr != "" {
		rc := redisad.New(cfg.RedisAddr, cfg.RedisPass, cfg.RedisDB)
		d.cache = rc
		prev := d.close
		d.close = func() { _ = rc.Close(); prev() }
	}
	return d, nil
}

func (d *deps) maintenance() *app.MaintenanceService {
	return app.NewMaintenanceService(d.store, d.cache)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		log.Error().Err(err).Msg("maintenance failed")
		os.Exit(1)
	}
}
