package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"

	"inspection_cycle_sync/internal/app"
	"inspection_cycle_sync/internal/domain/checklist"
	"inspection_cycle_sync/internal/infra/auth"
	"inspection_cycle_sync/internal/infra/backend"
	"inspection_cycle_sync/internal/infra/config"
	idb "inspection_cycle_sync/internal/infra/database"
	"inspection_cycle_sync/internal/infra/logger"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// runtime holds what every command needs: configuration, the open store
// and the backend credentials.
type runtime struct {
	cfg        *config.AppConfig
	db         *sql.DB
	kv         idb.KV
	tokens     backend.TokenProvider
	httpClient *http.Client
}

func openRuntime(ctx context.Context) (*runtime, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("could not load application configuration: %w", err)
	}
	logger.Init(cfg)
	log := logger.Component("main")

	var db *sql.DB
	var kv *idb.KVStore
	switch cfg.StoreDriver {
	case config.StorePostgres:
		db, err = idb.NewPostgresConnection(cfg.DatabaseURL)
		if err == nil {
			kv, err = idb.NewPostgresKV(ctx, db)
		}
	default:
		db, err = idb.NewSQLiteConnection(cfg.StorePath)
		if err == nil {
			kv, err = idb.NewSQLiteKV(ctx, db)
		}
	}
	if err != nil {
		if db != nil {
			db.Close()
		}
		return nil, fmt.Errorf("could not open %s store: %w", cfg.StoreDriver, err)
	}
	log.WithField("driver", cfg.StoreDriver).Debug("Local store opened")

	var tokens backend.TokenProvider
	if cfg.AccessTokenFile != "" {
		tokens = auth.NewFileProvider(cfg.AccessTokenFile)
	} else {
		tokens = auth.NewStaticProvider(cfg.AccessToken)
	}

	return &runtime{
		cfg:        cfg,
		db:         db,
		kv:         kv,
		tokens:     tokens,
		httpClient: &http.Client{Timeout: cfg.HTTPTimeout},
	}, nil
}

func (r *runtime) Close() error {
	return r.db.Close()
}

// service wires a sync service for one checklist variant.
func (r *runtime) service(v checklist.Variant) *app.SyncService {
	log := logrus.NewEntry(logger.Log) // Services tag their own component and variant
	client := backend.NewClient(r.cfg.BackendBaseURL, v, r.tokens, r.httpClient, log)
	queue := idb.NewKVOfflineQueue(r.kv, v.Namespace)
	starts := idb.NewKVStartDataRepository(r.kv, v.Namespace)
	return app.NewSyncService(v, client, queue, starts, log)
}

// withService opens the runtime and the service for the --variant flag,
// runs fn and closes the store.
func withService(cmd *cobra.Command, fn func(ctx context.Context, svc *app.SyncService) error) error {
	name, _ := cmd.Flags().GetString("variant")
	v, err := checklist.Lookup(name)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	rt, err := openRuntime(ctx)
	if err != nil {
		return err
	}
	defer rt.Close()

	return fn(ctx, rt.service(v))
}

func requiredString(cmd *cobra.Command, flag string) (string, error) {
	value, _ := cmd.Flags().GetString(flag)
	if value == "" {
		return "", fmt.Errorf("--%s flag is required", flag)
	}
	return value, nil
}
