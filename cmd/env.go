package main

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/stylegen/internal/publish"
	"github.com/sells-group/stylegen/internal/stats"
	"github.com/sells-group/stylegen/internal/store"
	"github.com/sells-group/stylegen/internal/styler"
)

// env bundles the wired subsystems a command needs.
type env struct {
	Store store.Store
	Stats *stats.Provider
	Gen   *styler.Generator

	closers []func()
}

func (e *env) Close() {
	for i := len(e.closers) - 1; i >= 0; i-- {
		e.closers[i]()
	}
}

func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		dsn := cfg.Store.DatabaseURL
		if dsn == "" {
			dsn = "stylegen.db"
		}
		return store.NewSQLite(dsn)
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL, nil)
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}

// initEnv wires the store, the layer-data statistics provider, and the
// generator. The GeoServer publisher is attached only when configured.
func initEnv(ctx context.Context) (*env, error) {
	if err := cfg.Validate("cli"); err != nil {
		return nil, err
	}

	e := &env{}

	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}
	e.Store = st
	e.closers = append(e.closers, func() { _ = st.Close() })

	if err := st.Migrate(ctx); err != nil {
		e.Close()
		return nil, err
	}

	dataPool, err := pgxpool.New(ctx, cfg.DataURL())
	if err != nil {
		e.Close()
		return nil, eris.Wrap(err, "connect layer database")
	}
	e.closers = append(e.closers, dataPool.Close)
	e.Stats = stats.New(dataPool, cfg.Data.Schema)

	var pub styler.Publisher
	if cfg.GeoServer.BaseURL != "" {
		pub = publish.NewClient(
			cfg.GeoServer.BaseURL,
			cfg.GeoServer.Username,
			cfg.GeoServer.Password,
			publish.WithTimeout(time.Duration(cfg.GeoServer.TimeoutSecs)*time.Second),
		)
	}

	e.Gen = styler.New(st, e.Stats, pub, styler.Config{
		Workspace:       cfg.GeoServer.Workspace,
		DefaultPalette:  cfg.Style.DefaultPalette,
		DefaultClasses:  cfg.Style.DefaultClasses,
		FillOpacity:     cfg.Style.FillOpacity,
		StrokeColor:     cfg.Style.StrokeColor,
		StrokeWidth:     cfg.Style.StrokeWidth,
		CacheTTL:        time.Duration(cfg.Style.CacheTTLHours) * time.Hour,
		JenksSampleSize: cfg.Style.JenksSampleSize,
		DistinctLimit:   cfg.Style.DistinctLimit,
	})

	return e, nil
}
