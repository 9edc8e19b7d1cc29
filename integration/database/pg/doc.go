// Package pg opens pgx connection pools with retrying connection checks.
//
// Configuration is read from PG_* environment variables:
//
//	var cfg pg.Config
//	if err := config.Load(&cfg); err != nil {
//		return err
//	}
//	pool, err := pg.Connect(ctx, cfg)
//	if err != nil {
//		return err
//	}
//	defer pool.Close()
//
// Connect applies the pool limits from Config, then pings the database with
// exponential backoff. MaxIdleConns maps to the pool's MinConns so that warm
// connections are kept around.
//
// Healthcheck returns a probe suitable for core/health.Readiness.
package pg
