// Package pg provides PostgreSQL connection pooling, schema migrations,
// and health checking on top of pgx and goose.
//
// Connect parses the configuration, applies pool limits, and retries the
// initial connection with linear backoff so service startup survives a
// database that is still coming up:
//
//	var cfg pg.Config
//	config.MustLoad(&cfg)
//
//	pool, err := pg.Connect(ctx, cfg)
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer pool.Close()
//
//	if err := pg.Migrate(ctx, pool, cfg, logger); err != nil {
//		log.Fatal(err)
//	}
//
// The pool backs subscription.PGLedgerStore; Migrate applies the goose
// SQL migrations shipped alongside that store.
package pg
