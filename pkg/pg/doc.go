// Package pg wraps pgxpool connection setup, goose migrations from an
// embedded filesystem, transaction helpers and Postgres error classification.
//
//	pool, err := pg.Connect(ctx, cfg)
//	if err != nil {
//	    return err
//	}
//	if err := pg.Migrate(ctx, pool, cfg, webhooks.Migrations, log); err != nil {
//	    return err
//	}
package pg
