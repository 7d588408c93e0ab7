package connectivity

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/hazyhaar/tubemaster/watch"
)

// Watch loads the routes table once, then reloads it whenever another
// connection writes to the database. Blocks until ctx is cancelled.
//
//	go router.Watch(ctx, db, time.Second)
func (r *Router) Watch(ctx context.Context, db *sql.DB, interval time.Duration) {
	if err := r.Reload(ctx, db); err != nil {
		r.logger.Error("connectivity: initial reload failed", "error", err)
	}
	w := watch.New(db, watch.Options{Name: "routes", Interval: interval, Logger: r.logger})
	w.OnChange(ctx, func(ctx context.Context, _ int64) error {
		err := r.Reload(ctx, db)
		var nf *ErrNoFactory
		var ff *ErrFactoryFailed
		if errors.As(err, &nf) || errors.As(err, &ff) {
			// Applied without the broken routes; retrying will not fix them.
			return nil
		}
		return err
	})
}
