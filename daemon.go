package ddns

import (
	"context"
	"time"
)

// Every calls fn immediately and then again each time interval has elapsed since the previous call returned.
// Calls never overlap. Every returns ctx.Err() once ctx is done; an in-flight call is not interrupted
// beyond what fn itself does with ctx.
func Every(ctx context.Context, interval time.Duration, fn func(context.Context)) error {
	t := time.NewTimer(0)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		fn(ctx)
		t.Reset(interval)
	}
}

// Run performs Startup and then polls at the configured interval until ctx is done.
//
// Startup problems are logged and polling starts regardless, so a process with a misconfigured
// domain stays alive and reports the problem instead of exiting.
// Run waits for a pending startup verification before returning ctx.Err().
func (c *Client) Run(ctx context.Context) error {
	defer c.verifications.Wait()

	c.logger.Info("updater started", "domain", c.domain, "subdomain", c.subDomain, "interval", c.interval)
	if err := c.Startup(ctx); err != nil {
		c.logger.Error(err, "startup did not complete, continuing with polling")
	}

	return Every(ctx, c.interval, func(ctx context.Context) {
		// Poll logs its own failures
		_ = c.Poll(ctx)
	})
}
