package app

import (
	"context"
	"time"
)

// PriceRefresher reloads the pricing tables of an App on a fixed interval
// so long-running watch sessions pick up new prices.
type PriceRefresher struct {
	app           *App
	checkInterval time.Duration
	stopCh        chan struct{}
	doneCh        chan struct{}
}

// NewPriceRefresher creates a refresher for a. Returns nil if interval is
// not positive.
func NewPriceRefresher(a *App, interval time.Duration) *PriceRefresher {
	if interval <= 0 {
		return nil
	}
	return &PriceRefresher{app: a, checkInterval: interval}
}

// Start begins refreshing in a background goroutine until Stop is called
// or ctx ends.
func (r *PriceRefresher) Start(ctx context.Context) {
	// Fresh channels so a stopped refresher can be started again.
	r.stopCh = make(chan struct{})
	r.doneCh = make(chan struct{})
	go r.watchLoop(ctx)
}

// Stop stops the refresher and waits for an in-flight refresh to finish.
func (r *PriceRefresher) Stop() {
	close(r.stopCh)
	<-r.doneCh
}

func (r *PriceRefresher) watchLoop(ctx context.Context) {
	defer close(r.doneCh)
	ticker := time.NewTicker(r.checkInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			// Failures are logged by the store and emitted as events.
			_, _ = r.app.RefreshPrices(ctx)
		}
	}
}
