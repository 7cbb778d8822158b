package api

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// Refresher rebuilds the digest on a fixed interval.
type Refresher struct {
	handler *Handler
	cron    *cron.Cron
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

func NewRefresher(handler *Handler, interval time.Duration) (*Refresher, error) {
	if interval < time.Second {
		return nil, fmt.Errorf("refresh interval must be at least 1s, got %s", interval)
	}

	ctx, cancel := context.WithCancel(context.Background())
	r := &Refresher{
		handler: handler,
		cron:    cron.New(),
		ctx:     ctx,
		cancel:  cancel,
	}

	if _, err := r.cron.AddFunc(fmt.Sprintf("@every %s", interval), r.refresh); err != nil {
		cancel()
		return nil, fmt.Errorf("invalid refresh interval %s: %w", interval, err)
	}

	return r, nil
}

// Start builds the first digest right away, then on every tick.
func (r *Refresher) Start() {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		r.refresh()
	}()

	r.cron.Start()
	slog.Info("Refresher started", "entries", len(r.cron.Entries()))
}

func (r *Refresher) Stop() {
	r.cancel()
	<-r.cron.Stop().Done()
	r.wg.Wait()
	slog.Info("Refresher stopped")
}

func (r *Refresher) refresh() {
	start := time.Now()
	result := r.handler.Refresh(r.ctx)
	if result == nil {
		return
	}

	slog.Info("Digest refreshed",
		"items", result.ItemCount(),
		"errors", len(result.Errors),
		"duration", time.Since(start))
}
