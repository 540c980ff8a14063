package service

import (
	"context"
	"time"

	metrics "github.com/sifan077/quotalink/internal/infra/prometheus"
	"go.uber.org/zap"
)

// MappingCounter is the slice of the store the gauge refresher needs.
type MappingCounter interface {
	CountAll(ctx context.Context) (int64, error)
}

// MappingGaugeRefresher periodically publishes the live mapping count.
type MappingGaugeRefresher struct {
	logger   *zap.Logger
	counter  MappingCounter
	interval time.Duration
	timeout  time.Duration
	stopChan chan struct{}
}

// NewMappingGaugeRefresher creates a refresher ticking every interval.
func NewMappingGaugeRefresher(logger *zap.Logger, counter MappingCounter, interval, timeout time.Duration) *MappingGaugeRefresher {
	if logger == nil {
		logger = zap.NewNop()
	}
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &MappingGaugeRefresher{
		logger:   logger,
		counter:  counter,
		interval: interval,
		timeout:  timeout,
		stopChan: make(chan struct{}),
	}
}

// Start refreshes once and then on every tick.
func (r *MappingGaugeRefresher) Start() {
	go r.run()
}

// Stop stops the periodic refresh.
func (r *MappingGaugeRefresher) Stop() {
	close(r.stopChan)
}

func (r *MappingGaugeRefresher) run() {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.refresh()
	for {
		select {
		case <-ticker.C:
			r.refresh()
		case <-r.stopChan:
			r.logger.Info("mapping gauge refresher stopped")
			return
		}
	}
}

func (r *MappingGaugeRefresher) refresh() {
	ctx, cancel := withStoreTimeout(context.Background(), r.timeout)
	defer cancel()

	count, err := r.counter.CountAll(ctx)
	if err != nil {
		r.logger.Error("failed to count mappings", zap.Error(err))
		return
	}
	metrics.Mappings.Set(float64(count))
}
