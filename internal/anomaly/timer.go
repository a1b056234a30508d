package anomaly

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/electio/votegate/internal/fraud"
)

// ScanTimer periodically runs the anomaly scanner and reloads the
// classifier artifact so retrained models are picked up without a restart.
type ScanTimer struct {
	scanner *Scanner
	model   *fraud.ModelScorer
	logger  *slog.Logger

	scanInterval   time.Duration
	reloadInterval time.Duration
	stop           chan struct{}
	running        atomic.Bool
}

// NewScanTimer creates a periodic scan worker. model may be nil or
// reloadInterval zero to disable artifact reloading.
func NewScanTimer(scanner *Scanner, model *fraud.ModelScorer, scanInterval, reloadInterval time.Duration, logger *slog.Logger) *ScanTimer {
	return &ScanTimer{
		scanner:        scanner,
		model:          model,
		logger:         logger,
		scanInterval:   scanInterval,
		reloadInterval: reloadInterval,
		stop:           make(chan struct{}),
	}
}

// Running reports whether the timer loop is active.
func (t *ScanTimer) Running() bool {
	return t.running.Load()
}

// Start runs scheduled scans until the context is cancelled or Stop is
// called. Blocks; run in a goroutine.
func (t *ScanTimer) Start(ctx context.Context) {
	t.running.Store(true)
	defer t.running.Store(false)

	scanTicker := time.NewTicker(t.scanInterval)
	defer scanTicker.Stop()

	var reloadCh <-chan time.Time
	if t.model != nil && t.reloadInterval > 0 {
		reloadTicker := time.NewTicker(t.reloadInterval)
		defer reloadTicker.Stop()
		reloadCh = reloadTicker.C
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.stop:
			return
		case <-scanTicker.C:
			t.safeDoWork(func() { t.runScan(ctx) })
		case <-reloadCh:
			t.safeDoWork(t.reloadModel)
		}
	}
}

// Stop signals the timer to stop.
func (t *ScanTimer) Stop() {
	select {
	case t.stop <- struct{}{}:
	default:
	}
}

func (t *ScanTimer) safeDoWork(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			t.logger.Error("panic in scan worker", "panic", fmt.Sprint(r))
		}
	}()
	fn()
}

func (t *ScanTimer) runScan(ctx context.Context) {
	result, err := t.scanner.Scan(ctx, TriggerScheduled)
	if err != nil {
		if err != ErrScanRunning {
			t.logger.Error("scheduled anomaly scan failed", "error", err)
		}
		return
	}
	if result.Result == ResultInsufficientData {
		t.logger.Info("scheduled scan skipped, insufficient data")
	}
}

func (t *ScanTimer) reloadModel() {
	if err := t.model.TryLoad(); err != nil {
		t.logger.Warn("classifier artifact reload failed", "error", err)
	}
}
