package bootstrap

import (
	"context"
	"sync"
	"time"

	"signalwatch/internal/adapters/kafka"
	redisclient "signalwatch/internal/adapters/redis"
	"signalwatch/internal/adapters/sqldb"
	"signalwatch/internal/alerts"
	"signalwatch/internal/api"
	"signalwatch/internal/workers"
	"signalwatch/pkg/errors"
	"signalwatch/pkg/logger"
)

// Lifecycle manages graceful startup and shutdown of components
type Lifecycle struct {
	shutdownTimeout time.Duration
}

// NewLifecycle creates a new lifecycle manager
func NewLifecycle() *Lifecycle {
	return &Lifecycle{
		shutdownTimeout: 30 * time.Second,
	}
}

// ShutdownTargets lists what Shutdown stops. Nil entries are skipped.
type ShutdownTargets struct {
	Cancel        context.CancelFunc
	WG            *sync.WaitGroup
	HTTPServer    *api.Server
	Scheduler     *workers.Scheduler
	Pulser        *alerts.Pulser
	AlertQueues   []*alerts.QueuedNotifier
	KafkaProducer *kafka.Producer
	ErrorTracker  errors.Tracker
	SQL           *sqldb.Client
	Redis         *redisclient.Client
}

// Shutdown performs coordinated cleanup of all components in the correct order:
// 1. No new requests accepted
// 2. Countdown ticks and hub stop
// 3. Feed timers cancelled
// 4. Running pulse cancelled
// 5. Queued alerts delivered
// 6. Producer flushed and closed
// 7. Errors flushed
// 8. Logs synced
// 9. Settings store closed last
func (l *Lifecycle) Shutdown(t ShutdownTargets, log *logger.Logger) {
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), l.shutdownTimeout)
	defer shutdownCancel()

	// ========================================
	// Step 1: Stop HTTP Server (5s timeout)
	// ========================================
	log.Info("[1/9] Stopping HTTP server...")
	if t.HTTPServer != nil {
		httpCtx, httpCancel := context.WithTimeout(shutdownCtx, 5*time.Second)
		if err := t.HTTPServer.Shutdown(httpCtx); err != nil {
			log.Error("HTTP server shutdown failed", "error", err)
		}
		httpCancel()
	}

	// ========================================
	// Step 2: Stop countdown ticker and websocket hub
	// ========================================
	log.Info("[2/9] Stopping countdown and websocket hub...")
	if t.Cancel != nil {
		t.Cancel()
	}
	if t.WG != nil {
		l.waitForGoroutines(t.WG, 5*time.Second, log)
	}

	// ========================================
	// Step 3: Stop feed scheduler
	// ========================================
	log.Info("[3/9] Stopping feed scheduler...")
	if t.Scheduler != nil && t.Scheduler.IsRunning() {
		if err := t.Scheduler.Stop(); err != nil {
			log.Error("Scheduler shutdown failed", "error", err)
		} else {
			log.Info("✓ Scheduler stopped")
		}
	}

	// ========================================
	// Step 4: Cancel running alert pulse
	// ========================================
	log.Info("[4/9] Stopping alert pulse...")
	if t.Pulser != nil {
		t.Pulser.Stop()
	}

	// ========================================
	// Step 5: Drain queued alerts (Kafka and Telegram)
	// ========================================
	log.Info("[5/9] Draining alert queues...")
	for _, q := range t.AlertQueues {
		drainCtx, drainCancel := context.WithTimeout(shutdownCtx, 5*time.Second)
		if err := q.Close(drainCtx); err != nil {
			log.Warn("Alert queue not drained", "error", err)
		}
		drainCancel()
	}

	// ========================================
	// Step 6: Close Kafka Producer
	// ========================================
	log.Info("[6/9] Closing Kafka producer...")
	if t.KafkaProducer != nil {
		if err := t.KafkaProducer.Close(); err != nil {
			log.Error("Kafka producer close failed", "error", err)
		} else {
			log.Info("✓ Kafka producer closed")
		}
	}

	// ========================================
	// Step 7: Flush Error Tracker
	// ========================================
	log.Info("[7/9] Flushing error tracker...")
	l.flushErrorTracker(shutdownCtx, t.ErrorTracker, log)

	// ========================================
	// Step 8: Sync Logs
	// ========================================
	log.Info("[8/9] Syncing logs...")
	if err := logger.Sync(); err != nil {
		log.Warn("Log sync completed with warnings")
	} else {
		log.Info("✓ Logs synced")
	}

	// ========================================
	// Step 9: Close settings stores
	// LAST - a settings update may still be completing
	// ========================================
	log.Info("[9/9] Closing settings stores...")
	l.closeStores(t.SQL, t.Redis, log)

	log.Info("✅ Graceful shutdown complete")
}

// waitForGoroutines waits for all goroutines with a timeout
func (l *Lifecycle) waitForGoroutines(wg *sync.WaitGroup, timeout time.Duration, log *logger.Logger) {
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		log.Info("✓ All goroutines finished")
	case <-time.After(timeout):
		log.Warn("⚠ Some goroutines did not finish within timeout", "timeout", timeout)
	}
}

// flushErrorTracker flushes the error tracker (Sentry, etc.)
func (l *Lifecycle) flushErrorTracker(ctx context.Context, tracker errors.Tracker, log *logger.Logger) {
	if tracker == nil {
		return
	}

	flushCtx, flushCancel := context.WithTimeout(ctx, 3*time.Second)
	defer flushCancel()

	if err := tracker.Flush(flushCtx); err != nil {
		log.Warn("Error tracker flush failed", "error", err)
	} else {
		log.Info("✓ Error tracker flushed")
	}
}

// closeStores closes whichever settings store connections are open
func (l *Lifecycle) closeStores(sqlClient *sqldb.Client, redisClient *redisclient.Client, log *logger.Logger) {
	var errs errors.MultiError

	if sqlClient != nil {
		if err := sqlClient.Close(); err != nil {
			errs.Add(errors.Wrap(err, sqlClient.Driver()))
		}
	}

	if redisClient != nil {
		if err := redisClient.Close(); err != nil {
			errs.Add(errors.Wrap(err, "redis"))
		}
	}

	if errs.HasErrors() {
		log.Warn("Store close errors", "errors", errs.ToError())
	} else {
		log.Info("✓ Settings stores closed")
	}
}
