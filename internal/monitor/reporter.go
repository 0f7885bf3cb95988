package monitor

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/nerrad567/threatintel-core/internal/dbpool"
	"github.com/nerrad567/threatintel-core/internal/infrastructure/mqtt"
)

// DefaultInterval is used when Config.Interval is zero.
const DefaultInterval = 15 * time.Second

// requestQoS is the QoS for the on-demand statistics subscription.
const requestQoS = 1

// ErrAlreadyRunning is returned by Start on a running reporter.
var ErrAlreadyRunning = errors.New("monitor: reporter already running")

// StatsSource supplies pool snapshots. *dbpool.Pool satisfies it.
type StatsSource interface {
	Stats() dbpool.Stats
}

// MetricsWriter stores samples. *influxdb.Client satisfies it.
type MetricsWriter interface {
	WritePoolStats(instance string, s dbpool.Stats, ts time.Time)
}

// Publisher pushes samples onto the message bus. *mqtt.Client satisfies it.
type Publisher interface {
	PublishJSON(topic string, v any, retained bool) error
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
}

// Logger defines the logging interface for the reporter.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Config controls the reporter.
type Config struct {
	// Instance tags every sample, usually the service ID.
	Instance string

	// Interval between periodic samples.
	Interval time.Duration
}

// Sample is one reported snapshot as published on the bus.
type Sample struct {
	Instance  string       `json:"instance"`
	Timestamp time.Time    `json:"timestamp"`
	Stats     dbpool.Stats `json:"stats"`
}

// Reporter periodically samples pool statistics and fans them out to
// InfluxDB and MQTT. Either sink may be absent.
type Reporter struct {
	source    StatsSource
	cfg       Config
	writer    MetricsWriter
	publisher Publisher
	logger    Logger
	now       func() time.Time

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
	last    *Sample
}

// Option configures a Reporter.
type Option func(*Reporter)

// WithMetricsWriter sends samples to w.
func WithMetricsWriter(w MetricsWriter) Option {
	return func(r *Reporter) { r.writer = w }
}

// WithPublisher publishes samples through p and answers on-demand requests.
func WithPublisher(p Publisher) Option {
	return func(r *Reporter) { r.publisher = p }
}

// WithLogger sets the reporter logger.
func WithLogger(l Logger) Option {
	return func(r *Reporter) {
		if l != nil {
			r.logger = l
		}
	}
}

// New creates a stopped reporter over source.
func New(source StatsSource, cfg Config, opts ...Option) *Reporter {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	r := &Reporter{
		source: source,
		cfg:    cfg,
		logger: noopLogger{},
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Start subscribes to the request topic (when publishing) and launches the
// sampling loop. The loop ends when ctx is cancelled or Stop is called.
func (r *Reporter) Start(ctx context.Context) error {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return ErrAlreadyRunning
	}
	loopCtx, cancel := context.WithCancel(ctx)
	r.running = true
	r.cancel = cancel
	r.done = make(chan struct{})
	done := r.done
	r.mu.Unlock()

	if r.publisher != nil {
		err := r.publisher.Subscribe(mqtt.Topics{}.DBPoolRequest(), requestQoS, func(string, []byte) error {
			return r.ReportNow()
		})
		if err != nil {
			// Periodic publishing still works without the request topic.
			r.logger.Warn("subscribing to pool stats requests failed", "error", err)
		}
	}

	go r.loop(loopCtx, done)

	r.logger.Info("pool monitor started", "interval", r.cfg.Interval, "instance", r.cfg.Instance)
	return nil
}

// Stop ends the sampling loop and waits for it to exit.
func (r *Reporter) Stop() {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return
	}
	r.running = false
	cancel, done := r.cancel, r.done
	r.mu.Unlock()

	cancel()
	<-done
	r.logger.Info("pool monitor stopped")
}

func (r *Reporter) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(r.cfg.Interval)
	defer ticker.Stop()

	r.report()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.report()
		}
	}
}

// ReportNow takes and reports a sample immediately. It returns the MQTT
// publish error, if any; InfluxDB failures surface through its callback.
func (r *Reporter) ReportNow() error {
	return r.report()
}

// Last returns the most recent sample, or false before the first report.
func (r *Reporter) Last() (Sample, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.last == nil {
		return Sample{}, false
	}
	return *r.last, true
}

func (r *Reporter) report() error {
	s := Sample{
		Instance:  r.cfg.Instance,
		Timestamp: r.now().UTC(),
		Stats:     r.source.Stats(),
	}

	r.mu.Lock()
	prev := r.last
	r.last = &s
	r.mu.Unlock()

	r.checkPressure(prev, s)

	if r.writer != nil {
		r.writer.WritePoolStats(s.Instance, s.Stats, s.Timestamp)
	}

	if r.publisher == nil {
		return nil
	}
	if err := r.publisher.PublishJSON(mqtt.Topics{}.DBPoolStats(), s, true); err != nil {
		r.logger.Debug("publishing pool stats failed", "error", err)
		return err
	}
	return nil
}

// checkPressure logs when callers are queueing or timing out.
func (r *Reporter) checkPressure(prev *Sample, cur Sample) {
	if prev == nil {
		return
	}
	timeouts := cur.Stats.AcquireTimeouts - prev.Stats.AcquireTimeouts
	if timeouts > 0 {
		r.logger.Warn("connection pool exhausted since last sample",
			"acquire_timeouts", timeouts,
			"in_use", cur.Stats.InUse,
			"max_pool_size", cur.Stats.MaxPoolSize,
		)
	}
	if failures := cur.Stats.ValidationFailures - prev.Stats.ValidationFailures; failures > 0 {
		r.logger.Info("connections failed validation since last sample", "count", failures)
	}
}
