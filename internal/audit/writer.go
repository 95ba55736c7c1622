package audit

import (
	"context"
	"crypto/tls"
	"sync/atomic"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"go.uber.org/zap"
)

const (
	bufferSize    = 10_000
	flushInterval = 100 * time.Millisecond
	flushBatch    = 1000
	drainTimeout  = 2 * time.Second
)

// pump is the async half of a Recorder: events are buffered on a channel and
// handed to flush in batches from a background goroutine. When the buffer is
// full events are dropped and counted rather than blocking the pipeline.
type pump struct {
	buffer  chan *DecisionEvent
	done    chan struct{}
	flushed chan struct{} // closed by loop when it returns
	flush   func(events []*DecisionEvent)
	logger  *zap.Logger
	dropped atomic.Uint64
}

func newPump(size int, flush func([]*DecisionEvent), logger *zap.Logger) *pump {
	p := &pump{
		buffer:  make(chan *DecisionEvent, size),
		done:    make(chan struct{}),
		flushed: make(chan struct{}),
		flush:   flush,
		logger:  logger,
	}
	go p.loop()
	return p
}

func (p *pump) record(event *DecisionEvent) {
	select {
	case p.buffer <- event:
	default:
		dropped := p.dropped.Add(1)
		p.logger.Warn("audit buffer full, dropping event",
			zap.String("request_id", event.RequestID),
			zap.Uint64("dropped_total", dropped),
		)
	}
}

// close signals the loop to drain remaining events and waits for it to
// finish. Safe to call once.
func (p *pump) close() {
	close(p.done)
	<-p.flushed
}

func (p *pump) loop() {
	defer close(p.flushed)

	ticker := time.NewTicker(flushInterval)
	defer ticker.Stop()

	batch := make([]*DecisionEvent, 0, flushBatch)

	for {
		select {
		case event := <-p.buffer:
			batch = append(batch, event)
			if len(batch) >= flushBatch {
				p.flush(batch)
				batch = batch[:0]
			}
		case <-ticker.C:
			if len(batch) > 0 {
				p.flush(batch)
				batch = batch[:0]
			}
		case <-p.done:
			drainCtx, cancel := context.WithTimeout(context.Background(), drainTimeout)
			defer cancel()
		drainLoop:
			for {
				select {
				case event := <-p.buffer:
					batch = append(batch, event)
				case <-drainCtx.Done():
					break drainLoop
				default:
					break drainLoop
				}
			}
			if len(batch) > 0 {
				p.flush(batch)
			}
			return
		}
	}
}

// ClickHouseWriter records decision events to ClickHouse asynchronously.
type ClickHouseWriter struct {
	conn   driver.Conn
	pump   *pump
	logger *zap.Logger
}

// NewClickHouseWriter opens the connection and starts the background flush
// loop.
func NewClickHouseWriter(dsn string, logger *zap.Logger) (*ClickHouseWriter, error) {
	opts, err := clickhouse.ParseDSN(dsn)
	if err != nil {
		return nil, err
	}

	// ParseDSN sets TLS when ?secure=true is in the DSN; enforce it here so
	// ClickHouse Cloud ports work without the flag.
	if opts.TLS == nil {
		opts.TLS = &tls.Config{}
	}

	conn, err := clickhouse.Open(opts)
	if err != nil {
		return nil, err
	}
	if err := conn.Ping(context.Background()); err != nil {
		return nil, err
	}

	w := &ClickHouseWriter{conn: conn, logger: logger}
	w.pump = newPump(bufferSize, w.insert, logger)
	return w, nil
}

// Record queues an event for async insertion. Non-blocking.
func (w *ClickHouseWriter) Record(event *DecisionEvent) {
	w.pump.record(event)
}

// Close drains buffered events (up to drainTimeout) and closes the
// connection.
func (w *ClickHouseWriter) Close() {
	w.pump.close()
	_ = w.conn.Close()
}

func (w *ClickHouseWriter) insert(events []*DecisionEvent) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	batch, err := w.conn.PrepareBatch(ctx, `
		INSERT INTO decision_events (
			request_id, org_id, timestamp, stage, tool_id,
			agent_id, conversation_id, decision, policy_id, reason,
			trusted, args_preview, result_preview, rounds, elapsed_ms
		)
	`)
	if err != nil {
		w.logger.Error("clickhouse prepare batch failed", zap.Error(err))
		return
	}

	for _, e := range events {
		var trustedUint8 uint8
		if e.Trusted {
			trustedUint8 = 1
		}

		if err := batch.Append(
			e.RequestID,
			e.OrgID,
			e.Timestamp,
			e.Stage,
			e.ToolID,
			e.AgentID,
			e.ConversationID,
			e.Decision,
			e.PolicyID,
			e.Reason,
			trustedUint8,
			e.ArgsPreview,
			e.ResultPreview,
			e.Rounds,
			e.ElapsedMs,
		); err != nil {
			w.logger.Error("clickhouse append event failed",
				zap.String("request_id", e.RequestID),
				zap.Error(err),
			)
		}
	}

	if err := batch.Send(); err != nil {
		w.logger.Error("clickhouse batch send failed",
			zap.Int("batch_size", len(events)),
			zap.Error(err),
		)
	}
}

// LogWriter is a fallback Recorder for running without ClickHouse. Events
// are logged as structured JSON.
type LogWriter struct {
	logger *zap.Logger
}

func NewLogWriter(logger *zap.Logger) *LogWriter {
	return &LogWriter{logger: logger}
}

func (w *LogWriter) Record(event *DecisionEvent) {
	w.logger.Info("decision_event",
		zap.String("request_id", event.RequestID),
		zap.String("org_id", event.OrgID),
		zap.String("stage", event.Stage),
		zap.String("tool_id", event.ToolID),
		zap.String("decision", event.Decision),
		zap.String("policy_id", event.PolicyID),
		zap.String("reason", event.Reason),
		zap.Bool("trusted", event.Trusted),
		zap.Uint8("rounds", event.Rounds),
		zap.Float32("elapsed_ms", event.ElapsedMs),
	)
}

func (w *LogWriter) Close() {}
