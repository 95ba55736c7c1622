package audit

import (
	"context"
	"crypto/tls"
	"fmt"
	"strings"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"go.uber.org/zap"
)

// Reader provides read access to the decision_events table.
type Reader struct {
	conn   driver.Conn
	logger *zap.Logger
}

// NewReader opens a ClickHouse connection for read queries.
func NewReader(dsn string, logger *zap.Logger) (*Reader, error) {
	opts, err := clickhouse.ParseDSN(dsn)
	if err != nil {
		return nil, fmt.Errorf("NewReader: %w", err)
	}
	if opts.TLS == nil {
		opts.TLS = &tls.Config{}
	}

	conn, err := clickhouse.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("NewReader: %w", err)
	}
	if err := conn.Ping(context.Background()); err != nil {
		return nil, fmt.Errorf("NewReader: %w", err)
	}

	return &Reader{conn: conn, logger: logger}, nil
}

func (r *Reader) Close() error {
	return r.conn.Close()
}

// EventRow is one row of decision_events as ClickHouse returns it.
type EventRow struct {
	RequestID      string    `json:"request_id"`
	OrgID          string    `json:"org_id"`
	Timestamp      time.Time `json:"timestamp"`
	Stage          string    `json:"stage"`
	ToolID         string    `json:"tool_id"`
	AgentID        string    `json:"agent_id"`
	ConversationID string    `json:"conversation_id"`
	Decision       string    `json:"decision"`
	PolicyID       string    `json:"policy_id"`
	Reason         string    `json:"reason"`
	Trusted        uint8     `json:"trusted"`
	ArgsPreview    string    `json:"args_preview"`
	ResultPreview  string    `json:"result_preview"`
	Rounds         uint8     `json:"rounds"`
	ElapsedMs      float32   `json:"elapsed_ms"`
}

// ListEventsParams holds filters and pagination for event listing.
type ListEventsParams struct {
	OrgID     string
	ToolID    *string
	Stage     *string
	Decision  *string
	AgentID   *string
	StartTime *time.Time
	EndTime   *time.Time
	Page      int
	PageSize  int
}

const eventColumns = "request_id, org_id, timestamp, stage, tool_id, " +
	"agent_id, conversation_id, decision, policy_id, reason, " +
	"trusted, args_preview, result_preview, rounds, elapsed_ms"

// ListEvents returns paginated, filtered decision events and the total count.
func (r *Reader) ListEvents(ctx context.Context, params ListEventsParams) ([]EventRow, int, error) {
	conditions := []string{"org_id = @org_id"}
	args := []any{
		clickhouse.Named("org_id", params.OrgID),
	}

	if params.ToolID != nil {
		conditions = append(conditions, "tool_id = @tool_id")
		args = append(args, clickhouse.Named("tool_id", *params.ToolID))
	}
	if params.Stage != nil {
		conditions = append(conditions, "stage = @stage")
		args = append(args, clickhouse.Named("stage", *params.Stage))
	}
	if params.Decision != nil {
		conditions = append(conditions, "decision = @decision")
		args = append(args, clickhouse.Named("decision", *params.Decision))
	}
	if params.AgentID != nil {
		conditions = append(conditions, "agent_id = @agent_id")
		args = append(args, clickhouse.Named("agent_id", *params.AgentID))
	}
	if params.StartTime != nil {
		conditions = append(conditions, "timestamp >= @start_time")
		args = append(args, clickhouse.Named("start_time", *params.StartTime))
	}
	if params.EndTime != nil {
		conditions = append(conditions, "timestamp <= @end_time")
		args = append(args, clickhouse.Named("end_time", *params.EndTime))
	}

	where := strings.Join(conditions, " AND ")
	offset := (params.Page - 1) * params.PageSize

	var total uint64
	countQuery := fmt.Sprintf("SELECT count() FROM decision_events WHERE %s", where)
	if err := r.conn.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("ListEvents count: %w", err)
	}

	dataQuery := fmt.Sprintf(
		"SELECT %s FROM decision_events WHERE %s "+
			"ORDER BY timestamp DESC "+
			"LIMIT @limit OFFSET @offset",
		eventColumns, where,
	)
	args = append(args,
		clickhouse.Named("limit", uint32(params.PageSize)),
		clickhouse.Named("offset", uint32(offset)),
	)

	rows, err := r.conn.Query(ctx, dataQuery, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("ListEvents query: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var events []EventRow
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("ListEvents scan: %w", err)
		}
		events = append(events, e)
	}

	return events, int(total), rows.Err()
}

// GetRequestEvents returns every decision recorded for one request in the
// order it was taken, or nil when the request left no trace.
func (r *Reader) GetRequestEvents(ctx context.Context, orgID, requestID string) ([]EventRow, error) {
	rows, err := r.conn.Query(ctx,
		fmt.Sprintf("SELECT %s FROM decision_events "+
			"WHERE org_id = @org_id AND request_id = @request_id "+
			"ORDER BY timestamp", eventColumns),
		clickhouse.Named("org_id", orgID),
		clickhouse.Named("request_id", requestID),
	)
	if err != nil {
		return nil, fmt.Errorf("GetRequestEvents: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var events []EventRow
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("GetRequestEvents scan: %w", err)
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

func scanEvent(rows driver.Rows) (EventRow, error) {
	var e EventRow
	err := rows.Scan(
		&e.RequestID, &e.OrgID, &e.Timestamp, &e.Stage, &e.ToolID,
		&e.AgentID, &e.ConversationID, &e.Decision, &e.PolicyID, &e.Reason,
		&e.Trusted, &e.ArgsPreview, &e.ResultPreview, &e.Rounds, &e.ElapsedMs,
	)
	return e, err
}
