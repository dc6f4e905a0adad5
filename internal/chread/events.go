package chread

import (
	"context"
	"crypto/tls"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Reader provides read access to the ClickHouse review_events table.
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

// Close closes the ClickHouse connection.
func (r *Reader) Close() error {
	return r.conn.Close()
}

// EventRow represents a single row from the review_events table.
type EventRow struct {
	RequestID   string
	Timestamp   time.Time
	Kind        string
	Tool        string
	ReviewID    string
	Matches     uint32
	PublisherID string
	StatusCode  uint16
	LatencyMs   float32
	Source      string
}

// ListEventsParams holds filters and pagination for event listing.
type ListEventsParams struct {
	Tool        *string
	Kind        *string
	PublisherID *string
	StartTime   *time.Time
	EndTime     *time.Time
	Page        int
	PageSize    int
}

// ListEvents returns paginated, filtered review events and the total count.
func (r *Reader) ListEvents(ctx context.Context, params ListEventsParams) ([]EventRow, int, error) {
	var conditions []string
	var args []any

	if params.Tool != nil {
		conditions = append(conditions, "tool = @tool")
		args = append(args, clickhouse.Named("tool", *params.Tool))
	}
	if params.Kind != nil {
		conditions = append(conditions, "kind = @kind")
		args = append(args, clickhouse.Named("kind", *params.Kind))
	}
	if params.PublisherID != nil {
		conditions = append(conditions, "publisher_id = @publisher_id")
		args = append(args, clickhouse.Named("publisher_id", *params.PublisherID))
	}
	if params.StartTime != nil {
		conditions = append(conditions, "timestamp >= @start_time")
		args = append(args, clickhouse.Named("start_time", *params.StartTime))
	}
	if params.EndTime != nil {
		conditions = append(conditions, "timestamp <= @end_time")
		args = append(args, clickhouse.Named("end_time", *params.EndTime))
	}

	where := "1"
	if len(conditions) > 0 {
		where = strings.Join(conditions, " AND ")
	}
	offset := (params.Page - 1) * params.PageSize

	// Count query
	var total uint64
	countQuery := fmt.Sprintf("SELECT count() FROM review_events WHERE %s", where)
	if err := r.conn.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("ListEvents count: %w", err)
	}

	// Data query
	dataQuery := fmt.Sprintf(
		"SELECT request_id, timestamp, kind, tool, review_id, "+
			"matches, publisher_id, status_code, latency_ms, source "+
			"FROM review_events WHERE %s "+
			"ORDER BY timestamp DESC "+
			"LIMIT @limit OFFSET @offset",
		where,
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
		var e EventRow
		if err := rows.Scan(
			&e.RequestID, &e.Timestamp, &e.Kind, &e.Tool, &e.ReviewID,
			&e.Matches, &e.PublisherID, &e.StatusCode, &e.LatencyMs, &e.Source,
		); err != nil {
			return nil, 0, fmt.Errorf("ListEvents scan: %w", err)
		}
		events = append(events, e)
	}

	return events, int(total), rows.Err()
}

// GetEvent returns a single event by request ID, or nil if not found.
func (r *Reader) GetEvent(ctx context.Context, requestID string) (*EventRow, error) {
	row := r.conn.QueryRow(ctx,
		"SELECT request_id, timestamp, kind, tool, review_id, "+
			"matches, publisher_id, status_code, latency_ms, source "+
			"FROM review_events "+
			"WHERE request_id = @request_id",
		clickhouse.Named("request_id", requestID),
	)

	var e EventRow
	if err := row.Scan(
		&e.RequestID, &e.Timestamp, &e.Kind, &e.Tool, &e.ReviewID,
		&e.Matches, &e.PublisherID, &e.StatusCode, &e.LatencyMs, &e.Source,
	); err != nil {
		// ClickHouse doesn't return sql.ErrNoRows, so check for empty result
		return nil, fmt.Errorf("GetEvent: %w", err)
	}
	if e.RequestID == "" {
		return nil, nil
	}
	return &e, nil
}

// SummaryStats holds aggregate counts.
type SummaryStats struct {
	TotalEvents  int `json:"total_events"`
	Lookups      int `json:"lookups"`
	Submissions  int `json:"submissions"`
	Deletions    int `json:"deletions"`
	EmptyLookups int `json:"empty_lookups"`
}

// TimeSeriesBucket holds an hourly count.
type TimeSeriesBucket struct {
	Hour  string `json:"hour"`
	Count int    `json:"count"`
}

// ToolCount holds a tool and its event count.
type ToolCount struct {
	Tool  string `json:"tool"`
	Count int    `json:"count"`
}

// PublisherCount holds a publisher_id and its count.
type PublisherCount struct {
	PublisherID string `json:"publisher_id"`
	Count       int    `json:"count"`
}

// LatencyStats holds latency percentiles.
type LatencyStats struct {
	P50 float64 `json:"p50"`
	P95 float64 `json:"p95"`
	P99 float64 `json:"p99"`
}

// AnalyticsResult holds all analytics aggregations.
type AnalyticsResult struct {
	Summary            SummaryStats       `json:"summary"`
	LookupsOverTime    []TimeSeriesBucket `json:"lookups_over_time"`
	TopTools           []ToolCount        `json:"top_tools"`
	TopPublishers      []PublisherCount   `json:"top_publishers"`
	LatencyPercentiles LatencyStats       `json:"latency_percentiles"`
}

// GetAnalytics returns aggregated analytics over the given number of days.
// The five aggregations are independent, so they run concurrently.
func (r *Reader) GetAnalytics(ctx context.Context, days int) (*AnalyticsResult, error) {
	now := time.Now().UTC()
	rangeStart := now.Add(-time.Duration(days) * 24 * time.Hour)
	dayStart := now.Add(-24 * time.Hour)

	result := &AnalyticsResult{}
	g, ctx := errgroup.WithContext(ctx)

	// Summary counts
	g.Go(func() error {
		var total, lookups, submissions, deletions, empty uint64
		err := r.conn.QueryRow(ctx,
			"SELECT count() as total, "+
				"countIf(kind = 'lookup') as lookups, "+
				"countIf(kind = 'submit') as submissions, "+
				"countIf(kind = 'delete') as deletions, "+
				"countIf(kind = 'lookup' AND matches = 0) as empty_lookups "+
				"FROM review_events "+
				"WHERE timestamp >= @range_start",
			clickhouse.Named("range_start", rangeStart),
		).Scan(&total, &lookups, &submissions, &deletions, &empty)
		if err != nil {
			return fmt.Errorf("GetAnalytics summary: %w", err)
		}
		result.Summary = SummaryStats{
			TotalEvents:  int(total),
			Lookups:      int(lookups),
			Submissions:  int(submissions),
			Deletions:    int(deletions),
			EmptyLookups: int(empty),
		}
		return nil
	})

	// Lookups over time (hourly)
	g.Go(func() error {
		rows, err := r.conn.Query(ctx,
			"SELECT toStartOfHour(timestamp) as hour, count() as count "+
				"FROM review_events "+
				"WHERE kind = 'lookup' AND timestamp >= @range_start "+
				"GROUP BY hour ORDER BY hour",
			clickhouse.Named("range_start", rangeStart),
		)
		if err != nil {
			return fmt.Errorf("GetAnalytics lookups_over_time: %w", err)
		}
		defer func() { _ = rows.Close() }()
		for rows.Next() {
			var hour time.Time
			var count uint64
			if err := rows.Scan(&hour, &count); err != nil {
				return fmt.Errorf("GetAnalytics lookups_over_time scan: %w", err)
			}
			result.LookupsOverTime = append(result.LookupsOverTime, TimeSeriesBucket{
				Hour:  hour.Format(time.RFC3339),
				Count: int(count),
			})
		}
		return rows.Err()
	})

	// Top tools
	g.Go(func() error {
		rows, err := r.conn.Query(ctx,
			"SELECT tool, count() as count "+
				"FROM review_events "+
				"WHERE tool != '' AND timestamp >= @range_start "+
				"GROUP BY tool ORDER BY count DESC LIMIT 10",
			clickhouse.Named("range_start", rangeStart),
		)
		if err != nil {
			return fmt.Errorf("GetAnalytics top_tools: %w", err)
		}
		defer func() { _ = rows.Close() }()
		for rows.Next() {
			var tool string
			var count uint64
			if err := rows.Scan(&tool, &count); err != nil {
				return fmt.Errorf("GetAnalytics top_tools scan: %w", err)
			}
			result.TopTools = append(result.TopTools, ToolCount{
				Tool: tool, Count: int(count),
			})
		}
		return rows.Err()
	})

	// Top publishers (submissions and deletions only)
	g.Go(func() error {
		rows, err := r.conn.Query(ctx,
			"SELECT publisher_id, count() as count "+
				"FROM review_events "+
				"WHERE kind IN ('submit', 'delete') AND publisher_id != '' "+
				"AND timestamp >= @range_start "+
				"GROUP BY publisher_id ORDER BY count DESC LIMIT 10",
			clickhouse.Named("range_start", rangeStart),
		)
		if err != nil {
			return fmt.Errorf("GetAnalytics top_publishers: %w", err)
		}
		defer func() { _ = rows.Close() }()
		for rows.Next() {
			var pid string
			var count uint64
			if err := rows.Scan(&pid, &count); err != nil {
				return fmt.Errorf("GetAnalytics top_publishers scan: %w", err)
			}
			result.TopPublishers = append(result.TopPublishers, PublisherCount{
				PublisherID: pid, Count: int(count),
			})
		}
		return rows.Err()
	})

	// Latency percentiles (last 24h)
	g.Go(func() error {
		var p50, p95, p99 float64
		err := r.conn.QueryRow(ctx,
			"SELECT quantile(0.5)(latency_ms) as p50, "+
				"quantile(0.95)(latency_ms) as p95, "+
				"quantile(0.99)(latency_ms) as p99 "+
				"FROM review_events "+
				"WHERE timestamp >= @day_start",
			clickhouse.Named("day_start", dayStart),
		).Scan(&p50, &p95, &p99)
		if err != nil {
			return fmt.Errorf("GetAnalytics latency: %w", err)
		}
		result.LatencyPercentiles = LatencyStats{
			P50: safeFloat(p50), P95: safeFloat(p95), P99: safeFloat(p99),
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}

	// Ensure slices are non-nil for JSON serialization
	if result.LookupsOverTime == nil {
		result.LookupsOverTime = []TimeSeriesBucket{}
	}
	if result.TopTools == nil {
		result.TopTools = []ToolCount{}
	}
	if result.TopPublishers == nil {
		result.TopPublishers = []PublisherCount{}
	}

	return result, nil
}

// safeFloat replaces NaN/Inf with 0.0.
// ClickHouse returns NaN for quantile() on empty result sets.
func safeFloat(f float64) float64 {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0.0
	}
	return f
}
