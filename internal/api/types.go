package api

import (
	"time"
)

// Review documents travel through the API as raw maps: reviews are
// schema-less beyond the fields the submission validator requires, so
// there is no fixed request or response struct for them.

// --- Tool catalog ---

// ToolResp is one row of GET /api/tools: a tool and its review count.
type ToolResp struct {
	Tool    string `json:"tool"`
	Reviews int64  `json:"review_count"`
}

// --- Publisher CRUD ---

// CreatePublisherReq is the JSON body for POST /api/publishers.
type CreatePublisherReq struct {
	Name    string `json:"name"`
	Contact string `json:"contact,omitempty"`
}

// CreatePublisherResp includes the plaintext API key (shown once).
type CreatePublisherResp struct {
	ID            string    `json:"id"`
	Name          string    `json:"name"`
	Contact       string    `json:"contact"`
	APIKey        string    `json:"api_key"`
	APIKeyPrefix  string    `json:"api_key_prefix"`
	Active        bool      `json:"active"`
	ReviewsPerDay *int      `json:"reviews_per_day"`
	CreatedAt     time.Time `json:"created_at"`
}

// UpdatePublisherReq is the JSON body for PATCH /api/publishers/{id}.
type UpdatePublisherReq struct {
	Name          *string `json:"name,omitempty"`
	Contact       *string `json:"contact,omitempty"`
	Active        *bool   `json:"active,omitempty"`
	ReviewsPerDay *int    `json:"reviews_per_day,omitempty"`
}

// PublisherResp is a publisher as returned by reads (no plaintext key).
type PublisherResp struct {
	ID            string    `json:"id"`
	Name          string    `json:"name"`
	Contact       string    `json:"contact"`
	APIKeyPrefix  string    `json:"api_key_prefix"`
	Active        bool      `json:"active"`
	ReviewsPerDay *int      `json:"reviews_per_day"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// RotateKeyResp includes the new plaintext API key (shown once).
type RotateKeyResp struct {
	APIKey       string `json:"api_key"`
	APIKeyPrefix string `json:"api_key_prefix"`
}

// --- Review traffic events ---

// ReviewEventResp is one traffic event as returned by the events API.
type ReviewEventResp struct {
	RequestID   string    `json:"request_id"`
	Kind        string    `json:"kind"`
	Tool        string    `json:"tool"`
	ReviewID    *string   `json:"review_id"`
	Matches     uint32    `json:"matches"`
	PublisherID *string   `json:"publisher_id"`
	StatusCode  uint16    `json:"status_code"`
	LatencyMs   float32   `json:"latency_ms"`
	Source      string    `json:"source"`
	Timestamp   time.Time `json:"timestamp"`
}

// EventListResp is one page of events plus the unpaged total.
type EventListResp struct {
	Events   []ReviewEventResp `json:"events"`
	Total    int               `json:"total"`
	Page     int               `json:"page"`
	PageSize int               `json:"page_size"`
}

// --- Analytics ---

// AnalyticsResp holds the aggregated traffic statistics for the dashboard.
type AnalyticsResp struct {
	Summary            SummaryStatsResp       `json:"summary"`
	LookupsOverTime    []TimeSeriesBucketResp `json:"lookups_over_time"`
	TopTools           []ToolCountResp        `json:"top_tools"`
	TopPublishers      []PublisherCountResp   `json:"top_publishers"`
	LatencyPercentiles LatencyPercentilesResp `json:"latency_percentiles"`
}

// SummaryStatsResp holds aggregate counts.
type SummaryStatsResp struct {
	TotalEvents  int `json:"total_events"`
	Lookups      int `json:"lookups"`
	Submissions  int `json:"submissions"`
	Deletions    int `json:"deletions"`
	EmptyLookups int `json:"empty_lookups"`
}

// TimeSeriesBucketResp holds an hourly count.
type TimeSeriesBucketResp struct {
	Hour  string `json:"hour"`
	Count int    `json:"count"`
}

// ToolCountResp holds a tool and its event count.
type ToolCountResp struct {
	Tool  string `json:"tool"`
	Count int    `json:"count"`
}

// PublisherCountResp holds a publisher_id and its count.
type PublisherCountResp struct {
	PublisherID string `json:"publisher_id"`
	Count       int    `json:"count"`
}

// LatencyPercentilesResp holds latency percentiles.
type LatencyPercentilesResp struct {
	P50 float64 `json:"p50"`
	P95 float64 `json:"p95"`
	P99 float64 `json:"p99"`
}

// ErrorResp is a standard error response body.
type ErrorResp struct {
	Detail string `json:"detail"`
}
