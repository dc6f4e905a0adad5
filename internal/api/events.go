package api

import (
	"net/http"
	"net/url"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/harshxd2006/Nexus-Ai/internal/chread"
)

func (d *Dependencies) handleListEvents(w http.ResponseWriter, r *http.Request) {
	if d.Reader == nil {
		writeJSON(w, http.StatusServiceUnavailable, ErrorResp{Detail: "ClickHouse not configured"})
		return
	}

	q := r.URL.Query()
	params := chread.ListEventsParams{
		Page:     queryInt(q, "page", 1),
		PageSize: queryInt(q, "page_size", 50),
	}
	if params.PageSize > 200 {
		params.PageSize = 200
	}
	if params.Page < 1 {
		params.Page = 1
	}

	if v := q.Get("tool"); v != "" {
		params.Tool = &v
	}
	if v := q.Get("kind"); v != "" {
		params.Kind = &v
	}
	if v := q.Get("publisher_id"); v != "" {
		params.PublisherID = &v
	}
	if v := q.Get("start_time"); v != "" {
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			params.StartTime = &t
		}
	}
	if v := q.Get("end_time"); v != "" {
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			params.EndTime = &t
		}
	}

	events, total, err := d.Reader.ListEvents(r.Context(), params)
	if err != nil {
		d.Logger.Error("failed to list events", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, ErrorResp{Detail: "Failed to list events"})
		return
	}

	resp := EventListResp{
		Events:   make([]ReviewEventResp, 0, len(events)),
		Total:    total,
		Page:     params.Page,
		PageSize: params.PageSize,
	}
	for _, e := range events {
		resp.Events = append(resp.Events, eventRowToResp(e))
	}

	writeJSON(w, http.StatusOK, resp)
}

func (d *Dependencies) handleGetEvent(w http.ResponseWriter, r *http.Request) {
	if d.Reader == nil {
		writeJSON(w, http.StatusServiceUnavailable, ErrorResp{Detail: "ClickHouse not configured"})
		return
	}

	requestID := r.PathValue("request_id")
	event, err := d.Reader.GetEvent(r.Context(), requestID)
	if err != nil {
		d.Logger.Error("failed to get event", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, ErrorResp{Detail: "Failed to get event"})
		return
	}
	if event == nil {
		writeJSON(w, http.StatusNotFound, ErrorResp{Detail: "Event not found."})
		return
	}

	writeJSON(w, http.StatusOK, eventRowToResp(*event))
}

func (d *Dependencies) handleGetAnalytics(w http.ResponseWriter, r *http.Request) {
	if d.Reader == nil {
		writeJSON(w, http.StatusServiceUnavailable, ErrorResp{Detail: "ClickHouse not configured"})
		return
	}

	days := queryInt(r.URL.Query(), "days", 7)
	if days < 1 {
		days = 1
	}
	if days > 90 {
		days = 90
	}

	result, err := d.Reader.GetAnalytics(r.Context(), days)
	if err != nil {
		d.Logger.Error("failed to get analytics", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, ErrorResp{Detail: "Failed to get analytics"})
		return
	}

	writeJSON(w, http.StatusOK, AnalyticsResp{
		Summary: SummaryStatsResp{
			TotalEvents:  result.Summary.TotalEvents,
			Lookups:      result.Summary.Lookups,
			Submissions:  result.Summary.Submissions,
			Deletions:    result.Summary.Deletions,
			EmptyLookups: result.Summary.EmptyLookups,
		},
		LookupsOverTime: toTimeSeriesResp(result.LookupsOverTime),
		TopTools:        toToolCountResp(result.TopTools),
		TopPublishers:   toPublisherCountResp(result.TopPublishers),
		LatencyPercentiles: LatencyPercentilesResp{
			P50: result.LatencyPercentiles.P50,
			P95: result.LatencyPercentiles.P95,
			P99: result.LatencyPercentiles.P99,
		},
	})
}

// eventRowToResp converts a ClickHouse EventRow to the API response.
func eventRowToResp(e chread.EventRow) ReviewEventResp {
	return ReviewEventResp{
		RequestID:   e.RequestID,
		Kind:        e.Kind,
		Tool:        e.Tool,
		ReviewID:    nilIfEmpty(e.ReviewID),
		Matches:     e.Matches,
		PublisherID: nilIfEmpty(e.PublisherID),
		StatusCode:  e.StatusCode,
		LatencyMs:   e.LatencyMs,
		Source:      e.Source,
		Timestamp:   e.Timestamp,
	}
}

func nilIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func queryInt(q url.Values, key string, defaultVal int) int {
	v := q.Get(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func toTimeSeriesResp(buckets []chread.TimeSeriesBucket) []TimeSeriesBucketResp {
	out := make([]TimeSeriesBucketResp, len(buckets))
	for i, b := range buckets {
		out[i] = TimeSeriesBucketResp{Hour: b.Hour, Count: b.Count}
	}
	return out
}

func toToolCountResp(tools []chread.ToolCount) []ToolCountResp {
	out := make([]ToolCountResp, len(tools))
	for i, t := range tools {
		out[i] = ToolCountResp{Tool: t.Tool, Count: t.Count}
	}
	return out
}

func toPublisherCountResp(pubs []chread.PublisherCount) []PublisherCountResp {
	out := make([]PublisherCountResp, len(pubs))
	for i, p := range pubs {
		out[i] = PublisherCountResp{PublisherID: p.PublisherID, Count: p.Count}
	}
	return out
}
