package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/harshxd2006/Nexus-Ai/internal/reviews"
	"github.com/harshxd2006/Nexus-Ai/internal/storage"
)

// handleGetReviews implements GET /api/reviews/{tool}.
// The read path is public: no API key and no check that the tool is known.
// The path segment is matched byte-for-byte against each review's tool field.
func (d *Dependencies) handleGetReviews(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	tool := r.PathValue("tool")

	docs, err := d.Reviews.FindByTool(r.Context(), tool)
	if err != nil {
		d.Logger.Error("failed to fetch reviews", zap.String("tool", tool), zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, ErrorResp{Detail: "Failed to fetch reviews"})
		return
	}
	// A tool nobody has reviewed yields [], not null and not a 404.
	if docs == nil {
		docs = []reviews.Document{}
	}

	d.writeLookupEvent(tool, len(docs), http.StatusOK, start)
	writeJSON(w, http.StatusOK, docs)
}

// handleSubmitReview implements POST /api/reviews.
// Auth middleware has already validated the Bearer token and injected the publisher.
func (d *Dependencies) handleSubmitReview(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	body, err := readBody(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResp{Detail: "Failed to read request body"})
		return
	}

	doc, err := d.Validator.Validate(body)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResp{Detail: err.Error()})
		return
	}

	pub := publisherFromContext(r.Context())
	if pub == nil {
		writeJSON(w, http.StatusInternalServerError, ErrorResp{Detail: "missing publisher context"})
		return
	}

	stored, err := d.Reviews.Insert(r.Context(), reviews.Document(doc))
	if err != nil {
		d.Logger.Error("failed to store review", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, ErrorResp{Detail: "Failed to store review"})
		return
	}

	tool, _ := stored["tool"].(string)
	reviewID, _ := stored["_id"].(string)
	d.writeMutationEvent("submit", tool, reviewID, pub.PublisherID, http.StatusCreated, start)

	writeJSON(w, http.StatusCreated, stored)
}

// handleDeleteReview implements DELETE /api/reviews/{id}.
func (d *Dependencies) handleDeleteReview(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	id := r.PathValue("id")

	pub := publisherFromContext(r.Context())
	if pub == nil {
		writeJSON(w, http.StatusInternalServerError, ErrorResp{Detail: "missing publisher context"})
		return
	}

	doc, err := d.Reviews.Delete(r.Context(), id)
	if errors.Is(err, reviews.ErrNotFound) {
		writeJSON(w, http.StatusNotFound, ErrorResp{Detail: "Review not found."})
		return
	}
	if err != nil {
		d.Logger.Error("failed to delete review", zap.String("review_id", id), zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, ErrorResp{Detail: "Failed to delete review"})
		return
	}

	tool, _ := doc["tool"].(string)
	d.writeMutationEvent("delete", tool, id, pub.PublisherID, http.StatusNoContent, start)
	w.WriteHeader(http.StatusNoContent)
}

// handleListTools implements GET /api/tools.
func (d *Dependencies) handleListTools(w http.ResponseWriter, r *http.Request) {
	tools, err := d.Reviews.ListTools(r.Context())
	if err != nil {
		d.Logger.Error("failed to list tools", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, ErrorResp{Detail: "Failed to list tools"})
		return
	}

	resp := make([]ToolResp, 0, len(tools))
	for _, t := range tools {
		resp = append(resp, ToolResp{Tool: t.Tool, Reviews: t.Reviews})
	}
	writeJSON(w, http.StatusOK, resp)
}

// writeLookupEvent fires a lookup event to the async event writer.
func (d *Dependencies) writeLookupEvent(tool string, matches, status int, start time.Time) {
	d.Writer.Write(&storage.ReviewEvent{
		RequestID:  uuid.New().String(),
		Timestamp:  time.Now(),
		Kind:       "lookup",
		Tool:       storage.Truncate(tool, storage.ToolFieldMax),
		Matches:    uint32(matches),
		StatusCode: uint16(status),
		LatencyMs:  float32(float64(time.Since(start)) / float64(time.Millisecond)),
		Source:     "api",
	})
}

// writeMutationEvent fires a submit or delete event to the async event writer.
func (d *Dependencies) writeMutationEvent(kind, tool, reviewID, publisherID string, status int, start time.Time) {
	d.Writer.Write(&storage.ReviewEvent{
		RequestID:   uuid.New().String(),
		Timestamp:   time.Now(),
		Kind:        kind,
		Tool:        storage.Truncate(tool, storage.ToolFieldMax),
		ReviewID:    reviewID,
		PublisherID: publisherID,
		StatusCode:  uint16(status),
		LatencyMs:   float32(float64(time.Since(start)) / float64(time.Millisecond)),
		Source:      "api",
	})
}
