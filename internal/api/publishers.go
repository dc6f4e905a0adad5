package api

import (
	"database/sql"
	"net/http"

	"go.uber.org/zap"

	"github.com/harshxd2006/Nexus-Ai/internal/store"
)

func (d *Dependencies) handleCreatePublisher(w http.ResponseWriter, r *http.Request) {
	if d.Publishers == nil {
		writeJSON(w, http.StatusServiceUnavailable, ErrorResp{Detail: "Postgres not configured"})
		return
	}

	var req CreatePublisherReq
	if err := readJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResp{Detail: "Invalid JSON body"})
		return
	}
	if req.Name == "" || len(req.Name) > 255 {
		writeJSON(w, http.StatusBadRequest, ErrorResp{Detail: "name must be 1-255 characters"})
		return
	}

	publisher, plainKey, err := d.Publishers.CreatePublisher(r.Context(), req.Name, req.Contact)
	if err != nil {
		d.Logger.Error("failed to create publisher", zapError(err))
		writeJSON(w, http.StatusInternalServerError, ErrorResp{Detail: "Failed to create publisher"})
		return
	}

	writeJSON(w, http.StatusCreated, CreatePublisherResp{
		ID:            publisher.ID,
		Name:          publisher.Name,
		Contact:       publisher.Contact,
		APIKey:        plainKey,
		APIKeyPrefix:  publisher.APIKeyPrefix,
		Active:        publisher.Active,
		ReviewsPerDay: publisher.ReviewsPerDay,
		CreatedAt:     publisher.CreatedAt,
	})
}

func (d *Dependencies) handleListPublishers(w http.ResponseWriter, r *http.Request) {
	if d.Publishers == nil {
		writeJSON(w, http.StatusServiceUnavailable, ErrorResp{Detail: "Postgres not configured"})
		return
	}

	publishers, err := d.Publishers.ListPublishers(r.Context())
	if err != nil {
		d.Logger.Error("failed to list publishers", zapError(err))
		writeJSON(w, http.StatusInternalServerError, ErrorResp{Detail: "Failed to list publishers"})
		return
	}

	resp := make([]PublisherResp, 0, len(publishers))
	for _, p := range publishers {
		resp = append(resp, publisherToResp(p))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (d *Dependencies) handleGetPublisher(w http.ResponseWriter, r *http.Request) {
	if d.Publishers == nil {
		writeJSON(w, http.StatusServiceUnavailable, ErrorResp{Detail: "Postgres not configured"})
		return
	}

	id := r.PathValue("publisher_id")
	publisher, err := d.Publishers.GetPublisher(r.Context(), id)
	if err != nil {
		d.Logger.Error("failed to get publisher", zapError(err))
		writeJSON(w, http.StatusInternalServerError, ErrorResp{Detail: "Failed to get publisher"})
		return
	}
	if publisher == nil {
		writeJSON(w, http.StatusNotFound, ErrorResp{Detail: "Publisher not found."})
		return
	}
	writeJSON(w, http.StatusOK, publisherToResp(publisher))
}

func (d *Dependencies) handleUpdatePublisher(w http.ResponseWriter, r *http.Request) {
	if d.Publishers == nil {
		writeJSON(w, http.StatusServiceUnavailable, ErrorResp{Detail: "Postgres not configured"})
		return
	}

	id := r.PathValue("publisher_id")

	var req UpdatePublisherReq
	if err := readJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResp{Detail: "Invalid JSON body"})
		return
	}

	// Validate name if provided
	if req.Name != nil && (len(*req.Name) == 0 || len(*req.Name) > 255) {
		writeJSON(w, http.StatusBadRequest, ErrorResp{Detail: "name must be 1-255 characters"})
		return
	}

	// Validate quota if provided
	if req.ReviewsPerDay != nil && *req.ReviewsPerDay < 0 {
		writeJSON(w, http.StatusBadRequest, ErrorResp{Detail: "reviews_per_day must be non-negative"})
		return
	}

	publisher, err := d.Publishers.UpdatePublisher(r.Context(), id, store.UpdatePublisherParams{
		Name:          req.Name,
		Contact:       req.Contact,
		Active:        req.Active,
		ReviewsPerDay: req.ReviewsPerDay,
	})
	if err != nil {
		d.Logger.Error("failed to update publisher", zapError(err))
		writeJSON(w, http.StatusInternalServerError, ErrorResp{Detail: "Failed to update publisher"})
		return
	}
	if publisher == nil {
		writeJSON(w, http.StatusNotFound, ErrorResp{Detail: "Publisher not found."})
		return
	}
	writeJSON(w, http.StatusOK, publisherToResp(publisher))
}

func (d *Dependencies) handleDeletePublisher(w http.ResponseWriter, r *http.Request) {
	if d.Publishers == nil {
		writeJSON(w, http.StatusServiceUnavailable, ErrorResp{Detail: "Postgres not configured"})
		return
	}

	id := r.PathValue("publisher_id")
	err := d.Publishers.DeletePublisher(r.Context(), id)
	if err == sql.ErrNoRows {
		writeJSON(w, http.StatusNotFound, ErrorResp{Detail: "Publisher not found."})
		return
	}
	if err != nil {
		d.Logger.Error("failed to delete publisher", zapError(err))
		writeJSON(w, http.StatusInternalServerError, ErrorResp{Detail: "Failed to delete publisher"})
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (d *Dependencies) handleRotateKey(w http.ResponseWriter, r *http.Request) {
	if d.Publishers == nil {
		writeJSON(w, http.StatusServiceUnavailable, ErrorResp{Detail: "Postgres not configured"})
		return
	}

	id := r.PathValue("publisher_id")
	publisher, plainKey, err := d.Publishers.RotateAPIKey(r.Context(), id)
	if err != nil {
		d.Logger.Error("failed to rotate key", zapError(err))
		writeJSON(w, http.StatusInternalServerError, ErrorResp{Detail: "Failed to rotate API key"})
		return
	}
	writeJSON(w, http.StatusOK, RotateKeyResp{
		APIKey:       plainKey,
		APIKeyPrefix: publisher.APIKeyPrefix,
	})
}

func publisherToResp(p *store.Publisher) PublisherResp {
	return PublisherResp{
		ID:            p.ID,
		Name:          p.Name,
		Contact:       p.Contact,
		APIKeyPrefix:  p.APIKeyPrefix,
		Active:        p.Active,
		ReviewsPerDay: p.ReviewsPerDay,
		CreatedAt:     p.CreatedAt,
		UpdatedAt:     p.UpdatedAt,
	}
}

// zapError is a helper to create a zap field from an error.
func zapError(err error) zap.Field {
	return zap.Error(err)
}
