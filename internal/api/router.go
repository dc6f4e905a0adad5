package api

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/harshxd2006/Nexus-Ai/internal/auth"
	"github.com/harshxd2006/Nexus-Ai/internal/chread"
	"github.com/harshxd2006/Nexus-Ai/internal/reviews"
	"github.com/harshxd2006/Nexus-Ai/internal/storage"
	"github.com/harshxd2006/Nexus-Ai/internal/store"
	"github.com/harshxd2006/Nexus-Ai/internal/validate"
)

// Dependencies holds shared state injected into all HTTP handlers.
type Dependencies struct {
	Reviews    reviews.Store
	Validator  *validate.ReviewValidator
	Publishers *store.Store // nil if Postgres unavailable
	Auth       auth.Authenticator
	Writer     storage.EventWriter
	Reader     *chread.Reader // nil if ClickHouse unavailable
	Logger     *zap.Logger
}

// NewRouter builds the HTTP mux with all routes wired up.
func NewRouter(deps *Dependencies) http.Handler {
	mux := http.NewServeMux()

	// Review lookup and tool catalog (no auth — public read path)
	mux.HandleFunc("GET /api/reviews/{tool}", deps.handleGetReviews)
	mux.HandleFunc("GET /api/tools", deps.handleListTools)

	// Review submission and deletion (auth required via Bearer rvk_ token)
	mux.HandleFunc("POST /api/reviews", deps.authMiddleware(deps.handleSubmitReview))
	mux.HandleFunc("DELETE /api/reviews/{id}", deps.authMiddleware(deps.handleDeleteReview))

	// Publisher CRUD (no auth — dashboard auth added later)
	mux.HandleFunc("POST /api/publishers", deps.handleCreatePublisher)
	mux.HandleFunc("GET /api/publishers", deps.handleListPublishers)
	mux.HandleFunc("GET /api/publishers/{publisher_id}", deps.handleGetPublisher)
	mux.HandleFunc("PATCH /api/publishers/{publisher_id}", deps.handleUpdatePublisher)
	mux.HandleFunc("DELETE /api/publishers/{publisher_id}", deps.handleDeletePublisher)
	mux.HandleFunc("POST /api/publishers/{publisher_id}/rotate-key", deps.handleRotateKey)

	// Events & Analytics (no auth)
	mux.HandleFunc("GET /api/events", deps.handleListEvents)
	mux.HandleFunc("GET /api/events/{request_id}", deps.handleGetEvent)
	mux.HandleFunc("GET /api/analytics", deps.handleGetAnalytics)

	// Health check
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	return corsMiddleware(requestLogging(mux, deps.Logger))
}
