package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"github.com/harshxd2006/Nexus-Ai/internal/auth"
	"github.com/harshxd2006/Nexus-Ai/internal/reviews"
	"github.com/harshxd2006/Nexus-Ai/internal/storage"
	"github.com/harshxd2006/Nexus-Ai/internal/validate"
)

// stubStore implements reviews.Store with canned responses.
type stubStore struct {
	docs    []reviews.Document
	tools   []reviews.ToolCount
	deleted reviews.Document
	err     error

	inserted reviews.Document
	lastTool string
	lastID   string
}

func (s *stubStore) FindByTool(_ context.Context, tool string) ([]reviews.Document, error) {
	s.lastTool = tool
	if s.err != nil {
		return nil, s.err
	}
	return s.docs, nil
}

func (s *stubStore) Insert(_ context.Context, doc reviews.Document) (reviews.Document, error) {
	if s.err != nil {
		return nil, s.err
	}
	stored := make(reviews.Document, len(doc)+1)
	for k, v := range doc {
		stored[k] = v
	}
	stored["_id"] = "665f1c2ab3d4e5f6a7b8c9d0"
	s.inserted = stored
	return stored, nil
}

func (s *stubStore) Delete(_ context.Context, id string) (reviews.Document, error) {
	s.lastID = id
	if s.err != nil {
		return nil, s.err
	}
	if s.deleted == nil {
		return nil, reviews.ErrNotFound
	}
	return s.deleted, nil
}

func (s *stubStore) ListTools(_ context.Context) ([]reviews.ToolCount, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.tools, nil
}

// captureWriter records events instead of shipping them to ClickHouse.
type captureWriter struct {
	events []*storage.ReviewEvent
}

func (w *captureWriter) Write(e *storage.ReviewEvent) { w.events = append(w.events, e) }
func (w *captureWriter) Close()                       {}

// stubAuth returns a fixed publisher or error.
type stubAuth struct {
	pub *auth.PublisherContext
	err error
}

func (a *stubAuth) Authenticate(context.Context, string) (*auth.PublisherContext, error) {
	return a.pub, a.err
}

func newTestDeps(t *testing.T, s reviews.Store) (*Dependencies, *captureWriter) {
	t.Helper()
	validator, err := validate.NewReviewValidator()
	if err != nil {
		t.Fatalf("NewReviewValidator: %v", err)
	}
	writer := &captureWriter{}
	return &Dependencies{
		Reviews:   s,
		Validator: validator,
		Auth:      auth.NewStaticAuthenticator(),
		Writer:    writer,
		Logger:    zap.NewNop(),
	}, writer
}

func doRequest(deps *Dependencies, method, path string, body []byte, headers map[string]string) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	NewRouter(deps).ServeHTTP(rec, req)
	return rec
}

func authHeader() map[string]string {
	return map[string]string{"Authorization": "Bearer rvk_testkey1"}
}

// --- GET /api/reviews/{tool} ---

func TestGetReviews_ReturnsMatchingDocuments(t *testing.T) {
	s := &stubStore{docs: []reviews.Document{
		{"_id": "665f1c2ab3d4e5f6a7b8c9d0", "tool": "lint-x", "date": "2024-01-15", "rating": 5.0},
		{"_id": "665f1c2ab3d4e5f6a7b8c9d1", "tool": "lint-x", "date": "03/02/2023", "comment": "solid"},
	}}
	deps, writer := newTestDeps(t, s)

	// No Authorization header: the read path is public.
	rec := doRequest(deps, http.MethodGet, "/api/reviews/lint-x", nil, nil)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if s.lastTool != "lint-x" {
		t.Errorf("queried tool = %q, want %q", s.lastTool, "lint-x")
	}

	body := rec.Body.String()
	if n := gjson.Get(body, "#").Int(); n != 2 {
		t.Fatalf("got %d documents, want 2: %s", n, body)
	}
	// Documents come back in store order with ids rendered as strings.
	if got := gjson.Get(body, "0._id").String(); got != "665f1c2ab3d4e5f6a7b8c9d0" {
		t.Errorf("first _id = %q", got)
	}
	if got := gjson.Get(body, "1._id").String(); got != "665f1c2ab3d4e5f6a7b8c9d1" {
		t.Errorf("second _id = %q", got)
	}
	// Dates pass through exactly as stored, whatever their format.
	if got := gjson.Get(body, "0.date").String(); got != "2024-01-15" {
		t.Errorf("first date = %q, want 2024-01-15", got)
	}
	if got := gjson.Get(body, "1.date").String(); got != "03/02/2023" {
		t.Errorf("second date = %q, want 03/02/2023", got)
	}

	if len(writer.events) != 1 {
		t.Fatalf("got %d events, want 1", len(writer.events))
	}
	e := writer.events[0]
	if e.Kind != "lookup" || e.Tool != "lint-x" || e.Matches != 2 {
		t.Errorf("event = %+v", e)
	}
	if e.RequestID == "" {
		t.Error("event has no request id")
	}
}

func TestGetReviews_NoMatchesReturnsEmptyArray(t *testing.T) {
	deps, writer := newTestDeps(t, &stubStore{})

	rec := doRequest(deps, http.MethodGet, "/api/reviews/never-reviewed", nil, nil)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if got := strings.TrimSpace(rec.Body.String()); got != "[]" {
		t.Errorf("body = %q, want []", got)
	}
	if len(writer.events) != 1 || writer.events[0].Matches != 0 {
		t.Errorf("events = %+v, want one lookup with zero matches", writer.events)
	}
}

func TestGetReviews_StoreError(t *testing.T) {
	deps, writer := newTestDeps(t, &stubStore{err: errors.New("connection reset")})

	rec := doRequest(deps, http.MethodGet, "/api/reviews/lint-x", nil, nil)

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
	if got := gjson.Get(rec.Body.String(), "detail").String(); got != "Failed to fetch reviews" {
		t.Errorf("detail = %q", got)
	}
	if len(writer.events) != 0 {
		t.Errorf("got %d events, want 0 for a failed lookup", len(writer.events))
	}
}

func TestGetReviews_DecodesToolPathSegment(t *testing.T) {
	s := &stubStore{}
	deps, _ := newTestDeps(t, s)

	doRequest(deps, http.MethodGet, "/api/reviews/code%20scanner", nil, nil)

	if s.lastTool != "code scanner" {
		t.Errorf("queried tool = %q, want %q", s.lastTool, "code scanner")
	}
}

// --- POST /api/reviews ---

func TestSubmitReview_StoresAndReturnsDocument(t *testing.T) {
	s := &stubStore{}
	deps, writer := newTestDeps(t, s)

	body := []byte(`{"tool": "lint-x", "date": "2024-03-01", "rating": 4, "comment": "fast"}`)
	rec := doRequest(deps, http.MethodPost, "/api/reviews", body, authHeader())

	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201: %s", rec.Code, rec.Body.String())
	}
	resp := rec.Body.String()
	if got := gjson.Get(resp, "_id").String(); got == "" {
		t.Error("response has no _id")
	}
	if got := gjson.Get(resp, "comment").String(); got != "fast" {
		t.Errorf("comment = %q, want fast", got)
	}

	if len(writer.events) != 1 {
		t.Fatalf("got %d events, want 1", len(writer.events))
	}
	e := writer.events[0]
	if e.Kind != "submit" || e.Tool != "lint-x" || e.ReviewID == "" {
		t.Errorf("event = %+v", e)
	}
	if e.PublisherID != "static-rvk_test" {
		t.Errorf("event publisher = %q", e.PublisherID)
	}
}

func TestSubmitReview_InvalidBody(t *testing.T) {
	cases := []struct {
		name string
		body string
	}{
		{"missing date", `{"tool": "lint-x"}`},
		{"empty tool", `{"tool": "", "date": "2024-01-01"}`},
		{"rating out of range", `{"tool": "lint-x", "date": "2024-01-01", "rating": 9}`},
		{"client-supplied id", `{"_id": "abc", "tool": "lint-x", "date": "2024-01-01"}`},
		{"not an object", `[1, 2]`},
		{"malformed json", `{"tool": `},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s := &stubStore{}
			deps, writer := newTestDeps(t, s)

			rec := doRequest(deps, http.MethodPost, "/api/reviews", []byte(tc.body), authHeader())

			if rec.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, want 400: %s", rec.Code, rec.Body.String())
			}
			if gjson.Get(rec.Body.String(), "detail").String() == "" {
				t.Error("400 response has no detail")
			}
			if s.inserted != nil {
				t.Error("rejected review reached the store")
			}
			if len(writer.events) != 0 {
				t.Errorf("got %d events, want 0", len(writer.events))
			}
		})
	}
}

func TestSubmitReview_AuthFailures(t *testing.T) {
	cases := []struct {
		name       string
		header     string
		wantStatus int
		wantDetail string
	}{
		{"no header", "", http.StatusUnauthorized, "Missing or invalid Authorization header"},
		{"wrong prefix", "Bearer sk_live_abc12345", http.StatusUnauthorized, "Missing or invalid Authorization header"},
		{"key too short", "Bearer rvk_x", http.StatusUnauthorized, "Invalid API key"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s := &stubStore{}
			deps, _ := newTestDeps(t, s)

			headers := map[string]string{}
			if tc.header != "" {
				headers["Authorization"] = tc.header
			}
			body := []byte(`{"tool": "lint-x", "date": "2024-01-01"}`)
			rec := doRequest(deps, http.MethodPost, "/api/reviews", body, headers)

			if rec.Code != tc.wantStatus {
				t.Fatalf("status = %d, want %d", rec.Code, tc.wantStatus)
			}
			if got := gjson.Get(rec.Body.String(), "detail").String(); got != tc.wantDetail {
				t.Errorf("detail = %q, want %q", got, tc.wantDetail)
			}
			if s.inserted != nil {
				t.Error("unauthenticated review reached the store")
			}
		})
	}
}

func TestSubmitReview_InactivePublisher(t *testing.T) {
	deps, _ := newTestDeps(t, &stubStore{})
	deps.Auth = &stubAuth{err: auth.ErrPublisherInactive}

	body := []byte(`{"tool": "lint-x", "date": "2024-01-01"}`)
	rec := doRequest(deps, http.MethodPost, "/api/reviews", body, authHeader())

	if rec.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", rec.Code)
	}
}

func TestSubmitReview_AuthBackendDown(t *testing.T) {
	deps, _ := newTestDeps(t, &stubStore{})
	deps.Auth = &stubAuth{err: fmt.Errorf("%w: dial tcp refused", auth.ErrAuthUnavailable)}

	body := []byte(`{"tool": "lint-x", "date": "2024-01-01"}`)
	rec := doRequest(deps, http.MethodPost, "/api/reviews", body, authHeader())

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}
}

func TestSubmitReview_StoreError(t *testing.T) {
	deps, writer := newTestDeps(t, &stubStore{err: errors.New("server selection timeout")})

	body := []byte(`{"tool": "lint-x", "date": "2024-01-01"}`)
	rec := doRequest(deps, http.MethodPost, "/api/reviews", body, authHeader())

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
	if got := gjson.Get(rec.Body.String(), "detail").String(); got != "Failed to store review" {
		t.Errorf("detail = %q", got)
	}
	if len(writer.events) != 0 {
		t.Errorf("got %d events, want 0", len(writer.events))
	}
}

// --- DELETE /api/reviews/{id} ---

func TestDeleteReview_RemovesDocument(t *testing.T) {
	s := &stubStore{deleted: reviews.Document{
		"_id": "665f1c2ab3d4e5f6a7b8c9d0", "tool": "fmt-check", "date": "2024-01-01",
	}}
	deps, writer := newTestDeps(t, s)

	rec := doRequest(deps, http.MethodDelete, "/api/reviews/665f1c2ab3d4e5f6a7b8c9d0", nil, authHeader())

	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204: %s", rec.Code, rec.Body.String())
	}
	if s.lastID != "665f1c2ab3d4e5f6a7b8c9d0" {
		t.Errorf("deleted id = %q", s.lastID)
	}

	if len(writer.events) != 1 {
		t.Fatalf("got %d events, want 1", len(writer.events))
	}
	e := writer.events[0]
	if e.Kind != "delete" || e.Tool != "fmt-check" || e.ReviewID != "665f1c2ab3d4e5f6a7b8c9d0" {
		t.Errorf("event = %+v", e)
	}
}

func TestDeleteReview_NotFound(t *testing.T) {
	deps, writer := newTestDeps(t, &stubStore{})

	rec := doRequest(deps, http.MethodDelete, "/api/reviews/665f1c2ab3d4e5f6a7b8c9d0", nil, authHeader())

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
	if got := gjson.Get(rec.Body.String(), "detail").String(); got != "Review not found." {
		t.Errorf("detail = %q", got)
	}
	if len(writer.events) != 0 {
		t.Errorf("got %d events, want 0", len(writer.events))
	}
}

func TestDeleteReview_RequiresKey(t *testing.T) {
	s := &stubStore{deleted: reviews.Document{"_id": "665f1c2ab3d4e5f6a7b8c9d0", "tool": "fmt-check"}}
	deps, _ := newTestDeps(t, s)

	rec := doRequest(deps, http.MethodDelete, "/api/reviews/665f1c2ab3d4e5f6a7b8c9d0", nil, nil)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
	if s.lastID != "" {
		t.Error("unauthenticated delete reached the store")
	}
}

// --- GET /api/tools ---

func TestListTools(t *testing.T) {
	deps, _ := newTestDeps(t, &stubStore{tools: []reviews.ToolCount{
		{Tool: "fmt-check", Reviews: 3},
		{Tool: "lint-x", Reviews: 12},
	}})

	rec := doRequest(deps, http.MethodGet, "/api/tools", nil, nil)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var got []ToolResp
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	want := []ToolResp{
		{Tool: "fmt-check", Reviews: 3},
		{Tool: "lint-x", Reviews: 12},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("tools mismatch (-want +got):\n%s", diff)
	}
}

func TestListTools_StoreError(t *testing.T) {
	deps, _ := newTestDeps(t, &stubStore{err: errors.New("aggregate failed")})

	rec := doRequest(deps, http.MethodGet, "/api/tools", nil, nil)

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
}

var (
	_ reviews.Store       = (*stubStore)(nil)
	_ storage.EventWriter = (*captureWriter)(nil)
	_ auth.Authenticator  = (*stubAuth)(nil)
)
