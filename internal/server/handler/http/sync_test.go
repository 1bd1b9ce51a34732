package http_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/paperkeep/paperkeep/internal/middleware"
	"github.com/paperkeep/paperkeep/internal/models"
	handler "github.com/paperkeep/paperkeep/internal/server/handler/http"
)

type fakeSyncService struct {
	gotOwner string
	gotItems []models.BatchItem
	resp     models.BatchResponse
	records  []json.RawMessage
	listErr  error
}

func (f *fakeSyncService) ProcessBatch(_ context.Context, ownerID string, items []models.BatchItem) models.BatchResponse {
	f.gotOwner = ownerID
	f.gotItems = items
	return f.resp
}

func (f *fakeSyncService) ListRecords(_ context.Context, ownerID string, _ models.EntityType) ([]json.RawMessage, error) {
	f.gotOwner = ownerID
	return f.records, f.listErr
}

func authedRequest(method, target, body string) *http.Request {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
	}
	return req.WithContext(middleware.WithUserID(req.Context(), "alice"))
}

func TestBatchAppliesItemsForOwner(t *testing.T) {
	svc := &fakeSyncService{resp: models.BatchResponse{Success: 2, Total: 2, Errors: []string{}}}
	h := &handler.SyncHandler{SyncService: svc}

	body := `{"items":[
		{"entityType":"receipt","entityId":"r1","operation":"create","data":{"total":100}},
		{"entityType":"receipt","entityId":"r2","operation":"delete"}
	]}`
	rec := httptest.NewRecorder()
	h.Batch(rec, authedRequest(http.MethodPost, "/sync/batch", body))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if svc.gotOwner != "alice" {
		t.Errorf("owner = %q, want alice", svc.gotOwner)
	}
	if len(svc.gotItems) != 2 || svc.gotItems[0].EntityID != "r1" || svc.gotItems[1].Operation != models.OpDelete {
		t.Errorf("items = %+v", svc.gotItems)
	}

	var resp models.BatchResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Success != 2 || resp.Total != 2 {
		t.Errorf("response = %+v", resp)
	}
}

func TestBatchWithoutOwner(t *testing.T) {
	h := &handler.SyncHandler{SyncService: &fakeSyncService{}}

	req := httptest.NewRequest(http.MethodPost, "/sync/batch", strings.NewReader(`{"items":[]}`))
	rec := httptest.NewRecorder()
	h.Batch(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}
}

func TestBatchRejectsBadBodies(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{name: "malformed json", body: `{"items":`},
		{name: "empty batch", body: `{"items":[]}`},
		{name: "no items field", body: `{}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &fakeSyncService{}
			h := &handler.SyncHandler{SyncService: svc}

			rec := httptest.NewRecorder()
			h.Batch(rec, authedRequest(http.MethodPost, "/sync/batch", tt.body))

			if rec.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, want 400", rec.Code)
			}
			var envelope struct {
				Success bool   `json:"success"`
				Error   string `json:"error"`
			}
			if err := json.NewDecoder(rec.Body).Decode(&envelope); err != nil {
				t.Fatalf("decode body: %v", err)
			}
			if envelope.Success || envelope.Error == "" {
				t.Errorf("body = %+v", envelope)
			}
			if svc.gotItems != nil {
				t.Error("service called for a rejected body")
			}
		})
	}
}

func recordsRequest(entityType string) *http.Request {
	req := authedRequest(http.MethodGet, "/records/"+entityType, "")
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add("entityType", entityType)
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
}

func TestRecordsReturnsActiveRows(t *testing.T) {
	svc := &fakeSyncService{records: []json.RawMessage{json.RawMessage(`{"id":"r1"}`)}}
	h := &handler.SyncHandler{SyncService: svc}

	rec := httptest.NewRecorder()
	h.Records(rec, recordsRequest("receipt"))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var resp struct {
		Records []json.RawMessage `json:"records"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(resp.Records) != 1 {
		t.Errorf("records = %v, want one row", resp.Records)
	}
}

func TestRecordsUnknownEntityType(t *testing.T) {
	svc := &fakeSyncService{}
	h := &handler.SyncHandler{SyncService: svc}

	rec := httptest.NewRecorder()
	h.Records(rec, recordsRequest("bogus"))

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	if body := rec.Body.String(); !strings.Contains(body, "Unsupported entity type: bogus") {
		t.Errorf("body = %s", body)
	}
	if svc.gotOwner != "" {
		t.Error("service called for an unknown entity type")
	}
}

func TestRecordsRepositoryFailure(t *testing.T) {
	svc := &fakeSyncService{listErr: errors.New("connection reset")}
	h := &handler.SyncHandler{SyncService: svc}

	rec := httptest.NewRecorder()
	h.Records(rec, recordsRequest("receipt"))

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
	var envelope struct {
		Success bool   `json:"success"`
		Error   string `json:"error"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&envelope); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if envelope.Success || envelope.Error == "" {
		t.Errorf("body = %+v", envelope)
	}
}

func TestRecordsEmptyResultIsAnArray(t *testing.T) {
	h := &handler.SyncHandler{SyncService: &fakeSyncService{}}

	rec := httptest.NewRecorder()
	h.Records(rec, recordsRequest("receipt"))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if body := rec.Body.String(); !strings.Contains(body, `"records":[]`) {
		t.Errorf("body = %s, want an empty array", body)
	}
}
