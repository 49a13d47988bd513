package httpx

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/closetline/api/internal/platform/requestctx"
)

func TestWriteErrorEnvelope(t *testing.T) {
	ctx := requestctx.WithTrace(context.Background(), requestctx.TraceInfo{TraceID: "trace-1"})
	rec := httptest.NewRecorder()

	err := NewError("cart_empty", "cart has no items\n", http.StatusBadRequest).
		WithRequestID("req-9").
		WithDetails(map[string]any{"field": "items", "success": true})
	WriteError(ctx, rec, err)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Fatalf("unexpected content type %q", ct)
	}

	var body map[string]any
	if decodeErr := json.Unmarshal(rec.Body.Bytes(), &body); decodeErr != nil {
		t.Fatalf("decode body: %v", decodeErr)
	}
	if body["success"] != false {
		t.Fatalf("expected success false, got %v", body["success"])
	}
	if body["error"] != "cart_empty" || body["message"] != "cart has no items" {
		t.Fatalf("unexpected envelope %v", body)
	}
	if body["request_id"] != "req-9" || body["trace_id"] != "trace-1" {
		t.Fatalf("expected request and trace ids, got %v", body)
	}
	if body["field"] != "items" {
		t.Fatalf("expected details to be merged, got %v", body)
	}
}

func TestNewErrorDefaultsStatus(t *testing.T) {
	err := NewError("boom", "", 0)
	if err.Status != http.StatusInternalServerError {
		t.Fatalf("expected 500 default, got %d", err.Status)
	}
	if err.Error() != "boom" {
		t.Fatalf("unexpected error string %q", err.Error())
	}
}
