package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/cartsignal/checkout-agent/internal/database"
	"github.com/cartsignal/checkout-agent/internal/models"
)

func setupTestServer(t *testing.T) (*Server, func()) {
	t.Helper()

	tmpDir, err := os.MkdirTemp("", "checkout-agent-server-test-*")
	if err != nil {
		t.Fatalf("Failed to create temp dir: %v", err)
	}

	dbPath := filepath.Join(tmpDir, "test.db")
	db, err := database.NewDatabase(dbPath)
	if err != nil {
		os.RemoveAll(tmpDir)
		t.Fatalf("Failed to create test database: %v", err)
	}

	server := NewServer(nil, db, "127.0.0.1:0") // Port 0 for testing

	cleanup := func() {
		db.Close()
		os.RemoveAll(tmpDir)
	}

	return server, cleanup
}

func triggerBody(t *testing.T) *bytes.Buffer {
	t.Helper()
	tabID := 42
	payload := models.Payload{
		URL:        "https://shop.example.com/checkout",
		Title:      "Checkout",
		DetectedAt: "2026-08-30T12:00:00Z",
		TabID:      &tabID,
		Source:     models.SourceContent,
		Signals:    models.Signals{FormsCount: 1},
		UserAgent:  "checkout-agent/0.1 (test)",
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("Failed to marshal payload: %v", err)
	}
	return bytes.NewBuffer(raw)
}

func TestNewServer(t *testing.T) {
	server, cleanup := setupTestServer(t)
	defer cleanup()

	if server == nil {
		t.Fatal("Expected non-nil server")
	}
	if server.db == nil {
		t.Fatal("Expected non-nil database")
	}
	if server.address != "127.0.0.1:0" {
		t.Errorf("Expected address 127.0.0.1:0, got %s", server.address)
	}
}

func TestHandleHealthz(t *testing.T) {
	server, cleanup := setupTestServer(t)
	defer cleanup()

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	w := httptest.NewRecorder()

	server.handleHealthz(w, req)

	resp := w.Result()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("Expected status 200, got %d", resp.StatusCode)
	}
	if body := w.Body.String(); body != "ok" {
		t.Errorf("Expected body 'ok', got %s", body)
	}
}

func TestHandleTriggerSuccess(t *testing.T) {
	server, cleanup := setupTestServer(t)
	defer cleanup()

	req := httptest.NewRequest(http.MethodPost, "/api/checkout-trigger", triggerBody(t))
	w := httptest.NewRecorder()

	server.handleTrigger(w, req)

	if w.Result().StatusCode != http.StatusNoContent {
		t.Errorf("Expected status 204, got %d", w.Result().StatusCode)
	}

	count, err := server.db.CountDetections()
	if err != nil {
		t.Fatalf("Failed to count detections: %v", err)
	}
	if count != 1 {
		t.Errorf("Expected 1 stored detection, got %d", count)
	}
}

func TestHandleTriggerInvalidJSON(t *testing.T) {
	server, cleanup := setupTestServer(t)
	defer cleanup()

	req := httptest.NewRequest(http.MethodPost, "/api/checkout-trigger", bytes.NewBufferString("{not json"))
	w := httptest.NewRecorder()

	server.handleTrigger(w, req)

	if w.Result().StatusCode != http.StatusBadRequest {
		t.Errorf("Expected status 400, got %d", w.Result().StatusCode)
	}
}

func TestHandleTriggerInvalidPayload(t *testing.T) {
	server, cleanup := setupTestServer(t)
	defer cleanup()

	// Valid JSON, missing required fields.
	req := httptest.NewRequest(http.MethodPost, "/api/checkout-trigger", bytes.NewBufferString(`{"title":"x"}`))
	w := httptest.NewRecorder()

	server.handleTrigger(w, req)

	if w.Result().StatusCode != http.StatusBadRequest {
		t.Errorf("Expected status 400, got %d", w.Result().StatusCode)
	}
}

func TestHandleTriggerMethodNotAllowed(t *testing.T) {
	server, cleanup := setupTestServer(t)
	defer cleanup()

	req := httptest.NewRequest(http.MethodGet, "/api/checkout-trigger", nil)
	w := httptest.NewRecorder()

	server.handleTrigger(w, req)

	if w.Result().StatusCode != http.StatusMethodNotAllowed {
		t.Errorf("Expected status 405, got %d", w.Result().StatusCode)
	}
}

func TestHandleDetections(t *testing.T) {
	server, cleanup := setupTestServer(t)
	defer cleanup()

	post := httptest.NewRequest(http.MethodPost, "/api/checkout-trigger", triggerBody(t))
	server.handleTrigger(httptest.NewRecorder(), post)

	req := httptest.NewRequest(http.MethodGet, "/api/detections", nil)
	w := httptest.NewRecorder()

	server.handleDetections(w, req)

	resp := w.Result()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "application/json" {
		t.Errorf("Expected application/json, got %s", ct)
	}

	var payloads []models.Payload
	if err := json.NewDecoder(w.Body).Decode(&payloads); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if len(payloads) != 1 {
		t.Fatalf("Expected 1 detection, got %d", len(payloads))
	}
	if payloads[0].URL != "https://shop.example.com/checkout" {
		t.Errorf("Unexpected URL: %s", payloads[0].URL)
	}
	if payloads[0].TabID == nil || *payloads[0].TabID != 42 {
		t.Errorf("Expected tab id 42, got %v", payloads[0].TabID)
	}
}
