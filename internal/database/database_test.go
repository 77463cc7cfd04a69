package database

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/cartsignal/checkout-agent/internal/models"
)

func setupTestDB(t *testing.T) (*Database, func()) {
	t.Helper()

	tmpDir, err := os.MkdirTemp("", "checkout-agent-test-*")
	if err != nil {
		t.Fatalf("Failed to create temp dir: %v", err)
	}

	dbPath := filepath.Join(tmpDir, "test.db")
	db, err := NewDatabase(dbPath)
	if err != nil {
		os.RemoveAll(tmpDir)
		t.Fatalf("Failed to create test database: %v", err)
	}

	cleanup := func() {
		db.Close()
		os.RemoveAll(tmpDir)
	}

	return db, cleanup
}

func validPayload() models.Payload {
	tabID := 42
	return models.Payload{
		URL:        "https://shop.example.com/checkout?step=2",
		Title:      "Checkout",
		DetectedAt: "2026-08-30T12:00:00Z",
		TabID:      &tabID,
		Source:     models.SourceContent,
		Signals: models.Signals{
			TextMentions:   []string{"checkout", "payment"},
			ButtonMentions: []string{"pay now"},
			FormsCount:     1,
		},
		UserAgent: "checkout-agent/0.1 (test)",
	}
}

func TestNewDatabase(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	if db == nil {
		t.Fatal("Expected non-nil database")
	}
	if db.db == nil {
		t.Fatal("Expected non-nil sql.DB")
	}
}

func TestValidatePayload(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	tooManyButtons := validPayload()
	tooManyButtons.Signals.ButtonMentions = make([]string, 11)

	emptyURL := validPayload()
	emptyURL.URL = ""

	emptySource := validPayload()
	emptySource.Source = ""

	badTimestamp := validPayload()
	badTimestamp.DetectedAt = "yesterday"

	negativeForms := validPayload()
	negativeForms.Signals.FormsCount = -1

	noTab := validPayload()
	noTab.TabID = nil

	tests := []struct {
		name      string
		payload   models.Payload
		wantError bool
	}{
		{"valid payload", validPayload(), false},
		{"nil tab id is allowed", noTab, false},
		{"empty URL", emptyURL, true},
		{"empty source", emptySource, true},
		{"bad timestamp", badTimestamp, true},
		{"too many button mentions", tooManyButtons, true},
		{"negative forms count", negativeForms, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := db.ValidatePayload(tt.payload)
			if tt.wantError && err == nil {
				t.Error("Expected error, got nil")
			}
			if !tt.wantError && err != nil {
				t.Errorf("Expected no error, got: %v", err)
			}
		})
	}
}

func TestInsertAndQueryDetections(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	first := validPayload()
	second := validPayload()
	second.URL = "https://other.example.com/cart"
	second.TabID = nil

	if err := db.InsertDetection(first); err != nil {
		t.Fatalf("Failed to insert first detection: %v", err)
	}
	if err := db.InsertDetection(second); err != nil {
		t.Fatalf("Failed to insert second detection: %v", err)
	}

	count, err := db.CountDetections()
	if err != nil {
		t.Fatalf("Failed to count detections: %v", err)
	}
	if count != 2 {
		t.Errorf("Expected 2 detections, got %d", count)
	}

	recent, err := db.RecentDetections(10)
	if err != nil {
		t.Fatalf("Failed to query detections: %v", err)
	}
	if len(recent) != 2 {
		t.Fatalf("Expected 2 detections, got %d", len(recent))
	}

	// Newest first.
	got := recent[0].Payload
	if got.URL != second.URL {
		t.Errorf("Expected newest detection first, got %s", got.URL)
	}
	if got.TabID != nil {
		t.Error("Expected nil tab id to round-trip")
	}

	older := recent[1].Payload
	if older.TabID == nil || *older.TabID != 42 {
		t.Errorf("Expected tab id 42 to round-trip, got %v", older.TabID)
	}
	if len(older.Signals.TextMentions) != 2 || older.Signals.TextMentions[0] != "checkout" {
		t.Errorf("Signals did not round-trip: %+v", older.Signals)
	}
	if older.Signals.FormsCount != 1 {
		t.Errorf("Expected formsCount 1, got %d", older.Signals.FormsCount)
	}
}

func TestInsertRejectsInvalidPayload(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	payload := validPayload()
	payload.URL = ""
	if err := db.InsertDetection(payload); err == nil {
		t.Error("Expected error for invalid payload")
	}

	count, _ := db.CountDetections()
	if count != 0 {
		t.Errorf("Expected no rows after rejected insert, got %d", count)
	}
}
