package database

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/cartsignal/checkout-agent/internal/models"
	_ "modernc.org/sqlite" // CGO-free SQLite
)

type Database struct {
	db *sql.DB
}

// StoredDetection is one journaled delivery payload.
type StoredDetection struct {
	ID          int64
	Payload     models.Payload
	ReceivedUTC int64
}

func NewDatabase(databasePath string) (*Database, error) {
	// WAL + busy timeout to avoid "database is locked"
	db, err := sql.Open("sqlite", databasePath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := createTables(db); err != nil {
		db.Close()
		return nil, err
	}

	return &Database{db: db}, nil
}

func createTables(db *sql.DB) error {
	_, err := db.Exec(`
	CREATE TABLE IF NOT EXISTS detections(
	  id           INTEGER PRIMARY KEY,
	  url          TEXT    NOT NULL,
	  title        TEXT,
	  detected_at  TEXT    NOT NULL,
	  tab_id       INTEGER,
	  source       TEXT    NOT NULL,
	  signals_json TEXT    NOT NULL CHECK (json_valid(signals_json)),
	  user_agent   TEXT,
	  received_utc INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_detections_detected_at ON detections(detected_at);
	CREATE INDEX IF NOT EXISTS idx_detections_url         ON detections(url);
	`)
	if err != nil {
		return fmt.Errorf("failed to create database tables: %w", err)
	}
	return nil
}

func (d *Database) Close() error {
	return d.db.Close()
}

func (d *Database) ValidatePayload(payload models.Payload) error {
	if payload.URL == "" {
		return fmt.Errorf("URL cannot be empty")
	}
	if payload.Source == "" {
		return fmt.Errorf("source cannot be empty")
	}
	if _, err := time.Parse(time.RFC3339, payload.DetectedAt); err != nil {
		return fmt.Errorf("detectedAt must be ISO-8601: %w", err)
	}
	if len(payload.Signals.ButtonMentions) > 10 {
		return fmt.Errorf("buttonMentions exceeds cap: %d", len(payload.Signals.ButtonMentions))
	}
	if payload.Signals.FormsCount < 0 {
		return fmt.Errorf("formsCount cannot be negative")
	}
	return nil
}

func (d *Database) InsertDetection(payload models.Payload) error {
	if err := d.ValidatePayload(payload); err != nil {
		return fmt.Errorf("invalid payload: %w", err)
	}

	signalsJSON, err := json.Marshal(payload.Signals)
	if err != nil {
		return fmt.Errorf("failed to marshal signals: %w", err)
	}

	var tabID sql.NullInt64
	if payload.TabID != nil {
		tabID = sql.NullInt64{Int64: int64(*payload.TabID), Valid: true}
	}

	_, err = d.db.Exec(
		`INSERT INTO detections(url, title, detected_at, tab_id, source, signals_json, user_agent, received_utc)
		 VALUES(?,?,?,?,?,json(?),?,?)`,
		payload.URL, payload.Title, payload.DetectedAt, tabID, payload.Source,
		string(signalsJSON), payload.UserAgent, time.Now().UTC().UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert detection: %w", err)
	}
	return nil
}

// RecentDetections returns the newest detections first, up to limit.
func (d *Database) RecentDetections(limit int) ([]StoredDetection, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := d.db.Query(
		`SELECT id, url, title, detected_at, tab_id, source, signals_json, user_agent, received_utc
		 FROM detections ORDER BY received_utc DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query detections: %w", err)
	}
	defer rows.Close()

	var results []StoredDetection
	for rows.Next() {
		var (
			det         StoredDetection
			title       sql.NullString
			tabID       sql.NullInt64
			signalsJSON string
			userAgent   sql.NullString
		)
		if err := rows.Scan(&det.ID, &det.Payload.URL, &title, &det.Payload.DetectedAt,
			&tabID, &det.Payload.Source, &signalsJSON, &userAgent, &det.ReceivedUTC); err != nil {
			return nil, fmt.Errorf("failed to scan detection: %w", err)
		}
		det.Payload.Title = title.String
		det.Payload.UserAgent = userAgent.String
		if tabID.Valid {
			id := int(tabID.Int64)
			det.Payload.TabID = &id
		}
		if err := json.Unmarshal([]byte(signalsJSON), &det.Payload.Signals); err != nil {
			return nil, fmt.Errorf("failed to decode signals: %w", err)
		}
		results = append(results, det)
	}
	return results, rows.Err()
}

func (d *Database) CountDetections() (int, error) {
	var count int
	if err := d.db.QueryRow(`SELECT COUNT(*) FROM detections`).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count detections: %w", err)
	}
	return count, nil
}
