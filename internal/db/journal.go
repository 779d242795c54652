package db

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/joeblew999/plat-wikimap/internal/completion"
)

const createEvents = `CREATE TABLE IF NOT EXISTS completion_events (
	session   VARCHAR NOT NULL,
	map       VARCHAR NOT NULL,
	marker    VARCHAR NOT NULL,
	completed BOOLEAN NOT NULL,
	at        TIMESTAMP NOT NULL
)`

// Journal records outgoing completion notifications.
type Journal struct {
	db *sql.DB
}

// NewJournal returns a journal writing to db.
func NewJournal(db *sql.DB) *Journal {
	return &Journal{db: db}
}

// Migrate creates the journal table.
func (j *Journal) Migrate(ctx context.Context) error {
	if _, err := j.db.ExecContext(ctx, createEvents); err != nil {
		return fmt.Errorf("creating completion_events: %w", err)
	}
	return nil
}

// Record appends one event.
func (j *Journal) Record(ctx context.Context, e completion.Event) error {
	_, err := j.db.ExecContext(ctx,
		"INSERT INTO completion_events (session, map, marker, completed, at) VALUES (?, ?, ?, ?, ?)",
		e.Session, e.Map, e.Marker, e.Completed, e.At.UTC())
	if err != nil {
		return fmt.Errorf("recording completion event: %w", err)
	}
	return nil
}

// Recent returns up to limit events for a map, newest first.
func (j *Journal) Recent(ctx context.Context, mapID string, limit int) ([]completion.Event, error) {
	rows, err := j.db.QueryContext(ctx,
		"SELECT session, map, marker, completed, at FROM completion_events WHERE map = ? ORDER BY at DESC LIMIT ?",
		mapID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []completion.Event
	for rows.Next() {
		var e completion.Event
		if err := rows.Scan(&e.Session, &e.Map, &e.Marker, &e.Completed, &e.At); err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, rows.Err()
}
