package syncx

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"
)

// Engine event types recorded to the append-only log.
const (
	EventTestAssigned        = "TestAssigned"
	EventSubmissionCompleted = "SubmissionCompleted"
	EventSubmissionExpired   = "SubmissionExpired"
	EventSubmissionReset     = "SubmissionReset"
)

type Event struct {
	Offset    int64
	SiteID    string
	Type      string
	Key       string
	DataJSON  string
	CreatedAt int64
}

type EventRepo struct{ db *sql.DB }

func NewEventRepo(db *sql.DB) *EventRepo { return &EventRepo{db: db} }

func (r *EventRepo) Append(ctx context.Context, e Event) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO event_log (site_id, typ, key, data, created_at)
		 VALUES ($1,$2,$3,$4,$5)`,
		e.SiteID, e.Type, e.Key, e.DataJSON, time.Now().Unix())
	return err
}

// AppendJSON marshals data and appends one event keyed by the submission or
// test ID it concerns.
func (r *EventRepo) AppendJSON(ctx context.Context, typ, key string, data any) error {
	buf, err := json.Marshal(data)
	if err != nil {
		return err
	}
	return r.Append(ctx, Event{SiteID: "local", Type: typ, Key: key, DataJSON: string(buf)})
}
