// Package store provides the SQLite-backed run journal for meetbot: one row
// per bot run, the events it reported and every lifecycle transition.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fentz26/meetbot/internal/models"
	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// ErrNotFound is returned when a run does not exist.
var ErrNotFound = errors.New("run not found")

// Store provides access to the meetbot SQLite database.
type Store struct {
	db *sql.DB
}

// New creates a new Store and runs migrations.
func New(dbPath string) (*Store, error) {
	// Ensure directory exists
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	// WAL lets `meetbot runs` read while a bot is writing.
	db, err := sql.Open("sqlite", dbPath+"?_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	db.SetMaxOpenConns(1) // SQLite only supports one writer at a time
	db.SetMaxIdleConns(1)

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks the database connection is alive.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// migrate runs idempotent schema migrations.
func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		bot_id INTEGER NOT NULL,
		platform TEXT NOT NULL,
		meeting_url TEXT NOT NULL,
		state TEXT NOT NULL,
		recording TEXT,
		error TEXT,
		started_at DATETIME NOT NULL,
		ended_at DATETIME
	);

	CREATE TABLE IF NOT EXISTS events (
		id TEXT PRIMARY KEY,
		run_id TEXT NOT NULL,
		bot_id INTEGER NOT NULL,
		event_type TEXT NOT NULL,
		event_time DATETIME NOT NULL,
		description TEXT,
		sub_code TEXT,
		FOREIGN KEY (run_id) REFERENCES runs(id)
	);

	CREATE TABLE IF NOT EXISTS transitions (
		id TEXT PRIMARY KEY,
		run_id TEXT NOT NULL,
		from_state TEXT NOT NULL,
		to_state TEXT NOT NULL,
		inputs_hash TEXT NOT NULL,
		details TEXT,
		timestamp DATETIME NOT NULL,
		FOREIGN KEY (run_id) REFERENCES runs(id)
	);

	CREATE INDEX IF NOT EXISTS idx_runs_bot_id ON runs(bot_id);
	CREATE INDEX IF NOT EXISTS idx_events_run_id ON events(run_id);
	CREATE INDEX IF NOT EXISTS idx_transitions_run_id ON transitions(run_id);
	`

	_, err := s.db.Exec(schema)
	return err
}

// --- Run Operations ---

// CreateRun inserts a run in the STARTING state.
func (s *Store) CreateRun(bot models.BotIdentity) (*models.Run, error) {
	run := &models.Run{
		ID:         uuid.New().String(),
		BotID:      bot.ID,
		Platform:   bot.Platform,
		MeetingURL: bot.MeetingURL,
		State:      models.RunStarting,
		StartedAt:  time.Now().UTC(),
	}

	_, err := s.db.Exec(
		`INSERT INTO runs (id, bot_id, platform, meeting_url, state, started_at) VALUES (?, ?, ?, ?, ?, ?)`,
		run.ID, run.BotID, string(run.Platform), run.MeetingURL, string(run.State), run.StartedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("insert run: %w", err)
	}
	return run, nil
}

// UpdateRunState moves a run to state. Terminal states also stamp ended_at.
func (s *Store) UpdateRunState(id string, state models.RunState, errMsg string) error {
	var endedAt interface{}
	if state.IsTerminal() {
		endedAt = time.Now().UTC()
	}
	res, err := s.db.Exec(
		`UPDATE runs SET state = ?, error = COALESCE(NULLIF(?, ''), error), ended_at = COALESCE(?, ended_at) WHERE id = ?`,
		string(state), errMsg, endedAt, id,
	)
	if err != nil {
		return fmt.Errorf("update run: %w", err)
	}
	return expectOne(res)
}

// SetRunRecording stores the recording reference of a run.
func (s *Store) SetRunRecording(id, recording string) error {
	res, err := s.db.Exec(`UPDATE runs SET recording = ? WHERE id = ?`, recording, id)
	if err != nil {
		return fmt.Errorf("update run recording: %w", err)
	}
	return expectOne(res)
}

func expectOne(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

const runColumns = `id, bot_id, platform, meeting_url, state, recording, error, started_at, ended_at`

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanRun(row scanner) (*models.Run, error) {
	var run models.Run
	var platform, state string
	var recording, errMsg sql.NullString
	var endedAt sql.NullTime

	if err := row.Scan(&run.ID, &run.BotID, &platform, &run.MeetingURL, &state, &recording, &errMsg, &run.StartedAt, &endedAt); err != nil {
		return nil, err
	}
	run.Platform = models.Platform(platform)
	run.State = models.RunState(state)
	if recording.Valid {
		run.Recording = recording.String
	}
	if errMsg.Valid {
		run.Error = errMsg.String
	}
	if endedAt.Valid {
		t := endedAt.Time
		run.EndedAt = &t
	}
	return &run, nil
}

// GetRun retrieves a run by ID.
func (s *Store) GetRun(id string) (*models.Run, error) {
	run, err := scanRun(s.db.QueryRow(`SELECT `+runColumns+` FROM runs WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get run: %w", err)
	}
	return run, nil
}

// ListRuns returns the most recent runs first. A limit <= 0 returns all runs.
func (s *Store) ListRuns(limit int) ([]models.Run, error) {
	query := `SELECT ` + runColumns + ` FROM runs ORDER BY started_at DESC`
	args := []interface{}{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var runs []models.Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		runs = append(runs, *run)
	}
	return runs, rows.Err()
}

// --- Event Operations ---

// AddEvent appends an event to a run's journal.
func (s *Store) AddEvent(ctx context.Context, runID string, botID int64, ev models.Event) (*models.EventRecord, error) {
	rec := &models.EventRecord{
		ID:        uuid.New().String(),
		RunID:     runID,
		BotID:     botID,
		EventType: ev.EventType,
		EventTime: ev.EventTime.UTC(),
	}
	if ev.Data != nil {
		rec.Description = ev.Data.Description
		rec.SubCode = ev.Data.SubCode
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO events (id, run_id, bot_id, event_type, event_time, description, sub_code) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.RunID, rec.BotID, string(rec.EventType), rec.EventTime, rec.Description, rec.SubCode,
	)
	if err != nil {
		return nil, fmt.Errorf("insert event: %w", err)
	}
	return rec, nil
}

// ListEvents returns a run's events in the order they happened.
func (s *Store) ListEvents(runID string) ([]models.EventRecord, error) {
	rows, err := s.db.Query(
		`SELECT id, run_id, bot_id, event_type, event_time, description, sub_code FROM events WHERE run_id = ? ORDER BY event_time ASC, rowid ASC`,
		runID,
	)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	var events []models.EventRecord
	for rows.Next() {
		var rec models.EventRecord
		var eventType string
		var description, subCode sql.NullString
		if err := rows.Scan(&rec.ID, &rec.RunID, &rec.BotID, &eventType, &rec.EventTime, &description, &subCode); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		rec.EventType = models.EventCode(eventType)
		rec.Description = description.String
		rec.SubCode = subCode.String
		events = append(events, rec)
	}
	return events, rows.Err()
}

// Journal records a run's events; it satisfies monitor.EventSink.
type Journal struct {
	store *Store
	runID string
}

// Journal returns an event sink bound to runID.
func (s *Store) Journal(runID string) *Journal {
	return &Journal{store: s, runID: runID}
}

// RecordEvent appends the event to the run.
func (j *Journal) RecordEvent(ctx context.Context, bot models.BotIdentity, ev models.Event) error {
	_, err := j.store.AddEvent(ctx, j.runID, bot.ID, ev)
	return err
}

// --- Transition Operations ---

// WriteTransition appends an audit entry for a state change.
func (s *Store) WriteTransition(runID string, from, to models.RunState, inputsHash, details string) (*models.Transition, error) {
	tr := &models.Transition{
		ID:         uuid.New().String(),
		RunID:      runID,
		From:       from,
		To:         to,
		InputsHash: inputsHash,
		Details:    details,
		Timestamp:  time.Now().UTC(),
	}

	_, err := s.db.Exec(
		`INSERT INTO transitions (id, run_id, from_state, to_state, inputs_hash, details, timestamp) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		tr.ID, tr.RunID, string(tr.From), string(tr.To), tr.InputsHash, tr.Details, tr.Timestamp,
	)
	if err != nil {
		return nil, fmt.Errorf("insert transition: %w", err)
	}
	return tr, nil
}

// ListTransitions returns a run's transitions oldest first.
func (s *Store) ListTransitions(runID string) ([]models.Transition, error) {
	rows, err := s.db.Query(
		`SELECT id, run_id, from_state, to_state, inputs_hash, details, timestamp FROM transitions WHERE run_id = ? ORDER BY timestamp ASC, rowid ASC`,
		runID,
	)
	if err != nil {
		return nil, fmt.Errorf("query transitions: %w", err)
	}
	defer rows.Close()

	var out []models.Transition
	for rows.Next() {
		var tr models.Transition
		var from, to string
		var details sql.NullString
		if err := rows.Scan(&tr.ID, &tr.RunID, &from, &to, &tr.InputsHash, &details, &tr.Timestamp); err != nil {
			return nil, fmt.Errorf("scan transition: %w", err)
		}
		tr.From = models.RunState(from)
		tr.To = models.RunState(to)
		tr.Details = details.String
		out = append(out, tr)
	}
	return out, rows.Err()
}
