package journal

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"shoe-concept-studio/internal/history"
)

const schema = `
CREATE TABLE IF NOT EXISTS attempts (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	session     TEXT    NOT NULL,
	prompt      TEXT    NOT NULL,
	user_prompt TEXT    NOT NULL,
	preset      TEXT    NOT NULL,
	variations  INTEGER NOT NULL,
	collage     INTEGER NOT NULL,
	images_in   INTEGER NOT NULL,
	images_out  INTEGER NOT NULL,
	outcome     TEXT    NOT NULL,
	status      INTEGER NOT NULL,
	request_id  TEXT    NOT NULL,
	created_at  INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS attempts_created_at ON attempts(created_at);
CREATE INDEX IF NOT EXISTS attempts_session ON attempts(session, created_at);
`

// OutcomeOK marks a successful attempt; failures store the generation error kind.
const OutcomeOK = "ok"

// Record is one journal row.
type Record struct {
	ID         int64
	Session    string
	Prompt     string
	UserPrompt string
	Preset     string
	Variations int
	Collage    bool
	ImagesIn   int
	ImagesOut  int
	Outcome    string
	Status     int
	RequestID  string
	CreatedAt  time.Time
}

// Journal is an append-only SQLite log of every completed attempt.
type Journal struct {
	db *sql.DB
}

// Open creates the database file if needed. ":memory:" is accepted for tests.
func Open(path string) (*Journal, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}
	// A single connection keeps ":memory:" databases shared and serialises writers.
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=10000",
		"PRAGMA synchronous=NORMAL",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("set pragma: %w", err)
		}
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &Journal{db: db}, nil
}

func (j *Journal) Close() error {
	return j.db.Close()
}

func (j *Journal) Record(ctx context.Context, session string, e history.Entry) error {
	rec := fromEntry(session, e)
	_, err := j.db.ExecContext(ctx, `
		INSERT INTO attempts (session, prompt, user_prompt, preset, variations, collage, images_in, images_out, outcome, status, request_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.Session, rec.Prompt, rec.UserPrompt, rec.Preset, rec.Variations, rec.Collage,
		rec.ImagesIn, rec.ImagesOut, rec.Outcome, rec.Status, rec.RequestID, rec.CreatedAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("insert attempt: %w", err)
	}
	return nil
}

// Recent returns up to limit rows of one session, newest first. An empty
// session reads across all sessions.
func (j *Journal) Recent(ctx context.Context, session string, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = history.DefaultCapacity
	}
	rows, err := j.db.QueryContext(ctx, `
		SELECT id, session, prompt, user_prompt, preset, variations, collage, images_in, images_out, outcome, status, request_id, created_at
		FROM attempts WHERE ? = '' OR session = ?
		ORDER BY created_at DESC, id DESC LIMIT ?`, session, session, limit)
	if err != nil {
		return nil, fmt.Errorf("query attempts: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var (
			rec       Record
			createdAt int64
		)
		if err := rows.Scan(&rec.ID, &rec.Session, &rec.Prompt, &rec.UserPrompt, &rec.Preset, &rec.Variations,
			&rec.Collage, &rec.ImagesIn, &rec.ImagesOut, &rec.Outcome, &rec.Status, &rec.RequestID, &createdAt); err != nil {
			return nil, fmt.Errorf("scan attempt: %w", err)
		}
		rec.CreatedAt = time.UnixMilli(createdAt).UTC()
		out = append(out, rec)
	}
	return out, rows.Err()
}

func fromEntry(session string, e history.Entry) Record {
	rec := Record{
		Session:   session,
		Outcome:   OutcomeOK,
		CreatedAt: e.At,
	}
	if r := e.Request; r != nil {
		rec.Prompt = r.Prompt
		rec.UserPrompt = r.UserPrompt
		rec.Preset = r.Preset
		rec.Variations = r.Variations
		rec.Collage = r.Collage
		rec.ImagesIn = len(r.Images)
	}
	if res := e.Result; res != nil {
		rec.ImagesOut = len(res.Images)
		rec.RequestID = res.ID
	}
	if f := e.Failure; f != nil {
		rec.Outcome = string(f.Kind)
		rec.Status = f.Status
		rec.RequestID = f.RequestID
	}
	return rec
}
