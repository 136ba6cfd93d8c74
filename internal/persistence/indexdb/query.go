package indexdb

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
)

type AttemptRow struct {
	ID        string `json:"id"`
	At        string `json:"at"`
	Actor     string `json:"actor"`
	X         int    `json:"x"`
	Y         int    `json:"y"`
	Direction string `json:"direction,omitempty"`
	Step      string `json:"step"`
	Success   bool   `json:"success"`
	Attempt   int    `json:"attempt"`
	Detail    string `json:"detail,omitempty"`
}

type SnapshotRow struct {
	X          int    `json:"x"`
	Y          int    `json:"y"`
	Seq        uint64 `json:"seq"`
	Path       string `json:"path"`
	CapturedAt string `json:"captured_at"`
	OpenDoors  int    `json:"open_doors"`
	ActiveJobs int    `json:"active_jobs"`
	Occupants  int    `json:"occupants"`
	BossHP     uint64 `json:"boss_hp"`
	BossAlive  bool   `json:"boss_alive"`
}

type DeltaRow struct {
	Seq       int64    `json:"seq"`
	At        string   `json:"at"`
	X         int      `json:"x"`
	Y         int      `json:"y"`
	Direction string   `json:"direction"`
	Joined    []string `json:"joined"`
	Left      []string `json:"left"`
}

type StepCount struct {
	Step      string `json:"step"`
	Successes int    `json:"successes"`
	Failures  int    `json:"failures"`
}

// Query reads the index. It is safe to use while a daemon writes to the
// same file.
type Query struct{ db *sql.DB }

func (s *SQLiteIndex) Query() Query { return Query{db: s.db} }

// OpenQuery opens an existing index for reading.
func OpenQuery(path string) (Query, func() error, error) {
	if _, err := os.Stat(path); err != nil {
		return Query{}, nil, err
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return Query{}, nil, err
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000;"); err != nil {
		_ = db.Close()
		return Query{}, nil, err
	}
	return Query{db: db}, db.Close, nil
}

// RecentAttempts returns the newest attempts first.
func (q Query) RecentAttempts(ctx context.Context, limit int) ([]AttemptRow, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := q.db.QueryContext(ctx, `SELECT id,at,actor,x,y,COALESCE(direction,''),step,success,attempt,COALESCE(detail,'')
		FROM attempts ORDER BY at DESC, id LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []AttemptRow
	for rows.Next() {
		var (
			r  AttemptRow
			ok int
		)
		if err := rows.Scan(&r.ID, &r.At, &r.Actor, &r.X, &r.Y, &r.Direction, &r.Step, &ok, &r.Attempt, &r.Detail); err != nil {
			return nil, err
		}
		r.Success = ok != 0
		out = append(out, r)
	}
	return out, rows.Err()
}

// StepCounts tallies attempts by step.
func (q Query) StepCounts(ctx context.Context) ([]StepCount, error) {
	rows, err := q.db.QueryContext(ctx, `SELECT step, SUM(success), SUM(1 - success) FROM attempts GROUP BY step ORDER BY step`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []StepCount
	for rows.Next() {
		var c StepCount
		if err := rows.Scan(&c.Step, &c.Successes, &c.Failures); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (q Query) Snapshots(ctx context.Context) ([]SnapshotRow, error) {
	rows, err := q.db.QueryContext(ctx, `SELECT x,y,seq,path,captured_at,open_doors,active_jobs,occupants,boss_hp,boss_alive
		FROM snapshots ORDER BY captured_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []SnapshotRow
	for rows.Next() {
		var (
			r     SnapshotRow
			seq   int64
			hp    int64
			alive int
		)
		if err := rows.Scan(&r.X, &r.Y, &seq, &r.Path, &r.CapturedAt, &r.OpenDoors, &r.ActiveJobs, &r.Occupants, &hp, &alive); err != nil {
			return nil, err
		}
		r.Seq = uint64(seq)
		r.BossHP = uint64(hp)
		r.BossAlive = alive != 0
		out = append(out, r)
	}
	return out, rows.Err()
}

// RoomDeltas returns the newest deltas for one room first.
func (q Query) RoomDeltas(ctx context.Context, x, y, limit int) ([]DeltaRow, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := q.db.QueryContext(ctx, `SELECT seq,at,x,y,direction,joined,left_ids FROM deltas
		WHERE x=? AND y=? ORDER BY seq DESC LIMIT ?`, x, y, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []DeltaRow
	for rows.Next() {
		var (
			r            DeltaRow
			joined, left string
		)
		if err := rows.Scan(&r.Seq, &r.At, &r.X, &r.Y, &r.Direction, &joined, &left); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(joined), &r.Joined); err != nil {
			return nil, fmt.Errorf("delta %d joined: %w", r.Seq, err)
		}
		if err := json.Unmarshal([]byte(left), &r.Left); err != nil {
			return nil, fmt.Errorf("delta %d left: %w", r.Seq, err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// TuningDigest returns the digest of the stored tuning, or "" if none.
func (q Query) TuningDigest(ctx context.Context) (string, error) {
	var d string
	err := q.db.QueryRowContext(ctx, `SELECT digest FROM config WHERE name='tuning'`).Scan(&d)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return d, err
}
