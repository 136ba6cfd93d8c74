package indexdb

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"

	"github.com/kimo-do/SeekerDungeon-sub002/internal/audit"
	"github.com/kimo-do/SeekerDungeon-sub002/internal/dungeon"
	"github.com/kimo-do/SeekerDungeon-sub002/internal/persistence/snapshot"
	"github.com/kimo-do/SeekerDungeon-sub002/internal/tuning"
)

const schemaVersion = "1"

// SQLiteIndex is a queryable secondary index over what the daemon did and
// saw. Writes go through a bounded queue to a single writer goroutine and
// are dropped when it falls behind; the JSONL audit log is the source of
// truth.
type SQLiteIndex struct {
	db *sql.DB

	ch   chan req
	wg   sync.WaitGroup
	once sync.Once

	closed atomic.Bool

	// Room of the most recent snapshot; deltas carry only a direction.
	room atomic.Pointer[dungeon.Coord]

	dropAttempt  atomic.Uint64
	dropSnapshot atomic.Uint64
	dropDelta    atomic.Uint64
	writeErrors  atomic.Uint64
}

type reqKind int

const (
	reqAttempt reqKind = iota + 1
	reqSnapshot
	reqDelta
)

type req struct {
	kind reqKind

	attempt  audit.Entry
	snapshot snapshotRow
	delta    deltaRow
}

type snapshotRow struct {
	Seq        uint64
	X, Y       int
	Path       string
	CapturedAt string
	OpenDoors  int
	ActiveJobs int
	Occupants  int
	BossHP     uint64
	BossAlive  bool
}

type deltaRow struct {
	X, Y      int
	Direction string
	Joined    []string
	Left      []string
	At        string
}

type Stats struct {
	QueueDepth        int
	QueueCapacity     int
	DropAttemptTotal  uint64
	DropSnapshotTotal uint64
	DropDeltaTotal    uint64
	WriteErrorTotal   uint64
}

func OpenSQLite(path string) (*SQLiteIndex, error) {
	if path == "" {
		return nil, fmt.Errorf("empty db path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := initPragmas(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	s := &SQLiteIndex{
		db: db,
		ch: make(chan req, 16384),
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.loop()
	}()
	return s, nil
}

func initPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA temp_store=MEMORY;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return err
		}
	}
	return nil
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS meta (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS config (
			name TEXT PRIMARY KEY,
			digest TEXT NOT NULL,
			json TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS attempts (
			id TEXT PRIMARY KEY,
			at TEXT NOT NULL,
			actor TEXT NOT NULL,
			x INTEGER NOT NULL,
			y INTEGER NOT NULL,
			direction TEXT,
			step TEXT NOT NULL,
			success INTEGER NOT NULL,
			attempt INTEGER NOT NULL,
			detail TEXT
		);`,
		`CREATE INDEX IF NOT EXISTS idx_attempts_at ON attempts(at);`,
		`CREATE INDEX IF NOT EXISTS idx_attempts_room ON attempts(x, y, direction, at);`,
		`CREATE TABLE IF NOT EXISTS snapshots (
			x INTEGER NOT NULL,
			y INTEGER NOT NULL,
			seq INTEGER NOT NULL,
			path TEXT NOT NULL,
			captured_at TEXT NOT NULL,
			open_doors INTEGER NOT NULL,
			active_jobs INTEGER NOT NULL,
			occupants INTEGER NOT NULL,
			boss_hp INTEGER NOT NULL,
			boss_alive INTEGER NOT NULL,
			PRIMARY KEY (x, y)
		);`,
		`CREATE TABLE IF NOT EXISTS deltas (
			seq INTEGER PRIMARY KEY AUTOINCREMENT,
			at TEXT NOT NULL,
			x INTEGER NOT NULL,
			y INTEGER NOT NULL,
			direction TEXT NOT NULL,
			joined TEXT NOT NULL,
			left_ids TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_deltas_room ON deltas(x, y, seq);`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	_, err := db.Exec(`INSERT OR REPLACE INTO meta(key,value) VALUES('schema_version',?)`, schemaVersion)
	return err
}

func (s *SQLiteIndex) Close() error {
	var err error
	s.once.Do(func() {
		s.closed.Store(true)
		close(s.ch)
		s.wg.Wait()
		err = s.db.Close()
	})
	return err
}

func (s *SQLiteIndex) enqueue(r req, drops *atomic.Uint64) {
	if s == nil || s.closed.Load() {
		return
	}
	select {
	case s.ch <- r:
	default:
		drops.Add(1)
	}
}

// WriteAudit implements audit.Writer.
func (s *SQLiteIndex) WriteAudit(e audit.Entry) error {
	if s == nil {
		return nil
	}
	s.enqueue(req{kind: reqAttempt, attempt: e}, &s.dropAttempt)
	return nil
}

// RecordSnapshot implements snapshot.Recorder.
func (s *SQLiteIndex) RecordSnapshot(path string, snap snapshot.SnapshotV1) {
	if s == nil {
		return
	}
	room := snap.Room
	r := snapshotRow{
		Seq:        snap.Header.Seq,
		X:          int(room.Position.X),
		Y:          int(room.Position.Y),
		Path:       path,
		CapturedAt: snap.Header.CapturedAt.UTC().Format(time.RFC3339Nano),
		Occupants:  len(room.BossOccupants) + len(room.IdleOccupants),
	}
	for _, d := range room.Doors {
		if d.Wall == dungeon.WallOpen {
			r.OpenDoors++
		}
		if d.HasActiveJob() {
			r.ActiveJobs++
		}
	}
	for _, occ := range room.DoorOccupants {
		r.Occupants += len(occ)
	}
	if b, ok := room.Center.LiveBoss(); ok {
		r.BossHP = b.HP
		r.BossAlive = true
	}
	s.enqueue(req{kind: reqSnapshot, snapshot: r}, &s.dropSnapshot)
}

func (s *SQLiteIndex) OnRoomSnapshotUpdated(snap dungeon.RoomSnapshot) {
	if s == nil {
		return
	}
	c := snap.Position
	s.room.Store(&c)
}

func (s *SQLiteIndex) OnDoorOccupancyDelta(delta dungeon.DoorOccupancyDelta) {
	if s == nil || delta.Empty() {
		return
	}
	var c dungeon.Coord
	if p := s.room.Load(); p != nil {
		c = *p
	}
	r := deltaRow{
		X:         int(c.X),
		Y:         int(c.Y),
		Direction: delta.Direction.String(),
		At:        time.Now().UTC().Format(time.RFC3339Nano),
	}
	for _, o := range delta.Joined {
		r.Joined = append(r.Joined, o.Identity)
	}
	for _, o := range delta.Left {
		r.Left = append(r.Left, o.Identity)
	}
	s.enqueue(req{kind: reqDelta, delta: r}, &s.dropDelta)
}

// UpsertTuning stores the tunables the daemon runs with, keyed by digest.
func (s *SQLiteIndex) UpsertTuning(tune tuning.Tuning) error {
	if s == nil {
		return nil
	}
	b, err := json.Marshal(tune)
	if err != nil {
		return err
	}
	sum := sha256.Sum256(b)
	_, err = s.db.Exec(`INSERT OR REPLACE INTO config(name,digest,json,updated_at) VALUES('tuning',?,?,?)`,
		hex.EncodeToString(sum[:]), string(b), time.Now().UTC().Format(time.RFC3339Nano))
	return err
}

func (s *SQLiteIndex) Stats() Stats {
	if s == nil {
		return Stats{}
	}
	return Stats{
		QueueDepth:        len(s.ch),
		QueueCapacity:     cap(s.ch),
		DropAttemptTotal:  s.dropAttempt.Load(),
		DropSnapshotTotal: s.dropSnapshot.Load(),
		DropDeltaTotal:    s.dropDelta.Load(),
		WriteErrorTotal:   s.writeErrors.Load(),
	}
}

func (s *SQLiteIndex) loop() {
	ctx := context.Background()

	insertAttempt, _ := s.db.Prepare(`INSERT OR REPLACE INTO attempts(id,at,actor,x,y,direction,step,success,attempt,detail) VALUES(?,?,?,?,?,?,?,?,?,?)`)
	insertSnapshot, _ := s.db.Prepare(`INSERT OR REPLACE INTO snapshots(x,y,seq,path,captured_at,open_doors,active_jobs,occupants,boss_hp,boss_alive) VALUES(?,?,?,?,?,?,?,?,?,?)`)
	insertDelta, _ := s.db.Prepare(`INSERT INTO deltas(at,x,y,direction,joined,left_ids) VALUES(?,?,?,?,?,?)`)
	defer func() {
		for _, st := range []*sql.Stmt{insertAttempt, insertSnapshot, insertDelta} {
			if st != nil {
				_ = st.Close()
			}
		}
	}()

	var (
		tx            *sql.Tx
		opCount       int
		lastCommit    = time.Now()
		commitEvery   = 256
		commitMaxWait = time.Second
	)

	begin := func() {
		if tx != nil {
			return
		}
		txx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			time.Sleep(50 * time.Millisecond)
			return
		}
		tx = txx
		opCount = 0
		lastCommit = time.Now()
	}
	commit := func() {
		if tx == nil {
			return
		}
		if err := tx.Commit(); err != nil {
			s.writeErrors.Add(1)
		}
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}
	rollback := func() {
		if tx == nil {
			return
		}
		s.writeErrors.Add(1)
		_ = tx.Rollback()
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}
	exec := func(st *sql.Stmt, args ...any) {
		if st == nil || tx == nil {
			return
		}
		if _, err := tx.Stmt(st).Exec(args...); err != nil {
			rollback()
			return
		}
		opCount++
	}

	for {
		var (
			r  req
			ok bool
		)
		// Commit an idle batch instead of holding it open until the next write.
		if tx != nil {
			select {
			case r, ok = <-s.ch:
			case <-time.After(commitMaxWait):
				commit()
				continue
			}
		} else {
			r, ok = <-s.ch
		}
		if !ok {
			break
		}

		begin()
		if tx == nil {
			continue
		}
		switch r.kind {
		case reqAttempt:
			a := r.attempt
			var dir any
			if a.Direction != nil {
				dir = a.Direction.String()
			}
			exec(insertAttempt,
				a.ID,
				a.Time.UTC().Format(time.RFC3339Nano),
				a.Actor,
				int(a.Room.X), int(a.Room.Y),
				dir,
				string(a.Step),
				boolInt(a.Success),
				a.Attempt,
				a.Detail,
			)
		case reqSnapshot:
			sn := r.snapshot
			exec(insertSnapshot,
				sn.X, sn.Y,
				int64(sn.Seq),
				sn.Path,
				sn.CapturedAt,
				sn.OpenDoors,
				sn.ActiveJobs,
				sn.Occupants,
				int64(sn.BossHP),
				boolInt(sn.BossAlive),
			)
		case reqDelta:
			d := r.delta
			joined, _ := json.Marshal(nonNil(d.Joined))
			left, _ := json.Marshal(nonNil(d.Left))
			exec(insertDelta, d.At, d.X, d.Y, d.Direction, string(joined), string(left))
		}
		if tx != nil && (opCount >= commitEvery || time.Since(lastCommit) >= commitMaxWait) {
			commit()
		}
	}

	commit()
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
