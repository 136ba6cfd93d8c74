package indexdb

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/kimo-do/SeekerDungeon-sub002/internal/audit"
	"github.com/kimo-do/SeekerDungeon-sub002/internal/dungeon"
	"github.com/kimo-do/SeekerDungeon-sub002/internal/persistence/snapshot"
	"github.com/kimo-do/SeekerDungeon-sub002/internal/tuning"
)

func TestSQLiteIndex_QueueDropStats(t *testing.T) {
	s := &SQLiteIndex{ch: make(chan req, 1)}
	s.ch <- req{kind: reqAttempt}

	_ = s.WriteAudit(audit.Entry{ID: "x"})
	s.RecordSnapshot("/tmp/0_0.snap.zst", snapshot.SnapshotV1{})
	s.OnDoorOccupancyDelta(dungeon.DoorOccupancyDelta{
		Direction: dungeon.North,
		Joined:    []dungeon.OccupantView{{Identity: "p1"}},
	})
	// Empty deltas are not queued at all.
	s.OnDoorOccupancyDelta(dungeon.DoorOccupancyDelta{Direction: dungeon.South})

	st := s.Stats()
	if st.DropAttemptTotal != 1 {
		t.Fatalf("DropAttemptTotal=%d want=1", st.DropAttemptTotal)
	}
	if st.DropSnapshotTotal != 1 {
		t.Fatalf("DropSnapshotTotal=%d want=1", st.DropSnapshotTotal)
	}
	if st.DropDeltaTotal != 1 {
		t.Fatalf("DropDeltaTotal=%d want=1", st.DropDeltaTotal)
	}
	if st.QueueDepth != 1 || st.QueueCapacity != 1 {
		t.Fatalf("queue stats mismatch: depth=%d cap=%d", st.QueueDepth, st.QueueCapacity)
	}
}

func TestSQLiteIndex_NilIsNoop(t *testing.T) {
	var s *SQLiteIndex
	if err := s.WriteAudit(audit.Entry{}); err != nil {
		t.Fatalf("WriteAudit: %v", err)
	}
	s.RecordSnapshot("", snapshot.SnapshotV1{})
	s.OnRoomSnapshotUpdated(dungeon.RoomSnapshot{})
	s.OnDoorOccupancyDelta(dungeon.DoorOccupancyDelta{Joined: []dungeon.OccupantView{{Identity: "a"}}})
	if err := s.UpsertTuning(tuning.Defaults()); err != nil {
		t.Fatalf("UpsertTuning: %v", err)
	}
	if st := s.Stats(); st != (Stats{}) {
		t.Fatalf("stats=%+v", st)
	}
}

func TestSQLiteIndex_WritesAndQueries(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "index.db")

	idx, err := OpenSQLite(path)
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	if err := idx.UpsertTuning(tuning.Defaults()); err != nil {
		t.Fatalf("UpsertTuning: %v", err)
	}

	t0 := time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC)
	room := dungeon.Coord{X: 1, Y: -2}
	_ = idx.WriteAudit(audit.Entry{ID: "a1", Time: t0, Actor: "me", Room: room, Direction: audit.Dir(dungeon.West), Step: audit.StepFinalize, Success: true, Attempt: 1, Detail: "sig"})
	_ = idx.WriteAudit(audit.Entry{ID: "a2", Time: t0.Add(time.Second), Actor: "me", Room: room, Direction: audit.Dir(dungeon.West), Step: audit.StepClaim, Success: false, Attempt: 1, Detail: "nope"})
	_ = idx.WriteAudit(audit.Entry{ID: "a3", Time: t0.Add(2 * time.Second), Actor: "me", Room: room, Step: audit.StepBossTick, Success: true})

	var rs dungeon.RoomSnapshot
	rs.Position = room
	rs.Doors[dungeon.West] = dungeon.DoorState{Direction: dungeon.West, Wall: dungeon.WallRubble, HelperCount: 1, StartSlot: 10, RequiredProgress: 100}
	rs.Doors[dungeon.North] = dungeon.DoorState{Direction: dungeon.North, Wall: dungeon.WallOpen}
	rs.Center = dungeon.CenterState{Kind: dungeon.CenterBoss, Boss: &dungeon.BossState{HP: 40, MaxHP: 50}}
	rs.DoorOccupants[dungeon.West] = []dungeon.OccupantView{{Identity: "p1"}}
	rs.IdleOccupants = []dungeon.OccupantView{{Identity: "p2"}}
	idx.RecordSnapshot("/data/rooms/1_-2.snap.zst", snapshot.SnapshotV1{
		Header: snapshot.Header{Version: 1, Room: room, CapturedAt: t0, Seq: 4},
		Room:   rs,
	})

	idx.OnRoomSnapshotUpdated(rs)
	idx.OnDoorOccupancyDelta(dungeon.DoorOccupancyDelta{
		Direction: dungeon.West,
		Joined:    []dungeon.OccupantView{{Identity: "p1"}},
	})
	idx.OnDoorOccupancyDelta(dungeon.DoorOccupancyDelta{
		Direction: dungeon.West,
		Left:      []dungeon.OccupantView{{Identity: "p1"}},
	})

	if err := idx.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	q, closeDB, err := OpenQuery(path)
	if err != nil {
		t.Fatalf("OpenQuery: %v", err)
	}
	defer closeDB()
	ctx := context.Background()

	attempts, err := q.RecentAttempts(ctx, 10)
	if err != nil {
		t.Fatalf("RecentAttempts: %v", err)
	}
	if len(attempts) != 3 {
		t.Fatalf("attempts=%d want 3", len(attempts))
	}
	if attempts[0].ID != "a3" || attempts[0].Direction != "" || attempts[0].Step != "BOSS_TICK" {
		t.Fatalf("newest attempt mismatch: %+v", attempts[0])
	}
	if attempts[2].ID != "a1" || attempts[2].Direction != "west" || !attempts[2].Success || attempts[2].Detail != "sig" {
		t.Fatalf("oldest attempt mismatch: %+v", attempts[2])
	}
	if attempts[1].Success || attempts[1].X != 1 || attempts[1].Y != -2 {
		t.Fatalf("claim attempt mismatch: %+v", attempts[1])
	}

	counts, err := q.StepCounts(ctx)
	if err != nil {
		t.Fatalf("StepCounts: %v", err)
	}
	if len(counts) != 3 {
		t.Fatalf("counts=%+v", counts)
	}
	for _, c := range counts {
		if c.Step == "CLAIM" && (c.Successes != 0 || c.Failures != 1) {
			t.Fatalf("claim counts=%+v", c)
		}
	}

	snaps, err := q.Snapshots(ctx)
	if err != nil {
		t.Fatalf("Snapshots: %v", err)
	}
	if len(snaps) != 1 {
		t.Fatalf("snapshots=%d", len(snaps))
	}
	sn := snaps[0]
	if sn.Seq != 4 || sn.OpenDoors != 1 || sn.ActiveJobs != 1 || sn.Occupants != 2 || sn.BossHP != 40 || !sn.BossAlive {
		t.Fatalf("snapshot row mismatch: %+v", sn)
	}

	deltas, err := q.RoomDeltas(ctx, 1, -2, 10)
	if err != nil {
		t.Fatalf("RoomDeltas: %v", err)
	}
	if len(deltas) != 2 {
		t.Fatalf("deltas=%d want 2", len(deltas))
	}
	if len(deltas[0].Left) != 1 || deltas[0].Left[0] != "p1" || len(deltas[0].Joined) != 0 {
		t.Fatalf("newest delta mismatch: %+v", deltas[0])
	}
	if deltas[1].Direction != "west" || deltas[1].Joined[0] != "p1" {
		t.Fatalf("oldest delta mismatch: %+v", deltas[1])
	}

	digest, err := q.TuningDigest(ctx)
	if err != nil || len(digest) != 64 {
		t.Fatalf("TuningDigest=%q err=%v", digest, err)
	}
}

func TestOpenQuery_MissingFile(t *testing.T) {
	if _, _, err := OpenQuery(filepath.Join(t.TempDir(), "missing.db")); err == nil {
		t.Fatalf("expected error for missing index")
	}
}
