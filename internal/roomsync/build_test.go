package roomsync

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kimo-do/SeekerDungeon-sub002/internal/dungeon"
	"github.com/kimo-do/SeekerDungeon-sub002/internal/ledger"
)

func testRoom() *ledger.RoomAccount {
	return &ledger.RoomAccount{
		X: 1, Y: -2,
		Walls:         []uint8{0, 2, 1, 0},
		HelperCounts:  []uint32{0, 0, 2, 0},
		BaseSlots:     []uint64{0, 0, 100, 0},
		StartSlot:     []uint64{0, 0, 1000, 0},
		CenterType:    2,
		CenterID:      4,
		BossMaxHP:     500,
		BossCurrentHP: 320,
	}
}

func worker(id string, dir dungeon.Direction) ledger.RoomPresence {
	return ledger.RoomPresence{Player: id, Activity: ledger.ActivityDoorJob, ActivityDirection: uint8(dir)}
}

func ids(list []dungeon.OccupantView) []string {
	out := make([]string, 0, len(list))
	for _, v := range list {
		out = append(out, v.Identity)
	}
	return out
}

func TestBuild_DoorsTotalAndCenter(t *testing.T) {
	snap, deltas := Build(testRoom(), nil, DoorOccupants{}, BuildOptions{})
	assert.Empty(t, deltas)
	assert.Equal(t, dungeon.Coord{X: 1, Y: -2}, snap.Position)
	for _, d := range dungeon.Directions {
		assert.Equal(t, d, snap.Doors[d].Direction)
	}
	assert.Equal(t, dungeon.WallRubble, snap.Doors[dungeon.East].Wall)
	assert.Equal(t, dungeon.WallOpen, snap.Doors[dungeon.South].Wall)
	boss, ok := snap.Center.LiveBoss()
	require.True(t, ok)
	assert.Equal(t, uint64(320), boss.HP)
}

func TestBuild_BucketsEachOccupantOnce(t *testing.T) {
	occ := []ledger.RoomPresence{
		worker("A", dungeon.East),
		{Player: "B", Activity: ledger.ActivityBossFight, ActivityDirection: ledger.NoDirection},
		{Player: "C", Activity: ledger.ActivityIdle, ActivityDirection: ledger.NoDirection},
		{Player: "D", Activity: ledger.ActivityDoorJob, ActivityDirection: 9},
		worker("E", dungeon.North),
	}
	snap, _ := Build(testRoom(), occ, DoorOccupants{}, BuildOptions{})
	assert.Equal(t, []string{"A"}, ids(snap.DoorOccupants[dungeon.East]))
	assert.Equal(t, []string{"E"}, ids(snap.DoorOccupants[dungeon.North]))
	assert.Equal(t, []string{"B"}, ids(snap.BossOccupants))
	assert.Equal(t, []string{"C", "D"}, ids(snap.IdleOccupants))
	assert.Nil(t, snap.Local)
}

func TestBuild_LocalActorRoutedOut(t *testing.T) {
	occ := []ledger.RoomPresence{
		{Player: "me", Activity: ledger.ActivityBossFight, ActivityDirection: ledger.NoDirection},
		{Player: "B", Activity: ledger.ActivityBossFight, ActivityDirection: ledger.NoDirection},
	}
	snap, _ := Build(testRoom(), occ, DoorOccupants{}, BuildOptions{LocalIdentity: "me"})
	require.NotNil(t, snap.Local)
	assert.Equal(t, "me", snap.Local.Identity)
	assert.True(t, snap.LocalFightingBoss)
	assert.Equal(t, []string{"B"}, ids(snap.BossOccupants))
}

func TestBuild_DeltaJoinedAndLeft(t *testing.T) {
	var prev DoorOccupants
	prev[dungeon.East] = []dungeon.OccupantView{{Identity: "A"}, {Identity: "B"}}
	occ := []ledger.RoomPresence{worker("B", dungeon.East), worker("C", dungeon.East)}

	_, deltas := Build(testRoom(), occ, prev, BuildOptions{})
	require.Len(t, deltas, 1)
	assert.Equal(t, dungeon.East, deltas[0].Direction)
	assert.Equal(t, []string{"C"}, ids(deltas[0].Joined))
	assert.Equal(t, []string{"A"}, ids(deltas[0].Left))
}

func TestBuild_DoesNotMutatePrevious(t *testing.T) {
	var prev DoorOccupants
	prev[dungeon.East] = []dungeon.OccupantView{{Identity: "A"}}
	before := prev.clone()
	Build(testRoom(), []ledger.RoomPresence{worker("Z", dungeon.East)}, prev, BuildOptions{})
	assert.Equal(t, before, prev)
}

func TestBuild_Deterministic(t *testing.T) {
	occ := []ledger.RoomPresence{worker("A", dungeon.East), worker("B", dungeon.West)}
	var prev DoorOccupants
	prev[dungeon.West] = []dungeon.OccupantView{{Identity: "Q"}}
	s1, d1 := Build(testRoom(), occ, prev, BuildOptions{})
	s2, d2 := Build(testRoom(), occ, prev, BuildOptions{})
	assert.Equal(t, s1, s2)
	assert.Equal(t, d1, d2)
}

func TestDiff_SetProperties(t *testing.T) {
	mk := func(idents ...string) []dungeon.OccupantView {
		out := make([]dungeon.OccupantView, 0, len(idents))
		for _, id := range idents {
			out = append(out, dungeon.OccupantView{Identity: id})
		}
		return out
	}
	cases := []struct {
		prev, cur    []dungeon.OccupantView
		joined, left []string
	}{
		{mk(), mk(), nil, nil},
		{mk("A"), mk("A"), nil, nil},
		{mk(), mk("A", "B"), []string{"A", "B"}, nil},
		{mk("A", "B"), mk(), nil, []string{"A", "B"}},
		{mk("A", "B"), mk("B", "C"), []string{"C"}, []string{"A"}},
		{mk("A", "A", ""), mk("", "B", "B"), []string{"B"}, []string{"A"}},
	}
	for _, c := range cases {
		d := Diff(dungeon.North, c.prev, c.cur)
		joined, left := ids(d.Joined), ids(d.Left)
		if len(c.joined) == 0 {
			assert.Empty(t, joined)
		} else {
			assert.Equal(t, c.joined, joined)
		}
		if len(c.left) == 0 {
			assert.Empty(t, left)
		} else {
			assert.Equal(t, c.left, left)
		}
		for _, j := range joined {
			assert.NotContains(t, left, j)
		}
		assert.Equal(t, len(c.joined) == 0 && len(c.left) == 0, d.Empty())
	}
}
