package main

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kimo-do/SeekerDungeon-sub002/internal/dungeon"
	"github.com/kimo-do/SeekerDungeon-sub002/internal/protocol"
)

func mustJSON(t *testing.T, v any) []byte {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return b
}

func TestDescribe_Snapshot(t *testing.T) {
	var s dungeon.RoomSnapshot
	s.Position = dungeon.Coord{X: 1, Y: -1}
	for _, d := range dungeon.Directions {
		s.Doors[d] = dungeon.DoorState{Direction: d, Wall: dungeon.WallSolid}
	}
	s.Doors[dungeon.East] = dungeon.DoorState{
		Direction: dungeon.East, Wall: dungeon.WallRubble,
		HelperCount: 2, Progress: 30, RequiredProgress: 90, StartSlot: 7,
	}
	s.DoorOccupants[dungeon.East] = []dungeon.OccupantView{{Identity: "a"}, {Identity: "b"}}
	s.Center = dungeon.CenterState{Kind: dungeon.CenterBoss, Boss: &dungeon.BossState{HP: 4, MaxHP: 10, FighterCount: 3}}
	s.Local = &dungeon.OccupantView{Identity: "me", Activity: dungeon.BossFight()}

	line := describe(mustJSON(t, protocol.NewRoomSnapshot(5, s)))
	assert.Equal(t, "SNAPSHOT seq=5 room=(1,-1) north=solid south=solid east=rubble(30/90,h2)[2] west=solid boss=4/10 fighters=3 local=boss_fight", line)
}

func TestDescribe_DefeatedBossAndChest(t *testing.T) {
	s := dungeon.RoomSnapshot{Center: dungeon.CenterState{Kind: dungeon.CenterBoss, Boss: &dungeon.BossState{Defeated: true}}}
	assert.Contains(t, describeSnapshot(s), " boss=defeated")

	s = dungeon.RoomSnapshot{Center: dungeon.CenterState{Kind: dungeon.CenterChest, LootedCount: 2}}
	assert.Contains(t, describeSnapshot(s), " chest looted=2")
}

func TestDescribe_DeltaAndControl(t *testing.T) {
	delta := protocol.NewDoorDelta(9, dungeon.Coord{X: 0, Y: 2}, dungeon.DoorOccupancyDelta{
		Direction: dungeon.West,
		Joined:    []dungeon.OccupantView{{Identity: "p1", DisplayName: "Pat"}, {Identity: "p2"}},
	})
	assert.Equal(t, "DELTA seq=9 room=(0,2) door=west joined=[Pat,p2] left=[]", describe(mustJSON(t, delta)))

	room := dungeon.Coord{X: 3, Y: 3}
	assert.Equal(t, "WELCOME session=F1 actor=me room=(3,3) loading_held=true",
		describe(mustJSON(t, protocol.NewWelcome("F1", "me", &room, true))))
	assert.Equal(t, "LOADING_RELEASED", describe(mustJSON(t, protocol.NewLoadingReleased())))
	assert.Equal(t, "ERROR E_RATE_LIMIT: slow down",
		describe(mustJSON(t, protocol.NewError(protocol.ErrRateLimit, "slow down"))))

	assert.Equal(t, "", describe([]byte(`{"type":"SOMETHING_ELSE"}`)))
	assert.Equal(t, "", describe([]byte(`not json`)))
}
