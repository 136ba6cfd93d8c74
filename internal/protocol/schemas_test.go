package protocol_test

import (
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/kimo-do/SeekerDungeon-sub002/internal/dungeon"
	"github.com/kimo-do/SeekerDungeon-sub002/internal/protocol"
)

func compile(t *testing.T, name string) *jsonschema.Schema {
	t.Helper()
	p := filepath.Join("..", "..", "schemas", name)
	s, err := jsonschema.Compile(p)
	if err != nil {
		t.Fatalf("compile %s: %v", name, err)
	}
	return s
}

// asJSON round-trips v through encoding/json so the schema sees exactly
// what goes on the wire.
func asJSON(t *testing.T, v any) any {
	t.Helper()
	b, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var out any
	if err := json.Unmarshal(b, &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	return out
}

func validate(t *testing.T, s *jsonschema.Schema, v any) {
	t.Helper()
	if err := s.Validate(asJSON(t, v)); err != nil {
		t.Fatalf("validate: %v", err)
	}
}

func sampleSnapshot() dungeon.RoomSnapshot {
	var snap dungeon.RoomSnapshot
	snap.Position = dungeon.Coord{X: -1, Y: 4}
	for _, d := range dungeon.Directions {
		snap.Doors[d] = dungeon.DoorState{Direction: d, Wall: dungeon.WallSolid}
	}
	snap.Doors[dungeon.South] = dungeon.DoorState{
		Direction: dungeon.South, Wall: dungeon.WallRubble,
		HelperCount: 1, Progress: 10, RequiredProgress: 100, StartSlot: 1000, StakedAmount: 1,
	}
	snap.Center = dungeon.CenterState{Kind: dungeon.CenterBoss, Boss: &dungeon.BossState{MonsterID: 2, HP: 5, MaxHP: 9, FighterCount: 1}}
	snap.DoorOccupants[dungeon.South] = []dungeon.OccupantView{
		{Identity: "p1", DisplayName: "Pat", SkinID: 3, Activity: dungeon.DoorJob(dungeon.South)},
	}
	snap.BossOccupants = []dungeon.OccupantView{{Identity: "p2", Activity: dungeon.BossFight()}}
	snap.Local = &dungeon.OccupantView{Identity: "me", Activity: dungeon.Idle()}
	return snap
}

func TestSchemas_ValidateClientMessages(t *testing.T) {
	validate(t, compile(t, "hello.schema.json"), protocol.HelloMsg{
		Type:            protocol.TypeHello,
		ProtocolVersion: protocol.Version,
		ClientName:      "viewer",
		Capabilities:    protocol.HelloCapabilities{Deltas: true},
	})
	validate(t, compile(t, "refresh.schema.json"), protocol.RefreshMsg{
		Type:            protocol.TypeRefresh,
		ProtocolVersion: protocol.Version,
	})
}

func TestSchemas_ValidateServerMessages(t *testing.T) {
	room := dungeon.Coord{X: -1, Y: 4}
	validate(t, compile(t, "welcome.schema.json"), protocol.NewWelcome("s1", "actor", &room, true))
	validate(t, compile(t, "welcome.schema.json"), protocol.NewWelcome("s2", "", nil, false))

	snapSchema := compile(t, "room_snapshot.schema.json")
	validate(t, snapSchema, protocol.NewRoomSnapshot(1, sampleSnapshot()))

	// Zero-value occupant lists go out as null and must still validate.
	empty := dungeon.RoomSnapshot{}
	for _, d := range dungeon.Directions {
		empty.Doors[d].Direction = d
	}
	validate(t, snapSchema, protocol.NewRoomSnapshot(2, empty))

	deltaSchema := compile(t, "door_delta.schema.json")
	validate(t, deltaSchema, protocol.NewDoorDelta(3, room, dungeon.DoorOccupancyDelta{
		Direction: dungeon.West,
		Joined:    []dungeon.OccupantView{{Identity: "p9", Activity: dungeon.DoorJob(dungeon.West)}},
	}))

	validate(t, compile(t, "loading_released.schema.json"), protocol.NewLoadingReleased())
	validate(t, compile(t, "error.schema.json"), protocol.NewError(protocol.ErrRefreshFailed, "relay down"))
}

func TestSchemas_RejectMalformed(t *testing.T) {
	hello := compile(t, "hello.schema.json")
	var bad any
	_ = json.Unmarshal([]byte(`{"type":"HELLO","protocol_version":"1.0","client_name":""}`), &bad)
	if err := hello.Validate(bad); err == nil {
		t.Fatalf("expected empty client_name rejected")
	}

	snap := asJSON(t, protocol.NewRoomSnapshot(1, sampleSnapshot())).(map[string]any)
	doors := snap["snapshot"].(map[string]any)["doors"].([]any)
	snap["snapshot"].(map[string]any)["doors"] = doors[:3]
	if err := compile(t, "room_snapshot.schema.json").Validate(snap); err == nil {
		t.Fatalf("expected 3-door snapshot rejected")
	}
}

func TestDecodeBase(t *testing.T) {
	m, err := protocol.DecodeBase([]byte(`{"type":"REFRESH","protocol_version":"1.0"}`))
	if err != nil {
		t.Fatalf("DecodeBase: %v", err)
	}
	if m.Type != protocol.TypeRefresh || m.ProtocolVersion != protocol.Version {
		t.Fatalf("unexpected base: %+v", m)
	}
}

func TestNewDoorDelta_NeverNullLists(t *testing.T) {
	m := protocol.NewDoorDelta(1, dungeon.Coord{}, dungeon.DoorOccupancyDelta{Direction: dungeon.North})
	b, _ := json.Marshal(m)
	var raw map[string]any
	_ = json.Unmarshal(b, &raw)
	if _, ok := raw["joined"].([]any); !ok {
		t.Fatalf("joined should be an array: %s", b)
	}
	if _, ok := raw["left"].([]any); !ok {
		t.Fatalf("left should be an array: %s", b)
	}
}
