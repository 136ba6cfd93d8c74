package ledger

import "github.com/kimo-do/SeekerDungeon-sub002/internal/dungeon"

// Byte values used by the ledger program for presence activity.
const (
	ActivityIdle      uint8 = 0
	ActivityDoorJob   uint8 = 1
	ActivityBossFight uint8 = 2

	// NoDirection marks a presence that is not bound to a door.
	NoDirection uint8 = 255
)

type GlobalState struct {
	SeasonSeed uint64 `json:"season_seed"`
	Depth      uint32 `json:"depth"`
	Paused     bool   `json:"paused"`
}

type ActiveJob struct {
	RoomX     int8  `json:"room_x"`
	RoomY     int8  `json:"room_y"`
	Direction uint8 `json:"direction"`
}

func (j ActiveJob) Room() dungeon.Coord { return dungeon.Coord{X: j.RoomX, Y: j.RoomY} }

type PlayerAccount struct {
	Owner         string      `json:"owner"`
	CurrentRoomX  int8        `json:"current_room_x"`
	CurrentRoomY  int8        `json:"current_room_y"`
	ActiveJobs    []ActiveJob `json:"active_jobs"`
	JobsCompleted uint32      `json:"jobs_completed"`
}

func (p PlayerAccount) Room() dungeon.Coord {
	return dungeon.Coord{X: p.CurrentRoomX, Y: p.CurrentRoomY}
}

// RoomAccount is the decoded room record. Per-door arrays are indexed by
// dungeon.Direction; short arrays read as zero.
type RoomAccount struct {
	X            int8     `json:"x"`
	Y            int8     `json:"y"`
	SeasonSeed   uint64   `json:"season_seed"`
	Walls        []uint8  `json:"walls"`
	HelperCounts []uint32 `json:"helper_counts"`
	Progress     []uint64 `json:"progress"`
	StartSlot    []uint64 `json:"start_slot"`
	BaseSlots    []uint64 `json:"base_slots"`
	TotalStaked  []uint64 `json:"total_staked"`
	JobCompleted []bool   `json:"job_completed"`

	CenterType       uint8  `json:"center_type"`
	CenterID         uint16 `json:"center_id"`
	LootedCount      uint32 `json:"looted_count"`
	BossMaxHP        uint64 `json:"boss_max_hp"`
	BossCurrentHP    uint64 `json:"boss_current_hp"`
	BossDefeated     bool   `json:"boss_defeated"`
	BossFighterCount uint32 `json:"boss_fighter_count"`
}

func (r *RoomAccount) Coord() dungeon.Coord { return dungeon.Coord{X: r.X, Y: r.Y} }

// Door maps one direction of the raw arrays onto a DoorState. A completed
// job always reads as an open wall.
func (r *RoomAccount) Door(d dungeon.Direction) dungeon.DoorState {
	i := int(d)
	door := dungeon.DoorState{
		Direction:        d,
		Wall:             dungeon.WallState(at(r.Walls, i)),
		HelperCount:      at(r.HelperCounts, i),
		Progress:         at(r.Progress, i),
		RequiredProgress: at(r.BaseSlots, i),
		StartSlot:        at(r.StartSlot, i),
		StakedAmount:     at(r.TotalStaked, i),
		Completed:        at(r.JobCompleted, i),
	}
	if door.Wall > dungeon.WallOpen {
		door.Wall = dungeon.WallSolid
	}
	if door.Completed {
		door.Wall = dungeon.WallOpen
	}
	return door
}

func (r *RoomAccount) Center() dungeon.CenterState {
	switch dungeon.CenterKind(r.CenterType) {
	case dungeon.CenterChest:
		return dungeon.CenterState{Kind: dungeon.CenterChest, LootedCount: r.LootedCount}
	case dungeon.CenterBoss:
		return dungeon.CenterState{
			Kind: dungeon.CenterBoss,
			Boss: &dungeon.BossState{
				MonsterID:    r.CenterID,
				HP:           r.BossCurrentHP,
				MaxHP:        r.BossMaxHP,
				Defeated:     r.BossDefeated,
				FighterCount: r.BossFighterCount,
			},
		}
	default:
		return dungeon.CenterState{Kind: dungeon.CenterEmpty}
	}
}

// RoomPresence is one occupant record of a room.
type RoomPresence struct {
	Player            string `json:"player"`
	DisplayName       string `json:"display_name"`
	SkinID            uint16 `json:"skin_id"`
	EquippedItemID    uint16 `json:"equipped_item_id"`
	Activity          uint8  `json:"activity"`
	ActivityDirection uint8  `json:"activity_direction"`
	IsCurrent         bool   `json:"is_current"`
}

// View classifies the presence into exactly one activity. A door job with
// an out-of-range direction falls back to idle.
func (p RoomPresence) View() dungeon.OccupantView {
	v := dungeon.OccupantView{
		Identity:       p.Player,
		DisplayName:    p.DisplayName,
		SkinID:         p.SkinID,
		EquippedItemID: p.EquippedItemID,
		Activity:       dungeon.Idle(),
	}
	switch p.Activity {
	case ActivityBossFight:
		v.Activity = dungeon.BossFight()
	case ActivityDoorJob:
		if d := dungeon.Direction(p.ActivityDirection); d.Valid() {
			v.Activity = dungeon.DoorJob(d)
		}
	}
	return v
}

func at[T any](s []T, i int) T {
	var zero T
	if i < 0 || i >= len(s) {
		return zero
	}
	return s[i]
}
