// Package dungeon holds the value types shared by the snapshot builder,
// the scheduler and the presentation feed.
package dungeon

import (
	"fmt"
	"strings"
)

// Direction indexes the four doors of a room in ledger order.
type Direction uint8

const (
	North Direction = 0
	South Direction = 1
	East  Direction = 2
	West  Direction = 3
)

// Directions lists every door in ordinal order. Iterating it gives the
// North < South < East < West tie-break order.
var Directions = [4]Direction{North, South, East, West}

func (d Direction) Valid() bool { return d <= West }

func (d Direction) String() string {
	switch d {
	case North:
		return "north"
	case South:
		return "south"
	case East:
		return "east"
	case West:
		return "west"
	default:
		return fmt.Sprintf("direction(%d)", uint8(d))
	}
}

func (d Direction) MarshalText() ([]byte, error) {
	if !d.Valid() {
		return nil, fmt.Errorf("invalid direction %d", uint8(d))
	}
	return []byte(d.String()), nil
}

func (d *Direction) UnmarshalText(b []byte) error {
	v, err := ParseDirection(string(b))
	if err != nil {
		return err
	}
	*d = v
	return nil
}

// ParseDirection accepts full names and single-letter abbreviations.
func ParseDirection(s string) (Direction, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "north", "n":
		return North, nil
	case "south", "s":
		return South, nil
	case "east", "e":
		return East, nil
	case "west", "w":
		return West, nil
	}
	return 0, fmt.Errorf("unknown direction %q", s)
}

type WallState uint8

const (
	WallSolid  WallState = 0
	WallRubble WallState = 1
	WallOpen   WallState = 2
)

func (w WallState) String() string {
	switch w {
	case WallSolid:
		return "solid"
	case WallRubble:
		return "rubble"
	case WallOpen:
		return "open"
	default:
		return fmt.Sprintf("wall(%d)", uint8(w))
	}
}

func (w WallState) MarshalText() ([]byte, error) { return []byte(w.String()), nil }

func (w *WallState) UnmarshalText(b []byte) error {
	switch string(b) {
	case "solid":
		*w = WallSolid
	case "rubble":
		*w = WallRubble
	case "open":
		*w = WallOpen
	default:
		return fmt.Errorf("unknown wall state %q", string(b))
	}
	return nil
}

// Coord addresses a room on the ledger grid.
type Coord struct {
	X int8 `json:"x"`
	Y int8 `json:"y"`
}

func (c Coord) String() string { return fmt.Sprintf("(%d,%d)", c.X, c.Y) }

// DoorState is one door of a room as last read from the ledger.
type DoorState struct {
	Direction        Direction `json:"direction"`
	Wall             WallState `json:"wall"`
	HelperCount      uint32    `json:"helper_count"`
	Progress         uint64    `json:"progress"`
	RequiredProgress uint64    `json:"required_progress"`
	StartSlot        uint64    `json:"start_slot"`
	StakedAmount     uint64    `json:"staked_amount"`
	Completed        bool      `json:"completed"`
}

// HasActiveJob reports whether the door carries a rubble job that can be
// estimated. Zero helpers, zero required progress and zero start slot all
// mean "no job".
func (d DoorState) HasActiveJob() bool {
	return d.Wall == WallRubble && d.HelperCount > 0 && d.RequiredProgress > 0 && d.StartSlot > 0
}

// Claimable reports whether only the reward claim is left for this door.
func (d DoorState) Claimable() bool {
	return d.Completed || d.Wall == WallOpen
}

type CenterKind uint8

const (
	CenterEmpty CenterKind = 0
	CenterChest CenterKind = 1
	CenterBoss  CenterKind = 2
)

func (k CenterKind) String() string {
	switch k {
	case CenterEmpty:
		return "empty"
	case CenterChest:
		return "chest"
	case CenterBoss:
		return "boss"
	default:
		return fmt.Sprintf("center(%d)", uint8(k))
	}
}

func (k CenterKind) MarshalText() ([]byte, error) { return []byte(k.String()), nil }

func (k *CenterKind) UnmarshalText(b []byte) error {
	switch string(b) {
	case "empty":
		*k = CenterEmpty
	case "chest":
		*k = CenterChest
	case "boss":
		*k = CenterBoss
	default:
		return fmt.Errorf("unknown center kind %q", string(b))
	}
	return nil
}

type BossState struct {
	MonsterID    uint16 `json:"monster_id"`
	HP           uint64 `json:"hp"`
	MaxHP        uint64 `json:"max_hp"`
	Defeated     bool   `json:"defeated"`
	FighterCount uint32 `json:"fighter_count"`
}

type CenterState struct {
	Kind        CenterKind `json:"kind"`
	LootedCount uint32     `json:"looted_count,omitempty"`
	Boss        *BossState `json:"boss,omitempty"`
}

// LiveBoss returns the boss when one is present and still standing.
func (c CenterState) LiveBoss() (BossState, bool) {
	if c.Kind != CenterBoss || c.Boss == nil || c.Boss.Defeated {
		return BossState{}, false
	}
	return *c.Boss, true
}
