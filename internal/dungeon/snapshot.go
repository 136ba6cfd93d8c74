package dungeon

import "fmt"

type ActivityKind uint8

const (
	ActivityIdle      ActivityKind = 0
	ActivityDoorJob   ActivityKind = 1
	ActivityBossFight ActivityKind = 2
)

func (k ActivityKind) String() string {
	switch k {
	case ActivityIdle:
		return "idle"
	case ActivityDoorJob:
		return "door_job"
	case ActivityBossFight:
		return "boss_fight"
	default:
		return fmt.Sprintf("activity(%d)", uint8(k))
	}
}

func (k ActivityKind) MarshalText() ([]byte, error) { return []byte(k.String()), nil }

func (k *ActivityKind) UnmarshalText(b []byte) error {
	switch string(b) {
	case "idle":
		*k = ActivityIdle
	case "door_job":
		*k = ActivityDoorJob
	case "boss_fight":
		*k = ActivityBossFight
	default:
		return fmt.Errorf("unknown activity %q", string(b))
	}
	return nil
}

// Activity is Idle, DoorJob(Direction) or BossFight. Direction is only
// meaningful for DoorJob.
type Activity struct {
	Kind      ActivityKind `json:"kind"`
	Direction Direction    `json:"direction,omitempty"`
}

func Idle() Activity                 { return Activity{Kind: ActivityIdle} }
func DoorJob(d Direction) Activity   { return Activity{Kind: ActivityDoorJob, Direction: d} }
func BossFight() Activity            { return Activity{Kind: ActivityBossFight} }
func (a Activity) IsDoorJob() bool   { return a.Kind == ActivityDoorJob }
func (a Activity) IsBossFight() bool { return a.Kind == ActivityBossFight }

func (a Activity) String() string {
	if a.Kind == ActivityDoorJob {
		return "door_job(" + a.Direction.String() + ")"
	}
	return a.Kind.String()
}

type OccupantView struct {
	Identity       string   `json:"identity"`
	DisplayName    string   `json:"display_name,omitempty"`
	SkinID         uint16   `json:"skin_id"`
	EquippedItemID uint16   `json:"equipped_item_id"`
	Activity       Activity `json:"activity"`
}

// RoomSnapshot is the point-in-time view of one room. Doors and door
// occupants are fixed arrays indexed by Direction.
type RoomSnapshot struct {
	Position          Coord             `json:"position"`
	Doors             [4]DoorState      `json:"doors"`
	Center            CenterState       `json:"center"`
	DoorOccupants     [4][]OccupantView `json:"door_occupants"`
	BossOccupants     []OccupantView    `json:"boss_occupants"`
	IdleOccupants     []OccupantView    `json:"idle_occupants"`
	Local             *OccupantView     `json:"local,omitempty"`
	LocalFightingBoss bool              `json:"local_fighting_boss"`
}

func (s RoomSnapshot) Door(d Direction) DoorState { return s.Doors[d] }

// LocalJobDirections lists the doors the local occupant is working on.
func (s RoomSnapshot) LocalJobDirections() []Direction {
	if s.Local == nil || !s.Local.Activity.IsDoorJob() {
		return nil
	}
	return []Direction{s.Local.Activity.Direction}
}

type DoorOccupancyDelta struct {
	Direction Direction      `json:"direction"`
	Joined    []OccupantView `json:"joined"`
	Left      []OccupantView `json:"left"`
}

func (d DoorOccupancyDelta) Empty() bool { return len(d.Joined) == 0 && len(d.Left) == 0 }
