// Package roomsync turns raw room accounts into snapshots and per-door
// occupant deltas, and keeps the previous occupant sets between refreshes.
package roomsync

import (
	"github.com/kimo-do/SeekerDungeon-sub002/internal/dungeon"
	"github.com/kimo-do/SeekerDungeon-sub002/internal/ledger"
)

// DoorOccupants is the occupant list of every door, indexed by direction.
type DoorOccupants [4][]dungeon.OccupantView

type BuildOptions struct {
	// LocalIdentity is pulled out of the buckets into RoomSnapshot.Local.
	LocalIdentity string
}

// Build converts one room read into a snapshot and the deltas against prev.
// It is deterministic and never writes to prev.
func Build(room *ledger.RoomAccount, occupants []ledger.RoomPresence, prev DoorOccupants, opts BuildOptions) (dungeon.RoomSnapshot, []dungeon.DoorOccupancyDelta) {
	snap := dungeon.RoomSnapshot{
		Position: room.Coord(),
		Center:   room.Center(),
	}
	for _, d := range dungeon.Directions {
		snap.Doors[d] = room.Door(d)
	}

	for _, p := range occupants {
		v := p.View()
		if opts.LocalIdentity != "" && v.Identity == opts.LocalIdentity {
			local := v
			snap.Local = &local
			snap.LocalFightingBoss = v.Activity.IsBossFight()
			continue
		}
		switch v.Activity.Kind {
		case dungeon.ActivityBossFight:
			snap.BossOccupants = append(snap.BossOccupants, v)
		case dungeon.ActivityDoorJob:
			snap.DoorOccupants[v.Activity.Direction] = append(snap.DoorOccupants[v.Activity.Direction], v)
		default:
			snap.IdleOccupants = append(snap.IdleOccupants, v)
		}
	}

	var deltas []dungeon.DoorOccupancyDelta
	for _, d := range dungeon.Directions {
		delta := Diff(d, prev[d], snap.DoorOccupants[d])
		if !delta.Empty() {
			deltas = append(deltas, delta)
		}
	}
	return snap, deltas
}

// Diff computes joined = cur \ prev and left = prev \ cur by identity.
// Blank identities are ignored and repeated identities count once.
func Diff(dir dungeon.Direction, prev, cur []dungeon.OccupantView) dungeon.DoorOccupancyDelta {
	before := index(prev)
	after := index(cur)
	delta := dungeon.DoorOccupancyDelta{Direction: dir}
	seen := make(map[string]struct{}, len(cur))
	for _, v := range cur {
		if _, dup := seen[v.Identity]; v.Identity == "" || dup {
			continue
		}
		seen[v.Identity] = struct{}{}
		if _, ok := before[v.Identity]; !ok {
			delta.Joined = append(delta.Joined, v)
		}
	}
	clear(seen)
	for _, v := range prev {
		if _, dup := seen[v.Identity]; v.Identity == "" || dup {
			continue
		}
		seen[v.Identity] = struct{}{}
		if _, ok := after[v.Identity]; !ok {
			delta.Left = append(delta.Left, v)
		}
	}
	return delta
}

func index(list []dungeon.OccupantView) map[string]struct{} {
	m := make(map[string]struct{}, len(list))
	for _, v := range list {
		if v.Identity != "" {
			m[v.Identity] = struct{}{}
		}
	}
	return m
}

// clone copies the door lists so the caller's state never aliases a
// snapshot handed to observers.
func (o DoorOccupants) clone() DoorOccupants {
	var out DoorOccupants
	for i := range o {
		if o[i] != nil {
			out[i] = append([]dungeon.OccupantView(nil), o[i]...)
		}
	}
	return out
}
