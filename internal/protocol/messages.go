package protocol

import "github.com/kimo-do/SeekerDungeon-sub002/internal/dungeon"

// HELLO (client -> server)
type HelloMsg struct {
	Type            string            `json:"type"`
	ProtocolVersion string            `json:"protocol_version"`
	ClientName      string            `json:"client_name"`
	Capabilities    HelloCapabilities `json:"capabilities,omitempty"`
}

type HelloCapabilities struct {
	// Deltas false means the client only wants full snapshots.
	Deltas bool `json:"deltas,omitempty"`
}

// REFRESH (client -> server) asks for an immediate re-fetch of the current
// room.
type RefreshMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
}

// WELCOME (server -> client)
type WelcomeMsg struct {
	Type            string         `json:"type"`
	ProtocolVersion string         `json:"protocol_version"`
	SessionID       string         `json:"session_id"`
	Actor           string         `json:"actor,omitempty"`
	Room            *dungeon.Coord `json:"room,omitempty"`
	LoadingHeld     bool           `json:"loading_held"`
}

type RoomSnapshotMsg struct {
	Type            string               `json:"type"`
	ProtocolVersion string               `json:"protocol_version"`
	Seq             uint64               `json:"seq"`
	Snapshot        dungeon.RoomSnapshot `json:"snapshot"`
}

type DoorDeltaMsg struct {
	Type            string                 `json:"type"`
	ProtocolVersion string                 `json:"protocol_version"`
	Seq             uint64                 `json:"seq"`
	Room            dungeon.Coord          `json:"room"`
	Direction       dungeon.Direction      `json:"direction"`
	Joined          []dungeon.OccupantView `json:"joined"`
	Left            []dungeon.OccupantView `json:"left"`
}

type LoadingReleasedMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
}

type ErrorMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	Code            string `json:"code"`
	Message         string `json:"message"`
}

func NewWelcome(sessionID, actor string, room *dungeon.Coord, held bool) WelcomeMsg {
	return WelcomeMsg{Type: TypeWelcome, ProtocolVersion: Version, SessionID: sessionID, Actor: actor, Room: room, LoadingHeld: held}
}

func NewRoomSnapshot(seq uint64, snap dungeon.RoomSnapshot) RoomSnapshotMsg {
	return RoomSnapshotMsg{Type: TypeRoomSnapshot, ProtocolVersion: Version, Seq: seq, Snapshot: snap}
}

func NewDoorDelta(seq uint64, room dungeon.Coord, d dungeon.DoorOccupancyDelta) DoorDeltaMsg {
	m := DoorDeltaMsg{
		Type:            TypeDoorDelta,
		ProtocolVersion: Version,
		Seq:             seq,
		Room:            room,
		Direction:       d.Direction,
		Joined:          d.Joined,
		Left:            d.Left,
	}
	if m.Joined == nil {
		m.Joined = []dungeon.OccupantView{}
	}
	if m.Left == nil {
		m.Left = []dungeon.OccupantView{}
	}
	return m
}

func NewLoadingReleased() LoadingReleasedMsg {
	return LoadingReleasedMsg{Type: TypeLoadingReleased, ProtocolVersion: Version}
}

func NewError(code, message string) ErrorMsg {
	return ErrorMsg{Type: TypeError, ProtocolVersion: Version, Code: code, Message: message}
}
