// Command watch connects to an autocompleter feed and prints room snapshots
// and door occupancy deltas as they arrive.
package main

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/spf13/pflag"

	"github.com/kimo-do/SeekerDungeon-sub002/internal/dungeon"
	"github.com/kimo-do/SeekerDungeon-sub002/internal/protocol"
)

func main() {
	fs := pflag.NewFlagSet("watch", pflag.ExitOnError)
	var (
		url          = fs.String("url", "ws://127.0.0.1:8081/v1/feed", "feed websocket url")
		name         = fs.String("name", "watch", "client name sent in HELLO")
		deltas       = fs.Bool("deltas", true, "request door occupancy deltas")
		refreshEvery = fs.Duration("refresh-every", 0, "send REFRESH on this interval (0 disables)")
		raw          = fs.Bool("raw", false, "print raw messages")
	)
	_ = fs.Parse(os.Args[1:])

	logger := log.New(os.Stdout, "[watch] ", log.LstdFlags|log.Lmicroseconds)
	conn, _, err := websocket.DefaultDialer.Dial(*url, nil)
	if err != nil {
		logger.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	hello := protocol.HelloMsg{
		Type:            protocol.TypeHello,
		ProtocolVersion: protocol.Version,
		ClientName:      *name,
		Capabilities:    protocol.HelloCapabilities{Deltas: *deltas},
	}
	if err := conn.WriteJSON(hello); err != nil {
		logger.Fatalf("send HELLO: %v", err)
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt)
	go func() {
		<-stop
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"), time.Now().Add(time.Second))
		_ = conn.Close()
	}()

	if *refreshEvery > 0 {
		// gorilla allows one concurrent writer; the reader loop never writes.
		go func() {
			t := time.NewTicker(*refreshEvery)
			defer t.Stop()
			for range t.C {
				req := protocol.RefreshMsg{Type: protocol.TypeRefresh, ProtocolVersion: protocol.Version}
				if err := conn.WriteJSON(req); err != nil {
					return
				}
			}
		}()
	}

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return
		}
		if *raw {
			logger.Printf("%s", msg)
			continue
		}
		if line := describe(msg); line != "" {
			logger.Print(line)
		}
	}
}

// describe renders one feed message as a log line. Unknown or malformed
// messages render as "".
func describe(msg []byte) string {
	base, err := protocol.DecodeBase(msg)
	if err != nil {
		return ""
	}
	switch base.Type {
	case protocol.TypeWelcome:
		var w protocol.WelcomeMsg
		if err := json.Unmarshal(msg, &w); err != nil {
			return ""
		}
		room := "none"
		if w.Room != nil {
			room = w.Room.String()
		}
		return fmt.Sprintf("WELCOME session=%s actor=%s room=%s loading_held=%v", w.SessionID, w.Actor, room, w.LoadingHeld)

	case protocol.TypeRoomSnapshot:
		var m protocol.RoomSnapshotMsg
		if err := json.Unmarshal(msg, &m); err != nil {
			return ""
		}
		return fmt.Sprintf("SNAPSHOT seq=%d %s", m.Seq, describeSnapshot(m.Snapshot))

	case protocol.TypeDoorDelta:
		var m protocol.DoorDeltaMsg
		if err := json.Unmarshal(msg, &m); err != nil {
			return ""
		}
		return fmt.Sprintf("DELTA seq=%d room=%s door=%s joined=[%s] left=[%s]",
			m.Seq, m.Room, m.Direction, names(m.Joined), names(m.Left))

	case protocol.TypeLoadingReleased:
		return "LOADING_RELEASED"

	case protocol.TypeError:
		var e protocol.ErrorMsg
		if err := json.Unmarshal(msg, &e); err != nil {
			return ""
		}
		return fmt.Sprintf("ERROR %s: %s", e.Code, e.Message)
	}
	return ""
}

func describeSnapshot(s dungeon.RoomSnapshot) string {
	var b strings.Builder
	fmt.Fprintf(&b, "room=%s", s.Position)
	for _, d := range dungeon.Directions {
		door := s.Doors[d]
		fmt.Fprintf(&b, " %s=%s", d, door.Wall)
		if door.HasActiveJob() {
			fmt.Fprintf(&b, "(%d/%d,h%d)", door.Progress, door.RequiredProgress, door.HelperCount)
		}
		if n := len(s.DoorOccupants[d]); n > 0 {
			fmt.Fprintf(&b, "[%d]", n)
		}
	}
	switch s.Center.Kind {
	case dungeon.CenterBoss:
		if boss, ok := s.Center.LiveBoss(); ok {
			fmt.Fprintf(&b, " boss=%d/%d fighters=%d", boss.HP, boss.MaxHP, boss.FighterCount)
		} else {
			b.WriteString(" boss=defeated")
		}
	case dungeon.CenterChest:
		fmt.Fprintf(&b, " chest looted=%d", s.Center.LootedCount)
	}
	if len(s.IdleOccupants) > 0 {
		fmt.Fprintf(&b, " idle=%d", len(s.IdleOccupants))
	}
	if s.Local != nil {
		fmt.Fprintf(&b, " local=%s", s.Local.Activity)
	}
	return b.String()
}

func names(list []dungeon.OccupantView) string {
	out := make([]string, 0, len(list))
	for _, o := range list {
		n := o.DisplayName
		if n == "" {
			n = o.Identity
		}
		out = append(out, n)
	}
	return strings.Join(out, ",")
}
