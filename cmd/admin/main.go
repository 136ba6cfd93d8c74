package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/spf13/pflag"

	"github.com/kimo-do/SeekerDungeon-sub002/internal/dungeon"
	"github.com/kimo-do/SeekerDungeon-sub002/internal/persistence/snapshot"
)

func main() {
	if len(os.Args) >= 2 {
		switch os.Args[1] {
		case "audit":
			auditCmd(os.Args[2:])
			return
		case "db":
			dbCmd(os.Args[2:])
			return
		case "state":
			stateCmd(os.Args[2:])
			return
		case "refresh":
			refreshCmd(os.Args[2:])
			return
		case "scheduler":
			schedulerCmd(os.Args[2:])
			return
		case "snapshot":
			snapshotCmd(os.Args[2:])
			return
		}
	}
	roomsCmd(os.Args[1:])
}

// roomsCmd lists the stored room snapshots, one header per line.
func roomsCmd(args []string) {
	fs := pflag.NewFlagSet("admin", pflag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	_ = fs.Parse(args)

	headers, err := listRooms(*dataDir)
	if err != nil {
		fmt.Fprintln(os.Stderr, "read:", err)
		os.Exit(1)
	}
	for _, h := range headers {
		printJSON(h)
	}
}

type roomFile struct {
	Path string `json:"path"`
	snapshot.Header
}

func listRooms(dataDir string) ([]roomFile, error) {
	matches, err := filepath.Glob(filepath.Join(dataDir, "rooms", "*.snap.zst"))
	if err != nil {
		return nil, err
	}
	out := make([]roomFile, 0, len(matches))
	for _, p := range matches {
		h, err := snapshot.ReadHeader(p)
		if err != nil {
			fmt.Fprintf(os.Stderr, "skip %s: %v\n", filepath.Base(p), err)
			continue
		}
		out = append(out, roomFile{Path: p, Header: h})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CapturedAt.After(out[j].CapturedAt) })
	return out, nil
}

func snapshotCmd(args []string) {
	fs := pflag.NewFlagSet("snapshot", pflag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	room := fs.String("room", "", "room coordinate x,y")
	path := fs.String("path", "", "snapshot file (overrides --room)")
	headerOnly := fs.Bool("header", false, "print only the header")
	_ = fs.Parse(args)

	p := strings.TrimSpace(*path)
	if p == "" {
		if strings.TrimSpace(*room) == "" {
			fmt.Fprintln(os.Stderr, "missing --room or --path")
			os.Exit(2)
		}
		c, err := parseCoord(*room)
		if err != nil {
			fmt.Fprintln(os.Stderr, "bad --room:", err)
			os.Exit(2)
		}
		p = snapshot.PathFor(*dataDir, c)
	}

	if *headerOnly {
		h, err := snapshot.ReadHeader(p)
		if err != nil {
			fmt.Fprintln(os.Stderr, "read header:", err)
			os.Exit(1)
		}
		printJSON(h)
		return
	}
	snap, err := snapshot.ReadSnapshot(p)
	if err != nil {
		fmt.Fprintln(os.Stderr, "read snapshot:", err)
		os.Exit(1)
	}
	printJSON(snap)
}

func parseCoord(s string) (dungeon.Coord, error) {
	parts := strings.Split(strings.TrimSpace(s), ",")
	if len(parts) != 2 {
		return dungeon.Coord{}, fmt.Errorf("expected x,y")
	}
	var v [2]int8
	for i := range parts {
		n, err := strconv.ParseInt(strings.TrimSpace(parts[i]), 10, 8)
		if err != nil {
			return dungeon.Coord{}, err
		}
		v[i] = int8(n)
	}
	return dungeon.Coord{X: v[0], Y: v[1]}, nil
}

func printJSON(v any) {
	b, _ := json.Marshal(v)
	fmt.Println(string(b))
}
