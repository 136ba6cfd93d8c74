package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/pflag"

	"github.com/kimo-do/SeekerDungeon-sub002/internal/persistence/indexdb"
)

func dbCmd(args []string) {
	fs := pflag.NewFlagSet("db", pflag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	dbPath := fs.String("db", "", "sqlite db path (optional)")
	limit := fs.Int("limit", 20, "result limit")
	room := fs.String("room", "", "room coordinate x,y (deltas)")
	_ = fs.Parse(args)

	q := "attempts"
	if fs.NArg() > 0 {
		q = strings.TrimSpace(fs.Arg(0))
	}

	path := strings.TrimSpace(*dbPath)
	if path == "" {
		path = filepath.Join(*dataDir, "index", "autocompleter.sqlite")
	}

	idx, closeDB, err := indexdb.OpenQuery(path)
	if err != nil {
		fmt.Fprintln(os.Stderr, "open:", err)
		os.Exit(1)
	}
	defer closeDB()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := runQuery(ctx, idx, q, *limit, *room); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runQuery(ctx context.Context, idx indexdb.Query, q string, limit int, room string) error {
	if limit <= 0 {
		limit = 20
	}
	switch q {
	case "attempts":
		rows, err := idx.RecentAttempts(ctx, limit)
		if err != nil {
			return fmt.Errorf("query: %w", err)
		}
		for _, r := range rows {
			printJSON(r)
		}

	case "steps":
		rows, err := idx.StepCounts(ctx)
		if err != nil {
			return fmt.Errorf("query: %w", err)
		}
		for _, r := range rows {
			printJSON(r)
		}

	case "snapshots":
		rows, err := idx.Snapshots(ctx)
		if err != nil {
			return fmt.Errorf("query: %w", err)
		}
		for _, r := range rows {
			printJSON(r)
		}

	case "deltas":
		if strings.TrimSpace(room) == "" {
			return fmt.Errorf("deltas needs --room")
		}
		c, err := parseCoord(room)
		if err != nil {
			return fmt.Errorf("bad --room: %w", err)
		}
		rows, err := idx.RoomDeltas(ctx, int(c.X), int(c.Y), limit)
		if err != nil {
			return fmt.Errorf("query: %w", err)
		}
		for _, r := range rows {
			printJSON(r)
		}

	case "tuning":
		digest, err := idx.TuningDigest(ctx)
		if err != nil {
			return fmt.Errorf("query: %w", err)
		}
		printJSON(map[string]string{"digest": digest})

	default:
		return fmt.Errorf("unknown query %q (attempts, steps, snapshots, deltas, tuning)", q)
	}
	return nil
}
