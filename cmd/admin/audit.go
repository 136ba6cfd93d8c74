package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/pflag"

	"github.com/kimo-do/SeekerDungeon-sub002/internal/audit"
	"github.com/kimo-do/SeekerDungeon-sub002/internal/dungeon"
	persistlog "github.com/kimo-do/SeekerDungeon-sub002/internal/persistence/log"
)

type auditFilter struct {
	Step       audit.Step
	Room       *dungeon.Coord
	Since      time.Time
	Until      time.Time
	FailedOnly bool
	// Limit keeps the newest N matches; 0 keeps all.
	Limit int
}

func (f auditFilter) match(e audit.Entry) bool {
	if f.Step != "" && e.Step != f.Step {
		return false
	}
	if f.Room != nil && e.Room != *f.Room {
		return false
	}
	if !f.Since.IsZero() && e.Time.Before(f.Since) {
		return false
	}
	if !f.Until.IsZero() && e.Time.After(f.Until) {
		return false
	}
	if f.FailedOnly && e.Success {
		return false
	}
	return true
}

// collectAudit returns matching entries in file order.
func collectAudit(dir string, f auditFilter) ([]audit.Entry, error) {
	var out []audit.Entry
	err := persistlog.ReadAll(dir, func(e audit.Entry) bool {
		if !f.match(e) {
			return true
		}
		out = append(out, e)
		if f.Limit > 0 && len(out) > f.Limit {
			out = out[1:]
		}
		return true
	})
	return out, err
}

func auditCmd(args []string) {
	fs := pflag.NewFlagSet("audit", pflag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	step := fs.String("step", "", "FINALIZE, CLAIM or BOSS_TICK")
	room := fs.String("room", "", "room coordinate x,y")
	since := fs.Duration("since", 0, "only entries newer than this (e.g. 2h)")
	failed := fs.Bool("failed", false, "only failed attempts")
	limit := fs.Int("limit", 0, "keep only the newest N entries")
	_ = fs.Parse(args)

	f := auditFilter{
		Step:       audit.Step(strings.ToUpper(strings.TrimSpace(*step))),
		FailedOnly: *failed,
		Limit:      *limit,
	}
	switch f.Step {
	case "", audit.StepFinalize, audit.StepClaim, audit.StepBossTick:
	default:
		fmt.Fprintf(os.Stderr, "unknown --step %q\n", *step)
		os.Exit(2)
	}
	if strings.TrimSpace(*room) != "" {
		c, err := parseCoord(*room)
		if err != nil {
			fmt.Fprintln(os.Stderr, "bad --room:", err)
			os.Exit(2)
		}
		f.Room = &c
	}
	if *since > 0 {
		f.Since = time.Now().Add(-*since)
	}

	entries, err := collectAudit(filepath.Join(*dataDir, "audit"), f)
	if err != nil {
		fmt.Fprintln(os.Stderr, "read audit:", err)
		os.Exit(1)
	}
	for _, e := range entries {
		printJSON(e)
	}
}
