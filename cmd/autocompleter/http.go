package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"net/http/pprof"
	"strconv"
	"strings"
	"time"

	"github.com/kimo-do/SeekerDungeon-sub002/internal/audit"
	"github.com/kimo-do/SeekerDungeon-sub002/internal/dungeon"
	"github.com/kimo-do/SeekerDungeon-sub002/internal/ledger/rpc"
	"github.com/kimo-do/SeekerDungeon-sub002/internal/persistence/indexdb"
	"github.com/kimo-do/SeekerDungeon-sub002/internal/persistence/snapshot"
	"github.com/kimo-do/SeekerDungeon-sub002/internal/roomsync"
	"github.com/kimo-do/SeekerDungeon-sub002/internal/scheduler"
	"github.com/kimo-do/SeekerDungeon-sub002/internal/transport/feed"
)

// daemon holds what the HTTP surface reports on. Optional parts may be nil.
type daemon struct {
	actor   string
	ctx     context.Context
	started time.Time
	admin   bool
	pprof   bool

	sched    *scheduler.Scheduler
	tracker  *roomsync.Tracker
	feed     *feed.Server
	client   *rpc.Client
	sub      *rpc.Subscription
	recorder *audit.Recorder
	sink     *snapshot.Sink
	idx      *indexdb.SQLiteIndex
}

type stateResponse struct {
	Actor         string                  `json:"actor"`
	UptimeSeconds int64                   `json:"uptime_seconds"`
	Running       bool                    `json:"scheduler_running"`
	Scheduler     scheduler.Status        `json:"scheduler"`
	Metrics       scheduler.Metrics       `json:"metrics"`
	Room          *dungeon.RoomSnapshot   `json:"room,omitempty"`
	Subscription  *rpc.SubscriptionStatus `json:"subscription,omitempty"`
}

func (d *daemon) mux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(200)
		_, _ = rw.Write([]byte("ok"))
	})
	mux.HandleFunc("/metrics", d.handleMetrics)
	mux.HandleFunc("/v1/feed", d.feed.Handler())

	if d.admin {
		mux.HandleFunc("/admin/v1/state", d.loopbackOnly(d.handleState))
		mux.HandleFunc("/admin/v1/refresh", d.loopbackOnly(d.postOnly(d.handleRefresh)))
		mux.HandleFunc("/admin/v1/scheduler/start", d.loopbackOnly(d.postOnly(d.handleStart)))
		mux.HandleFunc("/admin/v1/scheduler/stop", d.loopbackOnly(d.postOnly(d.handleStop)))
		mux.HandleFunc("/admin/v1/attempts", d.loopbackOnly(d.handleAttempts))
	}
	if d.pprof {
		mux.HandleFunc("/debug/pprof/", pprof.Index)
		mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
		mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
		mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
		mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	}
	return mux
}

func (d *daemon) loopbackOnly(h http.HandlerFunc) http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if !isLoopbackRemote(r.RemoteAddr) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}
		h(rw, r)
	}
}

func (d *daemon) postOnly(h http.HandlerFunc) http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			rw.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		h(rw, r)
	}
}

func (d *daemon) handleState(rw http.ResponseWriter, r *http.Request) {
	resp := stateResponse{
		Actor:         d.actor,
		UptimeSeconds: int64(time.Since(d.started).Seconds()),
		Running:       d.sched.Running(),
		Scheduler:     d.sched.Status(),
		Metrics:       d.sched.Metrics(),
	}
	if snap, ok := d.tracker.Latest(); ok {
		resp.Room = &snap
	}
	if d.sub != nil {
		st := d.sub.Status()
		resp.Subscription = &st
	}
	writeJSON(rw, http.StatusOK, resp)
}

func (d *daemon) handleRefresh(rw http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()
	if err := d.tracker.RefreshCurrent(ctx); err != nil {
		writeJSON(rw, http.StatusServiceUnavailable, map[string]any{"ok": false, "error": err.Error()})
		return
	}
	writeJSON(rw, http.StatusOK, map[string]any{"ok": true})
}

func (d *daemon) handleStart(rw http.ResponseWriter, r *http.Request) {
	started := d.sched.Start(d.ctx)
	writeJSON(rw, http.StatusOK, map[string]any{"ok": true, "started": started, "running": d.sched.Running()})
}

func (d *daemon) handleStop(rw http.ResponseWriter, r *http.Request) {
	d.sched.Stop()
	writeJSON(rw, http.StatusOK, map[string]any{"ok": true, "running": d.sched.Running()})
}

func (d *daemon) handleAttempts(rw http.ResponseWriter, r *http.Request) {
	if d.idx == nil {
		writeJSON(rw, http.StatusNotFound, map[string]any{"ok": false, "error": "index disabled"})
		return
	}
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 || n > 1000 {
			http.Error(rw, "bad limit", http.StatusBadRequest)
			return
		}
		limit = n
	}
	rows, err := d.idx.Query().RecentAttempts(r.Context(), limit)
	if err != nil {
		writeJSON(rw, http.StatusInternalServerError, map[string]any{"ok": false, "error": err.Error()})
		return
	}
	writeJSON(rw, http.StatusOK, map[string]any{"ok": true, "attempts": rows})
}

func (d *daemon) handleMetrics(rw http.ResponseWriter, r *http.Request) {
	rw.Header().Set("Content-Type", "text/plain; version=0.0.4")

	// Minimal Prometheus exposition format.
	running := 0
	if d.sched.Running() {
		running = 1
	}
	gauge(rw, "seekerdungeon_scheduler_running", "Whether the completion scheduler loop is running.", running)

	m := d.sched.Metrics()
	fmt.Fprintf(rw, "# HELP seekerdungeon_scheduler_cycles_total Scheduler cycles run.\n")
	fmt.Fprintf(rw, "# TYPE seekerdungeon_scheduler_cycles_total counter\n")
	fmt.Fprintf(rw, "seekerdungeon_scheduler_cycles_total %d\n", m.Cycles)
	fmt.Fprintf(rw, "# HELP seekerdungeon_scheduler_cycle_errors_total Scheduler cycles that ended in an error.\n")
	fmt.Fprintf(rw, "# TYPE seekerdungeon_scheduler_cycle_errors_total counter\n")
	fmt.Fprintf(rw, "seekerdungeon_scheduler_cycle_errors_total %d\n", m.CycleErrors)

	fmt.Fprintf(rw, "# HELP seekerdungeon_scheduler_tx_total Ledger writes by step and outcome.\n")
	fmt.Fprintf(rw, "# TYPE seekerdungeon_scheduler_tx_total counter\n")
	fmt.Fprintf(rw, "seekerdungeon_scheduler_tx_total{step=%q,result=%q} %d\n", "finalize", "ok", m.FinalizeOK)
	fmt.Fprintf(rw, "seekerdungeon_scheduler_tx_total{step=%q,result=%q} %d\n", "finalize", "fail", m.FinalizeFail)
	fmt.Fprintf(rw, "seekerdungeon_scheduler_tx_total{step=%q,result=%q} %d\n", "claim", "ok", m.ClaimOK)
	fmt.Fprintf(rw, "seekerdungeon_scheduler_tx_total{step=%q,result=%q} %d\n", "claim", "fail", m.ClaimFail)
	fmt.Fprintf(rw, "seekerdungeon_scheduler_tx_total{step=%q,result=%q} %d\n", "boss_tick", "ok", m.BossTicks)
	fmt.Fprintf(rw, "seekerdungeon_scheduler_tx_total{step=%q,result=%q} %d\n", "boss_tick", "fail", m.BossTickFail)

	fmt.Fprintf(rw, "# HELP seekerdungeon_scheduler_confirm_timeouts_total Finalizes that were not confirmed in time.\n")
	fmt.Fprintf(rw, "# TYPE seekerdungeon_scheduler_confirm_timeouts_total counter\n")
	fmt.Fprintf(rw, "seekerdungeon_scheduler_confirm_timeouts_total %d\n", m.ConfirmTimeouts)
	fmt.Fprintf(rw, "# HELP seekerdungeon_scheduler_boss_rate_limited_total Boss ticks rejected by the rate limiter.\n")
	fmt.Fprintf(rw, "# TYPE seekerdungeon_scheduler_boss_rate_limited_total counter\n")
	fmt.Fprintf(rw, "seekerdungeon_scheduler_boss_rate_limited_total %d\n", m.BossRateLimited)

	st := d.sched.Status()
	gauge(rw, "seekerdungeon_scheduler_boss_rate_limit_streak", "Consecutive rate-limited boss ticks.", st.Boss.RateLimitStreak)
	fmt.Fprintf(rw, "# HELP seekerdungeon_scheduler_last_delay_seconds Delay chosen by the last cycle.\n")
	fmt.Fprintf(rw, "# TYPE seekerdungeon_scheduler_last_delay_seconds gauge\n")
	fmt.Fprintf(rw, "seekerdungeon_scheduler_last_delay_seconds %.3f\n", st.LastDelay.Seconds())

	ts := d.tracker.Stats()
	fmt.Fprintf(rw, "# HELP seekerdungeon_roomsync_total Room tracker activity.\n")
	fmt.Fprintf(rw, "# TYPE seekerdungeon_roomsync_total counter\n")
	fmt.Fprintf(rw, "seekerdungeon_roomsync_total{kind=%q} %d\n", "refresh", ts.Refreshes)
	fmt.Fprintf(rw, "seekerdungeon_roomsync_total{kind=%q} %d\n", "refresh_failure", ts.RefreshFailures)
	fmt.Fprintf(rw, "seekerdungeon_roomsync_total{kind=%q} %d\n", "snapshot", ts.Snapshots)
	fmt.Fprintf(rw, "seekerdungeon_roomsync_total{kind=%q} %d\n", "delta", ts.Deltas)

	if d.client != nil {
		cs := d.client.Stats()
		fmt.Fprintf(rw, "# HELP seekerdungeon_relay_requests_total Relay JSON-RPC requests by outcome.\n")
		fmt.Fprintf(rw, "# TYPE seekerdungeon_relay_requests_total counter\n")
		fmt.Fprintf(rw, "seekerdungeon_relay_requests_total{result=%q} %d\n", "all", cs.Requests)
		fmt.Fprintf(rw, "seekerdungeon_relay_requests_total{result=%q} %d\n", "failure", cs.Failures)
		fmt.Fprintf(rw, "seekerdungeon_relay_requests_total{result=%q} %d\n", "rate_limited", cs.RateLimited)
	}

	if d.feed != nil {
		fs := d.feed.Stats()
		gauge(rw, "seekerdungeon_feed_clients", "Connected presentation clients.", fs.Clients)
		fmt.Fprintf(rw, "# HELP seekerdungeon_feed_messages_total Feed messages by outcome.\n")
		fmt.Fprintf(rw, "# TYPE seekerdungeon_feed_messages_total counter\n")
		fmt.Fprintf(rw, "seekerdungeon_feed_messages_total{result=%q} %d\n", "sent", fs.Sent)
		fmt.Fprintf(rw, "seekerdungeon_feed_messages_total{result=%q} %d\n", "dropped", fs.Dropped)
	}

	if d.recorder != nil {
		as := d.recorder.Stats()
		fmt.Fprintf(rw, "# HELP seekerdungeon_audit_entries_total Audit entries by outcome.\n")
		fmt.Fprintf(rw, "# TYPE seekerdungeon_audit_entries_total counter\n")
		fmt.Fprintf(rw, "seekerdungeon_audit_entries_total{result=%q} %d\n", "recorded", as.Recorded)
		fmt.Fprintf(rw, "seekerdungeon_audit_entries_total{result=%q} %d\n", "dropped", as.Dropped)
		fmt.Fprintf(rw, "seekerdungeon_audit_entries_total{result=%q} %d\n", "write_failed", as.Failed)
	}

	if d.sink != nil {
		ss := d.sink.Stats()
		fmt.Fprintf(rw, "# HELP seekerdungeon_snapshot_files_total Room snapshot file writes by outcome.\n")
		fmt.Fprintf(rw, "# TYPE seekerdungeon_snapshot_files_total counter\n")
		fmt.Fprintf(rw, "seekerdungeon_snapshot_files_total{result=%q} %d\n", "written", ss.Written)
		fmt.Fprintf(rw, "seekerdungeon_snapshot_files_total{result=%q} %d\n", "dropped", ss.Dropped)
		fmt.Fprintf(rw, "seekerdungeon_snapshot_files_total{result=%q} %d\n", "failed", ss.Failed)
	}

	if d.idx != nil {
		is := d.idx.Stats()
		gauge(rw, "seekerdungeon_index_queue_depth", "SQLite index writer backlog.", is.QueueDepth)
		fmt.Fprintf(rw, "# HELP seekerdungeon_index_dropped_total Index rows dropped because the writer fell behind.\n")
		fmt.Fprintf(rw, "# TYPE seekerdungeon_index_dropped_total counter\n")
		fmt.Fprintf(rw, "seekerdungeon_index_dropped_total{table=%q} %d\n", "attempts", is.DropAttemptTotal)
		fmt.Fprintf(rw, "seekerdungeon_index_dropped_total{table=%q} %d\n", "snapshots", is.DropSnapshotTotal)
		fmt.Fprintf(rw, "seekerdungeon_index_dropped_total{table=%q} %d\n", "deltas", is.DropDeltaTotal)
	}

	if d.sub != nil {
		ss := d.sub.Status()
		connected := 0
		if ss.Connected {
			connected = 1
		}
		gauge(rw, "seekerdungeon_relay_ws_connected", "Whether the relay websocket is connected.", connected)
		fmt.Fprintf(rw, "# HELP seekerdungeon_relay_ws_reconnects_total Relay websocket reconnects.\n")
		fmt.Fprintf(rw, "# TYPE seekerdungeon_relay_ws_reconnects_total counter\n")
		fmt.Fprintf(rw, "seekerdungeon_relay_ws_reconnects_total %d\n", ss.Reconnects)
	}
}

func gauge(rw http.ResponseWriter, name, help string, v int) {
	fmt.Fprintf(rw, "# HELP %s %s\n", name, help)
	fmt.Fprintf(rw, "# TYPE %s gauge\n", name)
	fmt.Fprintf(rw, "%s %d\n", name, v)
}

func writeJSON(rw http.ResponseWriter, status int, v any) {
	rw.Header().Set("Content-Type", "application/json")
	rw.WriteHeader(status)
	_ = json.NewEncoder(rw).Encode(v)
}

func isLoopbackRemote(remoteAddr string) bool {
	host := remoteAddr
	if h, _, err := net.SplitHostPort(remoteAddr); err == nil {
		host = h
	}
	host = strings.TrimPrefix(host, "[")
	host = strings.TrimSuffix(host, "]")
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
