package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"github.com/kimo-do/SeekerDungeon-sub002/internal/audit"
	"github.com/kimo-do/SeekerDungeon-sub002/internal/ledger/rpc"
	"github.com/kimo-do/SeekerDungeon-sub002/internal/persistence/indexdb"
	persistlog "github.com/kimo-do/SeekerDungeon-sub002/internal/persistence/log"
	"github.com/kimo-do/SeekerDungeon-sub002/internal/persistence/snapshot"
	"github.com/kimo-do/SeekerDungeon-sub002/internal/roomsync"
	"github.com/kimo-do/SeekerDungeon-sub002/internal/scheduler"
	"github.com/kimo-do/SeekerDungeon-sub002/internal/transport/feed"
	"github.com/kimo-do/SeekerDungeon-sub002/internal/tuning"
)

func main() {
	fs := pflag.NewFlagSet("autocompleter", pflag.ExitOnError)
	var (
		addr       = fs.String("addr", "127.0.0.1:8081", "http listen address")
		actor      = fs.String("actor", os.Getenv("SD_ACTOR"), "ledger identity of the local player (or set SD_ACTOR)")
		configDir  = fs.String("configs", "./configs", "config directory")
		tuningPath = fs.String("tuning", "", "path to tuning.yaml (default: <configs>/tuning.yaml)")
		dataDir    = fs.String("data", "./data", "runtime data directory")
		relayURL   = fs.String("relay-url", "", "relay JSON-RPC url (overrides tuning)")
		relayWSURL = fs.String("relay-ws-url", "", "relay websocket url for room notifications (overrides tuning)")
		disableDB  = fs.Bool("disable-db", false, "disable the sqlite index")
		paused     = fs.Bool("paused", false, "do not start the scheduler; start it later via /admin/v1/scheduler/start")
		remoteFeed = fs.Bool("remote-feed", false, "accept feed clients from non-loopback addresses")
		pollEvery  = fs.Duration("refresh-interval", 0, "room refresh interval when no relay websocket is configured (default: idle poll)")
	)
	_ = fs.Parse(os.Args[1:])

	logger := log.New(os.Stdout, "[autocompleter] ", log.LstdFlags|log.Lmicroseconds)

	if strings.TrimSpace(*actor) == "" {
		logger.Fatalf("--actor (or SD_ACTOR) is required")
	}

	tp := strings.TrimSpace(*tuningPath)
	if tp == "" {
		tp = filepath.Join(*configDir, "tuning.yaml")
	}
	tune, err := tuning.Load(tp)
	if err != nil {
		if !os.IsNotExist(err) {
			logger.Fatalf("load tuning: %v", err)
		}
		logger.Printf("tuning not found (%s); using defaults", tp)
		tune = tuning.Defaults()
	}
	if v := strings.TrimSpace(*relayURL); v != "" {
		tune.Relay.URL = v
	}
	if v := strings.TrimSpace(*relayWSURL); v != "" {
		tune.Relay.WSURL = v
	}
	if err := tune.Validate(); err != nil {
		logger.Fatalf("tuning: %v", err)
	}

	client, err := rpc.NewClient(rpc.Config{
		URL:               tune.Relay.URL,
		RequestsPerSecond: tune.Relay.RequestsPerSecond,
		Burst:             tune.Relay.Burst,
		Timeout:           tune.Relay.Timeout(),
	})
	if err != nil {
		logger.Fatalf("relay client: %v", err)
	}
	gw, err := rpc.NewGateway(client, strings.TrimSpace(*actor))
	if err != nil {
		logger.Fatalf("gateway: %v", err)
	}

	var idx *indexdb.SQLiteIndex
	if !*disableDB {
		idx, err = indexdb.OpenSQLite(filepath.Join(*dataDir, "index", "autocompleter.sqlite"))
		if err != nil {
			logger.Fatalf("open index: %v", err)
		}
		if err := idx.UpsertTuning(tune); err != nil {
			logger.Printf("index: upsert tuning: %v", err)
		}
	}

	auditLog := persistlog.NewAuditLogger(*dataDir)
	writers := []audit.Writer{auditLog}
	var snapIndex snapshot.Recorder
	if idx != nil {
		writers = append(writers, idx)
		snapIndex = idx
	}
	recorder := audit.NewRecorder(componentLogger("audit"), 1024, writers...)
	sink := snapshot.NewSink(*dataDir, componentLogger("snapshot"), snapIndex, 64)

	tracker := roomsync.NewTracker(gw, componentLogger("roomsync"))
	feedSrv := feed.NewServer(componentLogger("feed"), feed.Options{
		Actor:        gw.Actor(),
		Refresher:    tracker,
		LoopbackOnly: !*remoteFeed,
	})

	var sub *rpc.Subscription
	if tune.Relay.WSURL != "" {
		sub = rpc.NewSubscription(tune.Relay.WSURL, componentLogger("subscription"))
	}

	tracker.Subscribe(feedSrv)
	tracker.Subscribe(sink)
	if idx != nil {
		tracker.Subscribe(idx)
	}
	if sub != nil {
		tracker.Subscribe(sub)
	}

	sched, err := scheduler.New(gw, tune.Scheduler, scheduler.Options{
		Logger:      componentLogger("scheduler"),
		Audit:       recorder,
		Refresher:   tracker,
		FighterHint: tracker.LocalFightingBoss,
	})
	if err != nil {
		logger.Fatalf("scheduler: %v", err)
	}

	ctx, cancel := signalContext()
	defer cancel()

	d := &daemon{
		actor:    gw.Actor(),
		sched:    sched,
		tracker:  tracker,
		feed:     feedSrv,
		client:   client,
		sub:      sub,
		recorder: recorder,
		sink:     sink,
		idx:      idx,
		admin:    envBool("SD_ENABLE_ADMIN_HTTP", defaultEnableAdminHTTP()),
		pprof:    envBool("SD_ENABLE_PPROF_HTTP", defaultEnableAdminHTTP()),
		started:  time.Now(),
	}
	if !d.admin {
		logger.Printf("admin endpoints disabled (SD_ENABLE_ADMIN_HTTP=false)")
	}
	if !d.pprof {
		logger.Printf("pprof endpoints disabled (SD_ENABLE_PPROF_HTTP=false)")
	}

	srv := &http.Server{
		Addr:              *addr,
		Handler:           d.mux(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	d.ctx = gctx

	g.Go(func() error {
		logger.Printf("listening on %s", *addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel2()
		_ = srv.Shutdown(ctx2)
		return nil
	})

	g.Go(func() error {
		if err := tracker.RefreshCurrent(gctx); err != nil {
			logger.Printf("initial refresh: %v", err)
		}
		return nil
	})

	if sub != nil {
		sub.Start()
		g.Go(func() error {
			for {
				select {
				case <-gctx.Done():
					return nil
				case <-sub.Notify():
					if err := tracker.RefreshCurrent(gctx); err != nil && gctx.Err() == nil {
						logger.Printf("notified refresh: %v", err)
					}
				}
			}
		})
	} else {
		every := *pollEvery
		if every <= 0 {
			every = tune.Scheduler.IdlePoll()
		}
		g.Go(func() error {
			t := time.NewTicker(every)
			defer t.Stop()
			for {
				select {
				case <-gctx.Done():
					return nil
				case <-t.C:
					if err := tracker.RefreshCurrent(gctx); err != nil && gctx.Err() == nil {
						logger.Printf("poll refresh: %v", err)
					}
				}
			}
		})
	}

	if *paused {
		logger.Printf("scheduler paused; POST /admin/v1/scheduler/start to begin")
	} else {
		sched.Start(gctx)
	}

	if err := g.Wait(); err != nil {
		logger.Printf("stopped: %v", err)
	}

	feedSrv.Close()
	sched.Stop()
	if sub != nil {
		sub.Close()
	}
	recorder.Close()
	sink.Close()
	_ = auditLog.Close()
	if idx != nil {
		_ = idx.Close()
	}
	logger.Printf("bye")
}

func componentLogger(name string) *log.Logger {
	return log.New(os.Stdout, "["+name+"] ", log.LstdFlags|log.Lmicroseconds)
}

func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	ch := make(chan os.Signal, 2)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-ch
		cancel()
	}()
	return ctx, cancel
}

func defaultEnableAdminHTTP() bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv("DEPLOY_ENV"))) {
	case "staging", "production":
		return false
	default:
		return true
	}
}

func envBool(name string, def bool) bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv(name))) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return def
	}
}
