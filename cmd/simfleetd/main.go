package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"simfleet/coordinator/config"
	"simfleet/coordinator/dispatch"
	"simfleet/coordinator/engine"
	"simfleet/coordinator/registry"
	"simfleet/coordinator/session"
	"simfleet/coordinator/store"
	"simfleet/coordinator/www"
	"simfleet/messaging"
	"simfleet/protocol"
)

var Version = "dev"

func main() {
	showVersion := flag.Bool("version", false, "print version and exit")
	configPath := flag.String("config", "simfleetd.yaml", "path to config file")
	flag.Parse()

	if *showVersion {
		fmt.Println("simfleetd", Version)
		return
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	// Database
	db, err := store.Open(&cfg.Database)
	if err != nil {
		log.Fatalf("open database: %v", err)
	}
	defer db.Close()
	log.Printf("simfleetd: database open (%s)", cfg.Database.Driver)

	// A session that was in flight when the previous coordinator died has
	// no launch state left to resume; close it out so a new one can start.
	if stale, err := db.ActiveSession(); err == nil && stale != nil {
		log.Printf("simfleetd: closing interrupted session %s", stale.ID)
		db.EndSession(stale.ID, store.SessionFailed, "coordinator restarted mid-session")
	}

	// Redis mirror (optional)
	var mirror *registry.Mirror
	if cfg.Redis.Enabled {
		redisClient := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Address,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		if err := redisClient.Ping(ctx).Err(); err != nil {
			log.Printf("simfleetd: redis not available (%v), running without mirror", err)
		} else {
			mirror = registry.NewMirror(redisClient)
			if err := mirror.Flush(ctx); err != nil {
				log.Printf("simfleetd: redis flush: %v", err)
			}
			log.Printf("simfleetd: redis mirror connected (%s)", cfg.Redis.Address)
			defer redisClient.Close()
		}
		cancel()
	}

	// Event bus wires the registry, session coordinator and SSE hub together.
	bus := engine.NewEventBus()
	reg := registry.New(bus, mirror)

	// Session coordinator drives rigs over their HTTP command APIs.
	nodeClient := session.NewHTTPNodeClient(cfg.Session.CommandTimeout)
	coord := session.NewCoordinator(reg, db, nodeClient, bus, cfg.Session)

	// Messaging client
	msgClient := messaging.NewClient(&cfg.Messaging)
	if err := msgClient.Connect(); err != nil {
		log.Printf("simfleetd: messaging connect failed (%v)", err)
		bus.Emit(engine.Event{Type: engine.EventMessagingDisconnected, Payload: engine.ConnectionEvent{Detail: err.Error()}})
	} else {
		log.Printf("simfleetd: messaging connected (%s)", cfg.Messaging.Backend)
		bus.Emit(engine.Event{Type: engine.EventMessagingConnected, Payload: engine.ConnectionEvent{}})
	}
	defer msgClient.Close()

	// Protocol ingestor (inbound register/heartbeat from the rigs)
	fleetHandler := dispatch.NewFleetHandler(reg, db, msgClient, cfg.Messaging.ControlTopic)
	ingestor := protocol.NewIngestor(fleetHandler, func(hdr *protocol.RawHeader) bool {
		return hdr.Dst.Role == protocol.RoleCoordinator
	})
	if err := msgClient.Subscribe(cfg.Messaging.FleetTopic, ingestor.HandleRaw); err != nil {
		log.Printf("simfleetd: fleet subscribe failed: %v", err)
	} else {
		log.Printf("simfleetd: listening for rigs on %s", cfg.Messaging.FleetTopic)
	}

	// Web server (operator API + SSE)
	handler, stopWeb := www.NewRouter(reg, coord, db, bus, cfg.Web.SessionSecret)

	addr := fmt.Sprintf("%s:%d", cfg.Web.Host, cfg.Web.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: handler,
	}

	go func() {
		log.Printf("simfleetd: web server listening on %s", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("web server: %v", err)
		}
	}()

	log.Printf("simfleetd: ready")

	// Wait for shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Printf("simfleetd: shutting down...")
	stopWeb()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	srv.Shutdown(shutdownCtx)

	log.Printf("simfleetd: stopped")
}
