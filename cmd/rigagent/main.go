package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"simfleet/agent/config"
	"simfleet/agent/game"
	"simfleet/agent/handler"
	"simfleet/agent/navigate"
	"simfleet/agent/store"
	"simfleet/agent/www"
	"simfleet/messaging"
	"simfleet/protocol"
)

var Version = "dev"

// ackHandler logs the coordinator's replies. The agent's behavior does not
// depend on acks; they exist so a rig that never hears back is visible in
// its own log.
type ackHandler struct {
	protocol.NoOpHandler
}

func (h *ackHandler) HandleRigRegistered(env *protocol.Envelope, p *protocol.RigRegistered) {
	log.Printf("[AGENT] registered with coordinator as node %d", p.NodeID)
}

func main() {
	showVersion := flag.Bool("version", false, "print version and exit")
	configPath := flag.String("config", "rigagent.yaml", "path to config file")
	port := flag.Int("port", 0, "HTTP port (overrides config)")
	flag.Parse()

	if *showVersion {
		fmt.Println("rigagent", Version)
		return
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	if *port > 0 {
		cfg.Web.Port = *port
	}

	id, err := config.LoadIdentity(cfg.IdentityPath)
	if err != nil {
		log.Fatalf("identity: %v", err)
	}
	log.Printf("rigagent: node %d (%s)", id.NodeID, id.Name)

	db, err := store.Open(cfg.DatabasePath)
	if err != nil {
		log.Fatalf("open database: %v", err)
	}
	defer db.Close()

	// Game control and menu navigation
	launcher := game.NewExecLauncher()
	focuser := &game.ExecFocuser{}
	input := &game.ExecInput{}
	grabber := &game.ExecGrabber{}
	matcher := game.NewTemplateMatcher(grabber, cfg.TemplatesDir)
	navigator := navigate.New(matcher, input, cfg.Navigate.Params())

	rig := handler.New(cfg, launcher, focuser, navigator, db)

	// Messaging: register, heartbeat, listen for coordinator acks.
	msgClient := messaging.NewClient(&cfg.Messaging)
	defer msgClient.Close()
	if err := msgClient.Connect(); err != nil {
		log.Printf("rigagent: messaging connect failed (%v), command API still up", err)
	} else {
		ingestor := protocol.NewIngestor(&ackHandler{}, func(hdr *protocol.RawHeader) bool {
			return hdr.Dst.Role == protocol.RoleRig &&
				(hdr.Dst.Node == "" || hdr.Dst.Node == protocol.NodeBroadcast || hdr.Dst.Node == id.Name)
		})
		if err := msgClient.Subscribe(cfg.Messaging.ControlTopic, ingestor.HandleRaw); err != nil {
			log.Printf("rigagent: control subscribe failed: %v", err)
		}

		hb := messaging.NewHeartbeater(msgClient, id.NodeID, id.Name, advertiseAddr(cfg), Version,
			cfg.Messaging.FleetTopic, rig.Status)
		hb.Start()
		defer hb.Stop()
	}

	// Command API
	router := www.NewRouter(rig, cfg, id, db)
	addr := fmt.Sprintf("%s:%d", cfg.Web.Host, cfg.Web.Port)
	srv := &http.Server{Addr: addr, Handler: router}

	go func() {
		log.Printf("rigagent: command API listening on %s", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("http server: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Printf("rigagent: shutting down...")
	rig.Stop("")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	srv.Shutdown(ctx)

	log.Printf("rigagent: stopped")
}

// advertiseAddr is what the coordinator is told to send commands to. An
// explicit advertise_addr wins; otherwise the primary interface address is
// paired with the command API port.
func advertiseAddr(cfg *config.Config) string {
	if cfg.Web.AdvertiseAddr != "" {
		return cfg.Web.AdvertiseAddr
	}
	host := "127.0.0.1"
	if conn, err := net.Dial("udp", "255.255.255.255:1"); err == nil {
		host = conn.LocalAddr().(*net.UDPAddr).IP.String()
		conn.Close()
	}
	return fmt.Sprintf("%s:%d", host, cfg.Web.Port)
}
