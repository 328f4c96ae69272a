package cli

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/xcawolfe-amzn/ppg/internal/auth"
	"github.com/xcawolfe-amzn/ppg/internal/certs"
	"github.com/xcawolfe-amzn/ppg/internal/manifest"
	"github.com/xcawolfe-amzn/ppg/internal/scheduler"
	"github.com/xcawolfe-amzn/ppg/internal/stream"
	"github.com/xcawolfe-amzn/ppg/internal/style"
	"github.com/xcawolfe-amzn/ppg/internal/taggederr"
	"github.com/xcawolfe-amzn/ppg/internal/watch"
	"github.com/xcawolfe-amzn/ppg/internal/web"
	"github.com/xcawolfe-amzn/ppg/internal/wshub"
)

var serveFlags struct {
	addr string
}

var serveCmd = &cobra.Command{
	Use:     "serve",
	GroupID: GroupServices,
	Short:   "Run the HTTPS dashboard and WebSocket event hub",
	RunE:    runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveFlags.addr, "addr", ":8443", "Listen address")
	rootCmd.AddCommand(serveCmd)
}

// serveHost adapts a project into wshub.Host, routing terminal input back
// through the process manager. Resize is a no-op: tmux panes follow the
// window geometry, not an explicit resize command.
type serveHost struct {
	ctx context.Context
	pr  *project
}

func (h *serveHost) OnTerminalInput(agentID, data string) error {
	target, ok := h.PaneTargetForAgent(agentID)
	if !ok {
		return fmt.Errorf("ppg: no pane for agent %s", agentID)
	}
	return h.pr.PM.SendLiteral(h.ctx, target, data)
}

func (h *serveHost) OnTerminalResize(agentID string, cols, rows int) error {
	return nil
}

func (h *serveHost) PaneTargetForAgent(agentID string) (string, bool) {
	m, err := h.pr.readManifest()
	if err != nil {
		return "", false
	}
	_, a := manifest.FindAgent(m, agentID)
	if a == nil || a.TmuxTarget == "" {
		return "", false
	}
	return a.TmuxTarget, true
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	pr, err := loadProject(ctx, false)
	if err != nil {
		return err
	}

	store, err := auth.NewStore(pr.Paths.AuthFile)
	if err != nil {
		return fmt.Errorf("ppg: opening auth store: %w", err)
	}

	limiter := auth.NewRateLimiter(5, time.Minute)

	streamHub := stream.NewHub(pr.PM, 0)
	defer streamHub.Destroy()

	// wshub.Hub is never wrapped in auth.Middleware: a browser WebSocket
	// client can't set an Authorization header, so /ws authenticates itself
	// via its own ?token= check and shares this same rate limiter.
	hub := wshub.New(store, limiter, streamHub, &serveHost{ctx: ctx, pr: pr})
	defer hub.Close()

	fetcher := newManifestFetcher(pr)
	dashboardMux, err := web.NewDashboardMux(fetcher, 2*time.Second)
	if err != nil {
		return fmt.Errorf("ppg: building dashboard: %w", err)
	}

	mux := http.NewServeMux()
	mux.Handle("/", auth.Middleware(store, limiter, dashboardMux))
	mux.Handle("/ws", hub)

	watcher, err := watch.New(watch.Options{
		ManifestPath: pr.Paths.Manifest,
		PM:           pr.PM,
		OnManifest:   hub.BroadcastManifestUpdated,
		OnStatus: func(sc watch.StatusChange) {
			hub.BroadcastAgentStatus(sc.AgentID, sc.WorktreeID, sc.Status, sc.PreviousStatus)
		},
		OnError: func(err error) {
			fmt.Fprintf(os.Stderr, "watch error: %v\n", err)
		},
	})
	if err != nil {
		return fmt.Errorf("ppg: starting manifest watcher: %w", err)
	}
	defer watcher.Stop()

	hosts := []string{"localhost"}
	if addrs, err := net.InterfaceAddrs(); err == nil {
		for _, a := range addrs {
			if ipNet, ok := a.(*net.IPNet); ok && !ipNet.IP.IsLoopback() && !ipNet.IP.IsLinkLocalUnicast() {
				hosts = append(hosts, ipNet.IP.String())
			}
		}
	}
	pair, err := certs.LoadOrGenerate(pr.Paths.ServerCert, pr.Paths.ServerKey, hosts)
	if err != nil {
		return fmt.Errorf("ppg: loading TLS certificate: %w", err)
	}
	cert, err := pair.TLSCertificate()
	if err != nil {
		return fmt.Errorf("ppg: parsing TLS certificate: %w", err)
	}

	if err := scheduler.WritePIDFile(pr.Paths.ServePID); err != nil {
		return fmt.Errorf("ppg: writing serve PID file: %w", err)
	}
	scheduler.InstallSignalHandlers(pr.Paths.ServePID, nil)

	server := &http.Server{
		Addr:      serveFlags.addr,
		Handler:   mux,
		TLSConfig: &tls.Config{Certificates: []tls.Certificate{cert}},
	}

	fmt.Fprintf(cmd.OutOrStdout(), "%s dashboard listening on https://%s (cert fingerprint %s)\n",
		style.Bold.Render("✓"), serveFlags.addr, pair.Fingerprint())
	if err := server.ListenAndServeTLS("", ""); err != nil && err != http.ErrServerClosed {
		return taggederr.New(taggederr.KindInvalidArgs, "ppg: serving: %v", err)
	}
	return nil
}
