// Package server implements the gRPC server for the daemon.
package server

import (
	"context"
	"fmt"
	"net"
	"time"

	"google.golang.org/grpc"

	"github.com/mixdeck-io/mixdeck/internal/daemon/bridge"
	"github.com/mixdeck-io/mixdeck/internal/daemon/tray"
)

// Bridge is what the server exposes of the running bridge.
type Bridge interface {
	Status() bridge.Status
	Refresh() error
}

// Server is the daemon's gRPC server.
type Server struct {
	grpcServer *grpc.Server
	listener   net.Listener
	port       int
	bridge     Bridge
	startedAt  time.Time
	shutdown   func()
}

// New creates a new server listening on the specified localhost port.
// Pass port 0 for dynamic allocation. shutdown is called when a client
// or the tray asks the daemon to exit and must stop it in-process.
func New(port int, b Bridge, shutdown func()) (*Server, error) {
	if shutdown == nil {
		return nil, fmt.Errorf("server: shutdown hook is required")
	}

	listener, err := (&net.ListenConfig{}).Listen(context.TODO(), "tcp", fmt.Sprintf("127.0.0.1:%d", port))
	if err != nil {
		return nil, fmt.Errorf("failed to listen: %w", err)
	}

	// Get actual port if dynamically allocated
	actualPort := listener.Addr().(*net.TCPAddr).Port

	srv := &Server{
		grpcServer: grpc.NewServer(),
		listener:   listener,
		port:       actualPort,
		bridge:     b,
		startedAt:  time.Now(),
		shutdown:   shutdown,
	}
	RegisterDaemonServiceServer(srv.grpcServer, &daemonService{server: srv})

	return srv, nil
}

// Port returns the port the server is listening on.
func (s *Server) Port() int {
	return s.port
}

// Serve starts serving requests. This blocks until Stop is called.
func (s *Server) Serve() error {
	return s.grpcServer.Serve(s.listener)
}

// Stop gracefully stops the server.
func (s *Server) Stop() {
	s.grpcServer.GracefulStop()
}

// TrayState adapts a Server to the tray.DaemonState interface.
type TrayState struct {
	srv *Server
}

// NewTrayState creates a TrayState for the given server.
func NewTrayState(srv *Server) *TrayState {
	return &TrayState{srv: srv}
}

// Port returns the port the server is listening on.
func (t *TrayState) Port() int {
	return t.srv.Port()
}

// Link describes the serial link.
func (t *TrayState) Link() tray.LinkInfo {
	st := t.srv.bridge.Status()
	return tray.LinkInfo{
		Port:      st.Port,
		State:     st.State.String(),
		Connected: st.State.IsConnected(),
	}
}

// Apps returns the published snapshot entries.
func (t *TrayState) Apps() []tray.AppInfo {
	st := t.srv.bridge.Status()
	apps := make([]tray.AppInfo, 0, len(st.Apps))
	for _, a := range st.Apps {
		apps = append(apps, tray.AppInfo{Title: a.Title, Volume: a.Volume})
	}
	return apps
}

// Resend rebuilds and resends the snapshot.
func (t *TrayState) Resend() error {
	return t.srv.bridge.Refresh()
}

// RequestShutdown triggers a graceful shutdown.
func (t *TrayState) RequestShutdown() {
	t.srv.shutdown()
}
