package server

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/mixdeck-io/mixdeck/internal/daemon/bridge"
	"github.com/mixdeck-io/mixdeck/internal/protocol"
	"github.com/mixdeck-io/mixdeck/internal/serial"
	"github.com/mixdeck-io/mixdeck/internal/snapshot"
)

type fakeBridge struct {
	refreshes  atomic.Int32
	refreshErr error
}

func (b *fakeBridge) Status() bridge.Status {
	return bridge.Status{
		State:          serial.Connected,
		Port:           "/dev/ttyUSB0",
		Baud:           57600,
		ConnectedSince: time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC),
		DefaultDevice:  "Speakers",
		Devices:        []string{"Speakers", "Headphones"},
		Apps: []snapshot.AppEntry{
			{Title: "Spotify", Volume: 80, Color: 7852, Priority: 0},
			{Title: "Chrome", Volume: 35, Color: 55879, Priority: 1},
		},
		Transfers: protocol.Stats{Transfers: 3, AckMismatches: 1},
	}
}

func (b *fakeBridge) Refresh() error {
	b.refreshes.Add(1)
	return b.refreshErr
}

func startServer(t *testing.T, b Bridge, shutdown func()) *DaemonClient {
	t.Helper()
	srv, err := New(0, b, shutdown)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	go func() { _ = srv.Serve() }()
	t.Cleanup(srv.Stop)

	conn, err := grpc.NewClient(fmt.Sprintf("127.0.0.1:%d", srv.Port()),
		grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return NewDaemonClient(conn)
}

func TestGetStatus(t *testing.T) {
	client := startServer(t, &fakeBridge{}, func() {})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	st, err := client.GetStatus(ctx)
	if err != nil {
		t.Fatalf("GetStatus() error = %v", err)
	}
	if st.LinkState != "connected" || st.SerialPort != "/dev/ttyUSB0" || st.Baud != 57600 {
		t.Errorf("link fields = %+v", st)
	}
	if len(st.Apps) != 2 || st.Apps[0].Title != "Spotify" || st.Apps[1].Color != 55879 {
		t.Errorf("Apps = %+v", st.Apps)
	}
	if st.ConnectedSince == nil || !st.ConnectedSince.AsTime().Equal(time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)) {
		t.Errorf("ConnectedSince = %v", st.ConnectedSince)
	}
	if st.Transfers != 3 || st.AckMismatches != 1 || st.Pid == 0 {
		t.Errorf("counters = %+v", st)
	}
}

func TestRefresh(t *testing.T) {
	b := &fakeBridge{}
	client := startServer(t, b, func() {})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Refresh(ctx); err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}
	if n := b.refreshes.Load(); n != 1 {
		t.Errorf("bridge refreshed %d times, want 1", n)
	}
}

func TestRefreshError(t *testing.T) {
	client := startServer(t, &fakeBridge{refreshErr: errors.New("audio backend gone")}, func() {})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Refresh(ctx); err == nil {
		t.Error("Refresh() error = nil, want the bridge error")
	}
}

func TestShutdownCallsHook(t *testing.T) {
	called := make(chan struct{})
	client := startServer(t, &fakeBridge{}, func() { close(called) })
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown() error = %v", err)
	}
	select {
	case <-called:
	case <-time.After(2 * time.Second):
		t.Fatal("shutdown hook not called")
	}
}

func TestTrayState(t *testing.T) {
	b := &fakeBridge{}
	srv, err := New(0, b, func() {})
	if err != nil {
		t.Fatal(err)
	}
	defer srv.listener.Close()

	ts := NewTrayState(srv)
	if link := ts.Link(); !link.Connected || link.Port != "/dev/ttyUSB0" {
		t.Errorf("Link() = %+v", link)
	}
	if apps := ts.Apps(); len(apps) != 2 || apps[0].Volume != 80 {
		t.Errorf("Apps() = %+v", apps)
	}
	if err := ts.Resend(); err != nil || b.refreshes.Load() != 1 {
		t.Errorf("Resend() = %v, refreshes = %d", err, b.refreshes.Load())
	}
}

func TestNewRequiresShutdownHook(t *testing.T) {
	if srv, err := New(0, &fakeBridge{}, nil); err == nil {
		srv.listener.Close()
		t.Fatal("New() error = nil without a shutdown hook")
	}
}

func TestTrayQuitUsesShutdownHook(t *testing.T) {
	calls := 0
	srv, err := New(0, &fakeBridge{}, func() { calls++ })
	if err != nil {
		t.Fatal(err)
	}
	defer srv.listener.Close()

	NewTrayState(srv).RequestShutdown()
	if calls != 1 {
		t.Errorf("shutdown hook calls = %d, want 1", calls)
	}
}
