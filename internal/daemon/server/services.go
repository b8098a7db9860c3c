package server

import (
	"context"
	"os"
	"time"

	"github.com/goccy/go-json"
	"google.golang.org/grpc"
	"google.golang.org/grpc/encoding"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/timestamppb"

	"github.com/mixdeck-io/mixdeck/internal/config"
	"github.com/mixdeck-io/mixdeck/internal/daemon/bridge"
)

// ============================================================================
// gRPC Service Definitions (hand-written, messages travel as JSON)
// ============================================================================

// CodecName is the content subtype of every call to the daemon.
const CodecName = "json"

type jsonCodec struct{}

func (jsonCodec) Marshal(v any) ([]byte, error)      { return json.Marshal(v) }
func (jsonCodec) Unmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }
func (jsonCodec) Name() string                       { return CodecName }

func init() {
	encoding.RegisterCodec(jsonCodec{})
}

const serviceName = "mixdeck.DaemonService"

// DaemonServiceServer is the server interface for DaemonService.
type DaemonServiceServer interface {
	GetStatus(context.Context, *emptypb.Empty) (*DaemonStatus, error)
	Refresh(context.Context, *emptypb.Empty) (*emptypb.Empty, error)
	Shutdown(context.Context, *emptypb.Empty) (*emptypb.Empty, error)
}

// ============================================================================
// Message Types
// ============================================================================

// DaemonStatus represents the current status of the daemon.
type DaemonStatus struct {
	Host      string                 `json:"host"`
	Port      int32                  `json:"port"`
	Pid       int32                  `json:"pid"`
	StartedAt *timestamppb.Timestamp `json:"startedAt"`

	LinkState      string                 `json:"linkState"`
	SerialPort     string                 `json:"serialPort"`
	Baud           int32                  `json:"baud"`
	ConnectedSince *timestamppb.Timestamp `json:"connectedSince,omitempty"`

	DefaultDevice string   `json:"defaultDevice"`
	Devices       []string `json:"devices"`
	Apps          []*App   `json:"apps"`

	Transfers          int32   `json:"transfers"`
	AckMismatches      int32   `json:"ackMismatches"`
	LastTransferMillis int64   `json:"lastTransferMillis"`
	LastBytesPerSecond float64 `json:"lastBytesPerSecond"`
}

// App is one snapshot entry.
type App struct {
	Title    string `json:"title"`
	Volume   int32  `json:"volume"`
	Color    uint32 `json:"color"`
	Priority int32  `json:"priority"`
}

// ============================================================================
// Service Registration
// ============================================================================

// RegisterDaemonServiceServer registers the DaemonServiceServer with the gRPC server.
func RegisterDaemonServiceServer(s grpc.ServiceRegistrar, srv DaemonServiceServer) {
	s.RegisterService(&daemonServiceDesc, srv)
}

var daemonServiceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*DaemonServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "GetStatus", Handler: unaryHandler("GetStatus", DaemonServiceServer.GetStatus)},
		{MethodName: "Refresh", Handler: unaryHandler("Refresh", DaemonServiceServer.Refresh)},
		{MethodName: "Shutdown", Handler: unaryHandler("Shutdown", DaemonServiceServer.Shutdown)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "mixdeck/daemon",
}

// unaryHandler adapts a method taking Empty to grpc.MethodHandler.
func unaryHandler[R any](method string, call func(DaemonServiceServer, context.Context, *emptypb.Empty) (R, error)) func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(emptypb.Empty)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(DaemonServiceServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + serviceName + "/" + method}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(DaemonServiceServer), ctx, req.(*emptypb.Empty))
		}
		return interceptor(ctx, in, info, handler)
	}
}

// ============================================================================
// Client
// ============================================================================

// DaemonClient calls a running daemon.
type DaemonClient struct {
	cc grpc.ClientConnInterface
}

// NewDaemonClient wraps a connection.
func NewDaemonClient(cc grpc.ClientConnInterface) *DaemonClient {
	return &DaemonClient{cc: cc}
}

func (c *DaemonClient) invoke(ctx context.Context, method string, out any, opts []grpc.CallOption) error {
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(CodecName)}, opts...)
	return c.cc.Invoke(ctx, "/"+serviceName+"/"+method, &emptypb.Empty{}, out, opts...)
}

// GetStatus fetches the daemon status.
func (c *DaemonClient) GetStatus(ctx context.Context, opts ...grpc.CallOption) (*DaemonStatus, error) {
	out := new(DaemonStatus)
	if err := c.invoke(ctx, "GetStatus", out, opts); err != nil {
		return nil, err
	}
	return out, nil
}

// Refresh asks the daemon to rebuild and resend the snapshot.
func (c *DaemonClient) Refresh(ctx context.Context, opts ...grpc.CallOption) error {
	return c.invoke(ctx, "Refresh", new(emptypb.Empty), opts)
}

// Shutdown asks the daemon to exit.
func (c *DaemonClient) Shutdown(ctx context.Context, opts ...grpc.CallOption) error {
	return c.invoke(ctx, "Shutdown", new(emptypb.Empty), opts)
}

// ============================================================================
// Service Implementation
// ============================================================================

type daemonService struct {
	server *Server
}

func (s *daemonService) GetStatus(ctx context.Context, _ *emptypb.Empty) (*DaemonStatus, error) {
	st := s.server.bridge.Status()

	out := &DaemonStatus{
		Host:          "localhost",
		Port:          int32(s.server.Port()),
		Pid:           int32(os.Getpid()),
		StartedAt:     timestamppb.New(s.server.startedAt),
		LinkState:     st.State.String(),
		SerialPort:    st.Port,
		Baud:          int32(st.Baud),
		DefaultDevice: st.DefaultDevice,
		Devices:       st.Devices,
		Apps:          toProtoApps(st),
		Transfers:     int32(st.Transfers.Transfers),
		AckMismatches: int32(st.Transfers.AckMismatches),

		LastTransferMillis: st.Transfers.Last.Elapsed.Milliseconds(),
		LastBytesPerSecond: st.Transfers.Last.BytesPerSecond(),
	}
	if !st.ConnectedSince.IsZero() {
		out.ConnectedSince = timestamppb.New(st.ConnectedSince)
	}

	// Prefer the published daemon info, which has the host clients use.
	if info, err := config.LoadDaemonInfo(); err == nil && info != nil && info.PID == os.Getpid() {
		out.Host = info.Host
		out.StartedAt = timestamppb.New(info.StartedAt)
	}
	return out, nil
}

func (s *daemonService) Refresh(ctx context.Context, _ *emptypb.Empty) (*emptypb.Empty, error) {
	if err := s.server.bridge.Refresh(); err != nil {
		return nil, err
	}
	return &emptypb.Empty{}, nil
}

func (s *daemonService) Shutdown(ctx context.Context, _ *emptypb.Empty) (*emptypb.Empty, error) {
	// Reply first; the shutdown hook stops this server.
	go func() {
		time.Sleep(100 * time.Millisecond)
		s.server.shutdown()
	}()
	return &emptypb.Empty{}, nil
}

// ============================================================================
// Conversion Functions
// ============================================================================

func toProtoApps(st bridge.Status) []*App {
	apps := make([]*App, 0, len(st.Apps))
	for _, a := range st.Apps {
		apps = append(apps, &App{
			Title:    a.Title,
			Volume:   int32(a.Volume),
			Color:    uint32(a.Color),
			Priority: int32(a.Priority),
		})
	}
	return apps
}
