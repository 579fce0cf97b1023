package receiver_test

import (
	"context"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"

	"github.com/roomsync/roomsync/server/internal/receiver"
	"github.com/roomsync/roomsync/server/internal/store"
)

// startServer starts a gRPC server over a random TCP port and returns a
// connected client and the backing store.
func startServer(t *testing.T, cfg store.Config, opts ...grpc.ServerOption) (*receiver.Client, *store.Store) {
	t.Helper()

	st := store.New(cfg)

	srv := grpc.NewServer(append(receiver.ServerOptions(), opts...)...)
	receiver.Register(srv, receiver.New(st))

	lis, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}

	go srv.Serve(lis) //nolint:errcheck

	t.Cleanup(func() {
		srv.Stop()
		lis.Close()
	})

	conn, err := grpc.Dial(lis.Addr().String(),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	) //nolint:staticcheck
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })

	return receiver.NewClient(conn), st
}

func ctx(t *testing.T) context.Context {
	t.Helper()
	c, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return c
}

func TestReadRoomState_UnknownRoom(t *testing.T) {
	client, _ := startServer(t, store.Config{})
	before := time.Now().UnixMilli()

	resp, err := client.ReadRoomState(ctx(t), &receiver.ReadRequest{RoomID: "lobby"})
	if err != nil {
		t.Fatalf("ReadRoomState: %v", err)
	}
	if resp.Found {
		t.Error("Found: got true, want false")
	}
	if resp.RoomID != "LOBBY" {
		t.Errorf("RoomID: got %q, want LOBBY", resp.RoomID)
	}
	s := resp.State
	if s.TrackURI != "" || s.PositionMs != 0 || s.IsPlaying || s.Timestamp < before {
		t.Errorf("State: got %+v, want default register", s)
	}
}

func TestWriteRoomState_StoresAndEchoes(t *testing.T) {
	client, st := startServer(t, store.Config{})

	resp, err := client.WriteRoomState(ctx(t), &receiver.WriteRequest{
		RoomID:     "Jam",
		TrackURI:   "spotify:track:1",
		PositionMs: 42_000,
		IsPlaying:  true,
		Timestamp:  1_700_000_000_000,
	})
	if err != nil {
		t.Fatalf("WriteRoomState: %v", err)
	}
	if !resp.Success || resp.RoomID != "JAM" {
		t.Errorf("ack: got %+v", resp)
	}

	got, ok := st.Lookup("jam")
	if !ok {
		t.Fatal("store.Lookup: expected entry, got none")
	}
	if got.TrackURI != "spotify:track:1" || got.PositionMs != 42_000 || !got.IsPlaying || got.Timestamp != 1_700_000_000_000 {
		t.Errorf("stored: got %+v", got)
	}

	read, err := client.ReadRoomState(ctx(t), &receiver.ReadRequest{RoomID: "JAM"})
	if err != nil {
		t.Fatalf("ReadRoomState: %v", err)
	}
	if !read.Found || read.State != resp.State {
		t.Errorf("read back: got %+v, want %+v", read.State, resp.State)
	}
}

func TestWriteRoomState_DefaultsTimestamp(t *testing.T) {
	client, _ := startServer(t, store.Config{})
	before := time.Now().UnixMilli()

	resp, err := client.WriteRoomState(ctx(t), &receiver.WriteRequest{RoomID: "r", IsPlaying: true})
	if err != nil {
		t.Fatalf("WriteRoomState: %v", err)
	}
	if resp.State.Timestamp < before {
		t.Errorf("Timestamp: got %d, want >= %d", resp.State.Timestamp, before)
	}
}

func TestWriteRoomState_InvalidArgument(t *testing.T) {
	client, st := startServer(t, store.Config{})

	reqs := map[string]*receiver.WriteRequest{
		"empty id":          {RoomID: " "},
		"long id":           {RoomID: strings.Repeat("x", 200)},
		"negative position": {RoomID: "r", PositionMs: -1},
		"negative time":     {RoomID: "r", Timestamp: -1},
	}
	for name, req := range reqs {
		t.Run(name, func(t *testing.T) {
			_, err := client.WriteRoomState(ctx(t), req)
			if status.Code(err) != codes.InvalidArgument {
				t.Errorf("code: got %v, want InvalidArgument", status.Code(err))
			}
		})
	}
	if st.Count() != 0 {
		t.Errorf("invalid writes reached the store: Count = %d", st.Count())
	}
}

func TestWriteRoomState_ResourceExhausted(t *testing.T) {
	client, _ := startServer(t, store.Config{MaxRooms: 1})

	if _, err := client.WriteRoomState(ctx(t), &receiver.WriteRequest{RoomID: "a"}); err != nil {
		t.Fatalf("first write: %v", err)
	}
	_, err := client.WriteRoomState(ctx(t), &receiver.WriteRequest{RoomID: "b"})
	if status.Code(err) != codes.ResourceExhausted {
		t.Errorf("code: got %v, want ResourceExhausted", status.Code(err))
	}
}

func TestHealth_ReportsRooms(t *testing.T) {
	client, st := startServer(t, store.Config{})
	for _, id := range []string{"a", "A", "b"} {
		if _, err := client.WriteRoomState(ctx(t), &receiver.WriteRequest{RoomID: id}); err != nil {
			t.Fatalf("write %s: %v", id, err)
		}
	}

	resp, err := client.Health(ctx(t), &receiver.HealthRequest{})
	if err != nil {
		t.Fatalf("Health: %v", err)
	}
	if resp.Status != "ok" || resp.Rooms != 2 || resp.Rooms != st.Count() {
		t.Errorf("Health: got %+v, want ok/2", resp)
	}
}

func TestInterceptorSeesFullMethod(t *testing.T) {
	var (
		mu   sync.Mutex
		seen []string
	)
	record := func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		mu.Lock()
		seen = append(seen, info.FullMethod)
		mu.Unlock()
		return handler(ctx, req)
	}
	client, _ := startServer(t, store.Config{}, grpc.UnaryInterceptor(record))

	if _, err := client.Health(ctx(t), &receiver.HealthRequest{}); err != nil {
		t.Fatalf("Health: %v", err)
	}
	mu.Lock()
	defer mu.Unlock()
	if len(seen) != 1 || seen[0] != "/roomsync.v1.RoomStateService/Health" {
		t.Errorf("FullMethod: got %v", seen)
	}
}
