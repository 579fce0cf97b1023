package receiver

import (
	"context"
	"errors"
	"log/slog"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/roomsync/roomsync/server/internal/room"
	"github.com/roomsync/roomsync/server/internal/store"
)

// Receiver implements RoomStateServer on top of the room state store.
type Receiver struct {
	store *store.Store
}

// New creates a Receiver that reads and writes st.
func New(st *store.Store) *Receiver {
	return &Receiver{store: st}
}

// ReadRoomState returns the register for req.RoomID, or the default register
// with Found=false.
func (r *Receiver) ReadRoomState(_ context.Context, req *ReadRequest) (*ReadResponse, error) {
	id, err := room.Validate(req.RoomID)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	st, found := r.store.Lookup(id)
	return &ReadResponse{RoomID: id, State: fromRoom(st), Found: found}, nil
}

// WriteRoomState stores req and returns the canonical register.
func (r *Receiver) WriteRoomState(_ context.Context, req *WriteRequest) (*WriteResponse, error) {
	id, err := room.Validate(req.RoomID)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	if req.PositionMs < 0 {
		return nil, status.Error(codes.InvalidArgument, "position_ms must not be negative")
	}
	if req.Timestamp < 0 {
		return nil, status.Error(codes.InvalidArgument, "timestamp must not be negative")
	}

	stored, err := r.store.Put(id, room.State{
		TrackURI:   req.TrackURI,
		PositionMs: req.PositionMs,
		IsPlaying:  req.IsPlaying,
		Timestamp:  req.Timestamp,
	})
	if errors.Is(err, store.ErrCapacity) {
		slog.Warn("receiver: room cap reached, write refused", "room", id)
		return nil, status.Error(codes.ResourceExhausted, err.Error())
	}
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}

	slog.Debug("receiver: room state written",
		"room", id,
		"track", stored.TrackURI,
		"position_ms", stored.PositionMs,
		"playing", stored.IsPlaying,
	)

	return &WriteResponse{Success: true, RoomID: id, State: fromRoom(stored)}, nil
}

// Health reports the number of tracked rooms.
func (r *Receiver) Health(context.Context, *HealthRequest) (*HealthResponse, error) {
	return &HealthResponse{Status: "ok", Rooms: r.store.Count()}, nil
}

func fromRoom(s room.State) State {
	return State{
		TrackURI:   s.TrackURI,
		PositionMs: s.PositionMs,
		IsPlaying:  s.IsPlaying,
		Timestamp:  s.Timestamp,
	}
}
