// Package receiver serves the room state operations over gRPC.
//
// The service is roomsync.v1.RoomStateService with three unary methods:
// ReadRoomState, WriteRoomState and Health. Messages are plain Go structs
// carried by a JSON codec (Codec), so the package needs no generated stubs.
// Servers must be built with ServerOptions(); Client forces the same codec on
// every call.
//
// Receiver validates room ids and numeric fields (codes.InvalidArgument) and
// maps store.ErrCapacity to codes.ResourceExhausted. Merging is left to the
// store.
package receiver
