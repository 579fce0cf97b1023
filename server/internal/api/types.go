package api

import "github.com/roomsync/roomsync/server/internal/room"

// StateResponse is the JSON form of a room register. TrackURI is null when
// nothing is playing.
type StateResponse struct {
	TrackURI   *string `json:"trackUri"`
	PositionMs int64   `json:"positionMs"`
	IsPlaying  bool    `json:"isPlaying"`
	Timestamp  int64   `json:"timestamp"` // ms since epoch
}

// WriteRequest is the body of POST /rooms/{id}/state. Every field is optional.
type WriteRequest struct {
	TrackURI   *string  `json:"trackUri"`
	PositionMs *float64 `json:"positionMs"`
	IsPlaying  *bool    `json:"isPlaying"`
	Timestamp  *float64 `json:"timestamp"`
}

// WriteResponse is the payload for POST /rooms/{id}/state.
type WriteResponse struct {
	Success bool          `json:"success"`
	RoomID  string        `json:"roomId"`
	State   StateResponse `json:"state"`
}

// HealthResponse is the payload for GET /health.
type HealthResponse struct {
	Status string `json:"status"`
	Rooms  int    `json:"rooms"`
}

// errorResponse is a generic JSON error body.
type errorResponse struct {
	Error string `json:"error"`
}

func toStateResponse(s room.State) StateResponse {
	resp := StateResponse{
		PositionMs: s.PositionMs,
		IsPlaying:  s.IsPlaying,
		Timestamp:  s.Timestamp,
	}
	if s.TrackURI != "" {
		uri := s.TrackURI
		resp.TrackURI = &uri
	}
	return resp
}
