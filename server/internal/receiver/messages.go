package receiver

// State is the wire form of a room register. An empty TrackURI means nothing
// is playing.
type State struct {
	TrackURI   string `json:"track_uri,omitempty"`
	PositionMs int64  `json:"position_ms"`
	IsPlaying  bool   `json:"is_playing"`
	Timestamp  int64  `json:"timestamp"`
}

type ReadRequest struct {
	RoomID string `json:"room_id"`
}

type ReadResponse struct {
	RoomID string `json:"room_id"`
	State  State  `json:"state"`
	// Found is false when State is the default register.
	Found  bool   `json:"found"`
}

// WriteRequest carries a full register. Timestamp 0 is stamped by the store.
type WriteRequest struct {
	RoomID     string `json:"room_id"`
	TrackURI   string `json:"track_uri,omitempty"`
	PositionMs int64  `json:"position_ms"`
	IsPlaying  bool   `json:"is_playing"`
	Timestamp  int64  `json:"timestamp,omitempty"`
}

type WriteResponse struct {
	Success bool   `json:"success"`
	RoomID  string `json:"room_id"`
	State   State  `json:"state"`
}

type HealthRequest struct{}

type HealthResponse struct {
	Status string `json:"status"`
	Rooms  int    `json:"rooms"`
}
