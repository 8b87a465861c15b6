package ws

import "encoding/json"

// Inbound events sent by clients.
const (
	EventJoinRoom  = "join-room"
	EventLeaveRoom = "leave-room"
	EventPlay      = "play"
	EventPause     = "pause"
	EventSeek      = "seek"
)

// Outbound events relayed to the other peers of a room.
const (
	EventPlayVideo  = "play-video"
	EventPauseVideo = "pause-video"
	EventSeekVideo  = "seek-video"
	EventError      = "error"
)

type Inbound struct {
	Event  string   `json:"event"`
	RoomID string   `json:"roomId"`
	Time   *float64 `json:"time,omitempty"`
}

type Outbound struct {
	Event   string   `json:"event"`
	RoomID  string   `json:"roomId,omitempty"`
	Time    *float64 `json:"time,omitempty"`
	Message string   `json:"message,omitempty"`
}

func encode(out Outbound) []byte {
	b, _ := json.Marshal(out)
	return b
}

func errorFrame(roomID, msg string) []byte {
	return encode(Outbound{Event: EventError, RoomID: roomID, Message: msg})
}
