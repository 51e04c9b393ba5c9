package relay

import (
	"encoding/json"
	"time"
)

// Snapshot is the full game state for a room. The server never looks
// inside it except for the optional phase field used in logs.
type Snapshot = json.RawMessage

// EmptySnapshot is what a joining client receives when no state has been
// written yet. Clients always get a document, never silence.
var EmptySnapshot = Snapshot(`{}`)

type Player struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Index int    `json:"index"`
}

type Room struct {
	ID          string   `json:"id"`
	Host        string   `json:"host"`
	Players     []Player `json:"players"`
	GameStarted bool     `json:"gameStarted"`
	Created     int64    `json:"created"` // unix millis
}

// ChatPayload is fanned out to a whole room and never persisted.
type ChatPayload struct {
	Type    string `json:"type"`
	Message string `json:"message"`
	TS      int64  `json:"ts"`
}

// SnapshotPhase extracts the optional phase/status field from an opaque
// snapshot for logging. Empty string when missing or unparseable.
func SnapshotPhase(s Snapshot) string {
	var probe struct {
		Phase string `json:"phase"`
	}
	if err := json.Unmarshal(s, &probe); err != nil {
		return ""
	}
	return probe.Phase
}

// NowMillis is the server clock used for chat timestamps and creation
// times, in unix milliseconds to match the browser client.
func NowMillis() int64 {
	return time.Now().UnixMilli()
}
