package model

// Frame types sent on the tail websocket.
const (
	FrameSnapshot = "snapshot"
	FrameStatus   = "status"
)

// TailFrame is one websocket message of the live tail. A snapshot carries the
// full newest window ascending; a status frame reports the server-side
// subscription state.
type TailFrame struct {
	Type     string    `json:"type"`
	Messages []Message `json:"messages,omitempty"`
	Status   string    `json:"status,omitempty"`
	Error    string    `json:"error,omitempty"`
}

// MessagePage is the JSON body of a backward page read.
type MessagePage struct {
	Messages  []Message `json:"messages"`
	Next      string    `json:"next,omitempty"`
	Exhausted bool      `json:"exhausted"`
}
