// Package types defines the websocket envelopes.
package types

import (
	"github.com/osohbayr1016/standoff2-sub004/internal/engine"
	pub "github.com/osohbayr1016/standoff2-sub004/pkg/types"
)

// ClientMessage is a lobby command sent over the lobby stream.
type ClientMessage struct {
	Type     string `json:"type"` // "SelectTeam" | "BanMap" | "MarkReady" | "Leave"
	Side     string `json:"side,omitempty"`
	Map      string `json:"map,omitempty"`
	TargetID string `json:"target_id,omitempty"`
}

type ServerMessage struct {
	Type         string           `json:"type"` // "StateSnapshot" | "QueueTotal" | "Error"
	Version      int              `json:"version,omitempty"`
	State        *engine.State    `json:"state,omitempty"`
	TotalWaiting *int             `json:"total_waiting,omitempty"`
	Error        *pub.ErrorDetail `json:"error,omitempty"`
}

const (
	MsgStateSnapshot = "StateSnapshot"
	MsgQueueTotal    = "QueueTotal"
	MsgError         = "Error"
)
