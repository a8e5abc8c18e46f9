// Package ipc implements the unix-socket control channel for a running daemon.
package ipc

// Request is one newline-delimited JSON command from a control client.
type Request struct {
	Command string `json:"command"`
}

// Response reports the outcome of one command along with the daemon state.
type Response struct {
	OK      bool   `json:"ok"`
	State   string `json:"state,omitempty"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}
