// Package live manages the duplex WebSocket channel to the inference
// endpoint: realtime media goes out, synthesized audio and transcripts come
// back.
package live

import (
	"errors"
	"fmt"
)

var (
	// ErrPermissionDenied means the endpoint rejected the credential.
	ErrPermissionDenied = errors.New("permission denied")
	// ErrTransport covers every other channel failure.
	ErrTransport = errors.New("transport error")
	// ErrRemoteClosed describes an orderly close initiated by the endpoint.
	ErrRemoteClosed = errors.New("remote closed")
	// ErrBusy is returned by Start while a channel is still open.
	ErrBusy = errors.New("channel already open")
)

// State is the lifecycle of one channel.
type State int32

const (
	Idle State = iota
	Connecting
	Active
	Closing
	Closed
	Errored
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Connecting:
		return "connecting"
	case Active:
		return "active"
	case Closing:
		return "closing"
	case Closed:
		return "closed"
	case Errored:
		return "errored"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Speaker identifies whose speech a transcript fragment belongs to.
type Speaker int

const (
	Model Speaker = iota
	User
)

// Transcript is one incremental transcript fragment. Fragments are not
// cumulative.
type Transcript struct {
	Text    string
	Final   bool
	Speaker Speaker
}

// Handlers receive channel events. They run on the channel's reader
// goroutine and must not block for long; none fire after Stop returns.
type Handlers struct {
	OnOpen       func()
	OnAudio      func(pcm []byte)
	OnTranscript func(Transcript)
	OnError      func(error)
	OnClose      func()
}
