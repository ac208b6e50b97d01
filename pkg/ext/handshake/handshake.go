// Package handshake drives the Hello -> Welcome -> Auth -> AuthResult
// connect exchange and tracks the resulting per-connection lifecycle
// state.
package handshake

import (
	"github.com/ventosilenzioso/reliudp/internal/telemetry"
	"github.com/ventosilenzioso/reliudp/pkg/conn"
	"github.com/ventosilenzioso/reliudp/pkg/protocol"
)

// State is the per-connection handshake lifecycle.
type State int

const (
	Unconnected State = iota
	HandshakeSent
	Authenticated
	Closed
)

func (s State) String() string {
	switch s {
	case Unconnected:
		return "unconnected"
	case HandshakeSent:
		return "handshake_sent"
	case Authenticated:
		return "authenticated"
	case Closed:
		return "closed"
	default:
		return "unknown"
	}
}

// Role distinguishes which side of the handshake this extension drives.
type Role int

const (
	RoleClient Role = iota
	RoleServer
)

// Authenticator validates a client's Auth token on the server side.
type Authenticator func(token []byte) (ok bool, reason string)

// AlwaysAllow is the default Authenticator used by NewServer when none is
// supplied: it accepts every token, useful for the demo command and tests.
func AlwaysAllow([]byte) (bool, string) { return true, "" }

// Extension drives one side of the handshake. Construct with NewClient or
// NewServer.
type Extension struct {
	role  Role
	state State
	cap   conn.Capability
	auth  Authenticator

	clientVersion uint32
	nickname      []byte
	token         []byte

	connID     uint16
	tickRateHz uint16

	metrics *telemetry.Sink
}

// NewClient constructs the connecting side: sends Hello on Init, then
// Auth once Welcome arrives.
func NewClient(clientVersion uint32, nickname, token []byte, metrics *telemetry.Sink) *Extension {
	return &Extension{
		role:          RoleClient,
		clientVersion: clientVersion,
		nickname:      nickname,
		token:         token,
		metrics:       metrics,
	}
}

// NewServer constructs the accepting side: answers Hello with Welcome and
// Auth with AuthResult via auth (AlwaysAllow if nil).
func NewServer(connID, tickRateHz uint16, auth Authenticator, metrics *telemetry.Sink) *Extension {
	if auth == nil {
		auth = AlwaysAllow
	}
	return &Extension{
		role:       RoleServer,
		connID:     connID,
		tickRateHz: tickRateHz,
		auth:       auth,
		metrics:    metrics,
	}
}

// State reports the current handshake lifecycle state.
func (e *Extension) State() State { return e.state }

func (e *Extension) Init(cap conn.Capability) {
	e.cap = cap
	if e.role == RoleClient {
		_ = e.cap.SendRecord(protocol.Hello{ClientVersion: e.clientVersion, Nickname: e.nickname})
		e.state = HandshakeSent
	}
}

// OnTick is a no-op: the handshake is entirely record-driven.
func (e *Extension) OnTick() {}

func (e *Extension) OnRecord(body protocol.Body) bool {
	switch v := body.(type) {
	case protocol.Hello:
		if e.role != RoleServer {
			return false
		}
		_ = e.cap.SendRecord(protocol.Welcome{ConnID: e.connID, TickRateHz: e.tickRateHz})
		e.state = HandshakeSent
		return true
	case protocol.Welcome:
		if e.role != RoleClient {
			return false
		}
		e.connID = v.ConnID
		e.tickRateHz = v.TickRateHz
		_ = e.cap.SendRecord(protocol.Auth{Token: e.token})
		return true
	case protocol.Auth:
		if e.role != RoleServer {
			return false
		}
		ok, reason := e.auth(v.Token)
		_ = e.cap.SendRecord(protocol.AuthResult{OK: ok, Reason: []byte(reason)})
		if ok {
			e.state = Authenticated
		} else {
			e.state = Closed
		}
		return true
	case protocol.AuthResult:
		if e.role != RoleClient {
			return false
		}
		if v.OK {
			e.state = Authenticated
		} else {
			e.state = Closed
		}
		return true
	case protocol.Disconnect:
		e.state = Closed
		return true
	default:
		return false
	}
}
