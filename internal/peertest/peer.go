// Package peertest provides an in-process session peer speaking the channel
// protocol over a real websocket, for tests.
package peertest

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/harun/deskpilot/pkg/channel"
	"github.com/harun/deskpilot/pkg/command"
	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/rs/zerolog"
)

// ErrNoResponse makes the peer accept a command without ever answering it.
var ErrNoResponse = errors.New("no response")

// CommandHandler executes a command on the fake desktop.
type CommandHandler func(env command.Envelope) (interface{}, error)

// Peer is a loopback session peer.
type Peer struct {
	secret   string
	server   *httptest.Server
	upgrader websocket.Upgrader
	logger   zerolog.Logger
	seq      atomic.Int64

	mu           sync.Mutex
	conns        map[*peerConn]struct{}
	sessions     map[string]string
	handler      CommandHandler
	received     []command.Envelope
	executed     []command.Envelope
	dropCommands int
	loseReplies  int
	rejectResume bool
	duplicate    bool
	readyAtOnce  bool
	accepted     int
	resumes      int
	endSessions  int
}

type peerConn struct {
	conn    *websocket.Conn
	writeMu sync.Mutex
}

func (pc *peerConn) writeJSON(v interface{}) error {
	pc.writeMu.Lock()
	defer pc.writeMu.Unlock()
	return pc.conn.WriteJSON(v)
}

// Option configures a Peer.
type Option func(*Peer)

// WithHandler sets the command handler. The default succeeds with no result.
func WithHandler(h CommandHandler) Option {
	return func(p *Peer) { p.handler = h }
}

// WithSecret sets the shared secret used for the HMAC challenge.
func WithSecret(secret string) Option {
	return func(p *Peer) { p.secret = secret }
}

// WithReadyOnCreate makes createSession report the session ready at once
// instead of pushing sessionReady afterwards.
func WithReadyOnCreate() Option {
	return func(p *Peer) { p.readyAtOnce = true }
}

// New starts a peer that is shut down when the test ends.
func New(t testing.TB, opts ...Option) *Peer {
	t.Helper()

	p := &Peer{
		secret:   "test-secret",
		logger:   zerolog.Nop(),
		conns:    make(map[*peerConn]struct{}),
		sessions: make(map[string]string),
		handler: func(command.Envelope) (interface{}, error) {
			return nil, nil
		},
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
	for _, opt := range opts {
		opt(p)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", p.handleWebSocket)
	p.server = httptest.NewServer(mux)
	t.Cleanup(p.Close)
	return p
}

// URL returns the websocket endpoint.
func (p *Peer) URL() string {
	return "ws" + strings.TrimPrefix(p.server.URL, "http") + "/ws"
}

// Secret returns the shared secret.
func (p *Peer) Secret() string { return p.secret }

// Close shuts the peer down.
func (p *Peer) Close() {
	p.DropConnections()
	p.server.Close()
}

// DropNextCommands makes the peer close the connection on receipt of the
// next n sendCommand calls, without executing them.
func (p *Peer) DropNextCommands(n int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.dropCommands = n
}

// LoseNextResponses makes the peer execute the next n commands and then
// close the connection before pushing their responses.
func (p *Peer) LoseNextResponses(n int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.loseReplies = n
}

// RejectResume makes resumeSession fail.
func (p *Peer) RejectResume(reject bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.rejectResume = reject
}

// DuplicateResponses makes the peer push every command response twice.
func (p *Peer) DuplicateResponses(dup bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.duplicate = dup
}

// DropConnections closes every live connection.
func (p *Peer) DropConnections() {
	p.mu.Lock()
	conns := make([]*peerConn, 0, len(p.conns))
	for pc := range p.conns {
		conns = append(conns, pc)
	}
	p.mu.Unlock()

	for _, pc := range conns {
		_ = pc.conn.Close()
	}
}

// Push sends an event to every connected client.
func (p *Peer) Push(event string, data interface{}) {
	p.mu.Lock()
	conns := make([]*peerConn, 0, len(p.conns))
	for pc := range p.conns {
		conns = append(conns, pc)
	}
	p.mu.Unlock()

	for _, pc := range conns {
		p.push(pc, event, data)
	}
}

// Received returns every command envelope the peer received.
func (p *Peer) Received() []command.Envelope {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]command.Envelope(nil), p.received...)
}

// Executed returns every command envelope the peer executed.
func (p *Peer) Executed() []command.Envelope {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]command.Envelope(nil), p.executed...)
}

// Connections returns how many clients authenticated.
func (p *Peer) Connections() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.accepted
}

// Resumes returns how many resumeSession calls succeeded.
func (p *Peer) Resumes() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.resumes
}

// EndSessions returns how many endSession calls were received.
func (p *Peer) EndSessions() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.endSessions
}

func (p *Peer) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := p.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	pc := &peerConn{conn: conn}

	if err := p.authenticate(pc); err != nil {
		_ = conn.Close()
		return
	}

	p.mu.Lock()
	p.conns[pc] = struct{}{}
	p.accepted++
	p.mu.Unlock()

	defer func() {
		p.mu.Lock()
		delete(p.conns, pc)
		p.mu.Unlock()
		_ = conn.Close()
	}()

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var req channel.Request
		if err := json.Unmarshal(message, &req); err != nil {
			p.respondError(pc, "", channel.ParseError, "Parse error")
			continue
		}
		if !p.handleRequest(pc, req, message) {
			return
		}
	}
}

func (p *Peer) authenticate(pc *peerConn) error {
	challengeBytes := make([]byte, 32)
	if _, err := rand.Read(challengeBytes); err != nil {
		return fmt.Errorf("failed to generate challenge: %w", err)
	}
	challenge := hex.EncodeToString(challengeBytes)

	if err := pc.writeJSON(channel.AuthChallenge{Event: channel.EventAuthChallenge, Challenge: challenge}); err != nil {
		return err
	}

	_ = pc.conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var resp channel.AuthResponse
	if err := pc.conn.ReadJSON(&resp); err != nil {
		return err
	}
	_ = pc.conn.SetReadDeadline(time.Time{})

	expected := channel.Sign(p.secret, challenge)
	if resp.Method != channel.MethodAuthResponse ||
		subtle.ConstantTimeCompare([]byte(expected), []byte(resp.Signature)) != 1 {
		_ = pc.writeJSON(channel.AuthResult{Event: channel.EventAuthFailure, Message: "Invalid signature"})
		return errors.New("invalid signature")
	}
	return pc.writeJSON(channel.AuthResult{Event: channel.EventAuthSuccess, Success: true})
}

// handleRequest answers one RPC. It reports false when the connection was
// dropped on purpose.
func (p *Peer) handleRequest(pc *peerConn, req channel.Request, raw []byte) bool {
	var params struct {
		Params json.RawMessage `json:"params"`
	}
	_ = json.Unmarshal(raw, &params)

	switch req.Method {
	case channel.MethodCreateSession:
		id, _ := gonanoid.New()
		status := "provisioning"
		if p.readyAtOnce {
			status = "ready"
		}
		p.mu.Lock()
		p.sessions[id] = status
		p.mu.Unlock()

		p.respond(pc, req.ID, channel.CreateSessionResult{SessionID: id, Status: status})
		if !p.readyAtOnce {
			p.mu.Lock()
			p.sessions[id] = "ready"
			p.mu.Unlock()
			p.push(pc, channel.EventSessionReady, channel.SessionEvent{SessionID: id})
		}

	case channel.MethodResumeSession:
		var in struct {
			SessionID string `json:"sessionId"`
		}
		_ = json.Unmarshal(params.Params, &in)

		p.mu.Lock()
		_, known := p.sessions[in.SessionID]
		reject := p.rejectResume
		if known && !reject {
			p.resumes++
		}
		p.mu.Unlock()

		if !known || reject {
			p.respondError(pc, req.ID, channel.InvalidParams, "session cannot be resumed")
			return true
		}
		p.respond(pc, req.ID, channel.ResumeSessionResult{Status: "ready"})

	case channel.MethodSendCommand:
		var env command.Envelope
		if err := json.Unmarshal(params.Params, &env); err != nil {
			p.respondError(pc, req.ID, channel.InvalidParams, "invalid envelope")
			return true
		}

		p.mu.Lock()
		p.received = append(p.received, env)
		drop := p.dropCommands > 0
		if drop {
			p.dropCommands--
		}
		p.mu.Unlock()

		if drop {
			_ = pc.conn.Close()
			return false
		}

		p.respond(pc, req.ID, map[string]interface{}{"accepted": true})
		go p.execute(pc, env)

	case channel.MethodGetAccessCredentials:
		p.respond(pc, req.ID, map[string]interface{}{
			"url":       p.URL(),
			"token":     "access-token",
			"expiresIn": 3600,
		})

	case channel.MethodEndSession:
		p.mu.Lock()
		p.endSessions++
		p.mu.Unlock()
		p.respond(pc, req.ID, map[string]interface{}{})

	default:
		p.respondError(pc, req.ID, channel.MethodNotFound, fmt.Sprintf("Method not found: %s", req.Method))
	}
	return true
}

func (p *Peer) execute(pc *peerConn, env command.Envelope) {
	start := time.Now()
	result, err := p.handler(env)
	if errors.Is(err, ErrNoResponse) {
		return
	}

	p.mu.Lock()
	p.executed = append(p.executed, env)
	duplicate := p.duplicate
	lose := p.loseReplies > 0
	if lose {
		p.loseReplies--
	}
	p.mu.Unlock()

	if lose {
		_ = pc.conn.Close()
		return
	}

	resp := command.Response{
		SessionID:     env.SessionID,
		CorrelationID: env.CorrelationID,
		Success:       err == nil,
		DurationMs:    time.Since(start).Milliseconds(),
	}
	if err != nil {
		resp.ErrorCode = "command_failed"
		resp.ErrorMessage = err.Error()
	} else if result != nil {
		resp.Result, _ = json.Marshal(result)
	}

	p.push(pc, channel.EventCommandResponse, resp)
	if duplicate {
		p.push(pc, channel.EventCommandResponse, resp)
	}
}

func (p *Peer) respond(pc *peerConn, id string, result interface{}) {
	data, err := json.Marshal(result)
	if err != nil {
		p.respondError(pc, id, channel.InternalError, err.Error())
		return
	}
	_ = pc.writeJSON(channel.Response{ID: id, Result: data, JSONRPC: "2.0"})
}

func (p *Peer) respondError(pc *peerConn, id string, code int, message string) {
	_ = pc.writeJSON(channel.Response{
		ID:      id,
		JSONRPC: "2.0",
		Error:   &channel.RPCError{Code: code, Message: message},
	})
}

func (p *Peer) push(pc *peerConn, event string, data interface{}) {
	raw, err := json.Marshal(data)
	if err != nil {
		return
	}
	_ = pc.writeJSON(channel.Event{
		Type:      "event",
		Event:     event,
		Seq:       p.seq.Add(1),
		Data:      raw,
		Timestamp: time.Now().UnixMilli(),
	})
}
