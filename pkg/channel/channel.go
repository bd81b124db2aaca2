package channel

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/harun/deskpilot/internal/observability"
	"github.com/harun/deskpilot/internal/tracing"
	"github.com/harun/deskpilot/pkg/command"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
)

const tracerName = "github.com/harun/deskpilot/pkg/channel"

var errAuthenticationFailed = errors.New("authentication failed")

// Channel is a reconnecting, correlation-keyed request/response transport to
// the peer hosting a desktop session. It is safe for concurrent use.
type Channel struct {
	opts   Options
	logger zerolog.Logger

	mu           sync.Mutex
	conn         *websocket.Conn
	session      Session
	sessionErr   error
	barrier      *barrier
	stateChanged chan struct{}
	readySeen    bool
	closing      bool

	writeMu sync.Mutex

	commands *pendingTable
	calls    *pendingTable
	rpcSeq   atomic.Uint64

	assetMu       sync.RWMutex
	assetHandlers []func(Asset)

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// Connect dials the peer, authenticates and creates a session. It returns
// once the peer has assigned a session id; the session may still be
// provisioning.
func Connect(ctx context.Context, opts Options) (*Channel, error) {
	if err := opts.validate(); err != nil {
		return nil, &ConnectionError{Op: "connect", Err: err}
	}
	opts.applyDefaults()

	baseCtx, cancel := context.WithCancel(context.Background())
	c := &Channel{
		opts:         opts,
		logger:       opts.Logger.With().Str("component", "channel").Logger(),
		stateChanged: make(chan struct{}),
		commands:     newPendingTable(observability.SetPendingRequests),
		calls:        newPendingTable(nil),
		ctx:          baseCtx,
		cancel:       cancel,
	}
	c.session.State = StateCreated

	c.mu.Lock()
	c.transition(StateConnecting)
	c.mu.Unlock()

	conn, err := c.dial(ctx)
	if err != nil {
		c.abort()
		return nil, &ConnectionError{Op: "connect", Err: err}
	}
	c.attach(conn)

	raw, err := c.call(ctx, conn, MethodCreateSession, map[string]interface{}{"spec": opts.Spec})
	if err != nil {
		c.abort()
		return nil, err
	}

	var created CreateSessionResult
	if err := json.Unmarshal(raw, &created); err != nil || created.SessionID == "" {
		c.abort()
		return nil, &ProtocolError{Code: "invalid_response", Message: "createSession returned no session id"}
	}

	c.mu.Lock()
	c.session.ID = created.SessionID
	c.session.CreatedAt = time.Now()
	next := StateProvisioning
	if created.Status == "ready" || c.readySeen {
		next = StateReady
	}
	c.transition(next)
	c.mu.Unlock()

	c.logger.Info().
		Str("sessionId", created.SessionID).
		Str("status", created.Status).
		Msg("Session created")
	observability.RecordSessionAudit(ctx, "session.create", created.SessionID, "success")

	return c, nil
}

// Session returns a snapshot of the session.
func (c *Channel) Session() Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session
}

// State returns the current session state.
func (c *Channel) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session.State
}

// OnAsset registers fn to be called for every assetCaptured event.
func (c *Channel) OnAsset(fn func(Asset)) {
	c.assetMu.Lock()
	defer c.assetMu.Unlock()
	c.assetHandlers = append(c.assetHandlers, fn)
}

// Send transmits cmd and waits for its response. A new correlation id is
// used for every attempt; failures caused by a closed or terminated
// connection are retried after the reconnect barrier opens. The result
// payload is returned only when expectsResult is set.
func (c *Channel) Send(ctx context.Context, cmd command.Command, expectsResult bool, opts ...SendOption) (json.RawMessage, error) {
	so := sendOptions{timeout: c.opts.RequestTimeout}
	for _, opt := range opts {
		opt(&so)
	}

	ctx, span := tracing.StartSpan(ctx, tracerName, "channel.send",
		attribute.String("command.kind", string(cmd.Kind)),
	)
	start := time.Now()

	result, err := c.send(ctx, cmd, so)

	observability.RecordChannelSend(cmd.Kind.Capability(), time.Since(start), err == nil)
	tracing.EndSpan(span, err)

	if err != nil {
		return nil, err
	}
	if !expectsResult {
		return nil, nil
	}
	return result, nil
}

func (c *Channel) send(ctx context.Context, cmd command.Command, so sendOptions) (json.RawMessage, error) {
	var lastErr error
	for attempt := 1; attempt <= c.opts.MaxAttempts; attempt++ {
		result, err := c.sendOnce(ctx, cmd, so.timeout)
		if err == nil {
			return result, nil
		}
		lastErr = err

		if !IsRetryable(err) || attempt == c.opts.MaxAttempts {
			break
		}

		observability.RecordChannelRetry(cmd.Kind.Capability())
		c.logger.Warn().
			Err(err).
			Str("kind", string(cmd.Kind)).
			Int("attempt", attempt).
			Msg("Command failed on a closed connection, retrying")

		if err := c.awaitRecovery(ctx); err != nil {
			return nil, err
		}
	}
	return nil, lastErr
}

func (c *Channel) sendOnce(ctx context.Context, cmd command.Command, timeout time.Duration) (json.RawMessage, error) {
	conn, sessionID, err := c.readyConn(ctx)
	if err != nil {
		return nil, err
	}

	correlationID := uuid.NewString()
	env, err := command.Seal(cmd, sessionID, correlationID, time.Now())
	if err != nil {
		return nil, err
	}

	req, err := c.commands.register(correlationID)
	if err != nil {
		return nil, err
	}
	defer c.commands.remove(correlationID)

	logger := c.logger.With().
		Str("correlationId", correlationID).
		Str("kind", string(cmd.Kind)).
		Logger()
	logger.Debug().Msg("Sending command")

	if err := c.write(conn, Request{ID: correlationID, Method: MethodSendCommand, Params: env, JSONRPC: "2.0"}); err != nil {
		return nil, &ConnectionError{Op: "send", Err: fmt.Errorf("%w: %v", ErrConnectionClosed, err)}
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case out := <-req.done:
		return out.result, out.err
	case <-timer.C:
		logger.Warn().Dur("timeout", timeout).Msg("Command timed out")
		return nil, &TimeoutError{Op: string(cmd.Kind), Timeout: timeout}
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-c.ctx.Done():
		return nil, &ConnectionError{Op: "send", Err: ErrShutdown}
	}
}

// awaitRecovery blocks until a running reconnection finishes, or for the
// short retry delay when none is running.
func (c *Channel) awaitRecovery(ctx context.Context) error {
	c.mu.Lock()
	b := c.barrier
	c.mu.Unlock()

	if b != nil {
		return b.wait(ctx, c.opts.BarrierTimeout)
	}

	timer := time.NewTimer(c.opts.RetryDelay)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-c.ctx.Done():
		return &ConnectionError{Op: "send", Err: ErrShutdown}
	}
}

// readyConn returns the live connection once the session is ready, waiting
// at most BarrierTimeout for provisioning or reconnection to finish.
func (c *Channel) readyConn(ctx context.Context) (*websocket.Conn, string, error) {
	deadline := time.Now().Add(c.opts.BarrierTimeout)

	for {
		c.mu.Lock()
		state := c.session.State
		conn := c.conn
		sessionID := c.session.ID
		b := c.barrier
		changed := c.stateChanged
		sessionErr := c.sessionErr
		c.mu.Unlock()

		switch {
		case state == StateReady && conn != nil:
			return conn, sessionID, nil
		case state == StateError:
			if sessionErr == nil {
				sessionErr = &ProtocolError{Code: "session_error", Message: "session failed"}
			}
			return nil, "", sessionErr
		case state == StateStopping || state == StateStopped:
			return nil, "", &ConnectionError{Op: "send", Err: ErrShutdown}
		}

		remaining := time.Until(deadline)
		if remaining <= 0 {
			return nil, "", &TimeoutError{Op: "await ready", Timeout: c.opts.BarrierTimeout}
		}

		if b != nil {
			if err := b.wait(ctx, remaining); err != nil {
				return nil, "", err
			}
			continue
		}

		timer := time.NewTimer(remaining)
		select {
		case <-changed:
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return nil, "", ctx.Err()
		case <-c.ctx.Done():
			timer.Stop()
			return nil, "", &ConnectionError{Op: "send", Err: ErrShutdown}
		}
		timer.Stop()
	}
}

// WaitUntilReady blocks until the session is ready, the session fails, or
// timeout elapses.
func (c *Channel) WaitUntilReady(ctx context.Context, timeout time.Duration) error {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for {
		c.mu.Lock()
		state := c.session.State
		changed := c.stateChanged
		sessionErr := c.sessionErr
		c.mu.Unlock()

		switch state {
		case StateReady:
			return nil
		case StateError:
			return sessionErr
		case StateStopping, StateStopped:
			return &ConnectionError{Op: "wait", Err: ErrShutdown}
		}

		select {
		case <-changed:
		case <-timer.C:
			return &TimeoutError{Op: "wait until ready", Timeout: timeout}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// AccessCredentials requests credentials for direct access to the session,
// valid for duration when it is positive.
func (c *Channel) AccessCredentials(ctx context.Context, duration time.Duration) (json.RawMessage, error) {
	conn, sessionID, err := c.readyConn(ctx)
	if err != nil {
		return nil, err
	}

	params := map[string]interface{}{"sessionId": sessionID}
	if duration > 0 {
		params["durationSeconds"] = int(duration.Seconds())
	}
	return c.call(ctx, conn, MethodGetAccessCredentials, params)
}

// Close notifies the peer that the session ended, then releases the
// connection and fails every pending request. Notification failures are
// logged; Close itself always succeeds.
func (c *Channel) Close(ctx context.Context) error {
	c.mu.Lock()
	if c.closing {
		c.mu.Unlock()
		return nil
	}
	c.closing = true
	conn := c.conn
	sessionID := c.session.ID
	notify := conn != nil && sessionID != "" &&
		(c.session.State == StateReady || c.session.State == StateProvisioning)
	if !c.session.State.Terminal() {
		c.transition(StateStopping)
	}
	b := c.barrier
	c.barrier = nil
	c.mu.Unlock()

	if notify {
		callCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		if _, err := c.call(callCtx, conn, MethodEndSession, map[string]interface{}{"sessionId": sessionID}); err != nil {
			c.logger.Warn().Err(err).Str("sessionId", sessionID).Msg("Failed to notify session end")
		}
		cancel()
	}

	c.cancel()
	shutdownErr := &ConnectionError{Op: "send", Err: ErrShutdown}
	if b != nil {
		b.release(shutdownErr)
	}
	c.commands.failAll(shutdownErr)
	c.calls.failAll(shutdownErr)

	c.mu.Lock()
	conn = c.conn
	c.conn = nil
	c.mu.Unlock()
	if conn != nil {
		_ = conn.Close()
	}
	c.wg.Wait()

	c.mu.Lock()
	if c.session.State == StateStopping {
		c.transition(StateStopped)
	}
	c.mu.Unlock()

	c.logger.Info().Str("sessionId", sessionID).Msg("Channel closed")
	observability.RecordSessionAudit(ctx, "session.end", sessionID, "success")
	return nil
}

// abort tears down a channel whose Connect failed.
func (c *Channel) abort() {
	c.mu.Lock()
	c.closing = true
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()

	c.cancel()
	if conn != nil {
		_ = conn.Close()
	}
	c.wg.Wait()
}

func (c *Channel) dial(ctx context.Context) (*websocket.Conn, error) {
	header := http.Header{}
	if c.opts.Token != "" {
		header.Set("Authorization", "Bearer "+c.opts.Token)
	}

	conn, resp, err := c.opts.Dialer.DialContext(ctx, c.opts.URL, header)
	if err != nil {
		if resp != nil && (resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden) {
			return nil, fmt.Errorf("%w: %s", errAuthenticationFailed, resp.Status)
		}
		return nil, fmt.Errorf("dial failed: %w", err)
	}

	if err := c.authenticate(conn); err != nil {
		_ = conn.Close()
		return nil, err
	}
	return conn, nil
}

// authenticate answers the peer's HMAC challenge.
func (c *Channel) authenticate(conn *websocket.Conn) error {
	deadline := time.Now().Add(c.opts.HandshakeTimeout)
	_ = conn.SetReadDeadline(deadline)
	defer func() { _ = conn.SetReadDeadline(time.Time{}) }()

	var challenge AuthChallenge
	if err := conn.ReadJSON(&challenge); err != nil {
		return fmt.Errorf("failed to read auth challenge: %w", err)
	}
	if challenge.Event != EventAuthChallenge || challenge.Challenge == "" {
		return &ProtocolError{Code: "handshake", Message: fmt.Sprintf("unexpected handshake event: %q", challenge.Event)}
	}

	resp := AuthResponse{
		Method:    MethodAuthResponse,
		Signature: Sign(c.opts.SharedSecret, challenge.Challenge),
	}
	if err := c.write(conn, resp); err != nil {
		return fmt.Errorf("failed to send auth response: %w", err)
	}

	var result AuthResult
	if err := conn.ReadJSON(&result); err != nil {
		return fmt.Errorf("failed to read auth result: %w", err)
	}
	if result.Event != EventAuthSuccess {
		return fmt.Errorf("%w: %s", errAuthenticationFailed, result.Message)
	}
	return nil
}

// attach makes conn the live connection and starts its reader. It reports
// false when the channel is shutting down.
func (c *Channel) attach(conn *websocket.Conn) bool {
	c.mu.Lock()
	if c.closing {
		c.mu.Unlock()
		_ = conn.Close()
		return false
	}
	c.conn = conn
	c.wg.Add(1)
	c.mu.Unlock()

	go c.readLoop(conn)
	return true
}

func (c *Channel) detach(conn *websocket.Conn) {
	c.mu.Lock()
	if c.conn == conn {
		c.conn = nil
	}
	c.mu.Unlock()
	_ = conn.Close()
}

func (c *Channel) write(conn *websocket.Conn, v interface{}) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	_ = conn.SetWriteDeadline(time.Now().Add(c.opts.HandshakeTimeout))
	return conn.WriteJSON(v)
}

// call issues a JSON-RPC request on conn and waits for its response.
func (c *Channel) call(ctx context.Context, conn *websocket.Conn, method string, params interface{}) (json.RawMessage, error) {
	id := "rpc-" + strconv.FormatUint(c.rpcSeq.Add(1), 10)
	req, err := c.calls.register(id)
	if err != nil {
		return nil, err
	}
	defer c.calls.remove(id)

	if err := c.write(conn, Request{ID: id, Method: method, Params: params, JSONRPC: "2.0"}); err != nil {
		return nil, &ConnectionError{Op: method, Err: fmt.Errorf("%w: %v", ErrConnectionClosed, err)}
	}

	timer := time.NewTimer(c.opts.RequestTimeout)
	defer timer.Stop()

	select {
	case out := <-req.done:
		return out.result, out.err
	case <-timer.C:
		return nil, &TimeoutError{Op: method, Timeout: c.opts.RequestTimeout}
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-c.ctx.Done():
		return nil, &ConnectionError{Op: method, Err: ErrShutdown}
	}
}

func (c *Channel) readLoop(conn *websocket.Conn) {
	defer c.wg.Done()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			c.handleTransportLoss(conn, err)
			return
		}
		c.dispatch(data)
	}
}

func (c *Channel) dispatch(data []byte) {
	var f frame
	if err := json.Unmarshal(data, &f); err != nil {
		c.logger.Warn().Err(err).Msg("Discarding malformed frame")
		return
	}

	if f.isEvent() {
		c.handleEvent(f)
		return
	}
	if f.ID == "" {
		c.logger.Warn().Msg("Discarding frame without id")
		return
	}

	var out outcome
	if f.Error != nil {
		out.err = &ProtocolError{Code: strconv.Itoa(f.Error.Code), Message: f.Error.Message}
	} else {
		out.result = f.Result
	}

	if c.calls.resolve(f.ID, out) {
		return
	}

	// sendCommand acknowledgements carry the correlation id; only a
	// rejected command resolves its waiter here.
	if f.Error != nil && !c.commands.resolve(f.ID, out) {
		c.logger.Debug().Str("id", f.ID).Msg("Discarding rejection with no pending request")
	}
}

func (c *Channel) handleEvent(f frame) {
	switch f.Event {
	case EventCommandResponse:
		var resp command.Response
		if err := json.Unmarshal(f.Data, &resp); err != nil || resp.CorrelationID == "" {
			c.logger.Warn().Err(err).Msg("Discarding malformed command response")
			return
		}
		out := outcome{result: resp.Result}
		if !resp.Success {
			out = outcome{err: &ProtocolError{Code: resp.ErrorCode, Message: resp.ErrorMessage}}
		}
		if !c.commands.resolve(resp.CorrelationID, out) {
			observability.RecordDiscardedResponse()
			c.logger.Debug().
				Str("correlationId", resp.CorrelationID).
				Msg("Discarding response with no pending request")
		}

	case EventSessionReady:
		var ev SessionEvent
		_ = json.Unmarshal(f.Data, &ev)
		if !c.currentSession(ev.SessionID) {
			return
		}
		c.markReady()

	case EventSessionStateChanged:
		var ev SessionEvent
		if err := json.Unmarshal(f.Data, &ev); err != nil {
			c.logger.Warn().Err(err).Msg("Discarding malformed state change")
			return
		}
		if !c.currentSession(ev.SessionID) {
			return
		}
		c.applyPeerState(ev.State)

	case EventError:
		var ev ErrorEvent
		if err := json.Unmarshal(f.Data, &ev); err != nil || ev.Message == "" {
			ev.Message = "peer reported an error"
		}
		if !c.currentSession(ev.SessionID) {
			return
		}
		c.failSession(&ProtocolError{Code: ev.Code, Message: ev.Message})

	case EventAssetCaptured:
		var asset Asset
		if err := json.Unmarshal(f.Data, &asset); err != nil {
			c.logger.Warn().Err(err).Msg("Discarding malformed asset event")
			return
		}
		c.assetMu.RLock()
		handlers := append([]func(Asset){}, c.assetHandlers...)
		c.assetMu.RUnlock()
		for _, h := range handlers {
			h(asset)
		}

	default:
		c.logger.Debug().Str("event", f.Event).Msg("Ignoring event")
	}
}

func (c *Channel) currentSession(id string) bool {
	if id == "" {
		return true
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session.ID == "" || c.session.ID == id
}

func (c *Channel) markReady() {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.session.State {
	case StateConnecting:
		c.readySeen = true
	case StateProvisioning:
		c.transition(StateReady)
	}
}

func (c *Channel) applyPeerState(name string) {
	state, ok := parsePeerState(name)
	if !ok {
		c.logger.Warn().Str("state", name).Msg("Ignoring unknown peer state")
		return
	}

	switch state {
	case StateReady:
		c.markReady()
	case StateError:
		c.failSession(&ProtocolError{Code: "session_error", Message: "peer reported session error"})
	case StateStopping, StateStopped:
		c.mu.Lock()
		c.transition(StateStopping)
		if state == StateStopped {
			c.transition(StateStopped)
		}
		b := c.barrier
		c.barrier = nil
		c.mu.Unlock()

		err := &ProtocolError{Code: "session_stopped", Message: "session stopped by peer"}
		if b != nil {
			b.release(err)
		}
		c.commands.failAll(err)
	default:
		c.logger.Debug().Str("state", name).Msg("Ignoring peer state")
	}
}

// failSession moves the session to Error, opening any reconnect barrier with
// err and failing every pending request.
func (c *Channel) failSession(err error) {
	c.mu.Lock()
	if c.session.State.Terminal() {
		c.mu.Unlock()
		return
	}
	c.sessionErr = err
	c.transition(StateError)
	b := c.barrier
	c.barrier = nil
	sessionID := c.session.ID
	c.mu.Unlock()

	c.logger.Error().Err(err).Str("sessionId", sessionID).Msg("Session failed")

	if b != nil {
		b.release(err)
	}
	c.commands.failAll(err)
	c.calls.failAll(err)
}

func (c *Channel) handleTransportLoss(conn *websocket.Conn, cause error) {
	lossErr := &ConnectionError{Op: "send", Err: fmt.Errorf("%w: %v", ErrConnectionClosed, cause)}

	c.mu.Lock()
	if c.closing {
		c.mu.Unlock()
		c.calls.failAll(lossErr)
		return
	}
	if c.conn != conn {
		c.mu.Unlock()
		return
	}
	c.conn = nil
	_ = conn.Close()

	state := c.session.State
	if state != StateReady && state != StateProvisioning {
		c.mu.Unlock()
		c.commands.failAll(lossErr)
		c.calls.failAll(lossErr)
		return
	}

	b := newBarrier()
	c.barrier = b
	c.transition(StateReconnecting)
	c.wg.Add(1)
	sessionID := c.session.ID
	c.mu.Unlock()

	c.logger.Warn().Err(cause).Str("sessionId", sessionID).Msg("Transport lost, reconnecting")

	c.commands.failAll(lossErr)
	c.calls.failAll(lossErr)

	go c.reconnect(b)
}

// reconnect redials with exponential backoff and resumes the session,
// releasing b with the outcome.
func (c *Channel) reconnect(b *barrier) {
	defer c.wg.Done()
	start := time.Now()

	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = c.opts.ReconnectInitialInterval
	eb.MaxInterval = c.opts.ReconnectMaxInterval

	attempts := 0
	_, err := backoff.Retry(c.ctx, func() (struct{}, error) {
		attempts++
		conn, err := c.dial(c.ctx)
		if err != nil {
			if errors.Is(err, errAuthenticationFailed) {
				return struct{}{}, backoff.Permanent(err)
			}
			return struct{}{}, err
		}
		if !c.attach(conn) {
			return struct{}{}, backoff.Permanent(ErrShutdown)
		}

		next, err := c.resume(c.ctx, conn)
		if err != nil {
			var perr *ProtocolError
			if errors.As(err, &perr) {
				return struct{}{}, backoff.Permanent(err)
			}
			c.detach(conn)
			return struct{}{}, err
		}

		c.mu.Lock()
		defer c.mu.Unlock()
		if c.session.State != StateReconnecting {
			if c.sessionErr != nil {
				return struct{}{}, backoff.Permanent(c.sessionErr)
			}
			return struct{}{}, backoff.Permanent(ErrShutdown)
		}
		if c.conn != conn {
			return struct{}{}, fmt.Errorf("%w during resume", ErrConnectionClosed)
		}
		c.transition(next)
		if c.barrier == b {
			c.barrier = nil
		}
		return struct{}{}, nil
	},
		backoff.WithBackOff(eb),
		backoff.WithMaxTries(c.opts.ReconnectAttempts),
		backoff.WithNotify(func(err error, next time.Duration) {
			c.logger.Warn().Err(err).Dur("retryIn", next).Msg("Reconnect attempt failed")
		}),
	)

	if err != nil {
		observability.RecordReconnect(false)
		if c.ctx.Err() != nil || errors.Is(err, ErrShutdown) {
			b.release(&ConnectionError{Op: "reconnect", Err: ErrShutdown})
			return
		}
		var perr *ProtocolError
		if !errors.As(err, &perr) {
			err = &ConnectionError{Op: "reconnect", Err: err}
		}
		c.failSession(err)
		b.release(err)
		return
	}

	observability.RecordReconnect(true)
	c.logger.Info().
		Int("attempts", attempts).
		Dur("duration", time.Since(start)).
		Msg("Session resumed")
	b.release(nil)
}

// resume asks the peer to reattach the stored session to conn and returns
// the state to enter.
func (c *Channel) resume(ctx context.Context, conn *websocket.Conn) (State, error) {
	c.mu.Lock()
	sessionID := c.session.ID
	c.mu.Unlock()

	raw, err := c.call(ctx, conn, MethodResumeSession, map[string]interface{}{"sessionId": sessionID})
	if err != nil {
		return 0, err
	}

	var res ResumeSessionResult
	if err := json.Unmarshal(raw, &res); err != nil {
		return 0, &ProtocolError{Code: "invalid_response", Message: "malformed resumeSession result"}
	}

	switch res.Status {
	case "", "ready", "running":
		return StateReady, nil
	case "provisioning", "starting":
		return StateProvisioning, nil
	default:
		return 0, &ProtocolError{Code: "resume_rejected", Message: fmt.Sprintf("session cannot be resumed: %s", res.Status)}
	}
}

// transition moves the session to `to`. Callers hold c.mu.
func (c *Channel) transition(to State) bool {
	from := c.session.State
	if from == to {
		return true
	}
	if !CanTransition(from, to) {
		c.logger.Warn().
			Str("from", from.String()).
			Str("to", to.String()).
			Msg("Rejected illegal state transition")
		return false
	}

	c.session.State = to
	close(c.stateChanged)
	c.stateChanged = make(chan struct{})

	observability.RecordStateTransition(to.String())
	c.logger.Debug().
		Str("from", from.String()).
		Str("to", to.String()).
		Msg("Session state changed")
	return true
}
