package collab

import (
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gobwas/glob"
	"github.com/gorilla/websocket"
	"github.com/oklog/ulid/v2"
	"github.com/sourcegraph/conc"

	"github.com/Iron-Ham/todohub/internal/auth"
	"github.com/Iron-Ham/todohub/internal/errors"
	"github.com/Iron-Ham/todohub/internal/logging"
)

// Handler defaults.
const (
	DefaultSendQueueSize = 64
	DefaultReadLimit     = 64 << 10
	DefaultWriteTimeout  = 10 * time.Second
)

// TokenVerifier turns a credential into the identity it speaks for.
type TokenVerifier interface {
	Verify(token string) (auth.Identity, error)
}

// HandlerConfig tunes the websocket endpoint. Zero values select defaults.
type HandlerConfig struct {
	// AllowedOrigins are glob patterns matched against the Origin header.
	// Requests without an Origin header are always accepted. An empty list
	// accepts every origin.
	AllowedOrigins []string
	SendQueueSize  int
	ReadLimit      int64
	WriteTimeout   time.Duration
}

// Handler upgrades authenticated HTTP requests to collaboration sessions.
// The credential is taken from the "token" query parameter and checked
// before the upgrade; a missing or invalid credential gets 401.
type Handler struct {
	hub      *Hub
	verifier TokenVerifier
	cfg      HandlerConfig
	origins  []glob.Glob
	upgrader websocket.Upgrader
	logger   *logging.Logger

	mu    sync.Mutex
	peers map[string]*wsPeer
}

// NewHandler creates a Handler serving hub.
func NewHandler(hub *Hub, verifier TokenVerifier, cfg HandlerConfig, logger *logging.Logger) (*Handler, error) {
	if hub == nil || verifier == nil {
		return nil, errors.New("collab: hub and verifier are required")
	}
	if logger == nil {
		logger = logging.NopLogger()
	}
	if cfg.SendQueueSize <= 0 {
		cfg.SendQueueSize = DefaultSendQueueSize
	}
	if cfg.ReadLimit <= 0 {
		cfg.ReadLimit = DefaultReadLimit
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = DefaultWriteTimeout
	}

	origins := make([]glob.Glob, 0, len(cfg.AllowedOrigins))
	for _, pattern := range cfg.AllowedOrigins {
		g, err := glob.Compile(pattern)
		if err != nil {
			return nil, errors.NewValidationError("invalid origin pattern").
				WithField("server.allowed_origins").WithValue(pattern).WithCause(err)
		}
		origins = append(origins, g)
	}

	h := &Handler{
		hub:      hub,
		verifier: verifier,
		cfg:      cfg,
		origins:  origins,
		logger:   logger,
		peers:    make(map[string]*wsPeer),
	}
	h.upgrader = websocket.Upgrader{CheckOrigin: h.checkOrigin}
	return h, nil
}

// ServeHTTP implements http.Handler. It blocks for the lifetime of the
// session.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	identity, err := h.verifier.Verify(r.URL.Query().Get("token"))
	if err != nil {
		h.logger.Info("rejected connection", "remote", r.RemoteAddr, "error", err.Error())
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already replied.
		h.logger.WithUser(identity.Name).Warn("websocket upgrade failed", "remote", r.RemoteAddr, "error", err.Error())
		return
	}

	p := newWSPeer(conn, identity, h.cfg.SendQueueSize, h.logger)
	p.setState(StateAuthenticated)
	h.track(p)
	h.hub.Connect(p)

	var wg conc.WaitGroup
	wg.Go(func() { p.writePump(h.cfg.WriteTimeout) })
	wg.Go(func() {
		h.readPump(p)
		p.setState(StateClosed)
		h.hub.Disconnect(p)
		h.untrack(p)
		p.close()
	})
	wg.Wait()
}

// Active returns the number of open sessions.
func (h *Handler) Active() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.peers)
}

// Shutdown sends every open session a going-away close frame and closes the
// sockets. The close cascades run as the sessions' readers exit.
func (h *Handler) Shutdown() {
	h.mu.Lock()
	peers := make([]*wsPeer, 0, len(h.peers))
	for _, p := range h.peers {
		peers = append(peers, p)
	}
	h.mu.Unlock()

	msg := websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down")
	for _, p := range peers {
		_ = p.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
		_ = p.conn.Close()
	}
}

func (h *Handler) readPump(p *wsPeer) {
	p.conn.SetReadLimit(h.cfg.ReadLimit)
	for {
		_, data, err := p.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				p.logger.Debug("connection closed unexpectedly", "error", err.Error())
			}
			return
		}

		msg, err := DecodeInbound(data)
		if err != nil {
			var perr *errors.ProtocolError
			if errors.As(err, &perr) {
				perr.WithConnID(p.id)
			}
			p.logger.Warn("discarding inbound message", "error", err.Error())
			continue
		}

		h.hub.Handle(p, msg)
		if _, ok := msg.(JoinCollection); ok {
			p.setState(StateJoined)
		}
	}
}

func (h *Handler) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" || len(h.origins) == 0 {
		return true
	}
	for _, g := range h.origins {
		if g.Match(origin) {
			return true
		}
	}
	h.logger.Info("rejected origin", "origin", origin, "remote", r.RemoteAddr)
	return false
}

func (h *Handler) track(p *wsPeer) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.peers[p.id] = p
}

func (h *Handler) untrack(p *wsPeer) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.peers, p.id)
}

// -----------------------------------------------------------------------------
// wsPeer
// -----------------------------------------------------------------------------

// wsPeer is a Peer backed by a websocket. Outbound frames go through a
// bounded queue drained by writePump, which is the only writer of data
// frames on conn.
type wsPeer struct {
	id       string
	identity auth.Identity
	conn     *websocket.Conn
	logger   *logging.Logger
	state    atomic.Int32

	mu     sync.Mutex
	send   chan []byte
	closed bool
}

func newWSPeer(conn *websocket.Conn, identity auth.Identity, queueSize int, logger *logging.Logger) *wsPeer {
	id := ulid.Make().String()
	p := &wsPeer{
		id:       id,
		identity: identity,
		conn:     conn,
		logger:   logger.WithConn(id).WithUser(identity.Name),
		send:     make(chan []byte, queueSize),
	}
	p.state.Store(int32(StateConnecting))
	return p
}

func (p *wsPeer) ID() string       { return p.id }
func (p *wsPeer) UserID() string   { return p.identity.UserID }
func (p *wsPeer) Name() string     { return p.identity.Name }
func (p *wsPeer) State() ConnState { return ConnState(p.state.Load()) }

// setState moves p to next and logs the transition. Rejoining keeps the
// joined state and logs nothing.
func (p *wsPeer) setState(next ConnState) {
	prev := ConnState(p.state.Swap(int32(next)))
	if prev != next {
		p.logger.Debug("connection state changed", "from", prev.String(), "to", next.String())
	}
}

func (p *wsPeer) String() string {
	return fmt.Sprintf("%s(%s)", p.identity.Name, p.id)
}

// Send queues msg without blocking.
func (p *wsPeer) Send(msg Outbound) bool {
	data, err := EncodeOutbound(msg)
	if err != nil {
		p.logger.Error("failed to encode message", "type", msg.MessageType(), "error", err.Error())
		return false
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return false
	}
	select {
	case p.send <- data:
		return true
	default:
		return false
	}
}

func (p *wsPeer) close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.closed {
		p.closed = true
		close(p.send)
	}
}

func (p *wsPeer) writePump(timeout time.Duration) {
	defer p.conn.Close()

	for data := range p.send {
		_ = p.conn.SetWriteDeadline(time.Now().Add(timeout))
		if err := p.conn.WriteMessage(websocket.TextMessage, data); err != nil {
			p.logger.Debug("write failed", "error", err.Error())
			// Unblocks the reader, which runs the close cascade.
			_ = p.conn.Close()
			for range p.send {
			}
			return
		}
	}

	_ = p.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
}
