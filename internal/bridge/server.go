package bridge

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/stagelink/server/pkg/wire"
)

const (
	shutdownDeadline = 10 * time.Second

	handshakeTimeout   = 3 * time.Second
	readBufferSize     = 4096
	writeBufferSize    = 4096
	writeDeadline      = 5 * time.Second
	closeWriteDeadline = 2 * time.Second

	// pongWait - pingInterval is how long a client gets to answer a ping.
	pingInterval = 25 * time.Second
	pongWait     = 35 * time.Second

	// maxPacketBytes bounds one inbound frame. Bulk media does not ride the
	// control channel, so this only needs headroom for state blobs.
	maxPacketBytes = 1 << 20

	sendQueueLen = 64
)

// ErrUnexpected wraps server termination causes other than a clean shutdown.
var ErrUnexpected = errors.New("unexpected server error")

// Config configures the bridge transport.
type Config struct {
	// Addr is the listen address.
	Addr string
	// Path is the URL path the performer client connects to.
	Path string
	// MaxConnections bounds concurrently connected performers. Zero means
	// unbounded.
	MaxConnections int
	// KickOld, when the cap is hit, displaces the oldest connection to admit
	// the new one instead of refusing it.
	KickOld bool
}

// Callbacks notify the host integration about connection lifecycle. Both are
// optional.
type Callbacks struct {
	OnConnect    func(connID string)
	OnDisconnect func(connID string)
}

// Server is the websocket control-channel transport. It upgrades connections,
// runs one read/write pump pair per client and feeds inbound packets to the
// router sequentially per connection.
type Server struct {
	log      zerolog.Logger
	cfg      Config
	router   *Router
	cbs      Callbacks
	engine   *gin.Engine
	upgrader *websocket.Upgrader
	manager  *Manager

	// admitMu serializes cap enforcement across concurrent upgrades.
	admitMu sync.Mutex

	*http.Server
}

// NewServer creates the bridge transport around a router.
func NewServer(cfg Config, router *Router, cbs Callbacks, log zerolog.Logger) *Server {
	s := &Server{
		log:    log,
		cfg:    cfg,
		router: router,
		cbs:    cbs,
		upgrader: &websocket.Upgrader{
			HandshakeTimeout: handshakeTimeout,
			ReadBufferSize:   readBufferSize,
			WriteBufferSize:  writeBufferSize,
			CheckOrigin:      func(*http.Request) bool { return true },
		},
		manager: NewManager(),
	}

	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	engine.GET(cfg.Path, s.handleBridge)

	s.engine = engine
	s.Server = &http.Server{
		Addr:    cfg.Addr,
		Handler: engine,
	}
	return s
}

// Engine exposes the underlying gin engine for tests.
func (s *Server) Engine() *gin.Engine {
	return s.engine
}

// Router exposes the packet router for host integrations.
func (s *Server) Router() *Router {
	return s.router
}

// Run serves until ctx is cancelled, then shuts down within a deadline and
// force-closes any websocket connections the http server does not track.
func (s *Server) Run(ctx context.Context, wg *sync.WaitGroup, errc chan<- error) {
	defer func() {
		s.log.Debug().Msg("bridge server stopped")
		wg.Done()
	}()

	errSrv := make(chan error)
	go func() {
		errSrv <- s.ListenAndServe()
	}()

	s.log.Info().Str("addr", s.Addr).Str("path", s.cfg.Path).Msg("bridge server started")

	select {
	case err := <-errSrv:
		if !errors.Is(err, http.ErrServerClosed) {
			errc <- errors.Join(ErrUnexpected, err)
		}
	case <-ctx.Done():
		shCtx, shCancel := context.WithTimeout(context.Background(), shutdownDeadline)
		defer shCancel()
		if err := s.Shutdown(shCtx); err != nil {
			s.log.Error().Err(err).Msg("bridge server shutdown failed")
		}
		for _, cl := range s.manager.All() {
			cl.shutdown()
			cl.closeConn()
		}
	}
}

// SendTo queues a packet for one connection.
func (s *Server) SendTo(connID string, pkt wire.Packet) error {
	cl, ok := s.manager.Get(connID)
	if !ok {
		return fmt.Errorf("connection %s not found", connID)
	}
	if !cl.enqueue(pkt) {
		return fmt.Errorf("connection %s send queue full", connID)
	}
	return nil
}

// Broadcast queues a packet for every live connection and returns how many
// accepted it.
func (s *Server) Broadcast(pkt wire.Packet) int {
	n := 0
	for _, cl := range s.manager.All() {
		if cl.enqueue(pkt) {
			n++
		}
	}
	return n
}

// ConnectionCount reports the number of live connections.
func (s *Server) ConnectionCount() int {
	return s.manager.Count()
}

func (s *Server) handleBridge(c *gin.Context) {
	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.log.Error().Err(err).Msg("websocket upgrade failed")
		return
	}

	connID := uuid.NewString()
	cl := newClient(connID, conn, s.log.With().Str("conn_id", connID).Logger())

	if !s.admit(cl) {
		s.log.Warn().Str("conn_id", connID).Msg("connection refused, cap reached")
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseTryAgainLater, "connection limit reached"),
			time.Now().Add(closeWriteDeadline))
		_ = conn.Close()
		return
	}

	s.router.Connect(connID)
	if s.cbs.OnConnect != nil {
		s.cbs.OnConnect(connID)
	}
	go s.serveConn(cl)
}

// admit enforces the connection cap, displacing the oldest connection when
// configured to.
func (s *Server) admit(cl *Client) bool {
	s.admitMu.Lock()
	defer s.admitMu.Unlock()

	for s.cfg.MaxConnections > 0 && s.manager.Count() >= s.cfg.MaxConnections {
		if !s.cfg.KickOld {
			return false
		}
		old, ok := s.manager.Oldest()
		if !ok {
			break
		}
		s.log.Info().
			Str("conn_id", old.ID).
			Str("admitting", cl.ID).
			Msg("displacing oldest connection")
		s.manager.Remove(old.ID)
		old.kick()
	}

	s.manager.Add(cl)
	return true
}

// serveConn runs the pump pair for one connection and cleans up when either
// pump exits.
func (s *Server) serveConn(cl *Client) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cl.log.Info().Msg("client connected")

	wg := &sync.WaitGroup{}
	wg.Add(2)
	go func() {
		cl.readLoop(ctx, wg, func(pkt wire.Packet) {
			// Handlers run on a background context: closing the connection
			// must not interrupt an in-flight broker operation. The result is
			// simply dropped if the reply can no longer be delivered.
			if reply := s.router.Dispatch(context.Background(), cl.ID, pkt); reply != nil {
				if !cl.enqueue(*reply) {
					cl.log.Warn().Str("op", string(reply.Op)).Msg("reply dropped")
				}
			}
		})
		cancel()
	}()
	go func() {
		cl.writeLoop(ctx, wg)
		cancel()
	}()
	wg.Wait()

	cl.shutdown()
	cl.closeConn()
	s.manager.Remove(cl.ID)
	s.router.Disconnect(cl.ID)
	if s.cbs.OnDisconnect != nil {
		s.cbs.OnDisconnect(cl.ID)
	}
	cl.log.Info().Msg("client disconnected")
}
