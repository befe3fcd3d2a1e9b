package chat

import (
	"context"
	"net"
	"net/http"
	"time"

	"ChatRelay/logger"
	"ChatRelay/middleware"
	"ChatRelay/service/api"
	"ChatRelay/service/bus"
	"ChatRelay/service/gate"
	"ChatRelay/service/metrics"
	"ChatRelay/service/room"
	"ChatRelay/service/storage"
	"ChatRelay/tools/ids"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

const shutdownWait = 5 * time.Second

type Options struct {
	Gate     *gate.Gate
	Bus      *bus.Bus
	API      api.Creator
	Metrics  *metrics.Metrics  // nil => 新建
	Presence *storage.Presence // nil => 不记录在线状态
	IDs      *ids.Generator    // nil => 节点 0
	Origins  middleware.AllowedOrigins
	Conn     ConnConf
	Manager  ManagerConf
}

// Server is one relay process: websocket clients, their rooms and the bus.
type Server struct {
	relayID  string
	gate     *gate.Gate
	bus      *bus.Bus
	api      api.Creator
	metrics  *metrics.Metrics
	presence *storage.Presence
	ids      *ids.Generator
	origins  middleware.AllowedOrigins
	connConf ConnConf

	rooms *room.Tracker
	conns *ConnManager
	disp  *Dispatcher

	upgrader websocket.Upgrader
	log      *zap.Logger
}

func NewServer(opts Options) (*Server, error) {
	if opts.Gate == nil {
		return nil, errors.New("chat: gate is required")
	}
	if opts.Bus == nil {
		return nil, errors.New("chat: bus is required")
	}
	if opts.API == nil {
		return nil, errors.New("chat: api client is required")
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.New()
	}
	if opts.IDs == nil {
		opts.IDs = ids.NewGenerator(0)
	}
	opts.Conn.norm()

	s := &Server{
		relayID:  opts.Bus.RelayID(),
		gate:     opts.Gate,
		bus:      opts.Bus,
		api:      opts.API,
		metrics:  opts.Metrics,
		presence: opts.Presence,
		ids:      opts.IDs,
		origins:  opts.Origins,
		connConf: opts.Conn,
		rooms:    room.NewTracker(),
		conns:    NewConnManager(opts.Manager),
		disp:     NewDispatcher(),
		log:      logger.Named("relay").With(zap.String("relay", opts.Bus.RelayID())),
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     s.origins.CheckOrigin,
	}
	s.subscribeBus()
	return s, nil
}

func (s *Server) RelayID() string             { return s.relayID }
func (s *Server) Rooms() *room.Tracker        { return s.rooms }
func (s *Server) ConnMgr() *ConnManager       { return s.conns }
func (s *Server) Disp() *Dispatcher           { return s.disp }
func (s *Server) Bus() *bus.Bus               { return s.bus }
func (s *Server) API() api.Creator            { return s.api }
func (s *Server) Metrics() *metrics.Metrics   { return s.metrics }
func (s *Server) Presence() *storage.Presence { return s.presence }
func (s *Server) Log() *zap.Logger            { return s.log }

// Register adds an event handler. Call before serving.
func (s *Server) Register(hs ...Handler) {
	for _, h := range hs {
		s.disp.Register(h)
	}
}

// Engine builds the HTTP surface of the relay.
func (s *Server) Engine() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), middleware.Origin(s.origins))

	r.GET("/health", s.handleHealth)
	r.GET("/ws", s.HandleWS)
	r.GET("/api/ws", s.HandleWS)
	r.GET("/metrics", gin.WrapH(s.metrics.Handler()))
	middleware.GET(r, "/presence/:userId", s.handlePresence,
		middleware.RouteOpt{IsAuth: true, Verify: s.gate.Verifier()})
	return r
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":      "ok",
		"service":     "chat-relay",
		"relayId":     s.relayID,
		"connections": s.conns.Count(),
		"rooms":       s.rooms.RoomCount(),
	})
}

func (s *Server) handlePresence(c *gin.Context) {
	if s.presence == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "presence store disabled"})
		return
	}
	user := c.Param("userId")
	relays, err := s.presence.Lookup(c.Request.Context(), user)
	if err != nil {
		s.log.Warn("presence lookup failed", zap.String("user", user), zap.Error(err))
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "presence store unavailable"})
		return
	}
	status := bus.StatusOffline
	if len(relays) > 0 {
		status = bus.StatusOnline
	}
	local := make([]string, 0)
	for _, w := range s.conns.ListUserConns(user) {
		local = append(local, w.SnowID)
	}
	c.JSON(http.StatusOK, gin.H{"userId": user, "status": status, "relays": relays, "local": local})
}

// Serve runs the HTTP server on ln until ctx ends, then closes every
// connection with 1001 and waits for in-flight requests.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	if err := s.disp.Verify(); err != nil {
		_ = ln.Close()
		return err
	}
	hs := &http.Server{Handler: s.Engine(), ReadHeaderTimeout: 10 * time.Second}
	errCh := make(chan error, 1)
	go func() { errCh <- hs.Serve(ln) }()
	s.log.Info("relay listening", zap.String("addr", ln.Addr().String()))

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	// hijacked websocket conns are not tracked by http.Server
	closed := s.conns.CloseAll(CloseGoingAway, "server shutting down")
	sctx, cancel := context.WithTimeout(context.Background(), shutdownWait)
	defer cancel()
	err := hs.Shutdown(sctx)
	for _, c := range closed {
		select {
		case <-c.Done():
		case <-sctx.Done():
		}
	}
	if errors.Is(err, http.ErrServerClosed) {
		err = nil
	}
	s.log.Info("relay stopped", zap.Int("closed", len(closed)))
	return err
}

// ListenAndServe listens on addr and calls Serve.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return errors.Wrapf(err, "listen %s", addr)
	}
	return s.Serve(ctx, ln)
}
