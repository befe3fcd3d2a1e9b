package chat

import (
	"context"
	"net"
	"net/http"
	"strconv"
	"time"

	"ChatRelay/service/bus"
	"ChatRelay/service/gate"
	"ChatRelay/service/room"
	"ChatRelay/tools/safe"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	presenceStoreWait = 2 * time.Second
	rejectWait        = time.Second
)

// CloseEvicted is sent to the oldest connection of a user over MAX_CONNS_PER_USER.
const CloseEvicted = websocket.ClosePolicyViolation

// HandleWS ===== 鉴权 -> 升级 -> 读循环 -> 清理 =====
func (s *Server) HandleWS(c *gin.Context) {
	p, token, err := s.gate.Authenticate(c.Request)
	if err != nil {
		s.reject(c, err)
		return
	}

	ws, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// upgrader 已经写回 HTTP 错误
		s.log.Info("[WS] upgrade failed", zap.String("user", p.UserID), zap.Error(err))
		return
	}

	conn := s.attach(ws, p, token)
	ctx, cancel := context.WithCancel(context.Background())
	s.readLoop(ctx, conn)
	cancel()
	s.detach(conn)
}

// reject refuses an unauthenticated client. Websocket clients get the
// 4001/4003 close frame, plain HTTP callers a 401.
func (s *Server) reject(c *gin.Context, err error) {
	code, reason := gate.CloseCode(err)
	s.metrics.AuthFailures.WithLabelValues(strconv.Itoa(code)).Inc()
	s.log.Info("[WS] auth rejected", zap.Int("code", code), zap.String("remote", c.ClientIP()), zap.Error(err))

	if !websocket.IsWebSocketUpgrade(c.Request) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": reason, "code": code})
		return
	}
	ws, uerr := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if uerr != nil {
		return
	}
	_ = ws.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(code, reason), time.Now().Add(s.connConf.WriteWait))
	// 等对端回 close，避免 RST 吞掉 close 帧
	_ = ws.SetReadDeadline(time.Now().Add(rejectWait))
	for {
		if _, _, err := ws.ReadMessage(); err != nil {
			break
		}
	}
	_ = ws.Close()
}

func (s *Server) attach(ws *websocket.Conn, p gate.Principal, token string) *WsConn {
	conn := newWsConn(s.ids.NextString(), p, token, ws, s.connConf, s.conns.now())
	conn.onDrop = s.metrics.FramesDropped.Inc

	for _, old := range s.conns.Add(conn) {
		s.metrics.Evictions.Inc()
		s.log.Info("[WS] evict oldest connection", zap.String("user", p.UserID), zap.String("conn", old.SnowID))
		old.Close(CloseEvicted, "too many connections")
	}
	s.metrics.Connections.Inc()

	conn.Enqueue(EncodeFrame(KindConnected, ConnectedPayload{
		ConnectionID: conn.SnowID,
		UserID:       p.UserID,
		DisplayName:  p.DisplayName,
		RelayID:      s.relayID,
	}))
	s.rooms.Join(conn.SnowID, room.ForUser(p.UserID))
	s.presenceAdjust(p.UserID, true)

	safe.Go("ws-write", conn.writePump)
	s.log.Info("[WS] connected", zap.String("user", p.UserID), zap.String("conn", conn.SnowID))
	return conn
}

// readLoop processes one connection's frames in arrival order.
func (s *Server) readLoop(ctx context.Context, conn *WsConn) {
	ws := conn.ws
	ws.SetReadLimit(conn.conf.MaxMessage)
	_ = ws.SetReadDeadline(time.Now().Add(conn.conf.PongWait))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(conn.conf.PongWait))
	})

	for {
		mt, data, err := ws.ReadMessage()
		if err != nil {
			s.logReadErr(conn, err)
			return
		}
		_ = ws.SetReadDeadline(time.Now().Add(conn.conf.PongWait))
		if mt != websocket.TextMessage && mt != websocket.BinaryMessage {
			continue
		}
		s.handleFrame(ctx, conn, data)
	}
}

func (s *Server) logReadErr(conn *WsConn, err error) {
	fields := []zap.Field{zap.String("conn", conn.SnowID), zap.String("user", conn.UserID()), zap.Error(err)}
	if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) {
		s.log.Debug("[WS] peer closed", fields...)
	} else if ne, ok := err.(net.Error); ok && ne.Timeout() {
		s.log.Info("[WS] read timeout", fields...)
	} else {
		s.log.Debug("[WS] read err", fields...)
	}
}

func (s *Server) handleFrame(ctx context.Context, conn *WsConn, data []byte) {
	in, err := ParseFrame(data)
	if err != nil {
		s.metrics.FramesIn.WithLabelValues("invalid").Inc()
		conn.Enqueue(ErrorFrame("", err))
		return
	}
	s.metrics.FramesIn.WithLabelValues(in.Kind.String()).Inc()

	defer safe.Recover("ws-event "+in.Name, func(perr error) {
		conn.Enqueue(ErrorFrame(in.Name, perr))
	})
	if err := s.disp.Dispatch(&ChatContext{Context: ctx, S: s}, conn, in); err != nil {
		s.log.Debug("[WS] event rejected", zap.String("conn", conn.SnowID), zap.String("event", in.Name), zap.Error(err))
		conn.Enqueue(ErrorFrame(in.Name, err))
	}
}

// detach runs once the read loop ends, whatever the cause.
func (s *Server) detach(conn *WsConn) {
	held := s.rooms.LeaveAll(conn.SnowID)
	var convs []string
	for _, r := range held {
		if id, ok := r.ConversationID(); ok {
			convs = append(convs, id)
		}
	}
	if len(convs) > 0 {
		_ = s.bus.Publish(bus.TopicPresence, "", bus.PresencePayload{
			UserID:          conn.UserID(),
			Status:          bus.StatusOffline,
			ConversationIDs: convs,
		}, bus.Origin{UserID: conn.UserID(), ConnID: conn.SnowID})
	}

	s.conns.Remove(conn.SnowID)
	s.metrics.Connections.Dec()
	s.presenceAdjust(conn.UserID(), false)

	conn.Close(websocket.CloseNormalClosure, "")
	<-conn.Done()
	s.log.Info("[WS] closed", zap.String("user", conn.UserID()), zap.String("conn", conn.SnowID),
		zap.Int("rooms", len(convs)), zap.Uint64("dropped", conn.Dropped()))
}

func (s *Server) presenceAdjust(user string, online bool) {
	if s.presence == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), presenceStoreWait)
	defer cancel()
	var err error
	if online {
		_, err = s.presence.Online(ctx, user)
	} else {
		_, err = s.presence.Offline(ctx, user)
	}
	if err != nil {
		s.log.Warn("presence store update failed", zap.String("user", user), zap.Bool("online", online), zap.Error(err))
	}
}

// Reply enqueues one frame for conn only.
func (s *Server) Reply(conn *WsConn, kind EventKind, payload any) bool {
	return conn.Enqueue(EncodeFrame(kind, payload))
}
