package chat

import (
	"sync"
	"sync/atomic"
	"time"

	"ChatRelay/service/gate"

	"github.com/gorilla/websocket"
)

// ConnConf holds per-connection transport limits.
type ConnConf struct {
	SendQueue    int
	PingInterval time.Duration
	PongWait     time.Duration
	WriteWait    time.Duration
	MaxMessage   int64
}

func (c *ConnConf) norm() {
	if c.SendQueue <= 0 {
		c.SendQueue = 256
	}
	if c.PongWait <= 0 {
		c.PongWait = 60 * time.Second
	}
	if c.PingInterval <= 0 || c.PingInterval >= c.PongWait {
		c.PingInterval = c.PongWait * 9 / 10
	}
	if c.WriteWait <= 0 {
		c.WriteWait = 10 * time.Second
	}
	if c.MaxMessage <= 0 {
		c.MaxMessage = 64 * 1024
	}
}

// WsConn is one authenticated client connection. Frames are written only by
// its write pump; everything else enqueues.
type WsConn struct {
	SnowID    string
	Principal gate.Principal
	Token     string
	CreatedAt time.Time

	ws   *websocket.Conn
	conf ConnConf
	send chan []byte

	closing   chan struct{}
	closeOnce sync.Once
	mu        sync.Mutex
	closeCode int
	closeMsg  string
	done      chan struct{}

	dropped atomic.Uint64
	onDrop  func()
}

func newWsConn(id string, p gate.Principal, token string, ws *websocket.Conn, conf ConnConf, now time.Time) *WsConn {
	return &WsConn{
		SnowID:    id,
		Principal: p,
		Token:     token,
		CreatedAt: now,
		ws:        ws,
		conf:      conf,
		send:      make(chan []byte, conf.SendQueue),
		closing:   make(chan struct{}),
		done:      make(chan struct{}),
	}
}

func (c *WsConn) UserID() string { return c.Principal.UserID }

// Enqueue hands a frame to the write pump without blocking. A full queue
// drops the frame.
func (c *WsConn) Enqueue(frame []byte) bool {
	select {
	case <-c.closing:
		return false
	default:
	}
	select {
	case c.send <- frame:
		return true
	default:
		c.dropped.Add(1)
		if c.onDrop != nil {
			c.onDrop()
		}
		return false
	}
}

// Dropped is the number of frames lost to a full queue.
func (c *WsConn) Dropped() uint64 { return c.dropped.Load() }

// Close asks the write pump to send a close frame and shut the socket.
func (c *WsConn) Close(code int, reason string) {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.closeCode, c.closeMsg = code, reason
		c.mu.Unlock()
		close(c.closing)
	})
}

// Done is closed once the socket is shut.
func (c *WsConn) Done() <-chan struct{} { return c.done }

// writePump is the only writer of the socket.
func (c *WsConn) writePump() {
	ticker := time.NewTicker(c.conf.PingInterval)
	defer func() {
		ticker.Stop()
		c.mu.Lock()
		code, msg := c.closeCode, c.closeMsg
		c.mu.Unlock()
		if code == 0 {
			code = websocket.CloseNormalClosure
		}
		_ = c.ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(code, msg), time.Now().Add(c.conf.WriteWait))
		_ = c.ws.Close()
		close(c.done)
	}()

	for {
		select {
		case frame := <-c.send:
			if err := c.write(frame); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(c.conf.WriteWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.closing:
			// flush what was queued before the close was requested
			for {
				select {
				case frame := <-c.send:
					if err := c.write(frame); err != nil {
						return
					}
				default:
					return
				}
			}
		}
	}
}

func (c *WsConn) write(frame []byte) error {
	_ = c.ws.SetWriteDeadline(time.Now().Add(c.conf.WriteWait))
	return c.ws.WriteMessage(websocket.TextMessage, frame)
}
