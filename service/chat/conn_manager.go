package chat

import (
	"sort"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// ===== 配置 =====

type ManagerConf struct {
	MaxPerUser int              // 每用户最大连接数（<=0 不限制），超限淘汰最老连接
	Clock      func() time.Time // 可注入时钟（单测用）；nil => time.Now
}

func (c *ManagerConf) norm() {
	if c.Clock == nil {
		c.Clock = time.Now
	}
}

// ConnManager 本 relay 的连接注册表：snowID -> conn，userID -> (snowID -> conn)
type ConnManager struct {
	mu     sync.RWMutex
	bySnow map[string]*WsConn
	byUser map[string]map[string]*WsConn

	conf ManagerConf
}

func NewConnManager(conf ManagerConf) *ConnManager {
	conf.norm()
	return &ConnManager{
		bySnow: make(map[string]*WsConn),
		byUser: make(map[string]map[string]*WsConn),
		conf:   conf,
	}
}

func (m *ConnManager) now() time.Time { return m.conf.Clock() }

// Add 登记已授权连接；超过 MaxPerUser 时返回被挤下线的最老连接（调用方负责关闭）
func (m *ConnManager) Add(w *WsConn) (evicted []*WsConn) {
	m.mu.Lock()
	defer m.mu.Unlock()

	user := w.UserID()
	if m.conf.MaxPerUser > 0 {
		evicted = m.ensureRoomForUserLocked(user)
	}
	m.bySnow[w.SnowID] = w
	if m.byUser[user] == nil {
		m.byUser[user] = make(map[string]*WsConn)
	}
	m.byUser[user][w.SnowID] = w
	return evicted
}

// 需要在持锁状态下调用（*_Locked）
func (m *ConnManager) ensureRoomForUserLocked(user string) []*WsConn {
	mm := m.byUser[user]
	var out []*WsConn
	for len(mm) >= m.conf.MaxPerUser {
		var oldest *WsConn
		for _, w := range mm {
			if oldest == nil || w.CreatedAt.Before(oldest.CreatedAt) ||
				(w.CreatedAt.Equal(oldest.CreatedAt) && w.SnowID < oldest.SnowID) {
				oldest = w
			}
		}
		delete(mm, oldest.SnowID)
		delete(m.bySnow, oldest.SnowID)
		out = append(out, oldest)
	}
	return out
}

// Remove 移除指定 snowID；返回是否存在
func (m *ConnManager) Remove(snowID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	w, ok := m.bySnow[snowID]
	if !ok {
		return false
	}
	delete(m.bySnow, snowID)
	if mm := m.byUser[w.UserID()]; mm != nil {
		delete(mm, snowID)
		if len(mm) == 0 {
			delete(m.byUser, w.UserID())
		}
	}
	return true
}

func (m *ConnManager) Get(snowID string) (*WsConn, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	w, ok := m.bySnow[snowID]
	return w, ok
}

// ListUserConns 列出用户在本节点的全部连接，按建立时间排序
func (m *ConnManager) ListUserConns(user string) []*WsConn {
	m.mu.RLock()
	out := make([]*WsConn, 0, len(m.byUser[user]))
	for _, w := range m.byUser[user] {
		out = append(out, w)
	}
	m.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

func (m *ConnManager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.bySnow)
}

// CloseAll 请求关闭全部连接（服务下线）
func (m *ConnManager) CloseAll(code int, reason string) []*WsConn {
	m.mu.RLock()
	all := make([]*WsConn, 0, len(m.bySnow))
	for _, w := range m.bySnow {
		all = append(all, w)
	}
	m.mu.RUnlock()
	for _, w := range all {
		w.Close(code, reason)
	}
	return all
}

// CloseGoingAway 服务下线时的关闭码
const CloseGoingAway = websocket.CloseGoingAway
