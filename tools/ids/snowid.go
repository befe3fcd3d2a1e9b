package ids

import (
	"strconv"
	"sync"
	"time"
)

// Epoch for connection ids: 2020-01-01 UTC.
var epoch = time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC).UnixMilli()

// Generator 雪花ID：41 bit 毫秒时间戳 | 10 bit 节点号 | 12 bit 序列
type Generator struct {
	mu       sync.Mutex
	nodeID   int64 // 0~1023
	seq      int64 // 0~4095
	lastTSMS int64
	now      func() int64
}

// NewGenerator returns a generator for nodeID; out-of-range ids fall back to 1.
func NewGenerator(nodeID int64) *Generator {
	if nodeID < 0 || nodeID > 1023 {
		nodeID = 1
	}
	return &Generator{
		nodeID: nodeID,
		now:    func() int64 { return time.Now().UnixMilli() },
	}
}

func (g *Generator) NodeID() int64 { return g.nodeID }

// Next 生成一个新的雪花ID
func (g *Generator) Next() int64 {
	g.mu.Lock()
	defer g.mu.Unlock()

	for {
		now := g.now()
		if now < g.lastTSMS {
			// 时钟回拨，等待
			time.Sleep(time.Duration(g.lastTSMS-now) * time.Millisecond)
			continue
		}
		if now == g.lastTSMS {
			g.seq = (g.seq + 1) & 0xFFF
			if g.seq == 0 {
				// 序列溢出，等到下一毫秒
				for now <= g.lastTSMS {
					now = g.now()
				}
			}
		} else {
			g.seq = 0
		}
		g.lastTSMS = now

		ts := (now - epoch) & ((1 << 41) - 1)
		return (ts << 22) | (g.nodeID << 12) | g.seq
	}
}

func (g *Generator) NextString() string {
	return strconv.FormatInt(g.Next(), 10)
}

// NodeOf extracts the node id embedded in a generated id.
func NodeOf(id int64) int64 {
	return (id >> 12) & 0x3FF
}
