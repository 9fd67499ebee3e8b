package snowflake

import (
	"fmt"
	"strconv"
	"sync"
	"time"
)

// 41 位毫秒时间戳 | 10 位节点 | 12 位序号，时间戳相对 2024-01-01 UTC
const (
	epoch int64 = 1704067200000

	nodeBits     = 10
	sequenceBits = 12

	maxNodeID   = 1<<nodeBits - 1
	maxSequence = 1<<sequenceBits - 1

	timestampShift = nodeBits + sequenceBits
)

// ID 雪花ID，十进制字符串形式用作各类记录主键
type ID int64

func (id ID) String() string {
	return strconv.FormatInt(int64(id), 10)
}

// Time ID 中编码的生成时间
func (id ID) Time() time.Time {
	return time.UnixMilli(int64(id)>>timestampShift + epoch)
}

// Node 单进程内的ID生成器，多实例部署时 node id 需互不相同
type Node struct {
	mu   sync.Mutex
	node int64
	last int64
	seq  int64
	now  func() int64
}

// NewNode 创建生成器，nodeID 取值 [0, 1023]
func NewNode(nodeID int64) (*Node, error) {
	if nodeID < 0 || nodeID > maxNodeID {
		return nil, fmt.Errorf("snowflake: node id %d out of range [0, %d]", nodeID, maxNodeID)
	}
	return &Node{
		node: nodeID,
		now:  func() int64 { return time.Now().UnixMilli() },
	}, nil
}

// Generate 生成严格递增的ID
func (n *Node) Generate() ID {
	n.mu.Lock()
	defer n.mu.Unlock()

	// 时钟回拨时沿用上一毫秒
	ts := max(n.now(), n.last)
	switch {
	case ts > n.last:
		n.seq = 0
	case n.seq < maxSequence:
		n.seq++
	default:
		for ts <= n.last {
			ts = n.now()
		}
		n.seq = 0
	}
	n.last = ts

	return ID((ts-epoch)<<timestampShift | n.node<<sequenceBits | n.seq)
}

// NextID 生成字符串形式的ID
func (n *Node) NextID() string {
	return n.Generate().String()
}
