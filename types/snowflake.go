package types

import (
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"
	"time"
)

// Snowflake 标识符类型（雪花算法，int64）
//
// 进程内默认节点为 datacenter=1 / worker=1，多实例部署前
// 应调用 SetSnowflakeNode 错开节点号。
var Snowflake IType = &snowflakeType{}

const (
	// 起始时间戳 (2023-01-01 00:00:00 UTC)
	snowflakeEpoch int64 = 1672531200000

	// 各部分位数
	snowflakeWorkerBits     = 5
	snowflakeDatacenterBits = 5
	snowflakeSequenceBits   = 12

	// 最大值
	maxSnowflakeWorker     = -1 ^ (-1 << snowflakeWorkerBits)     // 31
	maxSnowflakeDatacenter = -1 ^ (-1 << snowflakeDatacenterBits) // 31
	maxSnowflakeSequence   = -1 ^ (-1 << snowflakeSequenceBits)   // 4095

	// 位移
	snowflakeWorkerShift     = snowflakeSequenceBits
	snowflakeDatacenterShift = snowflakeSequenceBits + snowflakeWorkerBits
	snowflakeTimestampShift  = snowflakeSequenceBits + snowflakeWorkerBits + snowflakeDatacenterBits
)

// snowflakeNode 单节点序列发生器
type snowflakeNode struct {
	mux           sync.Mutex
	datacenterID  int64
	workerID      int64
	sequence      int64
	lastTimestamp int64
}

func newSnowflakeNode(datacenterID, workerID int64) (*snowflakeNode, error) {
	if datacenterID < 0 || datacenterID > maxSnowflakeDatacenter {
		return nil, fmt.Errorf("datacenter ID 超出范围 [0, %d]", maxSnowflakeDatacenter)
	}
	if workerID < 0 || workerID > maxSnowflakeWorker {
		return nil, fmt.Errorf("worker ID 超出范围 [0, %d]", maxSnowflakeWorker)
	}
	return &snowflakeNode{
		datacenterID:  datacenterID,
		workerID:      workerID,
		sequence:      0,
		lastTimestamp: -1,
	}, nil
}

func (n *snowflakeNode) nextID() int64 {
	n.mux.Lock()
	defer n.mux.Unlock()

	now := time.Now().UnixNano() / 1e6

	// 时钟回拨：停在上次时间戳上等待追平，不产出乱序 ID
	if now < n.lastTimestamp {
		now = n.lastTimestamp
	}

	if now == n.lastTimestamp {
		n.sequence = (n.sequence + 1) & maxSnowflakeSequence
		if n.sequence == 0 {
			// 序列号用完，等待下一毫秒
			for now <= n.lastTimestamp {
				now = time.Now().UnixNano() / 1e6
			}
		}
	} else {
		n.sequence = 0
	}

	n.lastTimestamp = now

	return ((now - snowflakeEpoch) << snowflakeTimestampShift) |
		(n.datacenterID << snowflakeDatacenterShift) |
		(n.workerID << snowflakeWorkerShift) |
		n.sequence
}

// 全局默认节点（通过原子指针保证并发安全）
var defaultSnowflakeNode atomic.Pointer[snowflakeNode]

func init() {
	node, _ := newSnowflakeNode(1, 1)
	defaultSnowflakeNode.Store(node)
}

// SetSnowflakeNode 重设进程默认的雪花节点号
func SetSnowflakeNode(datacenterID, workerID int64) error {
	node, err := newSnowflakeNode(datacenterID, workerID)
	if err != nil {
		return err
	}
	defaultSnowflakeNode.Store(node)
	return nil
}

// ParseSnowflake 拆解一个雪花 ID 的组成部分
func ParseSnowflake(id int64) map[string]int64 {
	return map[string]int64{
		"timestamp":    (id >> snowflakeTimestampShift) + snowflakeEpoch,
		"datacenterID": (id >> snowflakeDatacenterShift) & maxSnowflakeDatacenter,
		"workerID":     (id >> snowflakeWorkerShift) & maxSnowflakeWorker,
		"sequence":     id & maxSnowflakeSequence,
	}
}

type snowflakeType struct{}

func (t *snowflakeType) Name() string         { return "snowflake" }
func (t *snowflakeType) Primitive() Primitive { return PrimitiveInteger }

// IdentifierType 实现 IIdentifier 标记接口
func (t *snowflakeType) IdentifierType() {}

// GenerateValue 从进程默认节点取下一个 ID
func (t *snowflakeType) GenerateValue() any {
	return defaultSnowflakeNode.Load().nextID()
}

// Decode 接受整数族与十进制文本
func (t *snowflakeType) Decode(raw any) (any, error) {
	switch v := raw.(type) {
	case int64:
		return v, nil
	case int:
		return int64(v), nil
	case uint64:
		return int64(v), nil
	case float64:
		if v != float64(int64(v)) {
			return nil, fmt.Errorf("浮点值 %v 不是整数形态的雪花 ID", v)
		}
		return int64(v), nil
	case string:
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("字符串 %q 不是雪花 ID: %w", v, err)
		}
		return id, nil
	case []byte:
		return t.Decode(string(v))
	}
	return nil, fmt.Errorf("%T 无法作为 snowflake", raw)
}

// Encode 领域值必须是 int64（或可无损转换）
func (t *snowflakeType) Encode(value any) (any, error) {
	if value == nil {
		return nil, nil
	}
	switch v := value.(type) {
	case int64:
		return v, nil
	case int:
		return int64(v), nil
	}
	return nil, fmt.Errorf("%T 不是雪花 ID", value)
}
