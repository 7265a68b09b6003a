package types

import (
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// ULID 标识符类型（26 字符 Crockford base32，按时间可排序）
var ULID IType = &ulidType{}

// 单调熵源非并发安全，进程内共享一把锁
var (
	ulidMu      sync.Mutex
	ulidEntropy = ulid.Monotonic(rand.New(rand.NewSource(time.Now().UnixNano())), 0)
)

type ulidType struct{}

func (t *ulidType) Name() string         { return "ulid" }
func (t *ulidType) Primitive() Primitive { return PrimitiveString }

// IdentifierType 实现 IIdentifier 标记接口
func (t *ulidType) IdentifierType() {}

// GenerateValue 基于单调熵源生成 ULID，同毫秒内保持递增
func (t *ulidType) GenerateValue() any {
	ulidMu.Lock()
	defer ulidMu.Unlock()
	return ulid.MustNew(ulid.Timestamp(time.Now()), ulidEntropy).String()
}

// Decode 接受文本或其二进制形态，统一为大写规范文本
func (t *ulidType) Decode(raw any) (any, error) {
	switch v := raw.(type) {
	case string:
		u, err := ulid.ParseStrict(v)
		if err != nil {
			return nil, fmt.Errorf("字符串 %q 不是 ULID: %w", v, err)
		}
		return u.String(), nil
	case []byte:
		if len(v) == 16 {
			var u ulid.ULID
			copy(u[:], v)
			return u.String(), nil
		}
		return t.Decode(string(v))
	}
	return nil, fmt.Errorf("%T 无法作为 ulid", raw)
}

// Encode 领域值必须已是 ULID 文本；宽松接受小写输入
func (t *ulidType) Encode(value any) (any, error) {
	if value == nil {
		return nil, nil
	}
	s, ok := value.(string)
	if !ok {
		return nil, fmt.Errorf("%T 不是 ULID 文本", value)
	}
	u, err := ulid.ParseStrict(strings.ToUpper(s))
	if err != nil {
		return nil, fmt.Errorf("字符串 %q 不是 ULID: %w", s, err)
	}
	return u.String(), nil
}
