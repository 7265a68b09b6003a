package types

import (
	"fmt"

	"github.com/google/uuid"
)

// UUID 标识符类型（v4，文本规范形态）
//
// 同时具备 IIdentifier 与 IGenerator 能力，是自动生成主键的缺省选择之一。
var UUID IType = &uuidType{}

type uuidType struct{}

func (t *uuidType) Name() string         { return "uuid" }
func (t *uuidType) Primitive() Primitive { return PrimitiveString }

// IdentifierType 实现 IIdentifier 标记接口
func (t *uuidType) IdentifierType() {}

// GenerateValue 生成一个新的 v4 UUID
func (t *uuidType) GenerateValue() any {
	return uuid.NewString()
}

// Decode 接受文本/二进制两种存储形态，统一为规范文本
func (t *uuidType) Decode(raw any) (any, error) {
	switch v := raw.(type) {
	case string:
		u, err := uuid.Parse(v)
		if err != nil {
			return nil, fmt.Errorf("字符串 %q 不是 UUID: %w", v, err)
		}
		return u.String(), nil
	case []byte:
		if len(v) == 16 {
			u, err := uuid.FromBytes(v)
			if err != nil {
				return nil, fmt.Errorf("16 字节值不是 UUID: %w", err)
			}
			return u.String(), nil
		}
		return t.Decode(string(v))
	}
	return nil, fmt.Errorf("%T 无法作为 uuid", raw)
}

// Encode 领域值必须已是规范文本
func (t *uuidType) Encode(value any) (any, error) {
	if value == nil {
		return nil, nil
	}
	s, ok := value.(string)
	if !ok {
		return nil, fmt.Errorf("%T 不是 UUID 文本", value)
	}
	u, err := uuid.Parse(s)
	if err != nil {
		return nil, fmt.Errorf("字符串 %q 不是 UUID: %w", s, err)
	}
	return u.String(), nil
}
