// Package types 提供 schema 字段的类型系统
//
// 类型分两类：
//  1. 原语类型（Primitive）：string/integer/float/... 由本包内建；
//  2. 自定义类型：实现 IType 接口的任意类型，可选实现 IGenerator（零参生成器）
//     与 IIdentifier（标识符形状，具备主键资格）两个能力接口。
//
// 类型解析是定义期的同步阻塞步骤，失败对该定义致命；
// Decode/Encode 则运行在行加载/写入路径上，失败只作用于单行单字段。
package types

import (
	"fmt"

	"tabula/errors"
)

// Primitive 原语类型名
type Primitive string

const (
	PrimitiveID            Primitive = "id"
	PrimitiveString        Primitive = "string"
	PrimitiveInteger       Primitive = "integer"
	PrimitiveFloat         Primitive = "float"
	PrimitiveBoolean       Primitive = "boolean"
	PrimitiveBinary        Primitive = "binary"
	PrimitiveDate          Primitive = "date"
	PrimitiveTime          Primitive = "time"
	PrimitiveNaiveDatetime Primitive = "naive_datetime"
	PrimitiveUTCDatetime   Primitive = "utc_datetime"
	PrimitiveDecimal       Primitive = "decimal"
	PrimitiveMap           Primitive = "map"
	PrimitiveAny           Primitive = "any"
)

// DatetimeShorthand 被拒绝的 datetime 简写
//
// 裸 "datetime" 无法区分本地语义与 UTC 语义，定义期必须二选一。
const DatetimeShorthand = "datetime"

// IType 字段类型契约
//
// 外部协作方（存储/执行层）只依赖这三件事：
// 底层原语兼容性、原始值解码、领域值编码。
type IType interface {
	// Name 类型的注册名（schema 类型表中的键）
	Name() string

	// Primitive 底层原语兼容性声明
	Primitive() Primitive

	// Decode 将存储层原始值解码为领域值
	Decode(raw any) (any, error)

	// Encode 将领域值编码为存储层可写入的值
	Encode(value any) (any, error)
}

// IGenerator 零参生成器能力
//
// 声明 autogenerate 的字段在插入（以及按需在更新）时调用此能力取值。
type IGenerator interface {
	GenerateValue() any
}

// IIdentifier 标识符形状标记
//
// 只有实现本接口的类型才有资格作为自动生成主键；
// 标识符类型同时也是 belongs_to 外键字段的缺省类型来源。
type IIdentifier interface {
	IdentifierType()
}

// IsIdentifier 判断类型是否为标识符形状
func IsIdentifier(t IType) bool {
	_, ok := t.(IIdentifier)
	return ok
}

// IsPrimitive 判断是否为本包内建的原语类型实例
//
// 自动生成策略依赖这个区分：原语非标识符类型直接拒绝自动生成，
// 自定义类型则按是否暴露 IGenerator 判定。
func IsPrimitive(t IType) bool {
	switch t.(type) {
	case *primitiveType, *idType:
		return true
	}
	return false
}

// GeneratorOf 提取类型的零参生成器能力，不具备时返回 false
func GeneratorOf(t IType) (IGenerator, bool) {
	g, ok := t.(IGenerator)
	return g, ok
}

// Decode 按类型解码原始值，nil 原始值原样透传（缺失语义由上层处理）
func Decode(t IType, raw any) (any, error) {
	if t == nil {
		return nil, errors.NewError(errors.ErrCodeInvalidType, "类型为 nil，无法解码")
	}
	if raw == nil {
		return nil, nil
	}
	v, err := t.Decode(raw)
	if err != nil {
		return nil, errors.WrapError(err, errors.ErrCodeDecodeFailed,
			fmt.Sprintf("类型 %s 无法解码 %T 值", t.Name(), raw))
	}
	return v, nil
}
