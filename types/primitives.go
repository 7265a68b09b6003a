package types

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// 内建原语类型实例
//
// 直接作为 schema 定义的字段类型使用，例如 b.Field("title", types.String)。
var (
	ID            IType = &idType{primitiveType{primitive: PrimitiveID}}
	String        IType = &primitiveType{primitive: PrimitiveString}
	Integer       IType = &primitiveType{primitive: PrimitiveInteger}
	Float         IType = &primitiveType{primitive: PrimitiveFloat}
	Boolean       IType = &primitiveType{primitive: PrimitiveBoolean}
	Binary        IType = &primitiveType{primitive: PrimitiveBinary}
	Date          IType = &primitiveType{primitive: PrimitiveDate}
	Time          IType = &primitiveType{primitive: PrimitiveTime}
	NaiveDatetime IType = &primitiveType{primitive: PrimitiveNaiveDatetime}
	UTCDatetime   IType = &primitiveType{primitive: PrimitiveUTCDatetime}
	Decimal       IType = &primitiveType{primitive: PrimitiveDecimal}
	Map           IType = &primitiveType{primitive: PrimitiveMap}
	Any           IType = &primitiveType{primitive: PrimitiveAny}
)

// 时间解析布局（存储层常见文本形态）
const (
	dateLayout           = "2006-01-02"
	timeLayout           = "15:04:05"
	timeLayoutUsec       = "15:04:05.000000"
	naiveLayout          = "2006-01-02 15:04:05"
	naiveLayoutUsec      = "2006-01-02 15:04:05.000000"
	naiveLayoutT         = "2006-01-02T15:04:05"
	naiveLayoutTUsec     = "2006-01-02T15:04:05.000000"
	utcLayoutRFC3339     = time.RFC3339
	utcLayoutRFC3339Nano = time.RFC3339Nano
)

// primitiveType 原语类型的 IType 适配
type primitiveType struct {
	primitive Primitive
}

func (t *primitiveType) Name() string         { return string(t.primitive) }
func (t *primitiveType) Primitive() Primitive { return t.primitive }

// idType ID 原语：标识符形状，但不携带进程内生成器
//
// 其值由存储侧分配，请求 autogenerate 会在定义期被拒绝
// （改用 uuid/ulid/snowflake，或声明 read_after_writes）。
type idType struct {
	primitiveType
}

// IdentifierType 实现 IIdentifier 标记接口
func (t *idType) IdentifierType() {}

// Decode 将存储层原始值按原语规则解码
func (t *primitiveType) Decode(raw any) (any, error) {
	switch t.primitive {
	case PrimitiveAny:
		return raw, nil
	case PrimitiveString:
		return decodeString(raw)
	case PrimitiveID, PrimitiveInteger:
		return decodeInteger(raw)
	case PrimitiveFloat:
		return decodeFloat(raw)
	case PrimitiveBoolean:
		return decodeBoolean(raw)
	case PrimitiveBinary:
		return decodeBinary(raw)
	case PrimitiveDate:
		return decodeDate(raw)
	case PrimitiveTime:
		return decodeTime(raw)
	case PrimitiveNaiveDatetime:
		return decodeNaiveDatetime(raw)
	case PrimitiveUTCDatetime:
		return decodeUTCDatetime(raw)
	case PrimitiveDecimal:
		return decodeDecimal(raw)
	case PrimitiveMap:
		return decodeMap(raw)
	}
	return nil, fmt.Errorf("未知原语类型: %s", t.primitive)
}

// Encode 将领域值编码为驱动可写入的值
func (t *primitiveType) Encode(value any) (any, error) {
	if value == nil {
		return nil, nil
	}
	switch t.primitive {
	case PrimitiveMap:
		data, err := json.Marshal(value)
		if err != nil {
			return nil, fmt.Errorf("map 编码失败: %w", err)
		}
		return string(data), nil
	case PrimitiveDate:
		if tv, ok := value.(time.Time); ok {
			return tv.Format(dateLayout), nil
		}
	case PrimitiveTime:
		if tv, ok := value.(time.Time); ok {
			return tv.Format(timeLayoutUsec), nil
		}
	case PrimitiveNaiveDatetime:
		if tv, ok := value.(time.Time); ok {
			return tv.Format(naiveLayoutUsec), nil
		}
	case PrimitiveUTCDatetime:
		if tv, ok := value.(time.Time); ok {
			return tv.UTC().Format(utcLayoutRFC3339Nano), nil
		}
	}
	// 其余原语：解码结果本身即驱动可写入形态
	return value, nil
}

func decodeString(raw any) (any, error) {
	switch v := raw.(type) {
	case string:
		return v, nil
	case []byte:
		return string(v), nil
	}
	return nil, fmt.Errorf("%T 无法作为 string", raw)
}

func decodeInteger(raw any) (any, error) {
	switch v := raw.(type) {
	case int64:
		return v, nil
	case int:
		return int64(v), nil
	case int32:
		return int64(v), nil
	case int16:
		return int64(v), nil
	case int8:
		return int64(v), nil
	case uint32:
		return int64(v), nil
	case uint16:
		return int64(v), nil
	case uint8:
		return int64(v), nil
	case float64:
		// 部分驱动（numeric 亲和）以浮点返回整数列，仅接受无损转换
		if v == math.Trunc(v) && !math.IsInf(v, 0) {
			return int64(v), nil
		}
		return nil, fmt.Errorf("浮点值 %v 不是整数", v)
	case string:
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("字符串 %q 不是整数", v)
		}
		return n, nil
	}
	return nil, fmt.Errorf("%T 无法作为 integer", raw)
}

func decodeFloat(raw any) (any, error) {
	switch v := raw.(type) {
	case float64:
		return v, nil
	case float32:
		return float64(v), nil
	case int64:
		return float64(v), nil
	case int:
		return float64(v), nil
	case string:
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return nil, fmt.Errorf("字符串 %q 不是浮点数", v)
		}
		return f, nil
	}
	return nil, fmt.Errorf("%T 无法作为 float", raw)
}

func decodeBoolean(raw any) (any, error) {
	switch v := raw.(type) {
	case bool:
		return v, nil
	case int64:
		// sqlite 等以 0/1 存布尔
		if v == 0 {
			return false, nil
		}
		if v == 1 {
			return true, nil
		}
		return nil, fmt.Errorf("整数 %d 不是布尔值", v)
	case string:
		b, err := strconv.ParseBool(v)
		if err != nil {
			return nil, fmt.Errorf("字符串 %q 不是布尔值", v)
		}
		return b, nil
	}
	return nil, fmt.Errorf("%T 无法作为 boolean", raw)
}

func decodeBinary(raw any) (any, error) {
	switch v := raw.(type) {
	case []byte:
		return v, nil
	case string:
		return []byte(v), nil
	}
	return nil, fmt.Errorf("%T 无法作为 binary", raw)
}

func decodeDate(raw any) (any, error) {
	switch v := raw.(type) {
	case time.Time:
		y, m, d := v.Date()
		return time.Date(y, m, d, 0, 0, 0, 0, time.UTC), nil
	case string:
		tv, err := time.Parse(dateLayout, v)
		if err != nil {
			return nil, fmt.Errorf("字符串 %q 不是日期（expect %s）", v, dateLayout)
		}
		return tv, nil
	case []byte:
		return decodeDate(string(v))
	}
	return nil, fmt.Errorf("%T 无法作为 date", raw)
}

func decodeTime(raw any) (any, error) {
	switch v := raw.(type) {
	case time.Time:
		return v, nil
	case string:
		for _, layout := range []string{timeLayoutUsec, timeLayout} {
			if tv, err := time.Parse(layout, v); err == nil {
				return tv, nil
			}
		}
		return nil, fmt.Errorf("字符串 %q 不是时间（expect %s）", v, timeLayout)
	case []byte:
		return decodeTime(string(v))
	}
	return nil, fmt.Errorf("%T 无法作为 time", raw)
}

func decodeNaiveDatetime(raw any) (any, error) {
	switch v := raw.(type) {
	case time.Time:
		// naive 语义：丢弃时区，保留墙上时间
		return time.Date(v.Year(), v.Month(), v.Day(), v.Hour(), v.Minute(), v.Second(), v.Nanosecond(), time.UTC), nil
	case string:
		for _, layout := range []string{naiveLayoutUsec, naiveLayout, naiveLayoutTUsec, naiveLayoutT} {
			if tv, err := time.Parse(layout, v); err == nil {
				return tv, nil
			}
		}
		return nil, fmt.Errorf("字符串 %q 不是 naive_datetime", v)
	case []byte:
		return decodeNaiveDatetime(string(v))
	}
	return nil, fmt.Errorf("%T 无法作为 naive_datetime", raw)
}

func decodeUTCDatetime(raw any) (any, error) {
	switch v := raw.(type) {
	case time.Time:
		return v.UTC(), nil
	case string:
		for _, layout := range []string{utcLayoutRFC3339Nano, utcLayoutRFC3339, naiveLayoutUsec, naiveLayout} {
			if tv, err := time.Parse(layout, v); err == nil {
				return tv.UTC(), nil
			}
		}
		return nil, fmt.Errorf("字符串 %q 不是 utc_datetime", v)
	case []byte:
		return decodeUTCDatetime(string(v))
	}
	return nil, fmt.Errorf("%T 无法作为 utc_datetime", raw)
}

func decodeDecimal(raw any) (any, error) {
	// 规范形态为十进制字符串，避免浮点精度损失在本层扩散
	switch v := raw.(type) {
	case string:
		if _, err := strconv.ParseFloat(v, 64); err != nil {
			return nil, fmt.Errorf("字符串 %q 不是十进制数", v)
		}
		return strings.TrimSpace(v), nil
	case []byte:
		return decodeDecimal(string(v))
	case int64:
		return strconv.FormatInt(v, 10), nil
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64), nil
	}
	return nil, fmt.Errorf("%T 无法作为 decimal", raw)
}

func decodeMap(raw any) (any, error) {
	switch v := raw.(type) {
	case map[string]any:
		return v, nil
	case []byte:
		var m map[string]any
		if err := json.Unmarshal(v, &m); err != nil {
			return nil, fmt.Errorf("JSON 解码失败: %w", err)
		}
		return m, nil
	case string:
		return decodeMap([]byte(v))
	}
	return nil, fmt.Errorf("%T 无法作为 map", raw)
}
