package types

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tabula/errors"
)

// TestPrimitives_Name 测试原语名称与底层原语声明一致
func TestPrimitives_Name(t *testing.T) {
	all := []IType{
		ID, String, Integer, Float, Boolean, Binary,
		Date, Time, NaiveDatetime, UTCDatetime, Decimal, Map, Any,
	}
	for _, typ := range all {
		assert.Equal(t, string(typ.Primitive()), typ.Name())
	}
}

// TestString_Decode 测试字符串解码
func TestString_Decode(t *testing.T) {
	v, err := String.Decode("hello")
	require.NoError(t, err)
	assert.Equal(t, "hello", v)

	// 驱动常以 []byte 返回 TEXT 列
	v, err = String.Decode([]byte("world"))
	require.NoError(t, err)
	assert.Equal(t, "world", v)

	_, err = String.Decode(42)
	assert.Error(t, err)
}

// TestInteger_Decode 测试整数解码（表驱动）
func TestInteger_Decode(t *testing.T) {
	tests := []struct {
		name    string
		raw     any
		want    int64
		wantErr bool
	}{
		{"int64 原样", int64(42), 42, false},
		{"int 提升", 7, 7, false},
		{"int32 提升", int32(-3), -3, false},
		{"无损浮点", float64(100), 100, false},
		{"十进制文本", "2048", 2048, false},
		{"有损浮点拒绝", float64(1.5), 0, true},
		{"非数字文本拒绝", "abc", 0, true},
		{"布尔拒绝", true, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, err := Integer.Decode(tt.raw)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, v)
		})
	}
}

// TestBoolean_Decode 测试布尔解码
func TestBoolean_Decode(t *testing.T) {
	// sqlite 以 0/1 存布尔
	v, err := Boolean.Decode(int64(1))
	require.NoError(t, err)
	assert.Equal(t, true, v)

	v, err = Boolean.Decode(int64(0))
	require.NoError(t, err)
	assert.Equal(t, false, v)

	_, err = Boolean.Decode(int64(2))
	assert.Error(t, err)

	v, err = Boolean.Decode("true")
	require.NoError(t, err)
	assert.Equal(t, true, v)
}

// TestDate_Decode 测试日期解码：时间部分被截断
func TestDate_Decode(t *testing.T) {
	in := time.Date(2024, 5, 1, 18, 45, 12, 0, time.UTC)
	v, err := Date.Decode(in)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC), v)

	v, err = Date.Decode("2024-05-01")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC), v)

	_, err = Date.Decode("01/05/2024")
	assert.Error(t, err)
}

// TestNaiveDatetime_Decode 测试 naive 语义：丢弃时区，保留墙上时间
func TestNaiveDatetime_Decode(t *testing.T) {
	zone := time.FixedZone("CST", 8*3600)
	in := time.Date(2024, 5, 1, 12, 30, 0, 0, zone)

	v, err := NaiveDatetime.Decode(in)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 5, 1, 12, 30, 0, 0, time.UTC), v)

	v, err = NaiveDatetime.Decode("2024-05-01 12:30:00.000000")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 5, 1, 12, 30, 0, 0, time.UTC), v)
}

// TestUTCDatetime_Decode 测试 UTC 语义：换算到 UTC 时刻
func TestUTCDatetime_Decode(t *testing.T) {
	zone := time.FixedZone("CST", 8*3600)
	in := time.Date(2024, 5, 1, 12, 30, 0, 0, zone)

	v, err := UTCDatetime.Decode(in)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 5, 1, 4, 30, 0, 0, time.UTC), v)

	v, err = UTCDatetime.Decode("2024-05-01T12:30:00Z")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 5, 1, 12, 30, 0, 0, time.UTC), v)
}

// TestDecimal_Decode 测试十进制解码：规范形态为字符串
func TestDecimal_Decode(t *testing.T) {
	v, err := Decimal.Decode("10.50")
	require.NoError(t, err)
	assert.Equal(t, "10.50", v)

	v, err = Decimal.Decode(int64(3))
	require.NoError(t, err)
	assert.Equal(t, "3", v)

	v, err = Decimal.Decode(float64(2.5))
	require.NoError(t, err)
	assert.Equal(t, "2.5", v)

	_, err = Decimal.Decode("十块五")
	assert.Error(t, err)
}

// TestMap_DecodeEncode 测试 map 与 JSON 文本的互转
func TestMap_DecodeEncode(t *testing.T) {
	v, err := Map.Decode(`{"a":1,"b":"x"}`)
	require.NoError(t, err)
	m, ok := v.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, float64(1), m["a"])
	assert.Equal(t, "x", m["b"])

	enc, err := Map.Encode(map[string]any{"a": 1})
	require.NoError(t, err)
	assert.Equal(t, `{"a":1}`, enc)

	_, err = Map.Decode("{broken")
	assert.Error(t, err)
}

// TestEncode_Datetime 测试时间族编码为存储文本
func TestEncode_Datetime(t *testing.T) {
	in := time.Date(2024, 5, 1, 12, 30, 0, 123456000, time.UTC)

	enc, err := Date.Encode(in)
	require.NoError(t, err)
	assert.Equal(t, "2024-05-01", enc)

	enc, err = NaiveDatetime.Encode(in)
	require.NoError(t, err)
	assert.Equal(t, "2024-05-01 12:30:00.123456", enc)
}

// TestDecode_NilPassthrough 测试 nil 原始值透传
func TestDecode_NilPassthrough(t *testing.T) {
	v, err := Decode(String, nil)
	require.NoError(t, err)
	assert.Nil(t, v)
}

// TestDecode_WrapsFailure 测试解码失败归入行加载错误族
func TestDecode_WrapsFailure(t *testing.T) {
	_, err := Decode(Integer, "not-a-number")
	require.Error(t, err)
	assert.True(t, errors.IsDecodeError(err))
	assert.Equal(t, errors.ErrCodeDecodeFailed, errors.GetErrorCode(err))
}
