package loader

import (
	"time"

	"tabula/schema"
)

// Record 一行解码后的结果
//
// 值表以字段名为键，只含本次投影里出现过的字段：键缺失表示该列
// 未投影，键存在但为 nil 表示该列投影了且为 NULL。多基数嵌入是
// 唯一的例外，缺失与 NULL 都规整为空序列。
type Record struct {
	descriptor *schema.Descriptor
	values     map[string]any
}

// Descriptor 本行归属的描述符
//
// 多态装载下这是分发命中的具体描述符，而不是发起查询的那一个。
func (r *Record) Descriptor() *schema.Descriptor {
	return r.descriptor
}

// Source 归属描述符的限定来源名
func (r *Record) Source() string {
	return r.descriptor.QualifiedSource()
}

// Get 取字段值，第二返回值区分"未投影"与"NULL"
func (r *Record) Get(name string) (any, bool) {
	v, ok := r.values[name]
	return v, ok
}

// GetString 取 string 字段
func (r *Record) GetString(name string) (string, bool) {
	v, ok := r.values[name].(string)
	return v, ok
}

// GetInt 取整数字段（integer 与 id 原语都解码为 int64）
func (r *Record) GetInt(name string) (int64, bool) {
	v, ok := r.values[name].(int64)
	return v, ok
}

// GetFloat 取 float 字段
func (r *Record) GetFloat(name string) (float64, bool) {
	v, ok := r.values[name].(float64)
	return v, ok
}

// GetBool 取 boolean 字段
func (r *Record) GetBool(name string) (bool, bool) {
	v, ok := r.values[name].(bool)
	return v, ok
}

// GetTime 取时间族字段
func (r *Record) GetTime(name string) (time.Time, bool) {
	v, ok := r.values[name].(time.Time)
	return v, ok
}

// GetMap 取 map 字段
func (r *Record) GetMap(name string) (map[string]any, bool) {
	v, ok := r.values[name].(map[string]any)
	return v, ok
}

// GetRecord 取单基数嵌入
func (r *Record) GetRecord(name string) (*Record, bool) {
	v, ok := r.values[name].(*Record)
	return v, ok
}

// GetRecords 取多基数嵌入，未投影/NULL 时为空序列
func (r *Record) GetRecords(name string) ([]*Record, bool) {
	v, ok := r.values[name].([]*Record)
	return v, ok
}

// Values 值表的浅拷贝
func (r *Record) Values() map[string]any {
	out := make(map[string]any, len(r.values))
	for k, v := range r.values {
		out[k] = v
	}
	return out
}

// Len 本行携带的字段数
func (r *Record) Len() int {
	return len(r.values)
}
