package types

import (
	"fmt"
	"sort"
	"sync"

	"tabula/errors"
)

// Registry 按名称索引的类型注册表
//
// 定义期解析字段类型时使用。注册发生在进程启动阶段，
// 查找则贯穿所有 schema 编译，读多写少，用读写锁保护。
type Registry struct {
	mutex sync.RWMutex
	types map[string]IType
}

// NewRegistry 创建空注册表
func NewRegistry() *Registry {
	return &Registry{
		types: make(map[string]IType),
	}
}

// Register 注册一个类型，名称重复时报错
func (r *Registry) Register(t IType) error {
	if t == nil {
		return errors.NewError(errors.ErrCodeTypeRegistry, "类型不能为 nil")
	}
	name := t.Name()
	if name == "" {
		return errors.NewError(errors.ErrCodeTypeRegistry, "类型名称不能为空")
	}
	if name == DatetimeShorthand {
		return errors.NewError(errors.ErrCodeTypeRegistry,
			fmt.Sprintf("类型名 %q 为保留简写，请使用 naive_datetime 或 utc_datetime", name))
	}

	r.mutex.Lock()
	defer r.mutex.Unlock()

	if _, exists := r.types[name]; exists {
		return errors.NewError(errors.ErrCodeTypeRegistry,
			fmt.Sprintf("类型 %s 已注册", name))
	}
	r.types[name] = t
	return nil
}

// MustRegister 注册类型（panic 版本）
func (r *Registry) MustRegister(t IType) {
	if err := r.Register(t); err != nil {
		panic(err)
	}
}

// Lookup 按名称解析类型
func (r *Registry) Lookup(name string) (IType, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	t, exists := r.types[name]
	if !exists {
		return nil, errors.NewError(errors.ErrCodeInvalidType,
			fmt.Sprintf("未知类型: %s", name))
	}
	return t, nil
}

// MustLookup 按名称解析类型（panic 版本）
func (r *Registry) MustLookup(name string) IType {
	t, err := r.Lookup(name)
	if err != nil {
		panic(err)
	}
	return t
}

// Has 检查类型是否已注册
func (r *Registry) Has(name string) bool {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	_, exists := r.types[name]
	return exists
}

// Names 返回全部已注册类型名（字典序）
func (r *Registry) Names() []string {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	names := make([]string, 0, len(r.types))
	for name := range r.types {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// 全局默认注册表，启动时预置全部内建类型
var defaultRegistry = NewRegistry()

func init() {
	builtins := []IType{
		ID, String, Integer, Float, Boolean, Binary,
		Date, Time, NaiveDatetime, UTCDatetime,
		Decimal, Map, Any,
		UUID, ULID, Snowflake,
	}
	for _, t := range builtins {
		defaultRegistry.MustRegister(t)
	}
}

// Register 注册到全局注册表
func Register(t IType) error {
	return defaultRegistry.Register(t)
}

// MustRegister 注册到全局注册表（panic 版本）
func MustRegister(t IType) {
	defaultRegistry.MustRegister(t)
}

// Lookup 从全局注册表解析类型
func Lookup(name string) (IType, error) {
	return defaultRegistry.Lookup(name)
}

// MustLookup 从全局注册表解析类型（panic 版本）
func MustLookup(name string) IType {
	return defaultRegistry.MustLookup(name)
}

// Has 检查全局注册表中类型是否存在
func Has(name string) bool {
	return defaultRegistry.Has(name)
}

// Names 返回全局注册表中全部类型名
func Names() []string {
	return defaultRegistry.Names()
}
