// Package sources 提供描述符注册表与多态分发表
//
// 应用在引导阶段把编译好的描述符显式注册进来——分发表的成员集因此是
// 一份声明过的、可测试的清单，而不是"进程里恰好加载了什么"的涌现结果。
// 分发表在首次使用前惰性构建一次，此后进程生命周期内不可重建：
// 构建后的注册尝试是配置错误。
package sources

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"tabula/errors"
	"tabula/logging"
	"tabula/schema"
)

// Registry 描述符注册表
//
// 注册只发生在引导阶段，查询贯穿整个进程生命周期，读多写少。
// 内部描述符同样入表（注册表反射可见），只是分发表构建会排除它们。
type Registry struct {
	mutex sync.RWMutex
	descs map[sourceKey]*schema.Descriptor
	order []sourceKey
	built atomic.Pointer[SourceMap]
}

// NewRegistry 创建空注册表
func NewRegistry() *Registry {
	return &Registry{
		descs: make(map[sourceKey]*schema.Descriptor),
	}
}

// Register 注册一批描述符
//
// 整批原子生效：任何一个校验失败都使整批不落表。驳回嵌入式描述符
// （没有来源）、(prefix, source) 重复，以及分发表构建后的一切注册。
func (r *Registry) Register(descs ...*schema.Descriptor) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if r.built.Load() != nil {
		return errors.NewError(errors.ErrCodeDispatchRebuild,
			"分发表已构建，注册集在进程生命周期内不可再变更")
	}

	batch := make([]sourceKey, 0, len(descs))
	seen := make(map[sourceKey]struct{}, len(descs))
	for _, d := range descs {
		if d == nil {
			return errors.NewError(errors.ErrCodeInvalidInput, "描述符不能为 nil")
		}
		if d.Embedded() {
			return errors.NewError(errors.ErrCodeInvalidSource,
				"嵌入式描述符没有物理来源，不能注册")
		}
		k := sourceKey{prefix: d.Prefix(), source: d.Source()}
		if _, dup := seen[k]; dup {
			return errors.NewError(errors.ErrCodeDuplicateSource,
				fmt.Sprintf("来源 %s 在同一批注册中重复", d.QualifiedSource()))
		}
		if _, exists := r.descs[k]; exists {
			return errors.NewError(errors.ErrCodeDuplicateSource,
				fmt.Sprintf("来源 %s 已注册", d.QualifiedSource()))
		}
		seen[k] = struct{}{}
		batch = append(batch, k)
	}

	for i, d := range descs {
		r.descs[batch[i]] = d
		r.order = append(r.order, batch[i])
	}
	return nil
}

// MustRegister Register 的 panic 版本
func (r *Registry) MustRegister(descs ...*schema.Descriptor) {
	if err := r.Register(descs...); err != nil {
		panic(err)
	}
}

// Descriptor 按 (prefix, source) 取描述符，内部描述符同样可见
func (r *Registry) Descriptor(prefix, source string) (*schema.Descriptor, bool) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	d, ok := r.descs[sourceKey{prefix: prefix, source: source}]
	return d, ok
}

// List 按注册顺序返回全部描述符
func (r *Registry) List() []*schema.Descriptor {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	out := make([]*schema.Descriptor, 0, len(r.order))
	for _, k := range r.order {
		out = append(out, r.descs[k])
	}
	return out
}

// Map 取分发表，首次调用时构建
//
// 快路径是一次原子读，无锁。慢路径与 Register 共享注册表锁做双重检查：
// 构建与发布对注册原子可见，并发注册不可能溜进一张构建中的表；
// 并发的首批调用者看到的是同一张表，绝不会观察到半成品。
func (r *Registry) Map() *SourceMap {
	if m := r.built.Load(); m != nil {
		return m
	}

	r.mutex.Lock()
	defer r.mutex.Unlock()
	if m := r.built.Load(); m != nil {
		return m
	}

	m := newSourceMap(r.descs)
	r.built.Store(m)
	logging.GetLogger().Debug(context.Background(), "分发表已构建",
		logging.Int("sources", m.Len()))
	return m
}

// Built 分发表是否已构建
func (r *Registry) Built() bool {
	return r.built.Load() != nil
}

// Reset 清空注册集与已构建的分发表
//
// 仅供测试复位进程级状态，生产路径不应触达。
func (r *Registry) Reset() {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.descs = make(map[sourceKey]*schema.Descriptor)
	r.order = nil
	r.built.Store(nil)
}

// 进程级默认注册表，init 预置内部描述符
var defaultRegistry = NewRegistry()

func init() {
	seedInternal(defaultRegistry)
}

func seedInternal(r *Registry) {
	r.MustRegister(schemasDescriptor, migrationsDescriptor)
}

// Register 注册到默认注册表
func Register(descs ...*schema.Descriptor) error {
	return defaultRegistry.Register(descs...)
}

// MustRegister 注册到默认注册表（panic 版本）
func MustRegister(descs ...*schema.Descriptor) {
	defaultRegistry.MustRegister(descs...)
}

// Descriptor 从默认注册表按 (prefix, source) 取描述符
func Descriptor(prefix, source string) (*schema.Descriptor, bool) {
	return defaultRegistry.Descriptor(prefix, source)
}

// List 默认注册表中全部描述符，按注册顺序
func List() []*schema.Descriptor {
	return defaultRegistry.List()
}

// Map 默认注册表的分发表
func Map() *SourceMap {
	return defaultRegistry.Map()
}

// Lookup 在默认注册表的分发表中按 (prefix, source) 查找
func Lookup(prefix, source string) (*schema.Descriptor, bool) {
	return defaultRegistry.Map().Lookup(prefix, source)
}

// LookupSource 在默认注册表的分发表中按裸来源名查找
func LookupSource(source string) (*schema.Descriptor, bool) {
	return defaultRegistry.Map().LookupSource(source)
}

// ResolveRow 以判别值在默认注册表的分发表中定位具体描述符
func ResolveRow(queried *schema.Descriptor, discriminator string) (*schema.Descriptor, error) {
	return defaultRegistry.Map().Resolve(queried, discriminator)
}

// Reset 复位默认注册表并重新预置内部描述符，仅供测试
func Reset() {
	defaultRegistry.Reset()
	seedInternal(defaultRegistry)
}
