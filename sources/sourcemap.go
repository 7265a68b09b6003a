package sources

import (
	"fmt"
	"sort"

	"tabula/errors"
	"tabula/schema"
)

type sourceKey struct {
	prefix string
	source string
}

// SourceMap 多态分发表
//
// 行上的判别值经由它映射到具体描述符。表一经构建即不可变，
// 查找纯读无锁，可被任意多 goroutine 并发使用。
type SourceMap struct {
	entries map[sourceKey]*schema.Descriptor
}

func newSourceMap(descs map[sourceKey]*schema.Descriptor) *SourceMap {
	entries := make(map[sourceKey]*schema.Descriptor, len(descs))
	for k, d := range descs {
		if d.Internal() {
			continue
		}
		entries[k] = d
	}
	return &SourceMap{entries: entries}
}

// Lookup 按 (prefix, source) 查找描述符
func (m *SourceMap) Lookup(prefix, source string) (*schema.Descriptor, bool) {
	d, ok := m.entries[sourceKey{prefix: prefix, source: source}]
	return d, ok
}

// LookupSource 按裸来源名查找（空前缀）
func (m *SourceMap) LookupSource(source string) (*schema.Descriptor, bool) {
	return m.Lookup("", source)
}

// Len 表内描述符数量
func (m *SourceMap) Len() int {
	return len(m.entries)
}

// Sources 表内全部限定来源名，字典序
func (m *SourceMap) Sources() []string {
	out := make([]string, 0, len(m.entries))
	for _, d := range m.entries {
		out = append(out, d.QualifiedSource())
	}
	sort.Strings(out)
	return out
}

// Resolve 以行上读出的判别值定位具体描述符
//
// 查找限定在被查询描述符的前缀之下：同名来源跨前缀不混淆。
// 未命中一律失败，绝不回退到被查询的描述符——错配的形状悄悄
// 解码出来的行比一行错误危险得多。
func (m *SourceMap) Resolve(queried *schema.Descriptor, discriminator string) (*schema.Descriptor, error) {
	if queried == nil {
		return nil, errors.NewError(errors.ErrCodeInvalidInput, "被查询描述符不能为 nil")
	}

	d, ok := m.Lookup(queried.Prefix(), discriminator)
	if !ok {
		return nil, errors.NewError(errors.ErrCodeUnknownSource,
			fmt.Sprintf("判别值 %q 未命中任何已注册来源", discriminator)).
			WithContext("prefix", queried.Prefix()).
			WithContext("queried", queried.Source())
	}
	return d, nil
}
