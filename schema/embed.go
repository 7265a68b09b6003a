package schema

import (
	"encoding/json"
	"fmt"

	"tabula/errors"
	"tabula/types"
	"tabula/validation"
)

// EmbedInfo 一个嵌入声明的编译期反射
//
// Related 指向嵌入目标的已编译描述符；嵌入注册同时会合成一个同名复合字段，
// 多基数嵌入的字段默认值为空序列，单基数缺省即缺席（加载侧负责归一化）。
type EmbedInfo struct {
	Name        string
	Cardinality Cardinality
	Related     *Descriptor
	OnReplace   OnReplacePolicy
}

// EmbedOption 配置嵌入声明
type EmbedOption func(*embedOptions)

type embedOptions struct {
	onReplace  OnReplacePolicy
	nestedOpts []SchemaOption
}

// WithReplacePolicy 设置嵌入值被替换时对旧值的处置
func WithReplacePolicy(p OnReplacePolicy) EmbedOption {
	return func(o *embedOptions) { o.onReplace = p }
}

// WithNestedOptions 传递给内联嵌入式 schema 构建器的选项
//
// 仅内联形式接受；典型用法是 WithoutPrimaryKey 或 WithDefaultKeyType
// 覆盖内联嵌入默认的自动生成 uuid 主键。
func WithNestedOptions(opts ...SchemaOption) EmbedOption {
	return func(o *embedOptions) { o.nestedOpts = opts }
}

func collectEmbedOptions(options ...EmbedOption) embedOptions {
	var opts embedOptions
	for _, opt := range options {
		if opt != nil {
			opt(&opts)
		}
	}
	return opts
}

// EmbedsOne 声明单基数嵌入，目标为已编译的描述符
func (b *Builder) EmbedsOne(name string, related *Descriptor, options ...EmbedOption) error {
	return b.guard(func() error {
		return b.embed(name, related, CardinalityOne, collectEmbedOptions(options...))
	})
}

// MustEmbedsOne EmbedsOne 的链式版本，失败 panic
func (b *Builder) MustEmbedsOne(name string, related *Descriptor, options ...EmbedOption) *Builder {
	if err := b.EmbedsOne(name, related, options...); err != nil {
		panic(err)
	}
	return b
}

// EmbedsMany 声明多基数嵌入，合成字段的默认值为空序列
func (b *Builder) EmbedsMany(name string, related *Descriptor, options ...EmbedOption) error {
	return b.guard(func() error {
		return b.embed(name, related, CardinalityMany, collectEmbedOptions(options...))
	})
}

// MustEmbedsMany EmbedsMany 的链式版本，失败 panic
func (b *Builder) MustEmbedsMany(name string, related *Descriptor, options ...EmbedOption) *Builder {
	if err := b.EmbedsMany(name, related, options...); err != nil {
		panic(err)
	}
	return b
}

// EmbedsOneInline 内联声明单基数嵌入
//
// define 在一个独立的嵌入式构建器上声明字段块，目标描述符在此刻合成并
// 编译一次（定义期描述符合成，不是运行期代码生成）。内联嵌入默认携带
// 自动生成的 uuid 主键 id，可经 WithNestedOptions 覆盖。
func (b *Builder) EmbedsOneInline(name string, define func(*Builder), options ...EmbedOption) error {
	return b.guard(func() error {
		return b.embedInline(name, define, CardinalityOne, collectEmbedOptions(options...))
	})
}

// MustEmbedsOneInline EmbedsOneInline 的链式版本，失败 panic
func (b *Builder) MustEmbedsOneInline(name string, define func(*Builder), options ...EmbedOption) *Builder {
	if err := b.EmbedsOneInline(name, define, options...); err != nil {
		panic(err)
	}
	return b
}

// EmbedsManyInline 内联声明多基数嵌入
func (b *Builder) EmbedsManyInline(name string, define func(*Builder), options ...EmbedOption) error {
	return b.guard(func() error {
		return b.embedInline(name, define, CardinalityMany, collectEmbedOptions(options...))
	})
}

// MustEmbedsManyInline EmbedsManyInline 的链式版本，失败 panic
func (b *Builder) MustEmbedsManyInline(name string, define func(*Builder), options ...EmbedOption) *Builder {
	if err := b.EmbedsManyInline(name, define, options...); err != nil {
		panic(err)
	}
	return b
}

func (b *Builder) embed(name string, related *Descriptor, cardinality Cardinality, opts embedOptions) error {
	if err := validation.ValidateFieldName(name); err != nil {
		return err
	}
	if related == nil {
		return errors.NewSchemaError(errors.ErrCodeInvalidInput, b.schemaName(),
			fmt.Sprintf("嵌入 %s 的目标描述符为 nil", name))
	}
	if len(opts.nestedOpts) > 0 {
		return errors.NewSchemaError(errors.ErrCodeInvalidOption, b.schemaName(),
			fmt.Sprintf("嵌入 %s 的目标已编译，嵌套选项仅内联形式接受", name))
	}

	fieldOpts := []FieldOption{}
	if cardinality == CardinalityMany {
		fieldOpts = append(fieldOpts, Default([]any{}))
	}
	if err := b.field(name, newEmbedType(related, cardinality), fieldOpts...); err != nil {
		return err
	}

	b.embedOrder = append(b.embedOrder, name)
	b.embeds[name] = EmbedInfo{
		Name:        name,
		Cardinality: cardinality,
		Related:     related,
		OnReplace:   defaultOnReplace(opts.onReplace),
	}
	return nil
}

func (b *Builder) embedInline(name string, define func(*Builder), cardinality Cardinality, opts embedOptions) error {
	if define == nil {
		return errors.NewSchemaError(errors.ErrCodeInvalidInput, b.schemaName(),
			fmt.Sprintf("嵌入 %s 缺少字段块", name))
	}

	nested := NewEmbedded(opts.nestedOpts...)
	define(nested)
	related, err := nested.Compile()
	if err != nil {
		return errors.WrapError(err, errors.ErrCodeInvalidInput,
			fmt.Sprintf("嵌入 %s 的内联 schema 编译失败", name))
	}

	opts.nestedOpts = nil
	return b.embed(name, related, cardinality, opts)
}

// embedType 嵌入合成字段的类型实现
//
// 原语兼容性声明为 map：存储形态是 JSON 文档（多基数为 JSON 数组）。
// 类型名携带目标描述符的结构哈希，嵌入目标形状不同的两个 schema
// 因此结构哈希也不同。
type embedType struct {
	related     *Descriptor
	cardinality Cardinality
}

func newEmbedType(related *Descriptor, cardinality Cardinality) *embedType {
	return &embedType{related: related, cardinality: cardinality}
}

func (t *embedType) Name() string {
	return fmt.Sprintf("embed_%s:%016x", t.cardinality, t.related.StructuralHash())
}

func (t *embedType) Primitive() types.Primitive {
	return types.PrimitiveMap
}

// Decode 将存储层 JSON 文档解码为领域形态
//
// 单基数产出 map[string]any（按目标描述符逐字段解码），多基数产出
// []map[string]any。仅目标声明过的字段参与解码，未知键丢弃。
func (t *embedType) Decode(raw any) (any, error) {
	parsed, err := parseEmbedRaw(raw)
	if err != nil {
		return nil, err
	}
	if t.cardinality == CardinalityMany {
		seq, ok := parsed.([]any)
		if !ok {
			return nil, fmt.Errorf("%T 无法作为多基数嵌入", raw)
		}
		out := make([]map[string]any, 0, len(seq))
		for i, item := range seq {
			doc, ok := item.(map[string]any)
			if !ok {
				return nil, fmt.Errorf("第 %d 个嵌入项不是文档", i)
			}
			decoded, err := t.decodeDoc(doc)
			if err != nil {
				return nil, fmt.Errorf("第 %d 个嵌入项: %w", i, err)
			}
			out = append(out, decoded)
		}
		return out, nil
	}

	doc, ok := parsed.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%T 无法作为单基数嵌入", raw)
	}
	return t.decodeDoc(doc)
}

// Encode 将领域形态编码为可写入的 JSON 文本
func (t *embedType) Encode(value any) (any, error) {
	if value == nil {
		return nil, nil
	}
	if t.cardinality == CardinalityMany {
		seq, err := asDocSlice(value)
		if err != nil {
			return nil, err
		}
		encoded := make([]map[string]any, 0, len(seq))
		for i, doc := range seq {
			e, err := t.encodeDoc(doc)
			if err != nil {
				return nil, fmt.Errorf("第 %d 个嵌入项: %w", i, err)
			}
			encoded = append(encoded, e)
		}
		data, err := json.Marshal(encoded)
		if err != nil {
			return nil, fmt.Errorf("嵌入编码失败: %w", err)
		}
		return string(data), nil
	}

	doc, ok := value.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%T 无法作为单基数嵌入", value)
	}
	encoded, err := t.encodeDoc(doc)
	if err != nil {
		return nil, err
	}
	data, err := json.Marshal(encoded)
	if err != nil {
		return nil, fmt.Errorf("嵌入编码失败: %w", err)
	}
	return string(data), nil
}

func (t *embedType) decodeDoc(doc map[string]any) (map[string]any, error) {
	out := make(map[string]any, len(doc))
	for _, field := range t.related.Fields() {
		raw, present := doc[field]
		if !present {
			continue
		}
		ft, _ := t.related.FieldType(field)
		v, err := types.Decode(ft, raw)
		if err != nil {
			return nil, fmt.Errorf("字段 %s: %w", field, err)
		}
		out[field] = v
	}
	return out, nil
}

func (t *embedType) encodeDoc(doc map[string]any) (map[string]any, error) {
	out := make(map[string]any, len(doc))
	for _, field := range t.related.Fields() {
		v, present := doc[field]
		if !present {
			continue
		}
		if v == nil {
			out[field] = nil
			continue
		}
		ft, _ := t.related.FieldType(field)
		e, err := ft.Encode(v)
		if err != nil {
			return nil, fmt.Errorf("字段 %s: %w", field, err)
		}
		out[field] = e
	}
	return out, nil
}

func parseEmbedRaw(raw any) (any, error) {
	switch v := raw.(type) {
	case map[string]any:
		return v, nil
	case []any:
		return v, nil
	case []map[string]any:
		seq := make([]any, len(v))
		for i := range v {
			seq[i] = v[i]
		}
		return seq, nil
	case []byte:
		var parsed any
		if err := json.Unmarshal(v, &parsed); err != nil {
			return nil, fmt.Errorf("嵌入 JSON 解码失败: %w", err)
		}
		return parsed, nil
	case string:
		return parseEmbedRaw([]byte(v))
	}
	return nil, fmt.Errorf("%T 无法作为嵌入文档", raw)
}

func asDocSlice(value any) ([]map[string]any, error) {
	switch v := value.(type) {
	case []map[string]any:
		return v, nil
	case []any:
		out := make([]map[string]any, 0, len(v))
		for i, item := range v {
			doc, ok := item.(map[string]any)
			if !ok {
				return nil, fmt.Errorf("第 %d 个嵌入项不是文档", i)
			}
			out = append(out, doc)
		}
		return out, nil
	}
	return nil, fmt.Errorf("%T 无法作为嵌入序列", value)
}
