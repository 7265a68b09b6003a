// Package schema 提供 schema 元数据的两阶段编译
//
// 定义期通过可变的 Builder 累积字段、关联、嵌入与自动生成声明，
// Compile 一次性冻结为不可变的 Descriptor；描述符发布后只读，
// 供任意数量的读者无同步并发访问。所有定义期校验失败都是致命的：
// 编译中止，描述符不发布，后续协作方因此可以无条件信任描述符。
//
// 典型用法：
//
//	b := schema.New("books")
//	b.MustField("title", types.String).
//	    MustField("isbn", types.String, schema.Default("")).
//	    MustBelongsTo("author", "authors").
//	    MustTimestamps()
//	desc := b.MustCompile()
package schema

import (
	"fmt"
	"strings"

	"tabula/errors"
	"tabula/types"
	"tabula/validation"
)

// DiscriminatorField 保留的判别字段名
//
// 继承层级中的行以该字段携带自身的物理来源标识，
// 行加载协作方以其值为键在分发表中定位具体描述符。
const DiscriminatorField = "origin_table"

// Defaults schema 级默认配置
//
// 经 WithDefaults 挂到构建器上，作用于默认主键/外键类型与 Timestamps
// 的精度及字段名；调用点选项仍然可以逐项覆盖。
type Defaults struct {
	// KeyType 默认键类型（主键与 belongs_to 外键）
	KeyType types.IType

	// TimestampsUsec 时间戳精度：true 微秒，false 秒，nil 取内建默认（微秒）
	TimestampsUsec *bool

	// InsertedAtField 插入时刻字段名，空串取内建默认 inserted_at
	InsertedAtField string

	// UpdatedAtField 更新时刻字段名，空串取内建默认 updated_at
	UpdatedAtField string
}

// SchemaOption 配置构建器
type SchemaOption func(*schemaOptions)

type schemaOptions struct {
	prefix       string
	keyType      types.IType
	noPrimaryKey bool
	internal     bool
	defaults     *Defaults
}

// WithPrefix 设置命名空间前缀，分发表键与完整来源名都会带上它
func WithPrefix(prefix string) SchemaOption {
	return func(o *schemaOptions) { o.prefix = prefix }
}

// WithDefaultKeyType 覆盖默认键类型
func WithDefaultKeyType(t types.IType) SchemaOption {
	return func(o *schemaOptions) { o.keyType = t }
}

// WithoutPrimaryKey 不声明默认主键字段 id
//
// 引入（Include）一个自带主键的来源之前必须先禁用默认主键，
// 否则两个主键字段同名冲突，编译以重复字段错误中止。
func WithoutPrimaryKey() SchemaOption {
	return func(o *schemaOptions) { o.noPrimaryKey = true }
}

// WithInternal 标记为内部（非领域）schema，分发表构建将其排除
func WithInternal() SchemaOption {
	return func(o *schemaOptions) { o.internal = true }
}

// WithDefaults 挂载 schema 级默认配置
func WithDefaults(d *Defaults) SchemaOption {
	return func(o *schemaOptions) { o.defaults = d }
}

// Builder schema 定义的累积阶段
//
// 非并发安全：单个描述符的编译是单线程的、一次性的。第一个定义期
// 错误会使构建器中毒，此后所有操作原样返回该错误，Compile 同样报告它；
// 链式的 Must* 变体则直接 panic。
type Builder struct {
	source         string
	prefix         string
	internal       bool
	embedded       bool
	defaults       *Defaults
	defaultKeyType types.IType

	fieldOrder []string
	fieldInfo  map[string]FieldInfo
	assocOrder []string
	assocs     map[string]IAssociation
	embedOrder []string
	embeds     map[string]EmbedInfo

	autogenPK string
	compiled  bool
	err       error
}

// New 创建持久化 schema 的构建器
//
// source 为物理来源名（表名），必须非空。除非 WithoutPrimaryKey，
// 默认声明主键字段 id：默认键类型为 id 原语（存储分配，自动带
// read_after_writes）；换成具备生成器的标识符类型（uuid/ulid/snowflake）
// 时主键转为自动生成。
func New(source string, options ...SchemaOption) *Builder {
	return newBuilder(source, false, options...)
}

// NewEmbedded 创建嵌入式（无来源）schema 的构建器
//
// 嵌入式 schema 没有自己的表，默认键类型为 uuid，主键自动生成。
func NewEmbedded(options ...SchemaOption) *Builder {
	return newBuilder("", true, options...)
}

func newBuilder(source string, embedded bool, options ...SchemaOption) *Builder {
	var opts schemaOptions
	for _, opt := range options {
		if opt != nil {
			opt(&opts)
		}
	}

	b := &Builder{
		source:    source,
		prefix:    opts.prefix,
		internal:  opts.internal,
		embedded:  embedded,
		defaults:  opts.defaults,
		fieldInfo: make(map[string]FieldInfo),
		assocs:    make(map[string]IAssociation),
		embeds:    make(map[string]EmbedInfo),
	}

	if !embedded {
		if err := validation.ValidateSourceName(source); err != nil {
			b.err = err
			return b
		}
	}

	// 键类型三级解析：内建默认 < schema 级 Defaults < 调用点选项
	keyType := opts.keyType
	if keyType == nil && opts.defaults != nil {
		keyType = opts.defaults.KeyType
	}
	if keyType == nil {
		if embedded {
			keyType = types.UUID
		} else {
			keyType = types.ID
		}
	}
	b.defaultKeyType = keyType

	if err := validation.ValidatePrefix(b.prefix); err != nil {
		b.err = err
		return b
	}

	if !opts.noPrimaryKey {
		pkOpts := []FieldOption{PrimaryKey()}
		if _, ok := types.GeneratorOf(keyType); ok && types.IsIdentifier(keyType) {
			pkOpts = append(pkOpts, Autogenerate())
		} else if keyType.Primitive() == types.PrimitiveID {
			pkOpts = append(pkOpts, ReadAfterWrites())
		}
		if err := b.field("id", keyType, pkOpts...); err != nil {
			b.err = err
		}
	}
	return b
}

// FieldOption 配置字段声明
//
// 选项集是封闭的：函数式选项让非法键在代码入口成为编不过的属性，
// 声明式入口（YAML）则在运行期重新校验键集。
type FieldOption func(*fieldOptions)

type fieldOptions struct {
	defaultValue    any
	primaryKey      bool
	virtual         bool
	readAfterWrites bool
	autogenerate    bool
	generate        func() any
	genOnUpdate     bool
	alias           string
}

// Default 声明字段默认值（领域形态）
func Default(v any) FieldOption {
	return func(o *fieldOptions) { o.defaultValue = v }
}

// PrimaryKey 将字段标记为主键
func PrimaryKey() FieldOption {
	return func(o *fieldOptions) { o.primaryKey = true }
}

// Virtual 将字段标记为虚拟：不落存储，仅在投影出现时取值
func Virtual() FieldOption {
	return func(o *fieldOptions) { o.virtual = true }
}

// ReadAfterWrites 写入后回读：值由存储侧分配，写入后需回读取得
func ReadAfterWrites() FieldOption {
	return func(o *fieldOptions) { o.readAfterWrites = true }
}

// Autogenerate 请求类型内生自动生成
//
// 字段类型必须暴露零参生成器能力；主键字段还要求类型为标识符形状，
// 且每个 schema 至多指定一个自动生成主键。
func Autogenerate() FieldOption {
	return func(o *fieldOptions) { o.autogenerate = true }
}

// AutogenerateWith 挂载显式生成器：固定函数引用加参数，与类型能力无关
func AutogenerateWith(fn func(args ...any) any, args ...any) FieldOption {
	return func(o *fieldOptions) {
		if fn == nil {
			return
		}
		o.generate = func() any { return fn(args...) }
	}
}

// Alias 绑定查询期计算表达式
//
// 绑定了别名的虚拟字段参与整行读取投影（LoadOrder），
// 判别字段即以此声明。
func Alias(expr string) FieldOption {
	return func(o *fieldOptions) { o.alias = expr }
}

// withGenerator 内部选项：挂载已解析的零参生成器
//
// Timestamps 与 Include 拷贝经此携带生成器，不经过类型能力解析。
func withGenerator(gen func() any, onUpdate bool) FieldOption {
	return func(o *fieldOptions) {
		o.generate = gen
		o.genOnUpdate = onUpdate
	}
}

// Field 声明一个字段
func (b *Builder) Field(name string, t types.IType, options ...FieldOption) error {
	return b.guard(func() error {
		return b.field(name, t, options...)
	})
}

// MustField Field 的链式版本，失败 panic
func (b *Builder) MustField(name string, t types.IType, options ...FieldOption) *Builder {
	if err := b.Field(name, t, options...); err != nil {
		panic(err)
	}
	return b
}

// Discriminator 声明判别字段
//
// 即名为 origin_table 的虚拟 string 字段，绑定到给定的查询期表达式。
// 表达式是方言相关的（如 Postgres 的 tableoid::regclass::text，
// sqlite 下常用字面列投影），因此由调用方显式给出。
func (b *Builder) Discriminator(aliasExpr string) error {
	return b.guard(func() error {
		if strings.TrimSpace(aliasExpr) == "" {
			return errors.NewSchemaError(errors.ErrCodeInvalidOption, b.schemaName(),
				"判别字段需要非空的别名表达式")
		}
		return b.field(DiscriminatorField, types.String, Virtual(), Alias(aliasExpr))
	})
}

// MustDiscriminator Discriminator 的链式版本，失败 panic
func (b *Builder) MustDiscriminator(aliasExpr string) *Builder {
	if err := b.Discriminator(aliasExpr); err != nil {
		panic(err)
	}
	return b
}

func (b *Builder) field(name string, t types.IType, options ...FieldOption) error {
	if err := validation.ValidateFieldName(name); err != nil {
		return err
	}
	if b.nameTaken(name) {
		return errors.NewFieldError(errors.ErrCodeDuplicateField, b.schemaName(), name,
			fmt.Sprintf("字段名 %s 已被占用", name))
	}
	if t == nil {
		return errors.NewFieldError(errors.ErrCodeInvalidType, b.schemaName(), name,
			"字段类型为 nil")
	}
	if t.Name() == types.DatetimeShorthand {
		return errors.NewFieldError(errors.ErrCodeInvalidType, b.schemaName(), name,
			"datetime 简写无法区分本地与 UTC 语义，请使用 naive_datetime 或 utc_datetime")
	}

	var opts fieldOptions
	for _, opt := range options {
		if opt != nil {
			opt(&opts)
		}
	}

	if t.Primitive() == types.PrimitiveAny && !opts.virtual {
		return errors.NewFieldError(errors.ErrCodeInvalidType, b.schemaName(), name,
			"any 类型仅允许虚拟字段")
	}
	if (opts.autogenerate || opts.generate != nil) && opts.readAfterWrites {
		return errors.NewFieldError(errors.ErrCodeAutogenerateConflict, b.schemaName(), name,
			"自动生成与写入后回读互斥：同一个值不能既由进程生成又由存储分配")
	}

	fi := FieldInfo{
		Name:            name,
		Type:            t,
		Virtual:         opts.virtual,
		PrimaryKey:      opts.primaryKey,
		ReadAfterWrites: opts.readAfterWrites,
		Default:         opts.defaultValue,
		Alias:           opts.alias,
	}

	switch {
	case opts.autogenerate:
		gen, err := b.resolveIntrinsic(name, t, opts.primaryKey)
		if err != nil {
			return err
		}
		fi.Autogenerate = true
		fi.Generate = gen
		if opts.primaryKey {
			if b.autogenPK != "" {
				return errors.NewFieldError(errors.ErrCodePrimaryKeyConflict, b.schemaName(), name,
					fmt.Sprintf("自动生成主键已指定为 %s，每个 schema 至多一个", b.autogenPK))
			}
			b.autogenPK = name
		}
	case opts.generate != nil:
		fi.Generate = opts.generate
		fi.GenerateOnUpdate = opts.genOnUpdate
	}

	b.fieldOrder = append(b.fieldOrder, name)
	b.fieldInfo[name] = fi
	return nil
}

// resolveIntrinsic 解析类型内生生成器，按主键资格与类型类别给出定位性错误
func (b *Builder) resolveIntrinsic(name string, t types.IType, primaryKey bool) (func() any, error) {
	if types.IsPrimitive(t) && !types.IsIdentifier(t) {
		return nil, errors.NewFieldError(errors.ErrCodeAutogenerateConflict, b.schemaName(), name,
			fmt.Sprintf("原语类型 %s 不支持自动生成", t.Name()))
	}
	if primaryKey && !types.IsIdentifier(t) {
		return nil, errors.NewFieldError(errors.ErrCodeAutogenerateConflict, b.schemaName(), name,
			fmt.Sprintf("只有标识符形状的类型可以自动生成主键，%s 不是", t.Name()))
	}
	gen, ok := types.GeneratorOf(t)
	if !ok {
		if t.Primitive() == types.PrimitiveID {
			return nil, errors.NewFieldError(errors.ErrCodeAutogenerateConflict, b.schemaName(), name,
				"id 类型的值由存储分配：声明 ReadAfterWrites，或改用 uuid/ulid/snowflake")
		}
		return nil, errors.NewFieldError(errors.ErrCodeAutogenerateConflict, b.schemaName(), name,
			fmt.Sprintf("类型 %s 未暴露生成器能力，无法自动生成", t.Name()))
	}
	return gen.GenerateValue, nil
}

// Compile 冻结累积的定义为不可变描述符
//
// 构建器是一次性的：编译成功后再次 Compile 或继续声明都会报错。
// 任何已记录的定义期错误都使编译中止，描述符不发布。
func (b *Builder) Compile() (*Descriptor, error) {
	if b.err != nil {
		return nil, b.err
	}
	if b.compiled {
		b.err = errors.NewSchemaError(errors.ErrCodeInvalidInput, b.schemaName(),
			"构建器已编译，描述符不可重建")
		return nil, b.err
	}

	primaryKeys := make([]string, 0, 1)
	for _, f := range b.fieldOrder {
		if b.fieldInfo[f].PrimaryKey {
			primaryKeys = append(primaryKeys, f)
		}
	}

	if err := b.finalizeAssociations(primaryKeys); err != nil {
		b.err = err
		return nil, err
	}

	loadOrder := make([]string, 0, len(b.fieldOrder))
	typesMap := make(map[string]types.IType, len(b.fieldOrder))
	aliases := make(map[string]string)
	defaults := make(map[string]any)
	var autogenInsert, autogenUpdate []Autogen
	for _, f := range b.fieldOrder {
		fi := b.fieldInfo[f]
		typesMap[f] = fi.Type
		if !fi.Virtual || fi.Alias != "" {
			loadOrder = append(loadOrder, f)
		}
		if fi.Alias != "" {
			aliases[f] = fi.Alias
		}
		if fi.Default != nil {
			defaults[f] = fi.Default
		}
		if fi.Generate != nil {
			autogenInsert = append(autogenInsert, Autogen{FieldName: f, Generate: fi.Generate, OnUpdate: fi.GenerateOnUpdate})
		}
		if fi.GenerateOnUpdate && fi.Generate != nil {
			autogenUpdate = append(autogenUpdate, Autogen{FieldName: f, Generate: fi.Generate, OnUpdate: true})
		}
	}

	discOrdinal := -1
	for i, f := range loadOrder {
		if f == DiscriminatorField {
			discOrdinal = i
			break
		}
	}

	d := &Descriptor{
		source:        b.source,
		prefix:        b.prefix,
		internal:      b.internal,
		embedded:      b.embedded,
		fields:        copyStrings(b.fieldOrder),
		loadOrder:     loadOrder,
		fieldInfo:     b.fieldInfo,
		typesMap:      typesMap,
		primaryKeys:   primaryKeys,
		assocOrder:    copyStrings(b.assocOrder),
		assocs:        b.assocs,
		embedOrder:    copyStrings(b.embedOrder),
		embeds:        b.embeds,
		aliases:       aliases,
		defaults:      defaults,
		autogenInsert: autogenInsert,
		autogenUpdate: autogenUpdate,
		autogenPK:     b.autogenPK,
		discOrdinal:   discOrdinal,
		hash:          computeStructuralHash(primaryKeys, b.fieldOrder, b.fieldInfo),
	}
	for _, name := range b.assocOrder {
		b.assocs[name].setOwner(d)
	}

	b.compiled = true
	return d, nil
}

// MustCompile Compile 的 panic 版本
func (b *Builder) MustCompile() *Descriptor {
	d, err := b.Compile()
	if err != nil {
		panic(err)
	}
	return d
}

// finalizeAssociations 编译期的关联收尾：补齐延迟默认值并校验经由路径首跳
func (b *Builder) finalizeAssociations(primaryKeys []string) error {
	for _, name := range b.assocOrder {
		switch a := b.assocs[name].(type) {
		case *DirectAssociation:
			if a.referenceKey == "" {
				if len(primaryKeys) == 0 {
					return errors.NewSchemaError(errors.ErrCodeInvalidOption, b.schemaName(),
						fmt.Sprintf("关联 %s 无法取默认参考键：schema 没有主键，请显式指定", name))
				}
				a.referenceKey = primaryKeys[0]
			}
		case *ThroughAssociation:
			first := a.path[0]
			if first == name {
				return errors.NewSchemaError(errors.ErrCodeUnknownAssociation, b.schemaName(),
					fmt.Sprintf("关联 %s 的经由路径不能以自身开头", name))
			}
			if _, ok := b.assocs[first]; !ok {
				return errors.NewSchemaError(errors.ErrCodeUnknownAssociation, b.schemaName(),
					fmt.Sprintf("关联 %s 的经由路径首跳 %s 未在本 schema 声明", name, first))
			}
		}
	}
	return nil
}

// guard 构建器中毒纪律：第一个错误被记录，此后所有操作原样返回它
func (b *Builder) guard(fn func() error) error {
	if b.err != nil {
		return b.err
	}
	if b.compiled {
		b.err = errors.NewSchemaError(errors.ErrCodeInvalidInput, b.schemaName(),
			"构建器已编译，不能继续声明")
		return b.err
	}
	if err := fn(); err != nil {
		b.err = err
		return err
	}
	return nil
}

// Err 返回构建器当前记录的定义期错误
func (b *Builder) Err() error {
	return b.err
}

func (b *Builder) schemaName() string {
	if b.source != "" {
		return b.source
	}
	return "(embedded)"
}

func (b *Builder) nameTaken(name string) bool {
	if _, ok := b.fieldInfo[name]; ok {
		return true
	}
	if _, ok := b.assocs[name]; ok {
		return true
	}
	if _, ok := b.embeds[name]; ok {
		return true
	}
	return false
}
