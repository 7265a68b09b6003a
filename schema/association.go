package schema

import (
	"fmt"
	"strings"

	"tabula/errors"
	"tabula/types"
	"tabula/validation"
)

// Cardinality 关联/嵌入的基数
type Cardinality string

const (
	CardinalityOne  Cardinality = "one"
	CardinalityMany Cardinality = "many"
)

// AssociationKind 关联关系种类
type AssociationKind string

const (
	KindBelongsTo  AssociationKind = "belongs_to"
	KindHasOne     AssociationKind = "has_one"
	KindHasMany    AssociationKind = "has_many"
	KindManyToMany AssociationKind = "many_to_many"
)

// OnDeletePolicy 相关记录删除时对关联另一侧的处置
type OnDeletePolicy string

const (
	OnDeleteNothing   OnDeletePolicy = "nothing"
	OnDeleteNilify    OnDeletePolicy = "nilify_all"
	OnDeleteDeleteAll OnDeletePolicy = "delete_all"
)

// OnReplacePolicy 关联/嵌入被替换时对旧值的处置
type OnReplacePolicy string

const (
	OnReplaceRaise       OnReplacePolicy = "raise"
	OnReplaceMarkInvalid OnReplacePolicy = "mark_as_invalid"
	OnReplaceNilify      OnReplacePolicy = "nilify"
	OnReplaceUpdate      OnReplacePolicy = "update"
	OnReplaceDelete      OnReplacePolicy = "delete"
)

// IAssociation 四种关联变体共享的统一读取面
//
// 预加载、查询构建等外部协作方只消费这四项，无需关心具体变体；
// 变体集是封闭的（Direct/Through/Owning/ManyToMany），需要区分时
// 对具体类型做断言，不支持外部扩展。
type IAssociation interface {
	// Name 关联字段名
	Name() string

	// Kind 关系种类
	Kind() AssociationKind

	// Cardinality 基数
	Cardinality() Cardinality

	// Owner 所属描述符，编译时回填
	Owner() *Descriptor

	// RelatedTarget 相关目标 schema 的来源名（按名引用，允许环状关联）
	RelatedTarget() string

	// 编译期回填属主；同时封闭变体集
	setOwner(*Descriptor)
}

// DirectAssociation 直接关联（has_one / has_many）：外键落在相关 schema 上
type DirectAssociation struct {
	name          string
	cardinality   Cardinality
	owner         *Descriptor
	relatedTarget string
	foreignKey    string
	referenceKey  string
	onDelete      OnDeletePolicy
	onReplace     OnReplacePolicy
}

func (a *DirectAssociation) Name() string             { return a.name }
func (a *DirectAssociation) Cardinality() Cardinality { return a.cardinality }
func (a *DirectAssociation) Owner() *Descriptor       { return a.owner }
func (a *DirectAssociation) RelatedTarget() string    { return a.relatedTarget }
func (a *DirectAssociation) setOwner(d *Descriptor)   { a.owner = d }

func (a *DirectAssociation) Kind() AssociationKind {
	if a.cardinality == CardinalityMany {
		return KindHasMany
	}
	return KindHasOne
}

// ForeignKey 相关 schema 上指回本方的外键字段
func (a *DirectAssociation) ForeignKey() string { return a.foreignKey }

// ReferenceKey 本方被引用的键，默认为本方主键
func (a *DirectAssociation) ReferenceKey() string { return a.referenceKey }

// OwnerKey 方向归一化视图：落在属主侧的键（即参考键）
func (a *DirectAssociation) OwnerKey() string { return a.referenceKey }

// RelatedKey 方向归一化视图：落在相关侧的键（即外键）
func (a *DirectAssociation) RelatedKey() string { return a.foreignKey }

func (a *DirectAssociation) OnDelete() OnDeletePolicy   { return a.onDelete }
func (a *DirectAssociation) OnReplace() OnReplacePolicy { return a.onReplace }

// ThroughAssociation 经由链关联：沿已声明关联的有序路径到达目标
//
// 构造上只读：没有自己的物理外键，删除/替换策略对它没有意义。
type ThroughAssociation struct {
	name          string
	cardinality   Cardinality
	owner         *Descriptor
	relatedTarget string
	path          []string
}

func (a *ThroughAssociation) Name() string             { return a.name }
func (a *ThroughAssociation) Cardinality() Cardinality { return a.cardinality }
func (a *ThroughAssociation) Owner() *Descriptor       { return a.owner }
func (a *ThroughAssociation) RelatedTarget() string    { return a.relatedTarget }
func (a *ThroughAssociation) setOwner(d *Descriptor)   { a.owner = d }

func (a *ThroughAssociation) Kind() AssociationKind {
	if a.cardinality == CardinalityMany {
		return KindHasMany
	}
	return KindHasOne
}

// ThroughPath 经由路径，首跳必须是本 schema 已声明的关联
func (a *ThroughAssociation) ThroughPath() []string { return copyStrings(a.path) }

// ReadOnly 经由链关联恒为只读
func (a *ThroughAssociation) ReadOnly() bool { return true }

// OwningAssociation 属有关联（belongs_to）：外键落在本 schema 上
type OwningAssociation struct {
	name          string
	owner         *Descriptor
	relatedTarget string
	foreignKey    string
	referenceKey  string
	fieldType     types.IType
	definesField  bool
	onDelete      OnDeletePolicy
	onReplace     OnReplacePolicy
}

func (a *OwningAssociation) Name() string             { return a.name }
func (a *OwningAssociation) Kind() AssociationKind    { return KindBelongsTo }
func (a *OwningAssociation) Cardinality() Cardinality { return CardinalityOne }
func (a *OwningAssociation) Owner() *Descriptor       { return a.owner }
func (a *OwningAssociation) RelatedTarget() string    { return a.relatedTarget }
func (a *OwningAssociation) setOwner(d *Descriptor)   { a.owner = d }

// ForeignKey 本 schema 上的外键字段
func (a *OwningAssociation) ForeignKey() string { return a.foreignKey }

// ReferenceKey 目标 schema 上被引用的键，默认 id
func (a *OwningAssociation) ReferenceKey() string { return a.referenceKey }

// OwnerKey 方向归一化视图：落在属主侧的键（即外键）
func (a *OwningAssociation) OwnerKey() string { return a.foreignKey }

// RelatedKey 方向归一化视图：落在相关侧的键（即参考键）
func (a *OwningAssociation) RelatedKey() string { return a.referenceKey }

// FieldType 外键字段的类型（定义期已解析为具体类型）
func (a *OwningAssociation) FieldType() types.IType { return a.fieldType }

// DefinesField 是否由本关联声明外键字段
func (a *OwningAssociation) DefinesField() bool { return a.definesField }

func (a *OwningAssociation) OnDelete() OnDeletePolicy   { return a.onDelete }
func (a *OwningAssociation) OnReplace() OnReplacePolicy { return a.onReplace }

// ManyToManyAssociation 多对多关联：经由显式连接源
//
// 删除/替换策略只作用于连接源的行，绝不触碰两侧 schema 自身的行；
// 这是对写侧协作方的契约约定，由其执行层落实。
type ManyToManyAssociation struct {
	name             string
	owner            *Descriptor
	relatedTarget    string
	joinSource       string
	joinForeignKey   string
	joinReferenceKey string
	onDelete         OnDeletePolicy
	onReplace        OnReplacePolicy
}

func (a *ManyToManyAssociation) Name() string             { return a.name }
func (a *ManyToManyAssociation) Kind() AssociationKind    { return KindManyToMany }
func (a *ManyToManyAssociation) Cardinality() Cardinality { return CardinalityMany }
func (a *ManyToManyAssociation) Owner() *Descriptor       { return a.owner }
func (a *ManyToManyAssociation) RelatedTarget() string    { return a.relatedTarget }
func (a *ManyToManyAssociation) setOwner(d *Descriptor)   { a.owner = d }

// JoinSource 连接源：裸表名或中间 schema 的来源名
func (a *ManyToManyAssociation) JoinSource() string { return a.joinSource }

// JoinForeignKey 连接源上指向本方的键
func (a *ManyToManyAssociation) JoinForeignKey() string { return a.joinForeignKey }

// JoinReferenceKey 连接源上指向目标的键
func (a *ManyToManyAssociation) JoinReferenceKey() string { return a.joinReferenceKey }

func (a *ManyToManyAssociation) OnDelete() OnDeletePolicy   { return a.onDelete }
func (a *ManyToManyAssociation) OnReplace() OnReplacePolicy { return a.onReplace }

// associationOptions 四个变体共用的构造选项集，逐变体校验合法子集
type associationOptions struct {
	foreignKey       string
	referenceKey     string
	through          []string
	fieldType        types.IType
	defineField      *bool
	joinForeignKey   string
	joinReferenceKey string
	onDelete         OnDeletePolicy
	onReplace        OnReplacePolicy
}

// AssociationOption 配置关联构造
type AssociationOption func(*associationOptions)

// WithForeignKey 显式指定外键字段名
func WithForeignKey(name string) AssociationOption {
	return func(o *associationOptions) { o.foreignKey = name }
}

// WithReferenceKey 显式指定参考键字段名
func WithReferenceKey(name string) AssociationOption {
	return func(o *associationOptions) { o.referenceKey = name }
}

// Through 将关联声明为经由链，沿已声明关联的有序路径到达目标
func Through(path ...string) AssociationOption {
	return func(o *associationOptions) { o.through = path }
}

// WithFieldType 指定 belongs_to 外键字段的类型，覆盖 schema 默认键类型
func WithFieldType(t types.IType) AssociationOption {
	return func(o *associationOptions) { o.fieldType = t }
}

// WithoutField 抑制 belongs_to 的外键字段声明（字段已由他处定义时使用）
func WithoutField() AssociationOption {
	return func(o *associationOptions) {
		v := false
		o.defineField = &v
	}
}

// WithJoinKeys 显式指定多对多连接源上的键对（本方键, 目标键）
func WithJoinKeys(joinForeignKey, joinReferenceKey string) AssociationOption {
	return func(o *associationOptions) {
		o.joinForeignKey = joinForeignKey
		o.joinReferenceKey = joinReferenceKey
	}
}

// WithOnDelete 设置删除处置策略
func WithOnDelete(p OnDeletePolicy) AssociationOption {
	return func(o *associationOptions) { o.onDelete = p }
}

// WithOnReplace 设置替换处置策略
func WithOnReplace(p OnReplacePolicy) AssociationOption {
	return func(o *associationOptions) { o.onReplace = p }
}

func collectAssociationOptions(options ...AssociationOption) associationOptions {
	var opts associationOptions
	for _, opt := range options {
		if opt != nil {
			opt(&opts)
		}
	}
	return opts
}

// HasMany 声明一对多关联
//
// 携带 Through 选项时构建经由链变体；否则构建直接变体，
// 外键默认为 <本方单数名>_id，参考键默认为本方主键（编译时解析）。
func (b *Builder) HasMany(name, target string, options ...AssociationOption) error {
	return b.guard(func() error {
		return b.direct(name, target, CardinalityMany, options...)
	})
}

// MustHasMany HasMany 的链式版本，失败 panic
func (b *Builder) MustHasMany(name, target string, options ...AssociationOption) *Builder {
	if err := b.HasMany(name, target, options...); err != nil {
		panic(err)
	}
	return b
}

// HasOne 声明一对一关联，规则与 HasMany 相同
func (b *Builder) HasOne(name, target string, options ...AssociationOption) error {
	return b.guard(func() error {
		return b.direct(name, target, CardinalityOne, options...)
	})
}

// MustHasOne HasOne 的链式版本，失败 panic
func (b *Builder) MustHasOne(name, target string, options ...AssociationOption) *Builder {
	if err := b.HasOne(name, target, options...); err != nil {
		panic(err)
	}
	return b
}

// BelongsTo 声明属有关联，并默认在本 schema 上声明外键字段
//
// 外键字段名默认为 <关联名>_id，类型取显式覆盖或 schema 默认键类型；
// 外键名与关联名相同是定义期错误。
func (b *Builder) BelongsTo(name, target string, options ...AssociationOption) error {
	return b.guard(func() error {
		return b.belongsTo(name, target, options...)
	})
}

// MustBelongsTo BelongsTo 的链式版本，失败 panic
func (b *Builder) MustBelongsTo(name, target string, options ...AssociationOption) *Builder {
	if err := b.BelongsTo(name, target, options...); err != nil {
		panic(err)
	}
	return b
}

// ManyToMany 声明多对多关联，连接源必须显式给出
func (b *Builder) ManyToMany(name, target, joinSource string, options ...AssociationOption) error {
	return b.guard(func() error {
		return b.manyToMany(name, target, joinSource, options...)
	})
}

// MustManyToMany ManyToMany 的链式版本，失败 panic
func (b *Builder) MustManyToMany(name, target, joinSource string, options ...AssociationOption) *Builder {
	if err := b.ManyToMany(name, target, joinSource, options...); err != nil {
		panic(err)
	}
	return b
}

func (b *Builder) direct(name, target string, cardinality Cardinality, options ...AssociationOption) error {
	if err := b.checkAssociation(name, target); err != nil {
		return err
	}
	opts := collectAssociationOptions(options...)

	if len(opts.through) > 0 {
		if err := rejectOptions(b.schemaName(), name, map[string]bool{
			"foreign_key":   opts.foreignKey != "",
			"reference_key": opts.referenceKey != "",
			"type":          opts.fieldType != nil,
			"define_field":  opts.defineField != nil,
			"join_keys":     opts.joinForeignKey != "" || opts.joinReferenceKey != "",
			"on_delete":     opts.onDelete != "",
			"on_replace":    opts.onReplace != "",
		}, "经由链关联只读，不接受键与处置策略选项"); err != nil {
			return err
		}
		if len(opts.through) < 2 {
			return errors.NewSchemaError(errors.ErrCodeInvalidOption, b.schemaName(),
				fmt.Sprintf("关联 %s 的经由路径至少需要两跳", name))
		}
		for _, hop := range opts.through {
			if err := validation.ValidateAssociationName(hop); err != nil {
				return err
			}
		}
		b.register(&ThroughAssociation{
			name:          name,
			cardinality:   cardinality,
			relatedTarget: target,
			path:          copyStrings(opts.through),
		})
		return nil
	}

	if err := rejectOptions(b.schemaName(), name, map[string]bool{
		"type":         opts.fieldType != nil,
		"define_field": opts.defineField != nil,
		"join_keys":    opts.joinForeignKey != "" || opts.joinReferenceKey != "",
	}, "直接关联不接受这些选项"); err != nil {
		return err
	}

	foreignKey := opts.foreignKey
	if foreignKey == "" {
		if b.source == "" {
			return errors.NewSchemaError(errors.ErrCodeInvalidOption, b.schemaName(),
				fmt.Sprintf("嵌入式 schema 无法为关联 %s 推导外键，请显式指定", name))
		}
		foreignKey = singularize(b.source) + "_id"
	}

	// 参考键默认本方主键，主键此刻可能尚未声明完，留到编译时解析
	b.register(&DirectAssociation{
		name:          name,
		cardinality:   cardinality,
		relatedTarget: target,
		foreignKey:    foreignKey,
		referenceKey:  opts.referenceKey,
		onDelete:      defaultOnDelete(opts.onDelete),
		onReplace:     defaultOnReplace(opts.onReplace),
	})
	return nil
}

func (b *Builder) belongsTo(name, target string, options ...AssociationOption) error {
	if err := b.checkAssociation(name, target); err != nil {
		return err
	}
	opts := collectAssociationOptions(options...)

	if err := rejectOptions(b.schemaName(), name, map[string]bool{
		"through":   len(opts.through) > 0,
		"join_keys": opts.joinForeignKey != "" || opts.joinReferenceKey != "",
	}, "属有关联不接受这些选项"); err != nil {
		return err
	}

	foreignKey := opts.foreignKey
	if foreignKey == "" {
		foreignKey = name + "_id"
	}
	if foreignKey == name {
		return errors.NewSchemaError(errors.ErrCodeForeignKeyConflict, b.schemaName(),
			fmt.Sprintf("关联 %s 的外键字段名不能与关联名相同", name))
	}

	fieldType := opts.fieldType
	if fieldType == nil {
		fieldType = b.defaultKeyType
	}

	referenceKey := opts.referenceKey
	if referenceKey == "" {
		referenceKey = "id"
	}

	definesField := opts.defineField == nil || *opts.defineField
	if definesField {
		if err := b.field(foreignKey, fieldType); err != nil {
			return err
		}
	}

	b.register(&OwningAssociation{
		name:          name,
		relatedTarget: target,
		foreignKey:    foreignKey,
		referenceKey:  referenceKey,
		fieldType:     fieldType,
		definesField:  definesField,
		onDelete:      defaultOnDelete(opts.onDelete),
		onReplace:     defaultOnReplace(opts.onReplace),
	})
	return nil
}

func (b *Builder) manyToMany(name, target, joinSource string, options ...AssociationOption) error {
	if err := b.checkAssociation(name, target); err != nil {
		return err
	}
	if strings.TrimSpace(joinSource) == "" {
		return errors.NewSchemaError(errors.ErrCodeInvalidSource, b.schemaName(),
			fmt.Sprintf("多对多关联 %s 需要显式连接源（裸表名或中间 schema 来源名）", name))
	}
	opts := collectAssociationOptions(options...)

	if err := rejectOptions(b.schemaName(), name, map[string]bool{
		"through":       len(opts.through) > 0,
		"foreign_key":   opts.foreignKey != "",
		"reference_key": opts.referenceKey != "",
		"type":          opts.fieldType != nil,
		"define_field":  opts.defineField != nil,
	}, "多对多关联的键对请使用 WithJoinKeys"); err != nil {
		return err
	}

	joinForeignKey := opts.joinForeignKey
	if joinForeignKey == "" {
		if b.source == "" {
			return errors.NewSchemaError(errors.ErrCodeInvalidOption, b.schemaName(),
				fmt.Sprintf("嵌入式 schema 无法为关联 %s 推导连接键，请使用 WithJoinKeys", name))
		}
		joinForeignKey = singularize(b.source) + "_id"
	}
	joinReferenceKey := opts.joinReferenceKey
	if joinReferenceKey == "" {
		joinReferenceKey = singularize(target) + "_id"
	}

	b.register(&ManyToManyAssociation{
		name:             name,
		relatedTarget:    target,
		joinSource:       joinSource,
		joinForeignKey:   joinForeignKey,
		joinReferenceKey: joinReferenceKey,
		onDelete:         defaultOnDelete(opts.onDelete),
		onReplace:        defaultOnReplace(opts.onReplace),
	})
	return nil
}

// checkAssociation 关联声明的公共校验：名称合法且在字段/关联/嵌入命名空间内唯一
func (b *Builder) checkAssociation(name, target string) error {
	if err := validation.ValidateAssociationName(name); err != nil {
		return err
	}
	if b.nameTaken(name) {
		return errors.NewSchemaError(errors.ErrCodeDuplicateAssociation, b.schemaName(),
			fmt.Sprintf("名称 %s 已被占用", name))
	}
	if strings.TrimSpace(target) == "" {
		return errors.NewSchemaError(errors.ErrCodeInvalidOption, b.schemaName(),
			fmt.Sprintf("关联 %s 缺少相关目标", name))
	}
	return nil
}

func (b *Builder) register(a IAssociation) {
	b.assocOrder = append(b.assocOrder, a.Name())
	b.assocs[a.Name()] = a
}

// rejectOptions 逐变体的非法选项检查，任何命中都是定义期致命错误
func rejectOptions(schemaName, assocName string, set map[string]bool, hint string) error {
	for key, present := range set {
		if present {
			return errors.NewSchemaError(errors.ErrCodeInvalidOption, schemaName,
				fmt.Sprintf("关联 %s 不支持选项 %s：%s", assocName, key, hint))
		}
	}
	return nil
}

func defaultOnDelete(p OnDeletePolicy) OnDeletePolicy {
	if p == "" {
		return OnDeleteNothing
	}
	return p
}

func defaultOnReplace(p OnReplacePolicy) OnReplacePolicy {
	if p == "" {
		return OnReplaceRaise
	}
	return p
}

// singularize 从复数来源名推导单数词干，供默认键名使用
//
// 只处理常规英语复数；不规则来源请显式指定键名。
func singularize(source string) string {
	switch {
	case strings.HasSuffix(source, "ies"):
		return source[:len(source)-3] + "y"
	case strings.HasSuffix(source, "ses"), strings.HasSuffix(source, "xes"),
		strings.HasSuffix(source, "zes"), strings.HasSuffix(source, "ches"),
		strings.HasSuffix(source, "shes"):
		return source[:len(source)-2]
	case strings.HasSuffix(source, "s") && !strings.HasSuffix(source, "ss"):
		return source[:len(source)-1]
	}
	return source
}
