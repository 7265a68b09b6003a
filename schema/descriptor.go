package schema

import (
	"hash/fnv"

	"tabula/types"
)

// FieldInfo 单个字段的完整编译期反射信息
//
// Include 拷贝依赖这里的每一项：从已编译描述符反推出等价的字段选项集，
// 因此新增字段选项时必须同步补充对应的反射位。
type FieldInfo struct {
	Name            string
	Type            types.IType
	Virtual         bool
	PrimaryKey      bool
	ReadAfterWrites bool

	// Autogenerate 为 true 表示类型内生生成（IGenerator 能力）；
	// 显式生成器只体现在 Generate 上，该标记保持 false。
	Autogenerate bool

	// Generate 已解析的零参生成器（内生或显式），无自动生成时为 nil
	Generate func() any

	// GenerateOnUpdate 每次更新都重新生成（timestamps 的更新时刻字段）
	GenerateOnUpdate bool

	// Default 定义期声明的默认值（领域形态），nil 表示无默认
	Default any

	// Alias 查询期计算表达式，空串表示未绑定
	Alias string
}

// Autogen 一个自动生成动作：字段名加生成器
type Autogen struct {
	FieldName string
	Generate  func() any
	OnUpdate  bool
}

// Descriptor 一个 schema 编译后的不可变元数据契约
//
// 描述符在定义期一次性创建，此后只读，任意数量的读者可以无同步并发访问。
// 所有返回切片或映射的访问器都返回拷贝，调用方的修改不会触及描述符本身。
type Descriptor struct {
	source   string
	prefix   string
	internal bool
	embedded bool

	fields    []string
	loadOrder []string
	fieldInfo map[string]FieldInfo
	typesMap  map[string]types.IType

	primaryKeys []string

	assocOrder []string
	assocs     map[string]IAssociation

	embedOrder []string
	embeds     map[string]EmbedInfo

	aliases  map[string]string
	defaults map[string]any

	autogenInsert []Autogen
	autogenUpdate []Autogen
	autogenPK     string

	discOrdinal int
	hash        uint64
}

// Source 物理来源名（表名），嵌入式描述符为空串
func (d *Descriptor) Source() string {
	return d.source
}

// Prefix 命名空间前缀，未设置时为空串
func (d *Descriptor) Prefix() string {
	return d.prefix
}

// QualifiedSource 带前缀的完整来源名，用于日志与分发表键的展示
func (d *Descriptor) QualifiedSource() string {
	if d.prefix == "" {
		return d.source
	}
	return d.prefix + "." + d.source
}

// Internal 是否为内部（非领域）描述符，内部描述符被分发表构建排除
func (d *Descriptor) Internal() bool {
	return d.internal
}

// Embedded 是否为嵌入式（无来源）描述符
func (d *Descriptor) Embedded() bool {
	return d.embedded
}

// Fields 全部字段名，按注册顺序
func (d *Descriptor) Fields() []string {
	return copyStrings(d.fields)
}

// LoadOrder 整行读取投影的字段顺序
//
// 包含全部存储字段与绑定了别名表达式的虚拟字段（如判别字段），
// 不含纯虚拟字段。位置型行按此顺序对齐，判别序数也以此为基准。
func (d *Descriptor) LoadOrder() []string {
	return copyStrings(d.loadOrder)
}

// Field 按名称取字段反射信息
func (d *Descriptor) Field(name string) (FieldInfo, bool) {
	fi, ok := d.fieldInfo[name]
	return fi, ok
}

// FieldType 按名称取字段类型
func (d *Descriptor) FieldType(name string) (types.IType, bool) {
	t, ok := d.typesMap[name]
	return t, ok
}

// Types 字段名到类型的映射
func (d *Descriptor) Types() map[string]types.IType {
	out := make(map[string]types.IType, len(d.typesMap))
	for k, v := range d.typesMap {
		out[k] = v
	}
	return out
}

// PrimaryKeys 主键字段名集合，按字段注册顺序
func (d *Descriptor) PrimaryKeys() []string {
	return copyStrings(d.primaryKeys)
}

// Associations 全部关联名，按声明顺序
func (d *Descriptor) Associations() []string {
	return copyStrings(d.assocOrder)
}

// Association 按名称取关联反射
func (d *Descriptor) Association(name string) (IAssociation, bool) {
	a, ok := d.assocs[name]
	return a, ok
}

// Embeds 全部嵌入名，按声明顺序
func (d *Descriptor) Embeds() []string {
	return copyStrings(d.embedOrder)
}

// Embed 按名称取嵌入反射
func (d *Descriptor) Embed(name string) (EmbedInfo, bool) {
	e, ok := d.embeds[name]
	return e, ok
}

// Aliases 字段名到查询期别名表达式的映射，只含绑定了别名的字段
func (d *Descriptor) Aliases() map[string]string {
	out := make(map[string]string, len(d.aliases))
	for k, v := range d.aliases {
		out[k] = v
	}
	return out
}

// Defaults 字段名到默认值的映射，只含声明了默认值的字段
func (d *Descriptor) Defaults() map[string]any {
	out := make(map[string]any, len(d.defaults))
	for k, v := range d.defaults {
		out[k] = v
	}
	return out
}

// AutogenerateInsert 插入时执行的自动生成清单，按字段注册顺序
func (d *Descriptor) AutogenerateInsert() []Autogen {
	return copyAutogens(d.autogenInsert)
}

// AutogenerateUpdate 每次更新都执行的自动生成清单
func (d *Descriptor) AutogenerateUpdate() []Autogen {
	return copyAutogens(d.autogenUpdate)
}

// AutogeneratedPrimaryKey 指定的自动生成主键字段，每个描述符至多一个
func (d *Descriptor) AutogeneratedPrimaryKey() (string, bool) {
	return d.autogenPK, d.autogenPK != ""
}

// DiscriminatorOrdinal 判别字段在 LoadOrder 中的序数
//
// 行加载协作方在尚不知道行的具体 schema 时，按查询方描述符的该序数
// 从通用行表示中取出判别值，再以其为键做分发。未声明判别字段时 ok 为 false。
func (d *Descriptor) DiscriminatorOrdinal() (int, bool) {
	if d.discOrdinal < 0 {
		return 0, false
	}
	return d.discOrdinal, true
}

// StructuralHash 结构哈希
//
// 由主键集与有序 (字段名, 类型名) 列表导出，不含来源名与前缀：
// 形状相同的两个描述符无论叫什么名字哈希都相等。
func (d *Descriptor) StructuralHash() uint64 {
	return d.hash
}

// computeStructuralHash 以 FNV-1a 64 累积主键集与字段形状
func computeStructuralHash(pks, fields []string, info map[string]FieldInfo) uint64 {
	h := fnv.New64a()
	for _, pk := range pks {
		h.Write([]byte(pk))
		h.Write([]byte{0})
	}
	h.Write([]byte{0xFF})
	for _, f := range fields {
		h.Write([]byte(f))
		h.Write([]byte{0})
		h.Write([]byte(info[f].Type.Name()))
		h.Write([]byte{0})
	}
	return h.Sum64()
}

func copyStrings(in []string) []string {
	out := make([]string, len(in))
	copy(out, in)
	return out
}

func copyAutogens(in []Autogen) []Autogen {
	out := make([]Autogen, len(in))
	copy(out, in)
	return out
}
