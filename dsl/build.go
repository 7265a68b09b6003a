package dsl

import (
	"fmt"

	"tabula/errors"
	"tabula/schema"
	"tabula/types"
)

// BuildAll 按出现顺序把一批定义翻译成编译好的描述符
//
// 返回表以限定来源名为键。reg 为 nil 时用全局类型注册表解析类型名。
// include 按名字在本批更早的定义里找：顺序即依赖序，环不可能成立。
func BuildAll(specs []*SchemaSpec, reg *types.Registry) (map[string]*schema.Descriptor, error) {
	built := make(map[string]*schema.Descriptor, len(specs))
	for i, spec := range specs {
		if spec == nil {
			return nil, errors.NewError(errors.ErrCodeInvalidInput,
				fmt.Sprintf("第 %d 个定义为空", i))
		}
		desc, err := buildOne(spec, reg, built)
		if err != nil {
			return nil, err
		}
		name := desc.QualifiedSource()
		if _, dup := built[name]; dup {
			return nil, errors.NewSchemaError(errors.ErrCodeInvalidSource, name,
				"同一批定义中来源重复")
		}
		built[name] = desc
	}
	return built, nil
}

func buildOne(spec *SchemaSpec, reg *types.Registry, built map[string]*schema.Descriptor) (*schema.Descriptor, error) {
	var opts []schema.SchemaOption
	if spec.Prefix != "" {
		opts = append(opts, schema.WithPrefix(spec.Prefix))
	}
	if spec.Internal {
		opts = append(opts, schema.WithInternal())
	}
	if spec.WithoutPrimaryKey {
		opts = append(opts, schema.WithoutPrimaryKey())
	}
	if spec.KeyType != "" {
		kt, err := lookupType(reg, spec.KeyType)
		if err != nil {
			return nil, err
		}
		opts = append(opts, schema.WithDefaultKeyType(kt))
	}

	b := schema.New(spec.Source, opts...)

	if spec.Include != "" {
		src, ok := built[spec.Include]
		if !ok {
			return nil, errors.NewSchemaError(errors.ErrCodeInvalidOption, spec.Source,
				fmt.Sprintf("include 引用的定义 %q 不在更早的位置", spec.Include))
		}
		if err := b.Include(src); err != nil {
			return nil, err
		}
	}

	for _, f := range spec.Fields {
		if err := addField(b, reg, f); err != nil {
			return nil, err
		}
	}
	if spec.Discriminator != "" {
		if err := b.Discriminator(spec.Discriminator); err != nil {
			return nil, err
		}
	}

	if err := addAssociations(b, reg, spec); err != nil {
		return nil, err
	}
	for _, e := range spec.Embeds {
		if err := addEmbed(b, reg, e); err != nil {
			return nil, err
		}
	}

	if spec.Timestamps != nil {
		tsOpts, err := timestampsOptions(spec.Timestamps)
		if err != nil {
			return nil, err
		}
		if err := b.Timestamps(tsOpts...); err != nil {
			return nil, err
		}
	}

	return b.Compile()
}

func addField(b *schema.Builder, reg *types.Registry, f FieldSpec) error {
	t, err := lookupType(reg, f.Type)
	if err != nil {
		return err
	}
	return b.Field(f.Name, t, fieldOptions(f)...)
}

func fieldOptions(f FieldSpec) []schema.FieldOption {
	var opts []schema.FieldOption
	if f.PrimaryKey {
		opts = append(opts, schema.PrimaryKey())
	}
	if f.Default != nil {
		opts = append(opts, schema.Default(f.Default))
	}
	if f.Virtual {
		opts = append(opts, schema.Virtual())
	}
	if f.Alias != "" {
		opts = append(opts, schema.Alias(f.Alias))
	}
	if f.Autogenerate {
		opts = append(opts, schema.Autogenerate())
	}
	if f.ReadAfterWrites {
		opts = append(opts, schema.ReadAfterWrites())
	}
	return opts
}

func addAssociations(b *schema.Builder, reg *types.Registry, spec *SchemaSpec) error {
	for _, a := range spec.BelongsTo {
		opts, err := assocOptions(reg, a)
		if err != nil {
			return err
		}
		if err := b.BelongsTo(a.Name, a.Target, opts...); err != nil {
			return err
		}
	}
	for _, a := range spec.HasOne {
		opts, err := assocOptions(reg, a)
		if err != nil {
			return err
		}
		if err := b.HasOne(a.Name, a.Target, opts...); err != nil {
			return err
		}
	}
	for _, a := range spec.HasMany {
		opts, err := assocOptions(reg, a)
		if err != nil {
			return err
		}
		if err := b.HasMany(a.Name, a.Target, opts...); err != nil {
			return err
		}
	}
	for _, a := range spec.ManyToMany {
		opts, err := assocOptions(reg, a)
		if err != nil {
			return err
		}
		if err := b.ManyToMany(a.Name, a.Target, a.JoinSource, opts...); err != nil {
			return err
		}
	}
	return nil
}

// assocOptions 把声明里出现的键原样转成构造选项
//
// 不按关系种类过滤：用错位置的键（如 has_many 上的 field_type）
// 由构建器逐变体拒绝，声明式入口与代码入口因此报同一个定义错误。
func assocOptions(reg *types.Registry, a AssocSpec) ([]schema.AssociationOption, error) {
	var opts []schema.AssociationOption
	if a.ForeignKey != "" {
		opts = append(opts, schema.WithForeignKey(a.ForeignKey))
	}
	if a.ReferenceKey != "" {
		opts = append(opts, schema.WithReferenceKey(a.ReferenceKey))
	}
	if len(a.Through) > 0 {
		opts = append(opts, schema.Through(a.Through...))
	}
	if a.FieldType != "" {
		ft, err := lookupType(reg, a.FieldType)
		if err != nil {
			return nil, err
		}
		opts = append(opts, schema.WithFieldType(ft))
	}
	if a.WithoutField {
		opts = append(opts, schema.WithoutField())
	}
	if len(a.JoinKeys) > 0 {
		if len(a.JoinKeys) != 2 {
			return nil, errors.NewSchemaError(errors.ErrCodeInvalidOption, a.Name,
				"join_keys 需要恰好两个键（本方键, 目标键）")
		}
		opts = append(opts, schema.WithJoinKeys(a.JoinKeys[0], a.JoinKeys[1]))
	}
	if a.OnDelete != "" {
		p, err := parseOnDelete(a.Name, a.OnDelete)
		if err != nil {
			return nil, err
		}
		opts = append(opts, schema.WithOnDelete(p))
	}
	if a.OnReplace != "" {
		p, err := parseOnReplace(a.Name, a.OnReplace)
		if err != nil {
			return nil, err
		}
		opts = append(opts, schema.WithOnReplace(p))
	}
	return opts, nil
}

func addEmbed(b *schema.Builder, reg *types.Registry, e EmbedSpec) error {
	var opts []schema.EmbedOption
	if e.OnReplace != "" {
		p, err := parseOnReplace(e.Name, e.OnReplace)
		if err != nil {
			return err
		}
		opts = append(opts, schema.WithReplacePolicy(p))
	}
	if e.WithoutPrimaryKey {
		opts = append(opts, schema.WithNestedOptions(schema.WithoutPrimaryKey()))
	}

	define := func(nested *schema.Builder) {
		for _, f := range e.Fields {
			if err := addField(nested, reg, f); err != nil {
				// 嵌套构建器已中毒，编译时统一上报
				return
			}
		}
	}

	switch e.Cardinality {
	case "", string(schema.CardinalityOne):
		return b.EmbedsOneInline(e.Name, define, opts...)
	case string(schema.CardinalityMany):
		return b.EmbedsManyInline(e.Name, define, opts...)
	}
	return errors.NewError(errors.ErrCodeInvalidOption,
		fmt.Sprintf("嵌入 %s 的基数 %q 未知（one/many）", e.Name, e.Cardinality))
}

func timestampsOptions(ts *TimestampsSpec) ([]schema.TimestampsOption, error) {
	var opts []schema.TimestampsOption
	if ts.Usec != nil {
		if *ts.Usec {
			opts = append(opts, schema.WithMicrosecondPrecision())
		} else {
			opts = append(opts, schema.WithSecondPrecision())
		}
	}
	if ts.InsertedAt != nil {
		if *ts.InsertedAt == "" {
			opts = append(opts, schema.WithoutInsertedAt())
		} else {
			opts = append(opts, schema.WithInsertedAt(*ts.InsertedAt))
		}
	}
	if ts.UpdatedAt != nil {
		if *ts.UpdatedAt == "" {
			opts = append(opts, schema.WithoutUpdatedAt())
		} else {
			opts = append(opts, schema.WithUpdatedAt(*ts.UpdatedAt))
		}
	}
	return opts, nil
}

func lookupType(reg *types.Registry, name string) (types.IType, error) {
	if name == "" {
		return nil, errors.NewError(errors.ErrCodeInvalidType, "字段缺少类型名")
	}
	if reg != nil {
		return reg.Lookup(name)
	}
	return types.Lookup(name)
}

func parseOnDelete(assocName, s string) (schema.OnDeletePolicy, error) {
	switch p := schema.OnDeletePolicy(s); p {
	case schema.OnDeleteNothing, schema.OnDeleteNilify, schema.OnDeleteDeleteAll:
		return p, nil
	}
	return "", errors.NewError(errors.ErrCodeInvalidOption,
		fmt.Sprintf("关联 %s 的 on_delete 策略 %q 未知", assocName, s))
}

func parseOnReplace(name, s string) (schema.OnReplacePolicy, error) {
	switch p := schema.OnReplacePolicy(s); p {
	case schema.OnReplaceRaise, schema.OnReplaceMarkInvalid, schema.OnReplaceNilify,
		schema.OnReplaceUpdate, schema.OnReplaceDelete:
		return p, nil
	}
	return "", errors.NewError(errors.ErrCodeInvalidOption,
		fmt.Sprintf("%s 的 on_replace 策略 %q 未知", name, s))
}
