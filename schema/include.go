package schema

import (
	"fmt"

	"tabula/errors"
)

// Include 从已编译的来源描述符引入字段、关联与嵌入
//
// 纯值拷贝：每一项都从来源的编译期反射重推出等价的构造选项集，
// 再经普通声明路径在本构建器上重新注册，因此重复检测照常生效，
// 来源描述符此后的任何变化都不会追溯影响引入方。
//
// 本 schema 已声明自己的主键（含默认 id）而来源也带主键时，拷贝
// 以重复字段错误中止；调用方需先 WithoutPrimaryKey 再引入。
// 遇到未知关联变体时整个引入中止，不产生部分拷贝。
func (b *Builder) Include(src *Descriptor) error {
	return b.guard(func() error {
		return b.include(src)
	})
}

// MustInclude Include 的链式版本，失败 panic
func (b *Builder) MustInclude(src *Descriptor) *Builder {
	if err := b.Include(src); err != nil {
		panic(err)
	}
	return b
}

func (b *Builder) include(src *Descriptor) error {
	if src == nil {
		return errors.NewSchemaError(errors.ErrCodeInvalidInput, b.schemaName(),
			"引入的来源描述符为 nil")
	}

	// 预扫描关联变体：任何未知变体都在动第一笔拷贝之前中止整个引入
	for _, name := range src.Associations() {
		a, _ := src.Association(name)
		switch a.(type) {
		case *DirectAssociation, *ThroughAssociation, *OwningAssociation, *ManyToManyAssociation:
		default:
			return errors.NewSchemaError(errors.ErrCodeIncludeUnsupported, b.schemaName(),
				fmt.Sprintf("关联 %s 的变体 %T 不受引入支持，放弃整个引入", name, a))
		}
	}

	// 嵌入合成的复合字段跳过字段环节，由嵌入拷贝重新合成
	embedNames := make(map[string]struct{}, len(src.Embeds()))
	for _, name := range src.Embeds() {
		embedNames[name] = struct{}{}
	}

	for _, f := range src.Fields() {
		if _, isEmbed := embedNames[f]; isEmbed {
			continue
		}
		fi, _ := src.Field(f)
		if err := b.field(f, fi.Type, fieldOptionsFromInfo(fi)...); err != nil {
			return err
		}
	}

	for _, name := range src.Associations() {
		a, _ := src.Association(name)
		if err := b.copyAssociation(a); err != nil {
			return err
		}
	}

	for _, name := range src.Embeds() {
		e, _ := src.Embed(name)
		if err := b.embed(e.Name, e.Related, e.Cardinality, embedOptions{onReplace: e.OnReplace}); err != nil {
			return err
		}
	}
	return nil
}

// fieldOptionsFromInfo 从编译期反射重推字段的构造选项集
//
// 引入的拷贝语义全靠这里：FieldInfo 新增反射位时必须同步补充。
func fieldOptionsFromInfo(fi FieldInfo) []FieldOption {
	var opts []FieldOption
	if fi.Default != nil {
		opts = append(opts, Default(fi.Default))
	}
	if fi.PrimaryKey {
		opts = append(opts, PrimaryKey())
	}
	if fi.Virtual {
		opts = append(opts, Virtual())
	}
	if fi.ReadAfterWrites {
		opts = append(opts, ReadAfterWrites())
	}
	if fi.Alias != "" {
		opts = append(opts, Alias(fi.Alias))
	}
	switch {
	case fi.Autogenerate:
		opts = append(opts, Autogenerate())
	case fi.Generate != nil:
		opts = append(opts, withGenerator(fi.Generate, fi.GenerateOnUpdate))
	}
	return opts
}

// copyAssociation 逐变体的重映射表
//
// 外键与参考键的语义角色依变体方向而定：Direct 的外键落在相关侧、
// 参考键落在属主侧，Owning 恰好相反；归一化视图 OwnerKey/RelatedKey
// 在两个变体间互换喂给哪个构造选项。结构性属性（基数、名称、属主、
// 相关目标、种类）不参与拷贝，由声明路径重新推出。
func (b *Builder) copyAssociation(a IAssociation) error {
	switch src := a.(type) {
	case *DirectAssociation:
		return b.direct(src.Name(), src.RelatedTarget(), src.Cardinality(),
			WithForeignKey(src.RelatedKey()),
			WithReferenceKey(src.OwnerKey()),
			WithOnDelete(src.OnDelete()),
			WithOnReplace(src.OnReplace()),
		)

	case *ThroughAssociation:
		return b.direct(src.Name(), src.RelatedTarget(), src.Cardinality(),
			Through(src.ThroughPath()...),
		)

	case *OwningAssociation:
		opts := []AssociationOption{
			WithForeignKey(src.OwnerKey()),
			WithReferenceKey(src.RelatedKey()),
			WithFieldType(src.FieldType()),
			WithOnDelete(src.OnDelete()),
			WithOnReplace(src.OnReplace()),
		}
		// 外键字段已随字段环节拷入（或引入方自己声明过）时抑制再声明
		if _, taken := b.fieldInfo[src.OwnerKey()]; taken || !src.DefinesField() {
			opts = append(opts, WithoutField())
		}
		return b.belongsTo(src.Name(), src.RelatedTarget(), opts...)

	case *ManyToManyAssociation:
		return b.manyToMany(src.Name(), src.RelatedTarget(), src.JoinSource(),
			WithJoinKeys(src.JoinForeignKey(), src.JoinReferenceKey()),
			WithOnDelete(src.OnDelete()),
			WithOnReplace(src.OnReplace()),
		)
	}

	// 预扫描保证到不了这里
	return errors.NewSchemaError(errors.ErrCodeIncludeUnsupported, b.schemaName(),
		fmt.Sprintf("关联 %s 的变体不受引入支持", a.Name()))
}
