// Package loader 提供描述符驱动的行装载
//
// 三种入口对应三种行形态：LoadOrdered 吃按装载顺序排列的定位值，
// LoadMap 吃列名到值的映射，LoadPolymorphic 在解码前先以行上的
// 判别值把通用行分发到具体描述符。解码失败只作用于当前行，
// 永远不会使描述符失效。
package loader

import (
	"context"
	"fmt"

	"tabula/errors"
	"tabula/logging"
	"tabula/schema"
	"tabula/sources"
	"tabula/types"
	"tabula/validation"
)

// LoadOrdered 按描述符装载顺序解码一行定位值
//
// 值序列的宽度必须与 LoadOrder() 完全一致，这是通配投影的契约。
func LoadOrdered(desc *schema.Descriptor, values []any) (*Record, error) {
	if desc == nil {
		return nil, errors.NewError(errors.ErrCodeInvalidInput, "描述符不能为 nil")
	}

	order := desc.LoadOrder()
	if len(values) != len(order) {
		return nil, errors.NewError(errors.ErrCodeRowShape,
			fmt.Sprintf("行宽 %d 与装载顺序宽度 %d 不符", len(values), len(order))).
			WithContext("source", desc.QualifiedSource())
	}

	decoded := make(map[string]any, len(order))
	for i, name := range order {
		v, err := decodeField(desc, name, values[i])
		if err != nil {
			return nil, err
		}
		decoded[name] = v
	}
	return newRecord(desc, decoded), nil
}

// LoadMap 按列名解码一行映射值
//
// 键缺失的字段保持缺失（虚拟字段只在投影携带时出现），
// 描述符未声明的键被丢弃。
func LoadMap(desc *schema.Descriptor, values map[string]any) (*Record, error) {
	if desc == nil {
		return nil, errors.NewError(errors.ErrCodeInvalidInput, "描述符不能为 nil")
	}

	decoded := make(map[string]any, len(values))
	for _, name := range desc.Fields() {
		raw, ok := values[name]
		if !ok {
			continue
		}
		v, err := decodeField(desc, name, raw)
		if err != nil {
			return nil, err
		}
		decoded[name] = v
	}
	return newRecord(desc, decoded), nil
}

// LoadPolymorphic 以行上的判别值分发后再解码
//
// 判别列的位置由被查询描述符的装载序决定；命中的具体描述符
// 必须与通配投影同形（装载顺序宽度一致），整行在它之下解码。
func LoadPolymorphic(queried *schema.Descriptor, values []any) (*Record, error) {
	if queried == nil {
		return nil, errors.NewError(errors.ErrCodeInvalidInput, "描述符不能为 nil")
	}

	ordinal, ok := queried.DiscriminatorOrdinal()
	if !ok {
		return nil, errors.NewError(errors.ErrCodeNoDiscriminator,
			fmt.Sprintf("描述符 %s 未声明判别字段，无法多态装载", queried.QualifiedSource()))
	}

	order := queried.LoadOrder()
	if len(values) != len(order) {
		return nil, errors.NewError(errors.ErrCodeRowShape,
			fmt.Sprintf("行宽 %d 与装载顺序宽度 %d 不符", len(values), len(order))).
			WithContext("source", queried.QualifiedSource())
	}

	raw := values[ordinal]
	if raw == nil {
		return nil, errors.NewError(errors.ErrCodeRowShape, "行的判别列为 NULL").
			WithContext("source", queried.QualifiedSource())
	}
	decodedDisc, err := types.Decode(types.String, raw)
	if err != nil {
		return nil, errors.WrapDecodeError(err, queried.QualifiedSource(), schema.DiscriminatorField)
	}

	concrete, err := sources.ResolveRow(queried, decodedDisc.(string))
	if err != nil {
		return nil, err
	}
	return LoadOrdered(concrete, values)
}

func decodeField(desc *schema.Descriptor, name string, raw any) (any, error) {
	fi, ok := desc.Field(name)
	if !ok {
		return nil, errors.NewFieldError(errors.ErrCodeMissingColumn,
			desc.QualifiedSource(), name, "描述符未声明该字段")
	}
	v, err := types.Decode(fi.Type, raw)
	if err != nil {
		return nil, decodeFailure(desc, name, err)
	}
	// 类型声明了校验能力时，解码成功的值再过一次校验
	if validator, ok := fi.Type.(validation.IValidator); ok && v != nil {
		if err := validator.Validate(v); err != nil {
			return nil, decodeFailure(desc, name, err)
		}
	}
	return v, nil
}

// decodeFailure 行级失败的统一出口：Debug 日志加带来源/字段上下文的包装
func decodeFailure(desc *schema.Descriptor, name string, err error) error {
	logging.GetLogger().Debug(context.Background(), "行字段解码失败",
		logging.Source(desc.Prefix(), desc.Source()),
		logging.FieldName(name),
		logging.Error(err))
	return errors.WrapDecodeError(err, desc.QualifiedSource(), name)
}

// newRecord 从已解码的值表构造记录并规整嵌入
func newRecord(desc *schema.Descriptor, decoded map[string]any) *Record {
	normalizeEmbeds(desc, decoded)
	return &Record{descriptor: desc, values: decoded}
}

// normalizeEmbeds 把嵌入文档提升为记录
//
// 多基数嵌入规整缺失与 NULL 为空序列；单基数嵌入保持缺失/NULL 原样。
// 嵌套嵌入随目标描述符递归提升。
func normalizeEmbeds(desc *schema.Descriptor, values map[string]any) {
	for _, name := range desc.Embeds() {
		e, ok := desc.Embed(name)
		if !ok {
			continue
		}
		v, present := values[name]

		if e.Cardinality == schema.CardinalityMany {
			docs, _ := v.([]map[string]any)
			records := make([]*Record, 0, len(docs))
			for _, doc := range docs {
				records = append(records, newRecord(e.Related, doc))
			}
			values[name] = records
			continue
		}

		if !present || v == nil {
			continue
		}
		if doc, ok := v.(map[string]any); ok {
			values[name] = newRecord(e.Related, doc)
		}
	}
}
