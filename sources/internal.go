package sources

import (
	"tabula/schema"
	"tabula/types"
)

// 内部簿记描述符
//
// 这两张表属于基础设施本身：tabula_schemas 留存每个已注册形状的
// 定义快照与结构哈希，tabula_migrations 记录结构演进的版本轨迹。
// 它们注册进默认注册表（工具可以反射到），但永远不进分发表——
// 没有任何业务行会以它们为判别目标。
var (
	schemasDescriptor    = newSchemasDescriptor()
	migrationsDescriptor = newMigrationsDescriptor()
)

func newSchemasDescriptor() *schema.Descriptor {
	b := schema.New("tabula_schemas", schema.WithInternal())
	b.MustField("source", types.String).
		MustField("prefix", types.String, schema.Default("")).
		MustField("definition", types.Map).
		MustField("structural_hash", types.String).
		MustTimestamps()
	return b.MustCompile()
}

func newMigrationsDescriptor() *schema.Descriptor {
	b := schema.New("tabula_migrations",
		schema.WithInternal(), schema.WithoutPrimaryKey())
	b.MustField("version", types.Integer, schema.PrimaryKey()).
		MustTimestamps(schema.WithoutUpdatedAt())
	return b.MustCompile()
}

// SchemasDescriptor 形状簿记表的描述符
func SchemasDescriptor() *schema.Descriptor {
	return schemasDescriptor
}

// MigrationsDescriptor 结构演进簿记表的描述符
func MigrationsDescriptor() *schema.Descriptor {
	return migrationsDescriptor
}
