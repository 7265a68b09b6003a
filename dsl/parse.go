// Package dsl 提供 YAML 声明式的 schema 定义前门
//
// 一份 YAML 文档在 schemas 键下列出若干定义，Parse 把它们读成
// SchemaSpec，BuildAll 再按出现顺序逐个翻译成构建器调用并编译。
// include 只能引用同批中更早出现的定义，前向引用是定义错误。
// 选项集是封闭的：未知键在解析期即失败。
package dsl

import (
	"bytes"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"tabula/errors"
)

type document struct {
	Schemas []*SchemaSpec `yaml:"schemas"`
}

// SchemaSpec 一个 schema 的声明式定义
type SchemaSpec struct {
	Source            string          `yaml:"source"`
	Prefix            string          `yaml:"prefix"`
	Internal          bool            `yaml:"internal"`
	WithoutPrimaryKey bool            `yaml:"without_primary_key"`
	KeyType           string          `yaml:"key_type"`
	Include           string          `yaml:"include"`
	Discriminator     string          `yaml:"discriminator"`
	Fields            []FieldSpec     `yaml:"fields"`
	BelongsTo         []AssocSpec     `yaml:"belongs_to"`
	HasOne            []AssocSpec     `yaml:"has_one"`
	HasMany           []AssocSpec     `yaml:"has_many"`
	ManyToMany        []AssocSpec     `yaml:"many_to_many"`
	Embeds            []EmbedSpec     `yaml:"embeds"`
	Timestamps        *TimestampsSpec `yaml:"timestamps"`
}

// FieldSpec 字段定义
type FieldSpec struct {
	Name            string `yaml:"name"`
	Type            string `yaml:"type"`
	PrimaryKey      bool   `yaml:"primary_key"`
	Default         any    `yaml:"default"`
	Virtual         bool   `yaml:"virtual"`
	Alias           string `yaml:"alias"`
	Autogenerate    bool   `yaml:"autogenerate"`
	ReadAfterWrites bool   `yaml:"read_after_writes"`
}

// AssocSpec 关联定义，四种关联共用一个形状
//
// field_type/without_field 只对 belongs_to 有意义，
// join_source/join_keys 只对 many_to_many 有意义，
// through 只对 has_one/has_many 有意义。
type AssocSpec struct {
	Name         string   `yaml:"name"`
	Target       string   `yaml:"target"`
	ForeignKey   string   `yaml:"foreign_key"`
	ReferenceKey string   `yaml:"reference_key"`
	Through      []string `yaml:"through"`
	FieldType    string   `yaml:"field_type"`
	WithoutField bool     `yaml:"without_field"`
	JoinSource   string   `yaml:"join_source"`
	JoinKeys     []string `yaml:"join_keys"`
	OnDelete     string   `yaml:"on_delete"`
	OnReplace    string   `yaml:"on_replace"`
}

// EmbedSpec 内联嵌入定义
type EmbedSpec struct {
	Name              string      `yaml:"name"`
	Cardinality       string      `yaml:"cardinality"`
	OnReplace         string      `yaml:"on_replace"`
	WithoutPrimaryKey bool        `yaml:"without_primary_key"`
	Fields            []FieldSpec `yaml:"fields"`
}

// TimestampsSpec 时间戳定义
//
// inserted_at/updated_at 设为空串表示关闭该侧，缺席表示沿用默认名。
type TimestampsSpec struct {
	Usec       *bool   `yaml:"usec"`
	InsertedAt *string `yaml:"inserted_at"`
	UpdatedAt  *string `yaml:"updated_at"`
}

// Parse 解析一份 YAML 定义文档
func Parse(data []byte) ([]*SchemaSpec, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var doc document
	if err := dec.Decode(&doc); err != nil {
		if err == io.EOF {
			return nil, nil
		}
		return nil, errors.WrapError(err, errors.ErrCodeInvalidOption, "YAML 定义解析失败")
	}
	return doc.Schemas, nil
}

// ParseFile 读取并解析一个 YAML 定义文件
func ParseFile(path string) ([]*SchemaSpec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.WrapError(err, errors.ErrCodeInvalidInput, "无法读取定义文件")
	}
	return Parse(data)
}
