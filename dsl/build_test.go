package dsl

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tabula/errors"
	"tabula/schema"
	"tabula/types"
)

// TestParse 测试 YAML 解析与封闭选项集
func TestParse(t *testing.T) {
	t.Run("常规文档", func(t *testing.T) {
		specs, err := Parse([]byte(`
schemas:
  - source: books
    fields:
      - {name: title, type: string}
`))
		require.NoError(t, err)
		require.Len(t, specs, 1)
		assert.Equal(t, "books", specs[0].Source)
		require.Len(t, specs[0].Fields, 1)
		assert.Equal(t, "title", specs[0].Fields[0].Name)
	})

	t.Run("空文档", func(t *testing.T) {
		specs, err := Parse(nil)
		require.NoError(t, err)
		assert.Empty(t, specs)
	})

	t.Run("未知键即失败", func(t *testing.T) {
		_, err := Parse([]byte(`
schemas:
  - source: books
    fields:
      - {name: title, type: string, nullable: true}
`))
		require.Error(t, err)
		assert.True(t, errors.IsErrorCode(err, errors.ErrCodeInvalidOption))
	})

	t.Run("根级未知键同样失败", func(t *testing.T) {
		_, err := Parse([]byte("tables:\n  - source: books\n"))
		require.Error(t, err)
		assert.True(t, errors.IsErrorCode(err, errors.ErrCodeInvalidOption))
	})
}

// TestParseFile 测试从文件读取定义
func TestParseFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "schemas.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
schemas:
  - source: books
`), 0o644))

	specs, err := ParseFile(path)
	require.NoError(t, err)
	require.Len(t, specs, 1)
	assert.Equal(t, "books", specs[0].Source)

	_, err = ParseFile(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
	assert.True(t, errors.IsErrorCode(err, errors.ErrCodeInvalidInput))
}

// TestBuildAll 测试完整定义的翻译
func TestBuildAll(t *testing.T) {
	specs, err := Parse([]byte(`
schemas:
  - source: authors
    fields:
      - {name: name, type: string}
  - source: books
    fields:
      - {name: title, type: string}
      - {name: pages, type: integer, default: 0}
      - {name: rank, type: float, virtual: true, alias: "views * 0.1"}
    belongs_to:
      - {name: author, target: authors, field_type: id}
    has_many:
      - {name: chapters, target: chapters, on_delete: delete_all}
    many_to_many:
      - {name: tags, target: tags, join_source: book_tags, join_keys: [book_id, tag_id]}
    embeds:
      - name: notes
        cardinality: many
        without_primary_key: true
        fields:
          - {name: body, type: string}
    timestamps:
      usec: false
      inserted_at: created
      updated_at: ""
`))
	require.NoError(t, err)

	built, err := BuildAll(specs, nil)
	require.NoError(t, err)
	require.Len(t, built, 2)

	books, ok := built["books"]
	require.True(t, ok)

	t.Run("字段", func(t *testing.T) {
		assert.Equal(t,
			[]string{"id", "title", "pages", "rank", "author_id", "notes", "created"},
			books.Fields())

		fi, ok := books.Field("rank")
		require.True(t, ok)
		assert.True(t, fi.Virtual)
		assert.Equal(t, "views * 0.1", fi.Alias)

		assert.Equal(t, map[string]any{"pages": 0, "notes": []any{}}, books.Defaults())
	})

	t.Run("关联", func(t *testing.T) {
		assert.Equal(t, []string{"author", "chapters", "tags"}, books.Associations())

		a, ok := books.Association("author")
		require.True(t, ok)
		owning, ok := a.(*schema.OwningAssociation)
		require.True(t, ok)
		assert.Equal(t, "author_id", owning.ForeignKey())

		a, ok = books.Association("chapters")
		require.True(t, ok)
		direct, ok := a.(*schema.DirectAssociation)
		require.True(t, ok)
		assert.Equal(t, schema.OnDeleteDeleteAll, direct.OnDelete())

		a, ok = books.Association("tags")
		require.True(t, ok)
		m2m, ok := a.(*schema.ManyToManyAssociation)
		require.True(t, ok)
		assert.Equal(t, "book_tags", m2m.JoinSource())
	})

	t.Run("嵌入", func(t *testing.T) {
		e, ok := books.Embed("notes")
		require.True(t, ok)
		assert.Equal(t, schema.CardinalityMany, e.Cardinality)
		assert.Equal(t, []string{"body"}, e.Related.Fields())
	})

	t.Run("时间戳", func(t *testing.T) {
		inserts := books.AutogenerateInsert()
		names := make([]string, 0, len(inserts))
		for _, a := range inserts {
			names = append(names, a.FieldName)
		}
		assert.Equal(t, []string{"created"}, names)
		assert.Empty(t, books.AutogenerateUpdate())
	})
}

// TestBuildAll_Include 测试按更早定义名的 include
func TestBuildAll_Include(t *testing.T) {
	doc := []byte(`
schemas:
  - source: media
    discriminator: "'media'"
    fields:
      - {name: title, type: string}
  - source: books
    without_primary_key: true
    include: media
    fields:
      - {name: pages, type: integer}
`)

	specs, err := Parse(doc)
	require.NoError(t, err)
	built, err := BuildAll(specs, nil)
	require.NoError(t, err)

	books := built["books"]
	require.NotNil(t, books)
	assert.Equal(t, []string{"id", "title", schema.DiscriminatorField, "pages"}, books.Fields())

	_, ok := books.DiscriminatorOrdinal()
	assert.True(t, ok)

	t.Run("前向引用失败", func(t *testing.T) {
		specs, err := Parse([]byte(`
schemas:
  - source: books
    without_primary_key: true
    include: media
  - source: media
`))
		require.NoError(t, err)
		_, err = BuildAll(specs, nil)
		require.Error(t, err)
		assert.True(t, errors.IsErrorCode(err, errors.ErrCodeInvalidOption))
	})

	t.Run("同批来源重复", func(t *testing.T) {
		specs, err := Parse([]byte("schemas:\n  - source: books\n  - source: books\n"))
		require.NoError(t, err)
		_, err = BuildAll(specs, nil)
		require.Error(t, err)
		assert.True(t, errors.IsErrorCode(err, errors.ErrCodeInvalidSource))
	})
}

// TestBuildAll_HashTwin 测试声明式产物与构建器孪生结构哈希一致
func TestBuildAll_HashTwin(t *testing.T) {
	specs, err := Parse([]byte(`
schemas:
  - source: books
    fields:
      - {name: title, type: string}
      - {name: pages, type: integer}
`))
	require.NoError(t, err)
	built, err := BuildAll(specs, nil)
	require.NoError(t, err)

	b := schema.New("books")
	b.MustField("title", types.String).
		MustField("pages", types.Integer)
	twin := b.MustCompile()

	assert.Equal(t, twin.StructuralHash(), built["books"].StructuralHash())
}

// TestBuildAll_CustomTypeRegistry 测试以显式类型注册表解析类型名
func TestBuildAll_CustomTypeRegistry(t *testing.T) {
	reg := types.NewRegistry()
	reg.MustRegister(types.String)

	specs, err := Parse([]byte(`
schemas:
  - source: notes
    fields:
      - {name: body, type: string}
`))
	require.NoError(t, err)

	built, err := BuildAll(specs, reg)
	require.NoError(t, err)
	assert.Contains(t, built, "notes")

	t.Run("注册表没有的类型名失败", func(t *testing.T) {
		specs, err := Parse([]byte(`
schemas:
  - source: notes
    fields:
      - {name: n, type: integer}
`))
		require.NoError(t, err)
		_, err = BuildAll(specs, reg)
		require.Error(t, err)
		assert.True(t, errors.IsErrorCode(err, errors.ErrCodeInvalidType))
	})
}

// TestBuildAll_Through 测试经由路径的声明
func TestBuildAll_Through(t *testing.T) {
	specs, err := Parse([]byte(`
schemas:
  - source: books
    belongs_to:
      - {name: author, target: authors}
    has_many:
      - {name: coauthored, target: books, through: [author, books]}
`))
	require.NoError(t, err)

	built, err := BuildAll(specs, nil)
	require.NoError(t, err)

	a, ok := built["books"].Association("coauthored")
	require.True(t, ok)
	through, ok := a.(*schema.ThroughAssociation)
	require.True(t, ok)
	assert.Equal(t, []string{"author", "books"}, through.ThroughPath())
	assert.True(t, through.ReadOnly())
}

// TestBuildAll_MisappliedOption 测试用错关系种类的选项键被构建器拒绝
func TestBuildAll_MisappliedOption(t *testing.T) {
	cases := []struct {
		name string
		doc  string
	}{
		{
			name: "has_many 不接受 field_type",
			doc: `
schemas:
  - source: books
    has_many:
      - {name: chapters, target: chapters, field_type: uuid}
`,
		},
		{
			name: "经由链不接受处置策略",
			doc: `
schemas:
  - source: books
    belongs_to:
      - {name: author, target: authors}
    has_many:
      - {name: coauthored, target: books, through: [author, books], on_delete: delete_all}
`,
		},
		{
			name: "belongs_to 不接受 join_keys",
			doc: `
schemas:
  - source: books
    belongs_to:
      - {name: author, target: authors, join_keys: [book_id, author_id]}
`,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			specs, err := Parse([]byte(tc.doc))
			require.NoError(t, err)
			_, err = BuildAll(specs, nil)
			require.Error(t, err)
			assert.True(t, errors.IsErrorCode(err, errors.ErrCodeInvalidOption))
		})
	}
}
