package schema

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tabula/errors"
	"tabula/types"
)

// TestHasMany_DirectDefaults 测试直接关联的默认键推导
func TestHasMany_DirectDefaults(t *testing.T) {
	b := New("books")
	b.MustHasMany("reviews", "reviews")
	desc := b.MustCompile()

	assert.Equal(t, []string{"reviews"}, desc.Associations())

	a, ok := desc.Association("reviews")
	require.True(t, ok)
	direct, ok := a.(*DirectAssociation)
	require.True(t, ok)

	assert.Equal(t, KindHasMany, direct.Kind())
	assert.Equal(t, CardinalityMany, direct.Cardinality())
	assert.Equal(t, "book_id", direct.ForeignKey(), "外键默认 <属主单数名>_id")
	assert.Equal(t, "id", direct.ReferenceKey(), "参考键默认属主主键")
	assert.Equal(t, "reviews", direct.RelatedTarget())
	assert.Same(t, desc, direct.Owner(), "属主在编译时回填")

	// 方向归一化视图：Direct 的外键落在相关侧
	assert.Equal(t, "id", direct.OwnerKey())
	assert.Equal(t, "book_id", direct.RelatedKey())

	assert.Equal(t, OnDeleteNothing, direct.OnDelete())
	assert.Equal(t, OnReplaceRaise, direct.OnReplace())
}

// TestHasOne_Cardinality 测试一对一关联
func TestHasOne_Cardinality(t *testing.T) {
	b := New("books")
	b.MustHasOne("cover", "covers", WithOnDelete(OnDeleteDeleteAll))
	desc := b.MustCompile()

	a, _ := desc.Association("cover")
	assert.Equal(t, KindHasOne, a.Kind())
	assert.Equal(t, CardinalityOne, a.Cardinality())
	assert.Equal(t, OnDeleteDeleteAll, a.(*DirectAssociation).OnDelete())
}

// TestDirect_ReferenceKeyNeedsPrimaryKey 测试无主键时参考键必须显式指定
func TestDirect_ReferenceKeyNeedsPrimaryKey(t *testing.T) {
	b := New("books", WithoutPrimaryKey())
	b.MustField("code", types.String)
	b.MustHasMany("reviews", "reviews")

	_, err := b.Compile()
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeInvalidOption, errors.GetErrorCode(err))

	b2 := New("books", WithoutPrimaryKey())
	b2.MustField("code", types.String)
	b2.MustHasMany("reviews", "reviews", WithReferenceKey("code"))
	desc := b2.MustCompile()

	a, _ := desc.Association("reviews")
	assert.Equal(t, "code", a.(*DirectAssociation).ReferenceKey())
}

// TestDirect_EmbeddedNeedsExplicitForeignKey 测试嵌入式 schema 无来源名可推导外键
func TestDirect_EmbeddedNeedsExplicitForeignKey(t *testing.T) {
	b := NewEmbedded()
	err := b.HasMany("items", "items")
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeInvalidOption, errors.GetErrorCode(err))

	b2 := NewEmbedded()
	require.NoError(t, b2.HasMany("items", "items", WithForeignKey("parent_id")))
}

// TestThrough_Association 测试经由链关联
func TestThrough_Association(t *testing.T) {
	b := New("books")
	b.MustHasMany("reviews", "reviews")
	b.MustHasMany("reviewers", "users", Through("reviews", "author"))
	desc := b.MustCompile()

	a, ok := desc.Association("reviewers")
	require.True(t, ok)
	through, ok := a.(*ThroughAssociation)
	require.True(t, ok)

	assert.True(t, through.ReadOnly())
	assert.Equal(t, []string{"reviews", "author"}, through.ThroughPath())
	assert.Equal(t, "users", through.RelatedTarget())
	assert.Equal(t, KindHasMany, through.Kind())

	// 路径是拷贝
	path := through.ThroughPath()
	path[0] = "hijacked"
	assert.Equal(t, "reviews", through.ThroughPath()[0])
}

// TestThrough_Validation 测试经由链的定义期校验
func TestThrough_Validation(t *testing.T) {
	t.Run("首跳必须已声明", func(t *testing.T) {
		b := New("books")
		b.MustHasMany("reviewers", "users", Through("reviews", "author"))
		_, err := b.Compile()
		require.Error(t, err)
		assert.Equal(t, errors.ErrCodeUnknownAssociation, errors.GetErrorCode(err))
	})

	t.Run("路径至少两跳", func(t *testing.T) {
		b := New("books")
		err := b.HasMany("reviewers", "users", Through("reviews"))
		require.Error(t, err)
		assert.Equal(t, errors.ErrCodeInvalidOption, errors.GetErrorCode(err))
	})

	t.Run("只读关联拒绝键与处置策略选项", func(t *testing.T) {
		b := New("books")
		b.MustHasMany("reviews", "reviews")
		err := b.HasMany("reviewers", "users",
			Through("reviews", "author"), WithForeignKey("user_id"))
		require.Error(t, err)
		assert.Equal(t, errors.ErrCodeInvalidOption, errors.GetErrorCode(err))
	})
}

// TestBelongsTo_DeclaresForeignKeyField 测试属有关联自动声明外键字段
func TestBelongsTo_DeclaresForeignKeyField(t *testing.T) {
	b := New("books")
	b.MustBelongsTo("author", "authors")
	desc := b.MustCompile()

	fi, ok := desc.Field("author_id")
	require.True(t, ok, "外键字段应已声明")
	assert.Equal(t, "id", fi.Type.Name(), "外键类型取 schema 默认键类型")
	assert.False(t, fi.PrimaryKey)

	a, _ := desc.Association("author")
	owning, ok := a.(*OwningAssociation)
	require.True(t, ok)
	assert.Equal(t, KindBelongsTo, owning.Kind())
	assert.Equal(t, CardinalityOne, owning.Cardinality())
	assert.Equal(t, "author_id", owning.ForeignKey())
	assert.Equal(t, "id", owning.ReferenceKey())
	assert.True(t, owning.DefinesField())

	// 方向归一化视图：Owning 的外键落在属主侧
	assert.Equal(t, "author_id", owning.OwnerKey())
	assert.Equal(t, "id", owning.RelatedKey())
}

// TestBelongsTo_Options 测试属有关联的选项
func TestBelongsTo_Options(t *testing.T) {
	t.Run("显式字段类型覆盖默认键类型", func(t *testing.T) {
		b := New("books")
		b.MustBelongsTo("author", "authors", WithFieldType(types.UUID))
		desc := b.MustCompile()

		fi, _ := desc.Field("author_id")
		assert.Equal(t, "uuid", fi.Type.Name())
	})

	t.Run("WithoutField 抑制字段声明", func(t *testing.T) {
		b := New("books")
		b.MustField("author_id", types.UUID)
		b.MustBelongsTo("author", "authors", WithoutField())
		desc := b.MustCompile()

		a, _ := desc.Association("author")
		assert.False(t, a.(*OwningAssociation).DefinesField())
		fi, _ := desc.Field("author_id")
		assert.Equal(t, "uuid", fi.Type.Name(), "已有字段原样保留")
	})

	t.Run("schema 默认键类型传导到外键", func(t *testing.T) {
		b := New("books", WithDefaultKeyType(types.ULID))
		b.MustBelongsTo("author", "authors")
		desc := b.MustCompile()

		fi, _ := desc.Field("author_id")
		assert.Equal(t, "ulid", fi.Type.Name())
	})
}

// TestBelongsTo_ForeignKeyConflicts 测试外键命名冲突
func TestBelongsTo_ForeignKeyConflicts(t *testing.T) {
	// 外键名等于关联名
	b := New("books")
	err := b.BelongsTo("author", "authors", WithForeignKey("author"))
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeForeignKeyConflict, errors.GetErrorCode(err))

	// 外键字段与已声明字段重名
	b2 := New("books")
	b2.MustField("author_id", types.ID)
	err = b2.BelongsTo("author", "authors")
	require.Error(t, err)
	assert.True(t, errors.IsDuplicateField(err))
}

// TestManyToMany 测试多对多关联
func TestManyToMany(t *testing.T) {
	b := New("books")
	b.MustManyToMany("tags", "tags", "book_tags")
	desc := b.MustCompile()

	a, _ := desc.Association("tags")
	m2m, ok := a.(*ManyToManyAssociation)
	require.True(t, ok)

	assert.Equal(t, KindManyToMany, m2m.Kind())
	assert.Equal(t, CardinalityMany, m2m.Cardinality())
	assert.Equal(t, "book_tags", m2m.JoinSource())
	assert.Equal(t, "book_id", m2m.JoinForeignKey(), "连接键默认由双方来源名推导")
	assert.Equal(t, "tag_id", m2m.JoinReferenceKey())

	// 连接源缺失
	b2 := New("books")
	err := b2.ManyToMany("tags", "tags", "  ")
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeInvalidSource, errors.GetErrorCode(err))

	// 显式键对
	b3 := New("books")
	b3.MustManyToMany("tags", "tags", "taggings", WithJoinKeys("subject_id", "label_id"))
	desc3 := b3.MustCompile()
	a3, _ := desc3.Association("tags")
	assert.Equal(t, "subject_id", a3.(*ManyToManyAssociation).JoinForeignKey())
	assert.Equal(t, "label_id", a3.(*ManyToManyAssociation).JoinReferenceKey())
}

// TestAssociation_DuplicateNames 测试关联命名空间与字段共享
func TestAssociation_DuplicateNames(t *testing.T) {
	b := New("books")
	b.MustHasMany("reviews", "reviews")
	err := b.HasOne("reviews", "reviews")
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeDuplicateAssociation, errors.GetErrorCode(err))

	b2 := New("books")
	b2.MustField("author", types.String)
	err = b2.BelongsTo("author", "authors")
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeDuplicateAssociation, errors.GetErrorCode(err))
}

// TestAssociation_InvalidOptionsPerVariant 测试逐变体的非法选项检查
func TestAssociation_InvalidOptionsPerVariant(t *testing.T) {
	b := New("books")
	err := b.HasMany("reviews", "reviews", WithFieldType(types.UUID))
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeInvalidOption, errors.GetErrorCode(err))

	b2 := New("books")
	err = b2.BelongsTo("author", "authors", Through("a", "b"))
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeInvalidOption, errors.GetErrorCode(err))

	b3 := New("books")
	err = b3.ManyToMany("tags", "tags", "book_tags", WithForeignKey("book_id"))
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeInvalidOption, errors.GetErrorCode(err))

	// 目标缺失
	b4 := New("books")
	err = b4.HasMany("reviews", "")
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeInvalidOption, errors.GetErrorCode(err))
}

// TestSingularize 测试默认键名的单数词干推导
func TestSingularize(t *testing.T) {
	cases := map[string]string{
		"books":      "book",
		"categories": "category",
		"boxes":      "box",
		"statuses":   "status",
		"churches":   "church",
		"dishes":     "dish",
		"media":      "media",
		"glass":      "glass",
		"addresses":  "address",
	}
	for plural, singular := range cases {
		assert.Equal(t, singular, singularize(plural), "singularize(%q)", plural)
	}
}
