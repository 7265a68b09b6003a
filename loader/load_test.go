package loader

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tabula/errors"
	"tabula/schema"
	"tabula/sources"
	"tabula/types"
)

func articleDescriptor(t testing.TB) *schema.Descriptor {
	t.Helper()
	b := schema.New("articles")
	b.MustField("title", types.String).
		MustField("views", types.Integer).
		MustField("rating", types.Float).
		MustField("published", types.Boolean).
		MustField("published_at", types.UTCDatetime)
	return b.MustCompile()
}

// TestLoadOrdered 测试按装载顺序的定位值解码
func TestLoadOrdered(t *testing.T) {
	desc := articleDescriptor(t)
	require.Equal(t,
		[]string{"id", "title", "views", "rating", "published", "published_at"},
		desc.LoadOrder())

	t.Run("整行解码", func(t *testing.T) {
		rec, err := LoadOrdered(desc, []any{
			int64(7), "go in practice", int64(42), 4.5, int64(1), "2024-05-01T10:00:00Z",
		})
		require.NoError(t, err)

		id, ok := rec.GetInt("id")
		require.True(t, ok)
		assert.Equal(t, int64(7), id)

		title, ok := rec.GetString("title")
		require.True(t, ok)
		assert.Equal(t, "go in practice", title)

		published, ok := rec.GetBool("published")
		require.True(t, ok)
		assert.True(t, published)

		at, ok := rec.GetTime("published_at")
		require.True(t, ok)
		assert.Equal(t, time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC), at)

		assert.Same(t, desc, rec.Descriptor())
		assert.Equal(t, "articles", rec.Source())
	})

	t.Run("行宽不符", func(t *testing.T) {
		_, err := LoadOrdered(desc, []any{int64(7), "short row"})
		require.Error(t, err)
		assert.True(t, errors.IsErrorCode(err, errors.ErrCodeRowShape))
	})

	t.Run("NULL 列保持为 nil 且可区分于缺失", func(t *testing.T) {
		rec, err := LoadOrdered(desc, []any{int64(7), nil, int64(0), 0.0, int64(0), nil})
		require.NoError(t, err)

		v, present := rec.Get("title")
		assert.True(t, present)
		assert.Nil(t, v)

		_, ok := rec.GetString("title")
		assert.False(t, ok)
	})

	t.Run("解码失败只作用于当前行", func(t *testing.T) {
		_, err := LoadOrdered(desc, []any{int64(7), "t", "not-a-number", 0.0, int64(0), nil})
		require.Error(t, err)
		assert.True(t, errors.IsDecodeError(err))

		// 同一描述符继续装载下一行
		_, err = LoadOrdered(desc, []any{int64(8), "t", int64(1), 0.0, int64(0), nil})
		assert.NoError(t, err)
	})

	t.Run("nil 描述符", func(t *testing.T) {
		_, err := LoadOrdered(nil, nil)
		require.Error(t, err)
		assert.True(t, errors.IsErrorCode(err, errors.ErrCodeInvalidInput))
	})
}

// TestLoadMap 测试按列名的映射值解码
func TestLoadMap(t *testing.T) {
	desc := articleDescriptor(t)

	t.Run("部分投影", func(t *testing.T) {
		rec, err := LoadMap(desc, map[string]any{
			"id":    int64(3),
			"title": "partial",
		})
		require.NoError(t, err)

		_, present := rec.Get("views")
		assert.False(t, present)

		title, ok := rec.GetString("title")
		require.True(t, ok)
		assert.Equal(t, "partial", title)
	})

	t.Run("未声明的列被丢弃", func(t *testing.T) {
		rec, err := LoadMap(desc, map[string]any{
			"id":      int64(3),
			"dropped": "whatever",
		})
		require.NoError(t, err)
		_, present := rec.Get("dropped")
		assert.False(t, present)
	})

	t.Run("虚拟字段只在投影携带时出现", func(t *testing.T) {
		b := schema.New("ranked")
		b.MustField("score", types.Float, schema.Virtual(), schema.Alias("rank * 0.1"))
		ranked := b.MustCompile()

		rec, err := LoadMap(ranked, map[string]any{"id": int64(1)})
		require.NoError(t, err)
		_, present := rec.Get("score")
		assert.False(t, present)

		rec, err = LoadMap(ranked, map[string]any{"id": int64(1), "score": 0.7})
		require.NoError(t, err)
		score, ok := rec.GetFloat("score")
		require.True(t, ok)
		assert.Equal(t, 0.7, score)
	})
}

// TestLoad_EmbedNormalization 测试嵌入文档的装载规整
func TestLoad_EmbedNormalization(t *testing.T) {
	b := schema.New("articles")
	b.MustField("title", types.String).
		MustEmbedsManyInline("notes", func(nested *schema.Builder) {
			nested.MustField("rating", types.Integer).
				MustField("comment", types.String)
		}).
		MustEmbedsOneInline("cover", func(nested *schema.Builder) {
			nested.MustField("url", types.String)
		})
	desc := b.MustCompile()

	t.Run("文档提升为记录", func(t *testing.T) {
		rec, err := LoadOrdered(desc, []any{
			int64(1), "embedded",
			`[{"rating": 5, "comment": "good"}, {"rating": 2, "comment": "meh"}]`,
			`{"url": "covers/1.png"}`,
		})
		require.NoError(t, err)

		notes, ok := rec.GetRecords("notes")
		require.True(t, ok)
		require.Len(t, notes, 2)
		rating, ok := notes[0].GetInt("rating")
		require.True(t, ok)
		assert.Equal(t, int64(5), rating)

		cover, ok := rec.GetRecord("cover")
		require.True(t, ok)
		url, ok := cover.GetString("url")
		require.True(t, ok)
		assert.Equal(t, "covers/1.png", url)
	})

	t.Run("NULL 多基数规整为空序列", func(t *testing.T) {
		rec, err := LoadOrdered(desc, []any{int64(1), "empty", nil, nil})
		require.NoError(t, err)

		notes, ok := rec.GetRecords("notes")
		require.True(t, ok)
		assert.Empty(t, notes)

		// 单基数 NULL 保持为 nil
		v, present := rec.Get("cover")
		assert.True(t, present)
		assert.Nil(t, v)
		_, ok = rec.GetRecord("cover")
		assert.False(t, ok)
	})

	t.Run("缺失多基数同样规整，单基数保持缺失", func(t *testing.T) {
		rec, err := LoadMap(desc, map[string]any{"id": int64(1)})
		require.NoError(t, err)

		notes, ok := rec.GetRecords("notes")
		require.True(t, ok)
		assert.Empty(t, notes)

		_, present := rec.Get("cover")
		assert.False(t, present)
	})
}

// starsType 带校验能力的自定义类型：0 到 5 的整数评级
type starsType struct{}

func (starsType) Name() string               { return "stars" }
func (starsType) Primitive() types.Primitive { return types.PrimitiveInteger }

func (starsType) Decode(raw any) (any, error) {
	return types.Integer.Decode(raw)
}

func (starsType) Encode(value any) (any, error) {
	return types.Integer.Encode(value)
}

func (starsType) Validate(value any) error {
	n, ok := value.(int64)
	if !ok || n < 0 || n > 5 {
		return errors.NewError(errors.ErrCodeInvalidInput, "评级必须在 0 到 5 之间")
	}
	return nil
}

// TestLoad_TypeValidation 测试解码成功后类型校验能力的追加校验
func TestLoad_TypeValidation(t *testing.T) {
	b := schema.New("reviews")
	b.MustField("stars", starsType{})
	desc := b.MustCompile()

	rec, err := LoadMap(desc, map[string]any{"id": int64(1), "stars": int64(3)})
	require.NoError(t, err)
	stars, ok := rec.GetInt("stars")
	require.True(t, ok)
	assert.Equal(t, int64(3), stars)

	// 能解码但校验不过的值按行级解码失败上报
	_, err = LoadMap(desc, map[string]any{"id": int64(1), "stars": int64(9)})
	require.Error(t, err)
	assert.True(t, errors.IsDecodeError(err))

	// NULL 不送校验，缺失与 NULL 的区分不受影响
	rec, err = LoadMap(desc, map[string]any{"id": int64(1), "stars": nil})
	require.NoError(t, err)
	v, present := rec.Get("stars")
	assert.True(t, present)
	assert.Nil(t, v)
}

func polyDescriptor(t testing.TB, source, aliasExpr string) *schema.Descriptor {
	t.Helper()
	b := schema.New(source)
	b.MustField("title", types.String).
		MustDiscriminator(aliasExpr)
	return b.MustCompile()
}

// TestLoadPolymorphic 测试按判别值分发后的装载
func TestLoadPolymorphic(t *testing.T) {
	sources.Reset()
	t.Cleanup(sources.Reset)

	books := polyDescriptor(t, "books", "'books'")
	videos := polyDescriptor(t, "videos", "'videos'")
	sources.MustRegister(books, videos)

	queried := polyDescriptor(t, "media", "'media'")
	require.Equal(t, []string{"id", "title", schema.DiscriminatorField}, queried.LoadOrder())

	t.Run("行分发到具体描述符", func(t *testing.T) {
		rec, err := LoadPolymorphic(queried, []any{int64(7), "dune", "books"})
		require.NoError(t, err)
		assert.Same(t, books, rec.Descriptor())

		title, ok := rec.GetString("title")
		require.True(t, ok)
		assert.Equal(t, "dune", title)

		disc, ok := rec.GetString(schema.DiscriminatorField)
		require.True(t, ok)
		assert.Equal(t, "books", disc)
	})

	t.Run("判别值未注册即失败", func(t *testing.T) {
		_, err := LoadPolymorphic(queried, []any{int64(7), "dune", "albums"})
		require.Error(t, err)
		assert.True(t, errors.IsDispatchMiss(err))
	})

	t.Run("判别列为 NULL", func(t *testing.T) {
		_, err := LoadPolymorphic(queried, []any{int64(7), "dune", nil})
		require.Error(t, err)
		assert.True(t, errors.IsErrorCode(err, errors.ErrCodeRowShape))
	})

	t.Run("无判别字段的描述符", func(t *testing.T) {
		plain := articleDescriptor(t)
		_, err := LoadPolymorphic(plain, []any{int64(1)})
		require.Error(t, err)
		assert.True(t, errors.IsErrorCode(err, errors.ErrCodeNoDiscriminator))
	})
}

// TestRecord_Values 测试值表拷贝的独立性
func TestRecord_Values(t *testing.T) {
	desc := articleDescriptor(t)
	rec, err := LoadMap(desc, map[string]any{"id": int64(1), "title": "copy"})
	require.NoError(t, err)

	values := rec.Values()
	assert.Equal(t, 2, rec.Len())
	values["title"] = "mutated"

	title, ok := rec.GetString("title")
	require.True(t, ok)
	assert.Equal(t, "copy", title)
}

// BenchmarkLoadOrdered 整行装载基准
func BenchmarkLoadOrdered(b *testing.B) {
	desc := articleDescriptor(b)
	row := []any{int64(7), "go in practice", int64(42), 4.5, int64(1), "2024-05-01T10:00:00Z"}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := LoadOrdered(desc, row); err != nil {
			b.Fatal(err)
		}
	}
}
