package schema

import (
	"time"

	"tabula/types"
)

// TimestampsOption 配置 Timestamps 声明
type TimestampsOption func(*timestampsOptions)

type timestampsOptions struct {
	usec       *bool
	insertedAt *string
	updatedAt  *string
}

// WithSecondPrecision 时间戳取秒精度（默认微秒）
func WithSecondPrecision() TimestampsOption {
	return func(o *timestampsOptions) {
		v := false
		o.usec = &v
	}
}

// WithMicrosecondPrecision 时间戳取微秒精度，用于覆盖 schema 级秒精度默认
func WithMicrosecondPrecision() TimestampsOption {
	return func(o *timestampsOptions) {
		v := true
		o.usec = &v
	}
}

// WithInsertedAt 重命名插入时刻字段（默认 inserted_at）
func WithInsertedAt(name string) TimestampsOption {
	return func(o *timestampsOptions) { o.insertedAt = &name }
}

// WithUpdatedAt 重命名更新时刻字段（默认 updated_at）
func WithUpdatedAt(name string) TimestampsOption {
	return func(o *timestampsOptions) { o.updatedAt = &name }
}

// WithoutInsertedAt 不声明插入时刻字段
func WithoutInsertedAt() TimestampsOption {
	return func(o *timestampsOptions) {
		empty := ""
		o.insertedAt = &empty
	}
}

// WithoutUpdatedAt 不声明更新时刻字段
func WithoutUpdatedAt() TimestampsOption {
	return func(o *timestampsOptions) {
		empty := ""
		o.updatedAt = &empty
	}
}

// Timestamps 声明插入/更新时刻字段对
//
// 默认声明 inserted_at 与 updated_at 两个 utc_datetime 字段，各自可单独
// 禁用或重命名；updated_at 额外注册为每次更新都重新生成。精度选项的
// 解析顺序：内建默认（微秒）< schema 级 Defaults < 调用点选项。
func (b *Builder) Timestamps(options ...TimestampsOption) error {
	return b.guard(func() error {
		return b.timestamps(options...)
	})
}

// MustTimestamps Timestamps 的链式版本，失败 panic
func (b *Builder) MustTimestamps(options ...TimestampsOption) *Builder {
	if err := b.Timestamps(options...); err != nil {
		panic(err)
	}
	return b
}

func (b *Builder) timestamps(options ...TimestampsOption) error {
	var opts timestampsOptions
	for _, opt := range options {
		if opt != nil {
			opt(&opts)
		}
	}

	// 三级解析：内建默认 < schema 级 Defaults < 调用点
	usec := true
	insertedAt := "inserted_at"
	updatedAt := "updated_at"
	if b.defaults != nil {
		if b.defaults.TimestampsUsec != nil {
			usec = *b.defaults.TimestampsUsec
		}
		if b.defaults.InsertedAtField != "" {
			insertedAt = b.defaults.InsertedAtField
		}
		if b.defaults.UpdatedAtField != "" {
			updatedAt = b.defaults.UpdatedAtField
		}
	}
	if opts.usec != nil {
		usec = *opts.usec
	}
	if opts.insertedAt != nil {
		insertedAt = *opts.insertedAt
	}
	if opts.updatedAt != nil {
		updatedAt = *opts.updatedAt
	}

	gen := nowUsec
	if !usec {
		gen = nowSec
	}

	if insertedAt != "" {
		if err := b.field(insertedAt, types.UTCDatetime, withGenerator(gen, false)); err != nil {
			return err
		}
	}
	if updatedAt != "" {
		if err := b.field(updatedAt, types.UTCDatetime, withGenerator(gen, true)); err != nil {
			return err
		}
	}
	return nil
}

// nowUsec 微秒精度的 UTC 当前时刻
func nowUsec() any {
	return time.Now().UTC().Truncate(time.Microsecond)
}

// nowSec 秒精度的 UTC 当前时刻
func nowSec() any {
	return time.Now().UTC().Truncate(time.Second)
}

// ApplyInsert 在插入取值集上执行自动生成清单
//
// 只填充尚未出现的键：调用方显式给出的值（包括显式给出的主键）优先。
// values 为 nil 时新建，返回填充后的映射供链式使用。
func ApplyInsert(d *Descriptor, values map[string]any) map[string]any {
	if values == nil {
		values = make(map[string]any)
	}
	for _, ag := range d.autogenInsert {
		if _, present := values[ag.FieldName]; present {
			continue
		}
		values[ag.FieldName] = ag.Generate()
	}
	return values
}

// ApplyUpdate 在更新取值集上执行每次更新都生成的清单
//
// 与插入不同，更新时刻字段无条件重新生成，已有值会被覆盖。
func ApplyUpdate(d *Descriptor, values map[string]any) map[string]any {
	if values == nil {
		values = make(map[string]any)
	}
	for _, ag := range d.autogenUpdate {
		values[ag.FieldName] = ag.Generate()
	}
	return values
}
