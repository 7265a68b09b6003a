package errors

import (
	"context"
	"fmt"
	"runtime"

	"tabula/logging"
)

// Wrap 包装错误，添加错误码和上下文信息
// 建议：在包边界使用，为底层错误补充领域上下文
func Wrap(ctx context.Context, err error, code ErrorCode, msg string) error {
	if err == nil {
		return nil
	}

	// 获取调用位置（简化版，不追踪完整调用栈）
	_, file, line, _ := runtime.Caller(1)

	// 创建增强错误
	wrapped := WrapError(err, code, msg)

	// 记录错误日志（避免重复记录，使用Debug级别）
	logging.GetLogger().Debug(ctx, fmt.Sprintf("错误包装: %s (位置: %s:%d)", msg, file, line))

	return wrapped
}

// WrapWithLog 包装错误并记录警告日志
// 建议：用于需要立即记录的错误场景
func WrapWithLog(ctx context.Context, err error, code ErrorCode, msg string, fields ...logging.Field) error {
	if err == nil {
		return nil
	}

	// 获取调用位置
	_, file, line, _ := runtime.Caller(1)

	// 创建增强错误
	wrapped := WrapError(err, code, msg)

	// 记录警告日志
	allFields := append([]logging.Field{
		logging.Error(err),
		logging.String("error_code", string(code)),
		logging.String("location", fmt.Sprintf("%s:%d", file, line)),
	}, fields...)

	logging.GetLogger().Warn(ctx, msg, allFields...)

	return wrapped
}

// New 创建新错误（带调用位置）
func New(code ErrorCode, msg string) error {
	_, file, line, _ := runtime.Caller(1)
	enhancedMsg := fmt.Sprintf("%s (位置: %s:%d)", msg, file, line)
	return NewError(code, enhancedMsg)
}

// NewSchemaError 创建定义期错误，附带所属 schema 名称
//
// 定义期错误在编译中止前由构建器收集，schema 名称便于一次定位到出错的定义。
func NewSchemaError(code ErrorCode, schemaName string, msg string) error {
	return NewError(code, msg).WithContext("schema", schemaName)
}

// NewFieldError 创建字段级定义期错误，附带 schema 与字段名称
func NewFieldError(code ErrorCode, schemaName, fieldName, msg string) error {
	return NewError(code, msg).
		WithContext("schema", schemaName).
		WithContext("field", fieldName)
}

// WrapDecodeError 包装行加载期的解码失败，附带来源与字段名
//
// 解码失败只作用于当前行/字段，调用方不应据此重试或使描述符失效。
func WrapDecodeError(err error, sourceName, fieldName string) error {
	if err == nil {
		return nil
	}
	return WrapError(err, ErrCodeDecodeFailed,
		fmt.Sprintf("字段 %s 解码失败", fieldName)).
		WithContext("source", sourceName).
		WithContext("field", fieldName)
}
