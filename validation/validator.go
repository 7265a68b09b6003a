// Package validation 提供定义期的名称与选项校验
//
// 校验只发生在 schema 定义期（编译前），失败一律致命；
// 这里不做任何行级/运行期校验，后者属于类型系统的解码职责。
package validation

import (
	"fmt"
	"regexp"
	"strings"

	"tabula/errors"
)

var (
	// 字段/关联名：小写字母开头，后接小写字母、数字、下划线
	identRegex = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)
	// 物理来源名（表名）：与字段名同形，允许更长
	sourceRegex = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)
	// 前缀（命名空间）：允许点分段，如 "tenant_a" 或 "analytics.raw"
	prefixRegex = regexp.MustCompile(`^[a-z][a-z0-9_]*(\.[a-z][a-z0-9_]*)*$`)
)

// IValidator 定义通用值校验器接口
//
// 自定义类型可以选择实现本接口；实现后行加载器会在解码成功的值上追加一次校验。
type IValidator interface {
	Validate(value any) error
}

// NoopValidator 默认校验器，实现为空操作
type NoopValidator struct{}

// Validate 实现 IValidator 接口
func (NoopValidator) Validate(value any) error {
	return nil
}

// ValidateFieldName 校验字段名是否为合法标识符
func ValidateFieldName(name string) error {
	if strings.TrimSpace(name) == "" {
		return errors.NewError(errors.ErrCodeInvalidName, "字段名不能为空")
	}
	if !identRegex.MatchString(name) {
		return errors.NewError(errors.ErrCodeInvalidName,
			fmt.Sprintf("字段名 %q 不是合法标识符（需要 [a-z][a-z0-9_]*）", name))
	}
	return nil
}

// ValidateAssociationName 校验关联名是否为合法标识符
func ValidateAssociationName(name string) error {
	if strings.TrimSpace(name) == "" {
		return errors.NewError(errors.ErrCodeInvalidName, "关联名不能为空")
	}
	if !identRegex.MatchString(name) {
		return errors.NewError(errors.ErrCodeInvalidName,
			fmt.Sprintf("关联名 %q 不是合法标识符（需要 [a-z][a-z0-9_]*）", name))
	}
	return nil
}

// ValidateSourceName 校验物理来源名（表名）
func ValidateSourceName(source string) error {
	if strings.TrimSpace(source) == "" {
		return errors.NewError(errors.ErrCodeInvalidSource, "来源名不能为空")
	}
	if !sourceRegex.MatchString(source) {
		return errors.NewError(errors.ErrCodeInvalidSource,
			fmt.Sprintf("来源名 %q 不是合法表名（需要 [a-z][a-z0-9_]*）", source))
	}
	return nil
}

// ValidatePrefix 校验前缀（命名空间），空前缀合法
func ValidatePrefix(prefix string) error {
	if prefix == "" {
		return nil
	}
	if !prefixRegex.MatchString(prefix) {
		return errors.NewError(errors.ErrCodeInvalidSource,
			fmt.Sprintf("前缀 %q 不合法（允许点分小写段，如 analytics.raw）", prefix))
	}
	return nil
}
