package validator

import (
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/oklog/ulid/v2"
)

// 自定义校验标签
const (
	// TagNotBlank 去掉首尾空白后非空
	TagNotBlank = "notblank"
	// TagULID 合法的 ULID（记录主键格式）
	TagULID = "ulid"
)

func (v *Validator) registerRules() {
	_ = v.validate.RegisterValidation(TagNotBlank, validateNotBlank)
	_ = v.validate.RegisterValidation(TagULID, validateULID)
}

func validateNotBlank(fl validator.FieldLevel) bool {
	return strings.TrimSpace(fl.Field().String()) != ""
}

// 空值交给 required 处理。
func validateULID(fl validator.FieldLevel) bool {
	s := fl.Field().String()
	if s == "" {
		return true
	}
	_, err := ulid.ParseStrict(s)
	return err == nil
}
