// Package validator 为请求绑定提供基于 go-playground/validator 的校验，
// 并把校验错误翻译成英文或孟加拉文。
package validator

import (
	"errors"
	"reflect"
	"strings"
	"sync"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/locales/bn"
	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	entranslations "github.com/go-playground/validator/v10/translations/en"
)

const (
	LangEN = "en"
	LangBN = "bn"
)

// Validator 实现 gin 的 binding.StructValidator。
type Validator struct {
	validate    *validator.Validate
	translators map[string]ut.Translator
}

var (
	global     *Validator
	globalOnce sync.Once
)

// Global 返回进程内共享的实例。
func Global() *Validator {
	globalOnce.Do(func() { global = New() })
	return global
}

// Install 把 Global() 设为 gin 的请求绑定校验器。
func Install() {
	binding.Validator = Global()
}

// New 创建校验器：字段名取 json 标签，注册自定义规则与 en/bn 翻译。
func New() *Validator {
	v := &Validator{validate: validator.New(validator.WithRequiredStructEnabled())}
	v.validate.SetTagName("binding")
	v.validate.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		if name == "" {
			return f.Name
		}
		return name
	})

	enLocale := en.New()
	uni := ut.New(enLocale, enLocale, bn.New())
	v.translators = make(map[string]ut.Translator, 2)
	for _, lang := range []string{LangEN, LangBN} {
		trans, _ := uni.GetTranslator(lang)
		v.translators[lang] = trans
	}
	_ = entranslations.RegisterDefaultTranslations(v.validate, v.translators[LangEN])

	v.registerRules()
	v.registerTranslations()
	return v
}

// ValidateStruct 校验结构体、结构体指针或其切片，其它类型直接通过。
func (v *Validator) ValidateStruct(obj any) error {
	if obj == nil {
		return nil
	}
	rv := reflect.ValueOf(obj)
	switch rv.Kind() {
	case reflect.Ptr:
		if rv.IsNil() {
			return nil
		}
		return v.ValidateStruct(rv.Elem().Interface())
	case reflect.Struct:
		return v.validate.Struct(obj)
	case reflect.Slice, reflect.Array:
		for i := 0; i < rv.Len(); i++ {
			if err := v.ValidateStruct(rv.Index(i).Interface()); err != nil {
				return err
			}
		}
	}
	return nil
}

// Engine 返回底层的 *validator.Validate。
func (v *Validator) Engine() any {
	return v.validate
}

// Translator 按 Accept-Language 选择翻译器，bn 开头用孟加拉文，其余用英文。
func (v *Validator) Translator(lang string) ut.Translator {
	if strings.HasPrefix(strings.ToLower(strings.TrimSpace(lang)), LangBN) {
		return v.translators[LangBN]
	}
	return v.translators[LangEN]
}

// Translate 把校验错误翻译成一句提示，多个字段以 "; " 连接。
// 非校验错误（如 JSON 语法错误）原样返回 err.Error()。
func (v *Validator) Translate(err error, lang string) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	trans := v.Translator(lang)
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fe.Translate(trans))
	}
	return strings.Join(msgs, "; ")
}
