package validator

import (
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
)

// 英文内置规则由 validator 自带翻译覆盖，这里只补自定义规则。
var enMessages = map[string]string{
	TagNotBlank: "{0} must not be blank",
	TagULID:     "{0} must be a valid id",
}

var bnMessages = map[string]string{
	"required":  "{0} আবশ্যক",
	TagNotBlank: "{0} ফাঁকা রাখা যাবে না",
	TagULID:     "{0} একটি বৈধ আইডি নয়",
	"max":       "{0} সর্বোচ্চ {1} হতে পারে",
	"min":       "{0} কমপক্ষে {1} হতে হবে",
	"oneof":     "{0} অবশ্যই [{1}] এর একটি হতে হবে",
}

func (v *Validator) registerTranslations() {
	for tag, msg := range enMessages {
		v.RegisterTranslation(LangEN, tag, msg)
	}
	for tag, msg := range bnMessages {
		v.RegisterTranslation(LangBN, tag, msg)
	}
}

// RegisterTranslation 为某语言的规则注册提示模板，{0} 为字段名，{1} 为规则参数。
func (v *Validator) RegisterTranslation(lang, tag, message string) {
	trans, ok := v.translators[lang]
	if !ok {
		return
	}
	_ = v.validate.RegisterTranslation(tag, trans,
		func(t ut.Translator) error {
			return t.Add(tag, message, true)
		},
		func(t ut.Translator, fe validator.FieldError) string {
			msg, err := t.T(tag, fe.Field(), fe.Param())
			if err != nil {
				return fe.Error()
			}
			return msg
		},
	)
}
