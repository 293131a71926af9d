package api

import (
	"errors"
	"reflect"
	"sort"
	"strings"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	en_translations "github.com/go-playground/validator/v10/translations/en"

	"github.com/okian/ladder/internal/domain/tier"
)

const tierTag = "tier"

// requestValidator validates decoded request bodies and renders failures in
// English, keyed by JSON field name.
type requestValidator struct {
	validate *validator.Validate
	trans    ut.Translator
}

func newRequestValidator() *requestValidator {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	enLocale := en.New()
	uni := ut.New(enLocale, enLocale)
	trans, _ := uni.GetTranslator("en")
	_ = en_translations.RegisterDefaultTranslations(v, trans)

	_ = v.RegisterValidation(tierTag, func(fl validator.FieldLevel) bool {
		_, err := tier.Parse(fl.Field().String())
		return err == nil
	})
	_ = v.RegisterTranslation(tierTag, trans,
		func(t ut.Translator) error {
			return t.Add(tierTag, "{0} must be one of none, green, bronze, silver, gold", true)
		},
		func(t ut.Translator, fe validator.FieldError) string {
			s, _ := t.T(tierTag, fe.Field())
			return s
		},
	)

	return &requestValidator{validate: v, trans: trans}
}

// Struct validates dst and returns an ErrValidation error whose message
// lists every failing field.
func (rv *requestValidator) Struct(dst any) error {
	err := rv.validate.Struct(dst)
	if err == nil {
		return nil
	}
	var ve validator.ValidationErrors
	if !errors.As(err, &ve) {
		return err
	}
	msgs := make([]string, 0, len(ve))
	for _, fe := range ve {
		msgs = append(msgs, fe.Translate(rv.trans))
	}
	sort.Strings(msgs)
	return &validationError{msg: strings.Join(msgs, "; ")}
}

type validationError struct{ msg string }

func (e *validationError) Error() string { return e.msg }

func (e *validationError) Is(target error) bool { return target == ErrValidation }
