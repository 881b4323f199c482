package validate

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/go-notify-nosql/internal/domain"
)

// v is the package-level singleton validator. Field names are reported by
// their json tag so messages match the request bodies callers sent.
var v = newValidator()

func newValidator() *validator.Validate {
	val := validator.New()
	val.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "" || name == "-" {
			return f.Name
		}
		return name
	})
	_ = val.RegisterValidation("category", func(fl validator.FieldLevel) bool {
		return domain.Category(fl.Field().String()).Valid()
	})
	_ = val.RegisterValidation("channel", func(fl validator.FieldLevel) bool {
		return domain.Channel(fl.Field().String()).Valid()
	})
	_ = val.RegisterValidation("nohash", func(fl validator.FieldLevel) bool {
		return !strings.Contains(fl.Field().String(), domain.EventIDSeparator)
	})
	return val
}

// Struct validates the given struct using its validate tags.
// Failures wrap domain.ErrValidation.
func Struct(s interface{}) error {
	if err := v.Struct(s); err != nil {
		ve, ok := err.(validator.ValidationErrors)
		if !ok {
			return err
		}
		var msgs []string
		for _, fe := range ve {
			msgs = append(msgs, fmt.Sprintf("field '%s' failed '%s'", fe.Field(), fe.Tag()))
		}
		return fmt.Errorf("%s: %w", strings.Join(msgs, "; "), domain.ErrValidation)
	}
	return nil
}
