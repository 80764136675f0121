package middleware

import (
	"reflect"
	"strings"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"

	"github.com/sellerpulse/backend/internal/domain/source"
)

// SetupValidator registers custom binding validations and makes validation
// errors report JSON field names instead of Go struct field names.
func SetupValidator() {
	v, ok := binding.Validator.Engine().(*validator.Validate)
	if !ok {
		return
	}

	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	_ = v.RegisterValidation("eventtype", func(fl validator.FieldLevel) bool {
		return source.EventType(fl.Field().String()).IsValid()
	})
}
