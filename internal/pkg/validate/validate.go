package validate

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

var (
	once     sync.Once
	instance *validator.Validate
)

func Required(value string) bool {
	return strings.TrimSpace(value) != ""
}

// Struct runs the `validate` tags of v and flattens the first failures into a
// single error naming the offending fields.
func Struct(v any) error {
	once.Do(func() {
		instance = validator.New(validator.WithRequiredStructEnabled())
	})

	err := instance.Struct(v)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return err
	}

	parts := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		parts = append(parts, fmt.Sprintf("%s failed %s", fe.Field(), fe.Tag()))
	}
	return fmt.Errorf("invalid %s", strings.Join(parts, ", "))
}
