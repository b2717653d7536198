package storage

import (
	"fmt"
	"reflect"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Validator is implemented by stored types that carry invariants. A value
// that fails validation on read is handled exactly like unparseable JSON.
type Validator interface {
	Validate() error
}

func encode(value any) ([]byte, error) {
	return json.Marshal(value)
}

func checkTarget(dst any) error {
	rv := reflect.ValueOf(dst)
	if rv.Kind() != reflect.Pointer || rv.IsNil() {
		return fmt.Errorf("storage: load target must be a non-nil pointer, got %T", dst)
	}
	return nil
}

// decode leaves dst untouched unless data decodes and validates cleanly.
func decode(data []byte, dst any) error {
	rv := reflect.ValueOf(dst)
	tmp := reflect.New(rv.Elem().Type())
	if err := json.Unmarshal(data, tmp.Interface()); err != nil {
		return fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	if v, ok := tmp.Interface().(Validator); ok {
		if err := v.Validate(); err != nil {
			return fmt.Errorf("%w: %v", ErrCorrupt, err)
		}
	}
	rv.Elem().Set(tmp.Elem())
	return nil
}
