package qmutil

import (
	"encoding/json"
	"fmt"
	"reflect"

	"github.com/spf13/cast"
)

// ToJson marshals a value to its compact JSON wire representation.
func ToJson[T any](d T) (string, error) {
	b, err := json.Marshal(d)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// FromJson unmarshals a JSON wire representation into a new T.
func FromJson[T any](b string) (*T, error) {
	var v T
	if err := json.Unmarshal([]byte(b), &v); err != nil {
		return nil, err
	}
	return &v, nil
}

// ToStr coerces loosely-typed values (as arrive from wire deserialization
// into `any`) into their string form, falling back to JSON for
// maps/slices and to fmt.Sprintf as a last resort.
func ToStr(value interface{}) string {
	if value == nil {
		return ""
	}
	k := reflect.TypeOf(value).Kind()
	if k == reflect.Map || k == reflect.Slice {
		r, _ := ToJson(value)
		return r
	}
	v, err := cast.ToStringE(value)
	if err != nil {
		return fmt.Sprintf("%v", value)
	}
	return v
}

func ToInt64(value interface{}) int64 {
	v, err := cast.ToInt64E(value)
	if err != nil {
		return 0
	}
	return v
}

func ToFloat64(value interface{}) float64 {
	v, err := cast.ToFloat64E(value)
	if err != nil {
		return 0
	}
	return v
}

func ToBool(value interface{}) bool {
	v, err := cast.ToBoolE(value)
	if err != nil {
		return false
	}
	return v
}

// Ptr returns a pointer to a copy of v; handy for optional struct fields.
func Ptr[T any](v T) *T {
	return &v
}
