package square

import (
	"net/url"
	"reflect"

	"github.com/spf13/cast"
)

// encodeQuery flattens params into query values. Slices and arrays of any
// element type repeat the key, scalars are stringified, nested objects and
// nil become empty strings.
func encodeQuery(params map[string]any) url.Values {
	values := make(url.Values, len(params))
	for key, raw := range params {
		if items, ok := listItems(raw); ok {
			for _, item := range items {
				values.Add(key, primitiveString(item))
			}
			continue
		}
		values.Add(key, primitiveString(raw))
	}
	return values
}

// listItems returns the elements of a slice or array. []byte is a scalar.
func listItems(v any) ([]any, bool) {
	if v == nil {
		return nil, false
	}
	if _, ok := v.([]byte); ok {
		return nil, false
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, false
	}
	items := make([]any, rv.Len())
	for i := range items {
		items[i] = rv.Index(i).Interface()
	}
	return items, true
}

func primitiveString(v any) string {
	if v == nil {
		return ""
	}
	if b, ok := v.([]byte); ok {
		return string(b)
	}
	switch reflect.ValueOf(v).Kind() {
	case reflect.Slice, reflect.Array, reflect.Map:
		return ""
	}
	s, err := cast.ToStringE(v)
	if err != nil {
		return ""
	}
	return s
}
