// Package sanitize converts arbitrary in-process values into depth- and
// length-bounded, JSON-safe representations. Sanitization is lossy by
// design and never fails: values that cannot be represented degrade to
// placeholder strings instead of propagating errors.
package sanitize

import (
	"encoding/json"
	"fmt"
	"reflect"
)

const truncationMarker = "..."

// Value sanitizes a single value. Strings longer than maxStringLen are
// truncated with a trailing marker; composite values recurse up to
// maxDepth, beyond which structure is silently dropped.
func Value(v any, maxDepth, maxStringLen int) any {
	return safeValue(v, 0, maxDepth, maxStringLen)
}

// Map sanitizes every entry of a top-level variable map.
func Map(vars map[string]any, maxDepth, maxStringLen int) map[string]any {
	out := make(map[string]any, len(vars))
	for name, v := range vars {
		out[name] = safeValue(v, 0, maxDepth, maxStringLen)
	}
	return out
}

// safeValue guards the reflective walk: a panic while inspecting a value
// renders it as its type name rather than aborting the capture.
func safeValue(v any, depth, maxDepth, maxStringLen int) (out any) {
	defer func() {
		if r := recover(); r != nil {
			out = typePlaceholder(v)
		}
	}()
	return value(v, depth, maxDepth, maxStringLen)
}

func value(v any, depth, maxDepth, maxStringLen int) any {
	if v == nil {
		return nil
	}

	rv := reflect.ValueOf(v)
	rt := rv.Type()

	switch rv.Kind() {
	case reflect.String:
		return truncate(rv.String(), maxStringLen)

	case reflect.Bool,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return v

	case reflect.Ptr, reflect.Interface:
		if rv.IsNil() {
			return nil
		}
		return safeValue(rv.Elem().Interface(), depth, maxDepth, maxStringLen)

	case reflect.Map:
		if depth >= maxDepth {
			return map[string]any{}
		}
		out := make(map[string]any, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			key := fmt.Sprintf("%v", iter.Key().Interface())
			out[key] = safeValue(iter.Value().Interface(), depth+1, maxDepth, maxStringLen)
		}
		return out

	case reflect.Slice, reflect.Array:
		if depth >= maxDepth {
			return []any{}
		}
		out := make([]any, rv.Len())
		for i := 0; i < rv.Len(); i++ {
			out[i] = safeValue(rv.Index(i).Interface(), depth+1, maxDepth, maxStringLen)
		}
		return out

	case reflect.Struct:
		if depth >= maxDepth {
			return map[string]any{"class": rt.String()}
		}
		props := make(map[string]any)
		for i := 0; i < rt.NumField(); i++ {
			field := rt.Field(i)
			if !field.IsExported() {
				continue
			}
			props[field.Name] = safeValue(rv.Field(i).Interface(), depth+1, maxDepth, maxStringLen)
		}
		return map[string]any{"class": rt.String(), "properties": props}

	case reflect.Chan, reflect.Func, reflect.UnsafePointer:
		return "[resource]"

	default:
		if serializable(v) {
			return v
		}
		return typePlaceholder(v)
	}
}

func truncate(s string, maxLen int) string {
	if maxLen > 0 && len(s) > maxLen {
		return s[:maxLen] + truncationMarker
	}
	return s
}

func serializable(v any) bool {
	_, err := json.Marshal(v)
	return err == nil
}

func typePlaceholder(v any) string {
	t := reflect.TypeOf(v)
	if t == nil {
		return "[nil]"
	}
	return "[" + t.String() + "]"
}
