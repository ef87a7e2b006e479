package sanitize

import (
	"reflect"
	"strings"
	"testing"
)

func TestValue_Scalars(t *testing.T) {
	tests := []struct {
		name string
		in   any
		want any
	}{
		{"nil", nil, nil},
		{"bool", true, true},
		{"int", 42, 42},
		{"float", 3.14, 3.14},
		{"short string", "hello", "hello"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Value(tt.in, 3, 1000)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Value(%v) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestValue_StringTruncation(t *testing.T) {
	long := strings.Repeat("a", 1500)

	got, ok := Value(long, 3, 1000).(string)
	if !ok {
		t.Fatal("sanitized string is not a string")
	}
	if !strings.HasPrefix(got, strings.Repeat("a", 1000)) {
		t.Error("truncated string does not keep the first maxStringLen characters")
	}
	if !strings.HasSuffix(got, "...") {
		t.Errorf("truncated string %q missing truncation marker", got[len(got)-10:])
	}
	if len(got) != 1003 {
		t.Errorf("truncated string length = %d, want 1003", len(got))
	}

	exact := strings.Repeat("b", 1000)
	if got := Value(exact, 3, 1000); got != exact {
		t.Error("string at exactly maxStringLen should pass through unchanged")
	}
}

func TestValue_DepthBound(t *testing.T) {
	nested := map[string]any{
		"l1": map[string]any{
			"l2": map[string]any{
				"l3": map[string]any{
					"l4": "deep",
				},
			},
		},
	}

	got := Value(nested, 3, 1000).(map[string]any)
	l1 := got["l1"].(map[string]any)
	l2 := l1["l2"].(map[string]any)
	l3, ok := l2["l3"].(map[string]any)
	if !ok {
		t.Fatal("value at max depth should still be a map")
	}
	if len(l3) != 0 {
		t.Errorf("map at max depth = %v, want empty map", l3)
	}
}

type order struct {
	ID     int
	Total  float64
	hidden string
}

func TestValue_Struct(t *testing.T) {
	got, ok := Value(order{ID: 7, Total: 9.5, hidden: "x"}, 3, 1000).(map[string]any)
	if !ok {
		t.Fatal("sanitized struct is not a map")
	}
	if got["class"] != "sanitize.order" {
		t.Errorf("class = %v, want sanitize.order", got["class"])
	}
	props := got["properties"].(map[string]any)
	if props["ID"] != 7 {
		t.Errorf("properties.ID = %v, want 7", props["ID"])
	}
	if _, found := props["hidden"]; found {
		t.Error("unexported field should not be captured")
	}
}

func TestValue_StructAtMaxDepth(t *testing.T) {
	wrapped := map[string]any{"o": order{ID: 1}}

	got := Value(wrapped, 1, 1000).(map[string]any)
	o := got["o"].(map[string]any)
	if o["class"] != "sanitize.order" {
		t.Errorf("class = %v, want sanitize.order", o["class"])
	}
	if _, found := o["properties"]; found {
		t.Error("struct at max depth should drop properties")
	}
}

func TestValue_Resources(t *testing.T) {
	ch := make(chan int)
	fn := func() {}

	if got := Value(ch, 3, 1000); got != "[resource]" {
		t.Errorf("Value(chan) = %v, want [resource]", got)
	}
	if got := Value(fn, 3, 1000); got != "[resource]" {
		t.Errorf("Value(func) = %v, want [resource]", got)
	}
}

func TestValue_Unserializable(t *testing.T) {
	if got := Value(complex(1, 2), 3, 1000); got != "[complex128]" {
		t.Errorf("Value(complex) = %v, want [complex128]", got)
	}
}

func TestValue_SliceAndPointer(t *testing.T) {
	n := 5
	got := Value([]any{"a", &n, nil}, 3, 1000).([]any)
	if got[0] != "a" {
		t.Errorf("slice[0] = %v, want a", got[0])
	}
	if got[1] != 5 {
		t.Errorf("slice[1] = %v, want 5 (pointer deref)", got[1])
	}
	if got[2] != nil {
		t.Errorf("slice[2] = %v, want nil", got[2])
	}
}

func TestMap(t *testing.T) {
	got := Map(map[string]any{"user_id": 42, "name": "ada"}, 3, 1000)
	if got["user_id"] != 42 {
		t.Errorf("user_id = %v, want 42", got["user_id"])
	}
	if got["name"] != "ada" {
		t.Errorf("name = %v, want ada", got["name"])
	}
}
