package util

import (
	"reflect"
	"testing"
)

func TestSanitizePostgresText(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{name: "chunk text", input: "Alice works at Acme Corp.", want: "Alice works at Acme Corp."},
		{name: "pdf null bytes", input: "Ac\x00me\x00", want: "Acme"},
		{name: "broken encoding", input: string([]byte{'B', 0xff, 'e', 'r', 'l', 'i', 'n'}), want: "Berlin"},
		{name: "empty", input: "", want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := SanitizePostgresText(tt.input); got != tt.want {
				t.Fatalf("SanitizePostgresText(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestSanitizeProperties(t *testing.T) {
	got := SanitizeProperties(map[string]string{
		"role":   "engi\x00neer",
		"\x00":   "dropped",
		"office": "Berlin",
	})
	want := map[string]string{"role": "engineer", "office": "Berlin"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("SanitizeProperties() = %v, want %v", got, want)
	}

	if props := SanitizeProperties(nil); props == nil || len(props) != 0 {
		t.Fatalf("nil properties should become an empty map, got %#v", props)
	}
}
