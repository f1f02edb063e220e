package ai

import (
	"errors"
	"testing"
)

type extraction struct {
	Entities []struct {
		Name string `json:"name"`
		Type string `json:"type"`
	} `json:"entities"`
}

func TestUnmarshalFlexible_Variants(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{name: "plain", input: `{"entities":[{"name":"Alice","type":"Person"}]}`},
		{name: "fenced", input: "Here you go:\n```json\n{\"entities\":[{\"name\":\"Alice\",\"type\":\"Person\"}]}\n```"},
		{name: "unquoted keys", input: `{entities: [{name: 'Alice', type: 'Person'}]}`},
		{name: "trailing comma", input: `{"entities":[{"name":"Alice","type":"Person"},]}`},
		{name: "truncated", input: `{"entities":[{"name":"Alice","type":"Person"`},
		{name: "double encoded", input: `"{\"entities\":[{\"name\":\"Alice\",\"type\":\"Person\"}]}"`},
		{name: "duplicate leading brace", input: "{\n{\"entities\":[{\"name\":\"Alice\",\"type\":\"Person\"}]}"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var got extraction
			if err := UnmarshalFlexible(tc.input, &got); err != nil {
				t.Fatalf("UnmarshalFlexible() error = %v", err)
			}
			if len(got.Entities) != 1 || got.Entities[0].Name != "Alice" || got.Entities[0].Type != "Person" {
				t.Fatalf("UnmarshalFlexible() got = %+v", got)
			}
		})
	}
}

func TestUnmarshalFlexible_InvalidFormat(t *testing.T) {
	for _, input := range []string{"", "   ", "I could not find any entities."} {
		var got extraction
		err := UnmarshalFlexible(input, &got)
		if err == nil {
			t.Fatalf("expected error for %q", input)
		}
		if !errors.Is(err, ErrInvalidFormat) {
			t.Fatalf("expected ErrInvalidFormat for %q, got %v", input, err)
		}
	}
}

func TestApplyOptions(t *testing.T) {
	got := ApplyOptions(
		GenerateOptions{Model: "base", Temperature: 0.3},
		WithModel("extract"),
		WithSystemPrompts("a", "b"),
	)
	if got.Model != "extract" || got.Temperature != 0.3 || len(got.SystemPrompts) != 2 {
		t.Fatalf("unexpected options: %+v", got)
	}
}
