package schema

import (
	"strings"
)

func words(s string) []string {
	s = strings.ToLower(s)
	s = strings.NewReplacer("_", " ", "-", " ").Replace(s)
	return strings.Fields(s)
}

// containsPhrase reports whether needle occurs in haystack as a run of
// whole words.
func containsPhrase(haystack, needle []string) bool {
	if len(needle) == 0 || len(needle) > len(haystack) {
		return false
	}
outer:
	for i := 0; i+len(needle) <= len(haystack); i++ {
		for j := range needle {
			if haystack[i+j] != needle[j] {
				continue outer
			}
		}
		return true
	}
	return false
}

func samePhrase(a, b []string) bool {
	return len(a) == len(b) && containsPhrase(a, b)
}

// NormalizeEntityType maps an emitted type onto a declared entity type by
// exact name, then exact synonym, then a synonym contained in the emitted
// type. The second result is false when nothing matched.
func (s *Schema) NormalizeEntityType(raw string) (string, bool) {
	w := words(raw)
	if len(w) == 0 {
		return "", false
	}
	for _, et := range s.EntityTypes {
		if samePhrase(words(et.Name), w) {
			return et.Name, true
		}
	}
	for _, et := range s.EntityTypes {
		for _, syn := range et.Synonyms {
			if samePhrase(words(syn), w) {
				return et.Name, true
			}
		}
	}
	for _, et := range s.EntityTypes {
		if containsPhrase(w, words(et.Name)) {
			return et.Name, true
		}
		for _, syn := range et.Synonyms {
			if containsPhrase(w, words(syn)) {
				return et.Name, true
			}
		}
	}
	return "", false
}

// ResolveEntityType is NormalizeEntityType with the fallback applied.
func (s *Schema) ResolveEntityType(raw string) string {
	if name, ok := s.NormalizeEntityType(raw); ok {
		return name
	}
	if et, ok := s.EntityType(FallbackEntityType); ok {
		return et.Name
	}
	if len(s.EntityTypes) > 0 {
		return s.EntityTypes[0].Name
	}
	return FallbackEntityType
}

// NormalizeRelationshipType resolves an emitted relationship type the same
// way NormalizeEntityType does. Unmatched types are left for
// Manager.RegisterMissingRelationship.
func (s *Schema) NormalizeRelationshipType(raw string) (string, bool) {
	w := words(raw)
	if len(w) == 0 {
		return "", false
	}
	for _, rt := range s.RelationshipTypes {
		if samePhrase(words(rt.Name), w) {
			return rt.Name, true
		}
	}
	for _, rt := range s.RelationshipTypes {
		for _, syn := range rt.Synonyms {
			if samePhrase(words(syn), w) {
				return rt.Name, true
			}
		}
	}
	for _, rt := range s.RelationshipTypes {
		for _, syn := range rt.Synonyms {
			if containsPhrase(w, words(syn)) {
				return rt.Name, true
			}
		}
	}
	return "", false
}
