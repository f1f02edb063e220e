package schema

import (
	"fmt"
	"regexp"
	"strings"
)

// SystemScope is the scope of the system-wide default schema. Any other
// scope is a user id.
const SystemScope = ""

// Attribute describes a property the extraction should look for on an
// entity type. Attributes are hints; the property bag stays open.
type Attribute struct {
	Name        string `json:"name" yaml:"name"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
}

type EntityType struct {
	Name        string      `json:"name" yaml:"name"`
	Description string      `json:"description,omitempty" yaml:"description,omitempty"`
	Synonyms    []string    `json:"synonyms,omitempty" yaml:"synonyms,omitempty"`
	Color       string      `json:"color,omitempty" yaml:"color,omitempty"`
	Attributes  []Attribute `json:"attributes,omitempty" yaml:"attributes,omitempty"`
}

// RelationshipType declares which entity types may appear at either end.
// Empty Sources or Targets allow any entity type. Category names the
// generic type a widened relationship was registered under.
type RelationshipType struct {
	Name        string   `json:"name" yaml:"name"`
	Description string   `json:"description,omitempty" yaml:"description,omitempty"`
	Category    string   `json:"category,omitempty" yaml:"category,omitempty"`
	Synonyms    []string `json:"synonyms,omitempty" yaml:"synonyms,omitempty"`
	Sources     []string `json:"sources,omitempty" yaml:"sources,omitempty"`
	Targets     []string `json:"targets,omitempty" yaml:"targets,omitempty"`
}

// Schema is one immutable version of a scope's taxonomy. Changes produce a
// new version through Manager.
type Schema struct {
	Scope             string             `json:"scope" yaml:"scope,omitempty"`
	Version           int                `json:"version" yaml:"version,omitempty"`
	EntityTypes       []EntityType       `json:"entity_types" yaml:"entity_types"`
	RelationshipTypes []RelationshipType `json:"relationship_types" yaml:"relationship_types"`
}

// Clone returns a deep copy.
func (s *Schema) Clone() *Schema {
	if s == nil {
		return nil
	}
	out := &Schema{
		Scope:             s.Scope,
		Version:           s.Version,
		EntityTypes:       make([]EntityType, len(s.EntityTypes)),
		RelationshipTypes: make([]RelationshipType, len(s.RelationshipTypes)),
	}
	for i, et := range s.EntityTypes {
		et.Synonyms = append([]string(nil), et.Synonyms...)
		et.Attributes = append([]Attribute(nil), et.Attributes...)
		out.EntityTypes[i] = et
	}
	for i, rt := range s.RelationshipTypes {
		rt.Synonyms = append([]string(nil), rt.Synonyms...)
		rt.Sources = append([]string(nil), rt.Sources...)
		rt.Targets = append([]string(nil), rt.Targets...)
		out.RelationshipTypes[i] = rt
	}
	return out
}

// EntityType looks up an entity type by name, ignoring case.
func (s *Schema) EntityType(name string) (EntityType, bool) {
	for _, et := range s.EntityTypes {
		if strings.EqualFold(et.Name, strings.TrimSpace(name)) {
			return et, true
		}
	}
	return EntityType{}, false
}

// RelationshipType looks up a relationship type by name. Case, spaces and
// hyphens are ignored, so "Works At" finds "works_at".
func (s *Schema) RelationshipType(name string) (RelationshipType, bool) {
	key := CanonicalRelationshipName(name)
	for _, rt := range s.RelationshipTypes {
		if strings.EqualFold(CanonicalRelationshipName(rt.Name), key) {
			return rt, true
		}
	}
	return RelationshipType{}, false
}

// Allows reports whether rt accepts the given endpoint types.
func (rt RelationshipType) Allows(sourceType, targetType string) bool {
	return containsFold(rt.Sources, sourceType) && containsFold(rt.Targets, targetType)
}

// containsFold treats an empty list as "any".
func containsFold(list []string, v string) bool {
	if len(list) == 0 {
		return true
	}
	for _, item := range list {
		if strings.EqualFold(item, v) {
			return true
		}
	}
	return false
}

// EntityTypeNames returns the entity type names in declaration order.
func (s *Schema) EntityTypeNames() []string {
	names := make([]string, len(s.EntityTypes))
	for i, et := range s.EntityTypes {
		names[i] = et.Name
	}
	return names
}

// RelationshipTypeNames returns the relationship type names in declaration order.
func (s *Schema) RelationshipTypeNames() []string {
	names := make([]string, len(s.RelationshipTypes))
	for i, rt := range s.RelationshipTypes {
		names[i] = rt.Name
	}
	return names
}

// ColorFor returns the visualization color of an entity type.
func (s *Schema) ColorFor(entityType string) string {
	if s != nil {
		if et, ok := s.EntityType(entityType); ok && et.Color != "" {
			return et.Color
		}
	}
	return DefaultColor
}

var nonWord = regexp.MustCompile(`[\s\-]+`)

// CanonicalRelationshipName trims a relationship name and joins its words
// with underscores. Case is preserved.
func CanonicalRelationshipName(name string) string {
	return nonWord.ReplaceAllString(strings.TrimSpace(name), "_")
}

// ValidationError is one problem found by Validate.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationErrors is returned by Manager operations that reject a schema.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	msgs := make([]string, len(e))
	for i, ve := range e {
		msgs[i] = ve.Error()
	}
	return "invalid schema: " + strings.Join(msgs, "; ")
}

var colorPattern = regexp.MustCompile(`^#[0-9A-Fa-f]{6}$`)

// Validate checks a schema for internal consistency. It returns nil when
// the schema is usable.
func Validate(s *Schema) []ValidationError {
	if s == nil {
		return []ValidationError{{Field: "schema", Message: "schema is nil"}}
	}

	var errs []ValidationError
	if len(s.EntityTypes) == 0 {
		errs = append(errs, ValidationError{Field: "entity_types", Message: "at least one entity type is required"})
	}

	seen := map[string]bool{}
	for i, et := range s.EntityTypes {
		field := fmt.Sprintf("entity_types[%d]", i)
		name := strings.ToLower(strings.TrimSpace(et.Name))
		if name == "" {
			errs = append(errs, ValidationError{Field: field + ".name", Message: "name is required"})
			continue
		}
		if seen[name] {
			errs = append(errs, ValidationError{Field: field + ".name", Message: fmt.Sprintf("duplicate entity type %q", et.Name)})
		}
		seen[name] = true
		if et.Color != "" && !colorPattern.MatchString(et.Color) {
			errs = append(errs, ValidationError{Field: field + ".color", Message: fmt.Sprintf("invalid color %q", et.Color)})
		}
		for j, attr := range et.Attributes {
			if strings.TrimSpace(attr.Name) == "" {
				errs = append(errs, ValidationError{Field: fmt.Sprintf("%s.attributes[%d].name", field, j), Message: "name is required"})
			}
		}
	}

	seenRel := map[string]bool{}
	for i, rt := range s.RelationshipTypes {
		field := fmt.Sprintf("relationship_types[%d]", i)
		name := strings.ToLower(CanonicalRelationshipName(rt.Name))
		if name == "" {
			errs = append(errs, ValidationError{Field: field + ".name", Message: "name is required"})
			continue
		}
		if seenRel[name] {
			errs = append(errs, ValidationError{Field: field + ".name", Message: fmt.Sprintf("duplicate relationship type %q", rt.Name)})
		}
		seenRel[name] = true
		for _, src := range rt.Sources {
			if !seen[strings.ToLower(strings.TrimSpace(src))] {
				errs = append(errs, ValidationError{Field: field + ".sources", Message: fmt.Sprintf("unknown entity type %q", src)})
			}
		}
		for _, tgt := range rt.Targets {
			if !seen[strings.ToLower(strings.TrimSpace(tgt))] {
				errs = append(errs, ValidationError{Field: field + ".targets", Message: fmt.Sprintf("unknown entity type %q", tgt)})
			}
		}
	}
	return errs
}
