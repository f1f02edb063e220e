package graph

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/OFFIS-RIT/dochub/backend/pkg/ai"
	"github.com/OFFIS-RIT/dochub/backend/pkg/common"
	"github.com/OFFIS-RIT/dochub/backend/pkg/pipeline"
	"github.com/OFFIS-RIT/dochub/backend/pkg/schema"
)

type extractProperty struct {
	Key   string `json:"key" jsonschema_description:"Name of the fact, e.g. role or date"`
	Value string `json:"value" jsonschema_description:"Value of the fact as written in the text"`
}

// propertyList accepts both the [{key,value}] form the schema asks for and
// a plain JSON object, which models emit often enough.
type propertyList []extractProperty

func (p *propertyList) UnmarshalJSON(data []byte) error {
	trimmed := strings.TrimSpace(string(data))
	if trimmed == "" || trimmed == "null" {
		*p = nil
		return nil
	}

	if strings.HasPrefix(trimmed, "{") {
		var obj map[string]any
		if err := json.Unmarshal(data, &obj); err != nil {
			return err
		}
		keys := make([]string, 0, len(obj))
		for k := range obj {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		out := make(propertyList, 0, len(keys))
		for _, k := range keys {
			out = append(out, extractProperty{Key: k, Value: stringify(obj[k])})
		}
		*p = out
		return nil
	}

	var raw []struct {
		Key   string `json:"key"`
		Value any    `json:"value"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	out := make(propertyList, 0, len(raw))
	for _, r := range raw {
		out = append(out, extractProperty{Key: r.Key, Value: stringify(r.Value)})
	}
	*p = out
	return nil
}

func stringify(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	default:
		b, err := json.Marshal(t)
		if err != nil {
			return fmt.Sprint(t)
		}
		return string(b)
	}
}

type extractEntity struct {
	ID         string       `json:"id" jsonschema_description:"Short identifier of the entity, its name without spaces"`
	Type       string       `json:"type" jsonschema_description:"One of the provided entity types"`
	Name       string       `json:"name" jsonschema_description:"Full canonical name of the entity as written in the text"`
	Properties propertyList `json:"properties" jsonschema_description:"Facts about the entity stated in the text"`
}

type extractRelationship struct {
	Source string `json:"source" jsonschema_description:"id of the source entity"`
	Type   string `json:"type" jsonschema_description:"One of the provided relationship types, or a short snake_case verb phrase"`
	Target string `json:"target" jsonschema_description:"id of the target entity"`
}

type extractResponse struct {
	Entities      []extractEntity       `json:"entities" jsonschema_description:"Entities identified in the text"`
	Relationships []extractRelationship `json:"relationships" jsonschema_description:"Relationships between the identified entities"`
}

type classifyResponse struct {
	DocumentType string  `json:"document_type" jsonschema_description:"Short lower-case document type"`
	Confidence   float64 `json:"confidence" jsonschema_description:"Confidence between 0 and 1"`
}

// documentTypeFocus lists the entity types worth emphasizing for a
// classified document type.
var documentTypeFocus = map[string][]string{
	"contract": {"Organization", "Person", "Date", "Location"},
	"report":   {"Organization", "Topic", "Event", "Date"},
	"invoice":  {"Organization", "Product", "Date"},
	"letter":   {"Person", "Organization", "Location", "Date"},
	"article":  {"Person", "Organization", "Event", "Location"},
	"manual":   {"Product", "Technology", "Concept"},
	"minutes":  {"Person", "Event", "Date", "Organization"},
	"resume":   {"Person", "Organization", "Location", "Date"},
}

const extractTemperature = 0.3

func describeEntityTypes(s *schema.Schema, focus []string) string {
	var b strings.Builder
	for _, et := range s.EntityTypes {
		b.WriteString("- ")
		b.WriteString(et.Name)
		if et.Description != "" {
			b.WriteString(": ")
			b.WriteString(et.Description)
		}
		if len(et.Synonyms) > 0 {
			fmt.Fprintf(&b, " (also: %s)", strings.Join(et.Synonyms, ", "))
		}
		if len(et.Attributes) > 0 {
			names := make([]string, len(et.Attributes))
			for i, a := range et.Attributes {
				names[i] = a.Name
			}
			fmt.Fprintf(&b, " [properties: %s]", strings.Join(names, ", "))
		}
		for _, f := range focus {
			if strings.EqualFold(f, et.Name) {
				b.WriteString(" [emphasized]")
				break
			}
		}
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

func describeRelationshipTypes(s *schema.Schema) string {
	var b strings.Builder
	for _, rt := range s.RelationshipTypes {
		b.WriteString("- ")
		b.WriteString(rt.Name)
		if rt.Description != "" {
			b.WriteString(": ")
			b.WriteString(rt.Description)
		}
		if len(rt.Sources) > 0 || len(rt.Targets) > 0 {
			fmt.Fprintf(&b, " (%s -> %s)", endpointList(rt.Sources), endpointList(rt.Targets))
		}
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

func endpointList(types []string) string {
	if len(types) == 0 {
		return "any"
	}
	return strings.Join(types, "|")
}

func buildExtractPrompt(s *schema.Schema, documentType string, text string) string {
	hint := documentType
	if hint == "" {
		hint = "unknown"
	}
	return fmt.Sprintf(
		ai.ExtractGraphPrompt,
		hint,
		describeEntityTypes(s, documentTypeFocus[documentType]),
		describeRelationshipTypes(s),
		text,
	)
}

// extractChunk asks the model for the graph of one chunk. Output that
// cannot be decoded is retried once with a stricter prompt; a second
// failure is permanent. Provider errors are transient.
func (g *Generator) extractChunk(ctx context.Context, prompt string) (extractResponse, int, error) {
	opts := []ai.GenerateOption{
		ai.WithSystemPrompts(ai.ExtractSystemPrompt),
		ai.WithTemperature(extractTemperature),
	}

	attempts := 1
	var res extractResponse
	err := g.ai.GenerateCompletionWithFormat(
		ctx,
		"extract_entities_and_relationships",
		"Extract entities and relationships from a chunk of a document.",
		prompt,
		&res,
		opts...,
	)
	if errors.Is(err, ai.ErrInvalidFormat) {
		attempts++
		res = extractResponse{}
		err = g.ai.GenerateCompletionWithFormat(
			ctx,
			"extract_entities_and_relationships",
			"Extract entities and relationships from a chunk of a document.",
			ai.ExtractGraphStrictPrompt+prompt,
			&res,
			opts...,
		)
		if errors.Is(err, ai.ErrInvalidFormat) {
			return extractResponse{}, attempts, pipeline.Permanent(pipeline.StageGraph, pipeline.ErrGraphExtraction, err)
		}
	}
	if err != nil {
		return extractResponse{}, attempts, pipeline.Transient(pipeline.StageGraph, pipeline.ErrGraphExtraction, err)
	}
	return res, attempts, nil
}

const classifyExcerptChars = 2000

// classify guesses the document type from its name and the start of its
// text. The result only steers prompts.
func (g *Generator) classify(ctx context.Context, doc common.Document, chunks []common.Chunk) (classifyResponse, error) {
	var excerpt strings.Builder
	for _, c := range chunks {
		if excerpt.Len() >= classifyExcerptChars {
			break
		}
		if excerpt.Len() > 0 {
			excerpt.WriteString("\n")
		}
		excerpt.WriteString(c.Text)
	}
	text := excerpt.String()
	if len(text) > classifyExcerptChars {
		text = text[:classifyExcerptChars]
		for !utf8.ValidString(text) {
			text = text[:len(text)-1]
		}
	}

	var res classifyResponse
	err := g.ai.GenerateCompletionWithFormat(
		ctx,
		"classify_document",
		"Classify a document by its type.",
		fmt.Sprintf(ai.ClassifyDocumentPrompt, doc.Name, text),
		&res,
		ai.WithTemperature(extractTemperature),
	)
	if err != nil {
		return classifyResponse{}, err
	}
	res.DocumentType = strings.ToLower(strings.TrimSpace(res.DocumentType))
	return res, nil
}
