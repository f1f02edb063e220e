package graph

import (
	"fmt"
	"strings"

	"github.com/OFFIS-RIT/dochub/backend/pkg/common"
	"github.com/OFFIS-RIT/dochub/backend/pkg/schema"

	gonanoid "github.com/matoous/go-nanoid/v2"
)

type relKey struct {
	source     common.EntityKey
	target     common.EntityKey
	relType    string
	chunkIndex int
}

// collector folds per-chunk extraction results into the entity and
// relationship set of one document. Entities are merged on
// (type, lower(name)); the first occurrence keeps its ID, chunk index and
// property values, later occurrences only add missing keys.
type collector struct {
	documentID string
	schema     *schema.Schema

	entities []common.Entity
	byKey    map[common.EntityKey]int
	byName   map[string]int
	byID     map[string]int

	relationships []common.Relationship
	seenRels      map[relKey]struct{}

	dropped int
}

func newCollector(documentID string, s *schema.Schema) *collector {
	return &collector{
		documentID: documentID,
		schema:     s,
		byKey:      make(map[common.EntityKey]int),
		byName:     make(map[string]int),
		byID:       make(map[string]int),
		seenRels:   make(map[relKey]struct{}),
	}
}

func cleanName(name string) string {
	return strings.Join(strings.Fields(name), " ")
}

func aliasKey(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}

// compactKey is the form of the ids models are asked to emit: the name
// without spaces.
func compactKey(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), ""))
}

func (c *collector) addChunk(chunkIndex int, res extractResponse) error {
	aliases := make(map[string]int, len(res.Entities)*2)

	for _, raw := range res.Entities {
		name := cleanName(raw.Name)
		if name == "" {
			name = cleanName(raw.ID)
		}
		if name == "" {
			c.dropped++
			continue
		}

		entity := common.Entity{
			Type:       c.schema.ResolveEntityType(raw.Type),
			Name:       name,
			DocumentID: c.documentID,
			ChunkIndex: chunkIndex,
		}
		key := entity.Key().Normalized()

		idx, ok := c.byKey[key]
		if !ok {
			id, err := gonanoid.New()
			if err != nil {
				return fmt.Errorf("failed to generate ID for entity: %w", err)
			}
			entity.ID = id
			entity.Properties = map[string]string{}
			c.entities = append(c.entities, entity)
			idx = len(c.entities) - 1
			c.byKey[key] = idx
		}
		mergeProperties(c.entities[idx].Properties, raw.Properties)

		if _, ok := c.byName[key.Name]; !ok {
			c.byName[key.Name] = idx
		}
		if _, ok := c.byID[compactKey(name)]; !ok {
			c.byID[compactKey(name)] = idx
		}
		if id := aliasKey(raw.ID); id != "" {
			aliases[id] = idx
		}
		aliases[key.Name] = idx
	}

	for _, raw := range res.Relationships {
		src, okSrc := c.lookup(aliases, raw.Source)
		tgt, okTgt := c.lookup(aliases, raw.Target)
		relType := strings.TrimSpace(raw.Type)
		if !okSrc || !okTgt || relType == "" || src == tgt {
			c.dropped++
			continue
		}

		source := c.entities[src].Key()
		target := c.entities[tgt].Key()
		key := relKey{
			source:     source.Normalized(),
			target:     target.Normalized(),
			relType:    strings.ToLower(schema.CanonicalRelationshipName(relType)),
			chunkIndex: chunkIndex,
		}
		if _, dup := c.seenRels[key]; dup {
			continue
		}
		c.seenRels[key] = struct{}{}

		c.relationships = append(c.relationships, common.Relationship{
			Type:       relType,
			Source:     source,
			Target:     target,
			DocumentID: c.documentID,
			ChunkIndex: chunkIndex,
		})
	}
	return nil
}

// lookup resolves a relationship endpoint by the chunk's ids and names
// first and by the names and compact ids of earlier chunks second.
func (c *collector) lookup(aliases map[string]int, ref string) (int, bool) {
	ref = aliasKey(ref)
	if ref == "" {
		return 0, false
	}
	if idx, ok := aliases[ref]; ok {
		return idx, true
	}
	if idx, ok := c.byName[ref]; ok {
		return idx, true
	}
	if idx, ok := c.byID[compactKey(ref)]; ok {
		return idx, true
	}
	return 0, false
}

func mergeProperties(dst map[string]string, props propertyList) {
	for _, p := range props {
		key := strings.ToLower(strings.TrimSpace(p.Key))
		value := strings.TrimSpace(p.Value)
		if key == "" || value == "" {
			continue
		}
		if _, exists := dst[key]; exists {
			continue
		}
		dst[key] = value
	}
}
