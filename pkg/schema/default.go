package schema

const (
	// DefaultColor is used for entity types without a color.
	DefaultColor = "#9E9E9E"

	// FallbackEntityType receives entities whose emitted type matches nothing.
	FallbackEntityType = "Concept"

	// FallbackRelationshipCategory is the generic category widened
	// relationship types are registered under.
	FallbackRelationshipCategory = "RELATED_TO"
)

// Default returns the built-in system taxonomy. Every call returns a fresh
// copy.
func Default() *Schema {
	return &Schema{
		Scope:   SystemScope,
		Version: 0,
		EntityTypes: []EntityType{
			{Name: "Person", Color: "#E91E63", Synonyms: []string{"person", "individual", "people", "human"},
				Attributes: []Attribute{{Name: "role"}, {Name: "title"}}},
			{Name: "Organization", Color: "#2196F3", Synonyms: []string{"organization", "company", "corporation", "institution", "agency", "firm"}},
			{Name: "Location", Color: "#4CAF50", Synonyms: []string{"location", "place", "country", "city", "region", "area", "territory"}},
			{Name: "Event", Color: "#F44336", Synonyms: []string{"event", "occurrence", "happening", "incident"}},
			{Name: "Date", Color: "#FF9800", Synonyms: []string{"date", "time", "period", "year", "month", "day"}},
			{Name: "Technology", Color: "#607D8B", Synonyms: []string{"technology", "tech", "application", "system", "platform", "software", "hardware"}},
			{Name: "Concept", Color: "#9C27B0", Synonyms: []string{"concept", "idea", "theory", "notion", "principle"}},
			{Name: "Product", Color: "#FFEB3B", Synonyms: []string{"product", "goods", "service", "offering"}},
			{Name: "Topic", Color: "#00BCD4", Synonyms: []string{"topic", "subject", "theme", "field"}},
			{Name: "Document", Color: "#795548", Synonyms: []string{"document", "file", "report", "paper", "publication"}},
		},
		RelationshipTypes: []RelationshipType{
			{Name: "RELATED_TO", Synonyms: []string{"related to", "associated with", "connected to", "linked to"}},
			{Name: "PART_OF", Synonyms: []string{"part of", "belongs to", "member of", "component of", "element of"}},
			{Name: "CREATED", Synonyms: []string{"created", "developed", "produced", "made", "built", "designed"}},
			{Name: "LOCATED_IN", Synonyms: []string{"located in", "based in", "situated in", "found in"}},
			{Name: "WORKS_FOR", Synonyms: []string{"works for", "employed by", "staff of", "personnel of"},
				Sources: []string{"Person"}, Targets: []string{"Organization"}},
			{Name: "OWNED_BY", Synonyms: []string{"owned by", "property of", "possession of"}},
			{Name: "KNOWS", Synonyms: []string{"knows", "familiar with", "acquainted with"},
				Sources: []string{"Person"}, Targets: []string{"Person"}},
			{Name: "HAPPENED_ON", Synonyms: []string{"happened on", "occurred on", "took place on"},
				Sources: []string{"Event"}, Targets: []string{"Date"}},
			{Name: "REFERS_TO", Synonyms: []string{"refers to", "mentions", "cites", "discusses", "describes"}},
			{Name: "USES", Synonyms: []string{"uses", "utilizes", "employs", "leverages", "applies"}},
		},
	}
}
