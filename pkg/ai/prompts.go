package ai

// ExtractSystemPrompt is sent as the system message of every extraction call.
const ExtractSystemPrompt = "You are a knowledge graph extraction tool that identifies entities and relationships in text."

// ExtractGraphPrompt takes, in order: the document type hint, the entity
// types, the relationship types and the text to analyze.
const ExtractGraphPrompt = `
# Task Context
Extract entities and relationships from the text below to build a knowledge graph.

# Background Data
Document type: %s

Entity types:
%s

Relationship types:
%s

# Detailed Task Description & Rules
- For each entity, provide:
  1. "id": a short identifier (the entity name without spaces)
  2. "type": one of the entity types listed above
  3. "name": the full, canonical name of the entity as written in the text
  4. "properties": key/value facts stated in the text (e.g. role, date, amount). Leave empty if none.
- For each relationship, provide:
  1. "source": the id of the source entity
  2. "type": one of the relationship types listed above. If none fits, use a short snake_case verb phrase taken from the text (e.g. "works_at").
  3. "target": the id of the target entity
- Only extract what the text states. Do not infer facts from outside knowledge.
- Every relationship source and target must reference an entity you listed.
- Prefer the entity types emphasized for this document type when several fit.

# Examples
Text: "Alice works at Acme Corp as an engineer."
Output:
{
  "entities": [
    {"id": "Alice", "type": "Person", "name": "Alice", "properties": [{"key": "role", "value": "engineer"}]},
    {"id": "AcmeCorp", "type": "Organization", "name": "Acme Corp", "properties": []}
  ],
  "relationships": [
    {"source": "Alice", "type": "works_at", "target": "AcmeCorp"}
  ]
}

# Text to analyze
%s
`

// ExtractGraphStrictPrompt is prepended to the extraction prompt when the
// first response could not be parsed.
const ExtractGraphStrictPrompt = `
# IMPORTANT
Your previous answer was not valid JSON and could not be parsed.
Respond with exactly one JSON object and nothing else: no prose, no markdown fences, no comments.
The object must have the keys "entities" and "relationships", both arrays, exactly as described below.
Every string must be double quoted. Do not leave trailing commas.
`

// ClassifyDocumentPrompt takes the document name and an excerpt of its text.
const ClassifyDocumentPrompt = `
# Task Context
You classify documents by their type so that a later extraction step can focus on the right kinds of entities.

# Background Data
File name: %s

Excerpt:
%s

# Detailed Task Description & Rules
- Choose a short lower-case document type such as "contract", "report", "invoice", "letter", "article", "manual", "minutes", "resume" or "other".
- Give a confidence between 0 and 1 for your choice.
- If the excerpt does not allow a reasonable guess, answer "other" with a low confidence.

# Output Formatting
{"document_type": "<type>", "confidence": <number>}
`
