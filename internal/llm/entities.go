package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// DefaultEntityTypes are the kinds of entities pulled out of documents.
var DefaultEntityTypes = []string{"class_name", "function_name", "method_name"}

const entityPrompt = `# Instructions
Identify the entities of the given types mentioned in the text, and the relationships between them.

# Entity types
%s

# Output
Return only a JSON object of the form
{"entities":[{"name":"...","type":"...","description":"..."}],
 "relationships":[{"source":"...","target":"...","description":"...","keywords":"..."}]}
Use the entity name exactly as written in the text. Relationships may only connect listed entities.

# Text
%s`

// ExtractedEntity is an entity named in a document.
type ExtractedEntity struct {
	Name        string `json:"name"`
	Type        string `json:"type"`
	Description string `json:"description"`
}

// ExtractedRelationship links two extracted entities.
type ExtractedRelationship struct {
	Source      string `json:"source"`
	Target      string `json:"target"`
	Description string `json:"description"`
	Keywords    string `json:"keywords"`
}

// Extraction is the parsed answer for one text window.
type Extraction struct {
	Entities      []ExtractedEntity       `json:"entities"`
	Relationships []ExtractedRelationship `json:"relationships"`
}

// EntityExtractor asks the model for the entities in a piece of text.
type EntityExtractor struct {
	client *Client
	types  []string
}

// NewEntityExtractor creates an extractor for the given entity types.
func NewEntityExtractor(c *Client, types []string) *EntityExtractor {
	if len(types) == 0 {
		types = DefaultEntityTypes
	}
	return &EntityExtractor{client: c, types: types}
}

// Extract returns the entities and relationships found in text.
func (e *EntityExtractor) Extract(ctx context.Context, text string) (Extraction, error) {
	prompt := fmt.Sprintf(entityPrompt, strings.Join(e.types, ", "), text)
	out, err := e.client.Complete(ctx, Request{Prompt: prompt})
	if err != nil {
		return Extraction{}, err
	}
	return ParseExtraction(out)
}

// ParseExtraction decodes the JSON object in a model answer, ignoring any
// surrounding prose or code fences. Entries with blank names are dropped.
func ParseExtraction(answer string) (Extraction, error) {
	start := strings.Index(answer, "{")
	end := strings.LastIndex(answer, "}")
	if start < 0 || end < start {
		return Extraction{}, fmt.Errorf("no JSON object in answer")
	}
	var raw Extraction
	if err := json.Unmarshal([]byte(answer[start:end+1]), &raw); err != nil {
		return Extraction{}, fmt.Errorf("parse extraction: %w", err)
	}

	var out Extraction
	known := make(map[string]bool, len(raw.Entities))
	for _, ent := range raw.Entities {
		ent.Name = strings.TrimSpace(ent.Name)
		if ent.Name == "" || known[ent.Name] {
			continue
		}
		known[ent.Name] = true
		out.Entities = append(out.Entities, ent)
	}
	for _, r := range raw.Relationships {
		r.Source = strings.TrimSpace(r.Source)
		r.Target = strings.TrimSpace(r.Target)
		if r.Source == "" || r.Target == "" || r.Source == r.Target {
			continue
		}
		out.Relationships = append(out.Relationships, r)
	}
	return out, nil
}
