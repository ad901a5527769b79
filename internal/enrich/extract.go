package enrich

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"strings"

	"github.com/shpitdev/product-data-enhancer/internal/completion"
	"github.com/shpitdev/product-data-enhancer/pkg/pipeline/core"
	"github.com/shpitdev/product-data-enhancer/pkg/pipeline/redact"
	"github.com/shpitdev/product-data-enhancer/pkg/pipeline/schema"
)

// Attributes are the structured food attributes extracted from one description.
type Attributes struct {
	Cuisine         string
	MainIngredients []string
	CookingMethod   string
	DietaryLabels   []string
}

// Columns renders the attributes as output column values; sequences are comma-joined.
func (a Attributes) Columns() map[string]string {
	return map[string]string{
		schema.ColumnCuisine:         a.Cuisine,
		schema.ColumnMainIngredients: strings.Join(a.MainIngredients, ","),
		schema.ColumnCookingMethod:   a.CookingMethod,
		schema.ColumnDietaryLabels:   strings.Join(a.DietaryLabels, ","),
	}
}

// Extraction is the result for one description. Err records why the row degraded to empty
// attributes, or is nil.
type Extraction struct {
	Attributes Attributes
	Err        error
}

// Extractor pulls cuisine, ingredients, cooking method and dietary labels out of free-text
// dish descriptions.
type Extractor struct {
	completer completion.Completer
	logger    *log.Logger
}

func NewExtractor(c completion.Completer, logger *log.Logger) *Extractor {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &Extractor{completer: c, logger: logger}
}

// Extract never fails: any completion or parse failure yields empty attributes.
func (e *Extractor) Extract(ctx context.Context, description string) Extraction {
	text, err := e.completer.Complete(ctx, extractSystem, BuildExtractPrompt(description))
	if err != nil {
		e.logger.Printf("extract: completion failed: description=%q error=%q", description, redact.Secrets(err.Error()))
		return Extraction{Err: err}
	}

	attrs, err := ParseAttributes(text)
	if err != nil {
		e.logger.Printf("extract: malformed output: description=%q error=%q", description, err.Error())
		return Extraction{Err: err}
	}
	return Extraction{Attributes: attrs}
}

// ParseAttributes decodes a JSON object completion, with or without a markdown code fence.
//
// Missing keys and values of an unexpected type read as empty. Output that is not a JSON
// object is a *core.ParseError.
func ParseAttributes(text string) (Attributes, error) {
	cleaned := strings.TrimSpace(text)
	cleaned = strings.ReplaceAll(cleaned, "```json", "")
	cleaned = strings.ReplaceAll(cleaned, "```", "")
	cleaned = strings.TrimSpace(cleaned)

	var doc map[string]any
	if err := json.Unmarshal([]byte(cleaned), &doc); err != nil {
		return Attributes{}, core.NewParseError("json", text, err)
	}
	if doc == nil {
		return Attributes{}, core.NewParseError("json", text, fmt.Errorf("expected a JSON object"))
	}

	return Attributes{
		Cuisine:         stringField(doc, schema.ColumnCuisine),
		MainIngredients: listField(doc, schema.ColumnMainIngredients),
		CookingMethod:   stringField(doc, schema.ColumnCookingMethod),
		DietaryLabels:   listField(doc, schema.ColumnDietaryLabels),
	}, nil
}

func stringField(doc map[string]any, key string) string {
	s, _ := doc[key].(string)
	return strings.TrimSpace(s)
}

func listField(doc map[string]any, key string) []string {
	items, ok := doc[key].([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		s, ok := item.(string)
		if !ok {
			continue
		}
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		out = append(out, s)
	}
	return out
}
