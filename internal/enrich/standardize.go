package enrich

import (
	"context"
	"fmt"
	"io"
	"log"
	"strings"

	"github.com/shpitdev/product-data-enhancer/internal/completion"
	"github.com/shpitdev/product-data-enhancer/pkg/pipeline/core"
	"github.com/shpitdev/product-data-enhancer/pkg/pipeline/redact"
)

const (
	// CategoryUnknown is used when the model returned a name but no category.
	CategoryUnknown = "Unknown"
	// CategoryError marks a row whose completion failed or could not be parsed.
	CategoryError = "Error"
)

// Standardization is the canonical name and category for one dish name.
//
// Err is nil for a clean two-token answer. Otherwise it records why the row degraded
// (*core.ServiceError or *core.ParseError); Name and Category always hold usable values.
type Standardization struct {
	Name     string
	Category string
	Err      error
}

// Standardizer turns free-text dish names into (canonical name, category) pairs.
type Standardizer struct {
	completer completion.Completer
	logger    *log.Logger
}

// NewStandardizer returns a Standardizer calling c once per dish name. A nil logger discards
// log output.
func NewStandardizer(c completion.Completer, logger *log.Logger) *Standardizer {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &Standardizer{completer: c, logger: logger}
}

// Standardize never fails: completion and parse failures degrade to (dishName, "Error"), a
// single-token answer to (token, "Unknown").
func (s *Standardizer) Standardize(ctx context.Context, dishName string) Standardization {
	text, err := s.completer.Complete(ctx, standardizeSystem, BuildStandardizePrompt(dishName))
	if err != nil {
		s.logger.Printf("standardize: completion failed: dish_name=%q error=%q", dishName, redact.Secrets(err.Error()))
		return Standardization{Name: dishName, Category: CategoryError, Err: err}
	}

	out := ParseStandardization(text, dishName)
	if out.Err != nil {
		s.logger.Printf("standardize: malformed output: dish_name=%q error=%q", dishName, out.Err.Error())
	}
	return out
}

// ParseStandardization interprets a completion for dishName.
//
// Every '[', ']' and '"' is removed, then the text is split on ", ". Two tokens are the name
// and category, one token is a name with an unknown category, anything else falls back to the
// original dish name.
func ParseStandardization(text, dishName string) Standardization {
	cleaned := strings.TrimSpace(text)
	cleaned = strings.NewReplacer("[", "", "]", "", `"`, "").Replace(cleaned)
	cleaned = strings.TrimSpace(cleaned)
	tokens := strings.Split(cleaned, ", ")

	switch len(tokens) {
	case 2:
		return Standardization{
			Name:     strings.TrimSpace(tokens[0]),
			Category: strings.TrimSpace(tokens[1]),
		}
	case 1:
		return Standardization{
			Name:     strings.TrimSpace(tokens[0]),
			Category: CategoryUnknown,
			Err:      core.NewParseError("tokens", text, fmt.Errorf("expected 2 tokens, got 1")),
		}
	default:
		return Standardization{
			Name:     dishName,
			Category: CategoryError,
			Err:      core.NewParseError("tokens", text, fmt.Errorf("expected 2 tokens, got %d", len(tokens))),
		}
	}
}
