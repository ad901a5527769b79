package schema

import (
	"strings"
)

// Operation names one of the enrichment pipelines.
type Operation string

const (
	OperationStandardize Operation = "standardize"
	OperationExtract     Operation = "extract"
)

// Column names used by the two pipelines.
const (
	ColumnDishName    = "dish_name"
	ColumnDescription = "description"

	ColumnLevel1Name = "level1_standard_name"
	ColumnLevel2Name = "level2_standard_name"

	ColumnCuisine         = "cuisine"
	ColumnMainIngredients = "main_ingredients"
	ColumnCookingMethod   = "cooking_method"
	ColumnDietaryLabels   = "dietary_labels"
)

// Contract is the fixed column contract of one pipeline.
type Contract struct {
	Operation Operation
	// Title is the human-facing operation name.
	Title string
	// Required columns must be present in the input header.
	Required []string
	// Added columns are appended to the output (or overwritten when already present).
	Added []string
}

var (
	Standardize = Contract{
		Operation: OperationStandardize,
		Title:     "Standardize Product Names",
		Required:  []string{ColumnDishName},
		Added:     []string{ColumnLevel1Name, ColumnLevel2Name},
	}

	Extract = Contract{
		Operation: OperationExtract,
		Title:     "Extract Food Attributes",
		Required:  []string{ColumnDishName, ColumnDescription},
		Added:     []string{ColumnCuisine, ColumnMainIngredients, ColumnCookingMethod, ColumnDietaryLabels},
	}
)

// Contracts returns every pipeline contract in menu order.
func Contracts() []Contract {
	return []Contract{Standardize, Extract}
}

// Lookup resolves an operation by short name or title, case-insensitively.
func Lookup(raw string) (Contract, bool) {
	s := strings.TrimSpace(strings.ToLower(raw))
	for _, c := range Contracts() {
		if s == string(c.Operation) || s == strings.ToLower(c.Title) {
			return c, true
		}
	}
	return Contract{}, false
}
