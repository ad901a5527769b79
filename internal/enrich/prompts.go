package enrich

import "strings"

const (
	standardizeSystem = "You are a helpful assistant for food standardization."
	extractSystem     = "You are a helpful assistant for food attribute extraction."
)

// BuildStandardizePrompt embeds dishName into the few-shot standardization template.
func BuildStandardizePrompt(dishName string) string {
	return strings.TrimSpace(`
Standardize the given dish name into two levels:
- Level 1: A structured and readable version of the dish name.
- Level 2: A broader category that the dish belongs to (e.g., "burger", "pizza", "pasta").

Example:
Input: "burge chicken"
Output: ["chicken burger", "burger"]

Input: "ham brger"
Output: ["ham burger", "burger"]

Input: "veg piz"
Output: ["Veg Pizza", "Pizza"]

Input: "butt chikn msla"
Output: ["Butter Chicken Masala", "Indian"]

Input: "` + dishName + `"
Output:
`)
}

// BuildExtractPrompt embeds description into the JSON-only attribute extraction template.
func BuildExtractPrompt(description string) string {
	return strings.TrimSpace(`
Extract food attributes from the dish description below.

Return ONLY a single JSON object, with no text before or after it, using exactly these keys:
- cuisine (string; e.g. "Italian", "Indian"; empty string if unknown)
- main_ingredients (array of strings)
- cooking_method (string; e.g. "baked", "grilled", "fried"; empty string if unknown)
- dietary_labels (array of strings; e.g. "vegetarian", "vegan", "gluten-free"; empty array if none)

Description: "` + description + `"
`)
}
