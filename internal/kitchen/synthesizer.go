package kitchen

import (
	"context"
	"fmt"
	"strings"

	"emptyfridge/internal/pantry"
	"emptyfridge/internal/recipe"
)

// heroLabel precedes the inspiration photo in the request.
const heroLabel = "Reference Image (try to mimic it):"

// recipeTemplate asks for a markdown document shaped as:
// H1 dish name, a Serves/Prep/Cook/Total/Difficulty line, "Why You'll Love This",
// "Ingredients" bullets, numbered "Step-by-Step Instructions", and a "Pro Tip".
// Nothing checks the reply against it.
const recipeTemplate = `
You are a warm, passionate home cook who loves turning whatever is in the pantry into something delicious and memorable.
Your recipes feel like they're shared over a kitchen counter: clear, encouraging, and full of little touches that make people excited to cook.

Create an original, practical recipe based on these constraints:
- Available ingredients: %s
- Cuisine style/request: %s
- Dietary needs: %s

Guidelines:
- Use as many of the available ingredients as possible.
- Feel free to suggest 1-2 common pantry staples (salt, pepper, olive oil, garlic, butter, flour, sugar, etc.) only if truly needed.
- Design the recipe for 4 servings (adjust if the ingredient list clearly suggests otherwise).
- Include realistic approximate quantities in the ingredients list.
- Write steps that are easy to follow, even for beginner cooks. Include approximate timings when helpful.
- Give the dish a creative but approachable name that makes someone want to cook it right away.

If a hero image is provided, take inspiration from its plating style, colors, and texture.

Output exactly in this Markdown format (do not add extra text outside it):

# [Creative Dish Name]

**Serves:** 4 | **Prep Time:** XX minutes | **Cook Time:** XX minutes | **Total Time:** XX minutes | **Difficulty:** Easy / Medium / Hard

## Why You'll Love This
A warm, appetizing 2-4 sentence story about the dish: its flavors, textures, why it's perfect for tonight, and what makes it special.

## Ingredients
- [approximate quantity] [ingredient] (e.g., 400g chicken thighs, boneless)
- [any suggested pantry staples marked as "(pantry staple, optional if you have it)"]

## Step-by-Step Instructions
1. [Clear, friendly step with action verbs and helpful details]
2. ...

## Pro Tip
One genuine, useful tip, could be about flavor, technique, plating, or a simple variation.
`

// Synthesizer writes a recipe from an ingredient inventory.
type Synthesizer struct {
	gen Generator
}

// NewSynthesizer creates a Synthesizer.
func NewSynthesizer(gen Generator) *Synthesizer {
	return &Synthesizer{gen: gen}
}

// RecipePrompt builds the instruction text for the synthesis stage.
func RecipePrompt(inventory, cuisine string, diet recipe.Diet) string {
	if strings.TrimSpace(cuisine) == "" {
		cuisine = recipe.DefaultCuisine
	}
	if diet == "" {
		diet = recipe.DietNone
	}
	return fmt.Sprintf(recipeTemplate, inventory, cuisine, diet)
}

// Synthesize returns a markdown recipe. hero is optional.
func (s *Synthesizer) Synthesize(ctx context.Context, inventory, cuisine string, diet recipe.Diet, hero *pantry.Image) (string, error) {
	parts := []Part{Text(RecipePrompt(inventory, cuisine, diet))}
	if hero != nil {
		parts = append(parts, Text(heroLabel), ImagePart(hero))
	}
	return generate(ctx, s.gen, StageSynthesis, parts...)
}
