package kitchen

import (
	"context"
	"fmt"
)

// The health report is four free-text lines. Callers must not parse them.
const nutritionTemplate = `
Act as a clinical nutritionist.
Analyze this recipe text:
'%s'

Provide a concise health breakdown in this specific format:
Calories: [Approximation Number]
Protein: [High/Medium/Low]
Carbs: [High/Medium/Low]
Health Verdict: [One Sentence Summary]
`

// The beverage policy lives only in this text; replies are not filtered afterwards.
const pairingTemplate = `
You are a friendly beverage expert who helps people find the perfect everyday drink to enjoy with their meal, alcoholic or non-alcoholic, whatever complements the food best and is easy to find.

Here is the full recipe:
'%s'

Based on the flavors, ingredients, and likely regional style of the dish, recommend **ONE** beverage pairing that:
- Feels natural to the cuisine or region (infer the country/region from ingredients and style).
- Is widely available in local supermarkets, convenience stores, or common in homes there.
- Prioritizes refreshing non-alcoholic options (soft drinks, juices, teas, sparkling water, lassi, horchata, etc.) unless an alcoholic drink is truly iconic and widely drunk with this dish.

Output exactly in this format (nothing else):

**Perfect Pairing: [Beverage Name]**

[2-3 warm sentences explaining why it works so well with the dish's flavors and why it's easy to find locally.]
`

// Nutritionist produces a short health report for a recipe.
type Nutritionist struct {
	gen Generator
}

// NewNutritionist creates a Nutritionist.
func NewNutritionist(gen Generator) *Nutritionist {
	return &Nutritionist{gen: gen}
}

// Analyze returns the health report for recipeText.
func (n *Nutritionist) Analyze(ctx context.Context, recipeText string) (string, error) {
	return generate(ctx, n.gen, StageNutrition, Text(fmt.Sprintf(nutritionTemplate, recipeText)))
}

// Sommelier recommends one drink for a recipe.
type Sommelier struct {
	gen Generator
}

// NewSommelier creates a Sommelier.
func NewSommelier(gen Generator) *Sommelier {
	return &Sommelier{gen: gen}
}

// Suggest returns a single pairing with a short justification.
func (s *Sommelier) Suggest(ctx context.Context, recipeText string) (string, error) {
	return generate(ctx, s.gen, StagePairing, Text(fmt.Sprintf(pairingTemplate, recipeText)))
}
