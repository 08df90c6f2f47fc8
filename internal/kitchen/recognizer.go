package kitchen

import (
	"context"
	"strings"

	"emptyfridge/internal/pantry"
)

var scanInstructions = []string{
	"You are an expert pantry organizer with a sharp eye for food items.",
	"Carefully examine the provided images.",
	"List every distinct edible ingredient you see, using common everyday names.",
	"If you can estimate quantity or type (e.g., '3 red apples', 'half loaf of sourdough bread'), include it.",
	"Return ONLY a clean comma-separated list. Example: 'chicken thighs, cherry tomatoes, red onion, basil, cheddar cheese, eggs'.",
	"Ignore non-food items completely.",
}

// Recognizer lists the food visible across a set of pantry photos.
type Recognizer struct {
	gen Generator
}

// NewRecognizer creates a Recognizer.
func NewRecognizer(gen Generator) *Recognizer {
	return &Recognizer{gen: gen}
}

// Recognize returns a single comma-separated inventory line. Images are sent in the order given.
//
// A backend failure is returned as a *GenerationFault. Earlier versions of this app folded the
// failure into the inventory as "Error: <detail>" and let the recipe stage cook from it; the
// fault now stops the run here like it does in every other stage.
func (r *Recognizer) Recognize(ctx context.Context, images []*pantry.Image) (string, error) {
	if len(images) == 0 {
		return "", pantry.ErrNoImages
	}

	parts := make([]Part, 0, len(scanInstructions)+len(images))
	for _, line := range scanInstructions {
		parts = append(parts, Text(line))
	}
	for _, img := range images {
		parts = append(parts, ImagePart(img))
	}

	text, err := generate(ctx, r.gen, StageRecognition, parts...)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(text), nil
}
