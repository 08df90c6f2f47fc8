package recipe

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrUnknownDiet is returned when a dietary requirement is not one of the supported options.
var ErrUnknownDiet = errors.New("unknown dietary requirement")

// DefaultCuisine is used when no cuisine style is given.
const DefaultCuisine = "Any"

// Diet is a dietary requirement passed verbatim to the recipe prompt.
type Diet string

const (
	DietNone       Diet = "None"
	DietVegetarian Diet = "Vegetarian"
	DietVegan      Diet = "Vegan"
	DietKeto       Diet = "Keto"
	DietGlutenFree Diet = "Gluten-Free"
)

// Diets returns the supported dietary requirements in display order.
func Diets() []Diet {
	return []Diet{DietNone, DietVegetarian, DietVegan, DietKeto, DietGlutenFree}
}

// ParseDiet matches s case-insensitively against the supported diets.
// An empty string means DietNone.
func ParseDiet(s string) (Diet, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return DietNone, nil
	}
	for _, d := range Diets() {
		if strings.EqualFold(s, string(d)) {
			return d, nil
		}
	}
	// "gluten free" and "glutenfree" are common spellings from form clients
	if strings.EqualFold(strings.NewReplacer(" ", "", "-", "", "_", "").Replace(s), "glutenfree") {
		return DietGlutenFree, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownDiet, s)
}

// UnmarshalJSON implements the json.Unmarshaler interface for Diet.
func (d *Diet) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	parsed, err := ParseDiet(raw)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// Result is the output of one completed pipeline run.
// Every text field is opaque model output; the templates each stage asks for are advisory.
type Result struct {
	Title       string    `json:"title"`
	Ingredients string    `json:"ingredients"`
	Recipe      string    `json:"recipe"`
	Health      string    `json:"health"`
	Drink       string    `json:"drink"`
	Cuisine     string    `json:"cuisine"`
	Diet        Diet      `json:"dietary_preference"`
	CreatedAt   time.Time `json:"created_at"`
}

// Title builds the history title for a run: the cuisine followed by the wall-clock time.
func Title(cuisine string, at time.Time) string {
	if strings.TrimSpace(cuisine) == "" {
		cuisine = DefaultCuisine
	}
	return fmt.Sprintf("%s (%s)", cuisine, at.Format("15:04"))
}

// HistoryEntry is an immutable snapshot of a past run.
type HistoryEntry struct {
	Title   string `json:"title"`
	Content string `json:"content"`
}
