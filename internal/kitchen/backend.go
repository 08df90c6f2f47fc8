// Package kitchen runs the four generation stages that turn pantry photos into a recipe,
// a nutrition summary and a drink pairing.
package kitchen

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"emptyfridge/internal/pantry"
)

// ErrEmptyResponse is returned when the backend answers with no text at all.
var ErrEmptyResponse = errors.New("empty response from model")

// Stage names one generation step.
type Stage string

const (
	StageRecognition Stage = "recognition"
	StageSynthesis   Stage = "synthesis"
	StageNutrition   Stage = "nutrition"
	StagePairing     Stage = "pairing"
)

// Label is the progress label shown while the stage runs.
func (s Stage) Label() string {
	switch s {
	case StageRecognition:
		return "Scanning"
	case StageSynthesis:
		return "Drafting"
	case StageNutrition:
		return "Analyzing"
	case StagePairing:
		return "Pairing"
	default:
		return string(s)
	}
}

// Part is one element of a generation request: either text or an image.
type Part struct {
	Text  string
	Image *pantry.Image
}

// Text returns a text part.
func Text(s string) Part { return Part{Text: s} }

// ImagePart returns an image part.
func ImagePart(img *pantry.Image) Part { return Part{Image: img} }

// Generator sends an ordered list of parts to a model and returns its text reply.
type Generator interface {
	Generate(ctx context.Context, parts ...Part) (string, error)
}

// Backend is a Generator bound to credentials for the duration of one run.
type Backend interface {
	Generator
	io.Closer
}

// Connector opens a Backend for a caller-supplied API key.
type Connector interface {
	// RequiresKey reports whether Connect needs a non-empty key.
	RequiresKey() bool
	// Model names the model answering requests, for display.
	Model() string
	Connect(ctx context.Context, apiKey string) (Backend, error)
}

// GenerationFault is a failed remote generation call. Every stage returns one instead of
// passing a failure downstream as text.
type GenerationFault struct {
	Stage Stage
	Err   error
}

func (f *GenerationFault) Error() string {
	return fmt.Sprintf("%s stage failed: %v", f.Stage, f.Err)
}

func (f *GenerationFault) Unwrap() error { return f.Err }

func generate(ctx context.Context, gen Generator, stage Stage, parts ...Part) (string, error) {
	text, err := gen.Generate(ctx, parts...)
	if err != nil {
		return "", &GenerationFault{Stage: stage, Err: err}
	}
	if strings.TrimSpace(text) == "" {
		return "", &GenerationFault{Stage: stage, Err: ErrEmptyResponse}
	}
	return text, nil
}
