package kitchen

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"emptyfridge/internal/pantry"
	"emptyfridge/internal/recipe"
)

// Request is the input of one pipeline run.
type Request struct {
	Pantry  []*pantry.Image
	Hero    *pantry.Image
	Cuisine string
	Diet    recipe.Diet
}

// Observer is told how long each stage took and whether it failed.
type Observer interface {
	ObserveStage(stage Stage, elapsed time.Duration, err error)
}

type nopObserver struct{}

func (nopObserver) ObserveStage(Stage, time.Duration, error) {}

// Pipeline sequences recognition, synthesis, and the two recipe analyses.
type Pipeline struct {
	recognizer   *Recognizer
	synthesizer  *Synthesizer
	nutritionist *Nutritionist
	sommelier    *Sommelier

	log      *zap.Logger
	observer Observer
	progress func(Stage)
	now      func() time.Time
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithLogger sets the pipeline logger.
func WithLogger(log *zap.Logger) Option {
	return func(p *Pipeline) { p.log = log }
}

// WithObserver reports stage timings to o.
func WithObserver(o Observer) Option {
	return func(p *Pipeline) { p.observer = o }
}

// WithProgress calls fn as each stage starts. fn may be called from more than one goroutine.
func WithProgress(fn func(Stage)) Option {
	return func(p *Pipeline) { p.progress = fn }
}

// WithClock overrides the clock used for run titles.
func WithClock(now func() time.Time) Option {
	return func(p *Pipeline) { p.now = now }
}

// NewPipeline builds a pipeline whose stages all talk to gen.
func NewPipeline(gen Generator, opts ...Option) *Pipeline {
	p := &Pipeline{
		recognizer:   NewRecognizer(gen),
		synthesizer:  NewSynthesizer(gen),
		nutritionist: NewNutritionist(gen),
		sommelier:    NewSommelier(gen),
		log:          zap.NewNop(),
		observer:     nopObserver{},
		progress:     func(Stage) {},
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Run executes every stage and returns the combined result. Any stage failure ends the run
// with that stage's *GenerationFault and no partial result.
func (p *Pipeline) Run(ctx context.Context, req Request) (*recipe.Result, error) {
	if len(req.Pantry) == 0 {
		return nil, pantry.ErrNoImages
	}
	if req.Cuisine == "" {
		req.Cuisine = recipe.DefaultCuisine
	}
	if req.Diet == "" {
		req.Diet = recipe.DietNone
	}

	var inventory string
	err := p.stage(ctx, StageRecognition, func(ctx context.Context) (string, error) {
		var err error
		inventory, err = p.recognizer.Recognize(ctx, req.Pantry)
		return inventory, err
	})
	if err != nil {
		return nil, err
	}

	var draft string
	err = p.stage(ctx, StageSynthesis, func(ctx context.Context) (string, error) {
		var err error
		draft, err = p.synthesizer.Synthesize(ctx, inventory, req.Cuisine, req.Diet, req.Hero)
		return draft, err
	})
	if err != nil {
		return nil, err
	}

	// nutrition and pairing only read the finished recipe
	var health, drink string
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return p.stage(gctx, StageNutrition, func(ctx context.Context) (string, error) {
			var err error
			health, err = p.nutritionist.Analyze(ctx, draft)
			return health, err
		})
	})
	g.Go(func() error {
		return p.stage(gctx, StagePairing, func(ctx context.Context) (string, error) {
			var err error
			drink, err = p.sommelier.Suggest(ctx, draft)
			return drink, err
		})
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	at := p.now()
	return &recipe.Result{
		Title:       recipe.Title(req.Cuisine, at),
		Ingredients: inventory,
		Recipe:      draft,
		Health:      health,
		Drink:       drink,
		Cuisine:     req.Cuisine,
		Diet:        req.Diet,
		CreatedAt:   at,
	}, nil
}

func (p *Pipeline) stage(ctx context.Context, stage Stage, fn func(context.Context) (string, error)) error {
	if err := ctx.Err(); err != nil {
		return &GenerationFault{Stage: stage, Err: err}
	}

	p.progress(stage)
	p.log.Debug("stage started", zap.String("stage", string(stage)))

	start := time.Now()
	text, err := fn(ctx)
	elapsed := time.Since(start)
	p.observer.ObserveStage(stage, elapsed, err)

	if err != nil {
		fields := []zap.Field{zap.String("stage", string(stage)), zap.Duration("duration", elapsed), zap.Error(err)}
		if errors.Is(err, context.Canceled) {
			p.log.Debug("stage cancelled", fields...)
		} else {
			p.log.Warn("stage failed", fields...)
		}
		return err
	}

	p.log.Info("stage finished",
		zap.String("stage", string(stage)),
		zap.Duration("duration", elapsed),
		zap.Int("chars", len(text)),
	)
	return nil
}
