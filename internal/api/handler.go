package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"emptyfridge/internal/kitchen"
	"emptyfridge/internal/pantry"
	"emptyfridge/internal/publish"
	"emptyfridge/internal/recipe"
)

// Headers and form fields understood by the API.
const (
	SessionHeader = "X-Session-ID"
	APIKeyHeader  = "X-Api-Key"

	formPantry  = "pantry"
	formHero    = "hero"
	formCuisine = "cuisine"
	formDiet    = "diet"
	formAPIKey  = "api_key"
)

// User-facing messages.
const (
	MsgMissingKey   = "API Key Missing"
	MsgNoPhotos     = "Please Upload Ingredients Photos"
	MsgNoResult     = "Upload something... Upload ingredients to start the pipeline."
	MsgPDFEncoding  = "PDF could not be generated due to character encoding."
	MsgRunInFlight  = "Your kitchen is busy. Wait for the current recipe to finish."
	MsgUploadTooBig = "Upload too large."
)

const sessionKey = "session"

// SessionStore defines the session operations the handlers need.
type SessionStore interface {
	Open(id string) (*recipe.Session, bool)
	Delete(id string) error
}

// ImageDecoder validates and normalizes the uploads of one run.
type ImageDecoder interface {
	Intake(pantry []pantry.Blob, hero *pantry.Blob) (*pantry.Batch, error)
}

// Publisher renders a recipe for download.
type Publisher interface {
	PDF(markdown string) ([]byte, error)
	HTML(title, markdown string) ([]byte, error)
}

// Recorder receives stage, run and export outcomes.
type Recorder interface {
	kitchen.Observer
	ObserveRun(err error)
	ObserveExport(format string, err error)
}

type nopRecorder struct{}

func (nopRecorder) ObserveStage(kitchen.Stage, time.Duration, error) {}
func (nopRecorder) ObserveRun(error)                                 {}
func (nopRecorder) ObserveExport(string, error)                      {}

// Options tune request handling. DefaultAPIKey is used when a request carries no key of its own.
type Options struct {
	CookieName     string
	DefaultAPIKey  string
	Timeout        time.Duration
	MaxImages      int
	MaxUploadBytes int64
}

// Handler handles HTTP requests.
type Handler struct {
	Connector kitchen.Connector
	Sessions  SessionStore
	Decoder   ImageDecoder
	Publisher Publisher
	Recorder  Recorder
	Log       *zap.Logger

	opts Options
}

// NewHandler creates a new Handler. recorder and log may be nil.
func NewHandler(connector kitchen.Connector, sessions SessionStore, decoder ImageDecoder, publisher Publisher, recorder Recorder, log *zap.Logger, opts Options) *Handler {
	if recorder == nil {
		recorder = nopRecorder{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	if opts.CookieName == "" {
		opts.CookieName = "fridge_session"
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 45 * time.Second
	}
	return &Handler{
		Connector: connector,
		Sessions:  sessions,
		Decoder:   decoder,
		Publisher: publisher,
		Recorder:  recorder,
		Log:       log,
		opts:      opts,
	}
}

// Register mounts every route on r.
func (h *Handler) Register(r gin.IRouter) {
	r.GET("/healthz", h.Health)
	r.GET("/options", h.Options)

	s := r.Group("/", h.Session())
	s.POST("/pipeline", h.RunPipeline)
	s.GET("/result", h.GetResult)
	s.GET("/result/pdf", h.ExportPDF)
	s.GET("/result/html", h.ExportHTML)
	s.GET("/history", h.GetHistory)
	s.DELETE("/session", h.EndSession)
}

// Session resolves the caller's session from the X-Session-ID header or the session cookie,
// creating one when neither names a live session.
func (h *Handler) Session() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(SessionHeader)
		if id == "" {
			id, _ = c.Cookie(h.opts.CookieName)
		}

		s, created := h.Sessions.Open(id)
		if created {
			c.SetSameSite(http.SameSiteLaxMode)
			c.SetCookie(h.opts.CookieName, s.ID, 0, "/", "", false, true)
		}
		c.Header(SessionHeader, s.ID)
		c.Set(sessionKey, s)
		c.Next()
	}
}

func session(c *gin.Context) *recipe.Session {
	return c.MustGet(sessionKey).(*recipe.Session)
}

type runResponse struct {
	recipe.Result
	Stages []string `json:"stages"`
}

// RunPipeline handles pantry uploads and runs every stage for the caller's session.
func (h *Handler) RunPipeline(c *gin.Context) {
	s := session(c)
	log := h.Log.With(zap.String("session_id", s.ID))

	if h.opts.MaxUploadBytes > 0 {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.opts.MaxUploadBytes)
	}
	form, err := c.MultipartForm()
	if err != nil && !errors.Is(err, http.ErrNotMultipart) {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			c.String(http.StatusRequestEntityTooLarge, MsgUploadTooBig)
			return
		}
		c.String(http.StatusBadRequest, fmt.Sprintf("get form err: %s", err.Error()))
		return
	}

	apiKey := strings.TrimSpace(c.GetHeader(APIKeyHeader))
	if apiKey == "" {
		apiKey = strings.TrimSpace(c.PostForm(formAPIKey))
	}
	if apiKey == "" {
		apiKey = h.opts.DefaultAPIKey
	}
	if h.Connector.RequiresKey() && apiKey == "" {
		c.String(http.StatusBadRequest, MsgMissingKey)
		return
	}

	var pantryFiles, heroFiles []*multipart.FileHeader
	if form != nil {
		pantryFiles, heroFiles = form.File[formPantry], form.File[formHero]
	}
	if len(pantryFiles) == 0 {
		c.String(http.StatusBadRequest, MsgNoPhotos)
		return
	}
	if h.opts.MaxImages > 0 && len(pantryFiles) > h.opts.MaxImages {
		c.String(http.StatusBadRequest, fmt.Sprintf("Please upload at most %d ingredient photos.", h.opts.MaxImages))
		return
	}

	diet, err := recipe.ParseDiet(c.PostForm(formDiet))
	if err != nil {
		c.String(http.StatusBadRequest, fmt.Sprintf("Unknown dietary requirement %q.", c.PostForm(formDiet)))
		return
	}
	cuisine := strings.TrimSpace(c.PostForm(formCuisine))

	blobs := make([]pantry.Blob, 0, len(pantryFiles))
	for _, fh := range pantryFiles {
		b, err := readBlob(fh)
		if err != nil {
			c.String(http.StatusBadRequest, fmt.Sprintf("read image err: %s", err.Error()))
			return
		}
		blobs = append(blobs, b)
	}
	var hero *pantry.Blob
	if len(heroFiles) > 0 {
		b, err := readBlob(heroFiles[0])
		if err != nil {
			c.String(http.StatusBadRequest, fmt.Sprintf("read image err: %s", err.Error()))
			return
		}
		hero = &b
	}

	batch, err := h.Decoder.Intake(blobs, hero)
	if err != nil {
		var de *pantry.DecodeError
		switch {
		case errors.As(err, &de):
			c.String(http.StatusBadRequest, de.Error())
		case errors.Is(err, pantry.ErrNoImages):
			c.String(http.StatusBadRequest, MsgNoPhotos)
		default:
			c.String(http.StatusInternalServerError, fmt.Sprintf("image err: %s", err.Error()))
		}
		return
	}

	if err := s.Begin(); err != nil {
		c.String(http.StatusConflict, MsgRunInFlight)
		return
	}
	defer s.End()

	ctx, cancel := context.WithTimeout(c.Request.Context(), h.opts.Timeout)
	defer cancel()

	backend, err := h.Connector.Connect(ctx, apiKey)
	if err != nil {
		log.Warn("could not connect to model", zap.Error(err))
		c.String(http.StatusBadGateway, fmt.Sprintf("model err: %s", err.Error()))
		return
	}
	defer backend.Close()

	var (
		mu     sync.Mutex
		stages []string
	)
	pipe := kitchen.NewPipeline(backend,
		kitchen.WithLogger(log),
		kitchen.WithObserver(h.Recorder),
		kitchen.WithProgress(func(st kitchen.Stage) {
			mu.Lock()
			stages = append(stages, st.Label())
			mu.Unlock()
		}),
	)

	log.Info("pipeline started",
		zap.Int("pantry_images", len(batch.Pantry)),
		zap.Bool("hero", batch.Hero != nil),
		zap.String("cuisine", cuisine),
		zap.String("diet", string(diet)),
	)
	result, err := pipe.Run(ctx, kitchen.Request{
		Pantry:  batch.Pantry,
		Hero:    batch.Hero,
		Cuisine: cuisine,
		Diet:    diet,
	})
	h.Recorder.ObserveRun(err)
	if err != nil {
		h.runError(c, err)
		return
	}

	s.RecordRun(*result)
	log.Info("recipe generated", zap.String("title", result.Title))

	c.JSON(http.StatusOK, runResponse{Result: *result, Stages: stages})
}

func (h *Handler) runError(c *gin.Context, err error) {
	var fault *kitchen.GenerationFault
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		c.String(http.StatusRequestTimeout, fmt.Sprintf("The kitchen timed out after %s.", h.opts.Timeout))
	case errors.Is(err, context.Canceled):
		c.String(http.StatusRequestTimeout, "Request cancelled.")
	case errors.As(err, &fault):
		c.String(http.StatusBadGateway, fmt.Sprintf("%s failed: %v", fault.Stage.Label(), fault.Err))
	default:
		c.String(http.StatusInternalServerError, fmt.Sprintf("pipeline err: %s", err.Error()))
	}
}

func readBlob(fh *multipart.FileHeader) (pantry.Blob, error) {
	f, err := fh.Open()
	if err != nil {
		return pantry.Blob{}, err
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return pantry.Blob{}, err
	}
	return pantry.Blob{Name: fh.Filename, Data: data}, nil
}

// GetResult returns the session's most recent run.
func (h *Handler) GetResult(c *gin.Context) {
	r, ok := session(c).Current()
	if !ok {
		c.String(http.StatusNotFound, MsgNoResult)
		return
	}
	c.JSON(http.StatusOK, r)
}

type historyItem struct {
	Label   string `json:"label"`
	Title   string `json:"title"`
	Content string `json:"content"`
}

// GetHistory returns every past run of the session, oldest first.
func (h *Handler) GetHistory(c *gin.Context) {
	entries := session(c).History()
	items := make([]historyItem, len(entries))
	for i, e := range entries {
		items[i] = historyItem{
			Label:   fmt.Sprintf("Recipe %d: %s", i+1, e.Title),
			Title:   e.Title,
			Content: e.Content,
		}
	}
	c.JSON(http.StatusOK, items)
}

// ExportPDF renders the current recipe as recipe.pdf. A rendering failure leaves the result untouched.
func (h *Handler) ExportPDF(c *gin.Context) {
	r, ok := session(c).Current()
	if !ok {
		c.String(http.StatusNotFound, MsgNoResult)
		return
	}

	data, err := h.Publisher.PDF(r.Recipe)
	h.Recorder.ObserveExport("pdf", err)
	if err != nil {
		h.Log.Warn("pdf export failed", zap.String("session_id", session(c).ID), zap.Error(err))
		c.String(http.StatusUnprocessableEntity, MsgPDFEncoding)
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", publish.PDFFilename))
	c.Data(http.StatusOK, publish.PDFContentType, data)
}

// ExportHTML renders the current recipe as a printable page.
func (h *Handler) ExportHTML(c *gin.Context) {
	r, ok := session(c).Current()
	if !ok {
		c.String(http.StatusNotFound, MsgNoResult)
		return
	}

	data, err := h.Publisher.HTML(r.Title, r.Recipe)
	h.Recorder.ObserveExport("html", err)
	if err != nil {
		c.String(http.StatusUnprocessableEntity, fmt.Sprintf("html err: %s", err.Error()))
		return
	}
	c.Data(http.StatusOK, publish.HTMLContentType, data)
}

// EndSession discards the caller's session.
func (h *Handler) EndSession(c *gin.Context) {
	s := session(c)
	if err := h.Sessions.Delete(s.ID); err != nil && !errors.Is(err, recipe.ErrSessionNotFound) {
		c.String(http.StatusInternalServerError, err.Error())
		return
	}
	c.SetCookie(h.opts.CookieName, "", -1, "/", "", false, true)
	c.Status(http.StatusNoContent)
}

// Options describes the choices a client can offer.
func (h *Handler) Options(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"diets":            recipe.Diets(),
		"default_cuisine":  recipe.DefaultCuisine,
		"model":            h.Connector.Model(),
		"requires_api_key": h.Connector.RequiresKey(),
		"max_images":       h.opts.MaxImages,
	})
}

// Health reports liveness.
func (h *Handler) Health(c *gin.Context) {
	c.String(http.StatusOK, "ok")
}
