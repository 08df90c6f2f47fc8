package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"image"
	"image/color"
	"image/png"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"emptyfridge/internal/kitchen"
	"emptyfridge/internal/pantry"
	"emptyfridge/internal/recipe"
)

const mockRecipe = "# Skillet Eggs\n\n**Serves:** 2\n\n## Ingredients\n- 4 eggs\n- spinach\n"

var mockReplies = map[kitchen.Stage]string{
	kitchen.StageRecognition: " eggs, spinach, feta cheese\n",
	kitchen.StageSynthesis:   mockRecipe,
	kitchen.StageNutrition:   "Calories: 380\nProtein: High\nCarbs: Low\nHealth Verdict: Balanced.",
	kitchen.StagePairing:     "**Perfect Pairing: Mint Iced Tea**",
}

func stageOf(parts []kitchen.Part) kitchen.Stage {
	if len(parts) == 0 {
		return ""
	}
	first := parts[0].Text
	switch {
	case strings.Contains(first, "pantry organizer"):
		return kitchen.StageRecognition
	case strings.Contains(first, "home cook"):
		return kitchen.StageSynthesis
	case strings.Contains(first, "clinical nutritionist"):
		return kitchen.StageNutrition
	case strings.Contains(first, "beverage expert"):
		return kitchen.StagePairing
	}
	return ""
}

// mockBackend answers every stage with a canned reply.
type mockBackend struct {
	mu      sync.Mutex
	errs    map[kitchen.Stage]error
	calls   map[kitchen.Stage][]kitchen.Part
	block   chan struct{}
	entered chan struct{}
	closed  int
}

func newMockBackend() *mockBackend {
	return &mockBackend{
		errs:    make(map[kitchen.Stage]error),
		calls:   make(map[kitchen.Stage][]kitchen.Part),
		entered: make(chan struct{}, 1),
	}
}

func (b *mockBackend) Generate(ctx context.Context, parts ...kitchen.Part) (string, error) {
	st := stageOf(parts)
	b.mu.Lock()
	b.calls[st] = parts
	err := b.errs[st]
	block := b.block
	b.mu.Unlock()

	if st == kitchen.StageRecognition && block != nil {
		select {
		case b.entered <- struct{}{}:
		default:
		}
		select {
		case <-block:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	if err != nil {
		return "", err
	}
	return mockReplies[st], nil
}

func (b *mockBackend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed++
	return nil
}

func (b *mockBackend) setErr(st kitchen.Stage, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.errs[st] = err
}

func (b *mockBackend) partsFor(st kitchen.Stage) []kitchen.Part {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.calls[st]
}

// mockConnector hands out the same backend for every run.
type mockConnector struct {
	mu          sync.Mutex
	requiresKey bool
	backend     *mockBackend
	connectErr  error
	keys        []string
}

func (m *mockConnector) RequiresKey() bool { return m.requiresKey }
func (m *mockConnector) Model() string     { return "mock-model" }

func (m *mockConnector) Connect(ctx context.Context, apiKey string) (kitchen.Backend, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.keys = append(m.keys, apiKey)
	if m.connectErr != nil {
		return nil, m.connectErr
	}
	return m.backend, nil
}

// mockPublisher returns fixed documents or a fixed error.
type mockPublisher struct {
	err error
}

func (m *mockPublisher) PDF(markdown string) ([]byte, error) {
	if m.err != nil {
		return nil, m.err
	}
	return []byte("%PDF-1.3 " + markdown), nil
}

func (m *mockPublisher) HTML(title, markdown string) ([]byte, error) {
	if m.err != nil {
		return nil, m.err
	}
	return []byte("<title>" + title + "</title>"), nil
}

// mockRecorder counts run outcomes.
type mockRecorder struct {
	mu      sync.Mutex
	stages  int
	runs    []error
	exports []string
}

func (m *mockRecorder) ObserveStage(kitchen.Stage, time.Duration, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stages++
}

func (m *mockRecorder) ObserveRun(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runs = append(m.runs, err)
}

func (m *mockRecorder) ObserveExport(format string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.exports = append(m.exports, format)
}

type harness struct {
	router    *gin.Engine
	sessions  *recipe.Registry
	connector *mockConnector
	backend   *mockBackend
	publisher *mockPublisher
	recorder  *mockRecorder
}

func newHarness(t *testing.T, opts Options) *harness {
	t.Helper()
	gin.SetMode(gin.TestMode)

	h := &harness{
		sessions:  recipe.NewRegistry(zaptest.NewLogger(t)),
		backend:   newMockBackend(),
		publisher: &mockPublisher{},
		recorder:  &mockRecorder{},
	}
	h.connector = &mockConnector{requiresKey: true, backend: h.backend}

	handler := NewHandler(h.connector, h.sessions, pantry.NewDecoder(pantry.DefaultMaxWidth, pantry.DefaultMaxPixels), h.publisher, h.recorder, zaptest.NewLogger(t), opts)
	h.router = gin.New()
	handler.Register(h.router)
	return h
}

func (h *harness) do(req *http.Request) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	h.router.ServeHTTP(rr, req)
	return rr
}

// newSession opens a session and returns its id.
func (h *harness) newSession(t *testing.T) string {
	t.Helper()
	rr := h.do(httptest.NewRequest(http.MethodGet, "/history", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	id := rr.Header().Get(SessionHeader)
	require.NotEmpty(t, id)
	return id
}

func (h *harness) get(sessionID, path string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	req.Header.Set(SessionHeader, sessionID)
	return h.do(req)
}

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		img.Set(x, x%h, color.RGBA{R: 200, G: 120, B: 40, A: 255})
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

type upload struct {
	field, name string
	data        []byte
}

func pipelineRequest(t *testing.T, sessionID string, fields map[string]string, files ...upload) *http.Request {
	t.Helper()
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	for k, v := range fields {
		require.NoError(t, writer.WriteField(k, v))
	}
	for _, f := range files {
		part, err := writer.CreateFormFile(f.field, f.name)
		require.NoError(t, err)
		_, err = part.Write(f.data)
		require.NoError(t, err)
	}
	require.NoError(t, writer.Close())

	req := httptest.NewRequest(http.MethodPost, "/pipeline", body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	if sessionID != "" {
		req.Header.Set(SessionHeader, sessionID)
	}
	return req
}

type runBody struct {
	Title       string   `json:"title"`
	Ingredients string   `json:"ingredients"`
	Recipe      string   `json:"recipe"`
	Health      string   `json:"health"`
	Drink       string   `json:"drink"`
	Cuisine     string   `json:"cuisine"`
	Diet        string   `json:"dietary_preference"`
	Stages      []string `json:"stages"`
}

func TestRunPipeline_MissingAPIKey(t *testing.T) {
	h := newHarness(t, Options{})

	rr := h.do(pipelineRequest(t, "", nil, upload{formPantry, "fridge.png", pngBytes(t, 8, 8)}))

	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, MsgMissingKey, rr.Body.String())
	assert.Empty(t, h.connector.keys)
}

func TestRunPipeline_NoPhotos(t *testing.T) {
	h := newHarness(t, Options{})

	rr := h.do(pipelineRequest(t, "", map[string]string{formAPIKey: "k", formCuisine: "Thai"}))

	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, MsgNoPhotos, rr.Body.String())
	assert.Empty(t, h.connector.keys)
}

func TestRunPipeline_NotMultipart(t *testing.T) {
	h := newHarness(t, Options{})

	req := httptest.NewRequest(http.MethodPost, "/pipeline", strings.NewReader("api_key=k&cuisine=Thai"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rr := h.do(req)

	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, MsgNoPhotos, rr.Body.String())
}

func TestRunPipeline_TooManyPhotos(t *testing.T) {
	h := newHarness(t, Options{MaxImages: 1})
	img := pngBytes(t, 8, 8)

	rr := h.do(pipelineRequest(t, "", map[string]string{formAPIKey: "k"},
		upload{formPantry, "a.png", img}, upload{formPantry, "b.png", img}))

	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Contains(t, rr.Body.String(), "at most 1")
}

func TestRunPipeline_UnknownDiet(t *testing.T) {
	h := newHarness(t, Options{})

	rr := h.do(pipelineRequest(t, "", map[string]string{formAPIKey: "k", formDiet: "Carnivore"},
		upload{formPantry, "fridge.png", pngBytes(t, 8, 8)}))

	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Contains(t, rr.Body.String(), "Carnivore")
}

func TestRunPipeline_UndecodableUpload(t *testing.T) {
	h := newHarness(t, Options{})
	id := h.newSession(t)

	rr := h.do(pipelineRequest(t, id, map[string]string{formAPIKey: "k"},
		upload{formPantry, "fridge.png", pngBytes(t, 8, 8)},
		upload{formPantry, "notes.png", []byte("shopping list: milk")}))

	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Contains(t, rr.Body.String(), "notes.png")
	assert.Empty(t, h.connector.keys)
	assert.Equal(t, http.StatusNotFound, h.get(id, "/result").Code)
}

func TestRunPipeline_UndecodableHero(t *testing.T) {
	h := newHarness(t, Options{})

	rr := h.do(pipelineRequest(t, "", map[string]string{formAPIKey: "k"},
		upload{formPantry, "fridge.png", pngBytes(t, 8, 8)},
		upload{formHero, "plated.png", []byte("not a photo")}))

	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Contains(t, rr.Body.String(), `hero image "plated.png"`)
	assert.Empty(t, h.connector.keys)
}

func TestRunPipeline_UploadTooLarge(t *testing.T) {
	h := newHarness(t, Options{MaxUploadBytes: 1024})
	id := h.newSession(t)

	rr := h.do(pipelineRequest(t, id, map[string]string{formAPIKey: "k"},
		upload{formPantry, "fridge.png", bytes.Repeat([]byte{0xAB}, 4096)}))

	assert.Equal(t, http.StatusRequestEntityTooLarge, rr.Code)
	assert.Equal(t, MsgUploadTooBig, rr.Body.String())
	assert.Empty(t, h.connector.keys)
	assert.Equal(t, http.StatusNotFound, h.get(id, "/result").Code)
}

func TestRunPipeline_Success(t *testing.T) {
	h := newHarness(t, Options{})

	rr := h.do(pipelineRequest(t, "", map[string]string{formAPIKey: "user-key", formCuisine: "Greek", formDiet: "vegetarian"},
		upload{formPantry, "shelf.png", pngBytes(t, 16, 8)},
		upload{formPantry, "door.png", pngBytes(t, 8, 8)}))
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	var got runBody
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &got))
	assert.Regexp(t, `^Greek \(\d{2}:\d{2}\)$`, got.Title)
	assert.Equal(t, "eggs, spinach, feta cheese", got.Ingredients)
	assert.Equal(t, mockRecipe, got.Recipe)
	assert.Equal(t, mockReplies[kitchen.StageNutrition], got.Health)
	assert.Equal(t, mockReplies[kitchen.StagePairing], got.Drink)
	assert.Equal(t, "Greek", got.Cuisine)
	assert.Equal(t, "Vegetarian", got.Diet)
	require.Len(t, got.Stages, 4)
	assert.Equal(t, []string{"Scanning", "Drafting"}, got.Stages[:2])
	assert.ElementsMatch(t, []string{"Analyzing", "Pairing"}, got.Stages[2:])

	assert.Equal(t, []string{"user-key"}, h.connector.keys)
	assert.Equal(t, 1, h.backend.closed)
	assert.Equal(t, 4, h.recorder.stages)
	assert.Equal(t, []error{nil}, h.recorder.runs)

	// recognition sends both photos after the instructions
	var images int
	for _, p := range h.backend.partsFor(kitchen.StageRecognition) {
		if p.Image != nil {
			images++
		}
	}
	assert.Equal(t, 2, images)
	assert.Contains(t, h.backend.partsFor(kitchen.StageSynthesis)[0].Text, "Vegetarian")

	id := rr.Header().Get(SessionHeader)
	require.NotEmpty(t, id)
	cookies := rr.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, "fridge_session", cookies[0].Name)
	assert.Equal(t, id, cookies[0].Value)

	current := h.get(id, "/result")
	require.Equal(t, http.StatusOK, current.Code)
	var stored runBody
	require.NoError(t, json.Unmarshal(current.Body.Bytes(), &stored))
	assert.Equal(t, got.Title, stored.Title)
	assert.Equal(t, got.Recipe, stored.Recipe)
}

func TestRunPipeline_SessionFromCookie(t *testing.T) {
	h := newHarness(t, Options{CookieName: "fridge"})
	req := pipelineRequest(t, "", map[string]string{formAPIKey: "k"}, upload{formPantry, "a.png", pngBytes(t, 8, 8)})
	rr := h.do(req)
	require.Equal(t, http.StatusOK, rr.Code)
	cookie := rr.Result().Cookies()[0]

	next := httptest.NewRequest(http.MethodGet, "/result", nil)
	next.AddCookie(cookie)
	res := h.do(next)

	assert.Equal(t, http.StatusOK, res.Code)
	assert.Equal(t, cookie.Value, res.Header().Get(SessionHeader))
	assert.Empty(t, res.Result().Cookies())
	assert.Equal(t, 1, h.sessions.Len())
}

func TestRunPipeline_DefaultCuisineAndDiet(t *testing.T) {
	h := newHarness(t, Options{})

	rr := h.do(pipelineRequest(t, "", map[string]string{formAPIKey: "k"}, upload{formPantry, "a.png", pngBytes(t, 8, 8)}))
	require.Equal(t, http.StatusOK, rr.Code)

	var got runBody
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &got))
	assert.Regexp(t, `^Any \(\d{2}:\d{2}\)$`, got.Title)
	assert.Equal(t, "None", got.Diet)
}

func TestRunPipeline_HeroImage(t *testing.T) {
	h := newHarness(t, Options{})

	rr := h.do(pipelineRequest(t, "", map[string]string{formAPIKey: "k"},
		upload{formPantry, "a.png", pngBytes(t, 8, 8)},
		upload{formHero, "dish.png", pngBytes(t, 12, 12)}))
	require.Equal(t, http.StatusOK, rr.Code)

	parts := h.backend.partsFor(kitchen.StageSynthesis)
	require.Len(t, parts, 3)
	assert.Equal(t, "Reference Image (try to mimic it):", parts[1].Text)
	require.NotNil(t, parts[2].Image)
	assert.Equal(t, 12, parts[2].Image.Width)
}

func TestRunPipeline_ServerKeyAndKeylessBackend(t *testing.T) {
	h := newHarness(t, Options{DefaultAPIKey: "server-key"})
	rr := h.do(pipelineRequest(t, "", nil, upload{formPantry, "a.png", pngBytes(t, 8, 8)}))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, []string{"server-key"}, h.connector.keys)

	local := newHarness(t, Options{})
	local.connector.requiresKey = false
	rr = local.do(pipelineRequest(t, "", nil, upload{formPantry, "a.png", pngBytes(t, 8, 8)}))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, []string{""}, local.connector.keys)
}

func TestRunPipeline_HeaderKeyWins(t *testing.T) {
	h := newHarness(t, Options{DefaultAPIKey: "server-key"})
	req := pipelineRequest(t, "", map[string]string{formAPIKey: "form-key"}, upload{formPantry, "a.png", pngBytes(t, 8, 8)})
	req.Header.Set(APIKeyHeader, "header-key")

	rr := h.do(req)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, []string{"header-key"}, h.connector.keys)
}

func TestRunPipeline_HistoryGrowsWithEveryRun(t *testing.T) {
	h := newHarness(t, Options{})
	id := h.newSession(t)

	cuisines := []string{"Thai", "Mexican", "Italian"}
	for _, cuisine := range cuisines {
		rr := h.do(pipelineRequest(t, id, map[string]string{formAPIKey: "k", formCuisine: cuisine},
			upload{formPantry, "a.png", pngBytes(t, 8, 8)}))
		require.Equal(t, http.StatusOK, rr.Code)
	}

	rr := h.get(id, "/history")
	require.Equal(t, http.StatusOK, rr.Code)
	var items []historyItem
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &items))
	require.Len(t, items, 3)
	for i, cuisine := range cuisines {
		assert.True(t, strings.HasPrefix(items[i].Title, cuisine+" ("), items[i].Title)
		assert.Equal(t, "Recipe "+string(rune('1'+i))+": "+items[i].Title, items[i].Label)
		assert.Equal(t, mockRecipe, items[i].Content)
	}

	var current runBody
	require.NoError(t, json.Unmarshal(h.get(id, "/result").Body.Bytes(), &current))
	assert.Equal(t, "Italian", current.Cuisine)
}

func TestRunPipeline_FaultLeavesSessionUnchanged(t *testing.T) {
	h := newHarness(t, Options{})
	id := h.newSession(t)

	rr := h.do(pipelineRequest(t, id, map[string]string{formAPIKey: "k", formCuisine: "Thai"}, upload{formPantry, "a.png", pngBytes(t, 8, 8)}))
	require.Equal(t, http.StatusOK, rr.Code)

	h.backend.setErr(kitchen.StagePairing, errors.New("quota exhausted"))
	rr = h.do(pipelineRequest(t, id, map[string]string{formAPIKey: "k", formCuisine: "Mexican"}, upload{formPantry, "a.png", pngBytes(t, 8, 8)}))

	assert.Equal(t, http.StatusBadGateway, rr.Code)
	assert.Contains(t, rr.Body.String(), "Pairing failed")
	assert.Contains(t, rr.Body.String(), "quota exhausted")

	var current runBody
	require.NoError(t, json.Unmarshal(h.get(id, "/result").Body.Bytes(), &current))
	assert.Equal(t, "Thai", current.Cuisine)

	var items []historyItem
	require.NoError(t, json.Unmarshal(h.get(id, "/history").Body.Bytes(), &items))
	assert.Len(t, items, 1)

	require.Len(t, h.recorder.runs, 2)
	assert.Error(t, h.recorder.runs[1])
}

func TestRunPipeline_RecognitionFault(t *testing.T) {
	h := newHarness(t, Options{})
	h.backend.setErr(kitchen.StageRecognition, errors.New("invalid api key"))

	rr := h.do(pipelineRequest(t, "", map[string]string{formAPIKey: "bad"}, upload{formPantry, "a.png", pngBytes(t, 8, 8)}))

	assert.Equal(t, http.StatusBadGateway, rr.Code)
	assert.Contains(t, rr.Body.String(), "Scanning failed")
	assert.Nil(t, h.backend.partsFor(kitchen.StageSynthesis))
}

func TestRunPipeline_ConnectFailure(t *testing.T) {
	h := newHarness(t, Options{})
	h.connector.connectErr = errors.New("dial failed")

	rr := h.do(pipelineRequest(t, "", map[string]string{formAPIKey: "k"}, upload{formPantry, "a.png", pngBytes(t, 8, 8)}))

	assert.Equal(t, http.StatusBadGateway, rr.Code)
	assert.Contains(t, rr.Body.String(), "dial failed")
}

func TestRunPipeline_Timeout(t *testing.T) {
	h := newHarness(t, Options{Timeout: 50 * time.Millisecond})
	h.backend.block = make(chan struct{})
	id := h.newSession(t)

	rr := h.do(pipelineRequest(t, id, map[string]string{formAPIKey: "k"}, upload{formPantry, "a.png", pngBytes(t, 8, 8)}))

	assert.Equal(t, http.StatusRequestTimeout, rr.Code)
	assert.Equal(t, http.StatusNotFound, h.get(id, "/result").Code)
}

func TestRunPipeline_ConcurrentRunRejected(t *testing.T) {
	h := newHarness(t, Options{})
	release := make(chan struct{})
	h.backend.block = release
	id := h.newSession(t)

	firstReq := pipelineRequest(t, id, map[string]string{formAPIKey: "k"}, upload{formPantry, "a.png", pngBytes(t, 8, 8)})
	first := make(chan *httptest.ResponseRecorder, 1)
	go func() {
		first <- h.do(firstReq)
	}()

	select {
	case <-h.backend.entered:
	case <-time.After(5 * time.Second):
		t.Fatal("first run never reached the backend")
	}

	second := h.do(pipelineRequest(t, id, map[string]string{formAPIKey: "k"}, upload{formPantry, "a.png", pngBytes(t, 8, 8)}))
	assert.Equal(t, http.StatusConflict, second.Code)
	assert.Equal(t, MsgRunInFlight, second.Body.String())

	close(release)
	select {
	case rr := <-first:
		assert.Equal(t, http.StatusOK, rr.Code)
	case <-time.After(5 * time.Second):
		t.Fatal("first run did not finish")
	}

	var items []historyItem
	require.NoError(t, json.Unmarshal(h.get(id, "/history").Body.Bytes(), &items))
	assert.Len(t, items, 1)
}

func TestSessionsAreIsolated(t *testing.T) {
	h := newHarness(t, Options{})
	a, b := h.newSession(t), h.newSession(t)
	require.NotEqual(t, a, b)

	rr := h.do(pipelineRequest(t, a, map[string]string{formAPIKey: "k"}, upload{formPantry, "a.png", pngBytes(t, 8, 8)}))
	require.Equal(t, http.StatusOK, rr.Code)

	assert.Equal(t, http.StatusOK, h.get(a, "/result").Code)
	assert.Equal(t, http.StatusNotFound, h.get(b, "/result").Code)
	assert.Equal(t, "[]", h.get(b, "/history").Body.String())
}

func TestGetResult_Empty(t *testing.T) {
	h := newHarness(t, Options{})

	rr := h.do(httptest.NewRequest(http.MethodGet, "/result", nil))

	assert.Equal(t, http.StatusNotFound, rr.Code)
	assert.Equal(t, MsgNoResult, rr.Body.String())
}

func (h *harness) runOnce(t *testing.T) string {
	t.Helper()
	id := h.newSession(t)
	rr := h.do(pipelineRequest(t, id, map[string]string{formAPIKey: "k", formCuisine: "Greek"}, upload{formPantry, "a.png", pngBytes(t, 8, 8)}))
	require.Equal(t, http.StatusOK, rr.Code)
	return id
}

func TestExportPDF(t *testing.T) {
	h := newHarness(t, Options{})
	id := h.runOnce(t)

	rr := h.get(id, "/result/pdf")

	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "application/pdf", rr.Header().Get("Content-Type"))
	assert.Equal(t, `attachment; filename="recipe.pdf"`, rr.Header().Get("Content-Disposition"))
	assert.Equal(t, "%PDF-1.3 "+mockRecipe, rr.Body.String())
	assert.Equal(t, []string{"pdf"}, h.recorder.exports)
}

func TestExportPDF_FailureKeepsResult(t *testing.T) {
	h := newHarness(t, Options{})
	id := h.runOnce(t)
	h.publisher.err = errors.New("unsupported glyph")

	rr := h.get(id, "/result/pdf")

	assert.Equal(t, http.StatusUnprocessableEntity, rr.Code)
	assert.Equal(t, MsgPDFEncoding, rr.Body.String())
	assert.Equal(t, http.StatusOK, h.get(id, "/result").Code)
}

func TestExportPDF_NoResult(t *testing.T) {
	h := newHarness(t, Options{})

	rr := h.do(httptest.NewRequest(http.MethodGet, "/result/pdf", nil))

	assert.Equal(t, http.StatusNotFound, rr.Code)
	assert.Empty(t, h.recorder.exports)
}

func TestExportHTML(t *testing.T) {
	h := newHarness(t, Options{})
	id := h.runOnce(t)

	rr := h.get(id, "/result/html")

	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Header().Get("Content-Type"), "text/html")
	assert.Regexp(t, `<title>Greek \(\d{2}:\d{2}\)</title>`, rr.Body.String())
}

func TestEndSession(t *testing.T) {
	h := newHarness(t, Options{})
	id := h.runOnce(t)
	require.Equal(t, 1, h.sessions.Len())

	req := httptest.NewRequest(http.MethodDelete, "/session", nil)
	req.Header.Set(SessionHeader, id)
	rr := h.do(req)

	assert.Equal(t, http.StatusNoContent, rr.Code)
	assert.Equal(t, 0, h.sessions.Len())

	after := h.get(id, "/result")
	assert.Equal(t, http.StatusNotFound, after.Code)
	assert.NotEqual(t, id, after.Header().Get(SessionHeader))
}

func TestOptions(t *testing.T) {
	h := newHarness(t, Options{MaxImages: 10})

	rr := h.do(httptest.NewRequest(http.MethodGet, "/options", nil))
	require.Equal(t, http.StatusOK, rr.Code)

	var got struct {
		Diets          []string `json:"diets"`
		DefaultCuisine string   `json:"default_cuisine"`
		Model          string   `json:"model"`
		RequiresAPIKey bool     `json:"requires_api_key"`
		MaxImages      int      `json:"max_images"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &got))
	assert.Equal(t, []string{"None", "Vegetarian", "Vegan", "Keto", "Gluten-Free"}, got.Diets)
	assert.Equal(t, "Any", got.DefaultCuisine)
	assert.Equal(t, "mock-model", got.Model)
	assert.True(t, got.RequiresAPIKey)
	assert.Equal(t, 10, got.MaxImages)
	assert.Equal(t, 0, h.sessions.Len())
}

func TestHealth(t *testing.T) {
	h := newHarness(t, Options{})

	rr := h.do(httptest.NewRequest(http.MethodGet, "/healthz", nil))

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "ok", rr.Body.String())
}
