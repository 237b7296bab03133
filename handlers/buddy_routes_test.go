package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"buddy-vitality-service/cache"
	"buddy-vitality-service/middleware"
	"buddy-vitality-service/models"
	"buddy-vitality-service/services"
	"buddy-vitality-service/vitality"

	"github.com/gofiber/fiber/v2"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var t0 = time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

const owner = "user-123"

type stubAnalyzer struct {
	result services.FoodAnalysis
	err    error
}

func (a stubAnalyzer) Analyze(context.Context, []byte) (services.FoodAnalysis, error) {
	return a.result, a.err
}

type recordingUploader struct {
	mu   sync.Mutex
	keys []string
	err  error
}

func (u *recordingUploader) Upload(_ context.Context, key string, _ []byte, _ string) (string, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.err != nil {
		return "", u.err
	}
	u.keys = append(u.keys, key)
	return "https://cdn.example/" + key, nil
}

type apiResponse struct {
	OK           bool                   `json:"ok"`
	Reason       string                 `json:"reason"`
	Buddy        models.Buddy           `json:"buddy"`
	WaterGoal    int                    `json:"water_goal"`
	WaterGoalMet bool                   `json:"water_goal_met"`
	HPGain       int                    `json:"hp_gain"`
	FoodEntry    *models.FoodEntry      `json:"food_entry"`
	SleepSummary *vitality.SleepSummary `json:"sleep_summary"`
	Entries      []models.FoodEntry     `json:"entries"`
	Insight      *services.NutritionInsight
}

type testAPI struct {
	app      *fiber.App
	clock    *clockwork.FakeClock
	sessions *services.Sessions
	handler  *BuddyHandler
	photos   *recordingUploader
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	clock := clockwork.NewFakeClockAt(t0)
	gw := services.NewCachedGateway(services.NewMemoryBuddyStore(), cache.NewMemorySnapshotCache(time.Minute), nil)
	hub := services.NewAlertHub()
	sessions := services.NewSessions(gw, services.EngineConfig{Clock: clock, Notifier: hub}, nil)
	photos := &recordingUploader{}

	h := &BuddyHandler{
		Sessions:  sessions,
		Store:     gw,
		Friends:   gw,
		Analyzer:  stubAnalyzer{result: services.FoodAnalysis{IsHealthy: true, Confidence: 0.9, Labels: []string{"green salad"}}},
		FoodLog:   services.NewMemoryFoodLog(),
		Nutrition: services.MockNutritionAnalyzer{},
		Photos:    photos,
		Alerts:    hub,
		Rates:     vitality.DefaultRates(),
		Clock:     clock,
	}

	app := fiber.New()
	app.Use(middleware.UserContextMiddleware("/buddy", zap.NewNop(), AlertStreamPath))
	SetupBuddyRoutes(app, h, nil)
	SetupSystemRoutes(app, sessions)
	t.Cleanup(sessions.CloseAll)
	return &testAPI{app: app, clock: clock, sessions: sessions, handler: h, photos: photos}
}

func (a *testAPI) call(t *testing.T, method, path, user string, body any) (int, apiResponse) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if user != "" {
		req.Header.Set("X-User-ID", user)
	}
	return a.send(t, req)
}

func (a *testAPI) send(t *testing.T, req *http.Request) (int, apiResponse) {
	t.Helper()
	resp, err := a.app.Test(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	var out apiResponse
	data, _ := io.ReadAll(resp.Body)
	if len(data) > 0 {
		require.NoError(t, json.Unmarshal(data, &out), string(data))
	}
	return resp.StatusCode, out
}

func (a *testAPI) feedRequest(t *testing.T, user string) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	part, err := w.CreateFormFile("photo", "lunch.jpg")
	require.NoError(t, err)
	_, _ = part.Write([]byte("fake-jpeg"))
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, "/buddy/feed", &buf)
	req.Header.Set("Content-Type", w.FormDataContentType())
	req.Header.Set("X-User-ID", user)
	return req
}

func (a *testAPI) create(t *testing.T) {
	t.Helper()
	code, res := a.call(t, http.MethodPost, "/buddy", owner, fiber.Map{"name": "Mochi", "appearance": "batman"})
	require.Equal(t, fiber.StatusCreated, code, res.Reason)
}

func TestCreateBuddy(t *testing.T) {
	api := newTestAPI(t)

	code, res := api.call(t, http.MethodPost, "/buddy", owner, fiber.Map{"name": "  Mochi ", "appearance": "Batman"})
	require.Equal(t, fiber.StatusCreated, code)
	assert.True(t, res.OK)
	assert.Equal(t, "Mochi", res.Buddy.Name)
	assert.Equal(t, models.AppearanceBatman, res.Buddy.Appearance)
	assert.Equal(t, 100, res.Buddy.HP)
	assert.Equal(t, 8, res.WaterGoal)
	assert.Equal(t, 1, api.sessions.Len(), "creation opens the session")

	code, res = api.call(t, http.MethodPost, "/buddy", owner, fiber.Map{"name": "Again", "appearance": "white"})
	assert.Equal(t, fiber.StatusConflict, code)
	assert.False(t, res.OK)

	tests := []struct {
		name string
		body fiber.Map
	}{
		{"name too long", fiber.Map{"name": "Thirteenchars", "appearance": "white"}},
		{"blank name", fiber.Map{"name": "   ", "appearance": "white"}},
		{"unknown appearance", fiber.Map{"name": "Pip", "appearance": "pink"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, res := api.call(t, http.MethodPost, "/buddy", "someone-else", tt.body)
			assert.Equal(t, fiber.StatusBadRequest, code)
			assert.NotEmpty(t, res.Reason)
		})
	}
}

func TestRoutesRequireUser(t *testing.T) {
	api := newTestAPI(t)
	code, _ := api.call(t, http.MethodGet, "/buddy", "", nil)
	assert.Equal(t, fiber.StatusUnauthorized, code)
}

func TestGetBuddy_NoneYet(t *testing.T) {
	api := newTestAPI(t)
	code, res := api.call(t, http.MethodGet, "/buddy", owner, nil)
	assert.Equal(t, fiber.StatusNotFound, code)
	assert.False(t, res.OK)
}

func TestGetBuddy_ReconcilesOnRead(t *testing.T) {
	api := newTestAPI(t)
	api.create(t)

	api.clock.Advance(8 * time.Hour)
	code, res := api.call(t, http.MethodGet, "/buddy", owner, nil)
	require.Equal(t, fiber.StatusOK, code)
	assert.Equal(t, 72, res.Buddy.HP)
	assert.Equal(t, 94, res.Buddy.Energy)
}

func TestFeed(t *testing.T) {
	api := newTestAPI(t)
	api.create(t)
	api.clock.Advance(8 * time.Hour)

	code, res := api.send(t, api.feedRequest(t, owner))
	require.Equal(t, fiber.StatusOK, code, res.Reason)
	assert.Equal(t, 87, res.Buddy.HP, "72 after decay, then +15")
	assert.Equal(t, 15, res.HPGain)
	require.NotNil(t, res.FoodEntry)
	assert.Equal(t, "Green Salad", res.FoodEntry.Name)
	require.NotNil(t, res.FoodEntry.PhotoURL)
	assert.Equal(t, "https://cdn.example/meals/user-123/green-salad-1773162000.jpg", *res.FoodEntry.PhotoURL)

	code, res = api.call(t, http.MethodGet, "/buddy/food", owner, nil)
	require.Equal(t, fiber.StatusOK, code)
	require.Len(t, res.Entries, 1)
	assert.Equal(t, 15, res.Entries[0].HPGain)

	code, res = api.call(t, http.MethodGet, "/buddy/insights", owner, nil)
	require.Equal(t, fiber.StatusOK, code)
	require.NotNil(t, res.Insight)
	assert.Equal(t, 100.0, res.Insight.HealthScore)
}

func TestFeed_PhotoFailureDoesNotBlock(t *testing.T) {
	api := newTestAPI(t)
	api.create(t)
	api.photos.err = errors.New("bucket unavailable")

	code, res := api.send(t, api.feedRequest(t, owner))
	require.Equal(t, fiber.StatusOK, code)
	require.NotNil(t, res.FoodEntry)
	assert.Nil(t, res.FoodEntry.PhotoURL)
}

func TestFeed_Errors(t *testing.T) {
	api := newTestAPI(t)
	api.create(t)

	code, _ := api.call(t, http.MethodPost, "/buddy/feed", owner, nil)
	assert.Equal(t, fiber.StatusBadRequest, code, "photo is required")

	api.handler.Analyzer = stubAnalyzer{err: errors.New("model offline")}
	code, res := api.send(t, api.feedRequest(t, owner))
	assert.Equal(t, fiber.StatusBadGateway, code)
	assert.False(t, res.OK)
}

func TestDrink(t *testing.T) {
	api := newTestAPI(t)
	api.create(t)
	api.clock.Advance(8 * time.Hour)

	code, res := api.call(t, http.MethodPost, "/buddy/drink", owner, fiber.Map{"cups": 3})
	require.Equal(t, fiber.StatusOK, code)
	assert.Equal(t, 78, res.Buddy.HP)
	assert.Equal(t, 3, res.Buddy.WaterConsumed)
	assert.False(t, res.WaterGoalMet)

	code, res = api.call(t, http.MethodPost, "/buddy/drink", owner, nil)
	require.Equal(t, fiber.StatusOK, code)
	assert.Equal(t, 4, res.Buddy.WaterConsumed, "no body counts as one cup")

	code, res = api.call(t, http.MethodPost, "/buddy/drink", owner, fiber.Map{"cups": 4})
	require.Equal(t, fiber.StatusOK, code)
	assert.True(t, res.WaterGoalMet)
}

func TestToggleSleep(t *testing.T) {
	api := newTestAPI(t)
	api.create(t)

	code, res := api.call(t, http.MethodPost, "/buddy/sleep/toggle", owner, nil)
	require.Equal(t, fiber.StatusOK, code)
	assert.True(t, res.Buddy.IsSleeping)
	assert.Nil(t, res.SleepSummary)

	code, res = api.call(t, http.MethodPost, "/buddy/sleep/toggle", owner, nil)
	assert.Equal(t, fiber.StatusConflict, code)
	assert.True(t, res.Buddy.IsSleeping, "last known state rides along")

	api.clock.Advance(7 * time.Hour)
	code, res = api.call(t, http.MethodPost, "/buddy/sleep/toggle", owner, nil)
	require.Equal(t, fiber.StatusOK, code)
	assert.False(t, res.Buddy.IsSleeping)
	require.NotNil(t, res.SleepSummary)
	assert.InDelta(t, 7.0, res.SleepSummary.HoursSlept, 1e-9)
	assert.True(t, res.SleepSummary.Restful)
}

func TestSteps(t *testing.T) {
	api := newTestAPI(t)
	api.create(t)

	code, _ := api.call(t, http.MethodPost, "/buddy/steps", owner, fiber.Map{"count": 1200})
	require.Equal(t, fiber.StatusAccepted, code)
	api.sessions.WaitSteps(owner)

	code, res := api.call(t, http.MethodGet, "/buddy", owner, nil)
	require.Equal(t, fiber.StatusOK, code)
	assert.Equal(t, 1200, res.Buddy.StepCount)
	assert.Equal(t, 100, res.Buddy.HP, "steps never touch HP")

	code, _ = api.call(t, http.MethodPost, "/buddy/steps", owner, fiber.Map{"count": -5})
	assert.Equal(t, fiber.StatusBadRequest, code)
	code, _ = api.call(t, http.MethodPost, "/buddy/steps", owner, fiber.Map{})
	assert.Equal(t, fiber.StatusBadRequest, code)
}

func TestSessionLifecycle(t *testing.T) {
	api := newTestAPI(t)
	api.create(t)

	code, _ := api.call(t, http.MethodDelete, "/buddy/session", owner, nil)
	require.Equal(t, fiber.StatusOK, code)
	assert.Zero(t, api.sessions.Len())

	api.clock.Advance(2 * time.Hour)
	code, res := api.call(t, http.MethodPost, "/buddy/session", owner, nil)
	require.Equal(t, fiber.StatusOK, code)
	assert.Equal(t, 99, res.Buddy.HP)
	assert.Equal(t, 1, api.sessions.Len())

	code, res = api.call(t, http.MethodPost, "/buddy/reconcile", owner, nil)
	require.Equal(t, fiber.StatusOK, code)
	assert.Equal(t, 99, res.Buddy.HP)
}

func TestFriendBuddy(t *testing.T) {
	api := newTestAPI(t)
	api.create(t)

	code, res := api.call(t, http.MethodGet, "/buddies/"+owner, "friend-1", nil)
	require.Equal(t, fiber.StatusOK, code)
	assert.Equal(t, "Mochi", res.Buddy.Name)

	code, _ = api.call(t, http.MethodGet, "/buddies/nobody", "friend-1", nil)
	assert.Equal(t, fiber.StatusNotFound, code)
}

func TestOwnersWithSameLengthIDsStayApart(t *testing.T) {
	api := newTestAPI(t)
	api.create(t)
	const other = "user-456"
	code, res := api.call(t, http.MethodPost, "/buddy", other, fiber.Map{"name": "Pico", "appearance": "black"})
	require.Equal(t, fiber.StatusCreated, code, res.Reason)

	for _, user := range []string{owner, other} {
		code, res = api.call(t, http.MethodPost, "/buddy/session", user, nil)
		require.Equal(t, fiber.StatusOK, code, res.Reason)
	}

	for i := 0; i < 3; i++ {
		code, res = api.call(t, http.MethodGet, "/buddy", "friend-1", nil)
		assert.Equal(t, fiber.StatusNotFound, code, "a caller without a buddy never sees another one")

		code, res = api.call(t, http.MethodGet, "/buddy", owner, nil)
		require.Equal(t, fiber.StatusOK, code)
		assert.Equal(t, "Mochi", res.Buddy.Name)
		assert.Equal(t, owner, res.Buddy.OwnerID)

		code, res = api.call(t, http.MethodGet, "/buddies/"+other, owner, nil)
		require.Equal(t, fiber.StatusOK, code)
		assert.Equal(t, "Pico", res.Buddy.Name)

		code, res = api.call(t, http.MethodGet, "/buddy", other, nil)
		require.Equal(t, fiber.StatusOK, code)
		assert.Equal(t, "Pico", res.Buddy.Name)
		assert.Equal(t, other, res.Buddy.OwnerID)
	}
	assert.Equal(t, 2, api.sessions.Len())
}

func TestHealth(t *testing.T) {
	api := newTestAPI(t)
	resp, err := api.app.Test(httptest.NewRequest(http.MethodGet, "/health", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	data, _ := io.ReadAll(resp.Body)
	assert.True(t, strings.Contains(string(data), `"status":"ok"`))
}
