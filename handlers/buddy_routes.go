// handlers/buddy_routes.go
package handlers

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"buddy-vitality-service/middleware"
	"buddy-vitality-service/models"
	"buddy-vitality-service/services"
	"buddy-vitality-service/utils"
	"buddy-vitality-service/vitality"

	"github.com/gofiber/fiber/v2"
	fiberutils "github.com/gofiber/fiber/v2/utils"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
)

// AlertStreamPath authenticates from query params, so the gateway identity
// check skips it.
const AlertStreamPath = "/buddy/alerts/stream"

const (
	maxPhotoBytes   = 8 << 20
	photoTimeout    = 15 * time.Second
	sseKeepalive    = 15 * time.Second
	insightsEntries = 10
)

// PhotoUploader stores a meal photo and returns its public URL.
type PhotoUploader interface {
	Upload(ctx context.Context, key string, body []byte, contentType string) (string, error)
}

// FriendReader serves the read-only view of another owner's buddy.
type FriendReader interface {
	FriendSnapshot(ctx context.Context, ownerID string) (models.Buddy, error)
}

// BuddyHandler serves the buddy API. Photos and Validator may be nil.
type BuddyHandler struct {
	Sessions  *services.Sessions
	Store     services.BuddyGateway
	Friends   FriendReader
	Analyzer  services.FoodAnalyzer
	FoodLog   services.FoodLog
	Nutrition services.NutritionAnalyzer
	Photos    PhotoUploader
	Alerts    *services.AlertHub
	Validator middleware.TokenValidator
	Rates     vitality.Rates
	Clock     clockwork.Clock
	Logger    *zap.Logger
}

type createBuddyRequest struct {
	Name       string `json:"name" validate:"required,notblank,max=12"`
	Appearance string `json:"appearance" validate:"required,appearance"`
}

type drinkRequest struct {
	Cups int `json:"cups"`
}

type stepsRequest struct {
	Count *int `json:"count"`
}

// SetupBuddyRoutes registers the buddy API. actionLimit, when set, guards the
// care actions.
func SetupBuddyRoutes(app fiber.Router, h *BuddyHandler, actionLimit fiber.Handler) {
	if h.Clock == nil {
		h.Clock = clockwork.NewRealClock()
	}
	if h.Logger == nil {
		h.Logger = zap.NewNop()
	}

	limit := func(c *fiber.Ctx) error { return c.Next() }
	if actionLimit != nil {
		limit = actionLimit
	}

	app.Get(AlertStreamPath, middleware.SSEAuthMiddleware(h.Validator, h.Logger), h.StreamAlerts)

	buddy := app.Group("/buddy")
	buddy.Post("", h.CreateBuddy)
	buddy.Get("", h.GetBuddy)
	buddy.Post("/session", h.OpenSession)
	buddy.Delete("/session", h.CloseSession)
	buddy.Post("/reconcile", h.Reconcile)
	buddy.Post("/feed", limit, h.Feed)
	buddy.Post("/drink", limit, h.Drink)
	buddy.Post("/sleep/toggle", limit, h.ToggleSleep)
	buddy.Post("/steps", h.Steps)
	buddy.Get("/food", h.FoodHistory)
	buddy.Get("/insights", h.Insights)

	app.Get("/buddies/:ownerID", h.FriendBuddy)
}

func (h *BuddyHandler) CreateBuddy(c *fiber.Ctx) error {
	owner := middleware.UserID(c)

	var req createBuddyRequest
	if err := c.BodyParser(&req); err != nil {
		return fail(c, fiber.StatusBadRequest, "invalid request body", nil)
	}
	req.Name = strings.TrimSpace(req.Name)
	req.Appearance = strings.ToLower(strings.TrimSpace(req.Appearance))
	if err := middleware.ValidateStruct(req); err != nil {
		return fail(c, fiber.StatusBadRequest, fmt.Sprintf("name must be 1-%d characters and appearance one of %v", models.MaxNameLength, models.Appearances), nil)
	}

	b := models.NewBuddy(owner, req.Name, models.Appearance(req.Appearance), h.Clock.Now())
	created, err := h.Store.Create(c.UserContext(), b)
	if err != nil {
		return h.writeError(c, err, nil)
	}
	h.Logger.Info("buddy_created",
		zap.String("owner_id", owner),
		zap.String("buddy_id", created.ID),
		zap.String("appearance", string(created.Appearance)),
	)

	_, opened, err := h.Sessions.Open(c.UserContext(), owner, middleware.Location(c))
	if err != nil {
		// the row exists; the next request opens the session lazily
		h.Logger.Warn("session_open_after_create_failed", zap.String("owner_id", owner), zap.Error(err))
		opened = created
	}
	return h.respond(c, fiber.StatusCreated, opened, nil)
}

func (h *BuddyHandler) GetBuddy(c *fiber.Ctx) error {
	e, err := h.engine(c)
	if err != nil {
		return h.writeError(c, err, nil)
	}
	b, err := e.Reconcile(c.UserContext(), false)
	if err != nil {
		return h.writeError(c, err, e)
	}
	return h.respond(c, fiber.StatusOK, b, nil)
}

func (h *BuddyHandler) OpenSession(c *fiber.Ctx) error {
	_, b, err := h.Sessions.Open(c.UserContext(), middleware.UserID(c), middleware.Location(c))
	if err != nil {
		return h.writeError(c, err, nil)
	}
	return h.respond(c, fiber.StatusOK, b, nil)
}

func (h *BuddyHandler) CloseSession(c *fiber.Ctx) error {
	closed := h.Sessions.Close(middleware.UserID(c))
	return c.JSON(fiber.Map{"ok": true, "closed": closed})
}

// Reconcile forces a pass regardless of the minimum resolution, as on app resume.
func (h *BuddyHandler) Reconcile(c *fiber.Ctx) error {
	e, err := h.engine(c)
	if err != nil {
		return h.writeError(c, err, nil)
	}
	b, err := e.Reconcile(c.UserContext(), true)
	if err != nil {
		return h.writeError(c, err, e)
	}
	return h.respond(c, fiber.StatusOK, b, nil)
}

func (h *BuddyHandler) Feed(c *fiber.Ctx) error {
	owner := middleware.UserID(c)
	e, err := h.engine(c)
	if err != nil {
		return h.writeError(c, err, nil)
	}

	fileHeader, err := c.FormFile("photo")
	if err != nil {
		return fail(c, fiber.StatusBadRequest, "photo is required", nil)
	}
	if fileHeader.Size > maxPhotoBytes {
		return fail(c, fiber.StatusRequestEntityTooLarge, "photo is too large", nil)
	}
	file, err := fileHeader.Open()
	if err != nil {
		return fail(c, fiber.StatusBadRequest, "failed to read photo", nil)
	}
	image, err := io.ReadAll(io.LimitReader(file, maxPhotoBytes))
	file.Close()
	if err != nil {
		return fail(c, fiber.StatusBadRequest, "failed to read photo", nil)
	}

	analysis, err := h.Analyzer.Analyze(c.UserContext(), image)
	if err != nil {
		h.Logger.Warn("food_analysis_failed", zap.String("owner_id", owner), zap.Error(err))
		return fail(c, fiber.StatusBadGateway, "food analysis failed, try again", nil)
	}

	res, err := e.Feed(c.UserContext(), analysis)
	if err != nil {
		return h.writeError(c, err, e)
	}

	entry := models.FoodEntry{
		OwnerID:    owner,
		BuddyID:    res.Buddy.ID,
		Name:       services.FoodEntryName(analysis),
		IsHealthy:  analysis.IsHealthy,
		Confidence: analysis.Confidence,
		Labels:     analysis.Labels,
		HPGain:     res.HPGain,
		EatenAt:    res.At,
	}
	if url := h.uploadPhoto(owner, entry.Name, res.At, image, fileHeader.Header.Get(fiber.HeaderContentType)); url != "" {
		entry.PhotoURL = &url
	}
	recorded, err := h.FoodLog.Record(c.UserContext(), entry)
	if err != nil {
		// the feed itself already landed
		h.Logger.Warn("food_log_write_failed", zap.String("owner_id", owner), zap.Error(err))
		recorded = entry
	}

	return h.respond(c, fiber.StatusOK, res.Buddy, fiber.Map{
		"hp_gain":    res.HPGain,
		"is_healthy": analysis.IsHealthy,
		"food_entry": recorded,
	})
}

// uploadPhoto keeps a copy of the meal photo. Failures are logged and never
// block feeding.
func (h *BuddyHandler) uploadPhoto(owner, name string, at time.Time, image []byte, contentType string) string {
	if h.Photos == nil || len(image) == 0 {
		return ""
	}
	if contentType == "" {
		contentType = "image/jpeg"
	}
	ctx, cancel := context.WithTimeout(context.Background(), photoTimeout)
	defer cancel()

	url, err := h.Photos.Upload(ctx, utils.MealPhotoKey(owner, name, at), image, contentType)
	if err != nil {
		h.Logger.Warn("meal_photo_upload_failed", zap.String("owner_id", owner), zap.Error(err))
		return ""
	}
	return url
}

func (h *BuddyHandler) Drink(c *fiber.Ctx) error {
	e, err := h.engine(c)
	if err != nil {
		return h.writeError(c, err, nil)
	}
	var req drinkRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return fail(c, fiber.StatusBadRequest, "invalid request body", nil)
		}
	}
	b, err := e.Drink(c.UserContext(), req.Cups)
	if err != nil {
		return h.writeError(c, err, e)
	}
	return h.respond(c, fiber.StatusOK, b, nil)
}

func (h *BuddyHandler) ToggleSleep(c *fiber.Ctx) error {
	e, err := h.engine(c)
	if err != nil {
		return h.writeError(c, err, nil)
	}
	b, summary, err := e.ToggleSleep(c.UserContext())
	if err != nil {
		return h.writeError(c, err, e)
	}
	var extra fiber.Map
	if summary != nil {
		extra = fiber.Map{"sleep_summary": summary}
	}
	return h.respond(c, fiber.StatusOK, b, extra)
}

// Steps queues a pedometer reading. Only the newest pending reading is written.
func (h *BuddyHandler) Steps(c *fiber.Ctx) error {
	owner := middleware.UserID(c)
	var req stepsRequest
	if err := c.BodyParser(&req); err != nil || req.Count == nil {
		return fail(c, fiber.StatusBadRequest, "count is required", nil)
	}
	if _, err := h.engine(c); err != nil {
		return h.writeError(c, err, nil)
	}
	if err := h.Sessions.SubmitSteps(owner, *req.Count); err != nil {
		return h.writeError(c, err, nil)
	}
	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{"ok": true})
}

func (h *BuddyHandler) FoodHistory(c *fiber.Ctx) error {
	limit := c.QueryInt("limit", services.DefaultFoodLogLimit)
	if limit <= 0 || limit > 100 {
		limit = services.DefaultFoodLogLimit
	}
	entries, err := h.FoodLog.Recent(c.UserContext(), middleware.UserID(c), limit)
	if err != nil {
		return h.writeError(c, &services.PersistenceError{Op: "food_log", Err: err}, nil)
	}
	return c.JSON(fiber.Map{"ok": true, "entries": entries})
}

func (h *BuddyHandler) Insights(c *fiber.Ctx) error {
	entries, err := h.FoodLog.Recent(c.UserContext(), middleware.UserID(c), insightsEntries)
	if err != nil {
		return h.writeError(c, &services.PersistenceError{Op: "food_log", Err: err}, nil)
	}
	insight := h.Nutrition.AnalyzePattern(c.UserContext(), entries)
	return c.JSON(fiber.Map{"ok": true, "insight": insight})
}

func (h *BuddyHandler) FriendBuddy(c *fiber.Ctx) error {
	b, err := h.Friends.FriendSnapshot(c.UserContext(), fiberutils.CopyString(c.Params("ownerID")))
	if err != nil {
		return h.writeError(c, err, nil)
	}
	return h.respond(c, fiber.StatusOK, b, nil)
}

// StreamAlerts pushes "needs attention" events over SSE until the client leaves.
func (h *BuddyHandler) StreamAlerts(c *fiber.Ctx) error {
	owner := middleware.UserID(c)
	alerts, unsubscribe := h.Alerts.Subscribe(owner)

	c.Set("Content-Type", "text/event-stream")
	c.Set("Cache-Control", "no-cache")
	c.Set("Connection", "keep-alive")
	c.Set("X-Accel-Buffering", "no") // nginx

	done := c.Context().Done()
	c.Context().SetBodyStreamWriter(func(w *bufio.Writer) {
		defer unsubscribe()

		ticker := time.NewTicker(sseKeepalive)
		defer ticker.Stop()

		// initial keepalive
		_, _ = w.WriteString(":\n\n")
		if err := w.Flush(); err != nil {
			return
		}

		for {
			select {
			case a, ok := <-alerts:
				if !ok {
					return
				}
				payload, err := json.Marshal(a)
				if err != nil {
					continue
				}
				fmt.Fprintf(w, "event: alert\ndata: %s\n\n", payload)
				if err := w.Flush(); err != nil {
					// client disconnected
					return
				}
			case <-ticker.C:
				_, _ = w.WriteString(":\n\n")
				if err := w.Flush(); err != nil {
					return
				}
			case <-done:
				return
			}
		}
	})
	return nil
}

// engine returns the caller's session, opening one on first use.
func (h *BuddyHandler) engine(c *fiber.Ctx) (*services.Engine, error) {
	return h.Sessions.Acquire(c.UserContext(), middleware.UserID(c), middleware.Location(c))
}

func (h *BuddyHandler) respond(c *fiber.Ctx, status int, b models.Buddy, extra fiber.Map) error {
	body := fiber.Map{
		"ok":             true,
		"buddy":          b,
		"water_goal":     h.Rates.DailyWaterGoal,
		"water_goal_met": vitality.WaterGoalMet(b, h.Rates),
	}
	for k, v := range extra {
		body[k] = v
	}
	return c.Status(status).JSON(body)
}

// writeError maps engine and store errors to a status and a human-readable
// reason. The last known state rides along when there is one.
func (h *BuddyHandler) writeError(c *fiber.Ctx, err error, e *services.Engine) error {
	status := fiber.StatusInternalServerError
	reason := "something went wrong"
	switch {
	case errors.Is(err, services.ErrActionInFlight):
		status, reason = fiber.StatusConflict, "Your buddy is still busy with the last action."
	case errors.Is(err, services.ErrToggleCooldown):
		status, reason = fiber.StatusConflict, "Give your buddy a moment before toggling sleep again."
	case errors.Is(err, services.ErrStaleWrite):
		status, reason = fiber.StatusConflict, "Your buddy changed on another device. Try again."
	case errors.Is(err, services.ErrBuddyExists):
		status, reason = fiber.StatusConflict, "You already have a buddy."
	case errors.Is(err, services.ErrBuddyNotFound):
		status, reason = fiber.StatusNotFound, "No buddy yet. Create one first."
	case errors.Is(err, services.ErrNoSession):
		status, reason = fiber.StatusNotFound, "No active session."
	case errors.Is(err, services.ErrInvalidStepCount):
		status, reason = fiber.StatusBadRequest, "Step count must be zero or more."
	case services.IsTransient(err):
		status, reason = fiber.StatusServiceUnavailable, "Could not reach storage. Your buddy will catch up shortly."
	}

	if status >= fiber.StatusInternalServerError {
		h.Logger.Error("request_failed",
			zap.String("path", c.Path()),
			zap.String("owner_id", middleware.UserID(c)),
			zap.Error(err),
		)
	}

	var last *models.Buddy
	if e != nil {
		if b, ok := e.Snapshot(); ok {
			last = &b
		}
	}
	return fail(c, status, reason, last)
}

func fail(c *fiber.Ctx, status int, reason string, last *models.Buddy) error {
	body := fiber.Map{"ok": false, "reason": reason}
	if last != nil {
		body["buddy"] = last
	}
	return c.Status(status).JSON(body)
}
