// Package api exposes HTTP handlers for the progression service.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"example.com/progression/internal/auth"
	"example.com/progression/internal/domain"
)

const defaultLeaderboardLimit = 10

// NutritionTracker records daily intake counters that the daily reset clears.
type NutritionTracker interface {
	AddIntake(ctx context.Context, userID string, day domain.Day, calories, proteinG, waterML int) (domain.NutritionCounters, error)
}

// Handler coordinates HTTP requests with the domain service.
type Handler struct {
	service     *domain.Service
	leaderboard *domain.Leaderboard
	nutrition   NutritionTracker
	logger      *slog.Logger
}

// NewHandler builds a Handler. nutrition may be nil, in which case the
// intake endpoint is not registered.
func NewHandler(service *domain.Service, leaderboard *domain.Leaderboard, nutrition NutritionTracker, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{service: service, leaderboard: leaderboard, nutrition: nutrition, logger: logger}
}

// RegisterRoutes wires endpoints to the mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/v1/progression/stats", h.stats)
	mux.HandleFunc("/v1/progression/workouts", h.workouts)
	mux.HandleFunc("/v1/progression/achievements", h.achievements)
	mux.HandleFunc("/v1/progression/weekly-goal", h.weeklyGoal)
	mux.HandleFunc("/v1/progression/leaderboard", h.leaderboardTop)
	mux.HandleFunc("/v1/progression/daily-reset", h.dailyReset)
	if h.nutrition != nil {
		mux.HandleFunc("/v1/progression/nutrition", h.nutritionIntake)
	}
	mux.HandleFunc("/healthz", healthz)
}

// healthz reports a simple OK status for container health checks.
func healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (h *Handler) stats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}
	claims, ok := authorize(w, r, auth.ScopeProgressionRead, auth.ScopeProgressionWrite)
	if !ok {
		return
	}

	record, err := h.service.Stats(r.Context(), claims.Subject)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toStatsView(*record))
}

func (h *Handler) workouts(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}
	claims, ok := authorize(w, r, auth.ScopeProgressionWrite)
	if !ok {
		return
	}

	var req LogWorkoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "unable to parse body")
		return
	}
	if err := req.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, "validation_failed", err.Error())
		return
	}

	outcome, err := h.service.OnWorkoutLogged(r.Context(), domain.WorkoutLogged{
		UserID:         claims.Subject,
		CaloriesBurned: req.CaloriesBurned,
		XPReward:       req.XPReward,
		IdempotencyKey: requestKey(r.Header.Get("Idempotency-Key")),
	})
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	resp := ProgressResponse{
		Stats:    toStatsView(outcome.Record),
		LevelUp:  outcome.LeveledUp,
		NewLevel: outcome.NewLevel,
		Unlocked: []AchievementView{},
		Replay:   outcome.Replayed,
	}
	if outcome.Replayed {
		writeJSON(w, http.StatusOK, resp)
		return
	}

	unlocked, err := h.service.UnlockEarned(r.Context(), claims.Subject)
	if err != nil {
		// The workout is committed; catalog unlocks are retried on the next event.
		h.logger.Warn("automatic achievement unlock failed", "user_id", claims.Subject, "error", err)
	}
	for _, u := range unlocked {
		resp.Stats = toStatsView(u.Record)
		resp.LevelUp = resp.LevelUp || u.LeveledUp
		resp.NewLevel = u.NewLevel
		resp.Unlocked = append(resp.Unlocked, toAchievementView(u.Record.Achievements[len(u.Record.Achievements)-1]))
	}

	writeJSON(w, http.StatusCreated, resp)
}

func (h *Handler) achievements(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		h.listAchievements(w, r)
	case http.MethodPost:
		h.unlockAchievement(w, r)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
	}
}

func (h *Handler) listAchievements(w http.ResponseWriter, r *http.Request) {
	claims, ok := authorize(w, r, auth.ScopeProgressionRead, auth.ScopeProgressionWrite)
	if !ok {
		return
	}

	record, err := h.service.Stats(r.Context(), claims.Subject)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	unlockedAt := make(map[string]time.Time, len(record.Achievements))
	for _, a := range record.Achievements {
		unlockedAt[a.AchievementID] = a.UnlockedAt
	}

	defs := h.service.Catalog().Definitions()
	items := make([]CatalogItemView, 0, len(defs))
	for _, def := range defs {
		item := CatalogItemView{
			AchievementID: def.ID,
			Name:          def.Name,
			Description:   def.Description,
			Points:        def.Points,
		}
		if at, ok := unlockedAt[def.ID]; ok {
			item.Unlocked = true
			item.UnlockedAt = &at
		}
		items = append(items, item)
	}
	writeJSON(w, http.StatusOK, CatalogResponse{Items: items})
}

func (h *Handler) unlockAchievement(w http.ResponseWriter, r *http.Request) {
	claims, ok := authorize(w, r, auth.ScopeProgressionWrite)
	if !ok {
		return
	}

	var req UnlockAchievementRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "unable to parse body")
		return
	}
	if err := req.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, "validation_failed", err.Error())
		return
	}

	var (
		outcome *domain.Outcome
		err     error
	)
	if req.catalogOnly() {
		outcome, err = h.service.UnlockByID(r.Context(), claims.Subject, req.AchievementID)
	} else {
		outcome, err = h.service.OnAchievementCondition(r.Context(), claims.Subject, req.definition())
	}
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	achievements := outcome.Record.Achievements
	writeJSON(w, http.StatusOK, ProgressResponse{
		Stats:    toStatsView(outcome.Record),
		LevelUp:  outcome.LeveledUp,
		NewLevel: outcome.NewLevel,
		Unlocked: []AchievementView{toAchievementView(achievements[len(achievements)-1])},
	})
}

func (h *Handler) weeklyGoal(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPut {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}
	claims, ok := authorize(w, r, auth.ScopeProgressionWrite)
	if !ok {
		return
	}

	var req WeeklyGoalRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "unable to parse body")
		return
	}

	record, err := h.service.SetWeeklyGoal(r.Context(), claims.Subject, req.WeeklyGoal)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toStatsView(*record))
}

func (h *Handler) leaderboardTop(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}
	if _, ok := authorize(w, r, auth.ScopeProgressionRead, auth.ScopeProgressionWrite); !ok {
		return
	}

	limit := defaultLeaderboardLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "validation_failed", "limit must be an integer")
			return
		}
		limit = parsed
	}

	records, err := h.leaderboard.TopN(r.Context(), limit)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	items := make([]LeaderboardEntryView, 0, len(records))
	for i, rec := range records {
		items = append(items, LeaderboardEntryView{
			Rank:          i + 1,
			UserID:        rec.UserID,
			Level:         rec.Level,
			XP:            rec.XP,
			TotalWorkouts: rec.TotalWorkouts,
			CurrentStreak: rec.CurrentStreak,
		})
	}
	writeJSON(w, http.StatusOK, LeaderboardResponse{Items: items})
}

func (h *Handler) dailyReset(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}
	if _, ok := authorize(w, r, auth.ScopeProgressionAdmin); !ok {
		return
	}

	report, err := h.service.ResetDailyTrackers(r.Context())
	if err != nil {
		h.logger.Error("daily reset failed", "day", report.Day.String(), "error", err)
		writeError(w, http.StatusInternalServerError, "server_error", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, DailyResetResponse{
		Day:       report.Day.String(),
		Skipped:   report.Skipped,
		Resetters: report.Resetters,
	})
}

func (h *Handler) nutritionIntake(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}
	claims, ok := authorize(w, r, auth.ScopeProgressionWrite)
	if !ok {
		return
	}

	var req NutritionIntakeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "unable to parse body")
		return
	}
	if err := req.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, "validation_failed", err.Error())
		return
	}

	counters, err := h.nutrition.AddIntake(r.Context(), claims.Subject, h.service.Today(), req.Calories, req.ProteinG, req.WaterML)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, NutritionView{
		Day:      counters.Day.String(),
		Calories: counters.Calories,
		ProteinG: counters.ProteinG,
		WaterML:  counters.WaterML,
	})
}

// requestKey namespaces a client Idempotency-Key among the user's applied keys.
func requestKey(header string) string {
	header = strings.TrimSpace(header)
	if header == "" {
		return ""
	}
	return "request:" + header
}

// authorize resolves the caller's claims for a route needing any of scopes
// and writes the 401 or 403 itself when that fails.
func authorize(w http.ResponseWriter, r *http.Request, scopes ...string) (*auth.Claims, bool) {
	claims, err := auth.Require(r.Context(), scopes...)
	switch {
	case errors.Is(err, auth.ErrForbidden):
		writeError(w, http.StatusForbidden, "forbidden", "scope "+scopes[0]+" required")
		return nil, false
	case err != nil:
		writeError(w, http.StatusUnauthorized, "unauthorized", err.Error())
		return nil, false
	}
	return claims, true
}

func (h *Handler) writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrInvalidAmount),
		errors.Is(err, domain.ErrInvalidWeeklyGoal),
		errors.Is(err, domain.ErrInvalidLimit),
		errors.Is(err, domain.ErrInvalidAchievement),
		errors.Is(err, domain.ErrMissingUserID):
		writeError(w, http.StatusBadRequest, "validation_failed", err.Error())
	case errors.Is(err, domain.ErrUnknownAchievement):
		writeError(w, http.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, domain.ErrAlreadyUnlocked):
		writeError(w, http.StatusConflict, "already_unlocked", err.Error())
	case errors.Is(err, domain.ErrOutOfOrderActivity):
		writeError(w, http.StatusConflict, "out_of_order", err.Error())
	case errors.Is(err, domain.ErrContentionExceeded):
		w.Header().Set("Retry-After", "1")
		writeError(w, http.StatusServiceUnavailable, "contention", err.Error())
	case errors.Is(err, domain.ErrCorruptState):
		h.logger.Error("corrupt progression state", "error", err)
		writeError(w, http.StatusInternalServerError, "corrupt_state", "progression record is corrupt")
	default:
		h.logger.Error("request failed", "error", err)
		writeError(w, http.StatusInternalServerError, "server_error", err.Error())
	}
}

func writeError(w http.ResponseWriter, status int, code, detail string) {
	payload := map[string]string{
		"type":   code,
		"detail": detail,
	}
	writeJSON(w, status, payload)
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
