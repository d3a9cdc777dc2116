// Package api implements the HTTP interface of the watch service.
//
// Callers identify themselves with headers forwarded by the gateway: an
// authenticated user sends x-user-id; a guest sends x-guest-email and, for
// anything but creation, the watch's x-deletion-token.
//
// Routes:
//
//	POST   /watches              → create a watch (seeded silently)
//	GET    /watches              → list the caller's watches
//	GET    /watches/:id          → one watch
//	PATCH  /watches/:id          → rename
//	DELETE /watches/:id          → ownership-checked delete
//	POST   /watches/:id/run      → run now, returning new listings
//	GET    /watches/:id/matches  → recent match events
//	GET    /unsubscribe?token=   → guest delete by token (POST too)
//	POST   /runs                 → run every watch (x-trigger-secret)
//	GET    /runs/last            → last batch report
//	GET    /fields?category=     → attribute paths with sample values
package api

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"jobmate/watch-service/internal/model"
	"jobmate/watch-service/internal/runner"
	"jobmate/watch-service/internal/scanner"
)

const (
	headerUserID        = "x-user-id"
	headerGuestEmail    = "x-guest-email"
	headerDeletionToken = "x-deletion-token"
	headerTriggerSecret = "x-trigger-secret"
)

// Watches is the watch lifecycle the handler exposes.
type Watches interface {
	Create(ctx context.Context, req runner.CreateRequest) (*model.Watch, error)
	Get(ctx context.Context, id string, owner model.Owner) (*model.Watch, error)
	List(ctx context.Context, owner model.Owner) ([]model.Watch, error)
	Rename(ctx context.Context, id string, owner model.Owner, name string) (*model.Watch, error)
	Delete(ctx context.Context, id string, owner model.Owner) (bool, error)
	DeleteByToken(ctx context.Context, token string) (bool, error)
	Run(ctx context.Context, id string, owner model.Owner) (*runner.RunResult, error)
	RecentMatches(ctx context.Context, id string, owner model.Owner, limit int) ([]model.MatchEvent, error)
	Fields(ctx context.Context, categories []model.Category) ([]scanner.FieldSummary, error)
	LastBatch(ctx context.Context) (*model.BatchReport, error)
}

// Trigger starts an on-demand run over every watch.
type Trigger interface {
	Trigger(ctx context.Context) (*model.BatchReport, error)
}

// Handler holds shared dependencies.
type Handler struct {
	watches Watches
	trigger Trigger
	secret  string
	log     *zap.Logger
}

// NewHandler returns a configured Handler. An empty secret disables POST /runs.
func NewHandler(watches Watches, trigger Trigger, secret string, log *zap.Logger) *Handler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Handler{watches: watches, trigger: trigger, secret: secret, log: log}
}

// RegisterRoutes mounts all watch-service routes on r.
func (h *Handler) RegisterRoutes(r gin.IRouter) {
	r.POST("/watches", h.createWatch)
	r.GET("/watches", h.listWatches)
	r.GET("/watches/:id", h.getWatch)
	r.PATCH("/watches/:id", h.renameWatch)
	r.DELETE("/watches/:id", h.deleteWatch)
	r.POST("/watches/:id/run", h.runWatch)
	r.GET("/watches/:id/matches", h.recentMatches)
	r.GET("/unsubscribe", h.unsubscribe)
	r.POST("/unsubscribe", h.unsubscribe)
	r.POST("/runs", h.runAll)
	r.GET("/runs/last", h.lastRun)
	r.GET("/fields", h.fields)
}

// ─── Request / response types ────────────────────────────────────────────────

type createWatchRequest struct {
	Name     string            `json:"name" binding:"required"`
	Category model.Category    `json:"category" binding:"required"`
	Criteria []model.Criterion `json:"criteria"`
}

type renameRequest struct {
	Name string `json:"name" binding:"required"`
}

// watchResponse exposes the deletion token once, at creation.
type watchResponse struct {
	*model.Watch
	DeletionToken string `json:"deletion_token,omitempty"`
}

// ─── Handlers ────────────────────────────────────────────────────────────────

func (h *Handler) createWatch(c *gin.Context) {
	owner := ownerFrom(c)
	if owner.IsZero() {
		jsonError(c, http.StatusUnauthorized, "missing x-user-id or x-guest-email header")
		return
	}
	var req createWatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		jsonError(c, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	w, err := h.watches.Create(c.Request.Context(), runner.CreateRequest{
		Owner:       model.Owner{UserID: owner.UserID, GuestEmail: owner.GuestEmail},
		Name:        req.Name,
		Category:    req.Category,
		Criteria:    req.Criteria,
		CreatedByIP: c.ClientIP(),
	})
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, watchResponse{Watch: w, DeletionToken: w.Owner.DeletionToken})
}

func (h *Handler) listWatches(c *gin.Context) {
	owner, ok := requireOwner(c)
	if !ok {
		return
	}
	ws, err := h.watches.List(c.Request.Context(), owner)
	if err != nil {
		h.writeError(c, err)
		return
	}
	if ws == nil {
		ws = []model.Watch{}
	}
	c.JSON(http.StatusOK, ws)
}

func (h *Handler) getWatch(c *gin.Context) {
	owner, ok := requireOwner(c)
	if !ok {
		return
	}
	w, err := h.watches.Get(c.Request.Context(), c.Param("id"), owner)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, w)
}

func (h *Handler) renameWatch(c *gin.Context) {
	owner, ok := requireOwner(c)
	if !ok {
		return
	}
	var req renameRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		jsonError(c, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	w, err := h.watches.Rename(c.Request.Context(), c.Param("id"), owner, req.Name)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, w)
}

func (h *Handler) deleteWatch(c *gin.Context) {
	owner, ok := requireOwner(c)
	if !ok {
		return
	}
	deleted, err := h.watches.Delete(c.Request.Context(), c.Param("id"), owner)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": deleted})
}

func (h *Handler) runWatch(c *gin.Context) {
	owner, ok := requireOwner(c)
	if !ok {
		return
	}
	res, err := h.watches.Run(c.Request.Context(), c.Param("id"), owner)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *Handler) recentMatches(c *gin.Context) {
	owner, ok := requireOwner(c)
	if !ok {
		return
	}
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > 500 {
			jsonError(c, http.StatusBadRequest, "limit must be an integer between 1 and 500")
			return
		}
		limit = n
	}
	events, err := h.watches.RecentMatches(c.Request.Context(), c.Param("id"), owner, limit)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, events)
}

func (h *Handler) unsubscribe(c *gin.Context) {
	token := c.Query("token")
	if token == "" {
		jsonError(c, http.StatusBadRequest, "token is required")
		return
	}
	deleted, err := h.watches.DeleteByToken(c.Request.Context(), token)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": deleted})
}

func (h *Handler) runAll(c *gin.Context) {
	if h.secret == "" || h.trigger == nil {
		jsonError(c, http.StatusServiceUnavailable, "manual run trigger is disabled")
		return
	}
	given := c.GetHeader(headerTriggerSecret)
	if subtle.ConstantTimeCompare([]byte(given), []byte(h.secret)) != 1 {
		jsonError(c, http.StatusUnauthorized, "invalid trigger secret")
		return
	}
	report, err := h.trigger.Trigger(c.Request.Context())
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

func (h *Handler) lastRun(c *gin.Context) {
	report, err := h.watches.LastBatch(c.Request.Context())
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

func (h *Handler) fields(c *gin.Context) {
	var categories []model.Category
	if raw := c.Query("category"); raw != "" {
		for _, part := range strings.Split(raw, ",") {
			cat, err := model.ParseCategory(strings.TrimSpace(part))
			if err != nil {
				jsonError(c, http.StatusBadRequest, err.Error())
				return
			}
			categories = append(categories, cat)
		}
	}
	fields, err := h.watches.Fields(c.Request.Context(), categories)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, fields)
}

// ─── Helpers ─────────────────────────────────────────────────────────────────

func ownerFrom(c *gin.Context) model.Owner {
	return model.Owner{
		UserID:        strings.TrimSpace(c.GetHeader(headerUserID)),
		GuestEmail:    strings.TrimSpace(c.GetHeader(headerGuestEmail)),
		DeletionToken: strings.TrimSpace(c.GetHeader(headerDeletionToken)),
	}
}

func requireOwner(c *gin.Context) (model.Owner, bool) {
	owner := ownerFrom(c)
	if owner.IsZero() {
		jsonError(c, http.StatusUnauthorized, "missing x-user-id header")
		return owner, false
	}
	return owner, true
}

// writeError maps domain errors to HTTP statuses.
func (h *Handler) writeError(c *gin.Context, err error) {
	var verr *model.ValidationError
	switch {
	case errors.Is(err, model.ErrNotFound):
		jsonError(c, http.StatusNotFound, "not found")
	case errors.Is(err, model.ErrForbidden):
		jsonError(c, http.StatusForbidden, "forbidden")
	case errors.Is(err, model.ErrInvalidCriteria):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "invalid criteria", "details": criteriaDetails(err)})
	case errors.As(err, &verr):
		jsonError(c, http.StatusBadRequest, verr.Msg)
	case errors.Is(err, model.ErrTransientScan):
		h.log.Warn("catalog scan failed", zap.String("path", c.FullPath()), zap.Error(err))
		jsonError(c, http.StatusServiceUnavailable, "catalog temporarily unavailable")
	case errors.Is(err, model.ErrConflict):
		jsonError(c, http.StatusConflict, "watch was modified concurrently; retry")
	default:
		h.log.Error("request failed", zap.String("path", c.FullPath()), zap.Error(err))
		jsonError(c, http.StatusInternalServerError, "internal error")
	}
}

// criteriaDetails flattens a joined criteria error into one message per criterion.
func criteriaDetails(err error) []string {
	var out []string
	var walk func(error)
	walk = func(e error) {
		if joined, ok := e.(interface{ Unwrap() []error }); ok {
			for _, inner := range joined.Unwrap() {
				walk(inner)
			}
			return
		}
		var ce *model.CriteriaError
		if errors.As(e, &ce) {
			out = append(out, ce.Error())
		}
	}
	walk(err)
	return out
}

func jsonError(c *gin.Context, code int, msg string) {
	c.AbortWithStatusJSON(code, gin.H{"error": msg})
}
