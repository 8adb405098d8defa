package session

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/zhouzirui/shame-alarm/backend/internal/model/focus"
	"github.com/zhouzirui/shame-alarm/backend/internal/service/identity"
	sessionsvc "github.com/zhouzirui/shame-alarm/backend/internal/service/session"
	"github.com/zhouzirui/shame-alarm/backend/pkg/utils"
)

const heartbeatInterval = 15 * time.Second

// Watcher 提供某个用户的快照流。
type Watcher interface {
	Watch(userID string) (<-chan focus.Snapshot, func())
}

// Handler 会话与身份事件的 HTTP 处理器。
type Handler struct {
	registry *sessionsvc.Registry
	watcher  Watcher
	logger   *zap.Logger
}

// New 创建会话处理器；watcher 为 nil 时不提供事件流。
func New(registry *sessionsvc.Registry, watcher Watcher, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{registry: registry, watcher: watcher, logger: logger}
}

// RegisterRoutes 注册路由，调用方需先挂载身份中间件。
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/identity/session", h.handleEstablish)
	r.Delete("/identity/session", h.handleClear)

	r.Route("/session", func(sr chi.Router) {
		sr.Get("/", h.handleSnapshot)
		sr.Post("/start", h.handleStart)
		sr.Post("/cancel", h.handleCancel)
		sr.Post("/reset", h.handleReset)
		sr.Post("/visibility", h.handleVisibility)
		sr.Get("/events", h.handleEvents)
	})
}

type transitionResponse struct {
	Applied  bool           `json:"applied"`
	Snapshot focus.Snapshot `json:"snapshot"`
}

// handleEstablish 身份建立事件
func (h *Handler) handleEstablish(w http.ResponseWriter, r *http.Request) {
	id, ok := identity.FromContext(r.Context())
	if !ok {
		utils.RespondError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	_, snap, applied, err := h.registry.Establish(r.Context(), id)
	if err != nil {
		h.respondSessionError(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, transitionResponse{Applied: applied, Snapshot: snap})
}

// handleClear 身份清除事件
func (h *Handler) handleClear(w http.ResponseWriter, r *http.Request) {
	id, ok := identity.FromContext(r.Context())
	if !ok {
		utils.RespondError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	snap, err := h.registry.Clear(id.UserID)
	if err != nil {
		h.respondSessionError(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, transitionResponse{Applied: true, Snapshot: snap})
}

func (h *Handler) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	ctrl, ok := h.controller(w, r)
	if !ok {
		return
	}
	utils.RespondJSON(w, http.StatusOK, ctrl.Snapshot())
}

func (h *Handler) handleStart(w http.ResponseWriter, r *http.Request) {
	ctrl, ok := h.controller(w, r)
	if !ok {
		return
	}

	var cfg focus.SessionConfig
	if err := utils.DecodeJSON(r, &cfg, false); err != nil {
		utils.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}

	// 内容生成可能耗时较长，不随请求取消
	snap, applied, err := ctrl.Start(context.WithoutCancel(r.Context()), cfg)
	if err != nil {
		if errors.Is(err, focus.ErrInvalidDuration) {
			utils.RespondError(w, http.StatusBadRequest, err.Error())
			return
		}
		h.logger.Error("start session failed", zap.Error(err))
		utils.RespondError(w, http.StatusInternalServerError, "start failed")
		return
	}
	utils.RespondJSON(w, http.StatusOK, transitionResponse{Applied: applied, Snapshot: snap})
}

func (h *Handler) handleCancel(w http.ResponseWriter, r *http.Request) {
	ctrl, ok := h.controller(w, r)
	if !ok {
		return
	}
	snap, applied := ctrl.Cancel()
	utils.RespondJSON(w, http.StatusOK, transitionResponse{Applied: applied, Snapshot: snap})
}

func (h *Handler) handleReset(w http.ResponseWriter, r *http.Request) {
	ctrl, ok := h.controller(w, r)
	if !ok {
		return
	}
	snap, applied := ctrl.Reset()
	utils.RespondJSON(w, http.StatusOK, transitionResponse{Applied: applied, Snapshot: snap})
}

// handleVisibility 无法使用 websocket 的客户端通过此接口上报可见性
func (h *Handler) handleVisibility(w http.ResponseWriter, r *http.Request) {
	ctrl, ok := h.controller(w, r)
	if !ok {
		return
	}

	var payload struct {
		Hidden *bool `json:"hidden"`
	}
	if err := utils.DecodeJSON(r, &payload, false); err != nil {
		utils.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if payload.Hidden == nil {
		utils.RespondError(w, http.StatusBadRequest, "hidden is required")
		return
	}

	ctrl.Visibility().Publish(*payload.Hidden)
	utils.RespondJSON(w, http.StatusOK, ctrl.Snapshot())
}

// handleEvents 以 SSE 推送快照
func (h *Handler) handleEvents(w http.ResponseWriter, r *http.Request) {
	ctrl, ok := h.controller(w, r)
	if !ok {
		return
	}
	if h.watcher == nil {
		utils.RespondError(w, http.StatusServiceUnavailable, "event stream unavailable")
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		utils.RespondError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	updates, stop := h.watcher.Watch(ctrl.UserID())
	defer stop()

	utils.SetupSSEHeaders(w)
	if err := utils.SendSSEEvent(w, flusher, "snapshot", ctrl.Snapshot()); err != nil {
		return
	}

	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case snap := <-updates:
			if err := utils.SendSSEEvent(w, flusher, "snapshot", snap); err != nil {
				h.logger.Debug("sse write failed", zap.Error(err))
				return
			}
		case <-ticker.C:
			if err := utils.SendSSEComment(w, flusher, "keepalive"); err != nil {
				return
			}
		}
	}
}

// controller 取出当前用户已建立的控制器；未建立时响应 409。
func (h *Handler) controller(w http.ResponseWriter, r *http.Request) (*sessionsvc.Controller, bool) {
	id, ok := identity.FromContext(r.Context())
	if !ok {
		utils.RespondError(w, http.StatusUnauthorized, "authentication required")
		return nil, false
	}
	ctrl, err := h.registry.Get(id.UserID)
	if err != nil {
		h.respondSessionError(w, err)
		return nil, false
	}
	return ctrl, true
}

func (h *Handler) respondSessionError(w http.ResponseWriter, err error) {
	if errors.Is(err, sessionsvc.ErrNoSession) {
		utils.RespondError(w, http.StatusConflict, "session not established")
		return
	}
	h.logger.Error("session request failed", zap.Error(err))
	utils.RespondError(w, http.StatusInternalServerError, "internal error")
}
