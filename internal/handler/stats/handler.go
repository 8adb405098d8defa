package stats

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/zhouzirui/shame-alarm/backend/internal/model/focus"
	"github.com/zhouzirui/shame-alarm/backend/internal/service/identity"
	statssvc "github.com/zhouzirui/shame-alarm/backend/internal/service/stats"
	"github.com/zhouzirui/shame-alarm/backend/pkg/utils"
)

// Service 统计读写。
type Service interface {
	Read(ctx context.Context, userID string) focus.UserStats
	SetSocialLinked(ctx context.Context, userID string, linked bool) focus.UserStats
	UpdateProfile(ctx context.Context, userID, username string, avatarRef *string) (focus.UserStats, error)
}

// Refresher 在统计被修改后通知对应用户的会话。
type Refresher func(ctx context.Context, userID string)

// Handler 统计与个人资料的 HTTP 处理器
type Handler struct {
	stats   Service
	refresh Refresher
	logger  *zap.Logger
}

// New 创建处理器；refresh 可为 nil。
func New(stats Service, refresh Refresher, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{stats: stats, refresh: refresh, logger: logger}
}

// RegisterRoutes 注册路由，调用方需先挂载身份中间件。
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/stats", h.handleStats)
	r.Patch("/profile", h.handleProfile)
	r.Post("/profile/social", h.handleSocial)
}

func (h *Handler) handleStats(w http.ResponseWriter, r *http.Request) {
	id, ok := identity.FromContext(r.Context())
	if !ok {
		utils.RespondError(w, http.StatusUnauthorized, "authentication required")
		return
	}
	utils.RespondJSON(w, http.StatusOK, h.stats.Read(r.Context(), id.UserID))
}

// handleProfile 修改昵称与头像
func (h *Handler) handleProfile(w http.ResponseWriter, r *http.Request) {
	id, ok := identity.FromContext(r.Context())
	if !ok {
		utils.RespondError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	var payload struct {
		Username  string  `json:"username"`
		AvatarRef *string `json:"avatarRef"`
	}
	if err := utils.DecodeJSON(r, &payload, false); err != nil {
		utils.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}

	updated, err := h.stats.UpdateProfile(r.Context(), id.UserID, payload.Username, payload.AvatarRef)
	if err != nil {
		if errors.Is(err, statssvc.ErrInvalidProfile) {
			utils.RespondError(w, http.StatusBadRequest, err.Error())
			return
		}
		h.logger.Error("update profile failed", zap.Error(err))
		utils.RespondError(w, http.StatusInternalServerError, "update profile failed")
		return
	}
	h.notify(r.Context(), id.UserID)
	utils.RespondJSON(w, http.StatusOK, updated)
}

// handleSocial 手动绑定社交账号
func (h *Handler) handleSocial(w http.ResponseWriter, r *http.Request) {
	id, ok := identity.FromContext(r.Context())
	if !ok {
		utils.RespondError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	var payload struct {
		Linked *bool `json:"linked"`
	}
	if err := utils.DecodeJSON(r, &payload, true); err != nil {
		utils.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}
	linked := true
	if payload.Linked != nil {
		linked = *payload.Linked
	}

	updated := h.stats.SetSocialLinked(r.Context(), id.UserID, linked)
	h.notify(r.Context(), id.UserID)
	utils.RespondJSON(w, http.StatusOK, updated)
}

func (h *Handler) notify(ctx context.Context, userID string) {
	if h.refresh != nil {
		h.refresh(ctx, userID)
	}
}
