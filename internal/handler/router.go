package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	audiohandler "github.com/zhouzirui/shame-alarm/backend/internal/handler/audio"
	livehandler "github.com/zhouzirui/shame-alarm/backend/internal/handler/live"
	sessionhandler "github.com/zhouzirui/shame-alarm/backend/internal/handler/session"
	shamehandler "github.com/zhouzirui/shame-alarm/backend/internal/handler/shame"
	statshandler "github.com/zhouzirui/shame-alarm/backend/internal/handler/stats"
	middlewarePkg "github.com/zhouzirui/shame-alarm/backend/internal/middleware"
	"github.com/zhouzirui/shame-alarm/backend/internal/service/identity"
	"github.com/zhouzirui/shame-alarm/backend/internal/service/live"
	"github.com/zhouzirui/shame-alarm/backend/internal/service/session"
	"github.com/zhouzirui/shame-alarm/backend/pkg/utils"
)

// Deps 路由依赖的核心服务。
type Deps struct {
	Resolver  identity.Resolver
	Registry  *session.Registry
	Hub       *live.Hub
	Stats     statshandler.Service
	Generator shamehandler.Generator
	Providers shamehandler.Providers
	Logger    *zap.Logger
}

// NewRouter wires HTTP routes to core services.
func NewRouter(deps Deps) http.Handler {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middlewarePkg.CORS)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		utils.RespondJSON(w, http.StatusOK, map[string]any{
			"status":   "ok",
			"sessions": deps.Registry.Len(),
		})
	})

	r.Route("/api", func(api chi.Router) {
		// 无需身份的资源
		audiohandler.New().RegisterRoutes(api)
		if deps.Generator != nil {
			shamehandler.New(deps.Generator, deps.Providers).RegisterRoutes(api)
		}

		api.Group(func(authed chi.Router) {
			authed.Use(middlewarePkg.Identity(deps.Resolver, logger.Named("identity")))

			var watcher sessionhandler.Watcher
			if deps.Hub != nil {
				watcher = deps.Hub
				livehandler.New(deps.Hub, logger.Named("live")).RegisterRoutes(authed)
			}
			sessionhandler.New(deps.Registry, watcher, logger.Named("session")).RegisterRoutes(authed)
			statshandler.New(deps.Stats, refresher(deps.Registry), logger.Named("stats")).RegisterRoutes(authed)
		})
	})

	return r
}

// refresher 统计被修改后刷新已建立会话的快照。
func refresher(registry *session.Registry) statshandler.Refresher {
	return func(ctx context.Context, userID string) {
		if ctrl, err := registry.Get(userID); err == nil {
			ctrl.Refresh(ctx)
		}
	}
}
