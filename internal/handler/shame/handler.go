package shame

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/zhouzirui/shame-alarm/backend/internal/model/focus"
	"github.com/zhouzirui/shame-alarm/backend/pkg/utils"
)

// Generator 抽象羞辱内容生成，便于测试与替换实现
type Generator interface {
	Generate(ctx context.Context) focus.ShameContent
}

// Providers 当前生效的文本与语音提供方，用于健康检查。
type Providers struct {
	Text   string `json:"text"`
	Speech string `json:"speech"`
}

// Handler 羞辱内容预览的HTTP处理器
type Handler struct {
	generator Generator
	providers Providers
}

// New 创建处理器
func New(generator Generator, providers Providers) *Handler {
	return &Handler{generator: generator, providers: providers}
}

// RegisterRoutes 注册羞辱内容相关的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/shame", func(sr chi.Router) {
		sr.Post("/preview", h.handlePreview)
		sr.Get("/health", h.handleHealth)
	})
}

type clipResponse struct {
	Format     string `json:"format"`
	MIMEType   string `json:"mimeType"`
	SampleRate int    `json:"sampleRate,omitempty"`
	Data       []byte `json:"data"`
}

type previewResponse struct {
	Text string        `json:"text"`
	Clip *clipResponse `json:"clip,omitempty"`
}

// handlePreview 生成一条羞辱内容但不影响任何会话
func (h *Handler) handlePreview(w http.ResponseWriter, r *http.Request) {
	content := h.generator.Generate(r.Context())

	resp := previewResponse{Text: content.Text}
	if content.HasAudio() {
		resp.Clip = &clipResponse{
			Format:     content.Clip.Format,
			MIMEType:   content.Clip.MIMEType,
			SampleRate: content.Clip.SampleRate,
			Data:       content.Clip.Data,
		}
	}
	utils.RespondJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	utils.RespondJSON(w, http.StatusOK, map[string]any{
		"status":    "healthy",
		"service":   "shame",
		"providers": h.providers,
	})
}
