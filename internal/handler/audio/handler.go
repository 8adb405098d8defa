package audio

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	audiosvc "github.com/zhouzirui/shame-alarm/backend/internal/service/audio"
	"github.com/zhouzirui/shame-alarm/backend/pkg/utils"
)

// loopSeconds 循环音色导出的时长
const loopSeconds = 2.0

// Handler 导出警报与提示音的 WAV，以及浏览器构建音频图所需的参数。
type Handler struct{}

// New 创建处理器
func New() *Handler {
	return &Handler{}
}

// RegisterRoutes 注册路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/audio/{name}.wav", h.handleWAV)
	r.Get("/audio/tones/{name}", h.handleTone)
}

func (h *Handler) handleWAV(w http.ResponseWriter, r *http.Request) {
	tone, ok := audiosvc.ToneByName(chi.URLParam(r, "name"))
	if !ok {
		utils.RespondError(w, http.StatusNotFound, "unknown tone")
		return
	}

	wav := audiosvc.EncodeWAV(audiosvc.Render(tone, audiosvc.DefaultSampleRate, loopSeconds), audiosvc.DefaultSampleRate)
	w.Header().Set("Content-Type", "audio/wav")
	w.Header().Set("Content-Length", strconv.Itoa(len(wav)))
	w.Header().Set("Cache-Control", "public, max-age=86400")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(wav)
}

func (h *Handler) handleTone(w http.ResponseWriter, r *http.Request) {
	tone, ok := audiosvc.ToneByName(chi.URLParam(r, "name"))
	if !ok {
		utils.RespondError(w, http.StatusNotFound, "unknown tone")
		return
	}
	utils.RespondJSON(w, http.StatusOK, tone)
}
