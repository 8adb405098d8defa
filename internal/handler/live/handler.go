package live

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/zhouzirui/shame-alarm/backend/internal/service/identity"
	livesvc "github.com/zhouzirui/shame-alarm/backend/internal/service/live"
	"github.com/zhouzirui/shame-alarm/backend/pkg/utils"
)

const (
	readTimeout  = 60 * time.Second
	pingInterval = 54 * time.Second
	writeTimeout = 10 * time.Second
)

// 浏览器上报的消息类型
const (
	msgVisibility = "visibility"
	msgAudioState = "audioState"
)

type inboundMessage struct {
	Type      string          `json:"type"`
	Data      json.RawMessage `json:"data"`
	Timestamp int64           `json:"timestamp"`
}

type visibilityData struct {
	Hidden bool `json:"hidden"`
}

type audioStateData struct {
	State string `json:"state"`
}

// Handler 浏览器实时通道：下发音频指令与快照，接收可见性与音频状态。
type Handler struct {
	hub      *livesvc.Hub
	upgrader websocket.Upgrader
	logger   *zap.Logger
}

// New 创建 websocket 处理器
func New(hub *livesvc.Hub, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		hub:    hub,
		logger: logger,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
		},
	}
}

// RegisterRoutes 注册路由，调用方需先挂载身份中间件。
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/ws", h.handleWebSocket)
}

func (h *Handler) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	id, ok := identity.FromContext(r.Context())
	if !ok {
		utils.RespondError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	channel := h.hub.Acquire(id.UserID)
	defer h.hub.Release(id.UserID)
	peer := channel.Attach()
	defer channel.Detach(peer)

	logger := h.logger.With(zap.String("user", id.UserID), zap.String("peer", peer.ID))
	logger.Info("live connection opened")

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		h.writeLoop(ctx, conn, peer, logger)
	}()

	conn.SetReadDeadline(time.Now().Add(readTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(readTimeout))
	})

	h.readLoop(conn, channel, logger)

	cancel()
	<-writerDone
	logger.Info("live connection closed")
}

// readLoop 读取浏览器消息直到连接断开。
func (h *Handler) readLoop(conn *websocket.Conn, channel *livesvc.Channel, logger *zap.Logger) {
	for {
		var msg inboundMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Debug("live read error", zap.Error(err))
			}
			return
		}
		conn.SetReadDeadline(time.Now().Add(readTimeout))
		h.handleMessage(channel, &msg, logger)
	}
}

func (h *Handler) handleMessage(channel *livesvc.Channel, msg *inboundMessage, logger *zap.Logger) {
	switch msg.Type {
	case msgVisibility:
		var data visibilityData
		if err := json.Unmarshal(msg.Data, &data); err != nil {
			logger.Debug("invalid visibility payload", zap.Error(err))
			return
		}
		channel.ReportVisibility(data.Hidden)
	case msgAudioState:
		var data audioStateData
		if err := json.Unmarshal(msg.Data, &data); err != nil {
			logger.Debug("invalid audio state payload", zap.Error(err))
			return
		}
		channel.ReportAudioState(data.State)
	default:
		logger.Debug("unsupported live message", zap.String("type", msg.Type))
	}
}

// writeLoop 唯一的写协程：转发通道消息并定时发送 ping。
func (h *Handler) writeLoop(ctx context.Context, conn *websocket.Conn, peer *livesvc.Peer, logger *zap.Logger) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
			return
		case <-peer.Done():
			return
		case payload := <-peer.Send():
			conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				logger.Debug("live write failed", zap.Error(err))
				conn.Close()
				return
			}
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeTimeout)); err != nil {
				conn.Close()
				return
			}
		}
	}
}
