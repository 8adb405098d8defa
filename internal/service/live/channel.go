package live

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/zhouzirui/shame-alarm/backend/internal/model/focus"
	"github.com/zhouzirui/shame-alarm/backend/internal/service/audio"
	"github.com/zhouzirui/shame-alarm/backend/internal/service/session"
)

// 服务端下发的消息类型
const (
	TypeSnapshot = "snapshot"
	TypeAudio    = "audio"
)

// 音频指令
const (
	CommandResume    = "resume"
	CommandStartTone = "startTone"
	CommandStopTone  = "stopTone"
	CommandPlayClip  = "playClip"
)

const peerBuffer = 32

// Envelope 服务端 → 浏览器消息。
type Envelope struct {
	Type      string `json:"type"`
	Data      any    `json:"data,omitempty"`
	Timestamp int64  `json:"timestamp"`
}

// AudioCommand 浏览器端据此驱动 Web Audio。
type AudioCommand struct {
	Command string       `json:"command"`
	ID      string       `json:"id,omitempty"`
	Tone    *audio.Tone  `json:"tone,omitempty"`
	Clip    *ClipPayload `json:"clip,omitempty"`
}

// ClipPayload 音频片段，Data 以 base64 编码传输。
type ClipPayload struct {
	Format     string `json:"format"`
	MIMEType   string `json:"mimeType"`
	SampleRate int    `json:"sampleRate,omitempty"`
	Data       []byte `json:"data"`
}

// Peer 一个已连接的浏览器标签页。
type Peer struct {
	ID   string
	send chan []byte
	done chan struct{}
	once sync.Once
}

// Send 待写出的消息。
func (p *Peer) Send() <-chan []byte { return p.send }

// Done 在 Peer 被移除后关闭。
func (p *Peer) Done() <-chan struct{} { return p.done }

// Channel 单个用户的实时通道：作为 audio.Sink 把音频指令发给浏览器，
// 作为 session.Observer 推送快照，并把浏览器上报的可见性转发给会话。
type Channel struct {
	mu          sync.Mutex
	userID      string
	peers       map[string]*Peer
	watchers    map[int]chan focus.Snapshot
	nextWatcher int
	last        *focus.Snapshot
	visibility  *session.Visibility
	onAudio     func(running bool)
	now         func() time.Time
	logger      *zap.Logger
}

var (
	_ audio.Sink       = (*Channel)(nil)
	_ session.Observer = (*Channel)(nil)
)

// NewChannel 创建用户通道。
func NewChannel(userID string, logger *zap.Logger) *Channel {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Channel{
		userID:     userID,
		peers:      make(map[string]*Peer),
		watchers:   make(map[int]chan focus.Snapshot),
		visibility: session.NewVisibility(),
		now:        time.Now,
		logger:     logger.With(zap.String("user", userID)),
	}
}

// UserID 通道所属用户。
func (c *Channel) UserID() string { return c.userID }

// Visibility 浏览器上报的可见性信号。
func (c *Channel) Visibility() *session.Visibility { return c.visibility }

// OnAudioState 注册浏览器音频状态变化的回调；最后一个标签页断开时以 false 调用。
func (c *Channel) OnAudioState(fn func(running bool)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onAudio = fn
}

// Attach 登记新连接，并立即补发最近一次快照。
func (c *Channel) Attach() *Peer {
	p := &Peer{
		ID:   uuid.NewString(),
		send: make(chan []byte, peerBuffer),
		done: make(chan struct{}),
	}

	c.mu.Lock()
	c.peers[p.ID] = p
	last := c.last
	c.mu.Unlock()

	if last != nil {
		c.deliver(p, Envelope{Type: TypeSnapshot, Data: last})
	}
	c.logger.Debug("live peer attached", zap.String("peer", p.ID))
	return p
}

// Detach 移除连接。
func (c *Channel) Detach(p *Peer) {
	c.mu.Lock()
	_, ok := c.peers[p.ID]
	delete(c.peers, p.ID)
	empty := len(c.peers) == 0
	onAudio := c.onAudio
	c.mu.Unlock()

	if !ok {
		return
	}
	p.once.Do(func() { close(p.done) })
	c.logger.Debug("live peer detached", zap.String("peer", p.ID))
	if empty && onAudio != nil {
		onAudio(false)
	}
}

// Peers 当前连接数。
func (c *Channel) Peers() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.peers)
}

// ReportVisibility 转发浏览器的 visibilitychange。
func (c *Channel) ReportVisibility(hidden bool) {
	c.visibility.Publish(hidden)
}

// ReportAudioState 浏览器上报 AudioContext 状态。
func (c *Channel) ReportAudioState(state string) {
	c.mu.Lock()
	onAudio := c.onAudio
	c.mu.Unlock()

	c.logger.Debug("browser audio state", zap.String("state", state))
	if onAudio != nil {
		onAudio(state == string(audio.StateRunning))
	}
}

// Watch 订阅快照流，供 SSE 使用。返回的函数用于退订。
func (c *Channel) Watch() (<-chan focus.Snapshot, func()) {
	ch := make(chan focus.Snapshot, peerBuffer)

	c.mu.Lock()
	id := c.nextWatcher
	c.nextWatcher++
	c.watchers[id] = ch
	if c.last != nil {
		ch <- *c.last
	}
	c.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			c.mu.Lock()
			delete(c.watchers, id)
			c.mu.Unlock()
		})
	}
}

// Notify 实现 session.Observer；慢消费者的消息会被丢弃。
func (c *Channel) Notify(snapshot focus.Snapshot) {
	c.mu.Lock()
	c.last = &snapshot
	for _, w := range c.watchers {
		select {
		case w <- snapshot:
		default:
		}
	}
	c.mu.Unlock()

	c.broadcast(Envelope{Type: TypeSnapshot, Data: snapshot})
}

// Resume 实现 audio.Sink。没有连接的标签页时返回 audio.ErrNoDevice。
func (c *Channel) Resume(ctx context.Context) error {
	return c.command(ctx, AudioCommand{Command: CommandResume})
}

// StartTone 实现 audio.Sink。
func (c *Channel) StartTone(ctx context.Context, id string, tone audio.Tone) error {
	return c.command(ctx, AudioCommand{Command: CommandStartTone, ID: id, Tone: &tone})
}

// StopTone 实现 audio.Sink。
func (c *Channel) StopTone(ctx context.Context, id string) error {
	return c.command(ctx, AudioCommand{Command: CommandStopTone, ID: id})
}

// PlayClip 实现 audio.Sink。
func (c *Channel) PlayClip(ctx context.Context, clip focus.AudioClip) error {
	return c.command(ctx, AudioCommand{Command: CommandPlayClip, Clip: &ClipPayload{
		Format:     clip.Format,
		MIMEType:   clip.MIMEType,
		SampleRate: clip.SampleRate,
		Data:       clip.Data,
	}})
}

func (c *Channel) command(ctx context.Context, cmd AudioCommand) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if c.broadcast(Envelope{Type: TypeAudio, Data: cmd}) == 0 {
		return audio.ErrNoDevice
	}
	return nil
}

// broadcast 发给所有连接，返回成功入队的数量。
func (c *Channel) broadcast(env Envelope) int {
	c.mu.Lock()
	peers := make([]*Peer, 0, len(c.peers))
	for _, p := range c.peers {
		peers = append(peers, p)
	}
	c.mu.Unlock()

	sent := 0
	for _, p := range peers {
		if c.deliver(p, env) {
			sent++
		}
	}
	return sent
}

func (c *Channel) deliver(p *Peer, env Envelope) bool {
	env.Timestamp = c.now().Unix()
	payload, err := json.Marshal(env)
	if err != nil {
		c.logger.Warn("marshal live message failed", zap.Error(err))
		return false
	}
	select {
	case <-p.done:
		return false
	default:
	}
	select {
	case p.send <- payload:
		return true
	default:
		c.logger.Warn("live peer buffer full, dropping message", zap.String("peer", p.ID), zap.String("type", env.Type))
		return false
	}
}
