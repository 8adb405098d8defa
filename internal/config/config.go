package config

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/cloudwego/eino-ext/components/model/ark"
	"github.com/cloudwego/eino/components/model"
)

// Config 聚合整个服务的配置项。
type Config struct {
	Server   ServerConfig
	Log      LogConfig
	AI       AIConfig
	Gemini   GeminiConfig
	Speech   SpeechConfig
	Shame    ShameConfig
	Store    StoreConfig
	Supabase SupabaseConfig
	Auth     AuthConfig
	Session  SessionConfig
}

// Load 从环境变量加载配置。
func Load() (*Config, error) {
	server, err := loadServerConfig()
	if err != nil {
		return nil, err
	}

	logCfg, err := loadLogConfig()
	if err != nil {
		return nil, err
	}

	ai, err := loadAIConfig()
	if err != nil {
		return nil, err
	}

	speech, err := loadSpeechConfig()
	if err != nil {
		return nil, err
	}

	shame, err := loadShameConfig()
	if err != nil {
		return nil, err
	}

	store, err := loadStoreConfig()
	if err != nil {
		return nil, err
	}

	auth, err := loadAuthConfig()
	if err != nil {
		return nil, err
	}

	session, err := loadSessionConfig()
	if err != nil {
		return nil, err
	}

	return &Config{
		Server:   server,
		Log:      logCfg,
		AI:       ai,
		Gemini:   loadGeminiConfig(),
		Speech:   speech,
		Shame:    shame,
		Store:    store,
		Supabase: loadSupabaseConfig(),
		Auth:     auth,
		Session:  session,
	}, nil
}

// ServerConfig 描述 HTTP 服务配置。
type ServerConfig struct {
	Addr string
}

// loadServerConfig 解析服务器监听地址。
func loadServerConfig() (ServerConfig, error) {
	port := strings.TrimSpace(os.Getenv("PORT"))
	if port == "" {
		port = "8080"
	}

	if strings.Contains(port, ":") {
		// 允许用户直接传入 ":8080" 或 "127.0.0.1:8080"。
		return ServerConfig{Addr: port}, nil
	}

	if strings.Contains(port, " ") {
		return ServerConfig{}, fmt.Errorf("invalid PORT value: %q", port)
	}

	return ServerConfig{Addr: ":" + port}, nil
}

// LogConfig 日志配置。
type LogConfig struct {
	Level       string
	Development bool
}

func loadLogConfig() (LogConfig, error) {
	dev, err := parseBoolEnv("LOG_DEVELOPMENT", false)
	if err != nil {
		return LogConfig{}, err
	}
	return LogConfig{
		Level:       getEnvOrDefault("LOG_LEVEL", "info"),
		Development: dev,
	}, nil
}

// AIConfig 描述方舟大模型相关配置。
type AIConfig struct {
	APIKey      string
	AccessKey   string
	SecretKey   string
	Model       string
	BaseURL     string
	Region      string
	Temperature *float64
	TopP        *float64
	MaxTokens   *int
}

// Enabled 表示是否提供了必需的密钥。
func (c AIConfig) Enabled() bool {
	return c.Model != "" && (c.APIKey != "" || (c.AccessKey != "" && c.SecretKey != ""))
}

// NewChatModel 使用配置创建一个模型实例。temperature 为空时使用 fallbackTemperature。
func (c AIConfig) NewChatModel(ctx context.Context, fallbackTemperature float64) (model.ChatModel, error) {
	if !c.Enabled() {
		return nil, fmt.Errorf("Ark 凭证或模型配置缺失，至少提供 ARK_API_KEY + Model 或 AK/SK 组合")
	}

	temp := float32(fallbackTemperature)
	if c.Temperature != nil {
		temp = float32(*c.Temperature)
	}

	var topP *float32
	if c.TopP != nil {
		val := float32(*c.TopP)
		topP = &val
	}

	var maxTokens *int
	if c.MaxTokens != nil {
		val := *c.MaxTokens
		maxTokens = &val
	}

	cfg := &ark.ChatModelConfig{
		BaseURL:     c.BaseURL,
		Region:      c.Region,
		APIKey:      c.APIKey,
		AccessKey:   c.AccessKey,
		SecretKey:   c.SecretKey,
		Model:       c.Model,
		MaxTokens:   maxTokens,
		Temperature: &temp,
		TopP:        topP,
	}

	return ark.NewChatModel(ctx, cfg)
}

func loadAIConfig() (AIConfig, error) {
	temperature, err := parseOptionalFloatEnv("ARK_TEMPERATURE")
	if err != nil {
		return AIConfig{}, err
	}

	topP, err := parseOptionalFloatEnv("ARK_TOP_P")
	if err != nil {
		return AIConfig{}, err
	}

	maxTokens, err := parseOptionalIntEnv("ARK_MAX_TOKENS")
	if err != nil {
		return AIConfig{}, err
	}

	return AIConfig{
		APIKey:      strings.TrimSpace(os.Getenv("ARK_API_KEY")),
		AccessKey:   strings.TrimSpace(os.Getenv("ARK_ACCESS_KEY")),
		SecretKey:   strings.TrimSpace(os.Getenv("ARK_SECRET_KEY")),
		Model:       strings.TrimSpace(os.Getenv("Model")),
		BaseURL:     getEnvOrDefault("ARK_BASE_URL", "https://ark.cn-beijing.volces.com/api/v3"),
		Region:      getEnvOrDefault("ARK_REGION", "cn-beijing"),
		Temperature: temperature,
		TopP:        topP,
		MaxTokens:   maxTokens,
	}, nil
}

// GeminiConfig 描述 Gemini 文本与语音模型配置。
type GeminiConfig struct {
	APIKey    string
	TextModel string
	TTSModel  string
	Voice     string
}

// Enabled 表示是否配置了 Gemini 密钥。
func (c GeminiConfig) Enabled() bool {
	return c.APIKey != ""
}

func loadGeminiConfig() GeminiConfig {
	apiKey := strings.TrimSpace(os.Getenv("GEMINI_API_KEY"))
	if apiKey == "" {
		// 兼容前端项目沿用的 API_KEY 变量
		apiKey = strings.TrimSpace(os.Getenv("API_KEY"))
	}
	return GeminiConfig{
		APIKey:    apiKey,
		TextModel: getEnvOrDefault("GEMINI_TEXT_MODEL", "gemini-2.5-flash"),
		TTSModel:  getEnvOrDefault("GEMINI_TTS_MODEL", "gemini-2.5-flash-preview-tts"),
		Voice:     getEnvOrDefault("GEMINI_VOICE", "Fenrir"),
	}
}

// SpeechConfig 描述火山引擎语音合成配置
type SpeechConfig struct {
	AppID       string
	AccessToken string
	APIKey      string
	TTSVoice    string
	TTSSpeed    float32
	TTSVolume   float32
	TTSLanguage string
	Timeout     int
	Enabled     bool
}

func loadSpeechConfig() (SpeechConfig, error) {
	timeout, err := parseOptionalIntEnv("SPEECH_TIMEOUT")
	if err != nil {
		return SpeechConfig{}, err
	}
	timeoutSeconds := 30 // 默认30秒
	if timeout != nil {
		timeoutSeconds = *timeout
	}

	speed, err := parseOptionalFloat32Env("SPEECH_TTS_SPEED")
	if err != nil {
		return SpeechConfig{}, err
	}
	ttsSpeed := float32(1.0)
	if speed != nil {
		ttsSpeed = *speed
	}

	volume, err := parseOptionalFloat32Env("SPEECH_TTS_VOLUME")
	if err != nil {
		return SpeechConfig{}, err
	}
	ttsVolume := float32(1.0)
	if volume != nil {
		ttsVolume = *volume
	}

	appID := strings.TrimSpace(os.Getenv("SPEECH_APP_ID"))

	accessToken := strings.TrimSpace(os.Getenv("SPEECH_ACCESS_TOKEN"))
	apiKey := strings.TrimSpace(os.Getenv("SPEECH_API_KEY"))
	if accessToken == "" {
		accessToken = apiKey
	}

	// 如果没有专门的语音配置，尝试使用AI配置
	if accessToken == "" {
		accessToken = strings.TrimSpace(os.Getenv("ARK_API_KEY"))
		apiKey = accessToken
	}

	return SpeechConfig{
		AppID:       appID,
		AccessToken: accessToken,
		APIKey:      apiKey,
		TTSVoice:    getEnvOrDefault("SPEECH_TTS_VOICE", "en_male_glen_emo_v2_mars_bigtts"),
		TTSSpeed:    ttsSpeed,
		TTSVolume:   ttsVolume,
		TTSLanguage: getEnvOrDefault("SPEECH_TTS_LANGUAGE", "en-US"),
		Timeout:     timeoutSeconds,
		Enabled:     appID != "" && accessToken != "",
	}, nil
}

// ShameConfig 羞辱内容生成的提供方选择。
type ShameConfig struct {
	TextProvider string // auto, ark, gemini, none
	TTSProvider  string // auto, gemini, volcengine, none
	Temperature  float64
}

func loadShameConfig() (ShameConfig, error) {
	temperature := 1.5
	if override, err := parseOptionalFloatEnv("SHAME_TEMPERATURE"); err != nil {
		return ShameConfig{}, err
	} else if override != nil {
		temperature = *override
	}

	text := strings.ToLower(getEnvOrDefault("SHAME_TEXT_PROVIDER", "auto"))
	switch text {
	case "auto", "ark", "gemini", "none":
	default:
		return ShameConfig{}, fmt.Errorf("invalid SHAME_TEXT_PROVIDER value %q", text)
	}

	tts := strings.ToLower(getEnvOrDefault("SHAME_TTS_PROVIDER", "auto"))
	switch tts {
	case "auto", "gemini", "volcengine", "none":
	default:
		return ShameConfig{}, fmt.Errorf("invalid SHAME_TTS_PROVIDER value %q", tts)
	}

	return ShameConfig{TextProvider: text, TTSProvider: tts, Temperature: temperature}, nil
}

// StoreConfig 统计数据存储配置。
type StoreConfig struct {
	Type       string // memory, redis, supabase, sqlite
	RedisURL   string
	RedisTTL   time.Duration
	SQLitePath string
	Location   *time.Location
}

func loadStoreConfig() (StoreConfig, error) {
	ttlHours, err := parseOptionalIntEnv("STATS_REDIS_TTL_HOURS")
	if err != nil {
		return StoreConfig{}, err
	}
	var ttl time.Duration
	if ttlHours != nil && *ttlHours > 0 {
		ttl = time.Duration(*ttlHours) * time.Hour
	}

	tz := getEnvOrDefault("STATS_TIMEZONE", "UTC")
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return StoreConfig{}, fmt.Errorf("invalid STATS_TIMEZONE value %q: %w", tz, err)
	}

	return StoreConfig{
		Type:       strings.ToLower(getEnvOrDefault("STATS_STORE", "memory")),
		RedisURL:   getEnvOrDefault("REDIS_URL", "redis://localhost:6379/0"),
		RedisTTL:   ttl,
		SQLitePath: getEnvOrDefault("SQLITE_PATH", "data/shame-alarm.db"),
		Location:   loc,
	}, nil
}

// SupabaseConfig Supabase 项目配置，同时用于鉴权与统计存储。
type SupabaseConfig struct {
	URL     string
	AnonKey string
}

// Enabled 与前端保持一致：URL 指向 supabase.co 且 key 形如 JWT。
func (c SupabaseConfig) Enabled() bool {
	return strings.Contains(c.URL, "supabase.co") && strings.HasPrefix(c.AnonKey, "ey")
}

func loadSupabaseConfig() SupabaseConfig {
	return SupabaseConfig{
		URL:     strings.TrimSpace(os.Getenv("SUPABASE_URL")),
		AnonKey: strings.TrimSpace(os.Getenv("SUPABASE_ANON_KEY")),
	}
}

// AuthConfig 身份解析配置。
type AuthConfig struct {
	// AllowHeaderIdentity 在启用 Supabase 时仍接受 X-User-ID 请求头，仅供本地调试。
	AllowHeaderIdentity bool
}

func loadAuthConfig() (AuthConfig, error) {
	allow, err := parseBoolEnv("AUTH_ALLOW_HEADER_IDENTITY", false)
	if err != nil {
		return AuthConfig{}, err
	}
	return AuthConfig{AllowHeaderIdentity: allow}, nil
}

// SessionConfig 专注会话相关限制。
type SessionConfig struct {
	MaxMinutes   int
	StatsTimeout time.Duration
}

func loadSessionConfig() (SessionConfig, error) {
	maxMinutes := 180
	if override, err := parseOptionalIntEnv("SESSION_MAX_MINUTES"); err != nil {
		return SessionConfig{}, err
	} else if override != nil {
		maxMinutes = *override
	}

	statsTimeout := 5 * time.Second
	if override, err := parseOptionalIntEnv("SESSION_STATS_TIMEOUT"); err != nil {
		return SessionConfig{}, err
	} else if override != nil && *override > 0 {
		statsTimeout = time.Duration(*override) * time.Second
	}

	return SessionConfig{MaxMinutes: maxMinutes, StatsTimeout: statsTimeout}, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func parseBoolEnv(key string, defaultValue bool) (bool, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return defaultValue, nil
	}

	val, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("invalid %s value %q: %w", key, raw, err)
	}
	return val, nil
}

func parseOptionalFloatEnv(key string) (*float64, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return nil, nil
	}

	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}

	val, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	return &val, nil
}

func parseOptionalIntEnv(key string) (*int, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return nil, nil
	}

	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}

	val, err := strconv.Atoi(value)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	return &val, nil
}

func parseOptionalFloat32Env(key string) (*float32, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return nil, nil
	}

	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}

	val, err := strconv.ParseFloat(value, 32)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	result := float32(val)
	return &result, nil
}
