package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/zhouzirui/shame-alarm/backend/internal/config"
	"github.com/zhouzirui/shame-alarm/backend/internal/logging"
	speechmodel "github.com/zhouzirui/shame-alarm/backend/internal/model/speech"
	"github.com/zhouzirui/shame-alarm/backend/internal/service/audio"
	"github.com/zhouzirui/shame-alarm/backend/internal/service/shame"
	"github.com/zhouzirui/shame-alarm/backend/internal/service/speech"
)

const defaultTimeout = 45 * time.Second

var (
	timeout time.Duration
	verbose bool

	generateOut string

	ttsText  string
	ttsVoice string
	ttsOut   string

	toneName    string
	toneSeconds float64
	toneOut     string
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)

	if err := godotenv.Load(); err != nil {
		log.Printf("[WARN] 无法加载 .env，改用系统环境变量: %v", err)
	}

	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:          "shametester",
		Short:        "Manually exercise shame content providers and alarm tones",
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", defaultTimeout, "请求超时时间")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "输出调试日志")

	rootCmd.AddCommand(newGenerateCmd())
	rootCmd.AddCommand(newTTSCmd())
	rootCmd.AddCommand(newToneCmd())
	return rootCmd
}

func newGenerateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate one shame post with the configured providers",
		RunE:  runGenerate,
	}
	cmd.Flags().StringVar(&generateOut, "out", "", "语音输出文件路径 (默认根据格式自动生成)")
	return cmd
}

func newTTSCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tts",
		Short: "Synthesize text with Volcengine TTS",
		RunE:  runTTS,
	}
	cmd.Flags().StringVar(&ttsText, "text", "", "待合成文本")
	cmd.Flags().StringVar(&ttsVoice, "voice", "", "声音 ID 或别名，默认使用配置中的 TTSVoice")
	cmd.Flags().StringVar(&ttsOut, "out", "", "输出音频文件路径")
	_ = cmd.MarkFlagRequired("text")
	return cmd
}

func newToneCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tone",
		Short: "Render the siren or chime to a WAV file",
		RunE:  runTone,
	}
	cmd.Flags().StringVar(&toneName, "name", "siren", "音色: siren 或 chime")
	cmd.Flags().Float64Var(&toneSeconds, "seconds", 3, "循环音色的渲染时长")
	cmd.Flags().StringVar(&toneOut, "out", "", "输出文件路径 (默认 <name>.wav)")
	return cmd
}

func loadConfig() (*config.Config, *zap.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("配置加载失败: %w", err)
	}
	level := "warn"
	if verbose {
		level = "debug"
	}
	logger, err := logging.New(logging.Config{Level: level, Development: true})
	if err != nil {
		return nil, nil, err
	}
	return cfg, logger, nil
}

func runGenerate(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
	defer cancel()

	generator, err := shame.NewFromConfig(ctx, cfg, logger.Named("shame"), shame.WithTimeout(timeout))
	if err != nil {
		return err
	}

	log.Printf("开始生成: text=%s tts=%s", shame.TextProvider(cfg), shame.TTSProvider(cfg))
	started := time.Now()
	content := generator.Generate(ctx)
	log.Printf("生成完成 (%s): %q fallback=%v", time.Since(started).Round(time.Millisecond), content.Text, shame.IsFallback(content.Text))

	if !content.HasAudio() {
		log.Println("没有语音输出")
		return nil
	}

	out := generateOut
	if out == "" {
		out = fmt.Sprintf("shame-%d.%s", time.Now().Unix(), content.Clip.Format)
	}
	if err := os.WriteFile(out, content.Clip.Data, 0o644); err != nil {
		return fmt.Errorf("写入音频文件失败: %w", err)
	}
	log.Printf("语音已写入 %s (%d bytes, %s)", out, len(content.Clip.Data), content.Clip.MIMEType)
	return nil
}

func runTTS(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	if strings.TrimSpace(ttsText) == "" {
		return fmt.Errorf("TTS 模式需要通过 --text 提供待合成文本")
	}

	svc := speech.NewService(shame.SpeechModelConfig(cfg.Speech), speech.WithLogger(logger.Named("tts")))
	if !svc.Configured() {
		return fmt.Errorf("语音服务未启用，请先在环境变量中配置 SPEECH_*: %w", speech.ErrMissingCredentials)
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
	defer cancel()

	req := &speechmodel.TTSRequest{
		SessionID: fmt.Sprintf("manual-%d", time.Now().UnixNano()),
		Text:      ttsText,
		Voice:     ttsVoice,
		Language:  cfg.Speech.TTSLanguage,
		Format:    "mp3",
	}
	log.Printf("开始进行 TTS 测试: session=%s voice=%s", req.SessionID, req.Voice)

	resp, err := svc.SynthesizeSpeech(ctx, req)
	if err != nil {
		return fmt.Errorf("TTS 调用失败: %w", err)
	}

	out := ttsOut
	if out == "" {
		out = fmt.Sprintf("tts-output-%d.%s", time.Now().Unix(), resp.Format)
	}
	if err := os.WriteFile(out, resp.AudioData, 0o644); err != nil {
		return fmt.Errorf("写入音频文件失败: %w", err)
	}
	log.Printf("TTS 合成成功: 输出文件 %s, 时长=%dms", out, resp.Duration)
	return nil
}

func runTone(_ *cobra.Command, _ []string) error {
	tone, ok := audio.ToneByName(toneName)
	if !ok {
		return fmt.Errorf("未知音色 %q，可选 siren 或 chime", toneName)
	}

	out := toneOut
	if out == "" {
		out = toneName + ".wav"
	}
	wav := audio.EncodeWAV(audio.Render(tone, audio.DefaultSampleRate, toneSeconds), audio.DefaultSampleRate)
	if err := os.WriteFile(out, wav, 0o644); err != nil {
		return fmt.Errorf("写入音频文件失败: %w", err)
	}
	log.Printf("已渲染 %s 到 %s (%d bytes)", toneName, out, len(wav))
	return nil
}
