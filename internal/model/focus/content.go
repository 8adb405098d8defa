package focus

// AudioClip 已解码、可直接播放的音频片段。
type AudioClip struct {
	Format     string `json:"format"`     // mp3, wav
	MIMEType   string `json:"mimeType"`   // audio/mpeg, audio/wav
	SampleRate int    `json:"sampleRate"` // 0 表示未知
	Data       []byte `json:"-"`
}

// ShameContent 一次会话对应的羞辱文案以及可选的语音。
type ShameContent struct {
	Text string     `json:"text"`
	Clip *AudioClip `json:"-"`
	// Fallback 文案模型调用失败、改用了内置文案。未配置模型时为 false。
	Fallback bool `json:"-"`
}

// HasAudio reports whether a spoken clip accompanies the text.
func (c ShameContent) HasAudio() bool {
	return c.Clip != nil && len(c.Clip.Data) > 0
}
