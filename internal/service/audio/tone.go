package audio

// Waveform 振荡器波形，取值与 Web Audio OscillatorType 一致。
type Waveform string

const (
	WaveSine     Waveform = "sine"
	WaveSawtooth Waveform = "sawtooth"
)

// LFO 对主振荡器做频率调制：freq(t) = base + Depth*wave(t)。
type LFO struct {
	Waveform  Waveform `json:"waveform"`
	Frequency float64  `json:"frequency"`
	Depth     float64  `json:"depth"`
}

// Envelope 增益包络，时间均相对于 Voice.Start（秒）。
// 0 → Peak 线性上升至 Attack，随后指数衰减到 Floor（于 DecayEnd）。
type Envelope struct {
	Attack   float64 `json:"attack"`
	Peak     float64 `json:"peak"`
	DecayEnd float64 `json:"decayEnd"`
	Floor    float64 `json:"floor"`
}

// Voice 单个振荡器。
type Voice struct {
	Waveform  Waveform  `json:"waveform"`
	Frequency float64   `json:"frequency"`
	Gain      float64   `json:"gain"`
	Start     float64   `json:"start"`
	Stop      float64   `json:"stop,omitempty"` // 0 表示直到 StopTone
	LFO       *LFO      `json:"lfo,omitempty"`
	Envelope  *Envelope `json:"envelope,omitempty"`
}

// Tone 一组同时调度的振荡器，浏览器端据此构建音频图。
type Tone struct {
	Name   string  `json:"name"`
	Loop   bool    `json:"loop"`
	Voices []Voice `json:"voices"`
}

// Duration 返回有限音色的时长（秒），循环音色返回 0。
func (t Tone) Duration() float64 {
	if t.Loop {
		return 0
	}
	var end float64
	for _, v := range t.Voices {
		if v.Stop > end {
			end = v.Stop
		}
	}
	return end
}

const (
	sirenBaseHz   = 800
	sirenSweepHz  = 400
	sirenLFOHz    = 2
	sirenGain     = 0.5
	chimeStagger  = 0.1
	chimeAttack   = 0.05
	chimePeak     = 0.3
	chimeDecayEnd = 0.5
	chimeFloor    = 0.01
	chimeStop     = 0.6
)

// chimeNotes C5 E5 G5 C6
var chimeNotes = []float64{523.25, 659.25, 783.99, 1046.50}

// Siren 警报：800Hz 锯齿波，2Hz 正弦 LFO 上下扫频 400Hz，持续到被停止。
func Siren() Tone {
	return Tone{
		Name: "siren",
		Loop: true,
		Voices: []Voice{{
			Waveform:  WaveSawtooth,
			Frequency: sirenBaseHz,
			Gain:      sirenGain,
			LFO:       &LFO{Waveform: WaveSine, Frequency: sirenLFOHz, Depth: sirenSweepHz},
		}},
	}
}

// Chime 登录成功提示音：上行大三和弦琶音。
func Chime() Tone {
	voices := make([]Voice, 0, len(chimeNotes))
	for i, freq := range chimeNotes {
		start := float64(i) * chimeStagger
		voices = append(voices, Voice{
			Waveform:  WaveSine,
			Frequency: freq,
			Gain:      1,
			Start:     start,
			Stop:      start + chimeStop,
			Envelope: &Envelope{
				Attack:   chimeAttack,
				Peak:     chimePeak,
				DecayEnd: chimeDecayEnd,
				Floor:    chimeFloor,
			},
		})
	}
	return Tone{Name: "chime", Voices: voices}
}

// ToneByName 按名称查找内置音色。
func ToneByName(name string) (Tone, bool) {
	switch name {
	case "siren":
		return Siren(), true
	case "chime":
		return Chime(), true
	default:
		return Tone{}, false
	}
}
