package audio

import (
	"bytes"
	"encoding/binary"
	"math"

	"github.com/zhouzirui/shame-alarm/backend/internal/model/focus"
)

// DefaultSampleRate 渲染与 Gemini TTS 输出使用的采样率。
const DefaultSampleRate = 24000

// Render 把音色渲染为单声道 PCM。循环音色渲染 loopSeconds 秒。
func Render(t Tone, sampleRate int, loopSeconds float64) []int16 {
	if sampleRate <= 0 {
		sampleRate = DefaultSampleRate
	}
	duration := t.Duration()
	if t.Loop {
		duration = loopSeconds
	}
	n := int(math.Round(duration * float64(sampleRate)))
	if n <= 0 {
		return nil
	}

	mix := make([]float64, n)
	for _, v := range t.Voices {
		renderVoice(mix, v, sampleRate)
	}

	pcm := make([]int16, n)
	for i, s := range mix {
		s = math.Max(-1, math.Min(1, s))
		pcm[i] = int16(math.Round(s * math.MaxInt16))
	}
	return pcm
}

func renderVoice(mix []float64, v Voice, sampleRate int) {
	sr := float64(sampleRate)
	first := int(v.Start * sr)
	last := len(mix)
	if v.Stop > 0 && int(v.Stop*sr) < last {
		last = int(v.Stop * sr)
	}

	var phase, lfoPhase float64
	for i := first; i < last; i++ {
		t := float64(i)/sr - v.Start
		freq := v.Frequency
		if v.LFO != nil {
			freq += v.LFO.Depth * oscillate(v.LFO.Waveform, lfoPhase)
			lfoPhase += v.LFO.Frequency / sr
		}
		gain := v.Gain
		if v.Envelope != nil {
			gain *= v.Envelope.at(t)
		}
		mix[i] += gain * oscillate(v.Waveform, phase)
		phase += freq / sr
	}
}

// oscillate 以周期为单位的相位求波形值，范围 [-1, 1]。
func oscillate(w Waveform, phase float64) float64 {
	switch w {
	case WaveSawtooth:
		return 2 * (phase - math.Floor(phase+0.5))
	default:
		return math.Sin(2 * math.Pi * phase)
	}
}

func (e Envelope) at(t float64) float64 {
	switch {
	case t < 0:
		return 0
	case t < e.Attack:
		return e.Peak * t / e.Attack
	case t < e.DecayEnd && e.Peak > 0 && e.Floor > 0:
		progress := (t - e.Attack) / (e.DecayEnd - e.Attack)
		return e.Peak * math.Pow(e.Floor/e.Peak, progress)
	default:
		return e.Floor
	}
}

// EncodeWAV 把 16 位单声道 PCM 封装为 RIFF/WAV。
func EncodeWAV(pcm []int16, sampleRate int) []byte {
	var raw bytes.Buffer
	raw.Grow(len(pcm) * 2)
	_ = binary.Write(&raw, binary.LittleEndian, pcm)
	return WrapPCM16(raw.Bytes(), sampleRate)
}

// WrapPCM16 给小端 16 位单声道 PCM 数据加上 44 字节 WAV 头。
func WrapPCM16(data []byte, sampleRate int) []byte {
	const (
		channels      = 1
		bitsPerSample = 16
	)
	blockAlign := channels * bitsPerSample / 8
	byteRate := sampleRate * blockAlign

	var buf bytes.Buffer
	buf.Grow(44 + len(data))
	buf.WriteString("RIFF")
	_ = binary.Write(&buf, binary.LittleEndian, uint32(36+len(data)))
	buf.WriteString("WAVE")
	buf.WriteString("fmt ")
	_ = binary.Write(&buf, binary.LittleEndian, uint32(16))
	_ = binary.Write(&buf, binary.LittleEndian, uint16(1)) // PCM
	_ = binary.Write(&buf, binary.LittleEndian, uint16(channels))
	_ = binary.Write(&buf, binary.LittleEndian, uint32(sampleRate))
	_ = binary.Write(&buf, binary.LittleEndian, uint32(byteRate))
	_ = binary.Write(&buf, binary.LittleEndian, uint16(blockAlign))
	_ = binary.Write(&buf, binary.LittleEndian, uint16(bitsPerSample))
	buf.WriteString("data")
	_ = binary.Write(&buf, binary.LittleEndian, uint32(len(data)))
	buf.Write(data)
	return buf.Bytes()
}

// ClipFromPCM16 把原始 PCM 包装成可直接播放的 WAV 片段。
func ClipFromPCM16(data []byte, sampleRate int) *focus.AudioClip {
	if len(data) == 0 {
		return nil
	}
	if sampleRate <= 0 {
		sampleRate = DefaultSampleRate
	}
	return &focus.AudioClip{
		Format:     "wav",
		MIMEType:   "audio/wav",
		SampleRate: sampleRate,
		Data:       WrapPCM16(data, sampleRate),
	}
}
