package focus

import (
	"errors"
	"fmt"
)

// ErrInvalidDuration 表示专注时长不合法。
var ErrInvalidDuration = errors.New("duration must be a positive number of minutes")

// SessionConfig 用户开始专注时提交的配置，在整个会话期间不可变。
type SessionConfig struct {
	DurationMinutes int  `json:"durationMinutes"`
	StrictMode      bool `json:"strictMode"`
}

// Validate 校验时长，maxMinutes <= 0 表示不设上限。
func (c SessionConfig) Validate(maxMinutes int) error {
	if c.DurationMinutes <= 0 {
		return ErrInvalidDuration
	}
	if maxMinutes > 0 && c.DurationMinutes > maxMinutes {
		return fmt.Errorf("%w: %d exceeds limit %d", ErrInvalidDuration, c.DurationMinutes, maxMinutes)
	}
	return nil
}

// Seconds returns the countdown length.
func (c SessionConfig) Seconds() int {
	return c.DurationMinutes * 60
}
