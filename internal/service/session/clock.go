package session

import "time"

// Timer 可取消的定时回调句柄。
type Timer interface {
	Stop() bool
}

// Clock 时间源，测试中用可手动推进的实现替换。
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) Timer
}

type realClock struct{}

// RealClock 基于 time 包的时钟。
func RealClock() Clock { return realClock{} }

func (realClock) Now() time.Time { return time.Now() }

func (realClock) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}
