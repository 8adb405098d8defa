package stats

import (
	"cloud.google.com/go/civil"
)

// nextStreak 根据上次专注日期计算新的连续天数：
// 同一天不变，恰好前一天加一，其余情况重置为 1。
func nextStreak(current int, last *civil.Date, today civil.Date) int {
	if last == nil {
		return 1
	}
	switch {
	case *last == today:
		// 同日羞辱清零后再成功，保持为 0
		return current
	case last.AddDays(1) == today:
		return current + 1
	default:
		return 1
	}
}
