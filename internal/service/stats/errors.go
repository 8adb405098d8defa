package stats

import "errors"

var (
	// ErrInvalidConfig 存储后端缺少必需的依赖（客户端、路径等）。
	ErrInvalidConfig = errors.New("stats: invalid backend config")
	// ErrInvalidStoreType 未知的存储类型。
	ErrInvalidStoreType = errors.New("stats: invalid store type")
	// ErrInvalidMinutes 成功记录的分钟数必须为正。
	ErrInvalidMinutes = errors.New("stats: minutes must be positive")
	// ErrInvalidProfile 用户名不能为空。
	ErrInvalidProfile = errors.New("stats: username must not be blank")
)
