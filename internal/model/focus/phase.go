package focus

// Phase 表示专注会话状态机当前所处的阶段。
type Phase string

const (
	PhaseOnboarding Phase = "onboarding"
	PhaseIdle       Phase = "idle"
	PhaseCounting   Phase = "counting"
	PhaseShaming    Phase = "shaming"
	PhaseSucceeded  Phase = "succeeded"
)

// ShameStage 羞辱流程中的子阶段，仅在 PhaseShaming 时有意义。
type ShameStage string

const (
	StageNone    ShameStage = ""
	StageAlarm   ShameStage = "alarm"
	StagePosting ShameStage = "posting"
	StagePosted  ShameStage = "posted"
)
