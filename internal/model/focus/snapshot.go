package focus

// Snapshot 会话控制器对外暴露的只读视图。
type Snapshot struct {
	UserID           string         `json:"userId"`
	Phase            Phase          `json:"phase"`
	ShameStage       ShameStage     `json:"shameStage,omitempty"`
	Loading          bool           `json:"loading"`
	Config           *SessionConfig `json:"config,omitempty"`
	RemainingSeconds int            `json:"remainingSeconds"`
	ShameText        string         `json:"shameText,omitempty"`
	ShameHasAudio    bool           `json:"shameHasAudio"`
	Stats            UserStats      `json:"stats"`
}
