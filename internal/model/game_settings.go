package model

// GameSettings 计时引擎的运行参数，由配置注入（支持热更新），不做隐式全局查询
type GameSettings struct {
	SkipPenaltySeconds        int `json:"skipPenaltySeconds"`
	MaxSkipsPerTeam           int `json:"maxSkipsPerTeam"`
	DefaultHintPenaltySeconds int `json:"defaultHintPenaltySeconds"`
}

// WithDefaults 缺省值兜底，零值配置不会让罚时与上限失效
func (g GameSettings) WithDefaults() GameSettings {
	if g.SkipPenaltySeconds <= 0 {
		g.SkipPenaltySeconds = 300
	}
	if g.MaxSkipsPerTeam <= 0 {
		g.MaxSkipsPerTeam = 3
	}
	if g.DefaultHintPenaltySeconds <= 0 {
		g.DefaultHintPenaltySeconds = 60
	}
	return g
}
