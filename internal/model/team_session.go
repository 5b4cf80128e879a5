package model

import "time"

type SessionStatus string

const (
	SessionNotStarted SessionStatus = "NOT_STARTED"
	SessionActive     SessionStatus = "ACTIVE"
	SessionPaused     SessionStatus = "PAUSED"
	SessionCompleted  SessionStatus = "COMPLETED"
)

// TeamSession 每队一行，缓存各题进度的聚合值
// swagger:model TeamSession
type TeamSession struct {
	BaseModel

	TeamID uint          `gorm:"uniqueIndex;type:bigint unsigned;not null" json:"teamId"`
	Status SessionStatus `gorm:"type:enum('NOT_STARTED','ACTIVE','PAUSED','COMPLETED');default:'NOT_STARTED'" json:"status"`

	SessionStart *time.Time `json:"sessionStart,omitempty"`
	SessionEnd   *time.Time `json:"sessionEnd,omitempty"`

	// CurrentPuzzleID 单活跃题指针，与进度行在同一事务内更新
	CurrentPuzzleID *uint `gorm:"type:bigint unsigned" json:"currentPuzzleId,omitempty"`

	QuestionsCompleted  int `gorm:"default:0" json:"questionsCompleted"`
	QuestionsSkipped    int `gorm:"default:0" json:"questionsSkipped"`
	TotalPenaltySeconds int `gorm:"default:0" json:"totalPenaltySeconds"`
	ActiveTimeSeconds   int `gorm:"default:0" json:"activeTimeSeconds"`
}

func (TeamSession) TableName() string {
	return "team_sessions"
}

// EffectiveTimeSeconds 排名依据：有效耗时 = 活跃耗时 + 全部罚时
func (s *TeamSession) EffectiveTimeSeconds() int {
	return s.ActiveTimeSeconds + s.TotalPenaltySeconds
}
