package model

import "time"

type QuestionStatus string

const (
	QuestionNotStarted QuestionStatus = "NOT_STARTED"
	QuestionInProgress QuestionStatus = "IN_PROGRESS"
	QuestionCompleted  QuestionStatus = "COMPLETED"
	QuestionSkipped    QuestionStatus = "SKIPPED"
)

// QuestionProgress 单支队伍在单道题目上的计时状态，(team_id, puzzle_id) 唯一
// swagger:model QuestionProgress
type QuestionProgress struct {
	BaseModel

	TeamID   uint `gorm:"uniqueIndex:idx_team_puzzle;type:bigint unsigned;not null" json:"teamId"`
	PuzzleID uint `gorm:"uniqueIndex:idx_team_puzzle;type:bigint unsigned;not null" json:"puzzleId"`
	LevelID  uint `gorm:"index;type:bigint unsigned;not null" json:"levelId"`

	Status QuestionStatus `gorm:"type:enum('NOT_STARTED','IN_PROGRESS','COMPLETED','SKIPPED');default:'NOT_STARTED'" json:"status"`

	// TimeSpentSeconds 只在 pause/complete/skip 折算时增长，除 IN_PROGRESS 外单调不减
	TimeSpentSeconds   int        `gorm:"default:0" json:"timeSpentSeconds"`
	StartedAt          *time.Time `json:"startedAt,omitempty"` // 非空当且仅当 IN_PROGRESS
	FirstStartedAt     *time.Time `json:"firstStartedAt,omitempty"`
	CompletedAt        *time.Time `json:"completedAt,omitempty"`
	SkipCount          int        `gorm:"default:0" json:"skipCount"`
	TimePenaltySeconds int        `gorm:"default:0" json:"timePenaltySeconds"`
	Correct            bool       `gorm:"default:false" json:"correct"`
}

func (QuestionProgress) TableName() string {
	return "question_progress"
}
