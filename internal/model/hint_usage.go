package model

import "time"

// HintUsage 提示使用流水，只追加；(team_id, hint_id) 唯一
// swagger:model HintUsage
type HintUsage struct {
	BaseModel

	TeamID         uint      `gorm:"uniqueIndex:idx_team_hint;type:bigint unsigned;not null" json:"teamId"`
	HintID         uint      `gorm:"uniqueIndex:idx_team_hint;type:bigint unsigned;not null" json:"hintId"`
	PuzzleID       uint      `gorm:"index;type:bigint unsigned;not null" json:"puzzleId"`
	LevelID        uint      `gorm:"index;type:bigint unsigned;not null" json:"levelId"`
	SequenceNumber int       `json:"sequenceNumber"`
	PenaltySeconds int       `json:"penaltySeconds"`
	UsedAt         time.Time `json:"usedAt"`
}

func (HintUsage) TableName() string {
	return "hint_usages"
}
