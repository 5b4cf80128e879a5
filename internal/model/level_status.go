package model

import "time"

type LevelProgressStatus string

const (
	LevelNotStarted LevelProgressStatus = "NOT_STARTED"
	LevelInProgress LevelProgressStatus = "IN_PROGRESS"
	LevelCompleted  LevelProgressStatus = "COMPLETED"
)

type QualificationStatus string

const (
	QualificationPending      QualificationStatus = "PENDING"
	QualificationQualified    QualificationStatus = "QUALIFIED"
	QualificationDisqualified QualificationStatus = "DISQUALIFIED"
)

// LevelStatus 队伍在某一关卡的完成情况与晋级判定，(team_id, level_id) 唯一
// swagger:model LevelStatus
type LevelStatus struct {
	BaseModel

	TeamID  uint `gorm:"uniqueIndex:idx_team_level;type:bigint unsigned;not null" json:"teamId"`
	LevelID uint `gorm:"uniqueIndex:idx_team_level;type:bigint unsigned;not null" json:"levelId"`

	Status              LevelProgressStatus `gorm:"type:enum('NOT_STARTED','IN_PROGRESS','COMPLETED');default:'NOT_STARTED'" json:"status"`
	QualificationStatus QualificationStatus `gorm:"type:enum('PENDING','QUALIFIED','DISQUALIFIED');default:'PENDING'" json:"qualificationStatus"`

	// 完成时刻的指标快照
	Score             int     `gorm:"default:0" json:"score"`
	Accuracy          float64 `gorm:"default:0" json:"accuracy"`
	TimeTakenSeconds  int     `gorm:"default:0" json:"timeTakenSeconds"`
	HintsUsed         int     `gorm:"default:0" json:"hintsUsed"`
	QuestionsAnswered int     `gorm:"default:0" json:"questionsAnswered"`
	QuestionsCorrect  int     `gorm:"default:0" json:"questionsCorrect"`
	FailureReasons    string  `gorm:"type:text" json:"failureReasons"`

	QualificationDecidedAt *time.Time `json:"qualificationDecidedAt,omitempty"`

	WasManuallyOverridden bool       `gorm:"default:false" json:"wasManuallyOverridden"`
	OverrideBy            *uint      `gorm:"type:bigint unsigned" json:"overrideBy,omitempty"`
	OverrideReason        string     `gorm:"size:512" json:"overrideReason,omitempty"`
	OverrideAt            *time.Time `json:"overrideAt,omitempty"`
}

func (LevelStatus) TableName() string {
	return "level_statuses"
}
