package model

const (
	AuditQuestionStarted   = "question_started"
	AuditQuestionPaused    = "question_paused"
	AuditQuestionResumed   = "question_resumed"
	AuditQuestionCompleted = "question_completed"
	AuditQuestionSkipped   = "question_skipped"
	AuditQuestionNavigated = "question_navigated"
	AuditHintUsed          = "hint_used"
	AuditSessionEnded      = "session_ended"
	AuditLevelQualified    = "level_qualification"
	AuditOverrideApplied   = "qualification_override"
)

const (
	ActorTeam   = "team"
	ActorAdmin  = "admin"
	ActorSystem = "system"
)

// AuditEvent 审计流水，只追加、不修改、不删除
// swagger:model AuditEvent
type AuditEvent struct {
	UUIDBase

	TeamID    uint   `gorm:"index;type:bigint unsigned;not null" json:"teamId"`
	PuzzleID  *uint  `gorm:"type:bigint unsigned" json:"puzzleId,omitempty"`
	LevelID   *uint  `gorm:"type:bigint unsigned" json:"levelId,omitempty"`
	EventType string `gorm:"size:64;index;not null" json:"eventType"`

	TimeBefore     int    `gorm:"default:0" json:"timeBefore"`
	TimeAfter      int    `gorm:"default:0" json:"timeAfter"`
	PreviousStatus string `gorm:"size:32" json:"previousStatus"`
	NewStatus      string `gorm:"size:32" json:"newStatus"`

	Metadata string `gorm:"type:json" json:"metadata,omitempty"`
	Actor    string `gorm:"size:16;not null" json:"actor"`
	ActorID  uint   `gorm:"type:bigint unsigned" json:"actorId"`
}

func (AuditEvent) TableName() string {
	return "audit_events"
}
