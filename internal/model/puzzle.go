package model

// swagger:model Level
type Level struct {
	BaseModel

	Number      int    `gorm:"uniqueIndex;not null" json:"number"` // 关卡顺序，从 1 开始
	Title       string `gorm:"size:255;not null" json:"title"`
	Description string `gorm:"type:text" json:"description"`
	IsActive    bool   `gorm:"default:true" json:"isActive"`
}

func (Level) TableName() string {
	return "levels"
}

// swagger:model Puzzle
type Puzzle struct {
	BaseModel

	LevelID   uint   `gorm:"index;type:bigint unsigned;not null" json:"levelId"`
	Number    int    `gorm:"not null" json:"number"` // 关卡内题目顺序
	Title     string `gorm:"size:255;not null" json:"title"`
	Points    int    `gorm:"default:10" json:"points"`
	Skippable bool   `gorm:"default:true" json:"skippable"`
}

func (Puzzle) TableName() string {
	return "puzzles"
}

// Hint 题目提示，按 sequence_number 升序消费
// swagger:model Hint
type Hint struct {
	BaseModel

	PuzzleID       uint   `gorm:"index;type:bigint unsigned;not null" json:"puzzleId"`
	SequenceNumber int    `gorm:"not null" json:"sequenceNumber"`
	PenaltySeconds int    `gorm:"default:60" json:"penaltySeconds"`
	Content        string `gorm:"type:text" json:"content"`
}

func (Hint) TableName() string {
	return "hints"
}
