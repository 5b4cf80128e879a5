package model

// QualificationCutoff 管理端配置的晋级阈值，每关最多一条生效
// swagger:model QualificationCutoff
type QualificationCutoff struct {
	BaseModel

	LevelID uint `gorm:"uniqueIndex;type:bigint unsigned;not null" json:"levelId"`

	MinScore            int     `gorm:"default:0" json:"minScore"`
	MinAccuracy         float64 `gorm:"default:0" json:"minAccuracy"`
	MaxTimeSeconds      int     `gorm:"default:0" json:"maxTimeSeconds"`
	MaxHintsAllowed     int     `gorm:"default:0" json:"maxHintsAllowed"`
	MinQuestionsCorrect int     `gorm:"default:0" json:"minQuestionsCorrect"`

	AutoQualify bool `gorm:"default:true" json:"autoQualify"`
	IsActive    bool `gorm:"default:true" json:"isActive"`
}

func (QualificationCutoff) TableName() string {
	return "qualification_cutoffs"
}
