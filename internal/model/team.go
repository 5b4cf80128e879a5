package model

type TeamRole string

const (
	TeamActor  TeamRole = "team"
	AdminActor TeamRole = "admin"
)

// swagger:model Team
type Team struct {
	BaseModel

	Name        string `gorm:"size:255;not null;uniqueIndex" json:"name"`
	DisplayName string `gorm:"size:255" json:"displayName"`
	IsActive    bool   `gorm:"default:true" json:"isActive"`
}

func (Team) TableName() string {
	return "teams"
}
