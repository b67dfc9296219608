package model

type ResponseMode string

const (
	ResponseText  ResponseMode = "text"
	ResponseAudio ResponseMode = "audio"
)

// MissionAttempt 一次提交的评分记录，报告生成依赖这些历史分数
type MissionAttempt struct {
	BaseModel

	MissionID      uint         `gorm:"index;not null" json:"missionId"`
	RoutineID      uint         `gorm:"index;not null" json:"routineId"`
	UserID         uint         `gorm:"index;not null" json:"userId"`
	Mode           ResponseMode `gorm:"size:10" json:"mode"`
	ResponseText   string       `gorm:"type:text" json:"responseText"`
	Grammar        int          `json:"grammar"`
	Pronunciation  int          `json:"pronunciation"`
	Fluency        int          `json:"fluency"`
	Overall        *int         `json:"overall,omitempty"`
	AggregateScore int          `json:"aggregateScore"`
	Corrections    string       `gorm:"type:text" json:"corrections"` // JSON array
	Suggestion     string       `gorm:"type:text" json:"suggestion"`
	Degraded       bool         `gorm:"default:false" json:"degraded"`
	Completed      bool         `gorm:"default:false" json:"completed"`
}

func (MissionAttempt) TableName() string {
	return "mission_attempts"
}
