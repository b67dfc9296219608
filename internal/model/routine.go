package model

import "time"

type Theme string

const (
	ThemeGrammar  Theme = "Grammar"
	ThemeSlang    Theme = "Slang"
	ThemeBusiness Theme = "Business"
	ThemeTravel   Theme = "Travel"
	ThemeSpeaking Theme = "Speaking"
)

const (
	RoutineWeeks       = 4
	RoutineDaysPerWeek = 5
	MissionsPerRoutine = RoutineWeeks * RoutineDaysPerWeek
	RoutineLength      = 28 * 24 * time.Hour
)

// swagger:model Routine
type Routine struct {
	BaseModel

	UserID    uint      `gorm:"index;not null" json:"userId"`
	Theme     Theme     `gorm:"size:20;not null" json:"theme"`
	StartDate time.Time `json:"startDate"`
	EndDate   time.Time `json:"endDate"`
	Completed bool      `gorm:"default:false;index" json:"completed"`
	// 已完成任务数，只在任务 completed 由 false 变为 true 时加一
	CompletedMissions int `gorm:"default:0" json:"completedMissions"`
	// 未完成时等于 UserID，完成后置 NULL；唯一索引保证每个学习者只有一个进行中的 routine
	ActiveKey *uint `gorm:"uniqueIndex" json:"-"`

	Missions []Mission `gorm:"foreignKey:RoutineID" json:"missions,omitempty"`
}

func (Routine) TableName() string {
	return "routines"
}

// swagger:model Mission
type Mission struct {
	BaseModel

	RoutineID    uint       `gorm:"uniqueIndex:idx_mission_slot;not null" json:"routineId"`
	Week         int        `gorm:"uniqueIndex:idx_mission_slot;not null" json:"week"`
	Day          int        `gorm:"uniqueIndex:idx_mission_slot;not null" json:"day"`
	Content      string     `gorm:"type:text" json:"content"`
	Completed    bool       `gorm:"default:false" json:"completed"`
	CompletedAt  *time.Time `json:"completedAt,omitempty"`
	LastFeedback *string    `gorm:"type:text" json:"lastFeedback,omitempty"`
}

func (Mission) TableName() string {
	return "missions"
}
