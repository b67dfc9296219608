package model

// swagger:model Report
type Report struct {
	BaseModel

	RoutineID          uint    `gorm:"uniqueIndex;not null" json:"routineId"`
	Summary            string  `gorm:"type:text" json:"summary"`
	ScoreChangePercent float64 `json:"scoreChangePercent"`
	EarlyAverage       float64 `json:"earlyAverage"`
	RecentAverage      float64 `json:"recentAverage"`
	SampleSize         int     `json:"sampleSize"`
	// 生成报告时所处的周，用于判断是否跨过周边界需要重算
	Week int `json:"week"`
}

func (Report) TableName() string {
	return "reports"
}
