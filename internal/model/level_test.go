package model

type LevelSection string

const (
	SectionVocabulary LevelSection = "vocabulary"
	SectionGrammar    LevelSection = "grammar"
	SectionWriting    LevelSection = "writing"
)

const (
	LevelBeginner          = "Beginner"
	LevelIntermediate      = "Intermediate"
	LevelUpperIntermediate = "Upper-Intermediate"
	LevelAdvanced          = "Advanced"
)

// swagger:model LevelTestQuestion
type LevelTestQuestion struct {
	BaseModel

	Section      LevelSection `gorm:"size:20;index" json:"section"`
	Prompt       string       `gorm:"type:text" json:"prompt"`
	Options      string       `gorm:"type:text" json:"options"` // JSON array
	CorrectIndex int          `gorm:"default:-1" json:"-"`
	Order        int          `gorm:"default:0" json:"order"`
}

func (LevelTestQuestion) TableName() string {
	return "level_test_questions"
}

// swagger:model LevelTestResult
type LevelTestResult struct {
	BaseModel

	UserID             *uint   `gorm:"index" json:"userId,omitempty"`
	VocabularyScore    int     `json:"vocabularyScore"`
	GrammarScore       int     `json:"grammarScore"`
	WritingScore       int     `json:"writingScore"`
	TotalScore         int     `gorm:"index" json:"totalScore"`
	AvgResponseTime    float64 `json:"avgResponseTime"`
	RankPercentile     *int    `json:"rankPercentile,omitempty"`
	Level              string  `gorm:"size:30" json:"level"`
	Strengths          string  `gorm:"type:text" json:"strengths"`
	Weaknesses         string  `gorm:"type:text" json:"weaknesses"`
	RecommendedRoutine string  `gorm:"size:30" json:"recommendedRoutine"`
	AIMessage          string  `gorm:"type:text" json:"aiMessage"`
	AIFeedback         *string `gorm:"type:text" json:"aiFeedback,omitempty"`
	AIPlan             *string `gorm:"type:text" json:"aiPlan,omitempty"`
}

func (LevelTestResult) TableName() string {
	return "level_test_results"
}
