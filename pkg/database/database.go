package database

import (
	_ "embed"
	"encoding/json"
	"engz_backend/internal/config"
	"engz_backend/internal/model"
	"engz_backend/pkg/logger"
	"fmt"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
	"gorm.io/driver/mysql"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func InitDB(cfg *config.DatabaseConfig) (*gorm.DB, error) {
	if cfg.Driver == "sqlite" {
		return OpenSQLite(cfg.SQLitePath)
	}

	dsn := fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=%s&parseTime=%t&loc=Local",
		cfg.User,
		cfg.Password,
		cfg.Host,
		cfg.Port,
		cfg.DBName,
		cfg.Charset,
		cfg.ParseTime,
	)

	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{
		Logger:         gormlogger.Default.LogMode(gormlogger.Warn),
		TranslateError: true,
	})

	if err != nil {
		return nil, err
	}

	logger.Log.Info("Database connection established", zap.String("driver", "mysql"))
	return db, nil
}

// OpenSQLite 本地开发和测试使用；单连接避免 sqlite 写锁冲突
func OpenSQLite(path string) (*gorm.DB, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
		TranslateError: true,
	})
	if err != nil {
		return nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(1)
	return db, nil
}

// Migrate 建表并写入默认题库
func Migrate(db *gorm.DB) error {
	err := db.AutoMigrate(
		&model.User{},
		&model.Routine{},
		&model.Mission{},
		&model.MissionAttempt{},
		&model.Report{},
		&model.LevelTestQuestion{},
		&model.LevelTestResult{},
	)
	if err != nil {
		return err
	}

	logger.Log.Info("Database migration completed")

	return SeedQuestionBank(db)
}

// DetectCapabilities 启动时检查一次可选列是否存在
func DetectCapabilities(db *gorm.DB) model.SchemaCapabilities {
	m := db.Migrator()
	return model.SchemaCapabilities{
		LevelResultAvgResponseTime: m.HasColumn(&model.LevelTestResult{}, "AvgResponseTime"),
		LevelResultAIPlan:          m.HasColumn(&model.LevelTestResult{}, "AIPlan"),
	}
}

//go:embed questions.yaml
var questionBankYAML []byte

type seedQuestion struct {
	Section model.LevelSection `yaml:"section"`
	Prompt  string             `yaml:"prompt"`
	Options []string           `yaml:"options"`
	Correct int                `yaml:"correct"`
}

// loadQuestionBank 解析内置题库并校验答案下标
func loadQuestionBank() ([]seedQuestion, error) {
	var questions []seedQuestion
	if err := yaml.Unmarshal(questionBankYAML, &questions); err != nil {
		return nil, fmt.Errorf("parse question bank: %w", err)
	}
	for i, q := range questions {
		switch q.Section {
		case model.SectionVocabulary, model.SectionGrammar:
			if q.Correct < 0 || q.Correct >= len(q.Options) {
				return nil, fmt.Errorf("question %d: correct index %d out of range", i+1, q.Correct)
			}
		case model.SectionWriting:
		default:
			return nil, fmt.Errorf("question %d: unknown section %q", i+1, q.Section)
		}
	}
	return questions, nil
}

func SeedQuestionBank(db *gorm.DB) error {
	var count int64
	if err := db.Model(&model.LevelTestQuestion{}).Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	seeds, err := loadQuestionBank()
	if err != nil {
		return err
	}

	questions := make([]model.LevelTestQuestion, 0, len(seeds))
	for i, q := range seeds {
		options := "[]"
		if len(q.Options) > 0 {
			b, _ := json.Marshal(q.Options)
			options = string(b)
		}
		correct := q.Correct
		if q.Section == model.SectionWriting {
			correct = -1
		}
		questions = append(questions, model.LevelTestQuestion{
			Section:      q.Section,
			Prompt:       q.Prompt,
			Options:      options,
			CorrectIndex: correct,
			Order:        i + 1,
		})
	}
	return db.Create(&questions).Error
}
