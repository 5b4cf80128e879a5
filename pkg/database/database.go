package database

import (
	"fmt"
	"log"

	"puzzle_arena_backend/internal/config"
	"puzzle_arena_backend/internal/model"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func InitDB(cfg *config.DatabaseConfig, migrate bool) (*gorm.DB, error) {
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
		Logger: logger.Default.LogMode(logger.Info),
	})

	if err != nil {
		return nil, err
	}

	log.Println("Database connection established")

	if migrate {
		err = db.AutoMigrate(
			&model.Team{},
			&model.Level{},
			&model.Puzzle{},
			&model.Hint{},
			&model.TeamSession{},
			&model.QuestionProgress{},
			&model.HintUsage{},
			&model.LevelStatus{},
			&model.QualificationCutoff{},
			&model.AuditEvent{},
		)

		if err != nil {
			return nil, err
		}

		log.Println("Database migration completed")

		seedDemoData(db)
	}

	return db, nil
}

// seedDemoData 空库时插入一个演示关卡，方便本地起服后直接调接口
func seedDemoData(db *gorm.DB) {
	var levelCount int64
	db.Model(&model.Level{}).Count(&levelCount)
	if levelCount > 0 {
		return
	}

	level := &model.Level{
		Number:      1,
		Title:       "热身关",
		Description: "三道入门谜题",
		IsActive:    true,
	}
	db.Create(level)

	puzzles := []model.Puzzle{
		{LevelID: level.ID, Number: 1, Title: "密码盘", Points: 100, Skippable: true},
		{LevelID: level.ID, Number: 2, Title: "镜像迷宫", Points: 150, Skippable: true},
		{LevelID: level.ID, Number: 3, Title: "终局拼图", Points: 200, Skippable: false},
	}
	for i := range puzzles {
		db.Create(&puzzles[i])
	}

	hints := []model.Hint{
		{PuzzleID: puzzles[0].ID, SequenceNumber: 1, PenaltySeconds: 30, Content: "注意表盘上重复出现的符号"},
		{PuzzleID: puzzles[0].ID, SequenceNumber: 2, PenaltySeconds: 60, Content: "符号顺序对应墙上的挂画"},
		{PuzzleID: puzzles[1].ID, SequenceNumber: 1, PenaltySeconds: 45, Content: "迷宫入口在镜子的背面"},
	}
	for i := range hints {
		db.Create(&hints[i])
	}

	db.Create(&model.QualificationCutoff{
		LevelID:             level.ID,
		MinScore:            250,
		MinAccuracy:         60,
		MaxTimeSeconds:      3600,
		MaxHintsAllowed:     3,
		MinQuestionsCorrect: 2,
		AutoQualify:         true,
		IsActive:            true,
	})

	var teamCount int64
	db.Model(&model.Team{}).Count(&teamCount)
	if teamCount == 0 {
		db.Create(&model.Team{Name: "demo", DisplayName: "演示队伍", IsActive: true})
	}

	log.Println("Demo level seeded")
}
