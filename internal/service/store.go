package service

import (
	"puzzle_arena_backend/internal/model"
)

// TeamProgressStore 引擎唯一依赖的存储抽象，每种后端一个实现
// （gorm 生产实现见 internal/repository，内存实现用于测试与本地开发）。
// 所有 Get* 在记录不存在时返回 (nil, nil)，由上层决定是否视为 NotFound。
type TeamProgressStore interface {
	// Transaction 原子执行 fn：要么全部提交，要么完整回滚
	Transaction(fn func(tx TeamProgressStore) error) error

	GetTeam(id uint) (*model.Team, error)

	GetSession(teamID uint) (*model.TeamSession, error)
	SaveSession(s *model.TeamSession) error

	GetProgress(teamID, puzzleID uint) (*model.QuestionProgress, error)
	GetActiveProgress(teamID uint) (*model.QuestionProgress, error)
	ListTeamProgress(teamID uint) ([]model.QuestionProgress, error)
	ListLevelProgress(teamID, levelID uint) ([]model.QuestionProgress, error)
	SaveProgress(p *model.QuestionProgress) error

	GetLevel(id uint) (*model.Level, error)
	GetPuzzle(id uint) (*model.Puzzle, error)
	ListLevelPuzzles(levelID uint) ([]model.Puzzle, error)

	GetHint(id uint) (*model.Hint, error)
	ListPuzzleHints(puzzleID uint) ([]model.Hint, error)
	GetHintUsage(teamID, hintID uint) (*model.HintUsage, error)
	ListTeamHintUsage(teamID uint) ([]model.HintUsage, error)
	ListLevelHintUsage(teamID, levelID uint) ([]model.HintUsage, error)
	CreateHintUsage(u *model.HintUsage) error

	GetLevelStatus(teamID, levelID uint) (*model.LevelStatus, error)
	SaveLevelStatus(ls *model.LevelStatus) error

	GetActiveCutoff(levelID uint) (*model.QualificationCutoff, error)
	GetCutoff(levelID uint) (*model.QualificationCutoff, error)
	SaveCutoff(c *model.QualificationCutoff) error

	AppendAudit(e *model.AuditEvent) error
	ListTeamAudit(teamID uint, limit int) ([]model.AuditEvent, error)
}
