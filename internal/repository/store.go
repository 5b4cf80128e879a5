package repository

import (
	"errors"
	"strings"

	"puzzle_arena_backend/internal/model"
	"puzzle_arena_backend/internal/service"
	"puzzle_arena_backend/internal/util"

	"gorm.io/gorm"
)

// Store 基于 gorm 的 TeamProgressStore 生产实现
type Store struct {
	DB *gorm.DB
}

func NewStore(db *gorm.DB) *Store {
	return &Store{DB: db}
}

var _ service.TeamProgressStore = (*Store)(nil)

func (s *Store) Transaction(fn func(tx service.TeamProgressStore) error) error {
	return s.DB.Transaction(func(tx *gorm.DB) error {
		return fn(&Store{DB: tx})
	})
}

// first 把 gorm 的 ErrRecordNotFound 折叠为 (nil, nil)
func first[T any](db *gorm.DB, conds ...interface{}) (*T, error) {
	var out T
	err := db.First(&out, conds...).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func save(db *gorm.DB, value interface{}) error {
	err := db.Save(value).Error
	if err != nil && strings.Contains(err.Error(), "Duplicate entry") {
		return util.NewAppError(util.KindPersistenceConflict, "concurrent write conflict: %v", err)
	}
	return err
}

func (s *Store) GetTeam(id uint) (*model.Team, error) {
	return first[model.Team](s.DB, id)
}

func (s *Store) GetSession(teamID uint) (*model.TeamSession, error) {
	return first[model.TeamSession](s.DB.Where("team_id = ?", teamID))
}

func (s *Store) SaveSession(sess *model.TeamSession) error {
	return save(s.DB, sess)
}

func (s *Store) GetProgress(teamID, puzzleID uint) (*model.QuestionProgress, error) {
	return first[model.QuestionProgress](s.DB.Where("team_id = ? AND puzzle_id = ?", teamID, puzzleID))
}

func (s *Store) GetActiveProgress(teamID uint) (*model.QuestionProgress, error) {
	return first[model.QuestionProgress](s.DB.Where("team_id = ? AND status = ?", teamID, model.QuestionInProgress))
}

func (s *Store) ListTeamProgress(teamID uint) ([]model.QuestionProgress, error) {
	var rows []model.QuestionProgress
	err := s.DB.Where("team_id = ?", teamID).Order("puzzle_id asc").Find(&rows).Error
	return rows, err
}

func (s *Store) ListLevelProgress(teamID, levelID uint) ([]model.QuestionProgress, error) {
	var rows []model.QuestionProgress
	err := s.DB.Where("team_id = ? AND level_id = ?", teamID, levelID).Order("puzzle_id asc").Find(&rows).Error
	return rows, err
}

func (s *Store) SaveProgress(p *model.QuestionProgress) error {
	return save(s.DB, p)
}

func (s *Store) GetLevel(id uint) (*model.Level, error) {
	return first[model.Level](s.DB, id)
}

func (s *Store) GetPuzzle(id uint) (*model.Puzzle, error) {
	return first[model.Puzzle](s.DB, id)
}

func (s *Store) ListLevelPuzzles(levelID uint) ([]model.Puzzle, error) {
	var puzzles []model.Puzzle
	err := s.DB.Where("level_id = ?", levelID).Order("number asc").Find(&puzzles).Error
	return puzzles, err
}

func (s *Store) GetHint(id uint) (*model.Hint, error) {
	return first[model.Hint](s.DB, id)
}

func (s *Store) ListPuzzleHints(puzzleID uint) ([]model.Hint, error) {
	var hints []model.Hint
	err := s.DB.Where("puzzle_id = ?", puzzleID).Order("sequence_number asc").Find(&hints).Error
	return hints, err
}

func (s *Store) GetHintUsage(teamID, hintID uint) (*model.HintUsage, error) {
	return first[model.HintUsage](s.DB.Where("team_id = ? AND hint_id = ?", teamID, hintID))
}

func (s *Store) ListTeamHintUsage(teamID uint) ([]model.HintUsage, error) {
	var usages []model.HintUsage
	err := s.DB.Where("team_id = ?", teamID).Order("created_at asc").Find(&usages).Error
	return usages, err
}

func (s *Store) ListLevelHintUsage(teamID, levelID uint) ([]model.HintUsage, error) {
	var usages []model.HintUsage
	err := s.DB.Where("team_id = ? AND level_id = ?", teamID, levelID).Order("created_at asc").Find(&usages).Error
	return usages, err
}

func (s *Store) CreateHintUsage(u *model.HintUsage) error {
	err := s.DB.Create(u).Error
	if err != nil && strings.Contains(err.Error(), "Duplicate entry") {
		return util.NewAppError(util.KindPersistenceConflict, "hint usage already recorded: %v", err)
	}
	return err
}

func (s *Store) GetLevelStatus(teamID, levelID uint) (*model.LevelStatus, error) {
	return first[model.LevelStatus](s.DB.Where("team_id = ? AND level_id = ?", teamID, levelID))
}

func (s *Store) SaveLevelStatus(ls *model.LevelStatus) error {
	return save(s.DB, ls)
}

func (s *Store) GetActiveCutoff(levelID uint) (*model.QualificationCutoff, error) {
	return first[model.QualificationCutoff](s.DB.Where("level_id = ? AND is_active = ?", levelID, true))
}

func (s *Store) GetCutoff(levelID uint) (*model.QualificationCutoff, error) {
	return first[model.QualificationCutoff](s.DB.Where("level_id = ?", levelID))
}

func (s *Store) SaveCutoff(c *model.QualificationCutoff) error {
	return save(s.DB, c)
}

func (s *Store) AppendAudit(e *model.AuditEvent) error {
	return s.DB.Create(e).Error
}

func (s *Store) ListTeamAudit(teamID uint, limit int) ([]model.AuditEvent, error) {
	var events []model.AuditEvent
	err := s.DB.Where("team_id = ?", teamID).Order("created_at desc").Limit(limit).Find(&events).Error
	return events, err
}
