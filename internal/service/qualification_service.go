package service

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"puzzle_arena_backend/internal/model"
	"puzzle_arena_backend/internal/util"
	"puzzle_arena_backend/pkg/logger"
	"puzzle_arena_backend/pkg/monitoring"

	"go.uber.org/zap"
)

// QualificationService 晋级评定：拥有 LevelStatus，读进度与提示流水但从不改写它们。
// 指标计算或阈值读取失败一律退化为放行（fail-open），宁可多放不堵队伍。
type QualificationService struct {
	Store    TeamProgressStore
	Audit    *AuditService
	Notifier Notifier

	now func() time.Time
}

func NewQualificationService(store TeamProgressStore, audit *AuditService, notifier Notifier) *QualificationService {
	return &QualificationService{
		Store:    store,
		Audit:    audit,
		Notifier: notifier,
		now:      time.Now,
	}
}

// LevelMetrics 完成时刻的关卡指标快照
type LevelMetrics struct {
	Score             int     `json:"score"`
	QuestionsAnswered int     `json:"questionsAnswered"`
	QuestionsCorrect  int     `json:"questionsCorrect"`
	Accuracy          float64 `json:"accuracy"`
	TimeTakenSeconds  int     `json:"timeTakenSeconds"`
	HintsUsed         int     `json:"hintsUsed"`
}

// FinishLevel 关卡末题完成或显式结关时触发，每队每关只判一次
func (s *QualificationService) FinishLevel(teamID, levelID uint, actor string, actorID uint) (*model.LevelStatus, error) {
	now := s.now()
	var status *model.LevelStatus
	var prevQual model.QualificationStatus
	var reason string

	err := s.Store.Transaction(func(tx TeamProgressStore) error {
		level, err := tx.GetLevel(levelID)
		if err != nil {
			return err
		}
		if level == nil {
			return util.NewAppError(util.KindNotFound, "level %d not found", levelID)
		}

		ls, err := tx.GetLevelStatus(teamID, levelID)
		if err != nil {
			return err
		}
		if ls == nil {
			ls = &model.LevelStatus{TeamID: teamID, LevelID: levelID}
		}
		if ls.Status == model.LevelCompleted {
			return util.NewAppError(util.KindAlreadyCompleted, "level %d already evaluated for team %d", levelID, teamID)
		}
		prevQual = ls.QualificationStatus

		metrics := s.computeMetrics(tx, teamID, levelID)
		ls.Status = model.LevelCompleted
		ls.Score = metrics.Score
		ls.Accuracy = metrics.Accuracy
		ls.TimeTakenSeconds = metrics.TimeTakenSeconds
		ls.HintsUsed = metrics.HintsUsed
		ls.QuestionsAnswered = metrics.QuestionsAnswered
		ls.QuestionsCorrect = metrics.QuestionsCorrect

		verdict, failures, why := s.decide(tx, levelID, metrics)
		reason = why
		ls.QualificationStatus = verdict
		ls.FailureReasons = strings.Join(failures, "; ")
		if verdict != model.QualificationPending {
			ls.QualificationDecidedAt = &now
		}

		if err := tx.SaveLevelStatus(ls); err != nil {
			return err
		}
		status = ls
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.afterDecision(status, prevQual, reason, actor, actorID, now)
	return status, nil
}

// decide 读取生效阈值并评定；阈值快照在本事务内读取一次，评定中途的管理端修改不影响本次结果
func (s *QualificationService) decide(tx TeamProgressStore, levelID uint, metrics LevelMetrics) (model.QualificationStatus, []string, string) {
	cutoff, err := tx.GetActiveCutoff(levelID)
	if err != nil {
		logger.Log.Error("cutoff lookup failed, failing open",
			zap.Uint("levelId", levelID),
			zap.Error(err))
		return model.QualificationQualified, nil, "cutoff lookup failed, auto-qualified"
	}
	if cutoff == nil {
		return model.QualificationQualified, nil, "no cutoffs configured"
	}
	if !cutoff.AutoQualify {
		return model.QualificationPending, nil, "manual qualification required"
	}

	verdict, failures := RunAutoQualification(metrics, cutoff)
	if verdict == model.QualificationQualified {
		return verdict, nil, "all cutoff criteria met"
	}
	return verdict, failures, "cutoff criteria not met"
}

// RunAutoQualification 纯函数：同样的指标与阈值永远得到同样的判定与失败清单。
// 五项标准各自独立评定；上限类阈值（时长、提示）为 0 时视为不设限。
func RunAutoQualification(m LevelMetrics, c *model.QualificationCutoff) (model.QualificationStatus, []string) {
	if c == nil {
		return model.QualificationQualified, nil
	}

	var failures []string
	if m.Score < c.MinScore {
		failures = append(failures, fmt.Sprintf("score %d below required minimum %d", m.Score, c.MinScore))
	}
	if m.Accuracy < c.MinAccuracy {
		failures = append(failures, fmt.Sprintf("accuracy %.1f%% below required minimum %.1f%%", m.Accuracy, c.MinAccuracy))
	}
	if c.MaxTimeSeconds > 0 && m.TimeTakenSeconds > c.MaxTimeSeconds {
		failures = append(failures, fmt.Sprintf("time taken %ds above allowed maximum %ds", m.TimeTakenSeconds, c.MaxTimeSeconds))
	}
	if c.MaxHintsAllowed > 0 && m.HintsUsed > c.MaxHintsAllowed {
		failures = append(failures, fmt.Sprintf("hints used %d above allowed maximum %d", m.HintsUsed, c.MaxHintsAllowed))
	}
	if m.QuestionsCorrect < c.MinQuestionsCorrect {
		failures = append(failures, fmt.Sprintf("questions correct %d below required minimum %d", m.QuestionsCorrect, c.MinQuestionsCorrect))
	}

	if len(failures) > 0 {
		return model.QualificationDisqualified, failures
	}
	return model.QualificationQualified, nil
}

// computeMetrics 任一读失败都降级为零值指标（随后 fail-open），不会让队伍卡死
func (s *QualificationService) computeMetrics(tx TeamProgressStore, teamID, levelID uint) LevelMetrics {
	var m LevelMetrics

	puzzles, err := tx.ListLevelPuzzles(levelID)
	if err != nil {
		logger.Log.Error("metric computation failed, using zeroed metrics", zap.Uint("levelId", levelID), zap.Error(err))
		return m
	}
	progress, err := tx.ListLevelProgress(teamID, levelID)
	if err != nil {
		logger.Log.Error("metric computation failed, using zeroed metrics", zap.Uint("levelId", levelID), zap.Error(err))
		return m
	}

	points := make(map[uint]int, len(puzzles))
	for _, p := range puzzles {
		points[p.ID] = p.Points
	}

	var minStart, maxComplete *time.Time
	for i := range progress {
		p := &progress[i]
		m.QuestionsAnswered++
		if p.Status == model.QuestionCompleted {
			m.Score += points[p.PuzzleID]
		}
		if p.Correct {
			m.QuestionsCorrect++
		}
		if p.FirstStartedAt != nil && (minStart == nil || p.FirstStartedAt.Before(*minStart)) {
			minStart = p.FirstStartedAt
		}
		if p.CompletedAt != nil && (maxComplete == nil || p.CompletedAt.After(*maxComplete)) {
			maxComplete = p.CompletedAt
		}
	}

	if m.QuestionsAnswered > 0 {
		m.Accuracy = float64(m.QuestionsCorrect) / float64(m.QuestionsAnswered) * 100
	}
	if minStart != nil && maxComplete != nil {
		m.TimeTakenSeconds = elapsedSince(*minStart, *maxComplete)
	}

	usages, err := tx.ListLevelHintUsage(teamID, levelID)
	if err != nil {
		logger.Log.Error("hint usage lookup failed, counting zero hints", zap.Uint("levelId", levelID), zap.Error(err))
		return m
	}
	m.HintsUsed = len(usages)
	return m
}

// Override 管理端直接改写判定，无视指标。关卡未正式完成时先补一条 COMPLETED 状态，
// 让审计有指标可查。
func (s *QualificationService) Override(teamID, levelID uint, target model.QualificationStatus, adminID uint, reason string) (*model.LevelStatus, error) {
	if target != model.QualificationQualified && target != model.QualificationDisqualified {
		return nil, util.NewAppError(util.KindInvalidStateTransition, "override target must be QUALIFIED or DISQUALIFIED")
	}

	now := s.now()
	var status *model.LevelStatus
	var prevQual model.QualificationStatus

	err := s.Store.Transaction(func(tx TeamProgressStore) error {
		level, err := tx.GetLevel(levelID)
		if err != nil {
			return err
		}
		if level == nil {
			return util.NewAppError(util.KindNotFound, "level %d not found", levelID)
		}

		ls, err := tx.GetLevelStatus(teamID, levelID)
		if err != nil {
			return err
		}
		if ls == nil {
			ls = &model.LevelStatus{TeamID: teamID, LevelID: levelID}
		}
		if ls.Status != model.LevelCompleted {
			metrics := s.computeMetrics(tx, teamID, levelID)
			ls.Status = model.LevelCompleted
			ls.Score = metrics.Score
			ls.Accuracy = metrics.Accuracy
			ls.TimeTakenSeconds = metrics.TimeTakenSeconds
			ls.HintsUsed = metrics.HintsUsed
			ls.QuestionsAnswered = metrics.QuestionsAnswered
			ls.QuestionsCorrect = metrics.QuestionsCorrect
		}

		prevQual = ls.QualificationStatus
		ls.QualificationStatus = target
		ls.WasManuallyOverridden = true
		ls.OverrideBy = &adminID
		ls.OverrideReason = reason
		ls.OverrideAt = &now
		ls.QualificationDecidedAt = &now
		ls.FailureReasons = ""

		if err := tx.SaveLevelStatus(ls); err != nil {
			return err
		}
		status = ls
		return nil
	})
	if err != nil {
		return nil, err
	}

	monitoring.QualificationDecisions.WithLabelValues("override_" + strings.ToLower(string(target))).Inc()

	if s.Notifier != nil {
		s.Notifier.QualificationDecided(QualificationNotice{
			TeamID:     teamID,
			LevelID:    levelID,
			Status:     target,
			Message:    fmt.Sprintf("qualification manually overridden to %s: %s", target, reason),
			Overridden: true,
			DecidedAt:  now,
		})
	}

	meta, _ := json.Marshal(map[string]interface{}{"reason": reason})
	s.Audit.Record(&model.AuditEvent{
		TeamID:         teamID,
		LevelID:        &levelID,
		EventType:      model.AuditOverrideApplied,
		PreviousStatus: string(prevQual),
		NewStatus:      string(target),
		Metadata:       string(meta),
		Actor:          model.ActorAdmin,
		ActorID:        adminID,
	})

	return status, nil
}

// CutoffInput 管理端阈值配置请求体
type CutoffInput struct {
	MinScore            int     `json:"minScore"`
	MinAccuracy         float64 `json:"minAccuracy"`
	MaxTimeSeconds      int     `json:"maxTimeSeconds"`
	MaxHintsAllowed     int     `json:"maxHintsAllowed"`
	MinQuestionsCorrect int     `json:"minQuestionsCorrect"`
	AutoQualify         *bool   `json:"autoQualify"`
	IsActive            *bool   `json:"isActive"`
}

func (s *QualificationService) GetCutoffForLevel(levelID uint) (*model.QualificationCutoff, error) {
	cutoff, err := s.Store.GetCutoff(levelID)
	if err != nil {
		return nil, err
	}
	if cutoff == nil {
		return nil, util.NewAppError(util.KindNotFound, "no cutoff configured for level %d", levelID)
	}
	return cutoff, nil
}

func (s *QualificationService) UpsertCutoff(levelID uint, input CutoffInput) (*model.QualificationCutoff, error) {
	var cutoff *model.QualificationCutoff
	err := s.Store.Transaction(func(tx TeamProgressStore) error {
		level, err := tx.GetLevel(levelID)
		if err != nil {
			return err
		}
		if level == nil {
			return util.NewAppError(util.KindNotFound, "level %d not found", levelID)
		}

		c, err := tx.GetCutoff(levelID)
		if err != nil {
			return err
		}
		if c == nil {
			c = &model.QualificationCutoff{LevelID: levelID, AutoQualify: true, IsActive: true}
		}
		c.MinScore = input.MinScore
		c.MinAccuracy = input.MinAccuracy
		c.MaxTimeSeconds = input.MaxTimeSeconds
		c.MaxHintsAllowed = input.MaxHintsAllowed
		c.MinQuestionsCorrect = input.MinQuestionsCorrect
		if input.AutoQualify != nil {
			c.AutoQualify = *input.AutoQualify
		}
		if input.IsActive != nil {
			c.IsActive = *input.IsActive
		}
		if err := tx.SaveCutoff(c); err != nil {
			return err
		}
		cutoff = c
		return nil
	})
	if err != nil {
		return nil, err
	}
	return cutoff, nil
}

// afterDecision 提交后做通知、审计与指标上报，都不在临界区内
func (s *QualificationService) afterDecision(ls *model.LevelStatus, prev model.QualificationStatus, reason, actor string, actorID uint, now time.Time) {
	monitoring.QualificationDecisions.WithLabelValues(strings.ToLower(string(ls.QualificationStatus))).Inc()

	if s.Notifier != nil && ls.QualificationStatus != model.QualificationPending {
		msg := fmt.Sprintf("level %d %s: score=%d accuracy=%.1f%% time=%ds hints=%d",
			ls.LevelID, ls.QualificationStatus, ls.Score, ls.Accuracy, ls.TimeTakenSeconds, ls.HintsUsed)
		if ls.FailureReasons != "" {
			msg += " (" + ls.FailureReasons + ")"
		}
		s.Notifier.QualificationDecided(QualificationNotice{
			TeamID:    ls.TeamID,
			LevelID:   ls.LevelID,
			Status:    ls.QualificationStatus,
			Message:   msg,
			DecidedAt: now,
		})
	}

	metricsMeta, _ := json.Marshal(map[string]interface{}{
		"score":             ls.Score,
		"accuracy":          ls.Accuracy,
		"timeTakenSeconds":  ls.TimeTakenSeconds,
		"hintsUsed":         ls.HintsUsed,
		"questionsAnswered": ls.QuestionsAnswered,
		"questionsCorrect":  ls.QuestionsCorrect,
		"reason":            reason,
		"failureReasons":    ls.FailureReasons,
	})
	s.Audit.Record(&model.AuditEvent{
		TeamID:         ls.TeamID,
		LevelID:        &ls.LevelID,
		EventType:      model.AuditLevelQualified,
		PreviousStatus: string(prev),
		NewStatus:      string(ls.QualificationStatus),
		Metadata:       string(metricsMeta),
		Actor:          actor,
		ActorID:        actorID,
	})
}
