package service

import (
	"encoding/json"
	"time"

	"puzzle_arena_backend/internal/model"
	"puzzle_arena_backend/internal/util"
	"puzzle_arena_backend/pkg/logger"
	"puzzle_arena_backend/pkg/monitoring"

	"go.uber.org/zap"
)

// SettingsProvider 每次调用时取当前生效的引擎参数（配置热更新后立即生效）
type SettingsProvider func() model.GameSettings

// TimerService 单 (team, question) 生命周期的状态机。
// 所有操作在同队互斥 + 存储事务内执行；耗时只在折算瞬间由服务端时钟计算，
// 客户端上报的任何时间一律不信。
type TimerService struct {
	Store          TeamProgressStore
	Sessions       *SessionService
	Audit          *AuditService
	Qualifications *QualificationService

	settings SettingsProvider
	now      func() time.Time
}

func NewTimerService(store TeamProgressStore, sessions *SessionService, audit *AuditService, qualifications *QualificationService, settings SettingsProvider) *TimerService {
	return &TimerService{
		Store:          store,
		Sessions:       sessions,
		Audit:          audit,
		Qualifications: qualifications,
		settings:       settings,
		now:            time.Now,
	}
}

// PuzzleRef 给客户端定位下一题用的最小信息
type PuzzleRef struct {
	PuzzleID uint   `json:"puzzleId"`
	Number   int    `json:"number"`
	Title    string `json:"title"`
}

// SkipResult 跳题结果：罚时已永久入账，下一题已被抢先激活
type SkipResult struct {
	SkipPenaltySeconds int        `json:"skipPenaltySeconds"`
	NextQuestion       *PuzzleRef `json:"nextQuestion,omitempty"`
}

// ResumeResult 恢复计时结果
type ResumeResult struct {
	TimeSpentSeconds     int `json:"timeSpentSeconds"`
	PauseDurationSeconds int `json:"pauseDurationSeconds"`
}

// StartQuestion 激活一道题。先降级本队其他进行中的题目，保证单活跃题不变量。
func (s *TimerService) StartQuestion(teamID, puzzleID uint) (*TimerSnapshot, error) {
	unlock := s.Sessions.locks.lock(teamID)
	defer unlock()

	now := s.now()
	var audits []*model.AuditEvent
	var session *model.TeamSession

	err := s.Store.Transaction(func(tx TeamProgressStore) error {
		puzzle, sess, prog, err := s.loadContext(tx, teamID, puzzleID, now)
		if err != nil {
			return err
		}

		switch prog.Status {
		case model.QuestionCompleted:
			return util.NewAppError(util.KindAlreadyCompleted, "question %d already completed", puzzleID)
		case model.QuestionInProgress:
			return util.NewAppError(util.KindAlreadyInProgress, "question %d already in progress", puzzleID)
		}

		if ev, err := s.demoteActive(tx, sess, puzzleID, now); err != nil {
			return err
		} else if ev != nil {
			audits = append(audits, ev)
		}

		before := prog.TimeSpentSeconds
		previous := prog.Status
		prog.Status = model.QuestionInProgress
		prog.StartedAt = &now
		if prog.FirstStartedAt == nil {
			prog.FirstStartedAt = &now
		}
		if err := tx.SaveProgress(prog); err != nil {
			return err
		}

		sess.CurrentPuzzleID = &puzzle.ID
		sess.Status = model.SessionActive
		if err := s.Sessions.recompute(tx, sess); err != nil {
			return err
		}
		session = sess

		audits = append(audits, &model.AuditEvent{
			TeamID:         teamID,
			PuzzleID:       &puzzle.ID,
			LevelID:        &puzzle.LevelID,
			EventType:      model.AuditQuestionStarted,
			TimeBefore:     before,
			TimeAfter:      prog.TimeSpentSeconds,
			PreviousStatus: string(previous),
			NewStatus:      string(model.QuestionInProgress),
			Actor:          model.ActorTeam,
			ActorID:        teamID,
		})
		return nil
	})
	s.observe("start", err)
	if err != nil {
		return nil, err
	}

	s.Audit.RecordAll(audits)
	s.Sessions.publish(session)
	return s.Sessions.SyncTimer(teamID, &puzzleID)
}

// PauseQuestion 折算耗时并暂停。对未激活的题目调用返回 NotInProgress 且不改变任何状态。
func (s *TimerService) PauseQuestion(teamID, puzzleID uint) (*TimerSnapshot, error) {
	unlock := s.Sessions.locks.lock(teamID)
	defer unlock()

	now := s.now()
	var audits []*model.AuditEvent
	var session *model.TeamSession

	err := s.Store.Transaction(func(tx TeamProgressStore) error {
		_, sess, prog, err := s.loadContext(tx, teamID, puzzleID, now)
		if err != nil {
			return err
		}

		if prog.Status != model.QuestionInProgress || prog.StartedAt == nil {
			return util.NewAppError(util.KindNotInProgress, "question %d is not in progress", puzzleID)
		}

		before := prog.TimeSpentSeconds
		foldElapsed(prog, now)
		prog.Status = model.QuestionNotStarted
		if err := tx.SaveProgress(prog); err != nil {
			return err
		}

		sess.CurrentPuzzleID = nil
		sess.Status = model.SessionPaused
		if err := s.Sessions.recompute(tx, sess); err != nil {
			return err
		}
		session = sess

		audits = append(audits, &model.AuditEvent{
			TeamID:         teamID,
			PuzzleID:       &prog.PuzzleID,
			LevelID:        &prog.LevelID,
			EventType:      model.AuditQuestionPaused,
			TimeBefore:     before,
			TimeAfter:      prog.TimeSpentSeconds,
			PreviousStatus: string(model.QuestionInProgress),
			NewStatus:      string(model.QuestionNotStarted),
			Actor:          model.ActorTeam,
			ActorID:        teamID,
		})
		return nil
	})
	s.observe("pause", err)
	if err != nil {
		return nil, err
	}

	s.Audit.RecordAll(audits)
	s.Sessions.publish(session)
	return s.Sessions.SyncTimer(teamID, &puzzleID)
}

// ResumeQuestion 从暂停或跳过状态恢复计时
func (s *TimerService) ResumeQuestion(teamID, puzzleID uint) (*ResumeResult, *TimerSnapshot, error) {
	unlock := s.Sessions.locks.lock(teamID)
	defer unlock()

	now := s.now()
	var audits []*model.AuditEvent
	var session *model.TeamSession
	result := &ResumeResult{}

	err := s.Store.Transaction(func(tx TeamProgressStore) error {
		puzzle, sess, prog, err := s.loadContext(tx, teamID, puzzleID, now)
		if err != nil {
			return err
		}

		switch prog.Status {
		case model.QuestionCompleted:
			return util.NewAppError(util.KindAlreadyCompleted, "question %d already completed", puzzleID)
		case model.QuestionInProgress:
			return util.NewAppError(util.KindAlreadyActive, "question %d is already active", puzzleID)
		}

		if ev, err := s.demoteActive(tx, sess, puzzleID, now); err != nil {
			return err
		} else if ev != nil {
			audits = append(audits, ev)
		}

		// 暂停时长只用于展示，以最近一次落库时间近似
		if prog.TimeSpentSeconds > 0 && !prog.UpdatedAt.IsZero() {
			result.PauseDurationSeconds = elapsedSince(prog.UpdatedAt, now)
		}

		previous := prog.Status
		prog.Status = model.QuestionInProgress
		prog.StartedAt = &now
		if prog.FirstStartedAt == nil {
			prog.FirstStartedAt = &now
		}
		if err := tx.SaveProgress(prog); err != nil {
			return err
		}
		result.TimeSpentSeconds = prog.TimeSpentSeconds

		sess.CurrentPuzzleID = &puzzle.ID
		sess.Status = model.SessionActive
		if err := s.Sessions.recompute(tx, sess); err != nil {
			return err
		}
		session = sess

		audits = append(audits, &model.AuditEvent{
			TeamID:         teamID,
			PuzzleID:       &puzzle.ID,
			LevelID:        &puzzle.LevelID,
			EventType:      model.AuditQuestionResumed,
			TimeBefore:     prog.TimeSpentSeconds,
			TimeAfter:      prog.TimeSpentSeconds,
			PreviousStatus: string(previous),
			NewStatus:      string(model.QuestionInProgress),
			Actor:          model.ActorTeam,
			ActorID:        teamID,
		})
		return nil
	})
	s.observe("resume", err)
	if err != nil {
		return nil, nil, err
	}

	s.Audit.RecordAll(audits)
	s.Sessions.publish(session)
	snap, err := s.Sessions.SyncTimer(teamID, &puzzleID)
	return result, snap, err
}

// CompleteQuestion 终结一道题。COMPLETED 是终态，重复提交返回 AlreadyCompleted。
// 若该题是本关最后一道，提交后触发晋级评定。
func (s *TimerService) CompleteQuestion(teamID, puzzleID uint, correct bool) (*TimerSnapshot, error) {
	unlock := s.Sessions.locks.lock(teamID)
	defer unlock()

	now := s.now()
	var audits []*model.AuditEvent
	var session *model.TeamSession
	levelDone := false
	var levelID uint

	err := s.Store.Transaction(func(tx TeamProgressStore) error {
		puzzle, sess, prog, err := s.loadContext(tx, teamID, puzzleID, now)
		if err != nil {
			return err
		}

		if prog.Status == model.QuestionCompleted {
			return util.NewAppError(util.KindAlreadyCompleted, "question %d already completed", puzzleID)
		}

		before := prog.TimeSpentSeconds
		previous := prog.Status
		foldElapsed(prog, now)
		prog.Status = model.QuestionCompleted
		prog.Correct = correct
		prog.CompletedAt = &now
		if prog.FirstStartedAt == nil {
			prog.FirstStartedAt = &now
		}
		if err := tx.SaveProgress(prog); err != nil {
			return err
		}

		if sess.CurrentPuzzleID != nil && *sess.CurrentPuzzleID == puzzleID {
			sess.CurrentPuzzleID = nil
			sess.Status = model.SessionPaused
		}
		if err := s.Sessions.recompute(tx, sess); err != nil {
			return err
		}
		session = sess

		levelDone, err = s.levelCompleted(tx, teamID, puzzle.LevelID)
		if err != nil {
			return err
		}
		levelID = puzzle.LevelID

		meta, _ := json.Marshal(map[string]interface{}{"correct": correct})
		audits = append(audits, &model.AuditEvent{
			TeamID:         teamID,
			PuzzleID:       &puzzle.ID,
			LevelID:        &puzzle.LevelID,
			EventType:      model.AuditQuestionCompleted,
			TimeBefore:     before,
			TimeAfter:      prog.TimeSpentSeconds,
			PreviousStatus: string(previous),
			NewStatus:      string(model.QuestionCompleted),
			Metadata:       string(meta),
			Actor:          model.ActorTeam,
			ActorID:        teamID,
		})
		return nil
	})
	s.observe("complete", err)
	if err != nil {
		return nil, err
	}

	s.Audit.RecordAll(audits)
	s.Sessions.publish(session)

	if levelDone {
		// 晋级评定独立成事务；它的失败不撤销已提交的完成
		if _, err := s.Qualifications.FinishLevel(teamID, levelID, model.ActorSystem, 0); err != nil {
			if !util.IsKind(err, util.KindAlreadyCompleted) {
				logger.Log.Error("qualification evaluation failed",
					zap.Uint("teamId", teamID),
					zap.Uint("levelId", levelID),
					zap.Error(err))
			}
		}
	}

	return s.Sessions.SyncTimer(teamID, &puzzleID)
}

// SkipQuestion 跳题：罚时入账（永久），并抢先激活同关卡中题号最小的未完成题，
// 省掉客户端的一次额外调用。
func (s *TimerService) SkipQuestion(teamID, puzzleID uint) (*SkipResult, *TimerSnapshot, error) {
	unlock := s.Sessions.locks.lock(teamID)
	defer unlock()

	now := s.now()
	settings := s.settings().WithDefaults()
	var audits []*model.AuditEvent
	var session *model.TeamSession
	result := &SkipResult{SkipPenaltySeconds: settings.SkipPenaltySeconds}

	err := s.Store.Transaction(func(tx TeamProgressStore) error {
		puzzle, sess, prog, err := s.loadContext(tx, teamID, puzzleID, now)
		if err != nil {
			return err
		}

		if prog.Status == model.QuestionCompleted {
			return util.NewAppError(util.KindCannotSkipCompleted, "question %d already completed", puzzleID)
		}
		if !puzzle.Skippable {
			return util.NewAppError(util.KindInvalidStateTransition, "question %d cannot be skipped", puzzleID)
		}

		all, err := tx.ListTeamProgress(teamID)
		if err != nil {
			return err
		}
		totalSkips := 0
		for _, p := range all {
			totalSkips += p.SkipCount
		}
		if totalSkips >= settings.MaxSkipsPerTeam {
			return util.NewAppError(util.KindSkipLimitExceeded, "skip limit of %d reached", settings.MaxSkipsPerTeam)
		}

		if ev, err := s.demoteActive(tx, sess, puzzleID, now); err != nil {
			return err
		} else if ev != nil {
			audits = append(audits, ev)
		}

		before := prog.TimeSpentSeconds
		previous := prog.Status
		foldElapsed(prog, now)
		prog.Status = model.QuestionSkipped
		prog.SkipCount++
		prog.TimePenaltySeconds += settings.SkipPenaltySeconds
		if err := tx.SaveProgress(prog); err != nil {
			return err
		}

		meta, _ := json.Marshal(map[string]interface{}{
			"penaltySeconds": settings.SkipPenaltySeconds,
			"skipCount":      prog.SkipCount,
		})
		audits = append(audits, &model.AuditEvent{
			TeamID:         teamID,
			PuzzleID:       &puzzle.ID,
			LevelID:        &puzzle.LevelID,
			EventType:      model.AuditQuestionSkipped,
			TimeBefore:     before,
			TimeAfter:      prog.TimeSpentSeconds,
			PreviousStatus: string(previous),
			NewStatus:      string(model.QuestionSkipped),
			Metadata:       string(meta),
			Actor:          model.ActorTeam,
			ActorID:        teamID,
		})

		// 下一题扫描只在当前关卡内（不跨关卡）
		next, err := s.nextEligible(tx, teamID, puzzle.LevelID, puzzleID)
		if err != nil {
			return err
		}
		if next != nil {
			nextProg, err := s.ensureProgress(tx, teamID, next)
			if err != nil {
				return err
			}
			nextProg.Status = model.QuestionInProgress
			nextProg.StartedAt = &now
			if nextProg.FirstStartedAt == nil {
				nextProg.FirstStartedAt = &now
			}
			if err := tx.SaveProgress(nextProg); err != nil {
				return err
			}
			sess.CurrentPuzzleID = &next.ID
			sess.Status = model.SessionActive
			result.NextQuestion = &PuzzleRef{PuzzleID: next.ID, Number: next.Number, Title: next.Title}

			eagerMeta, _ := json.Marshal(map[string]interface{}{"eager": true, "afterSkipOf": puzzleID})
			audits = append(audits, &model.AuditEvent{
				TeamID:    teamID,
				PuzzleID:  &next.ID,
				LevelID:   &next.LevelID,
				EventType: model.AuditQuestionStarted,
				TimeAfter: nextProg.TimeSpentSeconds,
				NewStatus: string(model.QuestionInProgress),
				Metadata:  string(eagerMeta),
				Actor:     model.ActorSystem,
			})
		} else {
			sess.CurrentPuzzleID = nil
			sess.Status = model.SessionPaused
		}

		if err := s.Sessions.recompute(tx, sess); err != nil {
			return err
		}
		session = sess
		return nil
	})
	s.observe("skip", err)
	if err != nil {
		return nil, nil, err
	}

	s.Audit.RecordAll(audits)
	s.Sessions.publish(session)
	snap, err := s.Sessions.SyncTimer(teamID, &puzzleID)
	return result, snap, err
}

// GotoQuestion 导航/取消跳过：切换到任意未完成题目。已扣的跳题罚时不退。
func (s *TimerService) GotoQuestion(teamID, puzzleID uint) (*PuzzleRef, *TimerSnapshot, error) {
	unlock := s.Sessions.locks.lock(teamID)
	defer unlock()

	now := s.now()
	var audits []*model.AuditEvent
	var session *model.TeamSession
	var ref *PuzzleRef

	err := s.Store.Transaction(func(tx TeamProgressStore) error {
		puzzle, sess, prog, err := s.loadContext(tx, teamID, puzzleID, now)
		if err != nil {
			return err
		}

		switch prog.Status {
		case model.QuestionCompleted:
			return util.NewAppError(util.KindAlreadyCompleted, "question %d already completed", puzzleID)
		case model.QuestionInProgress:
			return util.NewAppError(util.KindAlreadyActive, "question %d is already active", puzzleID)
		}

		if ev, err := s.demoteActive(tx, sess, puzzleID, now); err != nil {
			return err
		} else if ev != nil {
			audits = append(audits, ev)
		}

		previous := prog.Status
		prog.Status = model.QuestionInProgress
		prog.StartedAt = &now
		if prog.FirstStartedAt == nil {
			prog.FirstStartedAt = &now
		}
		if err := tx.SaveProgress(prog); err != nil {
			return err
		}

		sess.CurrentPuzzleID = &puzzle.ID
		sess.Status = model.SessionActive
		if err := s.Sessions.recompute(tx, sess); err != nil {
			return err
		}
		session = sess
		ref = &PuzzleRef{PuzzleID: puzzle.ID, Number: puzzle.Number, Title: puzzle.Title}

		audits = append(audits, &model.AuditEvent{
			TeamID:         teamID,
			PuzzleID:       &puzzle.ID,
			LevelID:        &puzzle.LevelID,
			EventType:      model.AuditQuestionNavigated,
			TimeBefore:     prog.TimeSpentSeconds,
			TimeAfter:      prog.TimeSpentSeconds,
			PreviousStatus: string(previous),
			NewStatus:      string(model.QuestionInProgress),
			Actor:          model.ActorTeam,
			ActorID:        teamID,
		})
		return nil
	})
	s.observe("goto", err)
	if err != nil {
		return nil, nil, err
	}

	s.Audit.RecordAll(audits)
	s.Sessions.publish(session)
	snap, err := s.Sessions.SyncTimer(teamID, &puzzleID)
	return ref, snap, err
}

// loadContext 加载题目、会话与进度行；会话不存在时惰性创建
func (s *TimerService) loadContext(tx TeamProgressStore, teamID, puzzleID uint, now time.Time) (*model.Puzzle, *model.TeamSession, *model.QuestionProgress, error) {
	puzzle, err := tx.GetPuzzle(puzzleID)
	if err != nil {
		return nil, nil, nil, err
	}
	if puzzle == nil {
		return nil, nil, nil, util.NewAppError(util.KindNotFound, "question %d not found", puzzleID)
	}

	sess, err := ensureSession(tx, teamID, now)
	if err != nil {
		return nil, nil, nil, err
	}
	if sess.Status == model.SessionCompleted {
		return nil, nil, nil, util.NewAppError(util.KindInvalidStateTransition, "session already ended")
	}

	prog, err := s.ensureProgress(tx, teamID, puzzle)
	if err != nil {
		return nil, nil, nil, err
	}
	return puzzle, sess, prog, nil
}

func (s *TimerService) ensureProgress(tx TeamProgressStore, teamID uint, puzzle *model.Puzzle) (*model.QuestionProgress, error) {
	prog, err := tx.GetProgress(teamID, puzzle.ID)
	if err != nil {
		return nil, err
	}
	if prog == nil {
		prog = &model.QuestionProgress{
			TeamID:   teamID,
			PuzzleID: puzzle.ID,
			LevelID:  puzzle.LevelID,
			Status:   model.QuestionNotStarted,
		}
	}
	return prog, nil
}

// demoteActive 把本队其他进行中的题目折算后降回 NOT_STARTED，
// 单活跃题不变量由此集中保证，不再散落在各查询里。
func (s *TimerService) demoteActive(tx TeamProgressStore, sess *model.TeamSession, exceptPuzzleID uint, now time.Time) (*model.AuditEvent, error) {
	active, err := tx.GetActiveProgress(sess.TeamID)
	if err != nil {
		return nil, err
	}
	if active == nil || active.PuzzleID == exceptPuzzleID {
		return nil, nil
	}

	before := active.TimeSpentSeconds
	foldElapsed(active, now)
	active.Status = model.QuestionNotStarted
	if err := tx.SaveProgress(active); err != nil {
		return nil, err
	}
	sess.CurrentPuzzleID = nil

	meta, _ := json.Marshal(map[string]interface{}{"reason": "single_active_demotion"})
	return &model.AuditEvent{
		TeamID:         sess.TeamID,
		PuzzleID:       &active.PuzzleID,
		LevelID:        &active.LevelID,
		EventType:      model.AuditQuestionPaused,
		TimeBefore:     before,
		TimeAfter:      active.TimeSpentSeconds,
		PreviousStatus: string(model.QuestionInProgress),
		NewStatus:      string(model.QuestionNotStarted),
		Metadata:       string(meta),
		Actor:          model.ActorSystem,
	}, nil
}

// nextEligible 当前关卡内题号最小、未完成、且不是刚跳过的那道
func (s *TimerService) nextEligible(tx TeamProgressStore, teamID, levelID, skippedPuzzleID uint) (*model.Puzzle, error) {
	puzzles, err := tx.ListLevelPuzzles(levelID)
	if err != nil {
		return nil, err
	}
	progress, err := tx.ListLevelProgress(teamID, levelID)
	if err != nil {
		return nil, err
	}
	completed := make(map[uint]bool, len(progress))
	for _, p := range progress {
		if p.Status == model.QuestionCompleted {
			completed[p.PuzzleID] = true
		}
	}
	for i := range puzzles {
		p := &puzzles[i]
		if p.ID == skippedPuzzleID || completed[p.ID] {
			continue
		}
		return p, nil
	}
	return nil, nil
}

// levelCompleted 关卡内每道题都有 COMPLETED 进度行
func (s *TimerService) levelCompleted(tx TeamProgressStore, teamID, levelID uint) (bool, error) {
	puzzles, err := tx.ListLevelPuzzles(levelID)
	if err != nil {
		return false, err
	}
	if len(puzzles) == 0 {
		return false, nil
	}
	progress, err := tx.ListLevelProgress(teamID, levelID)
	if err != nil {
		return false, err
	}
	completed := make(map[uint]bool, len(progress))
	for _, p := range progress {
		if p.Status == model.QuestionCompleted {
			completed[p.PuzzleID] = true
		}
	}
	for _, p := range puzzles {
		if !completed[p.ID] {
			return false, nil
		}
	}
	return true, nil
}

func (s *TimerService) observe(op string, err error) {
	result := "ok"
	if err != nil {
		if kind, ok := util.KindOf(err); ok {
			result = string(kind)
		} else {
			result = "error"
		}
	}
	monitoring.TimerTransitions.WithLabelValues(op, result).Inc()
}
