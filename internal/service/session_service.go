package service

import (
	"time"

	"puzzle_arena_backend/internal/model"
	"puzzle_arena_backend/internal/util"
)

// SessionService 会话聚合与罚时台账：每次进度/提示变更后重算缓存的汇总值，
// 并对外发布有效耗时（排名指标）。
type SessionService struct {
	Store       TeamProgressStore
	Audit       *AuditService
	Leaderboard LeaderboardPublisher

	locks *teamLocks
	now   func() time.Time
}

func NewSessionService(store TeamProgressStore, audit *AuditService, leaderboard LeaderboardPublisher) *SessionService {
	return &SessionService{
		Store:       store,
		Audit:       audit,
		Leaderboard: leaderboard,
		locks:       newTeamLocks(),
		now:         time.Now,
	}
}

// QuestionSnapshot 单题计时快照，ElapsedSeconds 含进行中的未折算时间
type QuestionSnapshot struct {
	PuzzleID           uint                 `json:"puzzleId"`
	LevelID            uint                 `json:"levelId"`
	Status             model.QuestionStatus `json:"status"`
	TimeSpentSeconds   int                  `json:"timeSpentSeconds"`
	ElapsedSeconds     int                  `json:"elapsedSeconds"`
	SkipCount          int                  `json:"skipCount"`
	TimePenaltySeconds int                  `json:"timePenaltySeconds"`
	Correct            bool                 `json:"correct"`
}

// SessionSnapshot 会话级汇总快照
type SessionSnapshot struct {
	Status               model.SessionStatus `json:"status"`
	ActiveTimeSeconds    int                 `json:"activeTimeSeconds"`
	TotalPenaltySeconds  int                 `json:"totalPenaltySeconds"`
	EffectiveTimeSeconds int                 `json:"effectiveTimeSeconds"`
	QuestionsCompleted   int                 `json:"questionsCompleted"`
	QuestionsSkipped     int                 `json:"questionsSkipped"`
	CurrentPuzzleID      *uint               `json:"currentPuzzleId,omitempty"`
	SessionStart         *time.Time          `json:"sessionStart,omitempty"`
	SessionEnd           *time.Time          `json:"sessionEnd,omitempty"`
}

// TimerSnapshot 服务端权威计时快照；所有成功响应都附带，客户端永远不需要信任本地时钟
type TimerSnapshot struct {
	Question   *QuestionSnapshot `json:"question,omitempty"`
	Session    *SessionSnapshot  `json:"session"`
	ServerTime time.Time         `json:"serverTime"`
}

// recompute 在事务内重算并回写会话聚合值；只累加已折算时间
func (s *SessionService) recompute(tx TeamProgressStore, session *model.TeamSession) error {
	progress, err := tx.ListTeamProgress(session.TeamID)
	if err != nil {
		return err
	}

	active, penalty, completed, skipped := 0, 0, 0, 0
	for _, p := range progress {
		active += p.TimeSpentSeconds
		penalty += p.TimePenaltySeconds
		if p.Status == model.QuestionCompleted {
			completed++
		}
		if p.SkipCount > 0 {
			skipped++
		}
	}

	session.ActiveTimeSeconds = active
	session.TotalPenaltySeconds = penalty
	session.QuestionsCompleted = completed
	session.QuestionsSkipped = skipped
	return tx.SaveSession(session)
}

// publish 在事务提交后推送排名指标，临界区内不做网络调用
func (s *SessionService) publish(session *model.TeamSession) {
	if session == nil || s.Leaderboard == nil {
		return
	}
	s.Leaderboard.PublishEffectiveTime(session.TeamID, session.EffectiveTimeSeconds())
}

// EndSession 折算进行中的题目后关闭会话，返回最终有效总耗时
func (s *SessionService) EndSession(teamID uint, actor string, actorID uint) (int, *TimerSnapshot, error) {
	unlock := s.locks.lock(teamID)
	defer unlock()

	now := s.now()
	var session *model.TeamSession
	var folded *model.QuestionProgress

	err := s.Store.Transaction(func(tx TeamProgressStore) error {
		sess, err := tx.GetSession(teamID)
		if err != nil {
			return err
		}
		if sess == nil {
			return util.NewAppError(util.KindNotFound, "no session for team %d", teamID)
		}
		if sess.Status == model.SessionCompleted {
			return util.NewAppError(util.KindAlreadyCompleted, "session already ended")
		}

		activeProg, err := tx.GetActiveProgress(teamID)
		if err != nil {
			return err
		}
		if activeProg != nil {
			foldElapsed(activeProg, now)
			activeProg.Status = model.QuestionNotStarted
			if err := tx.SaveProgress(activeProg); err != nil {
				return err
			}
			folded = activeProg
		}

		sess.CurrentPuzzleID = nil
		sess.Status = model.SessionCompleted
		sess.SessionEnd = &now
		if err := s.recompute(tx, sess); err != nil {
			return err
		}
		session = sess
		return nil
	})
	if err != nil {
		return 0, nil, err
	}

	event := &model.AuditEvent{
		TeamID:     teamID,
		EventType:  model.AuditSessionEnded,
		TimeBefore: session.ActiveTimeSeconds,
		TimeAfter:  session.EffectiveTimeSeconds(),
		NewStatus:  string(model.SessionCompleted),
		Actor:      actor,
		ActorID:    actorID,
	}
	if folded != nil {
		event.PuzzleID = &folded.PuzzleID
	}
	s.Audit.Record(event)
	s.publish(session)

	snapshot := s.buildSnapshot(session, nil, now)
	return session.EffectiveTimeSeconds(), snapshot, nil
}

// SyncTimer 只读投影：断线重连后客户端凭它对账，绝不改变任何状态
func (s *SessionService) SyncTimer(teamID uint, puzzleID *uint) (*TimerSnapshot, error) {
	now := s.now()

	session, err := s.Store.GetSession(teamID)
	if err != nil {
		return nil, err
	}

	var question *model.QuestionProgress
	if puzzleID != nil {
		question, err = s.Store.GetProgress(teamID, *puzzleID)
		if err != nil {
			return nil, err
		}
		if question == nil {
			return nil, util.NewAppError(util.KindNotFound, "no progress for question %d", *puzzleID)
		}
	}

	return s.buildSnapshot(session, question, now), nil
}

func (s *SessionService) buildSnapshot(session *model.TeamSession, question *model.QuestionProgress, now time.Time) *TimerSnapshot {
	snap := &TimerSnapshot{ServerTime: now}

	sess := &SessionSnapshot{Status: model.SessionNotStarted}
	if session != nil {
		inFlight := 0
		if session.CurrentPuzzleID != nil && session.Status == model.SessionActive {
			if active, err := s.Store.GetProgress(session.TeamID, *session.CurrentPuzzleID); err == nil && active != nil && active.StartedAt != nil {
				inFlight = elapsedSince(*active.StartedAt, now)
			}
		}
		sess = &SessionSnapshot{
			Status:               session.Status,
			ActiveTimeSeconds:    session.ActiveTimeSeconds + inFlight,
			TotalPenaltySeconds:  session.TotalPenaltySeconds,
			EffectiveTimeSeconds: session.EffectiveTimeSeconds() + inFlight,
			QuestionsCompleted:   session.QuestionsCompleted,
			QuestionsSkipped:     session.QuestionsSkipped,
			CurrentPuzzleID:      session.CurrentPuzzleID,
			SessionStart:         session.SessionStart,
			SessionEnd:           session.SessionEnd,
		}
	}
	snap.Session = sess

	if question != nil {
		elapsed := question.TimeSpentSeconds
		if question.Status == model.QuestionInProgress && question.StartedAt != nil {
			elapsed += elapsedSince(*question.StartedAt, now)
		}
		snap.Question = &QuestionSnapshot{
			PuzzleID:           question.PuzzleID,
			LevelID:            question.LevelID,
			Status:             question.Status,
			TimeSpentSeconds:   question.TimeSpentSeconds,
			ElapsedSeconds:     elapsed,
			SkipCount:          question.SkipCount,
			TimePenaltySeconds: question.TimePenaltySeconds,
			Correct:            question.Correct,
		}
	}
	return snap
}

// ensureSession 会话在首次动作时惰性创建
func ensureSession(tx TeamProgressStore, teamID uint, now time.Time) (*model.TeamSession, error) {
	sess, err := tx.GetSession(teamID)
	if err != nil {
		return nil, err
	}
	if sess != nil {
		return sess, nil
	}

	team, err := tx.GetTeam(teamID)
	if err != nil {
		return nil, err
	}
	if team == nil {
		return nil, util.NewAppError(util.KindNotFound, "team %d not found", teamID)
	}

	sess = &model.TeamSession{
		TeamID:       teamID,
		Status:       model.SessionActive,
		SessionStart: &now,
	}
	if err := tx.SaveSession(sess); err != nil {
		return nil, err
	}
	return sess, nil
}

// elapsedSince 计时只信服务端时钟，负值一律归零
func elapsedSince(start, now time.Time) int {
	elapsed := int(now.Sub(start).Seconds())
	if elapsed < 0 {
		return 0
	}
	return elapsed
}

// foldElapsed 在 pause/complete/skip 的瞬间把 now-started_at 折入累计耗时；
// 这是唯一的计时路径，time_spent_seconds 因此单调不减
func foldElapsed(p *model.QuestionProgress, now time.Time) int {
	if p.StartedAt == nil {
		return 0
	}
	elapsed := elapsedSince(*p.StartedAt, now)
	p.TimeSpentSeconds += elapsed
	p.StartedAt = nil
	return elapsed
}
