package service

import (
	"encoding/json"
	"time"

	"puzzle_arena_backend/internal/model"
	"puzzle_arena_backend/internal/util"
)

// HintService 提示消费：同一提示每队最多用一次，且必须按序号升序解锁；
// 罚时计入对应题目并进入会话台账。
type HintService struct {
	Store    TeamProgressStore
	Sessions *SessionService
	Audit    *AuditService

	settings SettingsProvider
	now      func() time.Time
}

func NewHintService(store TeamProgressStore, sessions *SessionService, audit *AuditService, settings SettingsProvider) *HintService {
	return &HintService{
		Store:    store,
		Sessions: sessions,
		Audit:    audit,
		settings: settings,
		now:      time.Now,
	}
}

// HintResult 返回提示正文与实际入账的罚时
type HintResult struct {
	HintID         uint   `json:"hintId"`
	SequenceNumber int    `json:"sequenceNumber"`
	PenaltySeconds int    `json:"penaltySeconds"`
	Content        string `json:"content"`
}

func (s *HintService) UseHint(teamID, puzzleID, hintID uint) (*HintResult, *TimerSnapshot, error) {
	unlock := s.Sessions.locks.lock(teamID)
	defer unlock()

	now := s.now()
	settings := s.settings().WithDefaults()
	var audits []*model.AuditEvent
	var session *model.TeamSession
	var result *HintResult

	err := s.Store.Transaction(func(tx TeamProgressStore) error {
		hint, err := tx.GetHint(hintID)
		if err != nil {
			return err
		}
		if hint == nil || hint.PuzzleID != puzzleID {
			return util.NewAppError(util.KindNotFound, "hint %d not found for question %d", hintID, puzzleID)
		}
		puzzle, err := tx.GetPuzzle(puzzleID)
		if err != nil {
			return err
		}
		if puzzle == nil {
			return util.NewAppError(util.KindNotFound, "question %d not found", puzzleID)
		}

		if used, err := tx.GetHintUsage(teamID, hintID); err != nil {
			return err
		} else if used != nil {
			return util.NewAppError(util.KindSequenceViolation, "hint %d already used", hintID)
		}

		// 升序解锁：请求的提示必须是本题尚未消费的最小序号
		usages, err := tx.ListTeamHintUsage(teamID)
		if err != nil {
			return err
		}
		consumed := map[int]bool{}
		for _, u := range usages {
			if u.PuzzleID == puzzleID {
				consumed[u.SequenceNumber] = true
			}
		}
		hints, err := tx.ListPuzzleHints(puzzleID)
		if err != nil {
			return err
		}
		nextSeq := 0
		for _, h := range hints {
			if !consumed[h.SequenceNumber] {
				nextSeq = h.SequenceNumber
				break
			}
		}
		if hint.SequenceNumber != nextSeq {
			return util.NewAppError(util.KindSequenceViolation,
				"hint sequence %d out of order, next allowed is %d", hint.SequenceNumber, nextSeq)
		}

		sess, err := ensureSession(tx, teamID, now)
		if err != nil {
			return err
		}
		if sess.Status == model.SessionCompleted {
			return util.NewAppError(util.KindInvalidStateTransition, "session already ended")
		}

		prog, err := tx.GetProgress(teamID, puzzleID)
		if err != nil {
			return err
		}
		if prog == nil {
			prog = &model.QuestionProgress{
				TeamID:   teamID,
				PuzzleID: puzzleID,
				LevelID:  puzzle.LevelID,
				Status:   model.QuestionNotStarted,
			}
		}

		penalty := hint.PenaltySeconds
		if penalty <= 0 {
			penalty = settings.DefaultHintPenaltySeconds
		}

		before := prog.TimePenaltySeconds
		prog.TimePenaltySeconds += penalty
		if err := tx.SaveProgress(prog); err != nil {
			return err
		}

		usage := &model.HintUsage{
			TeamID:         teamID,
			HintID:         hintID,
			PuzzleID:       puzzleID,
			LevelID:        puzzle.LevelID,
			SequenceNumber: hint.SequenceNumber,
			PenaltySeconds: penalty,
			UsedAt:         now,
		}
		if err := tx.CreateHintUsage(usage); err != nil {
			return err
		}

		if err := s.Sessions.recompute(tx, sess); err != nil {
			return err
		}
		session = sess

		result = &HintResult{
			HintID:         hint.ID,
			SequenceNumber: hint.SequenceNumber,
			PenaltySeconds: penalty,
			Content:        hint.Content,
		}

		meta, _ := json.Marshal(map[string]interface{}{
			"hintId":         hintID,
			"sequenceNumber": hint.SequenceNumber,
			"penaltySeconds": penalty,
		})
		audits = append(audits, &model.AuditEvent{
			TeamID:     teamID,
			PuzzleID:   &puzzle.ID,
			LevelID:    &puzzle.LevelID,
			EventType:  model.AuditHintUsed,
			TimeBefore: before,
			TimeAfter:  prog.TimePenaltySeconds,
			Metadata:   string(meta),
			Actor:      model.ActorTeam,
			ActorID:    teamID,
		})
		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	s.Audit.RecordAll(audits)
	s.Sessions.publish(session)
	snap, err := s.Sessions.SyncTimer(teamID, &puzzleID)
	return result, snap, err
}
