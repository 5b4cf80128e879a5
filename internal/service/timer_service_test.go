package service

import (
	"testing"
	"time"

	"puzzle_arena_backend/internal/model"
	"puzzle_arena_backend/internal/util"
)

func TestStartPauseResumeCompleteAccumulates(t *testing.T) {
	f := newFixture(t)
	p1 := f.puzzles[0].ID

	if _, err := f.timers.StartQuestion(f.team.ID, p1); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	f.clock.Advance(42 * time.Second)
	if _, err := f.timers.PauseQuestion(f.team.ID, p1); err != nil {
		t.Fatalf("pause failed: %v", err)
	}

	prog := f.mustProgress(t, p1)
	if prog.TimeSpentSeconds != 42 {
		t.Fatalf("expected 42s after pause, got %d", prog.TimeSpentSeconds)
	}
	if prog.StartedAt != nil {
		t.Fatal("started_at should be cleared after pause")
	}

	if _, _, err := f.timers.ResumeQuestion(f.team.ID, p1); err != nil {
		t.Fatalf("resume failed: %v", err)
	}
	f.clock.Advance(8 * time.Second)
	if _, err := f.timers.CompleteQuestion(f.team.ID, p1, true); err != nil {
		t.Fatalf("complete failed: %v", err)
	}

	prog = f.mustProgress(t, p1)
	if prog.TimeSpentSeconds != 50 {
		t.Fatalf("expected 50s total, got %d", prog.TimeSpentSeconds)
	}
	if prog.Status != model.QuestionCompleted || !prog.Correct {
		t.Fatalf("unexpected final state: %s correct=%v", prog.Status, prog.Correct)
	}
	if prog.CompletedAt == nil || prog.FirstStartedAt == nil {
		t.Fatal("completed_at and first_started_at must be set")
	}

	sess := f.mustSession(t)
	if sess.ActiveTimeSeconds != 50 {
		t.Fatalf("session active time = %d, want 50", sess.ActiveTimeSeconds)
	}
	if sess.QuestionsCompleted != 1 {
		t.Fatalf("questions completed = %d, want 1", sess.QuestionsCompleted)
	}
}

func TestPauseWithoutActiveTimerRejected(t *testing.T) {
	f := newFixture(t)
	p1 := f.puzzles[0].ID

	if _, err := f.timers.StartQuestion(f.team.ID, p1); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	f.clock.Advance(10 * time.Second)
	if _, err := f.timers.PauseQuestion(f.team.ID, p1); err != nil {
		t.Fatalf("pause failed: %v", err)
	}

	_, err := f.timers.PauseQuestion(f.team.ID, p1)
	if !util.IsKind(err, util.KindNotInProgress) {
		t.Fatalf("expected not_in_progress, got %v", err)
	}

	// 被拒绝的调用不能改变任何计时状态
	prog := f.mustProgress(t, p1)
	if prog.TimeSpentSeconds != 10 {
		t.Fatalf("time changed by rejected pause: %d", prog.TimeSpentSeconds)
	}
}

func TestStartDemotesOtherActiveQuestion(t *testing.T) {
	f := newFixture(t)
	p1, p2 := f.puzzles[0].ID, f.puzzles[1].ID

	if _, err := f.timers.StartQuestion(f.team.ID, p1); err != nil {
		t.Fatalf("start p1 failed: %v", err)
	}
	f.clock.Advance(10 * time.Second)
	if _, err := f.timers.StartQuestion(f.team.ID, p2); err != nil {
		t.Fatalf("start p2 failed: %v", err)
	}

	prog1 := f.mustProgress(t, p1)
	if prog1.Status != model.QuestionNotStarted || prog1.TimeSpentSeconds != 10 {
		t.Fatalf("p1 should be demoted with 10s folded, got %s %ds", prog1.Status, prog1.TimeSpentSeconds)
	}
	prog2 := f.mustProgress(t, p2)
	if prog2.Status != model.QuestionInProgress {
		t.Fatalf("p2 should be active, got %s", prog2.Status)
	}

	sess := f.mustSession(t)
	if sess.CurrentPuzzleID == nil || *sess.CurrentPuzzleID != p2 {
		t.Fatalf("current puzzle pointer = %v, want %d", sess.CurrentPuzzleID, p2)
	}

	// 降级以系统身份落审计
	demoted := false
	for _, e := range f.store.Audits() {
		if e.EventType == model.AuditQuestionPaused && e.Actor == model.ActorSystem && e.PuzzleID != nil && *e.PuzzleID == p1 {
			demoted = true
		}
	}
	if !demoted {
		t.Fatal("missing system demotion audit event")
	}
}

func TestCompletedQuestionIsTerminal(t *testing.T) {
	f := newFixture(t)
	p1 := f.puzzles[0].ID

	if _, err := f.timers.StartQuestion(f.team.ID, p1); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	f.clock.Advance(5 * time.Second)
	if _, err := f.timers.CompleteQuestion(f.team.ID, p1, true); err != nil {
		t.Fatalf("complete failed: %v", err)
	}

	if _, err := f.timers.StartQuestion(f.team.ID, p1); !util.IsKind(err, util.KindAlreadyCompleted) {
		t.Fatalf("start after complete: expected already_completed, got %v", err)
	}
	if _, err := f.timers.CompleteQuestion(f.team.ID, p1, false); !util.IsKind(err, util.KindAlreadyCompleted) {
		t.Fatalf("double complete: expected already_completed, got %v", err)
	}
	if _, _, err := f.timers.SkipQuestion(f.team.ID, p1); !util.IsKind(err, util.KindCannotSkipCompleted) {
		t.Fatalf("skip after complete: expected cannot_skip_completed, got %v", err)
	}

	prog := f.mustProgress(t, p1)
	if prog.TimeSpentSeconds != 5 || !prog.Correct {
		t.Fatalf("terminal state mutated: %ds correct=%v", prog.TimeSpentSeconds, prog.Correct)
	}
}

func TestSkipChargesPenaltyAndActivatesNext(t *testing.T) {
	f := newFixture(t)
	p1, p2 := f.puzzles[0].ID, f.puzzles[1].ID

	if _, err := f.timers.StartQuestion(f.team.ID, p1); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	f.clock.Advance(7 * time.Second)
	result, _, err := f.timers.SkipQuestion(f.team.ID, p1)
	if err != nil {
		t.Fatalf("skip failed: %v", err)
	}

	if result.SkipPenaltySeconds != 300 {
		t.Fatalf("skip penalty = %d, want 300", result.SkipPenaltySeconds)
	}
	if result.NextQuestion == nil || result.NextQuestion.PuzzleID != p2 {
		t.Fatalf("next question = %+v, want puzzle %d", result.NextQuestion, p2)
	}

	prog1 := f.mustProgress(t, p1)
	if prog1.Status != model.QuestionSkipped || prog1.SkipCount != 1 {
		t.Fatalf("p1 state: %s skips=%d", prog1.Status, prog1.SkipCount)
	}
	if prog1.TimeSpentSeconds != 7 || prog1.TimePenaltySeconds != 300 {
		t.Fatalf("p1 accounting: %ds penalty=%ds", prog1.TimeSpentSeconds, prog1.TimePenaltySeconds)
	}

	prog2 := f.mustProgress(t, p2)
	if prog2.Status != model.QuestionInProgress {
		t.Fatalf("p2 should be eagerly activated, got %s", prog2.Status)
	}

	sess := f.mustSession(t)
	if sess.TotalPenaltySeconds != 300 {
		t.Fatalf("session penalty = %d, want 300", sess.TotalPenaltySeconds)
	}
	if sess.EffectiveTimeSeconds() != 307 {
		t.Fatalf("effective time = %d, want 307", sess.EffectiveTimeSeconds())
	}
}

func TestSkipPenaltySurvivesReturnAndComplete(t *testing.T) {
	f := newFixture(t)
	p1 := f.puzzles[0].ID

	if _, _, err := f.timers.SkipQuestion(f.team.ID, p1); err != nil {
		t.Fatalf("skip failed: %v", err)
	}

	// 回头补做跳过的题：罚时不退
	if _, _, err := f.timers.GotoQuestion(f.team.ID, p1); err != nil {
		t.Fatalf("goto failed: %v", err)
	}
	f.clock.Advance(20 * time.Second)
	if _, err := f.timers.CompleteQuestion(f.team.ID, p1, true); err != nil {
		t.Fatalf("complete failed: %v", err)
	}

	prog := f.mustProgress(t, p1)
	if prog.TimePenaltySeconds != 300 {
		t.Fatalf("penalty must survive unskip, got %d", prog.TimePenaltySeconds)
	}
	if prog.Status != model.QuestionCompleted {
		t.Fatalf("unexpected status %s", prog.Status)
	}
}

func TestSkipLimitIsPerTeamAcrossQuestions(t *testing.T) {
	f := newFixture(t)

	// 默认上限 3 次；跳过会抢先激活下一题，循环回到未完成的题
	targets := []uint{f.puzzles[0].ID, f.puzzles[1].ID, f.puzzles[2].ID}
	for _, id := range targets {
		if _, _, err := f.timers.SkipQuestion(f.team.ID, id); err != nil {
			t.Fatalf("skip %d failed: %v", id, err)
		}
	}

	_, _, err := f.timers.SkipQuestion(f.team.ID, f.puzzles[0].ID)
	if !util.IsKind(err, util.KindSkipLimitExceeded) {
		t.Fatalf("expected skip_limit_exceeded, got %v", err)
	}

	sess := f.mustSession(t)
	if sess.TotalPenaltySeconds != 900 {
		t.Fatalf("three skips should cost 900s, got %d", sess.TotalPenaltySeconds)
	}
}

func TestSkipNonSkippableRejected(t *testing.T) {
	f := newFixture(t)
	fixed := f.store.SeedPuzzle(&model.Puzzle{LevelID: f.level.ID, Number: 4, Title: "anchor", Points: 50, Skippable: false})

	_, _, err := f.timers.SkipQuestion(f.team.ID, fixed.ID)
	if !util.IsKind(err, util.KindInvalidStateTransition) {
		t.Fatalf("expected invalid_state_transition, got %v", err)
	}
}

func TestGotoNavigatesBetweenQuestions(t *testing.T) {
	f := newFixture(t)
	p1, p2 := f.puzzles[0].ID, f.puzzles[1].ID

	if _, err := f.timers.StartQuestion(f.team.ID, p1); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	f.clock.Advance(15 * time.Second)

	ref, _, err := f.timers.GotoQuestion(f.team.ID, p2)
	if err != nil {
		t.Fatalf("goto failed: %v", err)
	}
	if ref.PuzzleID != p2 {
		t.Fatalf("goto returned puzzle %d, want %d", ref.PuzzleID, p2)
	}

	prog1 := f.mustProgress(t, p1)
	if prog1.Status != model.QuestionNotStarted || prog1.TimeSpentSeconds != 15 {
		t.Fatalf("p1 should be folded and demoted: %s %ds", prog1.Status, prog1.TimeSpentSeconds)
	}

	if _, _, err := f.timers.GotoQuestion(f.team.ID, p2); !util.IsKind(err, util.KindAlreadyActive) {
		t.Fatalf("goto active question: expected already_active, got %v", err)
	}
}

func TestClockSkewNeverProducesNegativeTime(t *testing.T) {
	f := newFixture(t)
	p1 := f.puzzles[0].ID

	if _, err := f.timers.StartQuestion(f.team.ID, p1); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	f.clock.Advance(-30 * time.Second)
	if _, err := f.timers.PauseQuestion(f.team.ID, p1); err != nil {
		t.Fatalf("pause failed: %v", err)
	}

	prog := f.mustProgress(t, p1)
	if prog.TimeSpentSeconds != 0 {
		t.Fatalf("negative elapsed must floor at 0, got %d", prog.TimeSpentSeconds)
	}
}

func TestEndedSessionRejectsTimerOps(t *testing.T) {
	f := newFixture(t)
	p1 := f.puzzles[0].ID

	if _, err := f.timers.StartQuestion(f.team.ID, p1); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	if _, _, err := f.sessions.EndSession(f.team.ID, model.ActorTeam, f.team.ID); err != nil {
		t.Fatalf("end session failed: %v", err)
	}

	if _, err := f.timers.StartQuestion(f.team.ID, p1); !util.IsKind(err, util.KindInvalidStateTransition) {
		t.Fatalf("expected invalid_state_transition after session end, got %v", err)
	}
}

func TestCompletingWholeLevelTriggersQualification(t *testing.T) {
	f := newFixture(t)

	for _, p := range f.puzzles {
		if _, err := f.timers.StartQuestion(f.team.ID, p.ID); err != nil {
			t.Fatalf("start %d failed: %v", p.ID, err)
		}
		f.clock.Advance(30 * time.Second)
		if _, err := f.timers.CompleteQuestion(f.team.ID, p.ID, true); err != nil {
			t.Fatalf("complete %d failed: %v", p.ID, err)
		}
	}

	ls, err := f.store.GetLevelStatus(f.team.ID, f.level.ID)
	if err != nil || ls == nil {
		t.Fatalf("level status missing: %v", err)
	}
	if ls.Status != model.LevelCompleted {
		t.Fatalf("level status = %s, want COMPLETED", ls.Status)
	}
	// 未配置阈值时放行
	if ls.QualificationStatus != model.QualificationQualified {
		t.Fatalf("qualification = %s, want QUALIFIED", ls.QualificationStatus)
	}
	if ls.Score != 450 {
		t.Fatalf("score = %d, want 450", ls.Score)
	}

	if len(f.notifier.notices) != 1 {
		t.Fatalf("expected 1 qualification notice, got %d", len(f.notifier.notices))
	}
}

func TestUnknownQuestionAndTeam(t *testing.T) {
	f := newFixture(t)

	if _, err := f.timers.StartQuestion(f.team.ID, 9999); !util.IsKind(err, util.KindNotFound) {
		t.Fatalf("unknown question: expected not_found, got %v", err)
	}
	if _, err := f.timers.StartQuestion(424242, f.puzzles[0].ID); !util.IsKind(err, util.KindNotFound) {
		t.Fatalf("unknown team: expected not_found, got %v", err)
	}
}
