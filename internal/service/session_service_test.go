package service

import (
	"testing"
	"time"

	"puzzle_arena_backend/internal/model"
	"puzzle_arena_backend/internal/util"
)

func TestEndSessionFoldsActiveTimer(t *testing.T) {
	f := newFixture(t)
	p1 := f.puzzles[0].ID

	if _, err := f.timers.StartQuestion(f.team.ID, p1); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	f.clock.Advance(30 * time.Second)

	effective, snap, err := f.sessions.EndSession(f.team.ID, model.ActorTeam, f.team.ID)
	if err != nil {
		t.Fatalf("end session failed: %v", err)
	}
	if effective != 30 {
		t.Fatalf("effective time = %d, want 30", effective)
	}
	if snap.Session.Status != model.SessionCompleted {
		t.Fatalf("snapshot status = %s, want COMPLETED", snap.Session.Status)
	}
	if snap.Session.SessionEnd == nil {
		t.Fatal("session end timestamp missing")
	}

	prog := f.mustProgress(t, p1)
	if prog.Status == model.QuestionInProgress || prog.StartedAt != nil {
		t.Fatalf("active timer must be folded at session end: %s", prog.Status)
	}
	if prog.TimeSpentSeconds != 30 {
		t.Fatalf("folded time = %d, want 30", prog.TimeSpentSeconds)
	}

	sess := f.mustSession(t)
	if sess.CurrentPuzzleID != nil {
		t.Fatal("current puzzle pointer must be cleared")
	}
}

func TestEndSessionIncludesAllPenalties(t *testing.T) {
	f := newFixture(t)
	p1 := f.puzzles[0].ID

	if _, _, err := f.timers.SkipQuestion(f.team.ID, p1); err != nil {
		t.Fatalf("skip failed: %v", err)
	}
	// 跳题已抢先激活 p2，再计 20 秒
	f.clock.Advance(20 * time.Second)

	effective, _, err := f.sessions.EndSession(f.team.ID, model.ActorTeam, f.team.ID)
	if err != nil {
		t.Fatalf("end session failed: %v", err)
	}
	if effective != 320 {
		t.Fatalf("effective = %d, want 320 (300 penalty + 20 active)", effective)
	}
}

func TestEndSessionIsTerminal(t *testing.T) {
	f := newFixture(t)

	if _, err := f.timers.StartQuestion(f.team.ID, f.puzzles[0].ID); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	if _, _, err := f.sessions.EndSession(f.team.ID, model.ActorTeam, f.team.ID); err != nil {
		t.Fatalf("end failed: %v", err)
	}

	_, _, err := f.sessions.EndSession(f.team.ID, model.ActorAdmin, 1)
	if !util.IsKind(err, util.KindAlreadyCompleted) {
		t.Fatalf("expected already_completed, got %v", err)
	}
}

func TestEndSessionWithoutSession(t *testing.T) {
	f := newFixture(t)

	_, _, err := f.sessions.EndSession(f.team.ID, model.ActorTeam, f.team.ID)
	if !util.IsKind(err, util.KindNotFound) {
		t.Fatalf("expected not_found, got %v", err)
	}
}

func TestSyncTimerIsReadOnly(t *testing.T) {
	f := newFixture(t)
	p1 := f.puzzles[0].ID

	if _, err := f.timers.StartQuestion(f.team.ID, p1); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	f.clock.Advance(10 * time.Second)

	snap, err := f.sessions.SyncTimer(f.team.ID, &p1)
	if err != nil {
		t.Fatalf("sync failed: %v", err)
	}
	if snap.Question.ElapsedSeconds != 10 {
		t.Fatalf("elapsed = %d, want 10", snap.Question.ElapsedSeconds)
	}
	// 折算前累计值保持为 0，流逝时间只出现在快照里
	if snap.Question.TimeSpentSeconds != 0 {
		t.Fatalf("time spent = %d, want 0 before fold", snap.Question.TimeSpentSeconds)
	}
	if snap.Session.EffectiveTimeSeconds != 10 {
		t.Fatalf("session effective = %d, want 10", snap.Session.EffectiveTimeSeconds)
	}

	// 同步不落库
	prog := f.mustProgress(t, p1)
	if prog.TimeSpentSeconds != 0 || prog.StartedAt == nil {
		t.Fatalf("sync mutated progress: %ds started=%v", prog.TimeSpentSeconds, prog.StartedAt)
	}

	again, err := f.sessions.SyncTimer(f.team.ID, &p1)
	if err != nil {
		t.Fatalf("second sync failed: %v", err)
	}
	if again.Question.ElapsedSeconds != snap.Question.ElapsedSeconds {
		t.Fatal("repeated sync with frozen clock must agree")
	}
}

func TestSyncTimerUnknownQuestion(t *testing.T) {
	f := newFixture(t)
	unknown := uint(777)

	_, err := f.sessions.SyncTimer(f.team.ID, &unknown)
	if !util.IsKind(err, util.KindNotFound) {
		t.Fatalf("expected not_found, got %v", err)
	}
}

func TestSyncTimerBeforeAnyActivity(t *testing.T) {
	f := newFixture(t)

	snap, err := f.sessions.SyncTimer(f.team.ID, nil)
	if err != nil {
		t.Fatalf("sync failed: %v", err)
	}
	if snap.Session.Status != model.SessionNotStarted {
		t.Fatalf("fresh team session status = %s, want NOT_STARTED", snap.Session.Status)
	}
	if snap.Session.EffectiveTimeSeconds != 0 {
		t.Fatalf("fresh team effective = %d, want 0", snap.Session.EffectiveTimeSeconds)
	}
}
