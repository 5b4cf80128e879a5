package service

import (
	"testing"

	"puzzle_arena_backend/internal/model"
	"puzzle_arena_backend/internal/util"
)

func TestUseHintChargesPenalty(t *testing.T) {
	f := newFixture(t)
	p1 := f.puzzles[0].ID
	h1 := f.store.SeedHint(&model.Hint{PuzzleID: p1, SequenceNumber: 1, PenaltySeconds: 30, Content: "look closer"})

	result, snap, err := f.hints.UseHint(f.team.ID, p1, h1.ID)
	if err != nil {
		t.Fatalf("use hint failed: %v", err)
	}
	if result.PenaltySeconds != 30 || result.Content != "look closer" {
		t.Fatalf("unexpected result: %+v", result)
	}

	prog := f.mustProgress(t, p1)
	if prog.TimePenaltySeconds != 30 {
		t.Fatalf("question penalty = %d, want 30", prog.TimePenaltySeconds)
	}
	if snap.Session.TotalPenaltySeconds != 30 {
		t.Fatalf("session penalty = %d, want 30", snap.Session.TotalPenaltySeconds)
	}
}

func TestHintChargedOncePerTeam(t *testing.T) {
	f := newFixture(t)
	p1 := f.puzzles[0].ID
	h1 := f.store.SeedHint(&model.Hint{PuzzleID: p1, SequenceNumber: 1, PenaltySeconds: 30})

	if _, _, err := f.hints.UseHint(f.team.ID, p1, h1.ID); err != nil {
		t.Fatalf("first use failed: %v", err)
	}
	_, _, err := f.hints.UseHint(f.team.ID, p1, h1.ID)
	if !util.IsKind(err, util.KindSequenceViolation) {
		t.Fatalf("expected sequence_violation on reuse, got %v", err)
	}

	prog := f.mustProgress(t, p1)
	if prog.TimePenaltySeconds != 30 {
		t.Fatalf("penalty charged twice: %d", prog.TimePenaltySeconds)
	}
}

func TestHintsConsumedInSequenceOrder(t *testing.T) {
	f := newFixture(t)
	p1 := f.puzzles[0].ID
	h1 := f.store.SeedHint(&model.Hint{PuzzleID: p1, SequenceNumber: 1, PenaltySeconds: 30})
	h2 := f.store.SeedHint(&model.Hint{PuzzleID: p1, SequenceNumber: 2, PenaltySeconds: 45})

	_, _, err := f.hints.UseHint(f.team.ID, p1, h2.ID)
	if !util.IsKind(err, util.KindSequenceViolation) {
		t.Fatalf("expected sequence_violation for out-of-order hint, got %v", err)
	}

	if _, _, err := f.hints.UseHint(f.team.ID, p1, h1.ID); err != nil {
		t.Fatalf("hint 1 failed: %v", err)
	}
	if _, _, err := f.hints.UseHint(f.team.ID, p1, h2.ID); err != nil {
		t.Fatalf("hint 2 failed after hint 1: %v", err)
	}

	prog := f.mustProgress(t, p1)
	if prog.TimePenaltySeconds != 75 {
		t.Fatalf("total hint penalty = %d, want 75", prog.TimePenaltySeconds)
	}
}

func TestHintSequenceGapsAreUsable(t *testing.T) {
	f := newFixture(t)
	p1 := f.puzzles[0].ID
	h2 := f.store.SeedHint(&model.Hint{PuzzleID: p1, SequenceNumber: 2, PenaltySeconds: 30})
	h4 := f.store.SeedHint(&model.Hint{PuzzleID: p1, SequenceNumber: 4, PenaltySeconds: 45})

	_, _, err := f.hints.UseHint(f.team.ID, p1, h4.ID)
	if !util.IsKind(err, util.KindSequenceViolation) {
		t.Fatalf("expected sequence_violation for hint 4 before hint 2, got %v", err)
	}

	if _, _, err := f.hints.UseHint(f.team.ID, p1, h2.ID); err != nil {
		t.Fatalf("lowest unconsumed hint failed: %v", err)
	}
	if _, _, err := f.hints.UseHint(f.team.ID, p1, h4.ID); err != nil {
		t.Fatalf("next unconsumed hint failed: %v", err)
	}

	prog := f.mustProgress(t, p1)
	if prog.TimePenaltySeconds != 75 {
		t.Fatalf("total hint penalty = %d, want 75", prog.TimePenaltySeconds)
	}
}

func TestHintDefaultPenaltyApplies(t *testing.T) {
	f := newFixture(t)
	p1 := f.puzzles[0].ID
	h1 := f.store.SeedHint(&model.Hint{PuzzleID: p1, SequenceNumber: 1})

	result, _, err := f.hints.UseHint(f.team.ID, p1, h1.ID)
	if err != nil {
		t.Fatalf("use hint failed: %v", err)
	}
	if result.PenaltySeconds != 60 {
		t.Fatalf("default penalty = %d, want 60", result.PenaltySeconds)
	}
}

func TestHintMustBelongToQuestion(t *testing.T) {
	f := newFixture(t)
	p1, p2 := f.puzzles[0].ID, f.puzzles[1].ID
	h1 := f.store.SeedHint(&model.Hint{PuzzleID: p2, SequenceNumber: 1, PenaltySeconds: 30})

	if _, _, err := f.hints.UseHint(f.team.ID, p1, h1.ID); !util.IsKind(err, util.KindNotFound) {
		t.Fatalf("expected not_found for foreign hint, got %v", err)
	}
	if _, _, err := f.hints.UseHint(f.team.ID, p1, 9999); !util.IsKind(err, util.KindNotFound) {
		t.Fatalf("expected not_found for unknown hint, got %v", err)
	}
}

func TestHintRejectedAfterSessionEnd(t *testing.T) {
	f := newFixture(t)
	p1 := f.puzzles[0].ID
	h1 := f.store.SeedHint(&model.Hint{PuzzleID: p1, SequenceNumber: 1, PenaltySeconds: 30})

	if _, err := f.timers.StartQuestion(f.team.ID, p1); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	if _, _, err := f.sessions.EndSession(f.team.ID, model.ActorTeam, f.team.ID); err != nil {
		t.Fatalf("end failed: %v", err)
	}

	_, _, err := f.hints.UseHint(f.team.ID, p1, h1.ID)
	if !util.IsKind(err, util.KindInvalidStateTransition) {
		t.Fatalf("expected invalid_state_transition, got %v", err)
	}
}
