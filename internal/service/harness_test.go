package service

import (
	"testing"
	"time"

	"puzzle_arena_backend/internal/model"
	"puzzle_arena_backend/pkg/logger"

	"go.uber.org/zap"
)

func init() {
	logger.Log = zap.NewNop()
}

type fakeClock struct {
	t time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.t = c.t.Add(d)
}

type captureNotifier struct {
	notices []QualificationNotice
}

func (n *captureNotifier) QualificationDecided(notice QualificationNotice) {
	n.notices = append(n.notices, notice)
}

type fixture struct {
	store    *MemStore
	clock    *fakeClock
	notifier *captureNotifier

	sessions *SessionService
	timers   *TimerService
	hints    *HintService
	quals    *QualificationService

	team    *model.Team
	level   *model.Level
	puzzles []*model.Puzzle
}

// newFixture 一支队伍、一个三题关卡（100/150/200 分），无晋级阈值
func newFixture(t *testing.T) *fixture {
	t.Helper()

	store := NewMemStore()
	clock := newFakeClock()
	store.clock = clock.Now
	notifier := &captureNotifier{}

	settings := func() model.GameSettings {
		return model.GameSettings{}.WithDefaults()
	}

	audit := NewAuditService(store)
	sessions := NewSessionService(store, audit, nil)
	sessions.now = clock.Now
	quals := NewQualificationService(store, audit, notifier)
	quals.now = clock.Now
	timers := NewTimerService(store, sessions, audit, quals, settings)
	timers.now = clock.Now
	hints := NewHintService(store, sessions, audit, settings)
	hints.now = clock.Now

	team := store.SeedTeam(&model.Team{Name: "night-owls", IsActive: true})
	level := store.SeedLevel(&model.Level{Number: 1, Title: "warmup", IsActive: true})
	puzzles := []*model.Puzzle{
		store.SeedPuzzle(&model.Puzzle{LevelID: level.ID, Number: 1, Title: "cipher", Points: 100, Skippable: true}),
		store.SeedPuzzle(&model.Puzzle{LevelID: level.ID, Number: 2, Title: "maze", Points: 150, Skippable: true}),
		store.SeedPuzzle(&model.Puzzle{LevelID: level.ID, Number: 3, Title: "finale", Points: 200, Skippable: true}),
	}

	return &fixture{
		store:    store,
		clock:    clock,
		notifier: notifier,
		sessions: sessions,
		timers:   timers,
		hints:    hints,
		quals:    quals,
		team:     team,
		level:    level,
		puzzles:  puzzles,
	}
}

func (f *fixture) mustProgress(t *testing.T, puzzleID uint) *model.QuestionProgress {
	t.Helper()
	prog, err := f.store.GetProgress(f.team.ID, puzzleID)
	if err != nil {
		t.Fatalf("get progress: %v", err)
	}
	if prog == nil {
		t.Fatalf("no progress row for puzzle %d", puzzleID)
	}
	return prog
}

func (f *fixture) mustSession(t *testing.T) *model.TeamSession {
	t.Helper()
	sess, err := f.store.GetSession(f.team.ID)
	if err != nil {
		t.Fatalf("get session: %v", err)
	}
	if sess == nil {
		t.Fatal("no session row")
	}
	return sess
}
