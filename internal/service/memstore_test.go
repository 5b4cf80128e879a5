package service

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"puzzle_arena_backend/internal/model"
)

// 一支队伍回滚时，另一支队伍已提交的数据必须原封不动
func TestMemStoreRollbackKeepsOtherTeamsWrites(t *testing.T) {
	store := NewMemStore()
	teamA := store.SeedTeam(&model.Team{Name: "alpha", IsActive: true})
	teamB := store.SeedTeam(&model.Team{Name: "beta", IsActive: true})

	boom := errors.New("forced rollback")
	aEntered := make(chan struct{})
	bDone := make(chan struct{})

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		err := store.Transaction(func(tx TeamProgressStore) error {
			close(aEntered)
			if err := tx.SaveSession(&model.TeamSession{TeamID: teamA.ID, Status: model.SessionActive}); err != nil {
				return err
			}
			select {
			case <-bDone:
			case <-time.After(100 * time.Millisecond):
			}
			return boom
		})
		if err != boom {
			t.Errorf("want forced rollback error, got %v", err)
		}
	}()
	go func() {
		defer wg.Done()
		<-aEntered
		err := store.Transaction(func(tx TeamProgressStore) error {
			return tx.SaveSession(&model.TeamSession{TeamID: teamB.ID, Status: model.SessionActive})
		})
		if err != nil {
			t.Errorf("commit for second team: %v", err)
		}
		close(bDone)
	}()
	wg.Wait()

	sessB, err := store.GetSession(teamB.ID)
	if err != nil {
		t.Fatalf("get session: %v", err)
	}
	if sessB == nil {
		t.Fatal("committed session of second team was lost to first team's rollback")
	}
	sessA, err := store.GetSession(teamA.ID)
	if err != nil {
		t.Fatalf("get session: %v", err)
	}
	if sessA != nil {
		t.Fatal("rolled-back session of first team was committed")
	}
}

// 多支队伍并发提交与回滚，各自的行互不干扰
func TestMemStoreConcurrentTeamTransactions(t *testing.T) {
	store := NewMemStore()
	level := store.SeedLevel(&model.Level{Number: 1, Title: "warmup", IsActive: true})

	const teams = 8
	const rounds = 25
	const aborted = rounds / 5

	teamIDs := make([]uint, teams)
	puzzleIDs := make([]uint, teams)
	for i := 0; i < teams; i++ {
		team := store.SeedTeam(&model.Team{Name: fmt.Sprintf("team-%d", i), IsActive: true})
		teamIDs[i] = team.ID
		puzzle := store.SeedPuzzle(&model.Puzzle{LevelID: level.ID, Number: i + 1, Title: fmt.Sprintf("p%d", i), Points: 100, Skippable: true})
		puzzleIDs[i] = puzzle.ID
	}

	boom := errors.New("abort")
	var wg sync.WaitGroup
	for i := 0; i < teams; i++ {
		wg.Add(1)
		go func(teamID, puzzleID uint) {
			defer wg.Done()
			for r := 0; r < rounds; r++ {
				err := store.Transaction(func(tx TeamProgressStore) error {
					prog, err := tx.GetProgress(teamID, puzzleID)
					if err != nil {
						return err
					}
					if prog == nil {
						prog = &model.QuestionProgress{TeamID: teamID, PuzzleID: puzzleID, LevelID: level.ID, Status: model.QuestionNotStarted}
					}
					prog.TimeSpentSeconds++
					if err := tx.SaveProgress(prog); err != nil {
						return err
					}
					if r%5 == 4 {
						return boom
					}
					return nil
				})
				if err != nil && err != boom {
					t.Errorf("team %d round %d: %v", teamID, r, err)
				}
			}
		}(teamIDs[i], puzzleIDs[i])
	}
	wg.Wait()

	want := rounds - aborted
	for i := 0; i < teams; i++ {
		prog, err := store.GetProgress(teamIDs[i], puzzleIDs[i])
		if err != nil {
			t.Fatalf("get progress: %v", err)
		}
		if prog == nil {
			t.Fatalf("team %d lost its progress row", teamIDs[i])
		}
		if prog.TimeSpentSeconds != want {
			t.Errorf("team %d: time_spent = %d, want %d", teamIDs[i], prog.TimeSpentSeconds, want)
		}
	}
}
