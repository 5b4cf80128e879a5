package service

import "sync"

// teamLocks 按 team_id 互斥：同队请求串行，不同队完全并行。
// 锁条目只增不删，队伍数量有限，不做回收。
type teamLocks struct {
	mu    sync.Mutex
	locks map[uint]*sync.Mutex
}

func newTeamLocks() *teamLocks {
	return &teamLocks{locks: make(map[uint]*sync.Mutex)}
}

func (t *teamLocks) lock(teamID uint) func() {
	t.mu.Lock()
	l, ok := t.locks[teamID]
	if !ok {
		l = &sync.Mutex{}
		t.locks[teamID] = l
	}
	t.mu.Unlock()

	l.Lock()
	return l.Unlock
}
