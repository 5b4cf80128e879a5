package service

import (
	"sort"
	"sync"
	"time"

	"puzzle_arena_backend/internal/model"
	"puzzle_arena_backend/internal/util"

	"github.com/google/uuid"
)

// MemStore 纯内存的 TeamProgressStore，给单元测试与无数据库的本地开发用。
// Transaction 持锁直到提交并用整表快照实现回滚：事务彼此串行，
// 回滚永远只撤销本事务内的写入。
type MemStore struct {
	mu sync.Mutex

	data  *memTables
	inTx  bool
	clock func() time.Time
}

type memTables struct {
	nextID uint

	teams      map[uint]*model.Team
	sessions   map[uint]*model.TeamSession // by team_id
	progress   map[[2]uint]*model.QuestionProgress
	levels     map[uint]*model.Level
	puzzles    map[uint]*model.Puzzle
	hints      map[uint]*model.Hint
	hintUsages []*model.HintUsage
	statuses   map[[2]uint]*model.LevelStatus
	cutoffs    map[uint]*model.QualificationCutoff // by level_id
	audits     []*model.AuditEvent
}

func newMemTables() *memTables {
	return &memTables{
		nextID:   1,
		teams:    map[uint]*model.Team{},
		sessions: map[uint]*model.TeamSession{},
		progress: map[[2]uint]*model.QuestionProgress{},
		levels:   map[uint]*model.Level{},
		puzzles:  map[uint]*model.Puzzle{},
		hints:    map[uint]*model.Hint{},
		statuses: map[[2]uint]*model.LevelStatus{},
		cutoffs:  map[uint]*model.QualificationCutoff{},
	}
}

func NewMemStore() *MemStore {
	return &MemStore{data: newMemTables(), clock: time.Now}
}

var _ TeamProgressStore = (*MemStore)(nil)

func (m *MemStore) assignID(id *uint) {
	if *id == 0 {
		*id = m.data.nextID
		m.data.nextID++
	} else if *id >= m.data.nextID {
		m.data.nextID = *id + 1
	}
}

// SeedTeam / SeedLevel / SeedPuzzle / SeedHint / SeedCutoff 测试夹具入口
func (m *MemStore) SeedTeam(t *model.Team) *model.Team {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.assignID(&t.ID)
	m.data.teams[t.ID] = t
	return t
}

func (m *MemStore) SeedLevel(l *model.Level) *model.Level {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.assignID(&l.ID)
	m.data.levels[l.ID] = l
	return l
}

func (m *MemStore) SeedPuzzle(p *model.Puzzle) *model.Puzzle {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.assignID(&p.ID)
	m.data.puzzles[p.ID] = p
	return p
}

func (m *MemStore) SeedHint(h *model.Hint) *model.Hint {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.assignID(&h.ID)
	m.data.hints[h.ID] = h
	return h
}

func (m *MemStore) SeedCutoff(c *model.QualificationCutoff) *model.QualificationCutoff {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.assignID(&c.ID)
	m.data.cutoffs[c.LevelID] = c
	return c
}

func (m *MemStore) Transaction(fn func(tx TeamProgressStore) error) error {
	if m.inTx {
		return fn(m)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	snapshot := m.data.clone()
	tx := &MemStore{data: m.data, inTx: true, clock: m.clock}
	if err := fn(tx); err != nil {
		m.data = snapshot
		return err
	}
	return nil
}

func (t *memTables) clone() *memTables {
	c := newMemTables()
	c.nextID = t.nextID
	for k, v := range t.teams {
		cv := *v
		c.teams[k] = &cv
	}
	for k, v := range t.sessions {
		cv := *v
		c.sessions[k] = &cv
	}
	for k, v := range t.progress {
		cv := *v
		c.progress[k] = &cv
	}
	for k, v := range t.levels {
		cv := *v
		c.levels[k] = &cv
	}
	for k, v := range t.puzzles {
		cv := *v
		c.puzzles[k] = &cv
	}
	for k, v := range t.hints {
		cv := *v
		c.hints[k] = &cv
	}
	for _, v := range t.hintUsages {
		cv := *v
		c.hintUsages = append(c.hintUsages, &cv)
	}
	for k, v := range t.statuses {
		cv := *v
		c.statuses[k] = &cv
	}
	for k, v := range t.cutoffs {
		cv := *v
		c.cutoffs[k] = &cv
	}
	for _, v := range t.audits {
		cv := *v
		c.audits = append(c.audits, &cv)
	}
	return c
}

func (m *MemStore) GetTeam(id uint) (*model.Team, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if t, ok := m.data.teams[id]; ok {
		cp := *t
		return &cp, nil
	}
	return nil, nil
}

func (m *MemStore) GetSession(teamID uint) (*model.TeamSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.data.sessions[teamID]; ok {
		cp := *s
		return &cp, nil
	}
	return nil, nil
}

func (m *MemStore) SaveSession(s *model.TeamSession) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.assignID(&s.ID)
	s.UpdatedAt = m.clock()
	cp := *s
	m.data.sessions[s.TeamID] = &cp
	return nil
}

func (m *MemStore) GetProgress(teamID, puzzleID uint) (*model.QuestionProgress, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p, ok := m.data.progress[[2]uint{teamID, puzzleID}]; ok {
		cp := *p
		return &cp, nil
	}
	return nil, nil
}

func (m *MemStore) GetActiveProgress(teamID uint) (*model.QuestionProgress, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.data.progress {
		if p.TeamID == teamID && p.Status == model.QuestionInProgress {
			cp := *p
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *MemStore) ListTeamProgress(teamID uint) ([]model.QuestionProgress, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var rows []model.QuestionProgress
	for _, p := range m.data.progress {
		if p.TeamID == teamID {
			rows = append(rows, *p)
		}
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].PuzzleID < rows[j].PuzzleID })
	return rows, nil
}

func (m *MemStore) ListLevelProgress(teamID, levelID uint) ([]model.QuestionProgress, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var rows []model.QuestionProgress
	for _, p := range m.data.progress {
		if p.TeamID == teamID && p.LevelID == levelID {
			rows = append(rows, *p)
		}
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].PuzzleID < rows[j].PuzzleID })
	return rows, nil
}

func (m *MemStore) SaveProgress(p *model.QuestionProgress) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.assignID(&p.ID)
	p.UpdatedAt = m.clock()
	cp := *p
	m.data.progress[[2]uint{p.TeamID, p.PuzzleID}] = &cp
	return nil
}

func (m *MemStore) GetLevel(id uint) (*model.Level, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if l, ok := m.data.levels[id]; ok {
		cp := *l
		return &cp, nil
	}
	return nil, nil
}

func (m *MemStore) GetPuzzle(id uint) (*model.Puzzle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p, ok := m.data.puzzles[id]; ok {
		cp := *p
		return &cp, nil
	}
	return nil, nil
}

func (m *MemStore) ListLevelPuzzles(levelID uint) ([]model.Puzzle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var puzzles []model.Puzzle
	for _, p := range m.data.puzzles {
		if p.LevelID == levelID {
			puzzles = append(puzzles, *p)
		}
	}
	sort.Slice(puzzles, func(i, j int) bool { return puzzles[i].Number < puzzles[j].Number })
	return puzzles, nil
}

func (m *MemStore) GetHint(id uint) (*model.Hint, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if h, ok := m.data.hints[id]; ok {
		cp := *h
		return &cp, nil
	}
	return nil, nil
}

func (m *MemStore) ListPuzzleHints(puzzleID uint) ([]model.Hint, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var hints []model.Hint
	for _, h := range m.data.hints {
		if h.PuzzleID == puzzleID {
			hints = append(hints, *h)
		}
	}
	sort.Slice(hints, func(i, j int) bool { return hints[i].SequenceNumber < hints[j].SequenceNumber })
	return hints, nil
}

func (m *MemStore) GetHintUsage(teamID, hintID uint) (*model.HintUsage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.data.hintUsages {
		if u.TeamID == teamID && u.HintID == hintID {
			cp := *u
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *MemStore) ListTeamHintUsage(teamID uint) ([]model.HintUsage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var usages []model.HintUsage
	for _, u := range m.data.hintUsages {
		if u.TeamID == teamID {
			usages = append(usages, *u)
		}
	}
	return usages, nil
}

func (m *MemStore) ListLevelHintUsage(teamID, levelID uint) ([]model.HintUsage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var usages []model.HintUsage
	for _, u := range m.data.hintUsages {
		if u.TeamID == teamID && u.LevelID == levelID {
			usages = append(usages, *u)
		}
	}
	return usages, nil
}

func (m *MemStore) CreateHintUsage(u *model.HintUsage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.data.hintUsages {
		if existing.TeamID == u.TeamID && existing.HintID == u.HintID {
			return util.NewAppError(util.KindPersistenceConflict, "hint usage already recorded")
		}
	}
	m.assignID(&u.ID)
	u.CreatedAt = m.clock()
	cp := *u
	m.data.hintUsages = append(m.data.hintUsages, &cp)
	return nil
}

func (m *MemStore) GetLevelStatus(teamID, levelID uint) (*model.LevelStatus, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if ls, ok := m.data.statuses[[2]uint{teamID, levelID}]; ok {
		cp := *ls
		return &cp, nil
	}
	return nil, nil
}

func (m *MemStore) SaveLevelStatus(ls *model.LevelStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.assignID(&ls.ID)
	ls.UpdatedAt = m.clock()
	cp := *ls
	m.data.statuses[[2]uint{ls.TeamID, ls.LevelID}] = &cp
	return nil
}

func (m *MemStore) GetActiveCutoff(levelID uint) (*model.QualificationCutoff, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c, ok := m.data.cutoffs[levelID]; ok && c.IsActive {
		cp := *c
		return &cp, nil
	}
	return nil, nil
}

func (m *MemStore) GetCutoff(levelID uint) (*model.QualificationCutoff, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c, ok := m.data.cutoffs[levelID]; ok {
		cp := *c
		return &cp, nil
	}
	return nil, nil
}

func (m *MemStore) SaveCutoff(c *model.QualificationCutoff) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.assignID(&c.ID)
	c.UpdatedAt = m.clock()
	cp := *c
	m.data.cutoffs[c.LevelID] = &cp
	return nil
}

func (m *MemStore) AppendAudit(e *model.AuditEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	e.CreatedAt = m.clock()
	cp := *e
	m.data.audits = append(m.data.audits, &cp)
	return nil
}

func (m *MemStore) ListTeamAudit(teamID uint, limit int) ([]model.AuditEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var events []model.AuditEvent
	for i := len(m.data.audits) - 1; i >= 0 && len(events) < limit; i-- {
		if m.data.audits[i].TeamID == teamID {
			events = append(events, *m.data.audits[i])
		}
	}
	return events, nil
}

// Audits 测试用：按写入顺序返回全部审计事件
func (m *MemStore) Audits() []model.AuditEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]model.AuditEvent, len(m.data.audits))
	for i, e := range m.data.audits {
		out[i] = *e
	}
	return out
}
