package service

import (
	"puzzle_arena_backend/internal/model"
	"puzzle_arena_backend/pkg/logger"

	"go.uber.org/zap"
)

// AuditService 审计写入失败只记日志、绝不传播：
// 队伍状态的正确性优先于审计链的完整性，这是刻意的不对称。
type AuditService struct {
	Store TeamProgressStore
}

func NewAuditService(store TeamProgressStore) *AuditService {
	return &AuditService{Store: store}
}

// Record 在主事务提交之后追加事件
func (s *AuditService) Record(e *model.AuditEvent) {
	if e == nil {
		return
	}
	if err := s.Store.AppendAudit(e); err != nil {
		logger.Log.Error("audit append failed",
			zap.String("eventType", e.EventType),
			zap.Uint("teamId", e.TeamID),
			zap.Error(err))
	}
}

func (s *AuditService) RecordAll(events []*model.AuditEvent) {
	for _, e := range events {
		s.Record(e)
	}
}

// TrailForTeam 供管理端争议仲裁查询
func (s *AuditService) TrailForTeam(teamID uint, limit int) ([]model.AuditEvent, error) {
	if limit <= 0 {
		limit = 100
	}
	if limit > 500 {
		limit = 500
	}
	return s.Store.ListTeamAudit(teamID, limit)
}
