package service

import (
	"context"
	"encoding/json"
	"time"

	"puzzle_arena_backend/internal/model"
	"puzzle_arena_backend/pkg/logger"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

const qualificationQueueKey = "puzzle_arena:notifications:qualification"

// QualificationNotice 投递给外部通知系统的晋级消息
type QualificationNotice struct {
	TeamID     uint                      `json:"teamId"`
	LevelID    uint                      `json:"levelId"`
	Status     model.QualificationStatus `json:"status"`
	Message    string                    `json:"message"`
	Overridden bool                      `json:"overridden"`
	DecidedAt  time.Time                 `json:"decidedAt"`
}

// Notifier 通知投递是外部协作方，引擎只负责入队
type Notifier interface {
	QualificationDecided(n QualificationNotice)
}

// RedisNotifier 把通知推入 redis 队列，由外部消费方取走
type RedisNotifier struct {
	rdb *redis.Client
}

func NewRedisNotifier(rdb *redis.Client) *RedisNotifier {
	return &RedisNotifier{rdb: rdb}
}

func (r *RedisNotifier) QualificationDecided(n QualificationNotice) {
	payload, err := json.Marshal(n)
	if err != nil {
		logger.Log.Error("marshal qualification notice failed", zap.Error(err))
		return
	}
	if err := r.rdb.LPush(context.Background(), qualificationQueueKey, payload).Err(); err != nil {
		logger.Log.Error("enqueue qualification notice failed",
			zap.Uint("teamId", n.TeamID),
			zap.Uint("levelId", n.LevelID),
			zap.Error(err))
	}
}
