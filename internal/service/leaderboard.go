package service

import (
	"context"
	"strconv"

	"puzzle_arena_backend/pkg/logger"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

const leaderboardKey = "puzzle_arena:leaderboard:effective_time"

// LeaderboardPublisher 有效耗时是对外的排名指标，排行榜渲染由外部完成
type LeaderboardPublisher interface {
	PublishEffectiveTime(teamID uint, effectiveSeconds int)
}

// RedisLeaderboard 以 ZSET 维护 effective_time 排名快照
type RedisLeaderboard struct {
	rdb *redis.Client
}

func NewRedisLeaderboard(rdb *redis.Client) *RedisLeaderboard {
	return &RedisLeaderboard{rdb: rdb}
}

func (r *RedisLeaderboard) PublishEffectiveTime(teamID uint, effectiveSeconds int) {
	member := strconv.FormatUint(uint64(teamID), 10)
	err := r.rdb.ZAdd(context.Background(), leaderboardKey, &redis.Z{
		Score:  float64(effectiveSeconds),
		Member: member,
	}).Err()
	if err != nil {
		logger.Log.Error("publish leaderboard entry failed",
			zap.Uint("teamId", teamID),
			zap.Error(err))
	}
}
