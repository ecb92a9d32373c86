package service

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/bitfantasy/nimo-mes/internal/mes/entity"
	"github.com/bitfantasy/nimo-mes/internal/mes/metrics"
	"github.com/bitfantasy/nimo-mes/internal/mes/repository"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const partCacheKeyPrefix = "mes:part:"

// PartCatalog 物料/工厂主数据查询（只读）
// rdb 为空时不走缓存
type PartCatalog struct {
	repo   *repository.PartRepository
	rdb    *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

func NewPartCatalog(repo *repository.PartRepository, rdb *redis.Client, ttl time.Duration, logger *zap.Logger) *PartCatalog {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PartCatalog{repo: repo, rdb: rdb, ttl: ttl, logger: logger}
}

// GetPart 查询物料（含工厂），不存在返回 NotFoundError
func (c *PartCatalog) GetPart(ctx context.Context, partID string) (*entity.Part, error) {
	if partID == "" {
		return nil, validationf("part id is required")
	}
	if part, ok := c.cached(ctx, partID); ok {
		return part, nil
	}

	part, err := c.repo.FindByID(ctx, partID)
	if err != nil {
		return nil, lookupErr(err, "part", partID)
	}
	c.store(ctx, part)
	return part, nil
}

// Invalidate 清除物料缓存
func (c *PartCatalog) Invalidate(ctx context.Context, partID string) {
	if c.rdb == nil {
		return
	}
	if err := c.rdb.Del(ctx, partCacheKeyPrefix+partID).Err(); err != nil {
		c.logger.Warn("part cache invalidate failed", zap.String("part_id", partID), zap.Error(err))
	}
}

func (c *PartCatalog) cached(ctx context.Context, partID string) (*entity.Part, bool) {
	if c.rdb == nil {
		return nil, false
	}
	raw, err := c.rdb.Get(ctx, partCacheKeyPrefix+partID).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.logger.Warn("part cache read failed", zap.String("part_id", partID), zap.Error(err))
		}
		metrics.PartCacheRequest(false)
		return nil, false
	}
	var part entity.Part
	if err := json.Unmarshal(raw, &part); err != nil {
		metrics.PartCacheRequest(false)
		return nil, false
	}
	metrics.PartCacheRequest(true)
	return &part, true
}

func (c *PartCatalog) store(ctx context.Context, part *entity.Part) {
	if c.rdb == nil {
		return
	}
	raw, err := json.Marshal(part)
	if err != nil {
		return
	}
	if err := c.rdb.Set(ctx, partCacheKeyPrefix+part.ID, raw, c.ttl).Err(); err != nil {
		c.logger.Warn("part cache write failed", zap.String("part_id", part.ID), zap.Error(err))
	}
}
