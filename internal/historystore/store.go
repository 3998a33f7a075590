// Package historystore provides a Redis-backed workflow.HistoryStore.
// This package is internal and should not be imported by external projects.
package historystore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/BaSui01/nodegraph/config"
	"github.com/BaSui01/nodegraph/workflow"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

var _ workflow.HistoryStore = (*RedisStore)(nil)

// ErrClosed is returned by every operation after Close.
var ErrClosed = errors.New("history store is closed")

// =============================================================================
// 💾 Redis 执行历史存储
// =============================================================================

// RedisStore 将执行历史以 JSON 存入 Redis。
//
// 键布局:
//
//	<prefix>exec:<execution_id>   执行历史 JSON
//	<prefix>workflow:<name>       有序集合，按开始时间索引 execution_id
type RedisStore struct {
	redis     *redis.Client
	prefix    string
	ttl       time.Duration
	ownClient bool
	logger    *zap.Logger
	mu        sync.RWMutex
	closed    bool
}

// New 根据配置连接 Redis 并创建存储
func New(cfg config.HistoryConfig, logger *zap.Logger) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Redis.Addr,
		Password:     cfg.Redis.Password,
		DB:           cfg.Redis.DB,
		PoolSize:     cfg.Redis.PoolSize,
		MinIdleConns: cfg.Redis.MinIdleConns,
	})

	// 测试连接
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	s := NewWithClient(client, cfg.KeyPrefix, cfg.TTL, logger)
	s.ownClient = true
	s.logger.Info("redis history store initialized",
		zap.String("addr", cfg.Redis.Addr),
		zap.String("prefix", cfg.KeyPrefix),
		zap.Duration("ttl", cfg.TTL),
	)
	return s, nil
}

// NewWithClient 使用已有的 Redis 客户端创建存储，Close 不会关闭该客户端
func NewWithClient(client *redis.Client, prefix string, ttl time.Duration, logger *zap.Logger) *RedisStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisStore{
		redis:  client,
		prefix: prefix,
		ttl:    ttl,
		logger: logger.With(zap.String("component", "history_store")),
	}
}

func (s *RedisStore) execKey(id string) string { return s.prefix + "exec:" + id }

func (s *RedisStore) workflowKey(name string) string { return s.prefix + "workflow:" + name }

// =============================================================================
// 🎯 HistoryStore 实现
// =============================================================================

// Save 保存执行历史并更新工作流索引
func (s *RedisStore) Save(ctx context.Context, h *workflow.ExecutionHistory) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrClosed
	}

	data, err := json.Marshal(h)
	if err != nil {
		return fmt.Errorf("failed to marshal execution history: %w", err)
	}

	index := s.workflowKey(h.Workflow)
	_, err = s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, s.execKey(h.ExecutionID), data, s.ttl)
		pipe.ZAdd(ctx, index, redis.Z{Score: float64(h.StartTime.UnixNano()), Member: h.ExecutionID})
		if s.ttl > 0 {
			pipe.Expire(ctx, index, s.ttl)
		}
		return nil
	})
	if err != nil {
		s.logger.Error("history save failed", zap.String("execution_id", h.ExecutionID), zap.Error(err))
		return fmt.Errorf("history save failed: %w", err)
	}
	return nil
}

// Get 读取执行历史
func (s *RedisStore) Get(ctx context.Context, executionID string) (*workflow.ExecutionHistory, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrClosed
	}

	data, err := s.redis.Get(ctx, s.execKey(executionID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("%w: %s", workflow.ErrHistoryNotFound, executionID)
	}
	if err != nil {
		return nil, fmt.Errorf("history get failed: %w", err)
	}
	return decode(data)
}

// ListByWorkflow 按开始时间升序返回工作流的执行历史，已过期的条目会从索引中移除
func (s *RedisStore) ListByWorkflow(ctx context.Context, name string) ([]*workflow.ExecutionHistory, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrClosed
	}

	index := s.workflowKey(name)
	ids, err := s.redis.ZRange(ctx, index, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("history list failed: %w", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = s.execKey(id)
	}
	values, err := s.redis.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("history list failed: %w", err)
	}

	result := make([]*workflow.ExecutionHistory, 0, len(values))
	var stale []any
	for i, v := range values {
		raw, ok := v.(string)
		if !ok {
			stale = append(stale, ids[i])
			continue
		}
		h, err := decode([]byte(raw))
		if err != nil {
			s.logger.Warn("skipping undecodable history", zap.String("execution_id", ids[i]), zap.Error(err))
			continue
		}
		result = append(result, h)
	}
	if len(stale) > 0 {
		if err := s.redis.ZRem(ctx, index, stale...).Err(); err != nil {
			s.logger.Debug("failed to prune history index", zap.String("workflow", name), zap.Error(err))
		}
	}
	return result, nil
}

// Delete 删除执行历史
func (s *RedisStore) Delete(ctx context.Context, h *workflow.ExecutionHistory) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrClosed
	}

	_, err := s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, s.execKey(h.ExecutionID))
		pipe.ZRem(ctx, s.workflowKey(h.Workflow), h.ExecutionID)
		return nil
	})
	if err != nil {
		return fmt.Errorf("history delete failed: %w", err)
	}
	return nil
}

// Ping 检查 Redis 连接
func (s *RedisStore) Ping(ctx context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrClosed
	}
	return s.redis.Ping(ctx).Err()
}

// Close 关闭存储
func (s *RedisStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	s.logger.Info("closing history store")
	if s.ownClient {
		return s.redis.Close()
	}
	return nil
}

func decode(data []byte) (*workflow.ExecutionHistory, error) {
	h := &workflow.ExecutionHistory{}
	if err := json.Unmarshal(data, h); err != nil {
		return nil, fmt.Errorf("failed to unmarshal execution history: %w", err)
	}
	return h, nil
}
