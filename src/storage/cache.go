package storage

import (
	"fmt"
	"sync"
	"time"

	"github.com/bluele/gcache"
	"github.com/go-gota/gota/dataframe"
)

// TableBuilder 根据数据源构建完整的派生表（读取 + 派生列）
type TableBuilder func(source string) (dataframe.DataFrame, error)

// TableCache 进程级派生表缓存
// 首次访问时构建，只在显式 Invalidate/Refresh 时失效，不设过期时间
type TableCache struct {
	cache  gcache.Cache
	logger *Logger

	mu       sync.RWMutex
	loadedAt map[string]time.Time
}

// NewTableCache 创建缓存，capacity 为同时缓存的数据源数量
func NewTableCache(capacity int, build TableBuilder, logger *Logger) *TableCache {
	if capacity < 1 {
		capacity = 1
	}
	tc := &TableCache{
		logger:   logger.Named("table-cache"),
		loadedAt: make(map[string]time.Time),
	}

	tc.cache = gcache.New(capacity).
		LRU().
		LoaderFunc(func(key interface{}) (interface{}, error) {
			source := key.(string)
			start := time.Now()
			df, err := build(source)
			if err != nil {
				return nil, err
			}
			if df.Err != nil {
				return nil, df.Err
			}

			tc.mu.Lock()
			tc.loadedAt[source] = time.Now()
			tc.mu.Unlock()

			tc.logger.Info("派生表已构建",
				String("source", source),
				Int("rows", df.Nrow()),
				Int("cols", df.Ncol()),
				Duration("elapsed", time.Since(start)),
			)
			return df, nil
		}).
		Build()

	return tc
}

// Get 返回缓存中的派生表，未命中时构建
func (tc *TableCache) Get(source string) (dataframe.DataFrame, error) {
	v, err := tc.cache.Get(source)
	if err != nil {
		return dataframe.DataFrame{}, fmt.Errorf("加载数据源 %s 失败: %w", source, err)
	}
	df, ok := v.(dataframe.DataFrame)
	if !ok {
		return dataframe.DataFrame{}, fmt.Errorf("缓存值类型错误: %T", v)
	}
	return df, nil
}

// Invalidate 使指定数据源的缓存失效，返回之前是否存在
func (tc *TableCache) Invalidate(source string) bool {
	tc.mu.Lock()
	delete(tc.loadedAt, source)
	tc.mu.Unlock()

	removed := tc.cache.Remove(source)
	tc.logger.Info("缓存已失效", String("source", source), Bool("existed", removed))
	return removed
}

// Refresh 先失效再重新构建
func (tc *TableCache) Refresh(source string) (dataframe.DataFrame, error) {
	tc.Invalidate(source)
	return tc.Get(source)
}

// LoadedAt 返回最近一次构建时间，未构建时为零值
func (tc *TableCache) LoadedAt(source string) time.Time {
	tc.mu.RLock()
	defer tc.mu.RUnlock()
	return tc.loadedAt[source]
}
