// Copyright 2026 fanjia1024
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package memory

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"greenmcp/internal/model/embedding"
	"greenmcp/pkg/config"
	"greenmcp/pkg/metrics"
)

// 记录角色
const (
	RolePair    = "pair"    // 问答对
	RoleSummary = "summary" // 滚动摘要
)

// DefaultSession 未指定会话时的默认会话 ID
const DefaultSession = "global"

// AnySession 跨会话查询的哨兵值，Search/All 不再按会话过滤
const AnySession = "*"

// DefaultCollection 默认向量集合名
const DefaultCollection = "chat_memory"

// Record 一条记忆记录
type Record struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	SessionID string    `json:"session_id"`
	Role      string    `json:"role"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"created_at"`
}

// Hit 相似检索命中
type Hit struct {
	Record
	Score float64 `json:"score"`
}

// Query 相似检索请求
type Query struct {
	UserID    string
	SessionID string
	Role      string // 空则不按角色过滤
	Text      string
	TopK      int
}

// Store 记忆存储接口，语义后端与进程内降级后端共用
type Store interface {
	// Add 写入一条记录，返回记录 ID
	Add(ctx context.Context, rec Record) (string, error)
	// Search 相似检索，按分数降序
	Search(ctx context.Context, q Query) ([]Hit, error)
	// All 返回用户/会话下的全部记录，按写入时间升序；role 为空时不过滤
	All(ctx context.Context, userID, sessionID, role string) ([]Record, error)
	// Purge 删除用户记录；sessionID 为空时删除该用户全部会话，返回删除条数
	Purge(ctx context.Context, userID, sessionID string) (int, error)
	// Backend 返回后端名称（semantic / fallback）
	Backend() string
	// Close 释放连接
	Close() error
}

// PairText 问答对的存储文本格式
func PairText(question, answer string) string {
	return fmt.Sprintf("[Soru]\n%s\n\n[Yanıt]\n%s", question, answer)
}

// withDefaults 补全 Query 默认值
func (q Query) withDefaults() Query {
	if q.SessionID == "" {
		q.SessionID = DefaultSession
	}
	if q.TopK <= 0 {
		q.TopK = 3
	}
	return q
}

// Open 打开记忆存储
// 先探测语义后端（Redis + 向量索引），探测失败则降级为进程内模糊匹配后端。
// 永不返回错误：记忆层不可用不应阻塞对话
func Open(ctx context.Context, cfg config.MemoryConfig, embedder embedding.Embedder, logger *slog.Logger) Store {
	if logger == nil {
		logger = slog.Default()
	}

	if cfg.Redis.Addr != "" && embedder != nil {
		store, err := NewSemanticStore(ctx, cfg, embedder, logger)
		if err == nil {
			logger.Info("记忆存储使用语义后端", "addr", cfg.Redis.Addr, "collection", store.collection)
			metrics.MemoryBackend.WithLabelValues("semantic").Set(1)
			metrics.MemoryBackend.WithLabelValues("fallback").Set(0)
			return store
		}
		logger.Warn("语义后端探测failed，降级为进程内记忆", "error", err)
	} else {
		logger.Info("未配置语义后端，使用进程内记忆")
	}

	metrics.MemoryBackend.WithLabelValues("semantic").Set(0)
	metrics.MemoryBackend.WithLabelValues("fallback").Set(1)
	return NewFallbackStore(cfg.Cutoff)
}
