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
	"sort"
	"time"

	redisindexer "github.com/cloudwego/eino-ext/components/indexer/redis"
	redisretriever "github.com/cloudwego/eino-ext/components/retriever/redis"
	einoindexer "github.com/cloudwego/eino/components/indexer"
	einoretriever "github.com/cloudwego/eino/components/retriever"
	"github.com/cloudwego/eino/schema"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"greenmcp/internal/model/embedding"
	"greenmcp/pkg/config"
	"greenmcp/pkg/errors"
	"greenmcp/pkg/metrics"
)

const (
	indexBatchSize  = 100
	searchOverFetch = 4 // 向量检索不支持元数据过滤，先多取再在本地按归属过滤
)

var _ Store = (*SemanticStore)(nil)

// SemanticStore Redis 向量后端的记忆存储
// 向量写入与检索走 eino 的 Indexer/Retriever；
// 记录归属（用户/会话/角色）由旁路 hash 与 scope 集合维护，dump 与 purge 也基于它们
type SemanticStore struct {
	client     *redis.Client
	indexer    einoindexer.Indexer
	retriever  einoretriever.Retriever
	collection string
	logger     *slog.Logger
}

// NewSemanticStore 连接 Redis 并构建向量索引组件，Ping 失败即报错
func NewSemanticStore(ctx context.Context, cfg config.MemoryConfig, embedder embedding.Embedder, logger *slog.Logger) (*SemanticStore, error) {
	collection := cfg.Collection
	if collection == "" {
		collection = DefaultCollection
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, errors.Wrap(err, "redis ping")
	}

	idx, err := redisindexer.NewIndexer(ctx, &redisindexer.IndexerConfig{
		Client:    client,
		KeyPrefix: collection,
		BatchSize: indexBatchSize,
		Embedding: embedder,
	})
	if err != nil {
		_ = client.Close()
		return nil, errors.Wrap(err, "redis indexer")
	}

	ret, err := redisretriever.NewRetriever(ctx, &redisretriever.RetrieverConfig{
		Client:    client,
		Index:     collection,
		TopK:      searchOverFetch * 3,
		Embedding: embedder,
	})
	if err != nil {
		_ = client.Close()
		return nil, errors.Wrap(err, "redis retriever")
	}

	if logger == nil {
		logger = slog.Default()
	}
	return &SemanticStore{
		client:     client,
		indexer:    idx,
		retriever:  ret,
		collection: collection,
		logger:     logger,
	}, nil
}

func (s *SemanticStore) metaKey(id string) string {
	return fmt.Sprintf("%s:rec:%s", s.collection, id)
}

func (s *SemanticStore) scopeKey(userID, sessionID string) string {
	return fmt.Sprintf("%s:scope:%s:%s", s.collection, userID, sessionID)
}

// Add 写入向量文档并登记归属信息
func (s *SemanticStore) Add(ctx context.Context, rec Record) (string, error) {
	if rec.Text == "" {
		return "", errors.Wrap(errors.ErrInvalidArg, "记忆文本为空")
	}
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.SessionID == "" {
		rec.SessionID = DefaultSession
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}

	doc := &schema.Document{
		ID:      rec.ID,
		Content: rec.Text,
		MetaData: map[string]any{
			"user_id":    rec.UserID,
			"session_id": rec.SessionID,
			"role":       rec.Role,
		},
	}
	if _, err := s.indexer.Store(ctx, []*schema.Document{doc}); err != nil {
		return "", errors.Wrap(err, "写入向量索引failed")
	}

	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, s.metaKey(rec.ID), map[string]interface{}{
		"user_id":    rec.UserID,
		"session_id": rec.SessionID,
		"role":       rec.Role,
		"text":       rec.Text,
		"created_at": rec.CreatedAt.Format(time.RFC3339Nano),
	})
	pipe.SAdd(ctx, s.scopeKey(rec.UserID, rec.SessionID), rec.ID)
	if _, err := pipe.Exec(ctx); err != nil {
		return "", errors.Wrap(err, "登记记忆归属failed")
	}
	return rec.ID, nil
}

// Search 向量检索后按归属过滤
func (s *SemanticStore) Search(ctx context.Context, q Query) ([]Hit, error) {
	q = q.withDefaults()
	start := time.Now()
	defer func() {
		metrics.MemoryQueryDuration.WithLabelValues("semantic").Observe(time.Since(start).Seconds())
	}()

	ids, err := s.scopedIDs(ctx, q.UserID, q.SessionID)
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, nil
	}
	scoped := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		scoped[id] = struct{}{}
	}

	docs, err := s.retriever.Retrieve(ctx, q.Text, einoretriever.WithTopK(q.TopK*searchOverFetch))
	if err != nil {
		return nil, errors.Wrap(err, "向量检索failed")
	}

	hits := make([]Hit, 0, q.TopK)
	for _, doc := range docs {
		if doc == nil {
			continue
		}
		if _, ok := scoped[doc.ID]; !ok {
			continue
		}
		rec, err := s.loadRecord(ctx, doc.ID)
		if err != nil {
			s.logger.Warn("读取记忆记录failed", "id", doc.ID, "error", err)
			continue
		}
		if q.Role != "" && rec.Role != q.Role {
			continue
		}
		hits = append(hits, Hit{Record: rec, Score: doc.Score()})
	}

	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Score > hits[j].Score })
	if len(hits) > q.TopK {
		hits = hits[:q.TopK]
	}
	return hits, nil
}

// All 按归属集合读取全部记录，按写入时间升序
func (s *SemanticStore) All(ctx context.Context, userID, sessionID, role string) ([]Record, error) {
	if sessionID == "" {
		sessionID = DefaultSession
	}
	ids, err := s.scopedIDs(ctx, userID, sessionID)
	if err != nil {
		return nil, err
	}

	recs := make([]Record, 0, len(ids))
	for _, id := range ids {
		rec, err := s.loadRecord(ctx, id)
		if err != nil {
			continue
		}
		if role != "" && rec.Role != role {
			continue
		}
		recs = append(recs, rec)
	}
	sort.SliceStable(recs, func(i, j int) bool { return recs[i].CreatedAt.Before(recs[j].CreatedAt) })
	return recs, nil
}

// Purge 删除用户记录（向量键、旁路 hash、scope 集合）
func (s *SemanticStore) Purge(ctx context.Context, userID, sessionID string) (int, error) {
	sessions := []string{sessionID}
	if sessionID == "" {
		var err error
		sessions, err = s.userSessions(ctx, userID)
		if err != nil {
			return 0, err
		}
	}

	total := 0
	for _, sid := range sessions {
		ids, err := s.client.SMembers(ctx, s.scopeKey(userID, sid)).Result()
		if err != nil {
			return total, errors.Wrap(err, "读取记忆归属failed")
		}
		for _, id := range ids {
			// 向量键由 indexer 以 KeyPrefix+ID 写入
			s.client.Del(ctx, s.collection+id, s.metaKey(id))
			total++
		}
		s.client.Del(ctx, s.scopeKey(userID, sid))
	}
	return total, nil
}

// scopedIDs 返回用户在指定会话（或 AnySession 时全部会话）下的记录 ID
func (s *SemanticStore) scopedIDs(ctx context.Context, userID, sessionID string) ([]string, error) {
	sessions := []string{sessionID}
	if sessionID == AnySession {
		var err error
		sessions, err = s.userSessions(ctx, userID)
		if err != nil {
			return nil, err
		}
	}
	var ids []string
	for _, sid := range sessions {
		part, err := s.client.SMembers(ctx, s.scopeKey(userID, sid)).Result()
		if err != nil {
			return nil, errors.Wrap(err, "读取记忆归属failed")
		}
		ids = append(ids, part...)
	}
	return ids, nil
}

// userSessions 扫描用户名下所有会话的 scope 键
func (s *SemanticStore) userSessions(ctx context.Context, userID string) ([]string, error) {
	pattern := fmt.Sprintf("%s:scope:%s:*", s.collection, userID)
	prefix := fmt.Sprintf("%s:scope:%s:", s.collection, userID)

	var sessions []string
	iter := s.client.Scan(ctx, 0, pattern, 0).Iterator()
	for iter.Next(ctx) {
		sessions = append(sessions, iter.Val()[len(prefix):])
	}
	if err := iter.Err(); err != nil {
		return nil, errors.Wrap(err, "扫描会话failed")
	}
	return sessions, nil
}

func (s *SemanticStore) loadRecord(ctx context.Context, id string) (Record, error) {
	fields, err := s.client.HGetAll(ctx, s.metaKey(id)).Result()
	if err != nil {
		return Record{}, err
	}
	if len(fields) == 0 {
		return Record{}, errors.ErrNotFound
	}
	createdAt, _ := time.Parse(time.RFC3339Nano, fields["created_at"])
	return Record{
		ID:        id,
		UserID:    fields["user_id"],
		SessionID: fields["session_id"],
		Role:      fields["role"],
		Text:      fields["text"],
		CreatedAt: createdAt,
	}, nil
}

// Backend 返回后端名称
func (s *SemanticStore) Backend() string { return "semantic" }

// Close 关闭 Redis 连接
func (s *SemanticStore) Close() error { return s.client.Close() }
