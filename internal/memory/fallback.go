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
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"greenmcp/internal/dispatch"
	"greenmcp/pkg/errors"
	"greenmcp/pkg/metrics"
)

const defaultFallbackCutoff = 0.3

var _ Store = (*FallbackStore)(nil)

// FallbackStore 进程内记忆存储
// 每个用户一条平铺列表，条目文本带会话/角色标签前缀；
// 检索用确定性的字符串相似度，结果可复现且无外部依赖
type FallbackStore struct {
	mu     sync.RWMutex
	byUser map[string][]fallbackEntry
	cutoff float64
}

type fallbackEntry struct {
	id        string
	tagged    string // __SID__:{sid}__ROLE__:{role}__{text}
	createdAt time.Time
}

// NewFallbackStore 创建进程内记忆存储；cutoff <= 0 时取 0.3
func NewFallbackStore(cutoff float64) *FallbackStore {
	if cutoff <= 0 {
		cutoff = defaultFallbackCutoff
	}
	return &FallbackStore{byUser: make(map[string][]fallbackEntry), cutoff: cutoff}
}

func tagFor(sessionID, role string) string {
	return fmt.Sprintf("__SID__:%s__ROLE__:%s__", sessionID, role)
}

// parseTag 从带标签文本中还原 sessionID/role/text；无标签视为默认会话的 pair
func parseTag(tagged string) (sessionID, role, text string) {
	if !strings.HasPrefix(tagged, "__SID__:") {
		return DefaultSession, RolePair, tagged
	}
	rest := tagged[len("__SID__:"):]
	i := strings.Index(rest, "__ROLE__:")
	if i < 0 {
		return DefaultSession, RolePair, tagged
	}
	sessionID = rest[:i]
	rest = rest[i+len("__ROLE__:"):]
	j := strings.Index(rest, "__")
	if j < 0 {
		return DefaultSession, RolePair, tagged
	}
	return sessionID, rest[:j], rest[j+2:]
}

// Add 追加一条带标签的记录
func (f *FallbackStore) Add(_ context.Context, rec Record) (string, error) {
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

	f.mu.Lock()
	defer f.mu.Unlock()
	f.byUser[rec.UserID] = append(f.byUser[rec.UserID], fallbackEntry{
		id:        rec.ID,
		tagged:    tagFor(rec.SessionID, rec.Role) + rec.Text,
		createdAt: rec.CreatedAt,
	})
	return rec.ID, nil
}

// Search 确定性模糊检索：规范化后的相似度打分，低于 cutoff 丢弃
func (f *FallbackStore) Search(_ context.Context, q Query) ([]Hit, error) {
	q = q.withDefaults()
	start := time.Now()
	defer func() {
		metrics.MemoryQueryDuration.WithLabelValues("fallback").Observe(time.Since(start).Seconds())
	}()

	normQuery := dispatch.Normalize(q.Text)

	f.mu.RLock()
	defer f.mu.RUnlock()

	var hits []Hit
	for _, e := range f.byUser[q.UserID] {
		sid, role, text := parseTag(e.tagged)
		if q.SessionID != AnySession && sid != q.SessionID {
			continue
		}
		if q.Role != "" && role != q.Role {
			continue
		}
		score := dispatch.Ratio(normQuery, dispatch.Normalize(text))
		if score < f.cutoff {
			continue
		}
		hits = append(hits, Hit{
			Record: Record{ID: e.id, UserID: q.UserID, SessionID: sid, Role: role, Text: text, CreatedAt: e.createdAt},
			Score:  score,
		})
	}

	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Score > hits[j].Score })
	if len(hits) > q.TopK {
		hits = hits[:q.TopK]
	}
	return hits, nil
}

// All 按写入顺序返回记录
func (f *FallbackStore) All(_ context.Context, userID, sessionID, role string) ([]Record, error) {
	if sessionID == "" {
		sessionID = DefaultSession
	}

	f.mu.RLock()
	defer f.mu.RUnlock()

	var recs []Record
	for _, e := range f.byUser[userID] {
		sid, r, text := parseTag(e.tagged)
		if sessionID != AnySession && sid != sessionID {
			continue
		}
		if role != "" && r != role {
			continue
		}
		recs = append(recs, Record{ID: e.id, UserID: userID, SessionID: sid, Role: r, Text: text, CreatedAt: e.createdAt})
	}
	return recs, nil
}

// Purge 删除用户记录；sessionID 为空时清空该用户
func (f *FallbackStore) Purge(_ context.Context, userID, sessionID string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	entries, ok := f.byUser[userID]
	if !ok {
		return 0, nil
	}
	if sessionID == "" {
		delete(f.byUser, userID)
		return len(entries), nil
	}

	kept := entries[:0]
	removed := 0
	for _, e := range entries {
		sid, _, _ := parseTag(e.tagged)
		if sid == sessionID {
			removed++
			continue
		}
		kept = append(kept, e)
	}
	if len(kept) == 0 {
		delete(f.byUser, userID)
	} else {
		f.byUser[userID] = kept
	}
	return removed, nil
}

// Backend 返回后端名称
func (f *FallbackStore) Backend() string { return "fallback" }

// Close 无资源可释放
func (f *FallbackStore) Close() error { return nil }
