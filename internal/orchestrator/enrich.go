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

package orchestrator

import (
	"context"
	"regexp"
	"strings"

	"greenmcp/internal/memory"
	"greenmcp/pkg/utils"
)

const (
	pairExcerptLimit = 300  // 注入上下文的问答摘录上限（rune）
	fullDumpLimit    = 1500 // 全量记忆拼接上限（rune）
	recentPairCount  = 2
	crossSessionTopK = 2
	inSessionTopK    = 3
)

var pairRe = regexp.MustCompile(`(?s)\[Soru\]\s*(.*?)\s*\[Yanıt\]\s*(.*)`)

// extractPairLine 把存储的问答对转成单行上下文摘录，问答各截 300 rune
func extractPairLine(text string) string {
	m := pairRe.FindStringSubmatch(text)
	if m == nil {
		return ""
	}
	q := utils.Truncate(strings.TrimSpace(m[1]), pairExcerptLimit)
	a := utils.Truncate(strings.TrimSpace(m[2]), pairExcerptLimit)
	return "SON KONU — Kullanıcı: " + q + "\nAsistan: " + a
}

// buildContext 为 LLM 代理组装记忆上下文文本
// 依次拼接（有内容时）：会话内相似检索结果、最近摘要、最近问答摘录、
// 跨会话相似命中；后三者全空时退到全量记忆拼接
func (o *Orchestrator) buildContext(ctx context.Context, userID, sessionID, input string) string {
	var sysLines []string

	if sum := o.recentSummary(ctx, userID); sum != "" {
		sysLines = append(sysLines, "Önceki sohbet özeti: "+sum)
	}

	for _, p := range o.recentPairs(ctx, userID, recentPairCount) {
		if line := extractPairLine(p); line != "" {
			sysLines = append(sysLines, line)
		}
	}

	crossQuery := input
	if strings.TrimSpace(crossQuery) == "" {
		crossQuery = "önceki konular"
	}
	crossHits, err := o.store.Search(ctx, memory.Query{
		UserID:    userID,
		SessionID: memory.AnySession,
		Text:      crossQuery,
		TopK:      crossSessionTopK,
	})
	if err != nil {
		o.logger.Warn("跨会话记忆检索failed", "error", err)
	}
	for _, h := range crossHits {
		text := strings.TrimSpace(h.Text)
		if text == "" || strings.HasPrefix(text, "[Soru]") {
			continue
		}
		sysLines = append(sysLines, "İlgili geçmiş: "+text)
	}

	if len(sysLines) == 0 {
		if dump := o.fullDump(ctx, userID); dump != "" {
			sysLines = append(sysLines, "Önceki sohbetlerden öne çıkan içerikler: "+dump)
		}
	}

	sessionHits, err := o.store.Search(ctx, memory.Query{
		UserID:    userID,
		SessionID: sessionID,
		Text:      input,
		TopK:      inSessionTopK,
	})
	if err != nil {
		o.logger.Warn("会话内记忆检索failed", "error", err)
	}
	if len(sessionHits) > 0 {
		parts := make([]string, 0, len(sessionHits))
		for _, h := range sessionHits {
			if t := strings.TrimSpace(h.Text); t != "" {
				parts = append(parts, t)
			}
		}
		if len(parts) > 0 {
			sysLines = append([]string{"Önceki sohbetlerden ilgili bağlam: " + strings.Join(parts, " • ")}, sysLines...)
		}
	}

	return strings.Join(sysLines, "\n")
}

// recentSummary 用户最近一条摘要记录
func (o *Orchestrator) recentSummary(ctx context.Context, userID string) string {
	recs, err := o.store.All(ctx, userID, memory.AnySession, memory.RoleSummary)
	if err != nil || len(recs) == 0 {
		return ""
	}
	return strings.TrimSpace(recs[len(recs)-1].Text)
}

// recentPairs 用户最近 k 条问答对
func (o *Orchestrator) recentPairs(ctx context.Context, userID string, k int) []string {
	recs, err := o.store.All(ctx, userID, memory.AnySession, memory.RolePair)
	if err != nil {
		return nil
	}
	if len(recs) > k {
		recs = recs[len(recs)-k:]
	}
	out := make([]string, 0, len(recs))
	for _, r := range recs {
		out = append(out, r.Text)
	}
	return out
}

// fullDump 全量记忆拼接，超长截断
func (o *Orchestrator) fullDump(ctx context.Context, userID string) string {
	recs, err := o.store.All(ctx, userID, memory.AnySession, "")
	if err != nil || len(recs) == 0 {
		return ""
	}
	parts := make([]string, 0, len(recs))
	for _, r := range recs {
		if t := strings.TrimSpace(r.Text); t != "" {
			parts = append(parts, t)
		}
	}
	return utils.Truncate(strings.Join(parts, " • "), fullDumpLimit)
}
