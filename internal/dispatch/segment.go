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

package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"greenmcp/internal/model/llm"
	"greenmcp/pkg/metrics"
)

const segmentPromptTemplate = `Kullanıcı mesajını bağımsız isteklere ayır.
Her isteği ayrı bir satıra yaz. Mesajda olmayan hiçbir şey ekleme,
kelimeleri değiştirme, açıklama yapma.

Mesaj: %s

İstekler:`

var (
	listPrefixRe   = regexp.MustCompile(`^\s*(?:[-*•]|\d+[.)])\s*`)
	sentenceEndRe  = regexp.MustCompile(`([.!?…]+)\s+`)
	conjunctionRe  = regexp.MustCompile(`(?i)\s+(ve|ayrıca|ayrica|ama|ancak|fakat|lakin)\s+`)
	metaLineRe     = regexp.MustCompile(`(?i)^(istekler|İstekler|not|açıklama|örnek)\s*:`)
	thinkBlockSegRe = regexp.MustCompile(`(?s)<think>.*?</think>`)
	// 上游错误回显（本地模型把 HTTP/连接错误带进输出时出现）
	errMarkerRe = regexp.MustCompile(`(?i)(hata|error|not found|404|getaddrinfo failed|connection refused|client error)`)
)

// Segmenter 将用户消息切分为独立子句
// 优先走 LLM 切分并做安全过滤，任何失败都回退到规则切分，永不报错
type Segmenter struct {
	client llm.Client
	params Params
	logger *slog.Logger
}

// NewSegmenter 创建切分器；client 为 nil 时只用规则切分
func NewSegmenter(client llm.Client, params Params, logger *slog.Logger) *Segmenter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Segmenter{client: client, params: params.withDefaults(), logger: logger}
}

// Segment 切分消息，至少返回一个子句
func (s *Segmenter) Segment(ctx context.Context, message string) []string {
	message = strings.TrimSpace(message)
	if message == "" {
		return nil
	}

	if s.client != nil {
		if clauses := s.segmentLLM(ctx, message); len(clauses) > 0 {
			return clauses
		}
		metrics.SegmentFallbackTotal.Inc()
		s.logger.Debug("LLM 切分不可用或被安全过滤拒绝，回退到规则切分")
	}
	return s.segmentRules(message)
}

// segmentLLM LLM 切分；返回 nil 表示需要回退
func (s *Segmenter) segmentLLM(ctx context.Context, message string) []string {
	raw, err := s.client.Generate(ctx, fmt.Sprintf(segmentPromptTemplate, message), llm.GenerateOptions{
		Temperature: 0.0,
		MaxTokens:   512,
	})
	if err != nil {
		s.logger.Warn("LLM 切分调用failed", "error", err)
		return nil
	}

	// 整段输出带错误回显时直接放弃，按行清理留不住可信内容
	if errMarkerRe.MatchString(raw) {
		s.logger.Warn("LLM 切分输出疑似错误回显，丢弃", "output", raw)
		return nil
	}

	candidates := cleanSegmentOutput(raw)
	if len(candidates) == 0 {
		return nil
	}

	// 安全过滤：先看宽松规范化后的子串包含（容忍空白/标点/带音差异），
	// 不包含时再要求 token 基本来自原始消息，防止模型改写或幻觉
	looseMessage := NormalizeLoose(message)
	var accepted []string
	for _, c := range candidates {
		if loose := NormalizeLoose(c); loose != "" && strings.Contains(looseMessage, loose) {
			accepted = append(accepted, c)
			continue
		}
		if TokenOverlap(message, c) >= s.params.TokenOverlap {
			accepted = append(accepted, c)
		} else {
			s.logger.Debug("丢弃与原文重叠不足的子句", "clause", c)
		}
	}
	if len(accepted) == 0 {
		return nil
	}
	return accepted
}

// cleanSegmentOutput 清理 LLM 输出：去 think 块、列表前缀、引号、meta 行与错误回显行
func cleanSegmentOutput(raw string) []string {
	raw = thinkBlockSegRe.ReplaceAllString(raw, "")
	var out []string
	for _, line := range strings.Split(raw, "\n") {
		line = listPrefixRe.ReplaceAllString(line, "")
		line = strings.Trim(line, ` "'`+"`")
		line = strings.TrimSpace(line)
		if line == "" || metaLineRe.MatchString(line) || errMarkerRe.MatchString(line) {
			continue
		}
		out = append(out, line)
	}
	return out
}

// segmentRules 规则切分：先按句末标点分句，再按并列连词拆分
func (s *Segmenter) segmentRules(message string) []string {
	marked := sentenceEndRe.ReplaceAllString(message, "$1\n")
	marked = conjunctionRe.ReplaceAllString(marked, "\n$1 ")

	var out []string
	for _, part := range strings.Split(marked, "\n") {
		part = strings.Trim(part, " \t,;")
		if part == "" {
			continue
		}
		if len(strings.Fields(part)) < s.params.MinWords && len(out) > 0 {
			// 太短的尾巴并回前一个子句
			out[len(out)-1] = out[len(out)-1] + " " + part
			continue
		}
		out = append(out, part)
	}
	if len(out) == 0 {
		out = []string{message}
	}
	return out
}
