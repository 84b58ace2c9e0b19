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
	"log/slog"

	"greenmcp/internal/model/llm"
	"greenmcp/pkg/metrics"
)

// Params 调度参数
type Params struct {
	TokenOverlap float64 // LLM 切分安全过滤的最小 token 重叠率
	MinWords     int     // 规则切分保留子句的最少词数
	DefaultAgent string  // 无法路由时的兜底 agent
}

func (p Params) withDefaults() Params {
	if p.TokenOverlap <= 0 {
		p.TokenOverlap = 0.70
	}
	if p.MinWords <= 0 {
		p.MinWords = 2
	}
	if p.DefaultAgent == "" {
		p.DefaultAgent = "qa_agent"
	}
	return p
}

// Dispatcher 消息调度器：切分、示例路由、合并
type Dispatcher struct {
	examples  []Example
	params    Params
	segmenter *Segmenter
	agents    map[string]struct{}
	tools     map[string]struct{}
	logger    *slog.Logger
}

// NewDispatcher 创建调度器
// agents/tools 为已注册的目标名集合，两者并集构成合法路由目标
func NewDispatcher(client llm.Client, examples []Example, agents, tools []string, params Params, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	params = params.withDefaults()

	agentSet := make(map[string]struct{}, len(agents))
	for _, a := range agents {
		agentSet[a] = struct{}{}
	}
	toolSet := make(map[string]struct{}, len(tools))
	for _, t := range tools {
		toolSet[t] = struct{}{}
	}

	return &Dispatcher{
		examples:  examples,
		params:    params,
		segmenter: NewSegmenter(client, params, logger),
		agents:    agentSet,
		tools:     toolSet,
		logger:    logger,
	}
}

// validTargets 返回 agents ∪ tools
func (d *Dispatcher) validTargets() map[string]struct{} {
	valid := make(map[string]struct{}, len(d.agents)+len(d.tools))
	for a := range d.agents {
		valid[a] = struct{}{}
	}
	for t := range d.tools {
		valid[t] = struct{}{}
	}
	return valid
}

// Decide 完整调度：消息 -> 合并后的任务列表
// 返回的任务至少一个（空消息除外），目标为工具时填充 SourceAgent
func (d *Dispatcher) Decide(ctx context.Context, message string) []Task {
	clauses := d.segmenter.Segment(ctx, message)
	if len(clauses) == 0 {
		return nil
	}

	valid := d.validTargets()
	tasks := make([]Task, 0, len(clauses))
	for _, clause := range clauses {
		res := Resolve(clause, d.examples, valid, d.params.DefaultAgent)
		metrics.ResolveConfidence.Observe(res.Confidence)

		task := Task{Agent: res.Target, Input: clause, Confidence: res.Confidence}
		if _, isTool := d.tools[res.Target]; isTool {
			task.SourceAgent = d.params.DefaultAgent
		}
		d.logger.Debug("路由子句",
			"clause", clause,
			"target", res.Target,
			"confidence", res.Confidence,
			"example", res.Example,
		)
		tasks = append(tasks, task)
	}
	return Coalesce(tasks)
}
