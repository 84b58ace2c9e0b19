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
	"fmt"
	"log/slog"
	"strings"

	"greenmcp/internal/agent"
	"greenmcp/internal/dispatch"
	"greenmcp/internal/memory"
	"greenmcp/internal/model/llm"
	"greenmcp/internal/tool"
	"greenmcp/pkg/metrics"
	"greenmcp/pkg/tracing"
)

const (
	defaultHistoryWindow    = 12 // 单个子任务可见的历史条数
	defaultSummaryThreshold = 8  // 滚动历史达到该条数时生成摘要
	summaryTailSize         = 8  // 摘要取最近多少条消息
)

const summaryPrompt = "Aşağıdaki sohbeti 2 cümlede, konu ve alınan karar/öneri odaklı özetle:\n\n"

// Request 一次编排请求
type Request struct {
	Input     string        `json:"input"`
	Tool      string        `json:"tool,omitempty"` // 指定后跳过路由，直接执行该工具
	History   []llm.Message `json:"history,omitempty"`
	UserID    string        `json:"user_id"`
	SessionID string        `json:"session_id"`
}

// TaskResponse 单个子任务的结果
type TaskResponse struct {
	Agent  string         `json:"agent"`
	Input  string         `json:"input"`
	Output string         `json:"output,omitempty"`
	Error  string         `json:"error,omitempty"`
	Meta   map[string]any `json:"meta,omitempty"`
}

// Response 编排结果：逐任务明细加去重后的汇总文本
type Response struct {
	Responses []TaskResponse `json:"responses"`
	Summary   string         `json:"summary"`
}

// Options 编排器参数
type Options struct {
	HistoryWindow    int
	SummaryThreshold int
}

// Orchestrator 调度与执行编排器
type Orchestrator struct {
	dispatcher *dispatch.Dispatcher
	agents     *agent.Registry
	tools      *tool.Registry
	allow      tool.AllowMap
	store      memory.Store
	summarizer llm.Client // 滚动摘要用模型，nil 时跳过摘要
	opts       Options
	logger     *slog.Logger
}

// New 创建编排器
func New(dispatcher *dispatch.Dispatcher, agents *agent.Registry, tools *tool.Registry,
	allow tool.AllowMap, store memory.Store, summarizer llm.Client, opts Options, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.HistoryWindow <= 0 {
		opts.HistoryWindow = defaultHistoryWindow
	}
	if opts.SummaryThreshold <= 0 {
		opts.SummaryThreshold = defaultSummaryThreshold
	}
	return &Orchestrator{
		dispatcher: dispatcher,
		agents:     agents,
		tools:      tools,
		allow:      allow,
		store:      store,
		summarizer: summarizer,
		opts:       opts,
		logger:     logger,
	}
}

// Run 执行一次完整编排：路由、合并、逐任务执行、记忆写入、滚动摘要
func (o *Orchestrator) Run(ctx context.Context, req Request) (Response, error) {
	if req.UserID == "" {
		req.UserID = "default"
	}
	if req.SessionID == "" {
		req.SessionID = memory.DefaultSession
	}

	ctx, span := tracing.StartRequestSpan(ctx, req.UserID, req.SessionID)
	defer span.End()

	var tasks []dispatch.Task
	if req.Tool != "" {
		tasks = []dispatch.Task{{Agent: req.Tool, Input: req.Input}}
	} else {
		tasks = o.dispatcher.Decide(ctx, req.Input)
	}
	if len(tasks) == 0 {
		return Response{Summary: ""}, nil
	}

	// 只要有 LLM 代理任务就做一次记忆上下文组装，所有代理任务共享
	hasAgent := false
	for _, t := range tasks {
		if _, err := o.agents.Get(t.Agent); err == nil {
			hasAgent = true
			break
		}
	}
	var memoryContext string
	if hasAgent {
		memoryContext = o.buildContext(ctx, req.UserID, req.SessionID, req.Input)
	}

	rolling := append([]llm.Message(nil), req.History...)

	responses := make([]TaskResponse, 0, len(tasks))
	for _, task := range tasks {
		resp := o.runTask(ctx, req, task, memoryContext)
		responses = append(responses, resp)
		if resp.Error == "" && resp.Output != "" {
			rolling = append(rolling,
				llm.Message{Role: "user", Content: task.Input},
				llm.Message{Role: "assistant", Content: resp.Output},
			)
		}
	}

	o.maybeStoreSummary(ctx, req.UserID, req.SessionID, rolling)

	// 去重后汇总非错误输出
	seen := map[string]struct{}{}
	var uniq []string
	for _, r := range responses {
		if r.Output == "" {
			continue
		}
		if _, dup := seen[r.Output]; dup {
			continue
		}
		seen[r.Output] = struct{}{}
		uniq = append(uniq, r.Output)
	}

	return Response{Responses: responses, Summary: strings.Join(uniq, "\n\n---\n\n")}, nil
}

// runTask 执行单个子任务，所有失败都转成响应内的错误文本
func (o *Orchestrator) runTask(ctx context.Context, req Request, task dispatch.Task, memoryContext string) TaskResponse {
	ctx, span := tracing.StartTaskSpan(ctx, task.Agent)
	defer span.End()

	if a, err := o.agents.Get(task.Agent); err == nil {
		return o.runAgentTask(ctx, req, task, a, memoryContext)
	}
	if t, err := o.tools.Get(task.Agent); err == nil {
		return o.runToolTask(ctx, req, task, t)
	}

	metrics.TaskTotal.WithLabelValues(task.Agent, "unregistered").Inc()
	return TaskResponse{
		Agent: task.Agent,
		Input: task.Input,
		Error: fmt.Sprintf("'%s' kayıtlı değil.", task.Agent),
	}
}

func (o *Orchestrator) runAgentTask(ctx context.Context, req Request, task dispatch.Task, a *agent.Agent, memoryContext string) TaskResponse {
	window := req.History
	if len(window) > o.opts.HistoryWindow {
		window = window[len(window)-o.opts.HistoryWindow:]
	}

	res := a.RunSafe(ctx, agent.Request{Input: task.Input, Context: memoryContext, History: window})
	if strings.HasPrefix(res.Text, "[HATA]") {
		metrics.TaskTotal.WithLabelValues(task.Agent, "error").Inc()
		metrics.TaskErrorTotal.WithLabelValues(task.Agent).Inc()
		return TaskResponse{Agent: task.Agent, Input: task.Input, Error: res.Text, Meta: res.Meta}
	}

	o.persistExchange(ctx, req, task.Input, res.Text)
	metrics.TaskTotal.WithLabelValues(task.Agent, "ok").Inc()
	return TaskResponse{Agent: task.Agent, Input: task.Input, Output: res.Text, Meta: res.Meta}
}

func (o *Orchestrator) runToolTask(ctx context.Context, req Request, task dispatch.Task, t tool.Runner) TaskResponse {
	source := task.SourceAgent
	if source == "" {
		source = "qa_agent"
	}

	// 白名单为空表示未启用权限控制
	if len(o.allow) > 0 && !o.allow.Allowed(source, task.Agent) {
		metrics.TaskTotal.WithLabelValues(task.Agent, "denied").Inc()
		o.logger.Warn("工具调用被白名单拒绝", "tool", task.Agent, "source_agent", source)
		// 拒绝的请求也要留痕，用户轮次写入记忆
		o.addMessage(ctx, req, "user", task.Input)
		return TaskResponse{
			Agent: task.Agent,
			Input: task.Input,
			Error: fmt.Sprintf("'%s' bu aracı kullanamaz (allow-list).", source),
		}
	}

	window := req.History
	if len(window) > o.opts.HistoryWindow {
		window = window[len(window)-o.opts.HistoryWindow:]
	}

	out, err := t.Run(ctx, task.Input, window)
	if err != nil {
		metrics.TaskTotal.WithLabelValues(task.Agent, "error").Inc()
		metrics.TaskErrorTotal.WithLabelValues(task.Agent).Inc()
		return TaskResponse{
			Agent: task.Agent,
			Input: task.Input,
			Error: fmt.Sprintf("[HATA] Çalıştırma hatası: %v", err),
		}
	}

	o.persistExchange(ctx, req, task.Input, out)
	metrics.TaskTotal.WithLabelValues(task.Agent, "ok").Inc()
	return TaskResponse{Agent: task.Agent, Input: task.Input, Output: out}
}

// persistExchange 把一问一答写入记忆：user/assistant 两条消息加一条问答对
func (o *Orchestrator) persistExchange(ctx context.Context, req Request, input, output string) {
	o.addMessage(ctx, req, "user", input)
	o.addMessage(ctx, req, "assistant", output)
	if _, err := o.store.Add(ctx, memory.Record{
		UserID:    req.UserID,
		SessionID: req.SessionID,
		Role:      memory.RolePair,
		Text:      memory.PairText(input, output),
	}); err != nil {
		o.logger.Warn("写入问答对failed", "error", err)
	}
}

func (o *Orchestrator) addMessage(ctx context.Context, req Request, role, content string) {
	if strings.TrimSpace(content) == "" {
		return
	}
	if _, err := o.store.Add(ctx, memory.Record{
		UserID:    req.UserID,
		SessionID: req.SessionID,
		Role:      role,
		Text:      content,
	}); err != nil {
		o.logger.Warn("写入记忆failed", "role", role, "error", err)
	}
}

// maybeStoreSummary 滚动历史达到阈值时生成并落盘摘要，失败不影响请求
func (o *Orchestrator) maybeStoreSummary(ctx context.Context, userID, sessionID string, rolling []llm.Message) {
	if len(rolling) < o.opts.SummaryThreshold {
		return
	}
	if o.summarizer == nil {
		metrics.SummaryTotal.WithLabelValues("skipped").Inc()
		return
	}

	tail := rolling
	if len(tail) > summaryTailSize {
		tail = tail[len(tail)-summaryTailSize:]
	}
	var b strings.Builder
	for _, m := range tail {
		if strings.TrimSpace(m.Content) == "" {
			continue
		}
		b.WriteString(m.Role)
		b.WriteString(": ")
		b.WriteString(m.Content)
		b.WriteString("\n")
	}

	summary, err := o.summarizer.Generate(ctx, summaryPrompt+b.String(), llm.GenerateOptions{
		Temperature: 0.2,
		MaxTokens:   200,
	})
	if err != nil {
		metrics.SummaryTotal.WithLabelValues("error").Inc()
		o.logger.Warn("生成滚动摘要failed", "error", err)
		return
	}
	summary = strings.TrimSpace(summary)
	if summary == "" {
		metrics.SummaryTotal.WithLabelValues("skipped").Inc()
		return
	}

	if _, err := o.store.Add(ctx, memory.Record{
		UserID:    userID,
		SessionID: sessionID,
		Role:      memory.RoleSummary,
		Text:      summary,
	}); err != nil {
		metrics.SummaryTotal.WithLabelValues("error").Inc()
		o.logger.Warn("写入摘要failed", "error", err)
		return
	}
	metrics.SummaryTotal.WithLabelValues("ok").Inc()
}
