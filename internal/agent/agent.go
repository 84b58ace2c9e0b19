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

package agent

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"greenmcp/internal/model/llm"
	"greenmcp/pkg/config"
	"greenmcp/pkg/errors"
)

// 代理类型
const (
	TypeChat     = "chat"     // 多轮对话，带滚动历史
	TypeTemplate = "template" // 单轮模板填充
)

// agentHistoryWindow chat 模式传给模型的历史条数上限
const agentHistoryWindow = 8

// langSystem 语言约束，追加到所有系统提示之后
const langSystem = "Her zaman Türkçe yanıt ver. Kullanıcı başka dilde yazsa bile yanıtın Türkçe olmalı."

// Request 单次代理调用的输入
type Request struct {
	Input   string        // 子句文本
	Context string        // 记忆增强上下文，可为空
	History []llm.Message // 滚动会话历史
}

// Result 代理执行结果
type Result struct {
	Text string         `json:"text"`
	Meta map[string]any `json:"meta,omitempty"`
}

// Agent 配置驱动的 LLM 代理
type Agent struct {
	name   string
	spec   config.AgentSpec
	prompt string // 模板文本，template 模式使用
	client llm.Client
	logger *slog.Logger
}

// New 创建代理；template 模式要求提示模板（文件或内联）存在
func New(name string, spec config.AgentSpec, client llm.Client, logger *slog.Logger) (*Agent, error) {
	if client == nil {
		return nil, errors.Wrapf(errors.ErrInvalidArg, "代理 %s 缺少模型客户端", name)
	}
	if logger == nil {
		logger = slog.Default()
	}

	prompt := spec.SystemPrompt
	if spec.PromptPath != "" {
		data, err := os.ReadFile(spec.PromptPath)
		if err != nil {
			return nil, errors.Wrapf(err, "读取代理 %s 的提示模板failed", name)
		}
		prompt = string(data)
	}
	if agentType(spec) == TypeTemplate && strings.TrimSpace(prompt) == "" {
		return nil, errors.Wrapf(errors.ErrInvalidArg, "template 代理 %s 没有提示模板", name)
	}

	return &Agent{name: name, spec: spec, prompt: prompt, client: client, logger: logger}, nil
}

func agentType(spec config.AgentSpec) string {
	if spec.Type == "" {
		return TypeTemplate
	}
	return spec.Type
}

// Name 返回代理名
func (a *Agent) Name() string { return a.name }

// Run 执行一次代理调用
func (a *Agent) Run(ctx context.Context, req Request) (Result, error) {
	opts := llm.GenerateOptions{
		Temperature: a.spec.Temperature,
		MaxTokens:   a.spec.MaxTokens,
	}

	var (
		text string
		err  error
	)
	switch agentType(a.spec) {
	case TypeChat:
		text, err = a.runChat(ctx, req, opts)
	default:
		text, err = a.runTemplate(ctx, req, opts)
	}
	if err != nil {
		return Result{}, err
	}

	return Result{
		Text: strings.TrimSpace(text),
		Meta: map[string]any{
			"agent": a.name,
			"model": a.client.Model(),
			"type":  agentType(a.spec),
		},
	}, nil
}

// runTemplate 模板填充后单轮生成；{input}/{context} 为占位符
func (a *Agent) runTemplate(ctx context.Context, req Request, opts llm.GenerateOptions) (string, error) {
	prompt := strings.ReplaceAll(a.prompt, "{input}", req.Input)
	prompt = strings.ReplaceAll(prompt, "{context}", req.Context)
	prompt = langSystem + "\n\n" + prompt
	return a.client.Generate(ctx, prompt, opts)
}

// runChat 系统提示 + 截窗历史 + 当前输入的多轮生成
func (a *Agent) runChat(ctx context.Context, req Request, opts llm.GenerateOptions) (string, error) {
	system := strings.TrimSpace(a.prompt)
	if system == "" {
		system = "Yardımsever bir çevre asistanısın."
	}
	system = system + "\n\n" + langSystem
	if req.Context != "" {
		system = system + "\n\nBağlam:\n" + req.Context
	}

	history := req.History
	if len(history) > agentHistoryWindow {
		history = history[len(history)-agentHistoryWindow:]
	}

	messages := make([]llm.Message, 0, len(history)+2)
	messages = append(messages, llm.Message{Role: "system", Content: system})
	messages = append(messages, history...)
	messages = append(messages, llm.Message{Role: "user", Content: req.Input})

	return a.client.Chat(ctx, messages, opts)
}

// Warmup 用 1 token 生成把模型提前拉起，失败由调用方决定是否忽略
func (a *Agent) Warmup(ctx context.Context) error {
	_, err := a.client.Generate(ctx, "merhaba", llm.GenerateOptions{MaxTokens: 1})
	return err
}

// RunSafe 执行代理并把错误转换为用户可见的错误文本，永不返回 error
func (a *Agent) RunSafe(ctx context.Context, req Request) Result {
	res, err := a.Run(ctx, req)
	if err != nil {
		a.logger.Error("代理执行failed", "agent", a.name, "error", err)
		return Result{
			Text: fmt.Sprintf("[HATA] %s yanıt veremedi, lütfen tekrar deneyin.", a.name),
			Meta: map[string]any{"agent": a.name, "error": err.Error()},
		}
	}
	return res
}
