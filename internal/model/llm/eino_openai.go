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

package llm

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino-ext/components/model/openai"
	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
)

// EinoOpenAIClient 基于 eino-ext OpenAI ChatModel 的 Client 实现（OpenAI 兼容端点）
type EinoOpenAIClient struct {
	provider  string
	model     string
	chatModel *openai.ChatModel
}

// NewEinoOpenAIClient 创建 OpenAI 兼容客户端；baseURL 为空时用官方端点
func NewEinoOpenAIClient(ctx context.Context, model, apiKey, baseURL string) (*EinoOpenAIClient, error) {
	if model == "" {
		model = "gpt-4o-mini"
	}
	cfg := &openai.ChatModelConfig{
		Model:  model,
		APIKey: apiKey,
	}
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	chatModel, err := openai.NewChatModel(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("创建 OpenAI ChatModel failed: %w", err)
	}
	return &EinoOpenAIClient{
		provider:  "openai",
		model:     model,
		chatModel: chatModel,
	}, nil
}

// Generate 单轮 prompt 生成
func (c *EinoOpenAIClient) Generate(ctx context.Context, prompt string, options GenerateOptions) (string, error) {
	return c.Chat(ctx, []Message{{Role: "user", Content: prompt}}, options)
}

// Chat 多轮消息生成
func (c *EinoOpenAIClient) Chat(ctx context.Context, messages []Message, options GenerateOptions) (string, error) {
	in := make([]*schema.Message, 0, len(messages))
	for _, m := range messages {
		switch m.Role {
		case "system":
			in = append(in, schema.SystemMessage(m.Content))
		case "assistant":
			in = append(in, schema.AssistantMessage(m.Content, nil))
		default:
			in = append(in, schema.UserMessage(m.Content))
		}
	}

	var opts []einomodel.Option
	if options.Temperature > 0 {
		opts = append(opts, einomodel.WithTemperature(float32(options.Temperature)))
	}
	if options.MaxTokens > 0 {
		opts = append(opts, einomodel.WithMaxTokens(options.MaxTokens))
	}

	out, err := c.chatModel.Generate(ctx, in, opts...)
	if err != nil {
		return "", fmt.Errorf("调用 OpenAI ChatModel failed: %w", err)
	}
	if out == nil {
		return "", fmt.Errorf("OpenAI ChatModel 没有返回结果")
	}
	return out.Content, nil
}

// Model 返回模型名称
func (c *EinoOpenAIClient) Model() string {
	return c.model
}

// Provider 返回提供商名称
func (c *EinoOpenAIClient) Provider() string {
	return c.provider
}
