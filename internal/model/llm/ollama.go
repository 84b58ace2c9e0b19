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
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

// 本地模型偶尔会把思维链或英文夹进输出，这里做两类清理：
// <think> 块直接剔除；疑似英文漂移的输出用同一模型重写为土耳其语。
var (
	thinkBlockRe = regexp.MustCompile(`(?s)<think>.*?</think>`)
	englishRe    = regexp.MustCompile(`(?i)\b(what|why|how|when|where|which|first|second|step|note|example|perfect|let's|how to|why it matters|public transportation|by|using|reduce|approximately|please|ready|are you|your|you)\b`)
)

// removeThinkBlocks 剔除 <think>...</think> 片段
func removeThinkBlocks(text string) string {
	if text == "" {
		return ""
	}
	return strings.TrimSpace(thinkBlockRe.ReplaceAllString(text, ""))
}

// looksEnglish 粗略判断输出是否漂移成英文
func looksEnglish(text string) bool {
	if text == "" {
		return false
	}
	return englishRe.MatchString(text)
}

// OllamaClient Ollama 客户端（/api/generate 与 /api/chat）
type OllamaClient struct {
	provider string
	model    string
	baseURL  string
	client   *resty.Client
	// rewriteDrift 为 true 时对英文漂移的输出做土耳其语重写
	rewriteDrift bool
}

// NewOllamaClient 创建 Ollama 客户端；baseURL 为空时用默认本地端点
func NewOllamaClient(model, baseURL string) *OllamaClient {
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}

	client := resty.New()
	client.SetTimeout(240 * time.Second)
	client.SetRetryCount(1)
	client.SetRetryWaitTime(1 * time.Second)

	return &OllamaClient{
		provider:     "ollama",
		model:        model,
		baseURL:      strings.TrimRight(baseURL, "/"),
		client:       client,
		rewriteDrift: true,
	}
}

// SetDriftRewrite 控制英文漂移重写（dispatcher 用途关闭，避免改写分句结果）
func (c *OllamaClient) SetDriftRewrite(enabled bool) {
	c.rewriteDrift = enabled
}

// Generate 单轮 prompt 生成
func (c *OllamaClient) Generate(ctx context.Context, prompt string, options GenerateOptions) (string, error) {
	request := map[string]interface{}{
		"model":  c.model,
		"prompt": prompt,
		"stream": false,
		"options": map[string]interface{}{
			"temperature": options.Temperature,
			"num_predict": options.MaxTokens,
		},
	}

	var result struct {
		Response string `json:"response"`
	}
	response, err := c.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(request).
		SetResult(&result).
		Post(c.baseURL + "/api/generate")
	if err != nil {
		return "", fmt.Errorf("调用 Ollama API failed: %w", err)
	}
	if response.StatusCode() != http.StatusOK {
		return "", fmt.Errorf("Ollama API 返回错误: %s", response.String())
	}

	out := removeThinkBlocks(result.Response)
	if c.rewriteDrift && looksEnglish(out) {
		out = c.rewriteTurkish(ctx, out)
	}
	return out, nil
}

// Chat 多轮消息生成
func (c *OllamaClient) Chat(ctx context.Context, messages []Message, options GenerateOptions) (string, error) {
	ollamaMessages := make([]map[string]string, len(messages))
	for i, msg := range messages {
		ollamaMessages[i] = map[string]string{
			"role":    msg.Role,
			"content": msg.Content,
		}
	}

	request := map[string]interface{}{
		"model":    c.model,
		"messages": ollamaMessages,
		"stream":   false,
		"options": map[string]interface{}{
			"temperature": options.Temperature,
			"num_predict": options.MaxTokens,
		},
	}

	var result struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	}
	response, err := c.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(request).
		SetResult(&result).
		Post(c.baseURL + "/api/chat")
	if err != nil {
		return "", fmt.Errorf("调用 Ollama chat API failed: %w", err)
	}
	if response.StatusCode() != http.StatusOK {
		return "", fmt.Errorf("Ollama chat API 返回错误: %s", response.String())
	}

	out := removeThinkBlocks(result.Message.Content)
	if c.rewriteDrift && looksEnglish(out) {
		out = c.rewriteTurkish(ctx, out)
	}
	return out, nil
}

// rewriteTurkish 将英文漂移的输出重写为土耳其语；失败时原样返回
func (c *OllamaClient) rewriteTurkish(ctx context.Context, text string) string {
	prompt := "Aşağıdaki metni SADECE TÜRKÇE olacak şekilde yeniden yaz. " +
		"İngilizce hiçbir kelime kullanma. Kısa, net ve motive edici olsun.\n\nMETİN:\n" + text

	request := map[string]interface{}{
		"model":  c.model,
		"prompt": prompt,
		"stream": false,
		"options": map[string]interface{}{
			"temperature": 0.2,
			"num_predict": 384,
		},
	}

	var result struct {
		Response string `json:"response"`
	}
	response, err := c.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(request).
		SetResult(&result).
		Post(c.baseURL + "/api/generate")
	if err != nil || response.StatusCode() != http.StatusOK {
		return text
	}
	rewritten := removeThinkBlocks(result.Response)
	if rewritten == "" {
		return text
	}
	return rewritten
}

// Model 返回模型名称
func (c *OllamaClient) Model() string {
	return c.model
}

// Provider 返回提供商名称
func (c *OllamaClient) Provider() string {
	return c.provider
}
