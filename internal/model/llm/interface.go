package llm

import (
	"context"

	"greenmcp/pkg/config"
	"greenmcp/pkg/secrets"
)

// Client LLM 客户端接口
type Client interface {
	// Generate 单轮 prompt 生成
	Generate(ctx context.Context, prompt string, options GenerateOptions) (string, error)
	// Chat 多轮消息生成
	Chat(ctx context.Context, messages []Message, options GenerateOptions) (string, error)
	// Model 返回模型名称
	Model() string
	// Provider 返回提供商名称
	Provider() string
}

// GenerateOptions 生成选项
type GenerateOptions struct {
	Temperature float64 `json:"temperature"`
	MaxTokens   int     `json:"max_tokens"`
}

// Message 聊天消息
type Message struct {
	Role    string `json:"role"` // system, user, assistant
	Content string `json:"content"`
}

// NewClient 根据 ProviderConfig 创建客户端；API Key 优先从 secrets.Store 解析
func NewClient(ctx context.Context, name string, pc config.ProviderConfig, model string, sec secrets.Store) (Client, error) {
	apiKey := pc.APIKey
	if pc.APIKeyRef != "" && sec != nil {
		if v, err := sec.Get(ctx, pc.APIKeyRef); err == nil && v != "" {
			apiKey = v
		}
	}
	switch pc.Type {
	case "openai":
		return NewEinoOpenAIClient(ctx, model, apiKey, pc.BaseURL)
	case "ollama", "":
		return NewOllamaClient(model, pc.BaseURL), nil
	default:
		return NewOllamaClient(model, pc.BaseURL), nil
	}
}
