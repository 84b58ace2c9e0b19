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

package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"
)

// Config 应用配置结构体
type Config struct {
	API        APIConfig             `mapstructure:"api"`
	Log        LogConfig             `mapstructure:"log"`
	Model      ModelConfig           `mapstructure:"model"`
	Dispatcher DispatcherConfig      `mapstructure:"dispatcher"`
	Memory     MemoryConfig          `mapstructure:"memory"`
	Agents     map[string]AgentSpec  `mapstructure:"agents"`
	Tools      map[string]ToolSpec   `mapstructure:"tools"`
	Allow      map[string][]string   `mapstructure:"allow"`
	Pipeline   PipelineConfig        `mapstructure:"pipeline"`
	Secrets    SecretsConfig         `mapstructure:"secrets"`
	Monitoring MonitoringConfig      `mapstructure:"monitoring"`
	RateLimits map[string]RateLimits `mapstructure:"rate_limits"`
}

// APIConfig API 服务配置
type APIConfig struct {
	Host    string     `mapstructure:"host"`
	Port    int        `mapstructure:"port"`
	Timeout string     `mapstructure:"timeout"`
	CORS    CORSConfig `mapstructure:"cors"`
	Warmup  *bool      `mapstructure:"warmup"` // 未配置时默认 true；DISABLE_WARMUP=1 亦可关闭
}

// CORSConfig CORS 配置
type CORSConfig struct {
	Enable       bool     `mapstructure:"enable"`
	AllowOrigins []string `mapstructure:"allow_origins"`
}

// LogConfig 日志配置
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	File   string `mapstructure:"file"`
}

// ModelConfig 模型配置
type ModelConfig struct {
	Providers map[string]ProviderConfig `mapstructure:"providers"`
	Default   string                    `mapstructure:"default"` // provider 名，如 "ollama"
}

// ProviderConfig 模型提供商配置
type ProviderConfig struct {
	Type      string `mapstructure:"type"`        // ollama | openai
	BaseURL   string `mapstructure:"base_url"`    // Ollama 地址或 OpenAI 兼容端点
	APIKey    string `mapstructure:"api_key"`     // 支持 ${ENV_VAR} 写法
	APIKeyRef string `mapstructure:"api_key_ref"` // secrets.Store 中的 key，优先于 api_key
}

// DispatcherConfig 路由决策配置
type DispatcherConfig struct {
	Model        string  `mapstructure:"model"`         // 分句/摘要用模型名
	Provider     string  `mapstructure:"provider"`      // 空则用 model.default
	ExamplesPath string  `mapstructure:"examples_path"` // 路由示例文件（Message/Selected-target 行格式）
	DefaultAgent string  `mapstructure:"default_agent"` // 解析失败时的兜底目标，空则 qa_agent
	TokenOverlap float64 `mapstructure:"token_overlap"` // 分句安全过滤的 token 重叠阈值，<=0 时 0.70
	MinWords     int     `mapstructure:"min_words"`     // 接受子句的最少词数，<=0 时 1
}

// MemoryConfig 记忆存储配置（semantic 后端探测失败则进程内降级）
type MemoryConfig struct {
	Redis      RedisConfig     `mapstructure:"redis"`
	Collection string          `mapstructure:"collection"` // 向量索引 key 前缀，空则 chat_memory
	Embedding  EmbeddingConfig `mapstructure:"embedding"`
	Cutoff     float64         `mapstructure:"cutoff"` // 降级后端的相似度下限，<=0 时 0.3
}

// RedisConfig Redis 连接配置
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// EmbeddingConfig 向量化配置
type EmbeddingConfig struct {
	Provider  string `mapstructure:"provider"` // openai 兼容端点
	Model     string `mapstructure:"model"`
	Dimension int    `mapstructure:"dimension"`
}

// AgentSpec 会话型 LLM 代理配置（config-driven）
type AgentSpec struct {
	Model        string  `mapstructure:"model"`
	Type         string  `mapstructure:"type"`     // chat | template，空则 template
	Provider     string  `mapstructure:"provider"` // 空则 model.default
	PromptPath   string  `mapstructure:"prompt_path"`
	Temperature  float64 `mapstructure:"temperature"`
	MaxTokens    int     `mapstructure:"max_tokens"`
	SystemPrompt string  `mapstructure:"system_prompt"`
	Description  string  `mapstructure:"description"`
}

// ToolSpec 工具配置
type ToolSpec struct {
	Enabled *bool             `mapstructure:"enabled"` // 未配置时默认 true
	Type    string            `mapstructure:"type"`    // weather | carbon | http_json
	BaseURL string            `mapstructure:"base_url"`
	Timeout string            `mapstructure:"timeout"` // 如 "8s"
	Params  map[string]string `mapstructure:"params"`  // http_json 的 path/method/template 等
}

// PipelineConfig 编排管线常量（校准值，非结构性约束）
type PipelineConfig struct {
	HistoryWindow    int `mapstructure:"history_window"`    // 传给单任务的历史上限，<=0 时 12
	SummaryThreshold int `mapstructure:"summary_threshold"` // 滚动历史达到该条数触发摘要，<=0 时 8
}

// SecretsConfig Secret Store 配置
type SecretsConfig struct {
	Provider string      `mapstructure:"provider"` // env | memory | vault
	Vault    VaultConfig `mapstructure:"vault"`
}

// VaultConfig Vault 后端配置
type VaultConfig struct {
	Address    string `mapstructure:"address"`
	Token      string `mapstructure:"token"`
	PathPrefix string `mapstructure:"path_prefix"`
}

// MonitoringConfig 监控配置
type MonitoringConfig struct {
	Tracing TracingConfig `mapstructure:"tracing"`
}

// TracingConfig 链路追踪配置（OpenTelemetry）
type TracingConfig struct {
	Enable         bool   `mapstructure:"enable"`
	ServiceName    string `mapstructure:"service_name"`
	ExportEndpoint string `mapstructure:"export_endpoint"`
	Insecure       bool   `mapstructure:"insecure"`
}

// RateLimits 单个 Provider 的 LLM 限流配置
type RateLimits struct {
	TokensPerMinute   int     `mapstructure:"tokens_per_minute"`
	RequestsPerMinute float64 `mapstructure:"requests_per_minute"`
	MaxConcurrent     int     `mapstructure:"max_concurrent"`
}

// LoadConfig 加载配置文件
func LoadConfig(configPath string) (*Config, error) {
	viper.SetConfigFile(configPath)
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := viper.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("无法读取配置文件: %w", err)
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("无法解析配置文件: %w", err)
	}

	if err := replaceEnvVars(&config); err != nil {
		return nil, err
	}

	return &config, nil
}

// Load 按默认路径加载（GREENMCP_CONFIG 优先，其次 ./config/config.yaml）
func Load() (*Config, error) {
	path := os.Getenv("GREENMCP_CONFIG")
	if path == "" {
		path = "config/config.yaml"
	}
	return LoadConfig(path)
}

// replaceEnvVars 替换配置中的 ${ENV_VAR} 形式的 API Key
func replaceEnvVars(config *Config) error {
	for provider, pc := range config.Model.Providers {
		if strings.HasPrefix(pc.APIKey, "$") {
			envVar := strings.TrimPrefix(strings.TrimSuffix(pc.APIKey, "}"), "${")
			if val := os.Getenv(envVar); val != "" {
				pc.APIKey = val
				config.Model.Providers[provider] = pc
			}
		}
	}
	return nil
}
