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

package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/cloudwego/hertz/pkg/app/server"
	"github.com/cloudwego/hertz/pkg/common/hlog"
	hertzslog "github.com/hertz-contrib/logger/slog"
	"github.com/hertz-contrib/obs-opentelemetry/provider"
	hertztracing "github.com/hertz-contrib/obs-opentelemetry/tracing"

	"greenmcp/internal/agent"
	apihttp "greenmcp/internal/api/http"
	"greenmcp/internal/dispatch"
	"greenmcp/internal/memory"
	"greenmcp/internal/model/embedding"
	"greenmcp/internal/model/llm"
	"greenmcp/internal/orchestrator"
	"greenmcp/internal/tool"
	"greenmcp/internal/tool/builtin"
	"greenmcp/pkg/config"
	"greenmcp/pkg/log"
	"greenmcp/pkg/secrets"
)

// otelProviderShutdown 追踪 provider 的收口接口
type otelProviderShutdown interface {
	Shutdown(ctx context.Context) error
}

// App HTTP 服务应用：装配完整管线并托管 Hertz 服务
type App struct {
	config       *config.Config
	logger       *slog.Logger
	store        memory.Store
	agents       *agent.Registry
	orch         *orchestrator.Orchestrator
	router       *apihttp.Router
	hertz        *server.Hertz
	otelProvider otelProviderShutdown
}

// New 按配置装配全部组件
// 记忆后端探测、代理创建均为尽力而为，失败降级不阻塞启动
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	logger, err := log.NewLogger(&log.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		File:   cfg.Log.File,
	})
	if err != nil {
		return nil, fmt.Errorf("初始化日志failed: %w", err)
	}
	slog.SetDefault(logger.Logger)

	sec, err := secrets.NewStore(secrets.Config{
		Provider: cfg.Secrets.Provider,
		Vault: secrets.VaultConfig{
			Address:    cfg.Secrets.Vault.Address,
			Token:      cfg.Secrets.Vault.Token,
			PathPrefix: cfg.Secrets.Vault.PathPrefix,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("初始化 secret store failed: %w", err)
	}

	store := memory.Open(ctx, cfg.Memory, buildEmbedder(ctx, cfg, sec), logger.Logger)

	var limiter *llm.RateLimiter
	if len(cfg.RateLimits) > 0 {
		limits := make(map[string]llm.LimitConfig, len(cfg.RateLimits))
		for providerName, rl := range cfg.RateLimits {
			limits[providerName] = llm.LimitConfig{
				TokensPerMinute:   rl.TokensPerMinute,
				RequestsPerMinute: rl.RequestsPerMinute,
				MaxConcurrent:     rl.MaxConcurrent,
			}
		}
		limiter = llm.NewRateLimiter(limits, nil)
	}

	agents := agent.BuildRegistry(ctx, cfg, limiter, sec, logger.Logger)
	tools := builtin.Build(cfg.Tools, logger.Logger)
	allow := tool.NewAllowMap(cfg.Allow)

	dispatchClient := buildDispatchClient(ctx, cfg, limiter, sec, logger.Logger)

	examples, err := dispatch.LoadExamples(cfg.Dispatcher.ExamplesPath)
	if err != nil {
		logger.Warn("加载路由示例failed，仅靠兜底目标路由", "path", cfg.Dispatcher.ExamplesPath, "error", err)
	}
	d := dispatch.NewDispatcher(dispatchClient, examples, agents.Names(), tools.Names(), dispatch.Params{
		TokenOverlap: cfg.Dispatcher.TokenOverlap,
		MinWords:     cfg.Dispatcher.MinWords,
		DefaultAgent: cfg.Dispatcher.DefaultAgent,
	}, logger.Logger)

	orch := orchestrator.New(d, agents, tools, allow, store, dispatchClient, orchestrator.Options{
		HistoryWindow:    cfg.Pipeline.HistoryWindow,
		SummaryThreshold: cfg.Pipeline.SummaryThreshold,
	}, logger.Logger)

	handler := apihttp.NewHandler(orch, store, logger.Logger)

	a := &App{
		config: cfg,
		logger: logger.Logger,
		store:  store,
		agents: agents,
		orch:   orch,
		router: apihttp.NewRouter(handler),
	}
	a.warmup(ctx)
	return a, nil
}

// buildEmbedder 构建向量化客户端；未配置 provider 时返回 nil，后端探测自然降级
func buildEmbedder(ctx context.Context, cfg *config.Config, sec secrets.Store) embedding.Embedder {
	providerName := cfg.Memory.Embedding.Provider
	if providerName == "" {
		return nil
	}
	pc := cfg.Model.Providers[providerName]
	apiKey := pc.APIKey
	if pc.APIKeyRef != "" && sec != nil {
		if v, err := sec.Get(ctx, pc.APIKeyRef); err == nil && v != "" {
			apiKey = v
		}
	}
	return embedding.NewOpenAIAdapter(apiKey, cfg.Memory.Embedding.Model, pc.BaseURL, cfg.Memory.Embedding.Dimension)
}

// buildDispatchClient 分句与滚动摘要共用的模型客户端，创建失败时二者均退化
func buildDispatchClient(ctx context.Context, cfg *config.Config, limiter *llm.RateLimiter, sec secrets.Store, logger *slog.Logger) llm.Client {
	if cfg.Dispatcher.Model == "" {
		return nil
	}
	providerName := cfg.Dispatcher.Provider
	if providerName == "" {
		providerName = cfg.Model.Default
	}
	client, err := llm.NewClient(ctx, providerName, cfg.Model.Providers[providerName], cfg.Dispatcher.Model, sec)
	if err != nil {
		logger.Warn("创建调度模型客户端failed，改用规则分句", "provider", providerName, "error", err)
		return nil
	}
	// 分句结果不能被土耳其语重写改动，安全过滤靠的是与原文逐字对照
	if oc, ok := client.(*llm.OllamaClient); ok {
		oc.SetDriftRewrite(false)
	}
	if limiter != nil {
		client = llm.NewRateLimitedClient(client, limiter)
	}
	return client
}

// warmup 逐个代理做一次 1 token 生成，把模型提前拉进显存
// DISABLE_WARMUP=1 或 api.warmup=false 时跳过，失败只告警
func (a *App) warmup(ctx context.Context) {
	if os.Getenv("DISABLE_WARMUP") == "1" {
		return
	}
	if a.config.API.Warmup != nil && !*a.config.API.Warmup {
		return
	}
	for _, name := range a.agents.Names() {
		ag, err := a.agents.Get(name)
		if err != nil {
			continue
		}
		if err := ag.Warmup(ctx); err != nil {
			a.logger.Warn("模型预热failed", "agent", name, "error", err)
			continue
		}
		a.logger.Info("模型预热完成", "agent", name)
	}
}

// Run 启动 HTTP 服务（阻塞直到 Shutdown）
func (a *App) Run(addr string) error {
	var output io.Writer = os.Stdout
	if a.config.Log.File != "" {
		f, err := os.OpenFile(a.config.Log.File, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
		if err != nil {
			return fmt.Errorf("打开日志文件failed: %w", err)
		}
		output = f
	}
	levelVar := &slog.LevelVar{}
	switch a.config.Log.Level {
	case "debug":
		levelVar.Set(slog.LevelDebug)
	case "warn":
		levelVar.Set(slog.LevelWarn)
	case "error":
		levelVar.Set(slog.LevelError)
	default:
		levelVar.Set(slog.LevelInfo)
	}
	hertzLogger := hertzslog.NewLogger(
		hertzslog.WithOutput(output),
		hertzslog.WithLevel(levelVar),
	)
	hlog.SetLogger(hertzLogger)

	// 可选：启用链路追踪（OpenTelemetry）
	if a.config.Monitoring.Tracing.Enable {
		serviceName := a.config.Monitoring.Tracing.ServiceName
		if serviceName == "" {
			serviceName = "greenmcp"
		}
		exportEndpoint := a.config.Monitoring.Tracing.ExportEndpoint
		if exportEndpoint == "" {
			exportEndpoint = os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")
		}
		if exportEndpoint != "" {
			opts := []provider.Option{
				provider.WithServiceName(serviceName),
				provider.WithExportEndpoint(exportEndpoint),
			}
			if a.config.Monitoring.Tracing.Insecure {
				opts = append(opts, provider.WithInsecure())
			}
			// provider 会设置全局 TracerProvider，请求/任务 span 都挂在它上面
			p := provider.NewOpenTelemetryProvider(opts...)
			a.otelProvider = p
			tracerOpt, tcfg := hertztracing.NewServerTracer()
			a.hertz = a.router.Build(addr, tracerOpt)
			a.hertz.Use(hertztracing.ServerMiddleware(tcfg))
			a.logger.Info("链路追踪已启用", "service_name", serviceName, "endpoint", exportEndpoint)
		} else {
			a.hertz = a.router.Build(addr)
		}
	} else {
		a.hertz = a.router.Build(addr)
	}

	a.logger.Info("HTTP 服务启动", "addr", addr, "memory_backend", a.store.Backend())
	return a.hertz.Run()
}

// Shutdown 优雅关闭（传入 ctx 以支持超时）
func (a *App) Shutdown(ctx context.Context) error {
	if a.otelProvider != nil {
		_ = a.otelProvider.Shutdown(ctx)
	}
	if a.hertz != nil {
		if err := a.hertz.Shutdown(ctx); err != nil {
			return err
		}
	}
	return a.store.Close()
}
