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
	"log/slog"
	"sort"
	"sync"

	"greenmcp/internal/model/llm"
	"greenmcp/pkg/config"
	"greenmcp/pkg/errors"
	"greenmcp/pkg/secrets"
)

// Registry 代理注册表
type Registry struct {
	mu     sync.RWMutex
	agents map[string]*Agent
}

// NewRegistry 创建空注册表
func NewRegistry() *Registry {
	return &Registry{agents: make(map[string]*Agent)}
}

// Register 注册代理，同名覆盖
func (r *Registry) Register(a *Agent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.agents[a.Name()] = a
}

// Get 按名称获取代理
func (r *Registry) Get(name string) (*Agent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.agents[name]
	if !ok {
		return nil, errors.Wrapf(errors.ErrNotRegistered, "代理 %s", name)
	}
	return a, nil
}

// Names 返回已注册代理名，排序稳定
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.agents))
	for name := range r.agents {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// BuildRegistry 按配置批量创建代理
// 单个代理创建失败只记录告警并跳过，不影响其余代理
func BuildRegistry(ctx context.Context, cfg *config.Config, limiter *llm.RateLimiter, sec secrets.Store, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	registry := NewRegistry()

	for name, spec := range cfg.Agents {
		providerName := spec.Provider
		if providerName == "" {
			providerName = cfg.Model.Default
		}
		pc := cfg.Model.Providers[providerName]

		client, err := llm.NewClient(ctx, providerName, pc, spec.Model, sec)
		if err != nil {
			logger.Warn("创建代理模型客户端failed，跳过", "agent", name, "provider", providerName, "error", err)
			continue
		}
		if limiter != nil {
			client = llm.NewRateLimitedClient(client, limiter)
		}

		a, err := New(name, spec, client, logger)
		if err != nil {
			logger.Warn("创建代理failed，跳过", "agent", name, "error", err)
			continue
		}
		registry.Register(a)
		logger.Info("注册代理", "agent", name, "type", agentType(spec), "model", spec.Model, "provider", providerName)
	}
	return registry
}
