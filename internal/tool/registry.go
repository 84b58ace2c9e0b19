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

package tool

import (
	"sort"
	"sync"

	"greenmcp/pkg/errors"
)

// Registry 工具注册表
type Registry struct {
	mu    sync.RWMutex
	tools map[string]Runner
}

// NewRegistry 创建空注册表
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]Runner)}
}

// Register 注册工具，同名覆盖
func (r *Registry) Register(t Runner) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[t.Name()] = t
}

// Get 按名称获取工具
func (r *Registry) Get(name string) (Runner, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	if !ok {
		return nil, errors.Wrapf(errors.ErrNotRegistered, "工具 %s", name)
	}
	return t, nil
}

// Names 返回已注册工具名，排序稳定
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// AllowMap 源代理到可用工具的白名单
// 未出现在表中的源代理没有任何工具权限；"*" 表示放开全部工具
type AllowMap map[string]map[string]struct{}

// NewAllowMap 由配置构建白名单
func NewAllowMap(cfg map[string][]string) AllowMap {
	m := make(AllowMap, len(cfg))
	for agent, tools := range cfg {
		set := make(map[string]struct{}, len(tools))
		for _, t := range tools {
			set[t] = struct{}{}
		}
		m[agent] = set
	}
	return m
}

// Allowed 判断源代理能否使用工具
func (m AllowMap) Allowed(sourceAgent, toolName string) bool {
	set, ok := m[sourceAgent]
	if !ok {
		return false
	}
	if _, all := set["*"]; all {
		return true
	}
	_, ok = set[toolName]
	return ok
}
