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

package builtin

import (
	"log/slog"
	"time"

	"greenmcp/internal/tool"
	"greenmcp/pkg/config"
)

// Build 按配置构建工具注册表
// 单个工具配置错误只记录告警并跳过，不影响其余工具
func Build(specs map[string]config.ToolSpec, logger *slog.Logger) *tool.Registry {
	if logger == nil {
		logger = slog.Default()
	}
	registry := tool.NewRegistry()

	for name, spec := range specs {
		if spec.Enabled != nil && !*spec.Enabled {
			logger.Info("工具已禁用，跳过", "tool", name)
			continue
		}
		timeout := parseTimeout(spec.Timeout)

		var (
			runner tool.Runner
			err    error
		)
		switch spec.Type {
		case "weather":
			runner = NewWeatherTool(name, spec.BaseURL, spec.Params["geocode_url"], timeout)
		case "carbon":
			runner = NewCarbonTool(name, spec.BaseURL, timeout)
		case "http_json":
			runner, err = NewHTTPJSONTool(name, spec.BaseURL, spec.Params, timeout)
		default:
			logger.Warn("未知工具类型，跳过", "tool", name, "type", spec.Type)
			continue
		}
		if err != nil {
			logger.Warn("创建工具failed，跳过", "tool", name, "error", err)
			continue
		}
		registry.Register(runner)
		logger.Info("注册工具", "tool", name, "type", spec.Type)
	}
	return registry
}

func parseTimeout(s string) time.Duration {
	if s == "" {
		return 0
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0
	}
	return d
}
