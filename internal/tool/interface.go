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
	"context"

	"greenmcp/internal/model/llm"
)

// Runner 工具接口
// 工具输出直接面向用户，失败时应返回错误而不是吞掉
type Runner interface {
	// Name 返回工具名
	Name() string
	// Run 执行工具；history 为当前会话历史，多数工具忽略它
	Run(ctx context.Context, input string, history []llm.Message) (string, error)
}
