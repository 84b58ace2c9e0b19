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

package dispatch

import "strings"

// Task 调度产出的子任务
type Task struct {
	Agent       string  `json:"agent"`
	Input       string  `json:"input"`
	SourceAgent string  `json:"source_agent,omitempty"` // 目标为工具时的代答 agent
	Confidence  float64 `json:"confidence"`
}

// Coalesce 合并相邻的同目标任务
// 输入文本以空格拼接，取最大置信度；SourceAgent 保留首个任务的值，
// 首个为空时补上后续任务的值。操作是幂等的：合并结果再次合并不变
func Coalesce(tasks []Task) []Task {
	if len(tasks) <= 1 {
		return tasks
	}
	out := make([]Task, 0, len(tasks))
	for _, t := range tasks {
		if len(out) > 0 && out[len(out)-1].Agent == t.Agent {
			last := &out[len(out)-1]
			last.Input = strings.TrimSpace(last.Input + " " + t.Input)
			if last.SourceAgent == "" {
				last.SourceAgent = t.SourceAgent
			}
			if t.Confidence > last.Confidence {
				last.Confidence = t.Confidence
			}
			continue
		}
		out = append(out, t)
	}
	return out
}
