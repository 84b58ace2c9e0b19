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

import (
	"os"
	"regexp"
	"strings"

	"greenmcp/pkg/errors"
)

// Example 路由示例：一条用户消息及其期望的目标
type Example struct {
	Message string
	Target  string
}

var (
	msgQuotedRe = regexp.MustCompile(`(?i)^\s*Message\s*:\s*"(.*)"\s*$`)
	msgPlainRe  = regexp.MustCompile(`(?i)^\s*Message\s*:\s*(\S.*?)\s*$`)
	targetRe    = regexp.MustCompile(`(?i)^\s*Selected-target\s*:\s*([A-Za-z0-9_\-]+)\s*$`)
)

// ParseExamples 从示例文本中解析 Message / Selected-target 对
// 顺序扫描：每个 Message 行与其后第一个 Selected-target 行配对，
// 不成对的行被忽略，解析永不报错
func ParseExamples(text string) []Example {
	var out []Example
	var pending string
	hasPending := false

	for _, line := range strings.Split(text, "\n") {
		if m := msgQuotedRe.FindStringSubmatch(line); m != nil {
			pending = strings.TrimSpace(m[1])
			hasPending = pending != ""
			continue
		}
		if m := msgPlainRe.FindStringSubmatch(line); m != nil {
			pending = strings.Trim(strings.TrimSpace(m[1]), `"`)
			hasPending = pending != ""
			continue
		}
		if m := targetRe.FindStringSubmatch(line); m != nil {
			if hasPending {
				out = append(out, Example{Message: pending, Target: strings.ToLower(m[1])})
				hasPending = false
			}
			continue
		}
	}
	return out
}

// LoadExamples 从文件加载路由示例
func LoadExamples(path string) ([]Example, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "读取路由示例文件 %s failed", path)
	}
	examples := ParseExamples(string(data))
	if len(examples) == 0 {
		return nil, errors.Wrapf(errors.ErrInvalidArg, "路由示例文件 %s 中没有有效的 Message/Selected-target 对", path)
	}
	return examples, nil
}
