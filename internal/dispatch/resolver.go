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

// Resolution 单个子句的路由结果
type Resolution struct {
	Target     string
	Confidence float64
	Example    string // 命中的示例消息，便于观测
}

// Resolve 基于示例相似度为子句选择目标
// 对每个示例计算规范化后的相似度取最大值；并列时取先出现的示例。
// 最佳目标不在 validTargets 中、或示例为空时，回退到 defaultTarget
func Resolve(clause string, examples []Example, validTargets map[string]struct{}, defaultTarget string) Resolution {
	normClause := Normalize(clause)

	best := Resolution{Target: defaultTarget, Confidence: 0}
	for _, ex := range examples {
		score := Ratio(normClause, Normalize(ex.Message))
		if score > best.Confidence {
			best = Resolution{Target: ex.Target, Confidence: score, Example: ex.Message}
		}
	}

	if _, ok := validTargets[best.Target]; !ok {
		return Resolution{Target: defaultTarget, Confidence: best.Confidence, Example: best.Example}
	}
	return best
}
