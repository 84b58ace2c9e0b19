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
	"context"
	"testing"

	"greenmcp/internal/model/llm"
)

// fixedClient 固定返回同一段文本的模型客户端
type fixedClient struct {
	output string
}

func (f *fixedClient) Generate(_ context.Context, _ string, _ llm.GenerateOptions) (string, error) {
	return f.output, nil
}

func (f *fixedClient) Chat(_ context.Context, _ []llm.Message, _ llm.GenerateOptions) (string, error) {
	return f.output, nil
}

func (f *fixedClient) Model() string    { return "fixed" }
func (f *fixedClient) Provider() string { return "fixed" }

func TestSegmentAcceptsLooseSubstringClause(t *testing.T) {
	// "12 km yo" 的 token 重叠低于阈值（0.667），但宽松规范化后是原文子串，应接受
	s := NewSegmenter(&fixedClient{output: "12 km yo"}, Params{}, nil)

	clauses := s.Segment(context.Background(), "arabayla 12 km yol yaptım bugün")
	if len(clauses) != 1 || clauses[0] != "12 km yo" {
		t.Fatalf("substring clause must be accepted, got %v", clauses)
	}
}

func TestSegmentDropsErrorSurfaceLines(t *testing.T) {
	// 整段输出带错误回显时直接放弃 LLM 结果，回退规则切分
	s := NewSegmenter(&fixedClient{output: "hata: 12 km araba kullandım"}, Params{}, nil)

	clauses := s.Segment(context.Background(), "Bugün 12 km araba kullandım ve 3 kwh elektrik tükettim")
	if len(clauses) != 2 {
		t.Fatalf("error surface must trigger rule fallback, got %v", clauses)
	}
	for _, c := range clauses {
		if errMarkerRe.MatchString(c) {
			t.Fatalf("error marker leaked into clause: %q", c)
		}
	}
}

func TestCleanSegmentOutputDropsErrorLines(t *testing.T) {
	raw := "Hava durumu nasıl\nerror: connection refused\nKarbon hesapla"
	got := cleanSegmentOutput(raw)
	if len(got) != 2 || got[0] != "Hava durumu nasıl" || got[1] != "Karbon hesapla" {
		t.Fatalf("error lines must be dropped, got %v", got)
	}
}

func TestSegmentRejectsHallucinatedClause(t *testing.T) {
	// 既非子串、token 重叠也不足：拒绝后回退规则切分
	s := NewSegmenter(&fixedClient{output: "uzay yolculuğu planla"}, Params{}, nil)

	clauses := s.Segment(context.Background(), "Bugün 12 km araba kullandım")
	if len(clauses) != 1 || clauses[0] != "Bugün 12 km araba kullandım" {
		t.Fatalf("hallucinated clause must fall back to rules, got %v", clauses)
	}
}
