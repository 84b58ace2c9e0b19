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
	"testing"

	"greenmcp/internal/model/llm"
	"greenmcp/pkg/errors"
)

type echoTool struct{ name string }

func (e *echoTool) Name() string { return e.name }
func (e *echoTool) Run(_ context.Context, input string, _ []llm.Message) (string, error) {
	return input, nil
}

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	r.Register(&echoTool{name: "weather_tool"})
	r.Register(&echoTool{name: "carbon_tool"})

	got, err := r.Get("carbon_tool")
	if err != nil || got.Name() != "carbon_tool" {
		t.Fatalf("Get failed: %v %v", got, err)
	}
	if _, err := r.Get("yok"); !errors.Is(err, errors.ErrNotRegistered) {
		t.Fatalf("want ErrNotRegistered, got %v", err)
	}

	names := r.Names()
	if len(names) != 2 || names[0] != "carbon_tool" || names[1] != "weather_tool" {
		t.Fatalf("Names must be sorted: %v", names)
	}
}

func TestAllowMap(t *testing.T) {
	m := NewAllowMap(map[string][]string{
		"qa_agent":    {"weather_tool", "carbon_tool"},
		"super_agent": {"*"},
	})

	if !m.Allowed("qa_agent", "weather_tool") {
		t.Fatal("listed tool must be allowed")
	}
	if m.Allowed("qa_agent", "gizli_tool") {
		t.Fatal("unlisted tool must be denied")
	}
	// 表里没有的源代理默认全拒
	if m.Allowed("bilinmeyen_agent", "weather_tool") {
		t.Fatal("unknown source agent must be denied")
	}
	if !m.Allowed("super_agent", "herhangi_tool") {
		t.Fatal("wildcard must allow everything")
	}
}
