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
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"greenmcp/internal/model/llm"
	"greenmcp/pkg/config"
)

func TestBuildDispatchClientDisablesDriftRewrite(t *testing.T) {
	// 调度客户端的输出要与原文逐字对照，英文漂移重写必须关闭：
	// 若重写仍然开启，英文输出会触发第二次生成请求
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{
			"response": "The weather question and the carbon question are separate",
		})
	}))
	defer srv.Close()

	cfg := &config.Config{}
	cfg.Dispatcher.Model = "test-model"
	cfg.Dispatcher.Provider = "ollama"
	cfg.Model.Providers = map[string]config.ProviderConfig{
		"ollama": {Type: "ollama", BaseURL: srv.URL},
	}

	client := buildDispatchClient(context.Background(), cfg, nil, nil, slog.Default())
	if client == nil {
		t.Fatal("dispatch client must be built")
	}

	out, err := client.Generate(context.Background(), "mesajı ayır", llm.GenerateOptions{MaxTokens: 64})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if out != "The weather question and the carbon question are separate" {
		t.Fatalf("output must pass through unrewritten: %q", out)
	}
	if calls != 1 {
		t.Fatalf("drift rewrite must stay off for dispatch use, got %d upstream calls", calls)
	}
}

func TestBuildDispatchClientUnconfigured(t *testing.T) {
	cfg := &config.Config{}
	if c := buildDispatchClient(context.Background(), cfg, nil, nil, slog.Default()); c != nil {
		t.Fatalf("empty dispatcher model must yield nil client, got %T", c)
	}
}
