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
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestHTTPJSONToolGet(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/tip" || r.URL.Query().Get("q") != "geri dönüşüm" {
			http.NotFound(w, r)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"data": map[string]any{"tip": "Cam şişeleri ayrı toplayın."},
		})
	}))
	defer srv.Close()

	tool, err := NewHTTPJSONTool("eco_tips", srv.URL, map[string]string{
		"path":  "/api/tip",
		"field": "data.tip",
	}, 0)
	if err != nil {
		t.Fatalf("NewHTTPJSONTool: %v", err)
	}

	out, err := tool.Run(context.Background(), "geri dönüşüm", nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if out != "Cam şişeleri ayrı toplayın." {
		t.Fatalf("unexpected output: %q", out)
	}
}

func TestHTTPJSONToolPostTemplate(t *testing.T) {
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(raw, &gotBody)
		_ = json.NewEncoder(w).Encode(map[string]any{"result": "ok"})
	}))
	defer srv.Close()

	tool, err := NewHTTPJSONTool("poster", srv.URL, map[string]string{
		"method": "POST",
		"path":   "/calc",
		"body":   `{"text":"{input}","lang":"tr"}`,
		"field":  "result",
	}, 0)
	if err != nil {
		t.Fatalf("NewHTTPJSONTool: %v", err)
	}

	out, err := tool.Run(context.Background(), `tehlikeli "tırnaklı" girdi`, nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if out != "ok" {
		t.Fatalf("unexpected output: %q", out)
	}
	// 输入中的引号必须被正确转义进 JSON
	if gotBody["text"] != `tehlikeli "tırnaklı" girdi` || gotBody["lang"] != "tr" {
		t.Fatalf("template substitution broken: %+v", gotBody)
	}
}

func TestHTTPJSONToolErrors(t *testing.T) {
	if _, err := NewHTTPJSONTool("eksik", "", nil, 0); err == nil {
		t.Fatal("missing base_url must be rejected")
	}
	if _, err := NewHTTPJSONTool("yanlış", "http://x", map[string]string{"method": "DELETE"}, 0); err == nil {
		t.Fatal("unsupported method must be rejected")
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	tool, err := NewHTTPJSONTool("bozuk", srv.URL, map[string]string{"path": "/x"}, 0)
	if err != nil {
		t.Fatalf("NewHTTPJSONTool: %v", err)
	}
	if _, err := tool.Run(context.Background(), "girdi", nil); err == nil {
		t.Fatal("non-200 upstream must surface as error")
	}
}
