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
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestExtractLatLon(t *testing.T) {
	lat, lon, ok := extractLatLon("hava lat=37.2 lon=28.36")
	if !ok || lat != 37.2 || lon != 28.36 {
		t.Fatalf("extractLatLon = %v %v %v", lat, lon, ok)
	}
	if _, _, ok := extractLatLon("Muğla'da hava nasıl"); ok {
		t.Fatal("plain text must not parse as coordinates")
	}
}

func TestCandidateQueries(t *testing.T) {
	qs := candidateQueries("Muğla'da hava durumu nasıl?")
	if len(qs) == 0 {
		t.Fatal("no candidates")
	}

	// 地名 token 要在候选里（后缀 da 被剥掉）
	found := false
	for _, q := range qs {
		if q == "mugla" {
			found = true
		}
	}
	if !found {
		t.Fatalf("city token missing from candidates: %v", qs)
	}

	// turkey 扩展存在
	foundTR := false
	for _, q := range qs {
		if strings.HasSuffix(q, ", turkey") {
			foundTR = true
		}
	}
	if !foundTR {
		t.Fatalf("turkey variants missing: %v", qs)
	}
}

func TestWeatherToolRun(t *testing.T) {
	geocode := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/search" {
			http.NotFound(w, r)
			return
		}
		if strings.Contains(strings.ToLower(r.URL.Query().Get("name")), "mugla") {
			_ = json.NewEncoder(w).Encode(map[string]any{
				"results": []map[string]any{{
					"name": "Muğla", "country": "Türkiye",
					"latitude": 37.21, "longitude": 28.36,
				}},
			})
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"results": []any{}})
	}))
	defer geocode.Close()

	forecast := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/forecast" {
			http.NotFound(w, r)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"current_weather": map[string]any{
				"temperature": 24.5, "windspeed": 11.0, "time": "2026-08-31T14:00",
			},
			"hourly": map[string]any{
				"time":                      []string{"2026-08-31T14:00"},
				"temperature_2m":            []float64{24.5},
				"precipitation_probability": []float64{10},
				"relative_humidity_2m":      []float64{55},
			},
		})
	}))
	defer forecast.Close()

	tool := NewWeatherTool("weather_tool", forecast.URL, geocode.URL, 0)

	out, err := tool.Run(context.Background(), "Muğla'da hava durumu nasıl?", nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	for _, want := range []string{"Muğla, Türkiye için", "~24.5°C", "yağış olasılığı ~%10", "nem ~%55", "rüzgâr ~11 km/sa"} {
		if !strings.Contains(out, want) {
			t.Fatalf("output missing %q: %q", want, out)
		}
	}

	// 坐标输入跳过地理编码
	out, err = tool.Run(context.Background(), "lat=37.2 lon=28.36", nil)
	if err != nil {
		t.Fatalf("Run with coords: %v", err)
	}
	if !strings.Contains(out, "(lat=37.2, lon=28.36)") {
		t.Fatalf("coordinate echo missing: %q", out)
	}

	// 解析不出位置时给出土耳其语提示而不是错误
	out, err = tool.Run(context.Background(), "zzzzzz qqqqqq", nil)
	if err != nil {
		t.Fatalf("unresolvable input must not error: %v", err)
	}
	if !strings.Contains(out, "Konumu çözemiyorum") {
		t.Fatalf("unresolved message wrong: %q", out)
	}
}
