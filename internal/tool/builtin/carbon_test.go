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

func findItem(items []CarbonItem, key string) (CarbonItem, bool) {
	for _, it := range items {
		if it.Key == key {
			return it, true
		}
	}
	return CarbonItem{}, false
}

func TestParseConsumptionCarAndElectricity(t *testing.T) {
	items := ParseConsumption("Bugün 12 km araba kullandım ve 3 kwh elektrik tükettim")

	car, ok := findItem(items, "car")
	if !ok || car.Amount != 12 || car.Unit != "km" {
		t.Fatalf("car item wrong: %+v", items)
	}
	elec, ok := findItem(items, "electricity")
	if !ok || elec.Amount != 3 || elec.Unit != "kwh" {
		t.Fatalf("electricity item wrong: %+v", items)
	}
}

func TestParseConsumptionTransportContext(t *testing.T) {
	// 公共交通语境下的 km 不能再按私家车计一次
	items := ParseConsumption("20 km otobüs ile gittim")
	if _, ok := findItem(items, "car"); ok {
		t.Fatalf("bus trip must not count as car: %+v", items)
	}
	bus, ok := findItem(items, "bus")
	if !ok || bus.Amount != 20 {
		t.Fatalf("bus item wrong: %+v", items)
	}

	items = ParseConsumption("100 km uçuş yaptım")
	if _, ok := findItem(items, "car"); ok {
		t.Fatalf("flight must not count as car: %+v", items)
	}
	if flight, ok := findItem(items, "flight"); !ok || flight.Amount != 100 {
		t.Fatalf("flight item wrong: %+v", items)
	}
}

func TestParseConsumptionChicken(t *testing.T) {
	items := ParseConsumption("2 porsiyon tavuk yedim")
	if chick, ok := findItem(items, "chicken"); !ok || chick.Amount != 2 || chick.Unit != "portion" {
		t.Fatalf("portion parse wrong: %+v", items)
	}

	// 400 g tavuk ≈ 2 porsiyon
	items = ParseConsumption("400 gram tavuk yedim")
	if chick, ok := findItem(items, "chicken"); !ok || chick.Amount != 2 || chick.Unit != "portion" {
		t.Fatalf("gram parse wrong: %+v", items)
	}

	// 断词修复
	items = ParseConsumption("1 porsiyon ta vuk yedim")
	if _, ok := findItem(items, "chicken"); !ok {
		t.Fatalf("split word fix failed: %+v", items)
	}
}

func TestParseConsumptionGasHours(t *testing.T) {
	items := ParseConsumption("2 saat doğalgaz yaktım")
	gas, ok := findItem(items, "natural_gas")
	if !ok || gas.Unit != "m3" || gas.Amount != 3 {
		t.Fatalf("gas hours must convert to m3: %+v", items)
	}
}

func TestParseConsumptionDecimalComma(t *testing.T) {
	items := ParseConsumption("1,5 litre süt içtim")
	milk, ok := findItem(items, "milk")
	if !ok || milk.Amount != 1.5 || milk.Unit != "l" {
		t.Fatalf("comma decimal parse wrong: %+v", items)
	}
}

func TestCarbonToolRun(t *testing.T) {
	tool := NewCarbonTool("carbon_tool", "", 0)

	out, err := tool.Run(context.Background(), "12 km araba kullandım ve 3 kwh elektrik tükettim", nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	// car: 12*0.192=2.304, electricity: 3*0.42=1.26, toplam 3.564
	if !strings.Contains(out, "Toplam ~3.564 kgCO₂e") {
		t.Fatalf("total wrong: %q", out)
	}
	if !strings.Contains(out, "car=12/km→2.304 kg") || !strings.Contains(out, "electricity=3/kwh→1.26 kg") {
		t.Fatalf("breakdown wrong: %q", out)
	}

	out, err = tool.Run(context.Background(), "bugün hiçbir şey yapmadım", nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !strings.Contains(out, "bulamadım") {
		t.Fatalf("no-item message wrong: %q", out)
	}
}

func TestCarbonToolJSONInput(t *testing.T) {
	tool := NewCarbonTool("carbon_tool", "", 0)
	out, err := tool.Run(context.Background(), `{"items":[{"key":"beef","amount":2,"unit":"kg"},{"key":"bilinmez","amount":1}]}`, nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !strings.Contains(out, "beef=2/kg→54 kg") {
		t.Fatalf("json items wrong: %q", out)
	}
	if !strings.Contains(out, "Bilinmeyen: bilinmez") {
		t.Fatalf("unknown key must be reported: %q", out)
	}
}

func TestCarbonToolService(t *testing.T) {
	// 配置了 base_url 时把解析出的消耗项 POST 给 /calc，并用服务返回的汇总组装结果
	var gotPath string
	var gotPayload struct {
		Items []CarbonItem `json:"items"`
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		if err := json.NewDecoder(r.Body).Decode(&gotPayload); err != nil {
			t.Fatalf("decode payload: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"co2e_kg": 3.564,
			"items": [
				{"key": "car", "amount": 12, "unit": "km", "co2e_kg": 2.304},
				{"key": "electricity", "amount": 3, "unit": "kwh", "co2e_kg": 1.26}
			],
			"unknown": [{"item": "bilinmez", "reason": "unknown key"}]
		}`))
	}))
	defer srv.Close()

	tool := NewCarbonTool("carbon_tool", srv.URL, 0)
	out, err := tool.Run(context.Background(), "12 km araba kullandım ve 3 kwh elektrik tükettim", nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if gotPath != "/calc" {
		t.Fatalf("request path = %q, want /calc", gotPath)
	}
	if car, ok := findItem(gotPayload.Items, "car"); !ok || car.Amount != 12 || car.Unit != "km" {
		t.Fatalf("posted items wrong: %+v", gotPayload.Items)
	}
	if !strings.Contains(out, "Toplam ~3.564 kgCO₂e") {
		t.Fatalf("service total wrong: %q", out)
	}
	if !strings.Contains(out, "car=12/km→2.304 kg") || !strings.Contains(out, "electricity=3/kwh→1.26 kg") {
		t.Fatalf("service breakdown wrong: %q", out)
	}
	if !strings.Contains(out, "Bilinmeyen: bilinmez") {
		t.Fatalf("service unknown wrong: %q", out)
	}
}

func TestCarbonToolServiceError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	tool := NewCarbonTool("carbon_tool", srv.URL, 0)
	out, err := tool.Run(context.Background(), "12 km araba kullandım", nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !strings.Contains(out, "[HATA] carbon_calc_svc isteği başarısız") {
		t.Fatalf("service error must surface as [HATA] text: %q", out)
	}
}
