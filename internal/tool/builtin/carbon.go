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
	"fmt"
	"math"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"greenmcp/internal/model/llm"
)

const defaultCarbonWait = 8 * time.Second

// 排放系数（kgCO₂e / 单位），近似值
var carbonCoeffs = map[string]map[string]float64{
	"car":         {"km": 0.192},
	"electricity": {"kwh": 0.42},
	"pet_bottle":  {"piece": 0.082},
	"chicken":     {"portion": 1.6, "kg": 8.0},
	"beef":        {"kg": 27.0},
	"milk":        {"l": 1.0},
	"natural_gas": {"m3": 2.0},
	"flight":      {"km": 0.15},
	"bus":         {"km": 0.05},
	"rail":        {"km": 0.03},
	"paper":       {"kg": 1.2},
	"waste":       {"kg": 0.2},
}

// doğalgaz kullanım süresi varsayımı：1 saat ≈ 1.5 m³
const gasM3PerHour = 1.5

const numPat = `(\d+(?:[.,]\d+)?)`

var (
	kmRe       = regexp.MustCompile(`(?i)` + numPat + `\s*(?:km|kilometre)\b`)
	kwhRe      = regexp.MustCompile(`(?i)` + numPat + `\s*(?:k\s*w\s*h|kwh|kilovat\s*saat|kilovatsaat)\b`)
	bottleRe   = regexp.MustCompile(`(?i)(\d+)\s*(?:tane\s*)?(?:pet(?:\s*şişe)?|şişe)\b`)
	chickPortA = regexp.MustCompile(`(?i)(\d+)\s*(?:porsiyon|persiyon)(?:\s*tavuk)?\b`)
	chickPortB = regexp.MustCompile(`(?i)tavuk\s*(\d+)\s*(?:porsiyon|persiyon)\b`)
	chickGramA = regexp.MustCompile(`(?i)` + numPat + `\s*(?:g|gr|gram)\s*(?:tavuk)?\b`)
	chickGramB = regexp.MustCompile(`(?i)tavuk\s*` + numPat + `\s*(?:g|gr|gram)\b`)
	chickKgRe  = regexp.MustCompile(`(?i)` + numPat + `\s*kg\s*(?:tavuk)\b`)
	beefKgRe   = regexp.MustCompile(`(?i)` + numPat + `\s*kg\s*(?:dana|sığır|sigir|biftek|kırmızı\s*et)\b`)
	milkRe     = regexp.MustCompile(`(?i)` + numPat + `\s*(?:l|lt|litre)\s*süt\b`)
	gasM3Re    = regexp.MustCompile(`(?i)` + numPat + `\s*(?:m3|metreküp)\s*(?:doğalgaz|dogalgaz)\b`)
	gasHourA   = regexp.MustCompile(`(?i)` + numPat + `\s*saat\s*(?:doğalgaz|dogalgaz)\b`)
	gasHourB   = regexp.MustCompile(`(?i)(?:doğalgaz|dogalgaz)\s*` + numPat + `\s*saat\b`)
	// \b 在 Go 里只认 ASCII 词字符，土耳其字母结尾的词后面不能再用 \b
	flightKmRe = regexp.MustCompile(`(?i)` + numPat + `\s*km\s*(?:uçuş|ucus|uçak)`)
	busKmRe    = regexp.MustCompile(`(?i)` + numPat + `\s*km\s*(?:otobüs|otobus)`)
	railKmRe   = regexp.MustCompile(`(?i)` + numPat + `\s*km\s*(?:tren|raylı|rayli)`)
	paperKgRe  = regexp.MustCompile(`(?i)` + numPat + `\s*kg\s*(?:kâğıt|kağıt|kagit)\b`)
	wasteKgRe  = regexp.MustCompile(`(?i)` + numPat + `\s*kg\s*(?:çöp|cop|atık|atik)\b`)

	carbonSpaceRe = regexp.MustCompile(`\s+`)
	splitChickRe  = regexp.MustCompile(`(?i)t\s*a\s*v\s*u\s*k`)
	splitGasRe    = regexp.MustCompile(`(?i)d\s*o\s*ğ?\s*a\s*l\s*g\s*a\s*z`)
	splitM3Re     = regexp.MustCompile(`(?i)m\s*e\s*t\s*r\s*e\s*k\s*ü\s*p`)
)

// 乘车语境关键词：数字+km 前后出现这些词时不按私家车计
var transportKeywords = []string{"otobüs", "otobus", "tren", "uçuş", "ucus", "uçak", "ucak", "raylı", "rayli"}

// CarbonItem 单项消耗
type CarbonItem struct {
	Key    string  `json:"key"`
	Amount float64 `json:"amount"`
	Unit   string  `json:"unit,omitempty"`
}

// CarbonTool 碳足迹计算工具
// 输入既可以是带 items 的 JSON，也可以是土耳其语自然语句
// 配置了 base_url 时把消耗项交给 carbon_calc_svc 计算，否则用内置系数表
type CarbonTool struct {
	name    string
	baseURL string
	client  *resty.Client
}

// NewCarbonTool 创建碳足迹工具；baseURL 为空时本地计算
func NewCarbonTool(name, baseURL string, timeout time.Duration) *CarbonTool {
	if timeout <= 0 {
		timeout = defaultCarbonWait
	}
	client := resty.New()
	client.SetTimeout(timeout)
	client.SetRetryCount(2)
	client.SetRetryWaitTime(500 * time.Millisecond)

	return &CarbonTool{
		name:    name,
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  client,
	}
}

// Name 返回工具名
func (t *CarbonTool) Name() string { return t.name }

// Run 解析消耗项并汇总排放量，输出土耳其语结果
func (t *CarbonTool) Run(ctx context.Context, input string, _ []llm.Message) (string, error) {
	items := parseItemsJSON(input)
	if items == nil {
		items = ParseConsumption(input)
	}
	if len(items) == 0 {
		return "Hesaplanacak bir tüketim bulamadım. Örnek: '12 km araba kullandım ve 3 kwh elektrik tükettim'.", nil
	}

	if t.baseURL != "" {
		return t.runService(ctx, items), nil
	}
	return computeLocal(items), nil
}

type calcResponse struct {
	CO2eKg float64 `json:"co2e_kg"`
	Items  []struct {
		Key    string  `json:"key"`
		Amount float64 `json:"amount"`
		Unit   string  `json:"unit"`
		CO2eKg float64 `json:"co2e_kg"`
	} `json:"items"`
	Unknown []struct {
		Item   string `json:"item"`
		Reason string `json:"reason"`
	} `json:"unknown"`
}

// runService 把消耗项提交给 carbon_calc_svc 的 /calc，失败时返回土耳其语错误文本
func (t *CarbonTool) runService(ctx context.Context, items []CarbonItem) string {
	resp, err := t.client.R().
		SetContext(ctx).
		SetBody(map[string][]CarbonItem{"items": items}).
		Post(t.baseURL + "/calc")
	if err != nil {
		return fmt.Sprintf("[HATA] carbon_calc_svc isteği başarısız: %v", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return fmt.Sprintf("[HATA] carbon_calc_svc isteği başarısız: upstream %d", resp.StatusCode())
	}
	var data calcResponse
	if err := json.Unmarshal(resp.Body(), &data); err != nil {
		return fmt.Sprintf("[HATA] carbon_calc_svc isteği başarısız: %v", err)
	}

	parts := make([]string, 0, len(data.Items))
	for _, it := range data.Items {
		unit := ""
		if it.Unit != "" {
			unit = "/" + it.Unit
		}
		parts = append(parts, fmt.Sprintf("%s=%s%s→%s kg", it.Key, formatAmount(it.Amount), unit, formatAmount(it.CO2eKg)))
	}
	var unknown []string
	for _, u := range data.Unknown {
		unknown = append(unknown, u.Item)
	}
	return formatCarbonResult(data.CO2eKg, parts, unknown)
}

// computeLocal 用内置系数表汇总排放量
func computeLocal(items []CarbonItem) string {
	total := 0.0
	parts := make([]string, 0, len(items))
	var unknown []string
	for _, it := range items {
		it.Key = strings.ToLower(strings.TrimSpace(it.Key))
		it.Unit = strings.ToLower(strings.TrimSpace(it.Unit))
		coeffs, ok := carbonCoeffs[it.Key]
		if !ok {
			unknown = append(unknown, it.Key)
			continue
		}
		coeff, ok := coeffs[it.Unit]
		if !ok {
			if len(coeffs) != 1 {
				unknown = append(unknown, it.Key+"/"+it.Unit)
				continue
			}
			for u, c := range coeffs {
				it.Unit, coeff = u, c
			}
		}
		kg := round3(it.Amount * coeff)
		total += kg
		parts = append(parts, fmt.Sprintf("%s=%s/%s→%s kg", it.Key, formatAmount(it.Amount), it.Unit, formatAmount(kg)))
	}
	return formatCarbonResult(round3(total), parts, unknown)
}

func formatCarbonResult(total float64, parts, unknown []string) string {
	msg := fmt.Sprintf("Toplam ~%s kgCO₂e.", formatAmount(total))
	if len(parts) > 0 {
		msg += " Kalemler: " + strings.Join(parts, ", ")
	}
	if len(unknown) > 0 {
		msg += " | Bilinmeyen: " + strings.Join(unknown, ", ")
	}
	return msg
}

// parseItemsJSON 输入本身就是 {"items":[...]} 时直接使用
func parseItemsJSON(input string) []CarbonItem {
	var payload struct {
		Items []CarbonItem `json:"items"`
	}
	if err := json.Unmarshal([]byte(strings.TrimSpace(input)), &payload); err != nil {
		return nil
	}
	if payload.Items == nil {
		return nil
	}
	return payload.Items
}

// ParseConsumption 从土耳其语自然语句中提取消耗项
func ParseConsumption(text string) []CarbonItem {
	t := strings.ToLower(strings.TrimSpace(text))
	t = carbonSpaceRe.ReplaceAllString(t, " ")
	// 常见的断词输入修复（"ta vuk" 之类）
	t = splitChickRe.ReplaceAllString(t, "tavuk")
	t = splitGasRe.ReplaceAllString(t, "doğalgaz")
	t = splitM3Re.ReplaceAllString(t, "metreküp")

	var items []CarbonItem

	// 私家车里程：上下文里出现公共交通/飞行关键词时跳过
	for _, m := range kmRe.FindAllStringSubmatchIndex(t, -1) {
		if hasTransportContext(t, m[0], m[1]) {
			continue
		}
		if v := parseNum(t[m[2]:m[3]]); v > 0 {
			items = append(items, CarbonItem{Key: "car", Amount: v, Unit: "km"})
		}
	}

	for _, v := range allNums(kwhRe, t) {
		items = append(items, CarbonItem{Key: "electricity", Amount: v, Unit: "kwh"})
	}
	for _, v := range allNums(bottleRe, t) {
		items = append(items, CarbonItem{Key: "pet_bottle", Amount: math.Trunc(v), Unit: "piece"})
	}

	// 鸡肉：份数、克数（200g ≈ 1 份）、公斤三种写法
	portions := 0.0
	for _, v := range allNums(chickPortA, t) {
		portions += math.Trunc(v)
	}
	for _, v := range allNums(chickPortB, t) {
		portions += math.Trunc(v)
	}
	if portions > 0 {
		items = append(items, CarbonItem{Key: "chicken", Amount: portions, Unit: "portion"})
	}
	if strings.Contains(t, "tavuk") {
		grams := 0.0
		for _, v := range allNums(chickGramA, t) {
			grams += v
		}
		for _, v := range allNums(chickGramB, t) {
			grams += v
		}
		if grams > 0 {
			p := math.Round(grams / 200.0)
			if p < 1 {
				p = 1
			}
			items = append(items, CarbonItem{Key: "chicken", Amount: p, Unit: "portion"})
		}
	}
	for _, v := range allNums(chickKgRe, t) {
		items = append(items, CarbonItem{Key: "chicken", Amount: v, Unit: "kg"})
	}

	for _, v := range allNums(beefKgRe, t) {
		items = append(items, CarbonItem{Key: "beef", Amount: v, Unit: "kg"})
	}
	for _, v := range allNums(milkRe, t) {
		items = append(items, CarbonItem{Key: "milk", Amount: v, Unit: "l"})
	}
	for _, v := range allNums(gasM3Re, t) {
		items = append(items, CarbonItem{Key: "natural_gas", Amount: v, Unit: "m3"})
	}
	for _, v := range allNums(gasHourA, t) {
		items = append(items, CarbonItem{Key: "natural_gas", Amount: round3(v * gasM3PerHour), Unit: "m3"})
	}
	for _, v := range allNums(gasHourB, t) {
		items = append(items, CarbonItem{Key: "natural_gas", Amount: round3(v * gasM3PerHour), Unit: "m3"})
	}
	for _, v := range allNums(flightKmRe, t) {
		items = append(items, CarbonItem{Key: "flight", Amount: v, Unit: "km"})
	}
	for _, v := range allNums(busKmRe, t) {
		items = append(items, CarbonItem{Key: "bus", Amount: v, Unit: "km"})
	}
	for _, v := range allNums(railKmRe, t) {
		items = append(items, CarbonItem{Key: "rail", Amount: v, Unit: "km"})
	}
	for _, v := range allNums(paperKgRe, t) {
		items = append(items, CarbonItem{Key: "paper", Amount: v, Unit: "kg"})
	}
	for _, v := range allNums(wasteKgRe, t) {
		items = append(items, CarbonItem{Key: "waste", Amount: v, Unit: "kg"})
	}

	return items
}

// hasTransportContext 检查匹配位置前 16 字节与后 12 字节内是否出现公共交通关键词
func hasTransportContext(t string, start, end int) bool {
	lo := start - 16
	if lo < 0 {
		lo = 0
	}
	hi := end + 12
	if hi > len(t) {
		hi = len(t)
	}
	ctx := t[lo:hi]
	for _, kw := range transportKeywords {
		if strings.Contains(ctx, kw) {
			return true
		}
	}
	return false
}

func allNums(re *regexp.Regexp, t string) []float64 {
	var out []float64
	for _, m := range re.FindAllStringSubmatch(t, -1) {
		if v := parseNum(m[1]); v > 0 {
			out = append(out, v)
		}
	}
	return out
}

func parseNum(s string) float64 {
	v, err := strconv.ParseFloat(strings.ReplaceAll(s, ",", "."), 64)
	if err != nil {
		return 0
	}
	return v
}

func round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}

// formatAmount 去掉多余的小数零
func formatAmount(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
