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
	"net/http"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"greenmcp/internal/dispatch"
	"greenmcp/internal/model/llm"
)

const (
	defaultForecastURL = "https://api.open-meteo.com"
	defaultGeocodeURL  = "https://geocoding-api.open-meteo.com"
	defaultWeatherWait = 8 * time.Second
)

var (
	latRe = regexp.MustCompile(`(?i)\blat(?:itude)?\s*[:=]\s*(-?[0-9.]+)`)
	lonRe = regexp.MustCompile(`(?i)\blo(?:n|ng|ngitude)?\s*[:=]\s*(-?[0-9.]+)`)

	suffixRe = regexp.MustCompile(`(?i)(?:da|de|ta|te)$`)
)

// 地名抽取时跳过的疑问/功能词
var weatherStopWords = map[string]struct{}{
	"hava": {}, "durumu": {}, "nedir": {}, "bugun": {}, "simdi": {},
	"yagis": {}, "olasiligi": {}, "var": {}, "nasil": {}, "kac": {},
	"derece": {}, "icin": {}, "yakin": {}, "nerede": {}, "yarin": {},
	"mi": {}, "mu": {}, "tr": {}, "turkiye": {},
}

// WeatherTool 天气查询工具
// 先从输入中解析坐标或地名，经地理编码后查询逐小时天气
type WeatherTool struct {
	name        string
	forecastURL string
	geocodeURL  string
	client      *resty.Client
}

// NewWeatherTool 创建天气工具；forecastURL/geocodeURL 为空时用 Open-Meteo 公共端点
func NewWeatherTool(name, forecastURL, geocodeURL string, timeout time.Duration) *WeatherTool {
	if forecastURL == "" {
		forecastURL = defaultForecastURL
	}
	if geocodeURL == "" {
		geocodeURL = defaultGeocodeURL
	}
	if timeout <= 0 {
		timeout = defaultWeatherWait
	}

	client := resty.New()
	client.SetTimeout(timeout)
	client.SetRetryCount(2)
	client.SetRetryWaitTime(500 * time.Millisecond)

	return &WeatherTool{
		name:        name,
		forecastURL: strings.TrimRight(forecastURL, "/"),
		geocodeURL:  strings.TrimRight(geocodeURL, "/"),
		client:      client,
	}
}

// Name 返回工具名
func (t *WeatherTool) Name() string { return t.name }

type geoHit struct {
	Name    string
	Country string
	Lat     float64
	Lon     float64
}

// Run 查询天气并输出土耳其语摘要
func (t *WeatherTool) Run(ctx context.Context, input string, _ []llm.Message) (string, error) {
	var hit *geoHit
	if lat, lon, ok := extractLatLon(input); ok {
		hit = &geoHit{Lat: lat, Lon: lon}
	} else {
		for _, q := range candidateQueries(input) {
			if h := t.geocode(ctx, q); h != nil {
				hit = h
				break
			}
		}
		if hit == nil {
			return "Konumu çözemiyorum. Kısa bir yer adı yazmayı deneyin (örn. 'Muğla') " +
				"ya da koordinat verin: `lat=37.2 lon=28.36`.", nil
		}
	}

	report, err := t.forecast(ctx, hit.Lat, hit.Lon)
	if err != nil {
		return "", fmt.Errorf("hava verisi alınamadı: %w", err)
	}
	return formatWeather(hit, report), nil
}

// extractLatLon 从输入里解析 lat=.. lon=.. 坐标
func extractLatLon(text string) (lat, lon float64, ok bool) {
	mlat := latRe.FindStringSubmatch(text)
	mlon := lonRe.FindStringSubmatch(text)
	if mlat == nil || mlon == nil {
		return 0, 0, false
	}
	lat, errLat := strconv.ParseFloat(mlat[1], 64)
	lon, errLon := strconv.ParseFloat(mlon[1], 64)
	if errLat != nil || errLon != nil {
		return 0, 0, false
	}
	return lat, lon, true
}

// candidateQueries 生成地理编码候选：原文、规范化文本、疑似地名 token（长优先取两个）
// 每个候选再追加 ", turkey" 变体
func candidateQueries(text string) []string {
	var candidates []string
	seen := map[string]struct{}{}
	add := func(q string) {
		q = strings.TrimSpace(q)
		if q == "" {
			return
		}
		if _, ok := seen[q]; ok {
			return
		}
		seen[q] = struct{}{}
		candidates = append(candidates, q)
	}

	orig := strings.TrimSpace(text)
	add(orig)
	norm := dispatch.Normalize(orig)
	add(norm)

	// 所有格撇号按空格处理，"Muğla'da" 才能掉出 "mugla"
	var tokens []string
	for _, w := range strings.Fields(strings.ReplaceAll(norm, "'", " ")) {
		if len(w) <= 2 {
			continue
		}
		if _, stop := weatherStopWords[w]; stop {
			continue
		}
		base := strings.Trim(suffixRe.ReplaceAllString(w, ""), ".- ")
		if base != "" {
			tokens = append(tokens, base)
		}
	}
	sort.SliceStable(tokens, func(i, j int) bool { return len(tokens[i]) > len(tokens[j]) })
	if len(tokens) > 2 {
		tokens = tokens[:2]
	}
	for _, w := range tokens {
		add(w)
	}

	for _, q := range append([]string(nil), candidates...) {
		lower := strings.ToLower(q)
		if lower != "turkey" && lower != "türkiye" {
			add(q + ", turkey")
		}
	}
	return candidates
}

// geocode 地理编码，失败返回 nil 以便尝试下一个候选
func (t *WeatherTool) geocode(ctx context.Context, q string) *geoHit {
	resp, err := t.client.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"name":     q,
			"count":    "1",
			"language": "tr",
			"format":   "json",
		}).
		Get(t.geocodeURL + "/v1/search")
	if err != nil || resp.StatusCode() != http.StatusOK {
		return nil
	}

	var data struct {
		Results []struct {
			Name      string  `json:"name"`
			Country   string  `json:"country"`
			Latitude  float64 `json:"latitude"`
			Longitude float64 `json:"longitude"`
		} `json:"results"`
	}
	if err := json.Unmarshal(resp.Body(), &data); err != nil || len(data.Results) == 0 {
		return nil
	}
	best := data.Results[0]
	return &geoHit{Name: best.Name, Country: best.Country, Lat: best.Latitude, Lon: best.Longitude}
}

type weatherReport struct {
	CurrentWeather struct {
		Temperature float64 `json:"temperature"`
		WindSpeed   float64 `json:"windspeed"`
		Time        string  `json:"time"`
	} `json:"current_weather"`
	Hourly struct {
		Time                     []string  `json:"time"`
		Temperature2m            []float64 `json:"temperature_2m"`
		PrecipitationProbability []float64 `json:"precipitation_probability"`
		RelativeHumidity2m       []float64 `json:"relative_humidity_2m"`
	} `json:"hourly"`
}

// forecast 拉取逐小时天气与当前天气
func (t *WeatherTool) forecast(ctx context.Context, lat, lon float64) (*weatherReport, error) {
	resp, err := t.client.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"latitude":        strconv.FormatFloat(lat, 'f', -1, 64),
			"longitude":       strconv.FormatFloat(lon, 'f', -1, 64),
			"hourly":          "temperature_2m,precipitation_probability,relative_humidity_2m",
			"current_weather": "true",
			"timezone":        "auto",
		}).
		Get(t.forecastURL + "/v1/forecast")
	if err != nil {
		return nil, err
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("upstream %d: %s", resp.StatusCode(), resp.String())
	}

	var report weatherReport
	if err := json.Unmarshal(resp.Body(), &report); err != nil {
		return nil, err
	}
	return &report, nil
}

// formatWeather 组装土耳其语天气摘要
func formatWeather(hit *geoHit, r *weatherReport) string {
	temp := r.CurrentWeather.Temperature
	at := r.CurrentWeather.Time
	wind := r.CurrentWeather.WindSpeed
	hasWind := at != ""

	var prec, rh *float64
	if at != "" {
		for i, ts := range r.Hourly.Time {
			if ts != at {
				continue
			}
			if i < len(r.Hourly.PrecipitationProbability) {
				prec = &r.Hourly.PrecipitationProbability[i]
			}
			if i < len(r.Hourly.RelativeHumidity2m) {
				rh = &r.Hourly.RelativeHumidity2m[i]
			}
			break
		}
	}

	// current_weather 缺失时退到逐小时首条
	if at == "" {
		if len(r.Hourly.Time) == 0 || len(r.Hourly.Temperature2m) == 0 {
			return "Hava verisi eksik görünüyor."
		}
		at = r.Hourly.Time[0]
		temp = r.Hourly.Temperature2m[0]
		if len(r.Hourly.PrecipitationProbability) > 0 {
			prec = &r.Hourly.PrecipitationProbability[0]
		}
		if len(r.Hourly.RelativeHumidity2m) > 0 {
			rh = &r.Hourly.RelativeHumidity2m[0]
		}
	}

	prefix := ""
	if hit.Name != "" {
		prefix = hit.Name
		if hit.Country != "" {
			prefix += ", " + hit.Country
		}
		prefix += " için "
	}

	parts := []string{fmt.Sprintf("%s%s itibarıyla sıcaklık ~%s°C",
		prefix, strings.ReplaceAll(at, "T", " "), formatAmount(temp))}
	if prec != nil {
		parts = append(parts, fmt.Sprintf("yağış olasılığı ~%%%s", formatAmount(*prec)))
	}
	if rh != nil {
		parts = append(parts, fmt.Sprintf("nem ~%%%s", formatAmount(*rh)))
	}
	if hasWind {
		parts = append(parts, fmt.Sprintf("rüzgâr ~%s km/sa", formatAmount(wind)))
	}
	return strings.Join(parts, ", ") + fmt.Sprintf(". (lat=%s, lon=%s)",
		formatAmount(hit.Lat), formatAmount(hit.Lon))
}
