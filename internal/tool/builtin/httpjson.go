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
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"greenmcp/internal/model/llm"
	"greenmcp/pkg/errors"
)

// HTTPJSONTool 通用 JSON 接口工具
// 把用户输入代入请求模板，调用外部服务并抽取响应字段，
// 用于不值得写专用工具的简单集成
type HTTPJSONTool struct {
	name    string
	baseURL string
	method  string
	path    string
	body    string // POST 模板，{input} 为占位符
	query   string // GET 时携带输入的查询参数名
	field   string // 响应中要抽取的字段路径，如 data.result
	client  *resty.Client
}

// NewHTTPJSONTool 按配置参数创建通用 JSON 工具
func NewHTTPJSONTool(name, baseURL string, params map[string]string, timeout time.Duration) (*HTTPJSONTool, error) {
	if baseURL == "" {
		return nil, errors.Wrapf(errors.ErrInvalidArg, "http_json 工具 %s 缺少 base_url", name)
	}
	if timeout <= 0 {
		timeout = defaultWeatherWait
	}

	method := strings.ToUpper(params["method"])
	if method == "" {
		method = http.MethodGet
	}
	if method != http.MethodGet && method != http.MethodPost {
		return nil, errors.Wrapf(errors.ErrInvalidArg, "http_json 工具 %s 不支持方法 %s", name, method)
	}

	query := params["query"]
	if method == http.MethodGet && query == "" {
		query = "q"
	}

	client := resty.New()
	client.SetTimeout(timeout)
	client.SetRetryCount(2)
	client.SetRetryWaitTime(500 * time.Millisecond)

	return &HTTPJSONTool{
		name:    name,
		baseURL: strings.TrimRight(baseURL, "/"),
		method:  method,
		path:    params["path"],
		body:    params["body"],
		query:   query,
		field:   params["field"],
		client:  client,
	}, nil
}

// Name 返回工具名
func (t *HTTPJSONTool) Name() string { return t.name }

// Run 执行请求并返回抽取的字段；field 未配置时返回压缩后的原始 JSON
func (t *HTTPJSONTool) Run(ctx context.Context, input string, _ []llm.Message) (string, error) {
	req := t.client.R().SetContext(ctx).SetHeader("Accept", "application/json")

	var (
		resp *resty.Response
		err  error
	)
	url := t.baseURL + t.path
	switch t.method {
	case http.MethodPost:
		body := t.body
		if body == "" {
			body = `{"input":"{input}"}`
		}
		quoted, _ := json.Marshal(input)
		body = strings.ReplaceAll(body, `"{input}"`, string(quoted))
		body = strings.ReplaceAll(body, "{input}", input)
		resp, err = req.SetHeader("Content-Type", "application/json").SetBody(body).Post(url)
	default:
		resp, err = req.SetQueryParam(t.query, input).Get(url)
	}
	if err != nil {
		return "", errors.Wrapf(err, "工具 %s 请求failed", t.name)
	}
	if resp.StatusCode() != http.StatusOK {
		return "", fmt.Errorf("工具 %s 上游返回 %d: %s", t.name, resp.StatusCode(), resp.String())
	}

	if t.field == "" {
		var buf bytes.Buffer
		if err := json.Compact(&buf, resp.Body()); err != nil {
			return strings.TrimSpace(resp.String()), nil
		}
		return buf.String(), nil
	}

	var payload map[string]any
	if err := json.Unmarshal(resp.Body(), &payload); err != nil {
		return "", errors.Wrapf(err, "工具 %s 响应不是 JSON 对象", t.name)
	}
	value, ok := lookupField(payload, t.field)
	if !ok {
		return "", fmt.Errorf("工具 %s 响应缺少字段 %s", t.name, t.field)
	}
	switch v := value.(type) {
	case string:
		return v, nil
	default:
		data, _ := json.Marshal(v)
		return string(data), nil
	}
}

// lookupField 按点号路径取字段
func lookupField(payload map[string]any, path string) (any, bool) {
	parts := strings.Split(path, ".")
	var cur any = payload
	for _, p := range parts {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = m[p]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}
