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

package http

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/protocol/consts"

	"greenmcp/internal/memory"
	"greenmcp/internal/model/llm"
	"greenmcp/internal/orchestrator"
	"greenmcp/pkg/metrics"
)

const emptyHistoryWarning = "⚠️ Geçmiş veri boş. Lütfen bir mesaj girin."

// Handler HTTP 处理器
type Handler struct {
	orch   *orchestrator.Orchestrator
	store  memory.Store
	logger *slog.Logger
}

// NewHandler 创建处理器
func NewHandler(orch *orchestrator.Orchestrator, store memory.Store, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{orch: orch, store: store, logger: logger}
}

// ChatRequest /chat 请求体：message 为空时取 history 最后一条作为输入
type ChatRequest struct {
	History   []llm.Message `json:"history"`
	Message   string        `json:"message"`
	Tool      string        `json:"tool"`
	UserID    string        `json:"user_id"`
	SessionID string        `json:"session_id"`
}

// AskRequest /ask 请求体：单条输入直达编排器
type AskRequest struct {
	Input     string        `json:"input"`
	Tool      string        `json:"tool"`
	History   []llm.Message `json:"history"`
	UserID    string        `json:"user_id"`
	SessionID string        `json:"session_id"`
}

// ChatResponse 编排结果：汇总文本加逐任务明细
type ChatResponse struct {
	Response  string                      `json:"response"`
	Responses []orchestrator.TaskResponse `json:"responses,omitempty"`
}

// Chat 对话入口
// POST /chat
func (h *Handler) Chat(c context.Context, ctx *app.RequestContext) {
	start := time.Now()
	defer func() {
		metrics.RequestDuration.WithLabelValues("/chat").Observe(time.Since(start).Seconds())
		metrics.RequestTotal.WithLabelValues("/chat").Inc()
	}()

	var req ChatRequest
	if err := ctx.BindJSON(&req); err != nil {
		ctx.JSON(consts.StatusBadRequest, map[string]string{"error": "geçersiz istek gövdesi"})
		return
	}

	input := strings.TrimSpace(req.Message)
	history := req.History
	if input == "" {
		// message 缺省时退回 history 尾部：最后一条作为当前输入，其余作为历史
		if len(history) == 0 {
			ctx.JSON(consts.StatusOK, ChatResponse{Response: emptyHistoryWarning})
			return
		}
		input = strings.TrimSpace(history[len(history)-1].Content)
		history = history[:len(history)-1]
		if input == "" {
			ctx.JSON(consts.StatusOK, ChatResponse{Response: emptyHistoryWarning})
			return
		}
	}

	resp, err := h.orch.Run(c, orchestrator.Request{
		Input:     input,
		Tool:      req.Tool,
		History:   history,
		UserID:    req.UserID,
		SessionID: req.SessionID,
	})
	if err != nil {
		h.logger.Error("编排failed", "error", err)
		ctx.JSON(consts.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}

	out := resp.Summary
	if out == "" {
		out = firstError(resp.Responses)
	}
	ctx.JSON(consts.StatusOK, ChatResponse{Response: out, Responses: resp.Responses})
}

// Ask 单条查询入口
// POST /ask
func (h *Handler) Ask(c context.Context, ctx *app.RequestContext) {
	start := time.Now()
	defer func() {
		metrics.RequestDuration.WithLabelValues("/ask").Observe(time.Since(start).Seconds())
		metrics.RequestTotal.WithLabelValues("/ask").Inc()
	}()

	var req AskRequest
	if err := ctx.BindJSON(&req); err != nil {
		ctx.JSON(consts.StatusBadRequest, map[string]string{"error": "geçersiz istek gövdesi"})
		return
	}
	if strings.TrimSpace(req.Input) == "" {
		ctx.JSON(consts.StatusOK, ChatResponse{Response: emptyHistoryWarning})
		return
	}

	resp, err := h.orch.Run(c, orchestrator.Request{
		Input:     req.Input,
		Tool:      req.Tool,
		History:   req.History,
		UserID:    req.UserID,
		SessionID: req.SessionID,
	})
	if err != nil {
		h.logger.Error("编排failed", "error", err)
		ctx.JSON(consts.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}

	out := resp.Summary
	if out == "" {
		out = firstError(resp.Responses)
	}
	ctx.JSON(consts.StatusOK, ChatResponse{Response: out, Responses: resp.Responses})
}

// PurgeMemory 清除用户记忆
// DELETE /memory/:user_id （可带 ?session_id= 只清单个会话）
func (h *Handler) PurgeMemory(c context.Context, ctx *app.RequestContext) {
	userID := ctx.Param("user_id")
	if userID == "" {
		ctx.JSON(consts.StatusBadRequest, map[string]string{"error": "user_id is required"})
		return
	}
	sessionID := ctx.Query("session_id")

	removed, err := h.store.Purge(c, userID, sessionID)
	if err != nil {
		h.logger.Error("清除记忆failed", "user_id", userID, "error", err)
		ctx.JSON(consts.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	ctx.JSON(consts.StatusOK, map[string]any{"removed": removed})
}

// Health 健康检查
// GET /health
func (h *Handler) Health(c context.Context, ctx *app.RequestContext) {
	ctx.JSON(consts.StatusOK, map[string]string{
		"status":  "ok",
		"service": "greenmcp",
		"backend": h.store.Backend(),
	})
}

// Metrics Prometheus 指标导出
// GET /metrics
func (h *Handler) Metrics(c context.Context, ctx *app.RequestContext) {
	var buf bytes.Buffer
	if err := metrics.WritePrometheus(&buf); err != nil {
		ctx.JSON(consts.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	ctx.Data(consts.StatusOK, "text/plain; version=0.0.4; charset=utf-8", buf.Bytes())
}

// firstError 没有可汇总输出时退回第一个错误文本
func firstError(responses []orchestrator.TaskResponse) string {
	for _, r := range responses {
		if r.Error != "" {
			return r.Error
		}
	}
	return ""
}
