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

package orchestrator

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"greenmcp/internal/agent"
	"greenmcp/internal/dispatch"
	"greenmcp/internal/memory"
	"greenmcp/internal/model/llm"
	"greenmcp/internal/tool"
	"greenmcp/internal/tool/builtin"
	"greenmcp/pkg/config"
)

type stubClient struct {
	reply      string
	calls      int
	lastPrompt string
}

func (s *stubClient) Generate(_ context.Context, prompt string, _ llm.GenerateOptions) (string, error) {
	s.calls++
	s.lastPrompt = prompt
	return s.reply, nil
}

func (s *stubClient) Chat(_ context.Context, _ []llm.Message, _ llm.GenerateOptions) (string, error) {
	s.calls++
	return s.reply, nil
}

func (s *stubClient) Model() string    { return "stub" }
func (s *stubClient) Provider() string { return "stub" }

var routeExamples = []dispatch.Example{
	{Message: "12 km araba kullandım", Target: "carbon_tool"},
	{Message: "3 kwh elektrik tükettim", Target: "carbon_tool"},
	{Message: "hava durumu nasıl", Target: "weather_tool"},
	{Message: "bana bir soru sor", Target: "qa_agent"},
}

func newTestOrchestrator(t *testing.T, allow tool.AllowMap, summarizer llm.Client) (*Orchestrator, memory.Store) {
	t.Helper()

	agents := agent.NewRegistry()
	qa, err := agent.New("qa_agent", config.AgentSpec{SystemPrompt: "{input}"}, &stubClient{reply: "cevap"}, nil)
	if err != nil {
		t.Fatalf("agent.New: %v", err)
	}
	agents.Register(qa)

	tools := tool.NewRegistry()
	tools.Register(builtin.NewCarbonTool("carbon_tool", "", 0))

	d := dispatch.NewDispatcher(nil, routeExamples,
		agents.Names(), []string{"carbon_tool", "weather_tool"}, dispatch.Params{}, nil)

	store := memory.NewFallbackStore(0)
	return New(d, agents, tools, allow, store, summarizer, Options{}, nil), store
}

func TestRunRoutesConsumptionToCarbonTool(t *testing.T) {
	allow := tool.NewAllowMap(map[string][]string{"qa_agent": {"carbon_tool", "weather_tool"}})
	o, store := newTestOrchestrator(t, allow, nil)

	resp, err := o.Run(context.Background(), Request{
		Input:  "Bugün 12 km araba kullandım ve 3 kwh elektrik tükettim",
		UserID: "u1",
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	// 两个子句路由到同一工具后合并成单个任务
	if len(resp.Responses) != 1 {
		t.Fatalf("want 1 coalesced task, got %+v", resp.Responses)
	}
	if resp.Responses[0].Agent != "carbon_tool" || resp.Responses[0].Error != "" {
		t.Fatalf("unexpected task response: %+v", resp.Responses[0])
	}
	if !strings.Contains(resp.Summary, "Toplam ~3.564 kgCO₂e") {
		t.Fatalf("summary missing total: %q", resp.Summary)
	}
	if !strings.Contains(resp.Summary, "car=12/km") || !strings.Contains(resp.Summary, "electricity=3/kwh") {
		t.Fatalf("summary missing items: %q", resp.Summary)
	}

	// 工具结果也要写入记忆：user + assistant + pair
	recs, err := store.All(context.Background(), "u1", memory.AnySession, "")
	if err != nil {
		t.Fatalf("All: %v", err)
	}
	if len(recs) != 3 {
		t.Fatalf("want 3 memory records, got %d: %+v", len(recs), recs)
	}
	if recs[2].Role != memory.RolePair || !strings.HasPrefix(recs[2].Text, "[Soru]") {
		t.Fatalf("pair record wrong: %+v", recs[2])
	}
}

func TestRunDeniedToolRecordsUserTurn(t *testing.T) {
	allow := tool.NewAllowMap(map[string][]string{"qa_agent": {"weather_tool"}})
	o, store := newTestOrchestrator(t, allow, nil)

	resp, err := o.Run(context.Background(), Request{
		Input:  "12 km araba kullandım",
		UserID: "u1",
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(resp.Responses) != 1 || resp.Responses[0].Error == "" {
		t.Fatalf("denial must surface as error: %+v", resp.Responses)
	}
	if !strings.Contains(resp.Responses[0].Error, "allow-list") {
		t.Fatalf("denial message wrong: %q", resp.Responses[0].Error)
	}
	if resp.Summary != "" {
		t.Fatalf("denied task must not contribute output: %q", resp.Summary)
	}

	// 拒绝时用户轮次仍要留痕
	recs, err := store.All(context.Background(), "u1", memory.AnySession, "")
	if err != nil {
		t.Fatalf("All: %v", err)
	}
	if len(recs) != 1 || recs[0].Role != "user" {
		t.Fatalf("want single user record, got %+v", recs)
	}
}

func TestRunExplicitToolSkipsDispatch(t *testing.T) {
	allow := tool.NewAllowMap(map[string][]string{"qa_agent": {"carbon_tool"}})
	o, _ := newTestOrchestrator(t, allow, nil)

	resp, err := o.Run(context.Background(), Request{
		Input:  "2 kg dana eti yedim",
		Tool:   "carbon_tool",
		UserID: "u1",
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(resp.Responses) != 1 || resp.Responses[0].Agent != "carbon_tool" {
		t.Fatalf("explicit tool must execute directly: %+v", resp.Responses)
	}
	if !strings.Contains(resp.Summary, "beef=2/kg") {
		t.Fatalf("summary wrong: %q", resp.Summary)
	}
}

func TestRunUnregisteredTarget(t *testing.T) {
	o, _ := newTestOrchestrator(t, nil, nil)

	resp, err := o.Run(context.Background(), Request{Input: "merhaba", Tool: "yok_tool", UserID: "u1"})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(resp.Responses) != 1 || !strings.Contains(resp.Responses[0].Error, "kayıtlı değil") {
		t.Fatalf("unregistered target must be reported: %+v", resp.Responses)
	}
	if resp.Summary != "" {
		t.Fatalf("summary must be empty: %q", resp.Summary)
	}
}

func TestRunStoresRollingSummary(t *testing.T) {
	summarizer := &stubClient{reply: "Kullanıcı tüketim alışkanlıklarını sordu; öneriler verildi."}
	o, store := newTestOrchestrator(t, nil, summarizer)

	history := make([]llm.Message, 0, 8)
	for i := 0; i < 8; i++ {
		role := "user"
		if i%2 == 1 {
			role = "assistant"
		}
		history = append(history, llm.Message{Role: role, Content: fmt.Sprintf("mesaj %d", i)})
	}

	if _, err := o.Run(context.Background(), Request{
		Input:   "bana bir soru sor",
		History: history,
		UserID:  "u1",
	}); err != nil {
		t.Fatalf("Run: %v", err)
	}

	sums, err := store.All(context.Background(), "u1", memory.AnySession, memory.RoleSummary)
	if err != nil {
		t.Fatalf("All: %v", err)
	}
	if len(sums) != 1 || !strings.Contains(sums[0].Text, "tüketim") {
		t.Fatalf("summary record missing: %+v", sums)
	}
	if summarizer.calls == 0 {
		t.Fatal("summarizer was never invoked")
	}
}

func TestRunShortHistorySkipsSummary(t *testing.T) {
	summarizer := &stubClient{reply: "özet"}
	o, store := newTestOrchestrator(t, nil, summarizer)

	if _, err := o.Run(context.Background(), Request{Input: "bana bir soru sor", UserID: "u1"}); err != nil {
		t.Fatalf("Run: %v", err)
	}
	sums, _ := store.All(context.Background(), "u1", memory.AnySession, memory.RoleSummary)
	if len(sums) != 0 {
		t.Fatalf("short history must not produce a summary: %+v", sums)
	}
}

func TestBuildContextCollectsMemory(t *testing.T) {
	o, store := newTestOrchestrator(t, nil, nil)
	ctx := context.Background()

	if _, err := store.Add(ctx, memory.Record{
		UserID: "u1", Role: memory.RoleSummary, Text: "Önceden enerji tasarrufu konuşuldu.",
	}); err != nil {
		t.Fatal(err)
	}
	if _, err := store.Add(ctx, memory.Record{
		UserID: "u1", Role: memory.RolePair,
		Text: memory.PairText("dün kaç km araba kullandım", "12 km araba kullandınız"),
	}); err != nil {
		t.Fatal(err)
	}

	got := o.buildContext(ctx, "u1", memory.DefaultSession, "araba kullanımım")
	if got == "" {
		t.Fatal("no context built")
	}
	if !strings.Contains(got, "Önceki sohbet özeti: Önceden enerji tasarrufu konuşuldu.") {
		t.Fatalf("summary line missing: %q", got)
	}
	if !strings.Contains(got, "SON KONU — Kullanıcı: dün kaç km araba kullandım") {
		t.Fatalf("pair excerpt missing: %q", got)
	}
}

func TestRunPassesMemoryContextToAgent(t *testing.T) {
	// 记忆上下文要通过 Request.Context 到达 template 代理的 {context} 占位符
	agents := agent.NewRegistry()
	client := &stubClient{reply: "cevap"}
	qa, err := agent.New("qa_agent", config.AgentSpec{
		SystemPrompt: "Soru: {input}\nBağlam: {context}",
	}, client, nil)
	if err != nil {
		t.Fatalf("agent.New: %v", err)
	}
	agents.Register(qa)

	d := dispatch.NewDispatcher(nil, routeExamples, agents.Names(), nil, dispatch.Params{}, nil)
	store := memory.NewFallbackStore(0)
	o := New(d, agents, tool.NewRegistry(), nil, store, nil, Options{}, nil)

	ctx := context.Background()
	if _, err := store.Add(ctx, memory.Record{
		UserID: "u1", Role: memory.RoleSummary, Text: "Önceden enerji tasarrufu konuşuldu.",
	}); err != nil {
		t.Fatal(err)
	}

	if _, err := o.Run(ctx, Request{Input: "bana bir soru sor", UserID: "u1"}); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !strings.Contains(client.lastPrompt, "Bağlam: ") ||
		!strings.Contains(client.lastPrompt, "Önceden enerji tasarrufu konuşuldu.") {
		t.Fatalf("memory context missing from prompt: %q", client.lastPrompt)
	}
}

func TestExtractPairLineTruncates(t *testing.T) {
	long := strings.Repeat("a", 400)
	line := extractPairLine(memory.PairText(long, "kısa yanıt"))
	if line == "" {
		t.Fatal("pair must parse")
	}
	if !strings.Contains(line, strings.Repeat("a", 300)+"…") {
		t.Fatalf("question must be truncated to 300 runes: %d bytes", len(line))
	}
	if strings.Contains(line, strings.Repeat("a", 301)) {
		t.Fatal("truncation did not happen")
	}
	if extractPairLine("düz metin") != "" {
		t.Fatal("non-pair text must yield empty")
	}
}
