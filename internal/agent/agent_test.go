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

package agent

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"greenmcp/internal/model/llm"
	"greenmcp/pkg/config"
	"greenmcp/pkg/errors"
)

// fakeClient 录制调用的测试客户端
type fakeClient struct {
	lastPrompt   string
	lastMessages []llm.Message
	reply        string
	err          error
}

func (f *fakeClient) Generate(_ context.Context, prompt string, _ llm.GenerateOptions) (string, error) {
	f.lastPrompt = prompt
	return f.reply, f.err
}

func (f *fakeClient) Chat(_ context.Context, messages []llm.Message, _ llm.GenerateOptions) (string, error) {
	f.lastMessages = messages
	return f.reply, f.err
}

func (f *fakeClient) Model() string    { return "test-model" }
func (f *fakeClient) Provider() string { return "test" }

func TestTemplateAgentFillsPlaceholders(t *testing.T) {
	client := &fakeClient{reply: "yanıt"}
	a, err := New("qa_agent", config.AgentSpec{
		SystemPrompt: "Soru: {input}\nBağlam: {context}",
	}, client, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	res, err := a.Run(context.Background(), Request{Input: "hava nasıl", Context: "dün yağmur yağdı"})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Text != "yanıt" {
		t.Fatalf("unexpected text: %q", res.Text)
	}
	if !strings.Contains(client.lastPrompt, "Soru: hava nasıl") {
		t.Fatalf("input placeholder not filled: %q", client.lastPrompt)
	}
	if !strings.Contains(client.lastPrompt, "Bağlam: dün yağmur yağdı") {
		t.Fatalf("context placeholder not filled: %q", client.lastPrompt)
	}
	if !strings.Contains(client.lastPrompt, "Türkçe") {
		t.Fatalf("language instruction missing: %q", client.lastPrompt)
	}
	if res.Meta["agent"] != "qa_agent" || res.Meta["model"] != "test-model" {
		t.Fatalf("unexpected meta: %+v", res.Meta)
	}
}

func TestChatAgentWindowsHistory(t *testing.T) {
	client := &fakeClient{reply: "tamam"}
	a, err := New("chat_agent", config.AgentSpec{
		Type:         TypeChat,
		SystemPrompt: "Çevre asistanısın.",
	}, client, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	history := make([]llm.Message, 0, 20)
	for i := 0; i < 20; i++ {
		history = append(history, llm.Message{Role: "user", Content: fmt.Sprintf("mesaj %d", i)})
	}

	if _, err := a.Run(context.Background(), Request{Input: "son soru", Context: "bağlam satırı", History: history}); err != nil {
		t.Fatalf("Run: %v", err)
	}

	// system + 8 条历史 + 当前输入
	if len(client.lastMessages) != agentHistoryWindow+2 {
		t.Fatalf("want %d messages, got %d", agentHistoryWindow+2, len(client.lastMessages))
	}
	if client.lastMessages[0].Role != "system" || !strings.Contains(client.lastMessages[0].Content, "bağlam satırı") {
		t.Fatalf("system message wrong: %+v", client.lastMessages[0])
	}
	if client.lastMessages[1].Content != "mesaj 12" {
		t.Fatalf("history window must keep the most recent: %+v", client.lastMessages[1])
	}
	last := client.lastMessages[len(client.lastMessages)-1]
	if last.Role != "user" || last.Content != "son soru" {
		t.Fatalf("current input must come last: %+v", last)
	}
}

func TestRunSafeConvertsError(t *testing.T) {
	client := &fakeClient{err: fmt.Errorf("model kapalı")}
	a, err := New("qa_agent", config.AgentSpec{SystemPrompt: "{input}"}, client, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	res := a.RunSafe(context.Background(), Request{Input: "soru"})
	if !strings.HasPrefix(res.Text, "[HATA]") {
		t.Fatalf("error text must be user visible: %q", res.Text)
	}
	if res.Meta["error"] == nil {
		t.Fatalf("meta must carry the error: %+v", res.Meta)
	}
}

func TestNewRejectsMisconfiguredAgent(t *testing.T) {
	if _, err := New("boş", config.AgentSpec{}, &fakeClient{}, nil); err == nil {
		t.Fatal("template agent without prompt must be rejected")
	}
	if _, err := New("istemcisiz", config.AgentSpec{SystemPrompt: "{input}"}, nil, nil); err == nil {
		t.Fatal("nil client must be rejected")
	}
}

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	a, _ := New("qa_agent", config.AgentSpec{SystemPrompt: "{input}"}, &fakeClient{}, nil)
	b, _ := New("eco_agent", config.AgentSpec{SystemPrompt: "{input}"}, &fakeClient{}, nil)
	r.Register(a)
	r.Register(b)

	got, err := r.Get("qa_agent")
	if err != nil || got.Name() != "qa_agent" {
		t.Fatalf("Get failed: %v %v", got, err)
	}
	if _, err := r.Get("yok"); !errors.Is(err, errors.ErrNotRegistered) {
		t.Fatalf("want ErrNotRegistered, got %v", err)
	}

	names := r.Names()
	if len(names) != 2 || names[0] != "eco_agent" || names[1] != "qa_agent" {
		t.Fatalf("Names must be sorted: %v", names)
	}
}
