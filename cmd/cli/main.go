package main

import (
	"bufio"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"

	"greenmcp/internal/model/llm"
	"greenmcp/internal/orchestrator"
)

// chatResponse /chat 与 /ask 的响应体
type chatResponse struct {
	Response  string                      `json:"response"`
	Responses []orchestrator.TaskResponse `json:"responses"`
}

var calcArgRe = regexp.MustCompile(`(transport_km|electricity_kwh|bottles_pet|chicken_portion)\s*=\s*([0-9]+(?:\.[0-9]+)?)`)
var latRe = regexp.MustCompile(`lat\s*=\s*([\-0-9.]+)`)
var lonRe = regexp.MustCompile(`lon\s*=\s*([\-0-9.]+)`)

func main() {
	baseURL := flag.String("api", "http://localhost:8080", "API adresi")
	userID := flag.String("user", "demo", "kullanıcı kimliği")
	flag.Parse()

	client := resty.New()
	client.SetBaseURL(*baseURL)
	client.SetTimeout(120 * time.Second)

	sessionID := uuid.NewString()
	var history []llm.Message

	fmt.Println("GreenMCP Chat'e hoş geldiniz! Çıkmak için 'q' yazın.")
	fmt.Println("Mikroservis kısayolları:")
	fmt.Println("   • /calc transport_km=12 electricity_kwh=3 bottles_pet=2 chicken_portion=1")
	fmt.Println("   • /weather lat=41.0 lon=39.75")
	fmt.Println()

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("Siz: ")
		if !scanner.Scan() {
			break
		}
		input := strings.TrimSpace(strings.Join(strings.Fields(scanner.Text()), " "))
		if input == "" {
			continue
		}
		switch strings.ToLower(input) {
		case "q", "quit", "exit":
			fmt.Println("Sohbet sonlandırıldı.")
			return
		}

		if strings.HasPrefix(input, "/calc") {
			runTool(client, "carbon_tool", calcItemsJSON(input), *userID, sessionID)
			continue
		}
		if strings.HasPrefix(input, "/weather") {
			lat, lon := parseWeatherArgs(input)
			runTool(client, "weather_tool", fmt.Sprintf("lat=%g; lon=%g", lat, lon), *userID, sessionID)
			continue
		}

		payload := map[string]any{
			"history":    history,
			"message":    input,
			"user_id":    *userID,
			"session_id": sessionID,
		}
		var out chatResponse
		resp, err := client.R().SetBody(payload).SetResult(&out).Post("/chat")
		if err != nil || resp.IsError() {
			fmt.Printf("[HATA] API isteği başarısız oldu: %v %s\n\n", err, resp.Status())
			continue
		}

		history = append(history, llm.Message{Role: "user", Content: input})
		if len(out.Responses) == 0 {
			fmt.Println("Hiçbir yanıt alınamadı.")
			fmt.Println()
			continue
		}
		fmt.Println("\nGreenMCP çoklu yanıtlar:")
		for _, item := range out.Responses {
			text := item.Output
			if text == "" {
				text = item.Error
			}
			fmt.Printf("\n%s:\n%s\n", item.Agent, text)
			if item.Output != "" {
				history = append(history, llm.Message{Role: "assistant", Content: item.Output})
			}
		}
		fmt.Println()
	}
	if err := scanner.Err(); err != nil {
		log.Fatalf("okuma hatası: %v", err)
	}
}

// runTool /ask 上直接调用指定工具并打印逐项结果
func runTool(client *resty.Client, toolName, input, userID, sessionID string) {
	payload := map[string]any{
		"input":      input,
		"tool":       toolName,
		"history":    []llm.Message{},
		"user_id":    userID,
		"session_id": sessionID,
	}
	var out chatResponse
	resp, err := client.R().SetBody(payload).SetResult(&out).Post("/ask")
	if err != nil || resp.IsError() {
		fmt.Printf("[HATA] API isteği başarısız oldu: %v %s\n\n", err, resp.Status())
		return
	}
	fmt.Printf("\nMikroservis yanıtı (%s):\n", toolName)
	for _, item := range out.Responses {
		text := item.Output
		if text == "" {
			text = item.Error
		}
		fmt.Printf("\n%s:\n%s\n", item.Agent, text)
	}
	fmt.Println()
}

// calcItemsJSON /calc 快捷命令转 items JSON
func calcItemsJSON(cmd string) string {
	type item struct {
		Key    string  `json:"key"`
		Amount float64 `json:"amount"`
		Unit   string  `json:"unit"`
	}
	keys := map[string]item{
		"transport_km":    {Key: "car", Unit: "km"},
		"electricity_kwh": {Key: "electricity", Unit: "kwh"},
		"bottles_pet":     {Key: "pet_bottle", Unit: "piece"},
		"chicken_portion": {Key: "chicken", Unit: "portion"},
	}
	var items []item
	for _, m := range calcArgRe.FindAllStringSubmatch(cmd, -1) {
		tpl, ok := keys[m[1]]
		if !ok {
			continue
		}
		amount, err := strconv.ParseFloat(m[2], 64)
		if err != nil || amount <= 0 {
			continue
		}
		tpl.Amount = amount
		items = append(items, tpl)
	}
	if items == nil {
		items = []item{}
	}
	b, _ := json.Marshal(map[string]any{"items": items})
	return string(b)
}

// parseWeatherArgs 解析 lat/lon，缺省为伊斯坦布尔近似坐标
func parseWeatherArgs(cmd string) (float64, float64) {
	lat, lon := 41.01, 28.97
	if m := latRe.FindStringSubmatch(cmd); m != nil {
		if v, err := strconv.ParseFloat(m[1], 64); err == nil {
			lat = v
		}
	}
	if m := lonRe.FindStringSubmatch(cmd); m != nil {
		if v, err := strconv.ParseFloat(m[1], 64); err == nil {
			lon = v
		}
	}
	return lat, lon
}
