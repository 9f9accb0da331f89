//go:build e2e

package e2e

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"testing"
	"time"
)

var baseURL string

func TestMain(m *testing.M) {
	baseURL = os.Getenv("CARY_BASE_URL")
	if baseURL == "" {
		baseURL = "http://localhost:8080"
	}

	// Wait for server readiness (up to 30s)
	ready := false
	for i := 0; i < 30; i++ {
		resp, err := http.Get(baseURL + "/api/health")
		if err == nil {
			resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				ready = true
				break
			}
		}
		time.Sleep(1 * time.Second)
	}
	if !ready {
		fmt.Fprintf(os.Stderr, "server at %s not ready after 30s\n", baseURL)
		os.Exit(1)
	}

	os.Exit(m.Run())
}

// post sends a JSON body and decodes the JSON reply into out.
func post(t *testing.T, path string, body, out interface{}) {
	t.Helper()

	b, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal request: %v", err)
	}
	client := &http.Client{Timeout: 90 * time.Second}
	resp, err := client.Post(baseURL+path, "application/json", bytes.NewReader(b))
	if err != nil {
		t.Fatalf("POST %s: %v", path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read response body: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("unexpected status %d: %s", resp.StatusCode, string(raw))
	}
	if err := json.Unmarshal(raw, out); err != nil {
		t.Fatalf("unmarshal response: %v (body: %s)", err, string(raw))
	}
}

func get(t *testing.T, path string, out interface{}) {
	t.Helper()
	resp, err := http.Get(baseURL + path)
	if err != nil {
		t.Fatalf("GET %s: %v", path, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(resp.Body)
		t.Fatalf("unexpected status %d: %s", resp.StatusCode, string(raw))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		t.Fatalf("decode %s: %v", path, err)
	}
}

type textReply struct {
	Response string `json:"response"`
}

func TestGenerateIsLogged(t *testing.T) {
	marker := fmt.Sprintf("smoke-%d@example.com", time.Now().UnixNano())
	var reply textReply
	post(t, "/api/v1/ai-agents/generate_ai_response", map[string]string{
		"prompt": "Say hello in one word.", "user_name": "smokebot", "user_email": marker,
	}, &reply)
	if reply.Response == "" {
		t.Fatal("expected a non-empty response")
	}

	// The log write is asynchronous.
	var found bool
	for i := 0; i < 20 && !found; i++ {
		var count map[string]int64
		post(t, "/api/v1/admin/count", map[string]any{
			"filters": []map[string]any{{"field": "user_details.user_email", "op": "==", "value": marker}},
		}, &count)
		found = count["count"] == 1
		if !found {
			time.Sleep(250 * time.Millisecond)
		}
	}
	if !found {
		t.Errorf("log entry for %s never appeared", marker)
	}
}

func TestAPILogs(t *testing.T) {
	var logs []map[string]any
	get(t, "/api/v1/admin/api-logs?limit=5", &logs)
	if len(logs) > 5 {
		t.Errorf("expected at most 5 logs, got %d", len(logs))
	}
}

func TestPopularQuestions(t *testing.T) {
	var out struct {
		Questions []string `json:"questions"`
	}
	get(t, "/api/v1/finance/popular-questions?type=Personal&count=3", &out)
	if len(out.Questions) != 3 {
		t.Errorf("expected 3 questions, got %d", len(out.Questions))
	}
}

func TestAdminChat(t *testing.T) {
	var reply textReply
	post(t, "/api/v1/admin/chat", map[string]string{
		"question": "How many API calls have been logged in total?",
		"user_name": "smokebot", "user_email": "smoke@example.com",
	}, &reply)
	if len(reply.Response) <= 10 {
		t.Errorf("expected meaningful response (len > 10), got: %s", reply.Response)
	}
	t.Logf("reply: %.300s", reply.Response)
}

func TestBudgetPlanConversation(t *testing.T) {
	var first textReply
	post(t, "/api/v1/finance/budget-plan", map[string]any{"message": "Hi, I need a budget."}, &first)
	if strings.TrimSpace(first.Response) == "" {
		t.Fatal("expected an opening question")
	}
	var second textReply
	post(t, "/api/v1/finance/budget-plan", map[string]any{
		"message": "Personal",
		"history": []map[string]string{
			{"role": "user", "content": "Hi, I need a budget."},
			{"role": "assistant", "content": first.Response},
		},
	}, &second)
	if strings.TrimSpace(second.Response) == "" {
		t.Error("expected a follow-up question")
	}
	t.Logf("reply: %.200s", second.Response)
}
