package main

import (
	"bufio"
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"
)

func main() {
	server := flag.String("server", "http://localhost:8080", "cary-services server URL")
	user := flag.String("user", "admin", "Admin user name")
	email := flag.String("email", "admin@localhost", "Admin user email")
	flag.Parse()

	fmt.Println("cary admin chat")
	fmt.Printf("Server: %s | User: %s\n", *server, *user)
	fmt.Println("Ask questions about API usage. Type 'exit' or 'quit' to leave.")
	fmt.Println("Commands: /health, /logs [api_name], /models")
	fmt.Println("---")

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("\n> ")
		if !scanner.Scan() {
			break
		}
		input := strings.TrimSpace(scanner.Text())
		if input == "" {
			continue
		}
		if input == "exit" || input == "quit" {
			fmt.Println("Bye!")
			return
		}
		switch {
		case input == "/health":
			fetchHealth(*server)
			continue
		case input == "/models":
			fetchModels(*server)
			continue
		case input == "/logs" || strings.HasPrefix(input, "/logs "):
			fetchLogs(*server, strings.TrimSpace(strings.TrimPrefix(input, "/logs")))
			continue
		}

		ask(*server, *user, *email, input)
	}
}

func fetchHealth(server string) {
	resp, err := http.Get(server + "/api/health")
	if err != nil {
		printError("Health check failed: %v", err)
		return
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusOK {
		fmt.Println("\033[32m✓\033[0m server is up")
		return
	}
	printError("Server unhealthy (%d)", resp.StatusCode)
}

func fetchModels(server string) {
	resp, err := http.Get(server + "/api/v1/admin/models")
	if err != nil {
		printError("Failed to fetch models: %v", err)
		return
	}
	defer resp.Body.Close()

	var models []struct {
		ID       string `json:"id"`
		Provider string `json:"provider"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&models); err != nil {
		printError("Failed to parse models: %v", err)
		return
	}
	if len(models) == 0 {
		fmt.Println("No models available.")
		return
	}
	for _, m := range models {
		fmt.Printf("  %s (%s)\n", m.ID, m.Provider)
	}
}

func fetchLogs(server, apiName string) {
	q := url.Values{"limit": {"10"}}
	if apiName != "" {
		q.Set("api_name", apiName)
	}
	resp, err := http.Get(server + "/api/v1/admin/api-logs?" + q.Encode())
	if err != nil {
		printError("Failed to fetch logs: %v", err)
		return
	}
	defer resp.Body.Close()

	var logs []struct {
		APIName     string `json:"api_name"`
		Timestamp   string `json:"timestamp"`
		UserDetails struct {
			UserEmail string `json:"user_email"`
		} `json:"user_details"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&logs); err != nil {
		printError("Failed to parse logs: %v", err)
		return
	}
	if len(logs) == 0 {
		fmt.Println("No logs found.")
		return
	}
	for _, l := range logs {
		fmt.Printf("  %s  %-24s %s\n", l.Timestamp, l.APIName, l.UserDetails.UserEmail)
	}
}

func ask(server, user, email, question string) {
	body, _ := json.Marshal(map[string]string{
		"question":   question,
		"user_name":  user,
		"user_email": email,
	})

	client := &http.Client{Timeout: 90 * time.Second}
	resp, err := client.Post(
		server+"/api/v1/admin/chat",
		"application/json",
		bytes.NewReader(body),
	)
	if err != nil {
		printError("Request failed: %v", err)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(resp.Body)
		printError("Server error (%d): %s", resp.StatusCode, string(data))
		return
	}

	var msg struct {
		Response string `json:"response"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&msg); err != nil {
		printError("Failed to parse response: %v", err)
		return
	}
	fmt.Println(msg.Response)
}

func printError(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "\033[31m"+format+"\033[0m\n", args...)
}
