package main

import (
	"bufio"
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"acm-chatbot/backend/internal/api"

	"github.com/google/uuid"
)

var client = &http.Client{Timeout: 150 * time.Second}

func main() {
	hashPtr := flag.String("hash-password", "", "Print the bcrypt hash to use as ADMIN_PASSWORD_HASH")
	chatPtr := flag.Bool("chat", false, "Start an interactive chat using an API key")
	ingestPtr := flag.String("ingest", "", "Upload a text file to a client's knowledge base")

	baseURL := flag.String("url", "http://localhost:8000", "Server base URL")
	apiKey := flag.String("key", os.Getenv("ACM_API_KEY"), "Client API key for -chat")
	session := flag.String("session", "", "Session id for -chat (random when empty)")
	token := flag.String("token", os.Getenv("ACM_ADMIN_TOKEN"), "Operator token for -ingest")
	clientID := flag.String("client", "", "Client id for -ingest")
	title := flag.String("title", "", "Document title for -ingest (defaults to the file name)")

	flag.Parse()

	switch {
	case *hashPtr != "":
		hash, err := api.HashPassword(*hashPtr)
		if err != nil {
			fail(err)
		}
		fmt.Println(hash)
	case *chatPtr:
		if *apiKey == "" {
			fail(fmt.Errorf("-key or ACM_API_KEY is required"))
		}
		if *session == "" {
			*session = uuid.NewString()
		}
		chatLoop(*baseURL, *apiKey, *session)
	case *ingestPtr != "":
		if *token == "" || *clientID == "" {
			fail(fmt.Errorf("-token and -client are required"))
		}
		ingest(*baseURL, *token, *clientID, *ingestPtr, *title)
	default:
		fmt.Println("ACM chatbot tools:")
		fmt.Println("  -hash-password <pw>                 Hash an operator password")
		fmt.Println("  -chat -key <key> [-session <id>]     Chat from the terminal")
		fmt.Println("  -ingest <file> -client <id> -token   Upload a document")
		os.Exit(0)
	}
}

func chatLoop(baseURL, apiKey, session string) {
	var greeting struct {
		Template string `json:"template"`
	}
	if err := call(http.MethodGet, baseURL+"/template_message", api.APIKeyHeader, apiKey, nil, &greeting); err != nil {
		fail(err)
	}
	fmt.Println("assistant>", greeting.Template)

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("you> ")
		if !scanner.Scan() {
			return
		}
		message := strings.TrimSpace(scanner.Text())
		if message == "" {
			continue
		}

		var out api.ChatResponse
		err := call(http.MethodPost, baseURL+"/chat", api.APIKeyHeader, apiKey,
			api.ChatRequest{Message: message, SessionID: session}, &out)
		if err != nil {
			fmt.Fprintln(os.Stderr, "error:", err)
			continue
		}
		fmt.Println("assistant>", out.Reply)
	}
}

func ingest(baseURL, token, clientID, path, title string) {
	content, err := os.ReadFile(path)
	if err != nil {
		fail(err)
	}
	if title == "" {
		title = filepath.Base(path)
	}

	var out map[string]any
	err = call(http.MethodPost, baseURL+"/api/v1/admin/clients/"+clientID+"/documents",
		"Authorization", "Bearer "+token,
		map[string]string{"title": title, "source": path, "content": string(content)}, &out)
	if err != nil {
		fail(err)
	}
	fmt.Printf("Ingested %q as %v (%v chunks)\n", title, out["document_id"], out["chunks"])
}

func call(method, url, authHeader, authValue string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, url, body)
	if err != nil {
		return err
	}
	req.Header.Set(authHeader, authValue)
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("server returned %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}
	return json.Unmarshal(data, out)
}

func fail(err error) {
	fmt.Fprintln(os.Stderr, "error:", err)
	os.Exit(1)
}
