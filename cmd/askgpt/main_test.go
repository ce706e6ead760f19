package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/lamim/askgpt/internal/api"
	"github.com/lamim/askgpt/internal/repl"
)

func newMockServer(t *testing.T, status int, body string) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(server.Close)
	return server
}

func writeConfig(t *testing.T, endpoint string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), ".openAi.yml")
	content := "api_key = \"sk-x\"\nmodel = \"gpt-4\"\nendpoint = \"" + endpoint + "\"\n"
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}
	return path
}

func execute(t *testing.T, stdin string, args ...string) (string, string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	cmd := newRootCmd()
	cmd.SetArgs(append([]string{"--env-file="}, args...))
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	err := cmd.ExecuteContext(context.Background())
	return stdout.String(), stderr.String(), err
}

const answerBody = `{"id":"chatcmpl-1","object":"chat.completion","created":1,"model":"gpt-4",
	"choices":[{"index":0,"message":{"role":"assistant","content":"4"},"finish_reason":"stop"}],
	"usage":{"prompt_tokens":3,"completion_tokens":1,"total_tokens":4}}`

func TestAskCommand(t *testing.T) {
	server := newMockServer(t, http.StatusOK, answerBody)

	stdout, _, err := execute(t, "", "ask", "--config", writeConfig(t, server.URL), "2+2?")
	if err != nil {
		t.Fatalf("ask failed: %v", err)
	}
	if stdout != "4\n" {
		t.Errorf("Expected '4', got %q", stdout)
	}
}

func TestAskCommand_JSON(t *testing.T) {
	server := newMockServer(t, http.StatusOK, answerBody)

	stdout, _, err := execute(t, "", "ask", "--json", "--config", writeConfig(t, server.URL), "2+2?")
	if err != nil {
		t.Fatalf("ask failed: %v", err)
	}

	var resp api.ChatCompletionResponse
	if err := json.Unmarshal([]byte(stdout), &resp); err != nil {
		t.Fatalf("Output is not a response: %v (%s)", err, stdout)
	}
	if resp.ID != "chatcmpl-1" || resp.Choices[0].Message.Content != "4" {
		t.Errorf("Unexpected response: %+v", resp)
	}
}

func TestAskCommand_Rejected(t *testing.T) {
	server := newMockServer(t, http.StatusUnauthorized, `{"error":"invalid key"}`)

	stdout, stderr, err := execute(t, "", "ask", "--config", writeConfig(t, server.URL), "2+2?")
	if err == nil {
		t.Fatal("Expected an error")
	}
	if api.KindOf(err) != api.KindServiceRejected {
		t.Errorf("Expected service rejected, got %v", err)
	}
	if stdout != "" {
		t.Errorf("Expected no answer output, got %q", stdout)
	}
	if !strings.Contains(stderr, "status 401") {
		t.Errorf("Expected status in stderr, got %q", stderr)
	}
}

func TestInteractive_NonTerminal(t *testing.T) {
	server := newMockServer(t, http.StatusOK, answerBody)

	stdout, _, err := execute(t, "2+2?\nq\n", "--config", writeConfig(t, server.URL))
	if err != nil {
		t.Fatalf("session failed: %v", err)
	}

	want := repl.Prompt + "4\n" + repl.Prompt + repl.Farewell + "\n"
	if stdout != want {
		t.Errorf("Unexpected output:\n got %q\nwant %q", stdout, want)
	}
}

func TestInteractive_MissingConfigKeepsRunning(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "missing.yml")

	stdout, _, err := execute(t, "first\nsecond\nq\n", "--config", missing)
	if err != nil {
		t.Fatalf("session failed: %v", err)
	}
	if strings.Count(stdout, "error: config not found") != 2 {
		t.Errorf("Expected both questions to report the missing config, got %q", stdout)
	}
	if !strings.HasSuffix(stdout, repl.Farewell+"\n") {
		t.Errorf("Expected farewell, got %q", stdout)
	}
}

func TestConfigEnvVar(t *testing.T) {
	server := newMockServer(t, http.StatusOK, answerBody)
	t.Setenv(ConfigEnvVar, writeConfig(t, server.URL))

	stdout, _, err := execute(t, "", "ask", "2+2?")
	if err != nil {
		t.Fatalf("ask failed: %v", err)
	}
	if stdout != "4\n" {
		t.Errorf("Expected '4', got %q", stdout)
	}
}

func TestEnvFileExplicitMissing(t *testing.T) {
	var stdout, stderr bytes.Buffer
	cmd := newRootCmd()
	cmd.SetArgs([]string{"check", "--env-file", filepath.Join(t.TempDir(), "nope.env")})
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	if err := cmd.ExecuteContext(context.Background()); err == nil {
		t.Error("Expected an explicit missing env file to fail")
	}
}

func TestCheckCommand(t *testing.T) {
	stdout, _, err := execute(t, "", "check", "--config", writeConfig(t, "https://api.example.com/v1/chat/completions"))
	if err != nil {
		t.Fatalf("check failed: %v", err)
	}
	for _, want := range []string{"gpt-4", "https://api.example.com/v1/chat/completions", "sk-*", "1m0s"} {
		if !strings.Contains(stdout, want) {
			t.Errorf("Expected %q in output %q", want, stdout)
		}
	}
	if strings.Contains(stdout, "sk-x") {
		t.Error("API key leaked in check output")
	}
}
