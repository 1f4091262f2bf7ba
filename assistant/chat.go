package assistant

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/odvcencio/folio/assist"
	"github.com/odvcencio/folio/suggest"
)

// ChatHandler answers assistant requests with an OpenAI-compatible chat
// completions endpoint.
type ChatHandler struct {
	BaseURL string
	APIKey  string
	Model   string
	// Language names the manuscript language in prompts.
	Language string
	Client   *http.Client
	Logger   *slog.Logger
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Temperature float32       `json:"temperature"`
}

type chatResponse struct {
	Choices []struct {
		Message      chatMessage `json:"message"`
		FinishReason string      `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		TotalTokens int `json:"total_tokens"`
	} `json:"usage"`
}

// Autocomplete asks for short continuations of the text before the cursor,
// one per line.
func (h *ChatHandler) Autocomplete(ctx context.Context, req suggest.AutocompleteRequest) ([]string, error) {
	before := req.Text
	if req.CursorOffset >= 0 && req.CursorOffset <= len(before) {
		before = before[:req.CursorOffset]
	}
	n := req.MaxSuggestions
	if n <= 0 {
		n = 5
	}
	system := fmt.Sprintf("You continue fiction manuscripts written in %s. "+
		"Reply with %d alternative continuations of a few words each, one per line, "+
		"with no numbering and no commentary.", h.language(), n)
	out, err := h.complete(ctx, system, before, 120, 0.7)
	if err != nil {
		return nil, err
	}
	var list []string
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(strings.TrimLeft(line, "-*0123456789.) "))
		if line != "" {
			list = append(list, line)
		}
	}
	if len(list) > n {
		list = list[:n]
	}
	return list, nil
}

// RunAction applies a selection action and returns the raw model output.
func (h *ChatHandler) RunAction(ctx context.Context, req assist.ActionRequest) (string, error) {
	instruction := req.Instruction
	if instruction == "" {
		instruction = req.Action.Instruction()
	}
	var b strings.Builder
	fmt.Fprintf(&b, "You are an editor for fiction written in %s. %s", h.language(), instruction)
	if len(req.FocusAreas) > 0 {
		fmt.Fprintf(&b, " Pay attention to: %s.", strings.Join(req.FocusAreas, ", "))
	}
	b.WriteString(" Reply with the resulting text only.")
	return h.complete(ctx, b.String(), req.Text, 1024, 0.4)
}

func (h *ChatHandler) language() string {
	if h.Language == "" {
		return "Portuguese"
	}
	return h.Language
}

func (h *ChatHandler) complete(ctx context.Context, system, user string, maxTokens int, temp float32) (string, error) {
	logger := h.Logger
	if logger == nil {
		logger = slog.Default()
	}
	client := h.Client
	if client == nil {
		client = &http.Client{Timeout: 120 * time.Second}
	}

	body, err := json.Marshal(chatRequest{
		Model: h.Model,
		Messages: []chatMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: user},
		},
		MaxTokens:   maxTokens,
		Temperature: temp,
	})
	if err != nil {
		return "", fmt.Errorf("assistant: marshal request: %w", err)
	}
	url := strings.TrimRight(h.BaseURL, "/") + "/v1/chat/completions"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("assistant: create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if h.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+h.APIKey)
	}

	start := time.Now()
	resp, err := client.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("assistant: request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		logger.Error("assistant: completion failed", "status", resp.StatusCode, "body", string(msg), "duration", time.Since(start))
		return "", fmt.Errorf("assistant: completion returned status %d", resp.StatusCode)
	}

	var out chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("assistant: decode completion: %w", err)
	}
	if len(out.Choices) == 0 {
		return "", fmt.Errorf("assistant: completion returned no choices")
	}
	logger.Debug("assistant: completion received",
		"duration", time.Since(start),
		"tokens", out.Usage.TotalTokens,
		"finish_reason", out.Choices[0].FinishReason)
	return out.Choices[0].Message.Content, nil
}
