package ai

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"neurogpt/backend/internal/config"
)

// Request describes one generative completion. The resolver always sends a
// fixed system prompt, token budget and temperature; the client does not
// default them.
type Request struct {
	SystemPrompt string
	UserPrompt   string
	MaxTokens    int
	Temperature  float64
}

// Client is the generative fallback boundary. Stream never fails outright:
// any upstream failure surfaces as a single "[ERROR] ..." fragment followed
// by the end of the sequence, so transport code can forward fragments
// without special-casing errors.
type Client interface {
	Complete(ctx context.Context, req Request) (string, error)
	Stream(ctx context.Context, req Request) <-chan string
}

type OpenAIClient struct {
	apiKey     string
	baseURL    string
	model      string
	httpClient *http.Client
}

func NewOpenAIClient(cfg config.Config) *OpenAIClient {
	timeoutSeconds := cfg.AITimeoutSeconds
	if timeoutSeconds <= 0 {
		timeoutSeconds = 30
	}
	return &OpenAIClient{
		apiKey:  strings.TrimSpace(cfg.OpenAIAPIKey),
		baseURL: strings.TrimRight(strings.TrimSpace(cfg.OpenAIBaseURL), "/"),
		model:   strings.TrimSpace(cfg.OpenAIModel),
		httpClient: &http.Client{
			Timeout: time.Duration(timeoutSeconds) * time.Second,
		},
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens"`
	Temperature float64       `json:"temperature"`
	Stream      bool          `json:"stream,omitempty"`
}

func (c *OpenAIClient) Complete(ctx context.Context, req Request) (string, error) {
	response, err := c.send(ctx, req, false)
	if err != nil {
		return "", err
	}
	defer response.Body.Close()

	body, err := io.ReadAll(response.Body)
	if err != nil {
		return "", err
	}
	var parsed struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", err
	}
	if len(parsed.Choices) == 0 {
		return "", errors.New("chat completion returned no choices")
	}
	answer := strings.TrimSpace(parsed.Choices[0].Message.Content)
	if answer == "" {
		return "", errors.New("chat completion answer is empty")
	}
	return answer, nil
}

func (c *OpenAIClient) Stream(ctx context.Context, req Request) <-chan string {
	fragments := make(chan string)
	go func() {
		defer close(fragments)

		response, err := c.send(ctx, req, true)
		if err != nil {
			emit(ctx, fragments, "[ERROR] "+err.Error())
			return
		}
		defer response.Body.Close()

		scanner := bufio.NewScanner(response.Body)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			line := scanner.Text()
			if !strings.HasPrefix(line, "data: ") {
				continue
			}
			data := strings.TrimPrefix(line, "data: ")
			if data == "[DONE]" {
				return
			}
			var chunk struct {
				Choices []struct {
					Delta struct {
						Content string `json:"content"`
					} `json:"delta"`
				} `json:"choices"`
			}
			if json.Unmarshal([]byte(data), &chunk) != nil || len(chunk.Choices) == 0 {
				continue
			}
			token := chunk.Choices[0].Delta.Content
			if token == "" {
				continue
			}
			if !emit(ctx, fragments, token) {
				return
			}
		}
		if err := scanner.Err(); err != nil {
			emit(ctx, fragments, "[ERROR] "+err.Error())
		}
	}()
	return fragments
}

func (c *OpenAIClient) send(ctx context.Context, req Request, stream bool) (*http.Response, error) {
	if c.apiKey == "" {
		return nil, errors.New("OPENAI_API_KEY is not configured")
	}
	if c.baseURL == "" {
		return nil, errors.New("OPENAI_BASE_URL is not configured")
	}
	if c.model == "" {
		return nil, errors.New("OPENAI_MODEL is not configured")
	}

	payload := chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: req.SystemPrompt},
			{Role: "user", Content: req.UserPrompt},
		},
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
		Stream:      stream,
	}
	bodyRaw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	request, err := http.NewRequestWithContext(
		ctx,
		http.MethodPost,
		c.baseURL+"/chat/completions",
		bytes.NewReader(bodyRaw),
	)
	if err != nil {
		return nil, err
	}
	request.Header.Set("Authorization", "Bearer "+c.apiKey)
	request.Header.Set("Content-Type", "application/json")

	response, err := c.httpClient.Do(request)
	if err != nil {
		return nil, err
	}
	if response.StatusCode < 200 || response.StatusCode >= 300 {
		defer response.Body.Close()
		body, _ := io.ReadAll(response.Body)
		return nil, fmt.Errorf("openai chat error (%d): %s", response.StatusCode, strings.TrimSpace(string(body)))
	}
	return response, nil
}

func emit(ctx context.Context, out chan<- string, fragment string) bool {
	select {
	case out <- fragment:
		return true
	case <-ctx.Done():
		return false
	}
}

// Mock implements Client for tests.
type Mock struct {
	Reply     string
	Fragments []string
	Err       error
}

func (m Mock) Complete(_ context.Context, _ Request) (string, error) {
	if m.Err != nil {
		return "", m.Err
	}
	if m.Reply != "" {
		return m.Reply, nil
	}
	return strings.Join(m.Fragments, ""), nil
}

func (m Mock) Stream(ctx context.Context, _ Request) <-chan string {
	fragments := make(chan string)
	go func() {
		defer close(fragments)
		if m.Err != nil {
			emit(ctx, fragments, "[ERROR] "+m.Err.Error())
			return
		}
		for _, fragment := range m.Fragments {
			if !emit(ctx, fragments, fragment) {
				return
			}
		}
	}()
	return fragments
}
