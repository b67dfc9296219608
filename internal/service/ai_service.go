package service

import (
	"bytes"
	"context"
	"encoding/json"
	"engz_backend/internal/config"
	"engz_backend/pkg/tracing"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
)

// AIService OpenAI 兼容的 chat completions 客户端，进程内单例
type AIService struct {
	config config.AIConfig
	client *http.Client
}

func NewAIService(cfg config.AIConfig) *AIService {
	return &AIService{
		config: cfg,
		client: &http.Client{Timeout: 90 * time.Second},
	}
}

type AIChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ChatCompletionRequest struct {
	Model          string          `json:"model"`
	Messages       []AIChatMessage `json:"messages"`
	Temperature    float64         `json:"temperature"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
}

type responseFormat struct {
	Type string `json:"type"`
}

type ChatCompletionResponse struct {
	Choices []struct {
		Message AIChatMessage `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// Complete 发送一轮对话，返回模型文本；调用方通过 ctx 控制超时
func (s *AIService) Complete(ctx context.Context, system, prompt string) (string, error) {
	return s.complete(ctx, system, prompt, false)
}

// CompleteJSON 要求模型以 JSON 对象返回并解析到 out
func (s *AIService) CompleteJSON(ctx context.Context, system, prompt string, out interface{}) error {
	content, err := s.complete(ctx, system, prompt, true)
	if err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(extractJSONObject(content)), out); err != nil {
		return fmt.Errorf("AI returned malformed JSON: %w", err)
	}
	return nil
}

func (s *AIService) complete(ctx context.Context, system, prompt string, jsonMode bool) (string, error) {
	ctx, span := tracing.Tracer.Start(ctx, "ai.complete")
	defer span.End()
	span.SetAttributes(attribute.String("ai.model", s.config.Model), attribute.Bool("ai.json", jsonMode))

	reqBody := ChatCompletionRequest{
		Model: s.config.Model,
		Messages: []AIChatMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: prompt},
		},
		// 评分需要可复现，温度保持为 0
		Temperature: 0,
	}
	if jsonMode {
		reqBody.ResponseFormat = &responseFormat{Type: "json_object"}
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimRight(s.config.BaseURL, "/")+"/chat/completions", bytes.NewBuffer(jsonData))
	if err != nil {
		return "", err
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.config.APIKey)

	resp, err := s.client.Do(req)
	if err != nil {
		span.RecordError(err)
		return "", err
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("AI API error (status %d): %s", resp.StatusCode, string(body))
	}

	var result ChatCompletionResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return "", err
	}
	if result.Error != nil {
		return "", fmt.Errorf("AI API error: %s", result.Error.Message)
	}

	if len(result.Choices) > 0 {
		return result.Choices[0].Message.Content, nil
	}

	return "", fmt.Errorf("AI returned no choices")
}

// extractJSONObject 去掉模型偶尔包裹的 ```json 代码块
func extractJSONObject(content string) string {
	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if start < 0 || end < start {
		return content
	}
	return content[start : end+1]
}
