package provider

import (
	"context"
	"errors"
	"time"
)

// Provider defines the interface for LLM providers.
type Provider interface {
	ID() string
	Name() string
	Chat(ctx context.Context, req *ChatRequest) (*ChatResponse, error)
}

// ImageGenerator is implemented by providers that can render images.
type ImageGenerator interface {
	GenerateImage(ctx context.Context, req *ImageRequest) (*ImageResponse, error)
}

var (
	// ErrUnknownProvider is returned when no registered provider matches.
	ErrUnknownProvider = errors.New("unknown provider")
	// ErrImageUnsupported is returned when a provider cannot generate images.
	ErrImageUnsupported = errors.New("provider does not support image generation")
)

// ChatRequest represents a request to an LLM provider.
type ChatRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Temperature float64   `json:"temperature,omitempty"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
}

// Message represents a chat message.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatResponse represents a response from an LLM provider.
type ChatResponse struct {
	ID           string `json:"id"`
	Model        string `json:"model"`
	Content      string `json:"content"`
	FinishReason string `json:"finish_reason"`
	Usage        Usage  `json:"usage"`
}

// ImageRequest asks a provider for a single rendered image.
type ImageRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	Size   string `json:"size,omitempty"`
}

// ImageResponse carries the location (or inline data) of a generated image.
type ImageResponse struct {
	Model         string `json:"model"`
	URL           string `json:"url,omitempty"`
	B64JSON       string `json:"b64_json,omitempty"`
	RevisedPrompt string `json:"revised_prompt,omitempty"`
}

// Usage tracks token consumption.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// ModelConfig names the concrete provider/model pair that serves a call.
type ModelConfig struct {
	Provider         string  `json:"provider"`
	Model            string  `json:"model"`
	CreditMultiplier float64 `json:"credit_multiplier,omitempty"`
}

// IsZero reports whether no provider or model is set.
func (m ModelConfig) IsZero() bool {
	return m.Provider == "" && m.Model == ""
}

// TaskKind selects which provider capability a task uses.
type TaskKind string

const (
	TaskText  TaskKind = "text"
	TaskImage TaskKind = "image"
)

// TaskRequest is one worker invocation against the task-execution interface.
type TaskRequest struct {
	Kind         TaskKind    `json:"kind"`
	SystemPrompt string      `json:"system_prompt"`
	UserMessage  string      `json:"user_message"`
	Model        ModelConfig `json:"model"`
	MaxTokens    int         `json:"max_tokens,omitempty"`
}

// TaskResponse is the output of a single task execution.
type TaskResponse struct {
	Output   string `json:"output"`
	Usage    Usage  `json:"usage"`
	Provider string `json:"provider"`
	Model    string `json:"model"`
}

// TaskExecutor runs a single task against some provider.
type TaskExecutor interface {
	Execute(ctx context.Context, req *TaskRequest) (*TaskResponse, error)
}

// ProviderConfig holds configuration for a provider instance.
type ProviderConfig struct {
	ID       string            `json:"id"`
	Type     string            `json:"type"`
	Name     string            `json:"name"`
	Endpoint string            `json:"endpoint"`
	APIKey   string            `json:"api_key"`
	Models   []string          `json:"models,omitempty"`
	Extra    map[string]string `json:"extra,omitempty"`
	Timeout  time.Duration     `json:"timeout,omitempty"`
}
