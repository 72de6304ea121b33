package provider

import (
	"context"
	"fmt"
)

// Execute implements TaskExecutor. Text tasks become a system + user chat
// exchange; image tasks send the user message as the image prompt.
func (r *Router) Execute(ctx context.Context, req *TaskRequest) (*TaskResponse, error) {
	switch req.Kind {
	case TaskImage:
		prompt := req.UserMessage
		if req.SystemPrompt != "" {
			prompt = req.SystemPrompt + "\n\n" + req.UserMessage
		}
		resp, err := r.GenerateImage(ctx, req.Model.Provider, &ImageRequest{
			Model:  req.Model.Model,
			Prompt: prompt,
			Size:   "1024x1024",
		})
		if err != nil {
			return nil, err
		}
		out := resp.URL
		if out == "" && resp.B64JSON != "" {
			out = "data:image/png;base64," + resp.B64JSON
		}
		if out == "" {
			return nil, fmt.Errorf("empty image response from %s", req.Model.Provider)
		}
		return &TaskResponse{
			Output:   out,
			Provider: req.Model.Provider,
			Model:    firstNonEmpty(resp.Model, req.Model.Model),
		}, nil

	case TaskText, "":
		var msgs []Message
		if req.SystemPrompt != "" {
			msgs = append(msgs, Message{Role: "system", Content: req.SystemPrompt})
		}
		msgs = append(msgs, Message{Role: "user", Content: req.UserMessage})

		maxTokens := req.MaxTokens
		if maxTokens == 0 {
			maxTokens = 4096
		}
		resp, err := r.Route(ctx, req.Model.Provider, &ChatRequest{
			Model:     req.Model.Model,
			Messages:  msgs,
			MaxTokens: maxTokens,
		})
		if err != nil {
			return nil, err
		}
		return &TaskResponse{
			Output:   resp.Content,
			Usage:    resp.Usage,
			Provider: req.Model.Provider,
			Model:    firstNonEmpty(resp.Model, req.Model.Model),
		}, nil

	default:
		return nil, fmt.Errorf("unsupported task kind %q", req.Kind)
	}
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
