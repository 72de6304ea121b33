package team

import (
	"fmt"
	"strings"
	"time"
)

// Team is a named set of workers sharing a directive.
type Team struct {
	ID        string            `json:"id"`
	Name      string            `json:"name" validate:"required"`
	Directive string            `json:"directive"`
	Workers   []Worker          `json:"workers" validate:"dive"`
	Overrides map[string]string `json:"overrides,omitempty"` // workerID -> prompt override
	CreatedAt time.Time         `json:"created_at"`
}

// Worker returns the worker with the given id.
func (t *Team) Worker(id string) (Worker, bool) {
	for _, w := range t.Workers {
		if w.ID == id {
			return w, true
		}
	}
	return Worker{}, false
}

// Brand is the optional brand/project context injected into system prompts.
type Brand struct {
	Name           string   `json:"name"`
	Tone           string   `json:"tone,omitempty"`
	Description    string   `json:"description,omitempty"`
	Keywords       []string `json:"keywords,omitempty"`
	BannedKeywords []string `json:"banned_keywords,omitempty"`
}

// Empty reports whether the brand carries no usable information.
func (b *Brand) Empty() bool {
	return b == nil || (b.Name == "" && b.Tone == "" && b.Description == "" &&
		len(b.Keywords) == 0 && len(b.BannedKeywords) == 0)
}

// Format renders the brand as a prompt block. It returns "" for an empty brand.
func (b *Brand) Format() string {
	if b.Empty() {
		return ""
	}
	var buf strings.Builder
	buf.WriteString("## Brand Context\n")
	if b.Name != "" {
		fmt.Fprintf(&buf, "Brand: %s\n", b.Name)
	}
	if b.Description != "" {
		fmt.Fprintf(&buf, "About: %s\n", b.Description)
	}
	if b.Tone != "" {
		fmt.Fprintf(&buf, "Tone of voice: %s\n", b.Tone)
	}
	if len(b.Keywords) > 0 {
		fmt.Fprintf(&buf, "Use these keywords: %s\n", strings.Join(b.Keywords, ", "))
	}
	if len(b.BannedKeywords) > 0 {
		fmt.Fprintf(&buf, "Never use: %s\n", strings.Join(b.BannedKeywords, ", "))
	}
	return strings.TrimRight(buf.String(), "\n")
}
