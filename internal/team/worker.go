package team

import (
	"sort"
	"strings"
)

// Role is the explicit role tag assigned to a worker when it is created.
type Role string

const (
	RoleResearcher   Role = "researcher"
	RolePlanner      Role = "planner"
	RoleManager      Role = "manager"
	RoleCreatorText  Role = "creator_text"
	RoleCreatorImage Role = "creator_image"
	RoleCreatorVideo Role = "creator_video"
	RoleReviewer     Role = "reviewer"
	RoleOther        Role = "other"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleResearcher, RolePlanner, RoleManager,
		RoleCreatorText, RoleCreatorImage, RoleCreatorVideo,
		RoleReviewer, RoleOther:
		return true
	}
	return false
}

// IsMeta reports whether the role produces internal, non-publishable output.
func (r Role) IsMeta() bool {
	switch r {
	case RoleResearcher, RolePlanner, RoleManager, RoleReviewer:
		return true
	}
	return false
}

// IsCreator reports whether the role produces publishable content.
func (r Role) IsCreator() bool {
	switch r {
	case RoleCreatorText, RoleCreatorImage, RoleCreatorVideo:
		return true
	}
	return false
}

// Worker is one configured sub-agent within a team.
type Worker struct {
	ID                   string `json:"id" validate:"required"`
	Name                 string `json:"name"`
	RoleType             string `json:"role_type"`
	Role                 Role   `json:"role"`
	SystemPromptOverride string `json:"system_prompt_override,omitempty"`
	DisplayOrder         int    `json:"display_order"`
}

// Normalize fills Role from RoleType when the caller did not assign one.
func (w *Worker) Normalize() {
	if w.Role == "" || !w.Role.Valid() {
		w.Role = ImportRole(w.RoleType)
	}
	if w.RoleType == "" {
		w.RoleType = string(w.Role)
	}
	if w.Name == "" {
		w.Name = w.ID
	}
}

// SortByDisplayOrder returns a copy of workers stably ordered by DisplayOrder.
func SortByDisplayOrder(workers []Worker) []Worker {
	out := make([]Worker, len(workers))
	copy(out, workers)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].DisplayOrder < out[j].DisplayOrder
	})
	return out
}

// roleKeywords is the import table used to turn a free-text role tag into a
// Role. Lists are tested in order and the first match wins.
var roleKeywords = []struct {
	role     Role
	keywords []string
}{
	{RoleResearcher, []string{"research", "analyst", "insight", "trend", "리서치", "조사", "분석"}},
	{RolePlanner, []string{"planner", "planning", "strategist", "strategy", "기획", "전략"}},
	{RoleManager, []string{"manager", "director", "orchestrat", "매니저", "관리", "총괄"}},
	{RoleCreatorImage, []string{"image", "visual", "design", "illustrat", "이미지", "디자인"}},
	{RoleCreatorVideo, []string{"video", "reel", "motion", "영상", "동영상"}},
	{RoleCreatorText, []string{"creator", "writer", "copy", "text", "content", "작성", "카피", "콘텐츠"}},
	{RoleReviewer, []string{"review", "editor", "qa", "compliance", "validat", "검토", "리뷰", "검수"}},
}

// ImportRole maps a free-text role tag to a Role using keyword containment.
// Unknown tags map to RoleOther.
func ImportRole(roleType string) Role {
	lower := strings.ToLower(strings.TrimSpace(roleType))
	if lower == "" {
		return RoleOther
	}
	if r := Role(lower); r.Valid() {
		return r
	}
	for _, entry := range roleKeywords {
		for _, kw := range entry.keywords {
			if strings.Contains(lower, kw) {
				return entry.role
			}
		}
	}
	return RoleOther
}
