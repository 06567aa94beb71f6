package models

import (
	"regexp"
	"strings"
	"time"
)

var slugPattern = regexp.MustCompile(`^[a-z0-9]+(?:-[a-z0-9]+)*$`)

// Group is a named collection of agents sharing a rotation context
type Group struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	Slug       string    `json:"slug"`
	Message    string    `json:"message,omitempty"`
	IsActive   bool      `json:"isActive"`
	Strategy   Strategy  `json:"strategy"` // empty inherits the global setting
	ClickCount int64     `json:"clickCount"`
	AgentCount int       `json:"agentCount"`
	Agents     []Agent   `json:"agents,omitempty"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

// GroupInput carries the writable group fields
type GroupInput struct {
	Name     string   `json:"name"`
	Slug     string   `json:"slug"`
	Message  string   `json:"message"`
	Strategy string   `json:"strategy"`
	IsActive *bool    `json:"isActive,omitempty"`
	AgentIDs []string `json:"agentIds,omitempty"`
}

// Normalize trims input, derives the slug when missing and validates it
func (in *GroupInput) Normalize() error {
	in.Name = strings.TrimSpace(in.Name)
	in.Slug = strings.TrimSpace(strings.ToLower(in.Slug))
	in.Message = strings.TrimSpace(in.Message)
	in.Strategy = strings.TrimSpace(in.Strategy)

	if in.Name == "" {
		return &ValidationError{Field: "name", Message: "name is required"}
	}
	if in.Slug == "" {
		in.Slug = Slugify(in.Name)
	}
	if !slugPattern.MatchString(in.Slug) {
		return &ValidationError{Field: "slug", Message: "slug may only contain lowercase letters, digits and single dashes"}
	}
	if in.Strategy != "" {
		if _, err := ParseStrategy(in.Strategy); err != nil {
			return err
		}
	}
	return nil
}

// ValidSlug reports whether s could name a group
func ValidSlug(s string) bool {
	return slugPattern.MatchString(s)
}

// Slugify turns a display name into a URL-safe slug
func Slugify(name string) string {
	var b strings.Builder
	dash := false
	for _, c := range strings.ToLower(name) {
		switch {
		case (c >= 'a' && c <= 'z') || (c >= '0' && c <= '9'):
			b.WriteRune(c)
			dash = false
		case b.Len() > 0 && !dash:
			b.WriteByte('-')
			dash = true
		}
	}
	return strings.TrimSuffix(b.String(), "-")
}

// EffectiveStrategy resolves the group strategy against the global one
func (g *Group) EffectiveStrategy(global Strategy) Strategy {
	if g.Strategy.Valid() {
		return g.Strategy
	}
	return global
}
