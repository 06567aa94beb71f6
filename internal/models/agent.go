package models

import (
	"net/url"
	"strings"
	"time"
)

// Agent is a WhatsApp contact that receives routed clicks
type Agent struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	Phone      string    `json:"phone"`
	Message    string    `json:"message,omitempty"`
	Weight     int       `json:"weight"`
	IsActive   bool      `json:"isActive"`
	ClickCount int64     `json:"clickCount"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

// AgentInput carries the writable agent fields
type AgentInput struct {
	Name     string `json:"name"`
	Phone    string `json:"phone"`
	Message  string `json:"message"`
	Weight   int    `json:"weight"`
	IsActive *bool  `json:"isActive,omitempty"`
}

// Normalize trims input and fills defaults, then validates it
func (in *AgentInput) Normalize() error {
	in.Name = strings.TrimSpace(in.Name)
	in.Phone = NormalizePhone(in.Phone)
	in.Message = strings.TrimSpace(in.Message)

	if in.Name == "" {
		return &ValidationError{Field: "name", Message: "name is required"}
	}
	if in.Phone == "" {
		return &ValidationError{Field: "phone", Message: "phone is required"}
	}
	if len(in.Phone) < 7 || len(in.Phone) > 15 {
		return &ValidationError{Field: "phone", Message: "phone must contain 7 to 15 digits"}
	}
	if in.Weight == 0 {
		in.Weight = 1
	}
	if in.Weight < 0 {
		return &ValidationError{Field: "weight", Message: "weight must be positive"}
	}
	return nil
}

// NormalizePhone strips everything except digits
func NormalizePhone(phone string) string {
	var b strings.Builder
	for _, c := range phone {
		if c >= '0' && c <= '9' {
			b.WriteRune(c)
		}
	}
	return b.String()
}

// ChatURL builds the wa.me link for the agent with an optional prefilled text
func (a *Agent) ChatURL(message string) string {
	u := "https://wa.me/" + NormalizePhone(a.Phone)
	if message == "" {
		message = a.Message
	}
	if message != "" {
		u += "?text=" + url.QueryEscape(message)
	}
	return u
}
