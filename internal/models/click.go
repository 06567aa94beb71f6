package models

import "time"

// ClickEvent is an immutable record of one distributed click
type ClickEvent struct {
	ID        int64     `json:"id"`
	GroupID   string    `json:"groupId"`
	AgentID   string    `json:"agentId"`
	Strategy  Strategy  `json:"strategy"`
	IP        string    `json:"ip,omitempty"`
	UserAgent string    `json:"userAgent,omitempty"`
	Referer   string    `json:"referer,omitempty"`
	ClickedAt time.Time `json:"clickedAt"`
}

// ClickMeta is the request context captured alongside a click
type ClickMeta struct {
	IP        string
	UserAgent string
	Referer   string
	RequestID string
}

// AnalyticsQuery selects the window and group of an analytics report
type AnalyticsQuery struct {
	Days    int
	GroupID string // empty or "all" means every group
}

// AllGroups reports whether the query is unfiltered
func (q AnalyticsQuery) AllGroups() bool {
	return q.GroupID == "" || q.GroupID == "all"
}

// HourlyClicks is the click count for one hour of day (0-23)
type HourlyClicks struct {
	Hour   int   `json:"hour"`
	Clicks int64 `json:"clicks"`
}

// DailyClicks is the click count for one calendar day (YYYY-MM-DD, UTC)
type DailyClicks struct {
	Date   string `json:"date"`
	Clicks int64  `json:"clicks"`
}

// NamedClicks is a click count attributed to an agent or group name
type NamedClicks struct {
	Name   string `json:"name"`
	Clicks int64  `json:"clicks"`
}

// GroupSummary is a per-group row of the analytics report
type GroupSummary struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Slug        string   `json:"slug"`
	IsActive    bool     `json:"isActive"`
	Strategy    Strategy `json:"strategy"`
	TotalClicks int64    `json:"totalClicks"`
	AgentCount  int      `json:"agentCount"`
}

// GroupAnalyticsData is the analytics report consumed by the dashboard
type GroupAnalyticsData struct {
	Days              int            `json:"days"`
	From              time.Time      `json:"from"`
	To                time.Time      `json:"to"`
	TotalClicks       int64          `json:"totalClicks"`
	HourlyData        []HourlyClicks `json:"hourlyData"`
	DailyData         []DailyClicks  `json:"dailyData"`
	AgentDistribution []NamedClicks  `json:"agentDistribution"`
	GroupDistribution []NamedClicks  `json:"groupDistribution"`
	Groups            []GroupSummary `json:"groups"`
}
