package repository

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/foxzi/walink/internal/models"
)

const (
	DefaultAnalyticsDays = 7
	MaxAnalyticsDays     = 365
)

// clickTimeLayout is fixed width so stored timestamps compare lexically
const clickTimeLayout = "2006-01-02T15:04:05Z"

type ClickRepository struct {
	db  DBTX
	now func() time.Time
}

func NewClickRepository(db DBTX) *ClickRepository {
	return &ClickRepository{db: db, now: time.Now}
}

// WithClock returns a copy of the repository that reads the time from now
func (r *ClickRepository) WithClock(now func() time.Time) *ClickRepository {
	return &ClickRepository{db: r.db, now: now}
}

func formatClickTime(t time.Time) string {
	return t.UTC().Format(clickTimeLayout)
}

// Record stores a click event and increments the agent and group counters
func (r *ClickRepository) Record(ctx context.Context, e *models.ClickEvent) error {
	if e.ClickedAt.IsZero() {
		e.ClickedAt = r.now()
	}
	e.ClickedAt = e.ClickedAt.UTC().Truncate(time.Second)

	return withTx(ctx, r.db, func(q DBTX) error {
		res, err := q.ExecContext(ctx, `
			INSERT INTO click_events (group_id, agent_id, strategy, ip, user_agent, referer, clicked_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			e.GroupID, e.AgentID, string(e.Strategy), e.IP, e.UserAgent, e.Referer, formatClickTime(e.ClickedAt),
		)
		if err != nil {
			return fmt.Errorf("failed to record click: %w", err)
		}
		if e.ID, err = res.LastInsertId(); err != nil {
			return fmt.Errorf("failed to read click id: %w", err)
		}

		res, err = q.ExecContext(ctx, "UPDATE agents SET click_count = click_count + 1 WHERE id = ?", e.AgentID)
		if err != nil {
			return fmt.Errorf("failed to count agent click: %w", err)
		}
		if err := notFoundIfNone(res); err != nil {
			return fmt.Errorf("agent %s: %w", e.AgentID, err)
		}

		res, err = q.ExecContext(ctx, "UPDATE groups SET click_count = click_count + 1 WHERE id = ?", e.GroupID)
		if err != nil {
			return fmt.Errorf("failed to count group click: %w", err)
		}
		if err := notFoundIfNone(res); err != nil {
			return fmt.Errorf("group %s: %w", e.GroupID, err)
		}
		return nil
	})
}

// Count returns the number of stored click events, optionally for one group
func (r *ClickRepository) Count(ctx context.Context, groupID string) (int64, error) {
	query := "SELECT COUNT(*) FROM click_events"
	args := []any{}
	if groupID != "" {
		query += " WHERE group_id = ?"
		args = append(args, groupID)
	}

	var n int64
	if err := r.db.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count clicks: %w", err)
	}
	return n, nil
}

// CountOlderThan returns the number of click events before the cutoff
func (r *ClickRepository) CountOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	var n int64
	err := r.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM click_events WHERE clicked_at < ?", formatClickTime(cutoff),
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count old clicks: %w", err)
	}
	return n, nil
}

// DeleteOlderThan removes click events before the cutoff. Aggregate click
// counters on agents and groups are kept.
func (r *ClickRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, "DELETE FROM click_events WHERE clicked_at < ?", formatClickTime(cutoff))
	if err != nil {
		return 0, fmt.Errorf("failed to delete old clicks: %w", err)
	}
	return res.RowsAffected()
}

// ClampDays applies the default and bounds of the analytics window
func ClampDays(days int) int {
	if days <= 0 {
		return DefaultAnalyticsDays
	}
	if days > MaxAnalyticsDays {
		return MaxAnalyticsDays
	}
	return days
}

// GroupAnalytics aggregates the clicks of the window ending now. The window
// starts at UTC midnight Days-1 days ago. Every aggregate is computed from the
// same result set, so each of them sums to TotalClicks.
func (r *ClickRepository) GroupAnalytics(ctx context.Context, q models.AnalyticsQuery) (*models.GroupAnalyticsData, error) {
	days := ClampDays(q.Days)
	now := r.now().UTC()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	from := today.AddDate(0, 0, -(days - 1))

	data := &models.GroupAnalyticsData{
		Days:              days,
		From:              from,
		To:                now,
		HourlyData:        make([]models.HourlyClicks, 24),
		DailyData:         make([]models.DailyClicks, days),
		AgentDistribution: []models.NamedClicks{},
		GroupDistribution: []models.NamedClicks{},
		Groups:            []models.GroupSummary{},
	}
	for h := range data.HourlyData {
		data.HourlyData[h].Hour = h
	}
	dayIndex := make(map[string]int, days)
	for i := range data.DailyData {
		date := from.AddDate(0, 0, i).Format("2006-01-02")
		data.DailyData[i].Date = date
		dayIndex[date] = i
	}

	groups, err := NewGroupRepository(r.db).List(ctx)
	if err != nil {
		return nil, err
	}
	if !q.AllGroups() {
		filtered := groups[:0]
		for _, g := range groups {
			if g.ID == q.GroupID {
				filtered = append(filtered, g)
			}
		}
		groups = filtered
	}

	query := `
		SELECT c.group_id, c.agent_id, COALESCE(a.name, ''), c.clicked_at
		FROM click_events c
		LEFT JOIN agents a ON a.id = c.agent_id
		WHERE c.clicked_at >= ? AND c.clicked_at <= ?`
	args := []any{formatClickTime(from), formatClickTime(now)}
	if !q.AllGroups() {
		query += " AND c.group_id = ?"
		args = append(args, q.GroupID)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query clicks: %w", err)
	}
	defer rows.Close()

	groupClicks := make(map[string]int64)
	agentClicks := make(map[string]int64)
	agentNames := make(map[string]string)
	for rows.Next() {
		var groupID, agentID, agentName, clickedAt string
		if err := rows.Scan(&groupID, &agentID, &agentName, &clickedAt); err != nil {
			return nil, err
		}
		t, err := time.Parse(clickTimeLayout, clickedAt)
		if err != nil {
			return nil, fmt.Errorf("invalid click timestamp %q: %w", clickedAt, err)
		}
		i, ok := dayIndex[t.Format("2006-01-02")]
		if !ok {
			continue
		}

		data.TotalClicks++
		data.DailyData[i].Clicks++
		data.HourlyData[t.Hour()].Clicks++
		groupClicks[groupID]++
		agentClicks[agentID]++
		agentNames[agentID] = agentName
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for id, clicks := range agentClicks {
		data.AgentDistribution = append(data.AgentDistribution, models.NamedClicks{Name: agentNames[id], Clicks: clicks})
	}
	for _, g := range groups {
		clicks := groupClicks[g.ID]
		data.Groups = append(data.Groups, models.GroupSummary{
			ID:          g.ID,
			Name:        g.Name,
			Slug:        g.Slug,
			IsActive:    g.IsActive,
			Strategy:    g.Strategy,
			TotalClicks: clicks,
			AgentCount:  g.AgentCount,
		})
		if clicks > 0 {
			data.GroupDistribution = append(data.GroupDistribution, models.NamedClicks{Name: g.Name, Clicks: clicks})
		}
	}
	sortByClicks(data.AgentDistribution)
	sortByClicks(data.GroupDistribution)

	return data, nil
}

func sortByClicks(items []models.NamedClicks) {
	sort.SliceStable(items, func(i, j int) bool {
		if items[i].Clicks != items[j].Clicks {
			return items[i].Clicks > items[j].Clicks
		}
		return items[i].Name < items[j].Name
	})
}
