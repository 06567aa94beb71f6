package rotation

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/foxzi/walink/internal/events"
	"github.com/foxzi/walink/internal/metrics"
	"github.com/foxzi/walink/internal/models"
	"github.com/foxzi/walink/internal/repository"
)

var (
	// ErrNoActiveAgents is returned when a group has no active member
	ErrNoActiveAgents = errors.New("no active agents in group")
	// ErrGroupInactive is returned when the group itself is disabled
	ErrGroupInactive = errors.New("group is inactive")
)

// DB opens the write transaction a selection runs in
type DB interface {
	BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error)
}

// Selection is the outcome of routing one click
type Selection struct {
	Group    *models.Group
	Agent    models.Agent
	Strategy models.Strategy
	Event    models.ClickEvent
	URL      string
}

// Options configures a Selector
type Options struct {
	DefaultStrategy models.Strategy
	Publisher       events.Publisher
	Source          Source
	PublishTimeout  time.Duration
	Logger          *slog.Logger
	Now             func() time.Time
}

// Selector picks the agent that receives the next click of a group
type Selector struct {
	db              DB
	defaultStrategy models.Strategy
	publisher       events.Publisher
	source          Source
	publishTimeout  time.Duration
	logger          *slog.Logger
	now             func() time.Time

	wg sync.WaitGroup
}

// NewSelector creates a selector over db
func NewSelector(db DB, opts Options) *Selector {
	if opts.Publisher == nil {
		opts.Publisher = events.Nop{}
	}
	if opts.Source == nil {
		opts.Source = NewSource(rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())))
	}
	if opts.PublishTimeout == 0 {
		opts.PublishTimeout = 5 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	return &Selector{
		db:              db,
		defaultStrategy: opts.DefaultStrategy,
		publisher:       opts.Publisher,
		source:          opts.Source,
		publishTimeout:  opts.PublishTimeout,
		logger:          opts.Logger.With("component", "rotation"),
		now:             opts.Now,
	}
}

// SelectBySlug routes a click on the public link of a group
func (s *Selector) SelectBySlug(ctx context.Context, slug string, meta models.ClickMeta) (*Selection, error) {
	return s.selectWith(ctx, meta, func(groups *repository.GroupRepository) (*models.Group, error) {
		return groups.GetBySlug(ctx, slug)
	})
}

// SelectByID routes a click for the group with the given id
func (s *Selector) SelectByID(ctx context.Context, id string, meta models.ClickMeta) (*Selection, error) {
	return s.selectWith(ctx, meta, func(groups *repository.GroupRepository) (*models.Group, error) {
		return groups.Get(ctx, id)
	})
}

func (s *Selector) selectWith(ctx context.Context, meta models.ClickMeta, load func(*repository.GroupRepository) (*models.Group, error)) (*Selection, error) {
	sel, err := s.selectTx(ctx, meta, load)
	if err != nil {
		metrics.IncSelectionErrors(errorReason(err))
		return nil, err
	}

	metrics.IncClicks(sel.Group.Slug, string(sel.Strategy))
	s.publish(sel, meta.RequestID)

	s.logger.Debug("click routed",
		"group", sel.Group.Slug,
		"agent_id", sel.Agent.ID,
		"strategy", sel.Strategy,
	)
	return sel, nil
}

// selectTx runs the whole selection in one write transaction. Nothing is
// recorded unless an agent was chosen.
func (s *Selector) selectTx(ctx context.Context, meta models.ClickMeta, load func(*repository.GroupRepository) (*models.Group, error)) (*Selection, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin selection: %w", err)
	}
	defer tx.Rollback()

	group, err := load(repository.NewGroupRepository(tx))
	if err != nil {
		return nil, err
	}
	if !group.IsActive {
		return nil, ErrGroupInactive
	}

	active := activeMembers(group.Agents)
	if len(active) == 0 {
		return nil, ErrNoActiveAgents
	}

	strategy := group.Strategy
	if !strategy.Valid() {
		settings, err := repository.NewSettingsRepository(tx, s.defaultStrategy).Get(ctx)
		if err != nil {
			return nil, err
		}
		strategy = settings.Strategy
	}

	cursors := repository.NewCursorRepository(tx)

	var agent models.Agent
	switch strategy {
	case models.StrategyRandom:
		agent = active[pickRandom(active, s.source)]
	case models.StrategyWeighted:
		agent = active[pickWeighted(active, s.source.Float64())]
	default:
		strategy = models.StrategyRoundRobin
		cursor, err := cursors.Get(ctx, group.ID)
		if err != nil {
			return nil, err
		}
		last := ""
		if cursor != nil {
			last = cursor.AgentID
		}
		agent = group.Agents[pickRoundRobin(group.Agents, last)]
	}

	if err := cursors.Set(ctx, group.ID, agent.ID, memberIndex(group.Agents, agent.ID)); err != nil {
		return nil, err
	}

	event := models.ClickEvent{
		GroupID:   group.ID,
		AgentID:   agent.ID,
		Strategy:  strategy,
		IP:        meta.IP,
		UserAgent: meta.UserAgent,
		Referer:   meta.Referer,
		ClickedAt: s.now(),
	}
	if err := repository.NewClickRepository(tx).Record(ctx, &event); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit selection: %w", err)
	}

	agent.ClickCount++
	group.ClickCount++

	return &Selection{
		Group:    group,
		Agent:    agent,
		Strategy: strategy,
		Event:    event,
		URL:      agent.ChatURL(group.Message),
	}, nil
}

// publish sends the click event in the background. Failures are logged.
func (s *Selector) publish(sel *Selection, requestID string) {
	event := events.ClickRecorded{
		Click:     sel.Event,
		GroupSlug: sel.Group.Slug,
		AgentName: sel.Agent.Name,
		URL:       sel.URL,
		RequestID: requestID,
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		ctx, cancel := context.WithTimeout(context.Background(), s.publishTimeout)
		defer cancel()

		if err := s.publisher.Publish(ctx, event); err != nil {
			metrics.IncEventsPublished("error")
			s.logger.Warn("failed to publish click event", "group", sel.Group.Slug, "click_id", sel.Event.ID, "error", err)
			return
		}
		metrics.IncEventsPublished("ok")
	}()
}

// Wait blocks until in-flight event publishes finish
func (s *Selector) Wait() {
	s.wg.Wait()
}

func memberIndex(members []models.Agent, agentID string) int {
	for i, m := range members {
		if m.ID == agentID {
			return i
		}
	}
	return -1
}

func errorReason(err error) string {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrGroupInactive):
		return "group_inactive"
	case errors.Is(err, ErrNoActiveAgents):
		return "no_active_agents"
	default:
		return "storage"
	}
}
