package models

import (
	"fmt"
	"strings"
)

// Strategy is the algorithm used to pick the next agent within a group
type Strategy string

const (
	StrategyRoundRobin Strategy = "round-robin"
	StrategyRandom     Strategy = "random"
	StrategyWeighted   Strategy = "weighted"
)

// Strategies lists every valid strategy in display order
var Strategies = []Strategy{StrategyRoundRobin, StrategyRandom, StrategyWeighted}

// Valid reports whether s is one of the known strategies
func (s Strategy) Valid() bool {
	switch s {
	case StrategyRoundRobin, StrategyRandom, StrategyWeighted:
		return true
	}
	return false
}

// ParseStrategy validates a raw strategy value
func ParseStrategy(raw string) (Strategy, error) {
	s := Strategy(strings.TrimSpace(raw))
	if s == "" {
		return "", &ValidationError{Field: "strategy", Message: "strategy is required"}
	}
	if !s.Valid() {
		return "", &ValidationError{
			Field:   "strategy",
			Message: fmt.Sprintf("invalid strategy %q: must be one of round-robin, random, weighted", raw),
		}
	}
	return s, nil
}

// ValidationError is returned when input fails validation before persistence
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}
