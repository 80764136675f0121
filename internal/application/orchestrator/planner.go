package orchestrator

import (
	"errors"
	"fmt"
	"time"

	"github.com/sellerpulse/backend/internal/domain/ingestion"
	"github.com/sellerpulse/backend/internal/domain/source"
)

// PlanUnit pairs a planned execution with its durable state record
type PlanUnit struct {
	Execution ingestion.Execution
	State     *ingestion.SourceExecutionState
}

// Plan is the full set of units for one event, grouped per marketplace in
// source priority order. Within a marketplace only the unit at order index
// zero is released initially; each completed unit releases its successor.
type Plan struct {
	Units []PlanUnit
}

// FirstUnits returns the order-index-zero unit of every marketplace
func (p *Plan) FirstUnits() []PlanUnit {
	out := make([]PlanUnit, 0)
	for _, u := range p.Units {
		if u.Execution.OrderIndex == 0 {
			out = append(out, u)
		}
	}
	return out
}

// Marketplaces returns the distinct marketplaces covered by the plan
func (p *Plan) Marketplaces() []string {
	seen := make(map[string]bool)
	out := make([]string, 0)
	for _, u := range p.Units {
		mp := u.Execution.Marketplace.String()
		if !seen[mp] {
			seen[mp] = true
			out = append(out, mp)
		}
	}
	return out
}

// Planner expands one ingestion event into per-marketplace execution chains
// using the source registry. Registration order within a marketplace is the
// execution order.
type Planner struct {
	registry    *source.Registry
	maxAttempts int
}

// NewPlanner creates a planner backed by the given source registry
func NewPlanner(registry *source.Registry, maxAttempts int) *Planner {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	return &Planner{registry: registry, maxAttempts: maxAttempts}
}

// BuildPlan expands the event into units for every active marketplace.
// Marketplaces with no registered sources are skipped; a plan covering no
// marketplace at all fails with source.ErrNoSourcesForEvent.
func (p *Planner) BuildPlan(ev ingestion.Event, marketplaces []source.Marketplace, now time.Time) (*Plan, error) {
	plan := &Plan{}

	for _, mp := range marketplaces {
		sources, err := p.registry.FindSources(ev.EventType, mp)
		if err != nil {
			if errors.Is(err, source.ErrNoSourcesForEvent) {
				continue
			}
			return nil, err
		}

		for idx, src := range sources {
			execution, err := ingestion.NewExecution(ev.ID, mp, src.ID(), idx, now)
			if err != nil {
				return nil, fmt.Errorf("failed to plan execution for %s/%s: %w", mp, src.ID(), err)
			}
			state := ingestion.NewSourceExecutionState(ev.ID, ev.AccountID, ev.EventType, mp, src.ID(), p.maxAttempts, now)
			plan.Units = append(plan.Units, PlanUnit{Execution: execution, State: state})
		}
	}

	if len(plan.Units) == 0 {
		return nil, source.ErrNoSourcesForEvent
	}
	return plan, nil
}
