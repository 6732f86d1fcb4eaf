package cluster

import (
	"fmt"
	"log/slog"
)

// Job is the cluster-and-summarise step for one entity type.
type Job struct {
	Config Config `yaml:"config"`
	Schema Schema `yaml:"schema"`
}

func TransitJob() Job {
	return Job{Config: TransitConfig(), Schema: TransitSchema()}
}

func SchoolJob() Job {
	return Job{Config: SchoolConfig(), Schema: SchoolSchema()}
}

type Result struct {
	Entity     string
	Points     []ReferencePoint
	Assignment Assignment
	Summaries  []Summary
	Table      *SummaryTable
}

// Run selects clusters for points and aggregates them into a summary table.
func (j Job) Run(points []ReferencePoint, logger *slog.Logger) (*Result, error) {
	selector := NewSelector(j.Config, logger)
	assignment, err := selector.Select(points)
	if err != nil {
		return nil, fmt.Errorf("failed to select %s clusters: %w", j.Schema.Entity, err)
	}

	agg := NewAggregator(j.Schema)
	summaries, err := agg.Summarize(points, assignment.Labels)
	if err != nil {
		return nil, fmt.Errorf("failed to summarise %s clusters: %w", j.Schema.Entity, err)
	}

	return &Result{
		Entity:     j.Schema.Entity,
		Points:     points,
		Assignment: assignment,
		Summaries:  summaries,
		Table:      agg.Table(summaries),
	}, nil
}
