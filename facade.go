package ingest

import (
	"fmt"

	ingestcommand "github.com/goliatone/go-ingest/command"
	ingestquery "github.com/goliatone/go-ingest/query"
)

// CommandQueryPipeline is the full write+read surface the facade composes
// over. *pipeline.Pipeline satisfies it.
type CommandQueryPipeline interface {
	ingestcommand.MutatingPipeline
	ingestquery.EventReader
	ingestquery.HealthReader
}

type Commands struct {
	Ingest         *ingestcommand.IngestCommand
	RetryNow       *ingestcommand.RetryNowCommand
	PurgeSucceeded *ingestcommand.PurgeSucceededCommand
	ReplaySource   *ingestcommand.ReplaySourceCommand
	MarkEventDead  *ingestcommand.MarkEventDeadCommand
}

type Queries struct {
	GetEvent  *ingestquery.GetEventQuery
	ListDead  *ingestquery.ListDeadQuery
	GetHealth *ingestquery.GetHealthQuery
}

type Facade struct {
	pipeline CommandQueryPipeline
	commands Commands
	queries  Queries
}

type FacadeOption func(*facadeOptions)

type facadeOptions struct {
	healthReader ingestquery.HealthReader
}

// WithHealthReader overrides where the health query samples from, typically
// an aggregating monitor in front of several pipelines.
func WithHealthReader(reader ingestquery.HealthReader) FacadeOption {
	return func(options *facadeOptions) {
		options.healthReader = reader
	}
}

func NewFacade(p CommandQueryPipeline, opts ...FacadeOption) (*Facade, error) {
	if p == nil {
		return nil, fmt.Errorf("ingest: command/query pipeline is required")
	}
	cfg := facadeOptions{}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(&cfg)
	}

	health := cfg.healthReader
	if health == nil {
		health = p
	}

	facade := &Facade{pipeline: p}
	facade.commands = Commands{
		Ingest:         ingestcommand.NewIngestCommand(p),
		RetryNow:       ingestcommand.NewRetryNowCommand(p),
		PurgeSucceeded: ingestcommand.NewPurgeSucceededCommand(p),
		ReplaySource:   ingestcommand.NewReplaySourceCommand(p),
		MarkEventDead:  ingestcommand.NewMarkEventDeadCommand(p),
	}
	facade.queries = Queries{
		GetEvent:  ingestquery.NewGetEventQuery(p),
		ListDead:  ingestquery.NewListDeadQuery(p),
		GetHealth: ingestquery.NewGetHealthQuery(health),
	}

	return facade, nil
}

func (f *Facade) Commands() Commands {
	if f == nil {
		return Commands{}
	}
	return f.commands
}

func (f *Facade) Queries() Queries {
	if f == nil {
		return Queries{}
	}
	return f.queries
}

func (f *Facade) Pipeline() CommandQueryPipeline {
	if f == nil {
		return nil
	}
	return f.pipeline
}
