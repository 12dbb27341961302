package parser

import (
	"context"
	"encoding/json"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/zatekoja/medical-mirrors/internal/domain/entities"
	apperrors "github.com/zatekoja/medical-mirrors/pkg/errors"
)

// DefaultChunkSize is the number of array entries per unit when a single
// large file is split.
const DefaultChunkSize = 1000

// Unit is one independent piece of parse work: a whole file, or a slice of
// the entries of one large JSON array file.
type Unit struct {
	Format  string
	Path    string
	Entries []json.RawMessage
	Start   int
}

// Name identifies the unit in logs and failure reports.
func (u Unit) Name() string {
	if u.Entries == nil {
		return u.Path
	}
	return fmt.Sprintf("%s[%d:%d]", u.Path, u.Start, u.Start+len(u.Entries))
}

// ParseFunc converts one unit into records. It must not share mutable state
// with other invocations. skipped counts entries without a natural key.
type ParseFunc func(u Unit) (records []entities.Record, skipped int, err error)

// ParseFailure attributes an error to the unit that produced it.
type ParseFailure struct {
	Unit string
	Err  error
}

// Result aggregates the output of every unit. Record order is unspecified.
type Result struct {
	Records  []entities.Record
	Skipped  int
	Units    int
	Failures []ParseFailure
	Duration time.Duration
}

// Pool runs parse units on a fixed set of worker goroutines.
type Pool struct {
	workers   int
	chunkSize int
	logger    zerolog.Logger
}

// NewPool creates a pool. Non-positive sizes fall back to one worker and
// DefaultChunkSize.
func NewPool(workers, chunkSize int, logger zerolog.Logger) *Pool {
	if workers < 1 {
		workers = 1
	}
	if chunkSize < 1 {
		chunkSize = DefaultChunkSize
	}
	return &Pool{
		workers:   workers,
		chunkSize: chunkSize,
		logger:    logger.With().Str("component", "parser").Logger(),
	}
}

// Workers returns the pool size.
func (p *Pool) Workers() int {
	return p.workers
}

// ParseFiles parses paths with the named format. Many files are dispatched one
// per unit; a single JSON array file is split into chunks instead.
func (p *Pool) ParseFiles(ctx context.Context, format string, paths []string) (*Result, error) {
	f, ok := Lookup(format)
	if !ok {
		return nil, apperrors.NewValidationError(fmt.Sprintf("unknown parser format %q", format))
	}

	units, planFailures := p.plan(f, paths)
	result := p.Run(ctx, units, f.parseUnit)
	result.Failures = append(planFailures, result.Failures...)
	result.Units += len(planFailures)
	return result, nil
}

func (p *Pool) plan(f *Format, paths []string) ([]Unit, []ParseFailure) {
	if len(paths) != 1 || f.Entry == nil {
		units := make([]Unit, 0, len(paths))
		for _, path := range paths {
			units = append(units, Unit{Format: f.Name, Path: path})
		}
		return units, nil
	}

	path := paths[0]
	entries, err := readEntries(path, f.ArrayPaths)
	if err != nil {
		p.logger.Error().Err(err).Str("file", path).Msg("failed to read entries")
		return nil, []ParseFailure{{Unit: path, Err: apperrors.NewParseError("read "+path, err)}}
	}
	units := make([]Unit, 0, len(entries)/p.chunkSize+1)
	for start := 0; start < len(entries); start += p.chunkSize {
		end := start + p.chunkSize
		if end > len(entries) {
			end = len(entries)
		}
		units = append(units, Unit{Format: f.Name, Path: path, Entries: entries[start:end], Start: start})
	}
	return units, nil
}

type unitOutput struct {
	unit    Unit
	records []entities.Record
	skipped int
	err     error
}

// Run executes fn over units with the pool's workers. A failing or panicking
// unit is recorded in Result.Failures and never stops the others. Units not
// started before ctx is cancelled are reported as failures.
func (p *Pool) Run(ctx context.Context, units []Unit, fn ParseFunc) *Result {
	start := time.Now()
	result := &Result{Units: len(units)}

	jobs := make(chan Unit)
	outputs := make(chan unitOutput, p.workers)

	var wg sync.WaitGroup
	for i := 0; i < p.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for u := range jobs {
				records, skipped, err := safeParse(fn, u)
				outputs <- unitOutput{unit: u, records: records, skipped: skipped, err: err}
			}
		}()
	}

	go func() {
		defer close(jobs)
		for i, u := range units {
			select {
			case <-ctx.Done():
				for _, rest := range units[i:] {
					outputs <- unitOutput{unit: rest, err: ctx.Err()}
				}
				return
			case jobs <- u:
			}
		}
	}()

	go func() {
		wg.Wait()
		close(outputs)
	}()

	for out := range outputs {
		if out.err != nil {
			p.logger.Error().Err(out.err).Str("unit", out.unit.Name()).Msg("parse unit failed")
			result.Failures = append(result.Failures, ParseFailure{Unit: out.unit.Name(), Err: out.err})
		}
		result.Records = append(result.Records, out.records...)
		result.Skipped += out.skipped
	}

	result.Duration = time.Since(start)
	p.logger.Info().
		Int("units", result.Units).
		Int("records", len(result.Records)).
		Int("skipped", result.Skipped).
		Int("failures", len(result.Failures)).
		Dur("duration", result.Duration).
		Msg("parse complete")
	return result
}

func safeParse(fn ParseFunc, u Unit) (records []entities.Record, skipped int, err error) {
	defer func() {
		if r := recover(); r != nil {
			records, skipped = nil, 0
			err = apperrors.NewParseError(fmt.Sprintf("panic parsing %s: %v", u.Name(), r), fmt.Errorf("%s", debug.Stack()))
		}
	}()
	records, skipped, err = fn(u)
	if err != nil && !apperrors.IsType(err, apperrors.ErrorTypeParse) {
		err = apperrors.NewParseError("parse "+u.Name(), err)
	}
	return records, skipped, err
}
