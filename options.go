// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package virtsched

import (
	"errors"

	"github.com/joeycumines/logiface"
)

// schedulerOptions holds configuration options for Scheduler creation.
type schedulerOptions struct {
	logger         *logiface.Logger[logiface.Event]
	startTime      Time
	capacity       int
	metricsEnabled bool
}

// --- Scheduler Options ---

// SchedulerOption configures a Scheduler instance.
type SchedulerOption interface {
	applyScheduler(*schedulerOptions) error
}

// schedulerOptionImpl implements SchedulerOption.
type schedulerOptionImpl struct {
	applySchedulerFunc func(*schedulerOptions) error
}

func (o *schedulerOptionImpl) applyScheduler(opts *schedulerOptions) error {
	return o.applySchedulerFunc(opts)
}

// WithLogger attaches a structured logger to the scheduler. The logger
// may be nil (the default), in which case logging is a no-op; logiface
// builders are nil-safe, so the disabled path costs a single check.
func WithLogger(logger *logiface.Logger[logiface.Event]) SchedulerOption {
	return &schedulerOptionImpl{func(opts *schedulerOptions) error {
		opts.logger = logger
		return nil
	}}
}

// WithStartTime sets the scheduler's initial virtual time. The default
// is zero.
func WithStartTime(t Time) SchedulerOption {
	return &schedulerOptionImpl{func(opts *schedulerOptions) error {
		opts.startTime = t
		return nil
	}}
}

// WithCapacity pre-sizes the slot store, generation table, free list,
// and ready queue for the expected number of concurrently scheduled
// events, avoiding growth reallocations on the hot path.
func WithCapacity(n int) SchedulerOption {
	return &schedulerOptionImpl{func(opts *schedulerOptions) error {
		if n < 0 {
			return errors.New("virtsched: capacity must not be negative")
		}
		opts.capacity = n
		return nil
	}}
}

// WithMetrics enables runtime metrics collection on the Scheduler.
// When enabled, counters can be read via Scheduler.Metrics().
// The overhead is a few integer increments per tick.
func WithMetrics(enabled bool) SchedulerOption {
	return &schedulerOptionImpl{func(opts *schedulerOptions) error {
		opts.metricsEnabled = enabled
		return nil
	}}
}

// resolveSchedulerOptions applies SchedulerOption instances to
// schedulerOptions.
func resolveSchedulerOptions(opts []SchedulerOption) (*schedulerOptions, error) {
	cfg := &schedulerOptions{}
	for _, opt := range opts {
		if opt == nil {
			continue // Skip nil options gracefully
		}
		if err := opt.applyScheduler(cfg); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}
