// Copyright 2025 dacapoday
// SPDX-License-Identifier: Apache-2.0

package pagestore

import "log/slog"

// Options configures Open. The zero value is not directly usable;
// call DefaultOptions and override fields, or use With* functional
// options.
type Options struct {
	// PageSize is the fixed per-file page size. Must be one of
	// {256, 512, 1024, 2048, 4096, 8192, 16384, 32768}.
	PageSize int

	// CacheSize is the soft limit on the number of decoded blocks kept
	// in the two-tier cache before clean entries are evicted.
	CacheSize int

	// Create allows Open to initialize an empty file with a fresh
	// root page when the file is empty. If false, opening an empty
	// file fails.
	Create bool

	// Logger receives structured diagnostics for Open, Save, Close,
	// and free-list reclaim events. A nil Logger disables logging.
	Logger *slog.Logger
}

const defaultPageSize = 4096

// DefaultOptions returns the options implied by the store's
// programmatic surface: a 4096-byte page, an ~8 MiB cache budget, file
// creation allowed, and no logging.
func DefaultOptions() Options {
	return Options{
		PageSize:  defaultPageSize,
		CacheSize: cacheSizeFor(defaultPageSize),
		Create:    true,
	}
}

func cacheSizeFor(pageSize int) int {
	const budget = 8 << 20 // 8 MiB
	n := budget / pageSize
	if n < 1 {
		n = 1
	}
	return n
}

// Option mutates Options in place; see WithPageSize, WithCacheSize,
// WithLogger.
type Option func(*Options)

// WithPageSize overrides PageSize and recomputes the default
// CacheSize budget for it, unless WithCacheSize is applied afterwards.
func WithPageSize(pageSize int) Option {
	return func(o *Options) {
		o.PageSize = pageSize
		o.CacheSize = cacheSizeFor(pageSize)
	}
}

// WithCacheSize overrides CacheSize.
func WithCacheSize(cacheSize int) Option {
	return func(o *Options) { o.CacheSize = cacheSize }
}

// WithCreate overrides Create.
func WithCreate(create bool) Option {
	return func(o *Options) { o.Create = create }
}

// WithLogger installs a structured logger for Open/Save/Close and
// allocator diagnostics.
func WithLogger(logger *slog.Logger) Option {
	return func(o *Options) { o.Logger = logger }
}

func resolveOptions(opts []Option) Options {
	o := DefaultOptions()
	for _, apply := range opts {
		apply(&o)
	}
	return o
}
