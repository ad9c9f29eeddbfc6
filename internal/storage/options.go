package storage

import "time"

// Options holds settings shared by every backend.
type Options struct {
	Now func() time.Time
	// ServiceKey maps a service display name to a catalog key. Only the
	// JSON store uses it, for unversioned files that store display names.
	ServiceKey func(name string) (string, bool)
}

type Option func(*Options)

// WithClock replaces the time source used for created_at and cancelled_at.
func WithClock(now func() time.Time) Option {
	return func(o *Options) {
		if now != nil {
			o.Now = now
		}
	}
}

// WithServiceNames sets the resolver for display names found in legacy files.
func WithServiceNames(resolve func(name string) (string, bool)) Option {
	return func(o *Options) { o.ServiceKey = resolve }
}

// BuildOptions applies opts over the defaults.
func BuildOptions(opts ...Option) Options {
	o := Options{Now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}
