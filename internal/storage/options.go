package storage

import (
	"time"

	"github.com/julianstephens/habitsync/internal/models"
)

// Options holds settings shared by every store backend
type Options struct {
	Now      func() time.Time
	Location *time.Location
}

type Option func(*Options)

// WithClock overrides the clock used for "today" and UpdatedAt bumps.
func WithClock(now func() time.Time) Option {
	return func(o *Options) {
		if now != nil {
			o.Now = now
		}
	}
}

// WithLocation sets the timezone that decides which calendar day "today" is.
func WithLocation(loc *time.Location) Option {
	return func(o *Options) {
		if loc != nil {
			o.Location = loc
		}
	}
}

func NewOptions(opts ...Option) Options {
	o := Options{
		Now:      time.Now,
		Location: time.Local,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Today returns the current epoch day in the configured location.
func (o Options) Today() models.EpochDay {
	return models.EpochDayOf(o.Now().In(o.Location))
}
