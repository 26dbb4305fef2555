package engine

import (
	"time"
)

const DefaultPageSize = 10

type Config struct {
	pageSize int
	now      func() time.Time
}

func NewEngineConfig(pageSize int) *Config {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	return &Config{
		pageSize: pageSize,
		now:      time.Now,
	}
}

// WithClock overrides the clock used for form validation.
func (c *Config) WithClock(now func() time.Time) *Config {
	c.now = now
	return c
}

func (c *Config) PageSize() int {
	return c.pageSize
}
