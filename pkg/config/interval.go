package config

import (
	"fmt"
	"time"

	"github.com/chrissnell/traitlag/pkg/namelist"
)

// Sources reported by ResolveOutputInterval.
const (
	SourceConfig        = "config"
	SourceParameterFile = "parameter-file"
	SourceDefault       = "default"
)

// ResolveOutputInterval returns the time between records. An explicit
// output_interval wins. Otherwise the parameter file is consulted, its value
// being in seconds. When that fails the default is returned together with
// the error so the caller can warn about it.
func (c *ConfigData) ResolveOutputInterval() (time.Duration, string, error) {
	if c.OutputInterval > 0 {
		return c.OutputInterval, SourceConfig, nil
	}
	if c.ParameterFile == "" {
		return DefaultOutputInterval, SourceDefault, nil
	}

	params, err := namelist.ParseFile(c.ParameterFile)
	if err != nil {
		return DefaultOutputInterval, SourceDefault, err
	}

	key := c.OutputIntervalKey
	if key == "" {
		key = DefaultOutputIntervalKey
	}
	d, _, err := params.FirstDuration(time.Second, key, FallbackIntervalKey)
	if err != nil {
		return DefaultOutputInterval, SourceDefault, err
	}
	if d <= 0 {
		return DefaultOutputInterval, SourceDefault, fmt.Errorf("%w: %s in %s is not positive", ErrInvalidConfig, key, c.ParameterFile)
	}
	return d, SourceParameterFile, nil
}
