package eventlog

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Options tunes a Log. All zero-values are safe: DefaultOptions fills in
// sensible defaults and Open overlays only the fields that were set.
type Options struct {
	// MaxFrameSize is the largest serialized event payload, in bytes, that
	// the log will write or read. Length prefixes above this ceiling are
	// rejected as implausible rather than allocated.
	MaxFrameSize uint32 `yaml:"max_frame_size"`

	// DisableSidecar turns off the persisted index sidecar. The aggregate
	// index is then rebuilt by a full replay on every Open.
	DisableSidecar bool `yaml:"disable_sidecar"`
}

// DefaultOptions returns the canonical defaults.
func DefaultOptions() Options {
	return Options{
		MaxFrameSize:   16 << 20, // 16 MiB
		DisableSidecar: false,
	}
}

// LoadOptions reads a YAML options file at path and overlays it on top of
// DefaultOptions. A missing file returns the defaults without error, so a
// log can always be opened with no options file at all.
func LoadOptions(path string) (Options, error) {
	opts := DefaultOptions()

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return opts, nil
		}
		return Options{}, fmt.Errorf("eventlog: read options %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, &opts); err != nil {
		return Options{}, fmt.Errorf("eventlog: parse options %s: %w", path, err)
	}
	if err := opts.Validate(); err != nil {
		return Options{}, err
	}
	return opts, nil
}

// Validate checks that the options are within acceptable ranges.
func (o Options) Validate() error {
	if o.MaxFrameSize < frameOverhead {
		return fmt.Errorf("eventlog: max_frame_size must be at least %d bytes", frameOverhead)
	}
	return nil
}

// merge overlays the explicitly set fields of over onto o.
func (o Options) merge(over Options) Options {
	if over.MaxFrameSize > 0 {
		o.MaxFrameSize = over.MaxFrameSize
	}
	if over.DisableSidecar {
		o.DisableSidecar = true
	}
	return o
}
