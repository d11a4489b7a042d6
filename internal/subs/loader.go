package subs

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Loader reads the layered subscription documents and produces a canonical
// table. The layers merge in order (basestation, then group, then mission),
// a later layer extending or overriding the earlier ones per Merge. Layers
// whose file does not exist are skipped.
//
// The loader holds no state between loads: the dispatcher calls Load once per
// event so live edits to the documents take effect on the next event.
type Loader struct {
	paths         []string
	allowOverride bool
	logger        *slog.Logger
}

// NewLoader creates a loader over the given layer paths, earliest layer
// first.
func NewLoader(paths []string, allowOverride bool, logger *slog.Logger) *Loader {
	return &Loader{
		paths:         paths,
		allowOverride: allowOverride,
		logger:        logger.With(slog.String("component", "subs")),
	}
}

// Load merges the layers and canonicalizes the result. No layer files at all
// yields an empty table, not an error: a mission with no subscribers is
// legal.
func (l *Loader) Load() (*Table, error) {
	k := koanf.New(".")

	merge := koanf.WithMergeFunc(func(src, dest map[string]any) error {
		return Merge(dest, src, l.allowOverride)
	})

	for _, path := range l.paths {
		if path == "" {
			continue
		}
		if err := k.Load(file.Provider(path), yaml.Parser(), merge); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				l.logger.Debug("subscription layer absent", slog.String("path", path))
				continue
			}
			return nil, fmt.Errorf("load subscription layer %s: %w", path, err)
		}
		l.logger.Debug("subscription layer loaded", slog.String("path", path))
	}

	return Canonicalize(k.Raw(), l.logger)
}
