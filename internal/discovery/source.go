// Package discovery collects job postings from external boundaries and
// normalizes them into the canonical Posting shape. Each collaborator
// implements Source; failures at one source never abort the others.
package discovery

import (
	"context"

	"github.com/mitchellh/mapstructure"
	"go.uber.org/zap"

	"github.com/mhall-io/jobscout/internal/posting"
)

// Source is one discovery collaborator.
type Source interface {
	Name() string
	Discover(ctx context.Context) ([]*posting.Posting, error)
}

// CollectAll runs every source in order and returns the merged postings.
// A failing source is logged and skipped so one broken board does not cost
// the whole run.
func CollectAll(ctx context.Context, sources []Source, logger *zap.Logger) *posting.Postings {
	all := &posting.Postings{}

	for _, src := range sources {
		found, err := src.Discover(ctx)
		if err != nil {
			logger.Warn("discovery source failed",
				zap.String("source", src.Name()),
				zap.Error(err),
			)
			continue
		}

		logger.Info("discovery source finished",
			zap.String("source", src.Name()),
			zap.Int("postings", len(found)),
		)
		all.Append(found...)
	}

	return all
}

// decodeItems maps loosely typed API payloads onto a typed target using the
// json tag names.
func decodeItems(items any, target any) error {
	cfg := &mapstructure.DecoderConfig{
		Metadata: nil,
		Result:   target,
		TagName:  "json",
	}
	decoder, err := mapstructure.NewDecoder(cfg)
	if err != nil {
		return err
	}

	return decoder.Decode(items)
}
