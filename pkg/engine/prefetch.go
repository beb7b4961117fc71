package engine

import (
	"context"

	"github.com/charmbracelet/log"

	"github.com/wavedeck/wavedeck/internal/cache"
)

// Prefetcher warms the decode cache with files adjacent to the one being
// played, so arrowing to the next or previous sample starts instantly.
type Prefetcher struct {
	loader *cache.Loader
}

// Warm decodes each neighbor in the background. Results and errors are
// discarded; this is purely a cache side effect.
func (p *Prefetcher) Warm(neighbors []File) {
	for _, n := range neighbors {
		go func(f File) {
			if _, err := p.loader.Decode(context.Background(), f.Path); err != nil {
				log.Debug("neighbor prefetch failed", "path", f.Path, "error", err)
			}
		}(n)
	}
}
