package fetch

import (
	"context"

	"github.com/cityscout/events-cli/internal/model"
)

// Fetcher retrieves a single URL and returns its content as plaintext
// suitable for extraction, plus the raw HTML when the strategy has it.
type Fetcher interface {
	Fetch(ctx context.Context, target string) (*model.Page, error)
	Name() string
	Supports(src model.Source) bool
}
