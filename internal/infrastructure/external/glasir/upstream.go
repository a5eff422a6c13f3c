package glasir

import (
	"context"
	"log/slog"

	"github.com/glasir-hub/glasir-sync-api/internal/domain/timetable"
)

// Connector opens one authenticated upstream session per cookie set. The
// sync service calls it at request scope: every connect builds a fetcher
// carrying exactly the caller's cookies and bootstraps the lname token.
type Connector struct {
	config FetcherConfig
	logger *slog.Logger
}

// NewConnector creates a connector from the shared fetcher configuration.
func NewConnector(config FetcherConfig, logger *slog.Logger) *Connector {
	if logger == nil {
		logger = slog.Default()
	}
	return &Connector{config: config, logger: logger}
}

// Connect builds a cookie-scoped fetcher, bootstraps the session, and
// returns the extractor plus the landing page HTML. The extractor owns
// the fetcher; Close releases it.
func (c *Connector) Connect(ctx context.Context, cookies []timetable.Cookie) (*Extractor, string, error) {
	fetcher, err := NewFetcher(c.config, cookies)
	if err != nil {
		return nil, "", err
	}

	extractor, pageHTML, err := Bootstrap(ctx, fetcher, c.logger)
	if err != nil {
		fetcher.Close()
		return nil, "", err
	}

	return extractor, pageHTML, nil
}
