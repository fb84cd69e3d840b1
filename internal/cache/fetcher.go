package cache

import (
	"context"
	"net/http"

	"go.uber.org/zap"

	"github.com/JakeFAU/inc-submissions-harvester/internal/submission"
)

const (
	pageKeyPrefix = "page:"
	// finalURLKeyPrefix holds the post-redirect URL a body was served from.
	finalURLKeyPrefix = "pageurl:"
)

// Fetcher serves cached bodies and fills the cache from next on a miss.
// Cache failures are logged and never fail a fetch.
type Fetcher struct {
	next   submission.Fetcher
	store  *Store
	logger *zap.Logger
}

// NewFetcher wraps next with store.
func NewFetcher(next submission.Fetcher, store *Store, logger *zap.Logger) *Fetcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Fetcher{next: next, store: store, logger: logger.Named("cache")}
}

// Fetch implements submission.Fetcher.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (submission.Page, error) {
	key := pageKeyPrefix + rawURL
	body, ok, err := f.store.Get(key)
	if err != nil {
		f.logger.Warn("cache read failed", zap.String("url", rawURL), zap.Error(err))
	}
	if ok {
		finalURL := rawURL
		if u, found, uerr := f.store.Get(finalURLKeyPrefix + rawURL); uerr == nil && found && len(u) > 0 {
			finalURL = string(u)
		}
		return submission.Page{
			URL:        finalURL,
			StatusCode: http.StatusOK,
			Body:       body,
			FromCache:  true,
		}, nil
	}

	page, err := f.next.Fetch(ctx, rawURL)
	if err != nil {
		return page, err
	}
	finalURL := page.URL
	if finalURL == "" {
		finalURL = rawURL
	}
	if perr := f.store.Put(finalURLKeyPrefix+rawURL, []byte(finalURL)); perr != nil {
		f.logger.Warn("cache write failed", zap.String("url", rawURL), zap.Error(perr))
		return page, nil
	}
	if perr := f.store.Put(key, page.Body); perr != nil {
		f.logger.Warn("cache write failed", zap.String("url", rawURL), zap.Error(perr))
	}
	return page, nil
}
