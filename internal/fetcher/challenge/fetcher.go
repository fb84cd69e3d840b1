package challenge

import (
	"context"

	"go.uber.org/zap"

	"github.com/JakeFAU/inc-submissions-harvester/internal/submission"
)

// Fetcher serves pages from a primary fetcher and re-fetches through a
// fallback when the detector flags a challenge.
type Fetcher struct {
	primary  submission.Fetcher
	fallback submission.Fetcher
	detector *Detector
	logger   *zap.Logger
}

// New wraps primary. A nil fallback disables promotion.
func New(primary, fallback submission.Fetcher, detector *Detector, logger *zap.Logger) *Fetcher {
	if detector == nil {
		detector = NewDetector(0)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Fetcher{
		primary:  primary,
		fallback: fallback,
		detector: detector,
		logger:   logger.Named("challenge"),
	}
}

// Fetch implements submission.Fetcher.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (submission.Page, error) {
	page, err := f.primary.Fetch(ctx, rawURL)
	if f.fallback == nil {
		return page, err
	}
	switch {
	case err != nil && f.detector.BlockedError(err):
		f.logger.Info("promoting to headless after blocked response", zap.String("url", rawURL), zap.Error(err))
	case err == nil && f.detector.Blocked(page):
		f.logger.Info("promoting to headless after challenge page", zap.String("url", rawURL))
	default:
		return page, err
	}
	rendered, rerr := f.fallback.Fetch(ctx, rawURL)
	if rerr != nil {
		f.logger.Warn("headless fetch failed", zap.String("url", rawURL), zap.Error(rerr))
		if err != nil {
			return submission.Page{}, err
		}
		return submission.Page{}, rerr
	}
	return rendered, nil
}
