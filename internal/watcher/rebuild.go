package watcher

import (
	"context"
	stderrors "errors"
	"log/slog"

	"github.com/Aman-CERP/annodex/internal/build"
	"github.com/Aman-CERP/annodex/internal/errors"
)

// Builder runs index builds.
type Builder interface {
	Build(ctx context.Context, force bool) (*build.Result, error)
}

// ReportFunc receives the outcome of each build run by Rebuild. Watcher
// errors arrive with a nil result.
type ReportFunc func(batch []FileEvent, res *build.Result, err error)

// Rebuild runs one build per batch from src until ctx is cancelled, the
// source stops, or a build fails fatally. A batch holding a go.mod
// change forces a full build.
func Rebuild(ctx context.Context, src Source, b Builder, report ReportFunc) error {
	if report == nil {
		report = func([]FileEvent, *build.Result, error) {}
	}
	events, errs := src.Events(), src.Errors()
	for events != nil {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			report(nil, nil, err)
		case batch, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			res, err := b.Build(ctx, needsFullBuild(batch))
			report(batch, res, err)
			if err == nil {
				continue
			}
			if stderrors.Is(err, context.Canceled) || stderrors.Is(err, context.DeadlineExceeded) {
				return err
			}
			if errors.IsFatal(err) {
				return err
			}
		}
	}
	return nil
}

func needsFullBuild(batch []FileEvent) bool {
	for _, e := range batch {
		if e.Operation == OpModuleChange {
			return true
		}
	}
	return false
}

// LogReport returns a ReportFunc logging every outcome to logger.
func LogReport(logger *slog.Logger) ReportFunc {
	return func(batch []FileEvent, res *build.Result, err error) {
		switch {
		case err != nil:
			logger.Error("rebuild failed", slog.Int("events", len(batch)), errors.LogAttr(err))
		case res != nil:
			logger.Info("rebuilt",
				slog.Int("events", len(batch)),
				slog.String("mode", res.Mode),
				slog.Int("changed", res.Changed),
				slog.Int("deleted", res.Deleted),
				slog.Int("errors", res.Errors))
		}
	}
}
