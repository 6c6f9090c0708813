// Package watcher keeps an annotation index current while sources change.
//
// A Watcher follows a module tree with fsnotify, falling back to polling
// where fsnotify cannot be used (network mounts, some container volumes).
// Events are filtered with the same rules the build scanner applies, so
// only Go sources, go.mod and .gitignore files are reported, and bursts
// are coalesced by a Debouncer before being emitted as one batch.
//
// Rebuild consumes those batches and runs one incremental build per
// batch:
//
//	w, err := watcher.New(watcher.Options{Scanner: b.Scanner(), Scan: *b.ScanOptions()})
//	if err != nil {
//	    return err
//	}
//	defer w.Stop()
//
//	go func() { _ = w.Start(ctx, b.Root()) }()
//	return watcher.Rebuild(ctx, w, b, report)
package watcher
