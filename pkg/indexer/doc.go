// Package indexer implements the write path of annodex: it turns the
// annotated declarations of a build into index resources.
//
// # Architecture
//
//	┌─────────────────┐
//	│   Build host    │  (parses sources, owns rounds)
//	└────────┬────────┘
//	         │ Round
//	┌────────▼────────┐
//	│    Processor    │  ← This package
//	└────────┬────────┘
//	         │ Filer
//	┌────────▼────────┐
//	│ Index resources │  META-INF/services/annotations/<identity>
//	└─────────────────┘
//
// A build invokes [Processor.Process] once per round with the same [Uses]
// map. Non-final rounds collect locations: for every annotation type in
// the round that carries the indexable marker, the processor opens a
// [Use], seeds it from the resource already on disk (incremental builds),
// and adds the location of every declaration annotated with it. The
// final round, signalled by [Round.ProcessingOver], serializes every use
// in identity order, unless the host reported errors, in which case
// nothing is written.
//
// # Usage
//
//	p, err := indexer.NewProcessor(filer, messager)
//	if err != nil {
//	    return err
//	}
//	uses := indexer.Uses{}
//	_ = p.Process(ctx, round, uses)
//	_ = p.Process(ctx, finalRound, uses)
//
// # Failure handling
//
// Nothing in this package panics or returns errors for per-annotation
// failures. Unreadable existing resources abandon that annotation for the
// run, write failures skip that resource, and both are reported to the
// [Messager] as error diagnostics. Process only returns context errors.
//
// # Thread Safety
//
// A Processor holds no per-build state and may be shared. A Uses map
// belongs to one build and must not be used concurrently.
package indexer
