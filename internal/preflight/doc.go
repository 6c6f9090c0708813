// Package preflight checks that annodex can build and query the index of
// a project before doing any work.
//
// The package validates:
//   - The project is a Go module
//   - Free disk space where the output is written (minimum 10MB)
//   - Write permissions on the output directory
//   - File descriptor limits, which bound watch mode
//   - The provenance ledger and its last build
//   - Every classpath entry, including s3:// buckets
//
// Use the Checker type to run all validations:
//
//	checker := preflight.New()
//	results := checker.RunAll(ctx, target)
//	if checker.HasCriticalFailures(results) {
//	    // Handle failures
//	}
package preflight
