package errors

import (
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"strings"
)

// FormatForCLI renders an error for the terminal: the message, any
// details in key order, the suggestion and the code. With verbose set
// the underlying cause is shown too.
//
//	Error: cannot read META-INF/services/annotations/a.B
//	  path: /out/META-INF/services/annotations/a.B
//	  Hint: Check the output directory permissions
//	  Code: ERR_201_RESOURCE_READ
func FormatForCLI(err error, verbose bool) string {
	if err == nil {
		return ""
	}
	ae, ok := As(err)
	if !ok {
		ae = Wrap(ErrCodeInternal, err)
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Error: %s\n", ae.Message)
	for _, k := range slices.Sorted(maps.Keys(ae.Details)) {
		fmt.Fprintf(&sb, "  %s: %s\n", k, ae.Details[k])
	}
	if verbose && ae.Cause != nil && ae.Cause.Error() != ae.Message {
		fmt.Fprintf(&sb, "  Cause: %s\n", ae.Cause)
	}
	if ae.Suggestion != "" {
		fmt.Fprintf(&sb, "  Hint: %s\n", ae.Suggestion)
	}
	fmt.Fprintf(&sb, "  Code: %s\n", ae.Code)
	return sb.String()
}

// LogAttr returns err as one slog attribute. Coded errors become an
// "error" group with code, message, cause and details; others a plain
// "error" string.
func LogAttr(err error) slog.Attr {
	if err == nil {
		return slog.String("error", "")
	}
	ae, ok := As(err)
	if !ok {
		return slog.String("error", err.Error())
	}

	attrs := []any{
		slog.String("code", ae.Code),
		slog.String("message", ae.Message),
	}
	if ae.Cause != nil {
		attrs = append(attrs, slog.String("cause", ae.Cause.Error()))
	}
	for _, k := range slices.Sorted(maps.Keys(ae.Details)) {
		attrs = append(attrs, slog.String(k, ae.Details[k]))
	}
	if ae.Retryable {
		attrs = append(attrs, slog.Bool("retryable", true))
	}
	return slog.Group("error", attrs...)
}
