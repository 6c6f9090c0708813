// Package mcp implements the Model Context Protocol (MCP) server for annodex.
package mcp

import (
	"context"
	"errors"
	"fmt"

	anerrors "github.com/Aman-CERP/annodex/internal/errors"
	"github.com/Aman-CERP/annodex/pkg/index"
)

// Custom MCP error codes for annodex.
const (
	// ErrCodeIndexNotFound indicates no index resource names the annotation.
	ErrCodeIndexNotFound = -32001

	// ErrCodeStorageUnavailable indicates a classpath root could not be reached.
	ErrCodeStorageUnavailable = -32002

	// ErrCodeTimeout indicates the request timed out or was canceled.
	ErrCodeTimeout = -32003

	// ErrCodeResolution indicates an indexed element could not be loaded.
	ErrCodeResolution = -32004

	// Standard JSON-RPC error codes.
	ErrCodeMethodNotFound = -32601
	ErrCodeInvalidParams  = -32602
	ErrCodeInternalError  = -32603
)

// Sentinel errors for internal use.
var (
	// ErrIndexNotFound indicates no index resource names the annotation.
	ErrIndexNotFound = errors.New("index not found")

	// ErrToolNotFound indicates the requested tool does not exist.
	ErrToolNotFound = errors.New("tool not found")

	// ErrInvalidParams indicates invalid parameters were provided.
	ErrInvalidParams = errors.New("invalid parameters")

	// ErrResourceNotFound indicates the requested resource does not exist.
	ErrResourceNotFound = errors.New("resource not found")
)

// MCPError represents an MCP protocol error with code and message.
type MCPError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *MCPError) Error() string {
	return fmt.Sprintf("MCP error %d: %s", e.Code, e.Message)
}

// MapError converts internal errors to MCP errors.
func MapError(err error) *MCPError {
	if err == nil {
		return nil
	}

	var mcpErr *MCPError
	if errors.As(err, &mcpErr) {
		return mcpErr
	}

	// Context errors win over the codes of whatever they interrupted.
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return &MCPError{Code: ErrCodeTimeout, Message: "Request timed out."}
	case errors.Is(err, context.Canceled):
		return &MCPError{Code: ErrCodeTimeout, Message: "Request was canceled."}
	}

	if ae, ok := anerrors.As(err); ok {
		return mapAnnodexError(ae)
	}

	var linkErr *index.LinkageError
	switch {
	case errors.As(err, &linkErr):
		return &MCPError{Code: ErrCodeResolution, Message: linkErr.Error()}
	case errors.Is(err, ErrIndexNotFound):
		return &MCPError{
			Code:    ErrCodeIndexNotFound,
			Message: "Index not found. Run 'annodex index' first.",
		}
	case errors.Is(err, ErrToolNotFound):
		return &MCPError{Code: ErrCodeMethodNotFound, Message: "Tool not found."}
	case errors.Is(err, ErrInvalidParams):
		return &MCPError{Code: ErrCodeInvalidParams, Message: "Invalid parameters."}
	case errors.Is(err, ErrResourceNotFound):
		return &MCPError{Code: ErrCodeMethodNotFound, Message: "Resource not found."}
	default:
		return &MCPError{Code: ErrCodeInternalError, Message: "Internal server error."}
	}
}

// NewInvalidParamsError creates an error for invalid parameters with a custom message.
func NewInvalidParamsError(msg string) *MCPError {
	return &MCPError{
		Code:    ErrCodeInvalidParams,
		Message: msg,
	}
}

// NewMethodNotFoundError creates an error for unknown tools.
func NewMethodNotFoundError(name string) *MCPError {
	return &MCPError{
		Code:    ErrCodeMethodNotFound,
		Message: fmt.Sprintf("Tool '%s' not found.", name),
	}
}

// NewResourceNotFoundError creates an error for unknown resources.
func NewResourceNotFoundError(uri string) *MCPError {
	return &MCPError{
		Code:    ErrCodeMethodNotFound,
		Message: fmt.Sprintf("Resource '%s' not found.", uri),
	}
}

func mapAnnodexError(ae *anerrors.AnnodexError) *MCPError {
	message := ae.Message
	if ae.Suggestion != "" {
		message = fmt.Sprintf("%s %s", ae.Message, ae.Suggestion)
	}

	switch ae.Category {
	case anerrors.CategoryIO:
		switch ae.Code {
		case anerrors.ErrCodeStorageUnavailable, anerrors.ErrCodeResourceLock:
			return &MCPError{Code: ErrCodeStorageUnavailable, Message: message}
		case anerrors.ErrCodeLedgerCorrupt:
			return &MCPError{Code: ErrCodeIndexNotFound, Message: message}
		default:
			return &MCPError{Code: ErrCodeInternalError, Message: message}
		}
	case anerrors.CategoryResolution:
		return &MCPError{Code: ErrCodeResolution, Message: message}
	case anerrors.CategoryValidation:
		return &MCPError{Code: ErrCodeInvalidParams, Message: message}
	default: // Config, Internal and unknown
		return &MCPError{Code: ErrCodeInternalError, Message: message}
	}
}
