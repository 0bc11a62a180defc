package errors

import (
	"errors"
	"fmt"
	"time"
)

// ErrorType represents the type of error
type ErrorType string

const (
	// ErrorTypeNavigation represents page load or navigation failures
	ErrorTypeNavigation ErrorType = "navigation"
	// ErrorTypeSelectorTimeout represents DOM markers that never appeared
	ErrorTypeSelectorTimeout ErrorType = "selector_timeout"
	// ErrorTypeFetch represents in-page network call failures
	ErrorTypeFetch ErrorType = "fetch"
	// ErrorTypeRateLimit represents upstream rate limiting
	ErrorTypeRateLimit ErrorType = "rate_limit"
	// ErrorTypeParsing represents malformed upstream payloads
	ErrorTypeParsing ErrorType = "parsing"
	// ErrorTypeStoreRead represents failed lookups against the store
	ErrorTypeStoreRead ErrorType = "store_read"
	// ErrorTypeStoreWrite represents failed batch writes
	ErrorTypeStoreWrite ErrorType = "store_write"
	// ErrorTypeCache represents cache-related errors
	ErrorTypeCache ErrorType = "cache"
	// ErrorTypePublisher represents publisher-related errors
	ErrorTypePublisher ErrorType = "publisher"
	// ErrorTypeNotification represents failed alert deliveries
	ErrorTypeNotification ErrorType = "notification"
	// ErrorTypeConfiguration represents configuration errors
	ErrorTypeConfiguration ErrorType = "configuration"
)

// CrawlerError represents a pipeline error tied to the scope it happened in
type CrawlerError struct {
	Type    ErrorType
	Scope   string
	Message string
	Err     error
	Time    time.Time
}

// Error implements the error interface
func (e *CrawlerError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %s - %v", e.Type, e.Scope, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Type, e.Scope, e.Message)
}

// Unwrap returns the underlying error
func (e *CrawlerError) Unwrap() error {
	return e.Err
}

// IsRetryable returns true if the error is retryable
func (e *CrawlerError) IsRetryable() bool {
	switch e.Type {
	case ErrorTypeFetch, ErrorTypeNavigation, ErrorTypeRateLimit, ErrorTypeParsing:
		return true
	default:
		return false
	}
}

// New creates a new CrawlerError
func New(errType ErrorType, scope, message string, err error) *CrawlerError {
	return &CrawlerError{
		Type:    errType,
		Scope:   scope,
		Message: message,
		Err:     err,
		Time:    time.Now(),
	}
}

// NewNavigation creates a new navigation error
func NewNavigation(scope, message string, err error) *CrawlerError {
	return New(ErrorTypeNavigation, scope, message, err)
}

// NewSelectorTimeout creates a new selector timeout error
func NewSelectorTimeout(scope, selector string, err error) *CrawlerError {
	return New(ErrorTypeSelectorTimeout, scope, "selector never appeared: "+selector, err)
}

// NewFetch creates a new fetch error
func NewFetch(scope, message string, err error) *CrawlerError {
	return New(ErrorTypeFetch, scope, message, err)
}

// NewRateLimit creates a new rate limit error
func NewRateLimit(scope string, status int) *CrawlerError {
	return New(ErrorTypeRateLimit, scope, fmt.Sprintf("rate limited with status %d", status), nil)
}

// NewParsing creates a new parsing error
func NewParsing(scope, message string, err error) *CrawlerError {
	return New(ErrorTypeParsing, scope, message, err)
}

// NewStoreRead creates a new store read error
func NewStoreRead(table, message string, err error) *CrawlerError {
	return New(ErrorTypeStoreRead, table, message, err)
}

// NewStoreWrite creates a new store write error
func NewStoreWrite(table, message string, err error) *CrawlerError {
	return New(ErrorTypeStoreWrite, table, message, err)
}

// NewCache creates a new cache error
func NewCache(scope, message string, err error) *CrawlerError {
	return New(ErrorTypeCache, scope, message, err)
}

// NewPublisher creates a new publisher error
func NewPublisher(scope, message string, err error) *CrawlerError {
	return New(ErrorTypePublisher, scope, message, err)
}

// NewNotification creates a new notification error
func NewNotification(scope, message string, err error) *CrawlerError {
	return New(ErrorTypeNotification, scope, message, err)
}

// NewConfiguration creates a new configuration error
func NewConfiguration(message string, err error) *CrawlerError {
	return New(ErrorTypeConfiguration, "", message, err)
}

// Is reports whether err is a CrawlerError of the given type
func Is(err error, errType ErrorType) bool {
	var ce *CrawlerError
	if errors.As(err, &ce) {
		return ce.Type == errType
	}
	return false
}
