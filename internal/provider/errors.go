// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package provider

import "fmt"

// ErrorKind classifies a provider failure per spec §7.
type ErrorKind int

const (
	ErrorKindUnknown ErrorKind = iota
	ErrorKindFormatDecode
	ErrorKindTransient
	ErrorKindPermanent
	ErrorKindStoreFailure
	ErrorKindInvariantViolation
)

// ProviderError wraps an underlying error with its classification so
// callers (scheduler, audio bridge) can branch on retryability without
// string-matching.
type ProviderError struct {
	Kind    ErrorKind
	Status  int // HTTP status if applicable, 0 otherwise
	Message string
	Err     error
}

func (e *ProviderError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *ProviderError) Unwrap() error { return e.Err }

// Retryable reports whether the failure should be retried (spec §7):
// timeouts, 5xx, and 429 are transient; 4xx other than 429 and missing
// credentials are permanent.
func (e *ProviderError) Retryable() bool {
	switch e.Kind {
	case ErrorKindTransient, ErrorKindStoreFailure:
		return true
	default:
		return false
	}
}

// ClassifyHTTPStatus maps a provider HTTP status code to an ErrorKind,
// per spec §4.2 ("Map provider HTTP status 429 or 5xx to retryable
// failures; 4xx other than 429 non-retryable").
func ClassifyHTTPStatus(status int) ErrorKind {
	switch {
	case status == 429:
		return ErrorKindTransient
	case status >= 500:
		return ErrorKindTransient
	case status >= 400:
		return ErrorKindPermanent
	default:
		return ErrorKindUnknown
	}
}
