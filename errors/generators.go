package errors

import (
	"fmt"
)

// NewResourceNotFoundError returns a new ErrNotFound error with kind
// KindResourceNotFound and the given message.
func NewResourceNotFoundError(message string, details Details) error {
	return Error{
		Code:    ErrNotFound,
		Kind:    KindResourceNotFound,
		Message: message,
		Details: details,
	}
}

// NewUnknownTemplateError returns a new ErrNotFound error with kind
// KindUnknownTemplate for the template with the given name.
func NewUnknownTemplateError(templateName string) error {
	return Error{
		Code:    ErrNotFound,
		Kind:    KindUnknownTemplate,
		Message: fmt.Sprintf("unknown template: %s", templateName),
		Details: Details{"template": templateName},
	}
}

// NewUnknownMatchError returns a new ErrNotFound error with kind
// KindUnknownMatch.
func NewUnknownMatchError(match string) error {
	return Error{
		Code:    ErrNotFound,
		Kind:    KindUnknownMatch,
		Message: fmt.Sprintf("unknown match: %s", match),
		Details: Details{"match": match},
	}
}

// NewMatchFullError returns a new ErrCapacity error with kind KindMatchFull.
func NewMatchFullError(match string, maxPlayers int) error {
	return Error{
		Code:    ErrCapacity,
		Kind:    KindMatchFull,
		Message: fmt.Sprintf("match %s is full", match),
		Details: Details{
			"match":       match,
			"max_players": maxPlayers,
		},
	}
}

// NewProvisionFailureError returns a new ErrInternal error with kind
// KindProvisionFailure.
func NewProvisionFailureError(err error, message string, details Details) error {
	return Error{
		Code:    ErrInternal,
		Kind:    KindProvisionFailure,
		Err:     err,
		Message: message,
		Details: details,
	}
}

// NewInternalError returns a new ErrInternal error with kind KindUnexpected.
func NewInternalError(message string, details Details) error {
	return Error{
		Code:    ErrInternal,
		Kind:    KindUnexpected,
		Message: message,
		Details: details,
	}
}

// NewInternalErrorFromErr returns a new ErrInternal error with kind
// KindUnexpected and the given original error.
func NewInternalErrorFromErr(err error, message string, details Details) error {
	return Error{
		Code:    ErrInternal,
		Kind:    KindUnexpected,
		Err:     err,
		Message: message,
		Details: details,
	}
}

// NewContextAbortedError returns a new ErrAborted error with kind
// KindContextAborted.
func NewContextAbortedError(currentOperation string) error {
	return Error{
		Code:    ErrAborted,
		Kind:    KindContextAborted,
		Message: fmt.Sprintf("context aborted while %s", currentOperation),
		Details: Details{"currentOperation": currentOperation},
	}
}

// NewQueryToSQLError returns a new ErrInternal error with kind KindDB for
// failed query building.
func NewQueryToSQLError(err error, details Details) error {
	return Error{
		Code:    ErrInternal,
		Kind:    KindDB,
		Err:     err,
		Message: "query to sql",
		Details: details,
	}
}

// NewExecQueryError returns a new ErrInternal error with kind KindDB for a
// failed query execution.
func NewExecQueryError(err error, message string, query string) error {
	return Error{
		Code:    ErrInternal,
		Kind:    KindDB,
		Err:     err,
		Message: message,
		Details: Details{"query": query},
	}
}

// NewScanDBRowError returns a new ErrInternal error with kind KindDB for a
// failed row scan.
func NewScanDBRowError(err error, message string, query string) error {
	return Error{
		Code:    ErrInternal,
		Kind:    KindDB,
		Err:     err,
		Message: message,
		Details: Details{"query": query},
	}
}

// NewDBTxBeginError returns a new ErrInternal error with kind KindDB.
func NewDBTxBeginError(err error) error {
	return Error{
		Code:    ErrInternal,
		Kind:    KindDB,
		Err:     err,
		Message: "begin tx",
	}
}

// NewDBTxCommitError returns a new ErrInternal error with kind KindDB.
func NewDBTxCommitError(err error) error {
	return Error{
		Code:    ErrInternal,
		Kind:    KindDB,
		Err:     err,
		Message: "commit tx",
	}
}
