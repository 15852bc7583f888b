package errorutil

import (
	"errors"
	"fmt"
	"net/http"
)

// Error codes for the ticket lifecycle taxonomy.
const (
	CodeNotATicketChannel     = "NOT_A_TICKET_CHANNEL"
	CodeNotConfigured         = "NOT_CONFIGURED"
	CodeUnauthorized          = "UNAUTHORIZED"
	CodeSelfClaimForbidden    = "SELF_CLAIM_FORBIDDEN"
	CodeAlreadyClaimed        = "ALREADY_CLAIMED"
	CodeMustBeClaimedFirst    = "MUST_BE_CLAIMED_FIRST"
	CodeNoOtherSupportMembers = "NO_OTHER_SUPPORT_MEMBERS"
	CodeTicketAlreadyOpen     = "TICKET_ALREADY_OPEN"
	CodeCaptureFailed         = "CAPTURE_FAILED"
	CodePersistenceError      = "PERSISTENCE_ERROR"
	CodeDeliveryFailed        = "DELIVERY_FAILED"
	CodeValidationFailed      = "VALIDATION_FAILED"
	CodeInternal              = "INTERNAL_ERROR"
)

// DomainError standardizes application errors.
type DomainError struct {
	Code       string
	Message    string
	HTTPStatus int
	Details    map[string]any
	Err        error
}

func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *DomainError) Unwrap() error {
	return e.Err
}

// NewDomainError constructs a DomainError.
func NewDomainError(code, message string, status int, details map[string]any) *DomainError {
	return &DomainError{Code: code, Message: message, HTTPStatus: status, Details: details}
}

func NewNotATicketChannel(channelName string) error {
	return NewDomainError(CodeNotATicketChannel, "this is not a ticket channel", http.StatusBadRequest,
		map[string]any{"channel_name": channelName})
}

func NewNotConfigured(workspaceID string) error {
	return NewDomainError(CodeNotConfigured, "ticket system is not configured for this workspace", http.StatusConflict,
		map[string]any{"workspace_id": workspaceID})
}

func NewUnauthorized(message string) error {
	return NewDomainError(CodeUnauthorized, message, http.StatusForbidden, nil)
}

func NewSelfClaimForbidden() error {
	return NewDomainError(CodeSelfClaimForbidden, "you cannot claim your own ticket", http.StatusForbidden, nil)
}

func NewAlreadyClaimed(claimerID string) error {
	return NewDomainError(CodeAlreadyClaimed, "ticket is already claimed", http.StatusConflict,
		map[string]any{"claimer_id": claimerID})
}

func NewMustBeClaimedFirst() error {
	return NewDomainError(CodeMustBeClaimedFirst, "ticket must be claimed before it can be forwarded", http.StatusConflict, nil)
}

func NewNoOtherSupportMembers() error {
	return NewDomainError(CodeNoOtherSupportMembers, "no other support members available", http.StatusConflict, nil)
}

func NewTicketAlreadyOpen(ticketName string) error {
	return NewDomainError(CodeTicketAlreadyOpen, "you already have an open ticket", http.StatusConflict,
		map[string]any{"ticket_name": ticketName})
}

func NewCaptureFailed(err error) error {
	return &DomainError{
		Code:       CodeCaptureFailed,
		Message:    "transcript capture failed",
		HTTPStatus: http.StatusBadGateway,
		Err:        err,
	}
}

func NewPersistenceError(err error) error {
	return &DomainError{
		Code:       CodePersistenceError,
		Message:    "persistence call failed",
		HTTPStatus: http.StatusServiceUnavailable,
		Err:        err,
	}
}

func NewDeliveryFailed(err error) error {
	return &DomainError{
		Code:       CodeDeliveryFailed,
		Message:    "transcript delivery failed",
		HTTPStatus: http.StatusBadGateway,
		Err:        err,
	}
}

func NewValidationError(message string, details map[string]any) error {
	return NewDomainError(CodeValidationFailed, message, http.StatusBadRequest, details)
}

func NewInternalError(err error) error {
	return &DomainError{
		Code:       CodeInternal,
		Message:    "internal server error",
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

// ToDomainError converts generic errors to DomainError.
func ToDomainError(err error) *DomainError {
	if err == nil {
		return nil
	}
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr
	}
	return &DomainError{
		Code:       CodeInternal,
		Message:    "internal server error",
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

// CodeOf returns the taxonomy code carried by err, or empty for nil/unknown.
func CodeOf(err error) string {
	if err == nil {
		return ""
	}
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Code
	}
	return ""
}

// HasCode reports whether err carries the given taxonomy code.
func HasCode(err error, code string) bool {
	return CodeOf(err) == code
}
