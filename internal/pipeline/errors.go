package pipeline

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/mattjoyce/hookserver/internal/allowlist"
	"github.com/mattjoyce/hookserver/internal/origin"
	"github.com/mattjoyce/hookserver/internal/signature"
)

// Kind classifies why a request was rejected.
type Kind int

const (
	KindInvalidOrigin Kind = iota + 1
	KindForbiddenOrigin
	KindUpstreamUnavailable
	KindMissingSignature
	KindMalformedSignature
	KindSignatureMismatch
	KindMissingEventHeader
	KindMissingDeliveryHeader
	KindMissingOrInvalidPayload
	KindHandlerFailed
	KindInternal
	// KindDuplicateHandler is a registration-time failure; it never appears in a Verdict.
	KindDuplicateHandler
)

var kindNames = map[Kind]string{
	KindInvalidOrigin:           "invalid_origin",
	KindForbiddenOrigin:         "forbidden_origin",
	KindUpstreamUnavailable:     "upstream_unavailable",
	KindMissingSignature:        "missing_signature",
	KindMalformedSignature:      "malformed_signature",
	KindSignatureMismatch:       "signature_mismatch",
	KindMissingEventHeader:      "missing_event_header",
	KindMissingDeliveryHeader:   "missing_delivery_header",
	KindMissingOrInvalidPayload: "missing_or_invalid_payload",
	KindHandlerFailed:           "handler_failed",
	KindInternal:                "internal",
	KindDuplicateHandler:        "duplicate_handler",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Response messages. Deliberately short: they go back to the provider verbatim.
const (
	MsgForbiddenOrigin = "Requests must originate from the webhook provider"
	MsgMissingSig      = "Missing HMAC signature"
	MsgMalformedSig    = "Malformed HMAC signature"
	MsgWrongSig        = "Wrong HMAC signature"
	MsgNoEvent         = "No hook given"
	MsgNoDelivery      = "No event GUID"
	MsgNoPayload       = "No payload data"
	MsgInternal        = "Internal server error"
)

// RejectError is the terminal error for a rejected request.
type RejectError struct {
	Kind    Kind
	Status  int
	Message string
	Err     error
}

func (e *RejectError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *RejectError) Unwrap() error { return e.Err }

func reject(kind Kind, status int, msg string, err error) *RejectError {
	return &RejectError{Kind: kind, Status: status, Message: msg, Err: err}
}

// classifyOrigin maps an origin.Validator error to a rejection.
func classifyOrigin(err error) *RejectError {
	switch {
	case errors.Is(err, allowlist.ErrUpstreamUnavailable):
		return reject(KindUpstreamUnavailable, http.StatusInternalServerError, MsgInternal, err)
	case errors.Is(err, origin.ErrInvalidOrigin):
		return reject(KindInvalidOrigin, http.StatusForbidden, MsgForbiddenOrigin, err)
	case errors.Is(err, origin.ErrForbiddenOrigin):
		return reject(KindForbiddenOrigin, http.StatusForbidden, MsgForbiddenOrigin, err)
	default:
		return reject(KindInternal, http.StatusInternalServerError, MsgInternal, err)
	}
}

// classifySignature maps a signature.Verifier error to a rejection.
func classifySignature(err error) *RejectError {
	switch {
	case errors.Is(err, signature.ErrMissingSignature):
		return reject(KindMissingSignature, http.StatusBadRequest, MsgMissingSig, err)
	case errors.Is(err, signature.ErrMalformedSignature),
		errors.Is(err, signature.ErrUnsupportedAlgorithm):
		return reject(KindMalformedSignature, http.StatusBadRequest, MsgMalformedSig, err)
	case errors.Is(err, signature.ErrSignatureMismatch):
		return reject(KindSignatureMismatch, http.StatusBadRequest, MsgWrongSig, err)
	default:
		return reject(KindInternal, http.StatusInternalServerError, MsgInternal, err)
	}
}
