// Package pipeline validates an incoming webhook request and dispatches it.
//
// Stages always run in the same order:
//
//	Start -> OriginChecked -> SignatureChecked -> HeadersChecked -> PayloadParsed -> Dispatched
//
// The first failing stage ends the request with a RejectError; later stages
// never run. An event with no handler is still accepted.
package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/mattjoyce/hookserver/internal/registry"
)

// Stage is the last stage a request completed.
type Stage int

const (
	StageStart Stage = iota
	StageOriginChecked
	StageSignatureChecked
	StageHeadersChecked
	StagePayloadParsed
	StageDispatched
)

func (s Stage) String() string {
	switch s {
	case StageStart:
		return "start"
	case StageOriginChecked:
		return "origin_checked"
	case StageSignatureChecked:
		return "signature_checked"
	case StageHeadersChecked:
		return "headers_checked"
	case StagePayloadParsed:
		return "payload_parsed"
	case StageDispatched:
		return "dispatched"
	default:
		return fmt.Sprintf("stage(%d)", int(s))
	}
}

// OriginChecker is satisfied by *origin.Validator.
type OriginChecker interface {
	Validate(clientAddress string) error
}

// SignatureChecker is satisfied by *signature.Verifier.
type SignatureChecker interface {
	Verify(body []byte, header string) error
}

// Dispatcher is satisfied by *registry.Registry.
type Dispatcher interface {
	Dispatch(ctx context.Context, d registry.Delivery) (registry.Outcome, error)
}

// Publisher receives audit events (events.Hub satisfies it).
type Publisher interface {
	Publish(eventType string, data any)
}

// Observer is told about every verdict and how long it took.
type Observer func(v Verdict, elapsed time.Duration)

// HeaderNames are the provider's header names.
type HeaderNames struct {
	Event     string
	Delivery  string
	Signature string
}

// Request is one incoming webhook call. ClientAddress is the already resolved
// peer address (after any trusted proxy handling).
type Request struct {
	ClientAddress string
	Header        http.Header
	Body          []byte
}

// Verdict is the terminal outcome of a request.
type Verdict struct {
	// Stage is the last stage completed.
	Stage      Stage
	Event      string
	DeliveryID string
	Payload    any
	// Handled is true when an exclusive handler ran.
	Handled bool
	Result  registry.Result
	// Reject is nil for accepted requests.
	Reject *RejectError
}

// Accepted reports whether the request passed validation.
func (v Verdict) Accepted() bool { return v.Reject == nil }

// Status is the HTTP status to answer with.
func (v Verdict) Status() int {
	if v.Reject != nil {
		return v.Reject.Status
	}
	if v.Result.Status == 0 {
		return http.StatusOK
	}
	return v.Result.Status
}

// Body is the plain-text response body.
func (v Verdict) Body() string {
	if v.Reject != nil {
		return v.Reject.Message
	}
	return v.Result.Body
}

// Pipeline is stateless per request and safe for concurrent use.
type Pipeline struct {
	origin     OriginChecker
	verifier   SignatureChecker
	dispatcher Dispatcher
	headers    HeaderNames
	logger     *slog.Logger
	publisher  Publisher
	observer   Observer
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(p *Pipeline) { p.logger = l }
}

// WithPublisher sets the audit publisher.
func WithPublisher(pub Publisher) Option {
	return func(p *Pipeline) { p.publisher = pub }
}

// WithObserver sets the verdict observer.
func WithObserver(o Observer) Option {
	return func(p *Pipeline) { p.observer = o }
}

// New assembles a pipeline. All three collaborators are required.
func New(oc OriginChecker, sc SignatureChecker, d Dispatcher, headers HeaderNames, opts ...Option) (*Pipeline, error) {
	if oc == nil || sc == nil || d == nil {
		return nil, errors.New("pipeline: origin checker, signature checker and dispatcher are required")
	}
	if headers.Event == "" || headers.Delivery == "" || headers.Signature == "" {
		return nil, errors.New("pipeline: event, delivery and signature header names are required")
	}
	p := &Pipeline{
		origin:     oc,
		verifier:   sc,
		dispatcher: d,
		headers:    headers,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Handle runs every stage for req and returns the verdict. It never panics;
// a panic in a collaborator becomes a 500 rejection.
func (p *Pipeline) Handle(ctx context.Context, req Request) (v Verdict) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			v.Reject = reject(KindInternal, http.StatusInternalServerError, MsgInternal, fmt.Errorf("panic: %v", r))
		}
		p.finish(req, v, time.Since(start))
	}()

	if err := p.origin.Validate(req.ClientAddress); err != nil {
		v.Reject = classifyOrigin(err)
		return v
	}
	v.Stage = StageOriginChecked

	if err := p.verifier.Verify(req.Body, req.Header.Get(p.headers.Signature)); err != nil {
		v.Reject = classifySignature(err)
		return v
	}
	v.Stage = StageSignatureChecked

	event, ok := headerValue(req.Header, p.headers.Event)
	if !ok {
		v.Reject = reject(KindMissingEventHeader, http.StatusBadRequest, MsgNoEvent, nil)
		return v
	}
	v.Event = event
	delivery, ok := headerValue(req.Header, p.headers.Delivery)
	if !ok {
		v.Reject = reject(KindMissingDeliveryHeader, http.StatusBadRequest, MsgNoDelivery, nil)
		return v
	}
	v.DeliveryID = delivery
	v.Stage = StageHeadersChecked

	payload, err := decodePayload(req.Body)
	if err != nil {
		v.Reject = reject(KindMissingOrInvalidPayload, http.StatusBadRequest, MsgNoPayload, err)
		return v
	}
	v.Payload = payload
	v.Stage = StagePayloadParsed

	out, err := p.dispatcher.Dispatch(ctx, registry.Delivery{
		Event:      v.Event,
		DeliveryID: v.DeliveryID,
		Payload:    payload,
		Body:       req.Body,
	})
	v.Handled = out.Handled
	if err != nil && !errors.Is(err, registry.ErrNotRegistered) {
		v.Reject = reject(KindHandlerFailed, http.StatusInternalServerError, MsgInternal, err)
		return v
	}
	v.Result = out.Result
	v.Stage = StageDispatched
	return v
}

func (p *Pipeline) finish(req Request, v Verdict, elapsed time.Duration) {
	if v.Reject != nil {
		p.logger.Warn("webhook rejected",
			"remote_addr", req.ClientAddress,
			"event", v.Event,
			"delivery_id", v.DeliveryID,
			"stage", v.Stage.String(),
			"reason", v.Reject.Kind.String(),
			"status", v.Reject.Status,
			"error", v.Reject.Err,
		)
	} else {
		p.logger.Info("webhook accepted",
			"remote_addr", req.ClientAddress,
			"event", v.Event,
			"delivery_id", v.DeliveryID,
			"handled", v.Handled,
			"status", v.Status(),
			"duration_ms", elapsed.Milliseconds(),
		)
	}

	if p.publisher != nil {
		data := map[string]any{
			"event":       v.Event,
			"delivery_id": v.DeliveryID,
			"stage":       v.Stage.String(),
			"status":      v.Status(),
		}
		eventType := "hook.accepted"
		if v.Reject != nil {
			data["reason"] = v.Reject.Kind.String()
			eventType = "hook.rejected"
		} else {
			data["handled"] = v.Handled
		}
		p.guard("publisher", v, func() { p.publisher.Publish(eventType, data) })
	}
	if p.observer != nil {
		p.guard("observer", v, func() { p.observer(v, elapsed) })
	}
}

// guard runs fn and logs any panic instead of propagating it.
func (p *Pipeline) guard(name string, v Verdict, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("verdict "+name+" panicked",
				"event", v.Event,
				"delivery_id", v.DeliveryID,
				"panic", fmt.Sprint(r),
			)
		}
	}()
	fn()
}

// headerValue returns the trimmed value of header name. Empty values and
// values that are not valid UTF-8 are reported as missing.
func headerValue(h http.Header, name string) (string, bool) {
	val := strings.TrimSpace(h.Get(name))
	if val == "" || !utf8.ValidString(val) {
		return "", false
	}
	return val, true
}

// decodePayload parses body as a single JSON value and rejects empty or
// falsy values: null, false, 0, "", {} and [].
func decodePayload(body []byte) (any, error) {
	if len(bytes.TrimSpace(body)) == 0 {
		return nil, errors.New("empty body")
	}
	var payload any
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("decode payload: %w", err)
	}
	if falsy(payload) {
		return nil, errors.New("payload is empty")
	}
	return payload, nil
}

func falsy(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case bool:
		return !t
	case float64:
		return t == 0
	case string:
		return t == ""
	case map[string]any:
		return len(t) == 0
	case []any:
		return len(t) == 0
	default:
		return false
	}
}
