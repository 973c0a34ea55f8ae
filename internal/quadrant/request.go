package quadrant

import (
	"strings"
	"time"
)

// Context carries optional structured hints alongside the task text.
type Context struct {
	// Due is a deadline hint supplied by the caller.
	Due *time.Time `json:"due,omitempty"`

	// Goals are free-text goal references the task may relate to.
	Goals []string `json:"goals,omitempty"`
}

// Request is an immutable classification request.
// Construct it with NewRequest; the zero value is not routable.
type Request struct {
	text          string
	ctx           Context
	capability    Capability
	correlationID string
	now           time.Time
}

// RequestOption customizes a Request at construction time.
type RequestOption func(*Request)

// WithDue attaches a deadline hint.
func WithDue(due time.Time) RequestOption {
	return func(r *Request) {
		d := due
		r.ctx.Due = &d
	}
}

// WithGoals attaches free-text goal references.
func WithGoals(goals ...string) RequestOption {
	return func(r *Request) {
		r.ctx.Goals = append([]string(nil), goals...)
	}
}

// WithCapability sets the requested capability (default classify).
func WithCapability(c Capability) RequestOption {
	return func(r *Request) {
		r.capability = c
	}
}

// WithCorrelationID sets the caller-supplied correlation id.
func WithCorrelationID(id string) RequestOption {
	return func(r *Request) {
		r.correlationID = id
	}
}

// WithClock pins the reference time used to judge due-date hints.
func WithClock(now time.Time) RequestOption {
	return func(r *Request) {
		r.now = now
	}
}

// NewRequest validates text and builds a Request.
// Blank text is rejected with an *InputError wrapping ErrEmptyInput.
func NewRequest(text string, opts ...RequestOption) (Request, error) {
	r := Request{
		text:       strings.TrimSpace(text),
		capability: CapabilityClassify,
		now:        time.Now(),
	}
	for _, opt := range opts {
		opt(&r)
	}
	if err := r.Validate(); err != nil {
		return Request{}, err
	}
	return r, nil
}

// Validate reports whether the request may be routed.
func (r Request) Validate() error {
	if strings.TrimSpace(r.text) == "" {
		return &InputError{Field: "text", Err: ErrEmptyInput}
	}
	return nil
}

// Text returns the trimmed task text.
func (r Request) Text() string { return r.text }

// Capability returns the requested capability.
func (r Request) Capability() Capability {
	if r.capability == "" {
		return CapabilityClassify
	}
	return r.capability
}

// CorrelationID returns the caller-supplied correlation id.
func (r Request) CorrelationID() string { return r.correlationID }

// Context returns a copy of the structured context.
func (r Request) Context() Context {
	c := r.ctx
	c.Goals = append([]string(nil), r.ctx.Goals...)
	if r.ctx.Due != nil {
		due := *r.ctx.Due
		c.Due = &due
	}
	return c
}

// Now returns the reference time for due-date hints.
func (r Request) Now() time.Time {
	if r.now.IsZero() {
		return time.Now()
	}
	return r.now
}
