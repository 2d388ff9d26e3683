package classifier

import (
	"fmt"
	"math"
	"time"

	"github.com/kvasilopoulos/contact-center/internal/types"
)

// Result is a classification ready for workflow dispatch.
type Result struct {
	Category       types.Category
	Confidence     float64
	Reasoning      string
	ProcessingTime time.Duration
	PromptID       string
	PromptVersion  string
	PromptVariant  string
	ExperimentID   string
	Model          string
}

func (r Result) ProcessingTimeMs() float64 {
	return math.Round(float64(r.ProcessingTime.Microseconds())/10) / 100
}

// Kind discriminates an Outcome.
type Kind int

const (
	KindOK Kind = iota
	// KindSoftDefault carries a conservative result substituted for
	// unusable model output.
	KindSoftDefault
	// KindUnavailable means the breaker rejected the call.
	KindUnavailable
	KindFailed
)

func (k Kind) String() string {
	switch k {
	case KindOK:
		return "ok"
	case KindSoftDefault:
		return "soft_default"
	case KindUnavailable:
		return "unavailable"
	case KindFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// FailureKind classifies a KindFailed outcome.
type FailureKind int

const (
	// FailureValidation is a prompt or registry defect.
	FailureValidation FailureKind = iota + 1
	// FailureClassification is a backend failure that survived retries.
	FailureClassification
)

// Outcome is the tagged result of one classification. Result is set for
// KindOK and KindSoftDefault, RetryAfter for KindUnavailable, Failure and
// Err for KindFailed.
type Outcome struct {
	Kind       Kind
	Result     Result
	RetryAfter time.Duration
	Failure    FailureKind
	Err        error
}

func ok(r Result) Outcome          { return Outcome{Kind: KindOK, Result: r} }
func softDefault(r Result) Outcome { return Outcome{Kind: KindSoftDefault, Result: r} }

func unavailable(retryAfter time.Duration, err error) Outcome {
	return Outcome{Kind: KindUnavailable, RetryAfter: retryAfter, Err: err}
}

func failed(kind FailureKind, err error) Outcome {
	return Outcome{Kind: KindFailed, Failure: kind, Err: err}
}

// Usable reports whether the outcome carries a result.
func (o Outcome) Usable() bool {
	return o.Kind == KindOK || o.Kind == KindSoftDefault
}

// ServiceUnavailableError is returned when the backend breaker is open.
type ServiceUnavailableError struct {
	RetryAfter time.Duration
	Err        error
}

func (e *ServiceUnavailableError) Error() string {
	return fmt.Sprintf("classification service temporarily unavailable, retry after %.0fs", e.RetryAfter.Seconds())
}

func (e *ServiceUnavailableError) Unwrap() error { return e.Err }

// RetryAfterSeconds rounds RetryAfter up to whole seconds, at least 1.
func (e *ServiceUnavailableError) RetryAfterSeconds() int {
	s := int(math.Ceil(e.RetryAfter.Seconds()))
	if s < 1 {
		s = 1
	}
	return s
}

// ClassificationError is returned when the backend failed for a reason other
// than bad output.
type ClassificationError struct {
	Err error
}

func (e *ClassificationError) Error() string {
	return "failed to classify message: " + e.Err.Error()
}

func (e *ClassificationError) Unwrap() error { return e.Err }

// ValidationError reports a prompt or registry defect.
type ValidationError struct {
	Err error
}

func (e *ValidationError) Error() string {
	return "classification configuration error: " + e.Err.Error()
}

func (e *ValidationError) Unwrap() error { return e.Err }

// AsError maps an outcome to its error form. Usable outcomes map to nil.
func AsError(o Outcome) error {
	switch o.Kind {
	case KindOK, KindSoftDefault:
		return nil
	case KindUnavailable:
		return &ServiceUnavailableError{RetryAfter: o.RetryAfter, Err: o.Err}
	}
	if o.Failure == FailureValidation {
		return &ValidationError{Err: o.Err}
	}
	return &ClassificationError{Err: o.Err}
}
