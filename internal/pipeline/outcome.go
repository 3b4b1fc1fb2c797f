package pipeline

// Kind tags a stage outcome. The orchestrator switches on this instead of
// inspecting errors; stage components never leak raw client errors upward.
type Kind int

const (
	KindSuccess Kind = iota
	KindFallback
	KindFatal
)

func (k Kind) String() string {
	switch k {
	case KindSuccess:
		return "success"
	case KindFallback:
		return "fallback"
	case KindFatal:
		return "fatal"
	}
	return "unknown"
}

// Outcome is the only thing a stage returns. Success and Fallback both carry
// a payload valid for the next stage; Fatal carries the error that ends the
// job.
type Outcome struct {
	Kind    Kind
	Payload map[string]any

	// Preview is a one-line summary for the step's progress record.
	Preview string
	// CulturalPreviews feed the capped preview ring on the progress
	// document.
	CulturalPreviews []string

	// Reason explains a fallback.
	Reason string
	// Err is set only on Fatal outcomes.
	Err error
}

// Failed reports whether the outcome ends the job.
func (o Outcome) Failed() bool { return o.Kind == KindFatal }

// FallbackUsed reports whether the payload came from a degraded path.
func (o Outcome) FallbackUsed() bool { return o.Kind == KindFallback }

func Success(payload map[string]any, preview string) Outcome {
	return Outcome{Kind: KindSuccess, Payload: payload, Preview: preview}
}

func Fallback(payload map[string]any, preview, reason string) Outcome {
	return Outcome{Kind: KindFallback, Payload: payload, Preview: preview, Reason: reason}
}

func Fatal(err error) Outcome {
	return Outcome{Kind: KindFatal, Err: err}
}
