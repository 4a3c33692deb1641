package recorder

import "fmt"

// PayloadKind classifies the value a panic carried.
type PayloadKind int

const (
	KindUnknown PayloadKind = iota
	// KindTextRef is a plain string payload.
	KindTextRef
	// KindOwnedText is text produced by the payload itself (error or Stringer).
	KindOwnedText
)

func (k PayloadKind) String() string {
	switch k {
	case KindTextRef:
		return "text_ref"
	case KindOwnedText:
		return "owned_text"
	}
	return "unknown"
}

// FallbackMessage is reported when the payload carries no usable text.
const FallbackMessage = "no message available"

// Payload is a panic value reduced to its message. The zero value is an
// unknown payload.
type Payload struct {
	kind PayloadKind
	text string
}

// Classify resolves v in a fixed order: string, then error or fmt.Stringer,
// else unknown. A payload whose Error or String method itself panics is
// unknown.
func Classify(v any) Payload {
	switch x := v.(type) {
	case string:
		return Payload{kind: KindTextRef, text: x}
	case error:
		if s, ok := safeText(x.Error); ok {
			return Payload{kind: KindOwnedText, text: s}
		}
	case fmt.Stringer:
		if s, ok := safeText(x.String); ok {
			return Payload{kind: KindOwnedText, text: s}
		}
	}
	return Payload{kind: KindUnknown}
}

func (p Payload) Kind() PayloadKind { return p.kind }

// Message never fails and never returns an empty string for unknown payloads.
func (p Payload) Message() string {
	if p.kind == KindUnknown {
		return FallbackMessage
	}
	return p.text
}

func safeText(f func() string) (s string, ok bool) {
	defer func() {
		if recover() != nil {
			s, ok = "", false
		}
	}()
	return f(), true
}
