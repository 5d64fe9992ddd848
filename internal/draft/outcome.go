package draft

// Outcome is the result of an editing operation. Invalid input is absorbed
// as a no-op and reported here instead of as an error.
type Outcome uint8

const (
	Applied Outcome = iota
	NoOpUnknownField
	NoOpWrongType
	NoOpOutOfRange
	NoOpEmptyText
	NoOpUnknownComment
	NoOpAlreadyResolved
	NoOpUnknownSection
	NoOpClosed
)

// Applied reports whether the operation changed state.
func (o Outcome) Applied() bool {
	return o == Applied
}

func (o Outcome) String() string {
	switch o {
	case Applied:
		return "applied"
	case NoOpUnknownField:
		return "noop_unknown_field"
	case NoOpWrongType:
		return "noop_wrong_type"
	case NoOpOutOfRange:
		return "noop_out_of_range"
	case NoOpEmptyText:
		return "noop_empty_text"
	case NoOpUnknownComment:
		return "noop_unknown_comment"
	case NoOpAlreadyResolved:
		return "noop_already_resolved"
	case NoOpUnknownSection:
		return "noop_unknown_section"
	case NoOpClosed:
		return "noop_closed"
	default:
		return "unknown"
	}
}

// MarshalText renders the outcome name in JSON payloads.
func (o Outcome) MarshalText() ([]byte, error) {
	return []byte(o.String()), nil
}
