package wire

// Display modes for perform.show.
const (
	ShowModeAppend  = "append"
	ShowModeReplace = "replace"
)

// ShowPayload is the body of a perform.show packet.
type ShowPayload struct {
	// Elements is the ordered list of things to perform. Elements are open
	// maps built by the element constructors below.
	Elements []any `json:"elements"`
	// Mode controls whether elements append to or replace the current scene.
	Mode string `json:"mode,omitempty"`
}

// InterruptPayload is the body of a perform.interrupt packet.
type InterruptPayload struct {
	// Reason optionally explains why playback was cut.
	Reason string `json:"reason,omitempty"`
}

// TextElement builds a subtitle/speech-bubble element. A zero duration lets
// the client pick its own display time.
func TextElement(text string, durationMS int64) map[string]any {
	el := map[string]any{
		"type": "text",
		"text": text,
	}
	if durationMS > 0 {
		el["duration_ms"] = durationMS
	}
	return el
}

// ExpressionElement builds a facial-expression element by expression name.
func ExpressionElement(name string, durationMS int64) map[string]any {
	el := map[string]any{
		"type": "expression",
		"name": name,
	}
	if durationMS > 0 {
		el["duration_ms"] = durationMS
	}
	return el
}

// MotionElement builds a motion element addressing a motion group entry.
func MotionElement(group string, index, priority int) map[string]any {
	return map[string]any{
		"type":     "motion",
		"group":    group,
		"index":    index,
		"priority": priority,
	}
}

// NewShow constructs a server-initiated perform.show packet.
func NewShow(mode string, elements ...any) Packet {
	return New(OpPerformShow, ShowPayload{Elements: elements, Mode: mode})
}

// NewInterrupt constructs a server-initiated perform.interrupt packet.
func NewInterrupt(reason string) Packet {
	return New(OpPerformInterrupt, InterruptPayload{Reason: reason})
}
