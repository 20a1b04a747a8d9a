package types

// Wire frames. Every server-to-client frame is a JSON object tagged with an
// explicit "type"; view updates are the one exception and travel as a bare
// array of diff operations. Client-to-server frames are bare JSON strings.

// Frame type tags.
const (
	FrameTypeMessage     = "message"
	FrameTypeChoice      = "choice"
	FrameTypeError       = "error"
	FrameTypeChatControl = "chatcontrol"
)

// MessageFrame carries free text to the client, optionally attributed to a
// sender (chat) and optionally highlighted by the UI.
type MessageFrame struct {
	Type      string   `json:"type"`
	Text      string   `json:"text"`
	Sender    Username `json:"sender,omitempty"`
	Highlight bool     `json:"highlight,omitempty"`
}

func NewMessage(text string) MessageFrame {
	return MessageFrame{Type: FrameTypeMessage, Text: text}
}

// ChoiceSchema is the JSON-Schema fragment attached to schema-based choice
// questions.
type ChoiceSchema struct {
	Type    string   `json:"type"`
	Minimum *int     `json:"minimum,omitempty"`
	Maximum *int     `json:"maximum,omitempty"`
	Enum    []string `json:"enum,omitempty"`
}

// SchemaChoiceFrame asks the client for a value matching a JSON Schema.
type SchemaChoiceFrame struct {
	Type   string       `json:"type"`
	Schema ChoiceSchema `json:"schema"`
}

func NewIntChoice(minimum, maximum int) SchemaChoiceFrame {
	lo, hi := minimum, maximum
	return SchemaChoiceFrame{
		Type:   FrameTypeChoice,
		Schema: ChoiceSchema{Type: "integer", Minimum: &lo, Maximum: &hi},
	}
}

func NewTextChoice(options []string) SchemaChoiceFrame {
	return SchemaChoiceFrame{
		Type:   FrameTypeChoice,
		Schema: ChoiceSchema{Type: "string", Enum: options},
	}
}

// SlotChoiceFrame asks the client to pick one of an enumerated set of slot
// addresses, or one of the special string options.
type SlotChoiceFrame struct {
	Type           string   `json:"type"`
	Slots          []string `json:"slots"`
	SpecialOptions []string `json:"special_options"`
}

func NewSlotChoice(slots, specials []string) SlotChoiceFrame {
	if specials == nil {
		specials = []string{}
	}
	return SlotChoiceFrame{Type: FrameTypeChoice, Slots: slots, SpecialOptions: specials}
}

// ErrorFrame is validation feedback on a rejected answer. The ask loop
// stays open after sending one.
type ErrorFrame struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

func NewError(message string) ErrorFrame {
	return ErrorFrame{Type: FrameTypeError, Message: message}
}

// ChatControlFrame toggles the client's chat UI.
type ChatControlFrame struct {
	Type    string `json:"type"`
	Set     string `json:"set"`
	Message string `json:"message,omitempty"`
}

func NewChatControl(on bool, message string) ChatControlFrame {
	set := "off"
	if on {
		set = "on"
	}
	return ChatControlFrame{Type: FrameTypeChatControl, Set: set, Message: message}
}

// DiffOp names one view-update operation.
type DiffOp string

const (
	DiffAdd     DiffOp = "add"
	DiffRemove  DiffOp = "remove"
	DiffReplace DiffOp = "replace"
)

// ViewDiff is one opaque view-update operation. Key is a slot address of
// the form "/seg1/seg2"; Value is a rendered HTML string for add/replace.
type ViewDiff struct {
	Op    DiffOp `json:"op"`
	Key   string `json:"key"`
	Value string `json:"value,omitempty"`
}
