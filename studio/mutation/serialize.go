package mutation

import (
	"encoding/json"
	"fmt"
)

// ParseMessage decodes and checks a binding payload.
func ParseMessage(data []byte) (*Message, error) {
	var m Message
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("mutation: decode: %w", err)
	}
	var ok bool
	switch m.Kind {
	case KindMutations:
		ok = m.Batch != nil
	case KindClick:
		ok = m.Click != nil
	case KindInput:
		ok = m.Input != nil
	case KindAction:
		ok = m.Action != nil
	case KindNavigate, KindDocReset, KindReady:
		ok = true
	default:
		return nil, fmt.Errorf("mutation: unknown kind %q", m.Kind)
	}
	if !ok {
		return nil, fmt.Errorf("mutation: %s message without body", m.Kind)
	}
	return &m, nil
}

// MarshalMessage encodes m.
func MarshalMessage(m *Message) ([]byte, error) {
	return json.Marshal(m)
}
