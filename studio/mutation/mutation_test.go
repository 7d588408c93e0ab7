package mutation

import (
	"strings"
	"testing"
)

func TestParseMessage(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		kind    Kind
		wantErr string
	}{
		{"mutations", `{"kind":"mutations","batch":{"id":"b1","seq":3,"records":[{"op":"childList","target":{"tag":"body"},"added":[{"tag":"ytcp-dialog"}]}]}}`, KindMutations, ""},
		{"click", `{"kind":"click","click":{"target":{"tag":"button","text":"Edit"}}}`, KindClick, ""},
		{"input", `{"kind":"input","input":{"field":"title","value":"cooking pasta"}}`, KindInput, ""},
		{"action", `{"kind":"action","action":{"panel":"title-suggestions","action":"select-title","arg":"2"}}`, KindAction, ""},
		{"navigate", `{"kind":"navigate","url":"https://studio.youtube.com/video/x/edit"}`, KindNavigate, ""},
		{"unknown kind", `{"kind":"scroll"}`, "", "unknown kind"},
		{"missing body", `{"kind":"click"}`, "", "without body"},
		{"garbage", `{`, "", "decode"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := ParseMessage([]byte(tt.in))
			if tt.wantErr != "" {
				if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
					t.Fatalf("error: got %v, want containing %q", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseMessage: %v", err)
			}
			if m.Kind != tt.kind {
				t.Fatalf("kind: got %q, want %q", m.Kind, tt.kind)
			}
		})
	}
}

func TestParseMessage_BatchContent(t *testing.T) {
	m, err := ParseMessage([]byte(`{"kind":"mutations","batch":{"id":"b1","records":[
		{"op":"attributes","target":{"tag":"div","role":"dialog","aria_modal":"true"},"attr":"aria-modal"}]}}`))
	if err != nil {
		t.Fatal(err)
	}
	r := m.Batch.Records[0]
	if r.Op != OpAttributes || r.Attr != "aria-modal" || r.Target.AriaModal != "true" {
		t.Fatalf("record: %+v", r)
	}
}
