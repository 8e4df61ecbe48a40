package relay

import (
	"reflect"
	"strings"
	"testing"
)

func TestEncodeDecode_RoundTrip(t *testing.T) {
	cases := []struct {
		name string
		msg  Message
	}{
		{"register with state", Message{Type: MessageRegister, State: "abc"}},
		{"register without state", Message{Type: MessageRegister}},
		{"deliver with code", Message{Type: MessageDeliver, State: "abc", Code: "xyz"}},
		{"deliver with raw only", Message{
			Type:  MessageDeliver,
			State: "abc",
			Raw:   map[string]any{"error": "access_denied", "hint": "expired"},
		}},
		{"deliver with code and raw", Message{
			Type: MessageDeliver,
			Code: "xyz",
			Raw:  map[string]any{"scope": "read"},
		}},
		{"error message", Message{Type: MessageError, Error: "boom"}},
		{"unregister", Message{Type: MessageUnregister, State: "abc"}},
		{"bare error", Message{Type: MessageError}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			encoded, err := EncodeMessage(tc.msg)
			if err != nil {
				t.Fatalf("encode: %v", err)
			}
			if encoded[len(encoded)-1] != '\n' {
				t.Fatalf("expected newline-terminated record, got %q", encoded)
			}
			decoded, err := DecodeMessage(encoded)
			if err != nil {
				t.Fatalf("decode: %v", err)
			}
			if !reflect.DeepEqual(decoded, tc.msg) {
				t.Fatalf("round trip mismatch: got %#v want %#v", decoded, tc.msg)
			}
		})
	}
}

func TestEncodeMessage_OmitsAbsentFields(t *testing.T) {
	encoded, err := EncodeMessage(Message{Type: MessageRegister})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	record := string(encoded)
	for _, field := range []string{"state", "code", "raw", "error"} {
		if strings.Contains(record, field) {
			t.Fatalf("expected %q omitted from %q", field, record)
		}
	}
}

func TestEncodeMessage_RejectsUnknownType(t *testing.T) {
	if _, err := EncodeMessage(Message{Type: "BOGUS"}); err == nil {
		t.Fatalf("expected encode failure for unknown type")
	}
}

func TestDecodeMessage_Failures(t *testing.T) {
	cases := []struct {
		name string
		line string
	}{
		{"empty line", "\n"},
		{"not json", "hello world\n"},
		{"unknown type", `{"type":"NOPE"}` + "\n"},
		{"missing type", `{"state":"abc"}` + "\n"},
		{"unknown field", `{"type":"REGISTER","extra":1}` + "\n"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := DecodeMessage([]byte(tc.line))
			if err == nil {
				t.Fatalf("expected decode failure for %q", tc.line)
			}
			if !IsProtocolError(err) {
				t.Fatalf("expected protocol error, got %v", err)
			}
		})
	}
}

func TestDecodeMessage_AbsentFieldsStayAbsent(t *testing.T) {
	decoded, err := DecodeMessage([]byte(`{"type":"DELIVER"}` + "\n"))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded.State != "" || decoded.Code != "" || decoded.Raw != nil || decoded.Error != "" {
		t.Fatalf("expected absent optionals, got %#v", decoded)
	}
}

func TestResult_Success(t *testing.T) {
	if !(Result{Code: "abc"}).Success() {
		t.Fatalf("expected success when code present")
	}
	if (Result{Raw: map[string]any{"error": "denied"}}).Success() {
		t.Fatalf("expected failure when code absent")
	}
}
