package v1

import (
	"testing"
	"time"
)

func TestEnvelopeValidate(t *testing.T) {
	now := time.Now().UTC()

	valid := Envelope{V: Version, Type: TypeChatMessage, TS: now}
	if err := valid.Validate(); err != nil {
		t.Fatalf("valid envelope rejected: %v", err)
	}

	cases := []struct {
		name string
		env  Envelope
	}{
		{"missing version", Envelope{Type: TypeChatMessage, TS: now}},
		{"wrong version", Envelope{V: "v0", Type: TypeChatMessage, TS: now}},
		{"missing type", Envelope{V: Version, TS: now}},
		{"unknown type", Envelope{V: Version, Type: "shutdown server", TS: now}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if err := tc.env.Validate(); err == nil {
				t.Fatalf("invalid envelope accepted")
			}
		})
	}
}

func TestEnvelopeValidate_AllKnownTypes(t *testing.T) {
	types := []string{
		TypeRequestConversations,
		TypeJoinConversation,
		TypeChatMessage,
		TypeRequestHistory,
		TypeDeleteMessage,
		TypeDeleteConversation,
		TypeConversationsList,
		TypeConversationHistory,
		TypeNewMessageNotification,
		TypeMessageDeleted,
		TypeConversationDeleted,
		TypeConversationDeletedSuccess,
		TypeRefreshConversations,
		TypeUserOnline,
		TypeUserOffline,
		TypeError,
	}
	for _, typ := range types {
		env := Envelope{V: Version, Type: typ}
		if err := env.Validate(); err != nil {
			t.Fatalf("type %q rejected: %v", typ, err)
		}
	}
}
