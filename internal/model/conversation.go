package model

// ConversationID derives the canonical id for a two-party conversation.
// The id is order-independent: ConversationID(a, b) == ConversationID(b, a),
// and stable for the lifetime of the pair. Self-chat (a == b) is not rejected.
func ConversationID(a, b string) string {
	if a <= b {
		return a + "-" + b
	}
	return b + "-" + a
}

// ConversationKind distinguishes the two thread shapes the engine handles.
type ConversationKind string

const (
	KindIndividual ConversationKind = "individual"
	KindGroup      ConversationKind = "group"
)
