package client

// Prompt is the blocking presentation surface the machine drives when a
// session is invalidated. Show fires at most once per invalidation episode;
// the implementation must keep every affordance except acknowledgment
// inactive until the user confirms, and wire its confirmation control to
// Machine.Acknowledge.
type Prompt interface {
	Show(reason InvalidationReason)
}

// NopPrompt discards invalidation prompts. Useful for headless clients that
// only consume Snapshot.
type NopPrompt struct{}

func (NopPrompt) Show(InvalidationReason) {}
