package model

// Limits bounds the accumulating state fields. Unbounded growth blows up
// checkpoint payloads, so both lists are rolling windows.
type Limits struct {
	MaxMessages  int
	MaxReasoning int
}

// Delta is the partial state update emitted by a stage. Zero values mean
// "unchanged"; a stage that only updates bookkeeping emits no messages at
// all, which keeps the merge idempotent for the transcript.
type Delta struct {
	Messages  []Message
	Reasoning []AgentReasoning

	Classification Classification
	Intent         Intent
	Stage          Stage

	StageMessageCount *int
	HesitationAdd     int
	ProductsAdded     int
	ProductsRemoved   int
	ProductsShown     int

	Escalation      *EscalationRequest
	ClearEscalation bool
	RequiresHuman   *bool

	UserContext *UserContext

	Cart    []CartItem
	CartSet bool

	CompressedHistory *string
	// KeepMessages > 0 retains only the last N raw messages; used by the
	// memory optimizer after folding older messages into the summary.
	KeepMessages int
	ClearPending bool

	NextNode *string
}

// Apply merges the delta into the state under the given limits.
//
// Messages follow an append-then-bound reducer: the combined transcript is
// truncated to the last MaxMessages entries and everything evicted is moved
// to PendingCompression so it can be summarized rather than dropped. The
// reasoning trace is a plain rolling window.
func (s *ConversationState) Apply(d *Delta, limits Limits) {
	if d == nil {
		return
	}

	if len(d.Messages) > 0 {
		s.MessageCount += len(d.Messages)
		combined := append(s.Messages, d.Messages...)
		if limits.MaxMessages > 0 && len(combined) > limits.MaxMessages {
			cut := len(combined) - limits.MaxMessages
			s.PendingCompression = append(s.PendingCompression, combined[:cut]...)
			combined = combined[cut:]
		}
		s.Messages = combined
	}

	if len(d.Reasoning) > 0 {
		combined := append(s.ReasoningTrace, d.Reasoning...)
		if limits.MaxReasoning > 0 && len(combined) > limits.MaxReasoning {
			combined = combined[len(combined)-limits.MaxReasoning:]
		}
		s.ReasoningTrace = combined
	}

	if d.Classification != "" {
		s.Classification = d.Classification
	}
	if d.Intent != "" {
		s.Intent = d.Intent
	}
	if d.Stage != "" {
		s.Stage = d.Stage
	}
	if d.StageMessageCount != nil {
		s.StageMessageCount = *d.StageMessageCount
	}
	s.HesitationSignals += d.HesitationAdd
	s.ProductsAdded += d.ProductsAdded
	s.ProductsRemoved += d.ProductsRemoved
	s.ProductsShown += d.ProductsShown

	if d.ClearEscalation {
		s.Escalation = nil
	} else if d.Escalation != nil {
		s.Escalation = d.Escalation
	}
	if d.RequiresHuman != nil {
		s.RequiresHuman = *d.RequiresHuman
	}

	if d.UserContext != nil {
		s.UserContext = d.UserContext
	}

	if d.CartSet {
		s.Cart = d.Cart
		if s.Cart == nil {
			s.Cart = []CartItem{}
		}
	}

	if d.CompressedHistory != nil {
		s.CompressedHistory = *d.CompressedHistory
	}
	if d.KeepMessages > 0 && len(s.Messages) > d.KeepMessages {
		s.Messages = append([]Message(nil), s.Messages[len(s.Messages)-d.KeepMessages:]...)
	}
	if d.ClearPending {
		s.PendingCompression = nil
	}

	if d.NextNode != nil {
		s.NextNode = *d.NextNode
	}
}

// Bool is a convenience for Delta pointer fields.
func Bool(v bool) *bool { return &v }

// Int is a convenience for Delta pointer fields.
func Int(v int) *int { return &v }

// String is a convenience for Delta pointer fields.
func String(v string) *string { return &v }
