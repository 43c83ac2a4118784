package events

import (
	"slices"
	"sync"
)

const (
	ConversationCreated            = "conversation.created"
	ConversationAssigned           = "conversation.assigned"
	ConversationDeleted            = "conversation.deleted"
	ConversationDeletedPermanently = "conversation.deleted_permanently"
	ConversationRestored           = "conversation.restored"
	ConversationMoved              = "conversation.moved"
	ConversationStatusChanged      = "conversation.status_changed"
	ConversationCustomerReplied    = "conversation.customer_replied"
	ConversationAgentReplied       = "conversation.agent_replied"
	ConversationNoteAdded          = "conversation.note_added"
	CustomerCreated                = "customer.created"
	CustomerUpdated                = "customer.updated"
)

// Vocabulary is the set of event names subscriptions may select and the
// bus accepts.
type Vocabulary struct {
	mu    sync.RWMutex
	names []string
}

func NewVocabulary(names ...string) *Vocabulary {
	v := &Vocabulary{}
	v.Register(names...)
	return v
}

// Register adds names, ignoring ones already known.
func (v *Vocabulary) Register(names ...string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	for _, n := range names {
		if n != "" && !slices.Contains(v.names, n) {
			v.names = append(v.names, n)
		}
	}
}

func (v *Vocabulary) Known(name string) bool {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return slices.Contains(v.names, name)
}

// All returns the names in registration order.
func (v *Vocabulary) All() []string {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return slices.Clone(v.names)
}

var defaultVocabulary = NewVocabulary(
	ConversationCreated,
	ConversationAssigned,
	ConversationDeleted,
	ConversationDeletedPermanently,
	ConversationRestored,
	ConversationMoved,
	ConversationStatusChanged,
	ConversationCustomerReplied,
	ConversationAgentReplied,
	ConversationNoteAdded,
	CustomerCreated,
	CustomerUpdated,
)

// Default returns the process-wide vocabulary.
func Default() *Vocabulary { return defaultVocabulary }

// Register extends the process-wide vocabulary.
func Register(names ...string) { defaultVocabulary.Register(names...) }
