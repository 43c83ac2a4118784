package events

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/Priya8975/hookrelay/internal/helpdesk"
)

const previewMaxLength = 255

var tagPattern = regexp.MustCompile(`<[^>]*>`)

// Publisher is the side of Bus the bridge needs.
type Publisher interface {
	Publish(ctx context.Context, name string, payload any, routingKey *int64) error
}

// Bridge translates host application actions into webhook events.
type Bridge struct {
	pub Publisher
}

func NewBridge(pub Publisher) *Bridge {
	return &Bridge{pub: pub}
}

// ConversationCreated covers conversations started by an agent or a customer.
func (b *Bridge) ConversationCreated(ctx context.Context, c *helpdesk.Conversation) error {
	return b.conversation(ctx, ConversationCreated, c)
}

// ConversationUserChanged emits conversation.assigned only when the
// conversation now has an assignee.
func (b *Bridge) ConversationUserChanged(ctx context.Context, c *helpdesk.Conversation) error {
	if c.Assignee == nil {
		return nil
	}
	return b.conversation(ctx, ConversationAssigned, c)
}

func (b *Bridge) ConversationDeleted(ctx context.Context, c *helpdesk.Conversation) error {
	return b.conversation(ctx, ConversationDeleted, c)
}

// ConversationDeleting fires just before a conversation is removed for good.
func (b *Bridge) ConversationDeleting(ctx context.Context, c *helpdesk.Conversation) error {
	return b.conversation(ctx, ConversationDeletedPermanently, c)
}

// ConversationStateChanged emits conversation.restored for a move out of
// the trash. Other state changes are not webhook events.
func (b *Bridge) ConversationStateChanged(ctx context.Context, c *helpdesk.Conversation, previousState string) error {
	if previousState != helpdesk.StateDeleted || c.State != helpdesk.StatePublished {
		return nil
	}
	return b.conversation(ctx, ConversationRestored, c)
}

func (b *Bridge) ConversationMoved(ctx context.Context, c *helpdesk.Conversation) error {
	return b.conversation(ctx, ConversationMoved, c)
}

func (b *Bridge) ConversationStatusChanged(ctx context.Context, c *helpdesk.Conversation) error {
	return b.conversation(ctx, ConversationStatusChanged, c)
}

func (b *Bridge) CustomerReplied(ctx context.Context, c *helpdesk.Conversation, t *helpdesk.Thread) error {
	c.Preview = Preview(t.Body)
	return b.conversation(ctx, ConversationCustomerReplied, c)
}

// UserReplied is an agent reply.
func (b *Bridge) UserReplied(ctx context.Context, c *helpdesk.Conversation, t *helpdesk.Thread) error {
	c.Preview = Preview(t.Body)
	return b.conversation(ctx, ConversationAgentReplied, c)
}

func (b *Bridge) NoteAdded(ctx context.Context, c *helpdesk.Conversation) error {
	return b.conversation(ctx, ConversationNoteAdded, c)
}

func (b *Bridge) CustomerCreated(ctx context.Context, c *helpdesk.Customer) error {
	return b.pub.Publish(ctx, CustomerCreated, c, nil)
}

func (b *Bridge) CustomerUpdated(ctx context.Context, c *helpdesk.Customer) error {
	return b.pub.Publish(ctx, CustomerUpdated, c, nil)
}

// Host application actions accepted by Apply.
const (
	ActionConversationCreatedByUser     = "conversation.created_by_user"
	ActionConversationCreatedByCustomer = "conversation.created_by_customer"
	ActionConversationUserChanged       = "conversation.user_changed"
	ActionConversationDeleted           = "conversation.deleted"
	ActionConversationDeleting          = "conversation.deleting"
	ActionConversationStateChanged      = "conversation.state_changed"
	ActionConversationMoved             = "conversation.moved"
	ActionConversationStatusChanged     = "conversation.status_changed"
	ActionConversationCustomerReplied   = "conversation.customer_replied"
	ActionConversationUserReplied       = "conversation.user_replied"
	ActionConversationNoteAdded         = "conversation.note_added"
	ActionCustomerCreated               = "customer.created"
	ActionCustomerUpdated               = "customer.updated"
)

// HostAction is one host application action with the objects it concerns.
type HostAction struct {
	Action        string                 `json:"action"`
	Conversation  *helpdesk.Conversation `json:"conversation,omitempty"`
	Thread        *helpdesk.Thread       `json:"thread,omitempty"`
	Customer      *helpdesk.Customer     `json:"customer,omitempty"`
	PreviousState string                 `json:"previous_state,omitempty"`
}

// Apply routes a host action to the matching bridge method. Actions that
// map to no event for the given objects publish nothing.
func (b *Bridge) Apply(ctx context.Context, a HostAction) error {
	conv := func(fn func(context.Context, *helpdesk.Conversation) error) error {
		if a.Conversation == nil {
			return fmt.Errorf("%w: %s needs a conversation", ErrMissingObject, a.Action)
		}
		return fn(ctx, a.Conversation)
	}
	reply := func(fn func(context.Context, *helpdesk.Conversation, *helpdesk.Thread) error) error {
		if a.Conversation == nil || a.Thread == nil {
			return fmt.Errorf("%w: %s needs a conversation and a thread", ErrMissingObject, a.Action)
		}
		return fn(ctx, a.Conversation, a.Thread)
	}
	customer := func(fn func(context.Context, *helpdesk.Customer) error) error {
		if a.Customer == nil {
			return fmt.Errorf("%w: %s needs a customer", ErrMissingObject, a.Action)
		}
		return fn(ctx, a.Customer)
	}

	switch a.Action {
	case ActionConversationCreatedByUser, ActionConversationCreatedByCustomer:
		return conv(b.ConversationCreated)
	case ActionConversationUserChanged:
		return conv(b.ConversationUserChanged)
	case ActionConversationDeleted:
		return conv(b.ConversationDeleted)
	case ActionConversationDeleting:
		return conv(b.ConversationDeleting)
	case ActionConversationStateChanged:
		return conv(func(ctx context.Context, c *helpdesk.Conversation) error {
			return b.ConversationStateChanged(ctx, c, a.PreviousState)
		})
	case ActionConversationMoved:
		return conv(b.ConversationMoved)
	case ActionConversationStatusChanged:
		return conv(b.ConversationStatusChanged)
	case ActionConversationCustomerReplied:
		return reply(b.CustomerReplied)
	case ActionConversationUserReplied:
		return reply(b.UserReplied)
	case ActionConversationNoteAdded:
		return conv(b.NoteAdded)
	case ActionCustomerCreated:
		return customer(b.CustomerCreated)
	case ActionCustomerUpdated:
		return customer(b.CustomerUpdated)
	}
	return fmt.Errorf("%w: %q", ErrUnknownAction, a.Action)
}

func (b *Bridge) conversation(ctx context.Context, name string, c *helpdesk.Conversation) error {
	return b.pub.Publish(ctx, name, c, c.RoutingKey())
}

// Preview reduces a thread body to plain text of at most 255 characters.
func Preview(body string) string {
	text := tagPattern.ReplaceAllString(body, " ")
	text = strings.Join(strings.Fields(text), " ")
	if utf8.RuneCountInString(text) <= previewMaxLength {
		return text
	}
	return string([]rune(text)[:previewMaxLength])
}
