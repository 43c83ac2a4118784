// Package helpdesk holds the host application objects carried by webhook
// events and their wire representations.
package helpdesk

import (
	"time"

	"github.com/Priya8975/hookrelay/internal/formatter"
)

// Conversation states and statuses as they appear on the wire.
const (
	StatePublished = "published"
	StateDeleted   = "deleted"
	StateDraft     = "draft"

	StatusActive  = "active"
	StatusPending = "pending"
	StatusClosed  = "closed"
	StatusSpam    = "spam"
)

type User struct {
	ID        int64     `json:"id"`
	FirstName string    `json:"firstName"`
	LastName  string    `json:"lastName"`
	Email     string    `json:"email"`
	Role      string    `json:"role"`
	JobTitle  string    `json:"jobTitle"`
	Phone     string    `json:"phone"`
	Timezone  string    `json:"timezone"`
	PhotoURL  string    `json:"photoUrl"`
	Language  string    `json:"language"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func (u *User) Format(opts formatter.Options) (map[string]any, error) {
	if !opts.Full {
		return map[string]any{
			"id":        u.ID,
			"type":      "user",
			"firstName": u.FirstName,
			"lastName":  u.LastName,
			"photoUrl":  u.PhotoURL,
			"email":     u.Email,
		}, nil
	}
	return map[string]any{
		"id":        u.ID,
		"firstName": u.FirstName,
		"lastName":  u.LastName,
		"email":     u.Email,
		"role":      u.Role,
		"jobTitle":  u.JobTitle,
		"phone":     u.Phone,
		"timezone":  u.Timezone,
		"photoUrl":  u.PhotoURL,
		"language":  u.Language,
		"createdAt": formatDate(&u.CreatedAt),
		"updatedAt": formatDate(&u.UpdatedAt),
	}, nil
}

type Address struct {
	City    string `json:"city"`
	State   string `json:"state"`
	Zip     string `json:"zip"`
	Country string `json:"country"`
	Address string `json:"address"`
}

type Customer struct {
	ID        int64     `json:"id"`
	FirstName string    `json:"firstName"`
	LastName  string    `json:"lastName"`
	JobTitle  string    `json:"jobTitle"`
	Company   string    `json:"company"`
	PhotoURL  string    `json:"photoUrl"`
	Notes     string    `json:"notes"`
	Emails    []string  `json:"emails,omitempty"`
	Phones    []string  `json:"phones,omitempty"`
	Websites  []string  `json:"websites,omitempty"`
	Address   *Address  `json:"address,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// MainEmail is the first email address, or "".
func (c *Customer) MainEmail() string {
	if len(c.Emails) == 0 {
		return ""
	}
	return c.Emails[0]
}

func (c *Customer) Format(opts formatter.Options) (map[string]any, error) {
	if !opts.Full {
		return map[string]any{
			"id":        c.ID,
			"type":      "customer",
			"firstName": c.FirstName,
			"lastName":  c.LastName,
			"photoUrl":  c.PhotoURL,
			"email":     c.MainEmail(),
		}, nil
	}

	emails := make([]map[string]any, 0, len(c.Emails))
	for i, e := range c.Emails {
		kind := "other"
		if i == 0 {
			kind = "work"
		}
		emails = append(emails, map[string]any{"value": e, "type": kind})
	}
	phones := make([]map[string]any, 0, len(c.Phones))
	for _, p := range c.Phones {
		phones = append(phones, map[string]any{"id": 0, "value": p, "type": "other"})
	}
	websites := make([]map[string]any, 0, len(c.Websites))
	for _, w := range c.Websites {
		websites = append(websites, map[string]any{"id": 0, "value": w})
	}

	return map[string]any{
		"id":        c.ID,
		"firstName": c.FirstName,
		"lastName":  c.LastName,
		"jobTitle":  c.JobTitle,
		"company":   c.Company,
		"photoUrl":  c.PhotoURL,
		"notes":     c.Notes,
		"createdAt": formatDate(&c.CreatedAt),
		"updatedAt": formatDate(&c.UpdatedAt),
		"_embedded": map[string]any{
			"emails":   emails,
			"phones":   phones,
			"websites": websites,
			"address":  c.Address,
		},
	}, nil
}

type Mailbox struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func (m *Mailbox) Format(formatter.Options) (map[string]any, error) {
	return map[string]any{
		"id":        m.ID,
		"name":      m.Name,
		"email":     m.Email,
		"createdAt": formatDate(&m.CreatedAt),
		"updatedAt": formatDate(&m.UpdatedAt),
	}, nil
}

// Thread is one message or note inside a conversation. Exactly one of
// CreatedByUser and CreatedByCustomer is normally set.
type Thread struct {
	ID                int64      `json:"id"`
	Type              string     `json:"type"` // message, customer, note
	Status            string     `json:"status"`
	State             string     `json:"state"`
	Body              string     `json:"body"`
	CreatedByUser     *User      `json:"createdByUser,omitempty"`
	CreatedByCustomer *Customer  `json:"createdByCustomer,omitempty"`
	AssignedTo        *User      `json:"assignedTo,omitempty"`
	Customer          *Customer  `json:"customer,omitempty"`
	To                []string   `json:"to,omitempty"`
	Cc                []string   `json:"cc,omitempty"`
	Bcc               []string   `json:"bcc,omitempty"`
	CreatedAt         time.Time  `json:"createdAt"`
	OpenedAt          *time.Time `json:"openedAt,omitempty"`
}

func (t *Thread) Format(opts formatter.Options) (map[string]any, error) {
	var createdBy any
	via := "customer"
	switch {
	case t.CreatedByUser != nil:
		createdBy = summary(t.CreatedByUser)
		via = "user"
	case t.CreatedByCustomer != nil:
		createdBy = summary(t.CreatedByCustomer)
	}

	var customer, assignedTo any
	if t.Customer != nil {
		customer = summary(t.Customer)
	}
	if t.AssignedTo != nil {
		assignedTo = summary(t.AssignedTo)
	}

	return map[string]any{
		"id":         t.ID,
		"type":       t.Type,
		"status":     orDefault(t.Status, StatusActive),
		"state":      orDefault(t.State, StatePublished),
		"body":       t.Body,
		"source":     map[string]any{"via": via},
		"customer":   customer,
		"createdBy":  createdBy,
		"assignedTo": assignedTo,
		"to":         emptyIfNil(t.To),
		"cc":         emptyIfNil(t.Cc),
		"bcc":        emptyIfNil(t.Bcc),
		"createdAt":  formatDate(&t.CreatedAt),
		"openedAt":   formatDate(t.OpenedAt),
	}, nil
}

type Conversation struct {
	ID                int64      `json:"id"`
	Number            int64      `json:"number"`
	Type              string     `json:"type"`
	FolderID          int64      `json:"folderId"`
	Status            string     `json:"status"`
	State             string     `json:"state"`
	Subject           string     `json:"subject"`
	Preview           string     `json:"preview"`
	MailboxID         int64      `json:"mailboxId"`
	Assignee          *User      `json:"assignee,omitempty"`
	CreatedByUser     *User      `json:"createdByUser,omitempty"`
	CreatedByCustomer *Customer  `json:"createdByCustomer,omitempty"`
	Customer          *Customer  `json:"customer,omitempty"`
	ClosedBy          *User      `json:"closedBy,omitempty"`
	Threads           []*Thread  `json:"threads,omitempty"`
	Cc                []string   `json:"cc,omitempty"`
	Bcc               []string   `json:"bcc,omitempty"`
	CreatedAt         time.Time  `json:"createdAt"`
	UpdatedAt         time.Time  `json:"updatedAt"`
	ClosedAt          *time.Time `json:"closedAt,omitempty"`
	LastReplyAt       *time.Time `json:"lastReplyAt,omitempty"`
}

// RoutingKey routes conversation events by mailbox.
func (c *Conversation) RoutingKey() *int64 {
	id := c.MailboxID
	return &id
}

func (c *Conversation) Format(opts formatter.Options) (map[string]any, error) {
	threads := []map[string]any{}
	if opts.Full {
		for _, t := range c.Threads {
			doc, err := t.Format(opts)
			if err != nil {
				return nil, err
			}
			threads = append(threads, doc)
		}
	}

	var assignee, createdBy, customer, closedBy any
	if c.Assignee != nil {
		assignee = summary(c.Assignee)
	}
	via := "customer"
	switch {
	case c.CreatedByUser != nil:
		createdBy = summary(c.CreatedByUser)
		via = "user"
	case c.CreatedByCustomer != nil:
		createdBy = summary(c.CreatedByCustomer)
	}
	if c.Customer != nil {
		customer = summary(c.Customer)
	}
	status := orDefault(c.Status, StatusActive)
	if status == StatusClosed && c.ClosedBy != nil {
		closedBy = summary(c.ClosedBy)
	}

	return map[string]any{
		"id":           c.ID,
		"number":       c.Number,
		"threadsCount": len(c.Threads),
		"type":         orDefault(c.Type, "email"),
		"folderId":     c.FolderID,
		"status":       status,
		"state":        orDefault(c.State, StatePublished),
		"subject":      c.Subject,
		"preview":      c.Preview,
		"mailboxId":    c.MailboxID,
		"assignee":     assignee,
		"createdBy":    createdBy,
		"closedByUser": closedBy,
		"createdAt":    formatDate(&c.CreatedAt),
		"updatedAt":    formatDate(&c.UpdatedAt),
		"closedAt":     formatDate(c.ClosedAt),
		"customerWaitingSince": map[string]any{
			"time": formatDate(c.LastReplyAt),
		},
		"source":    map[string]any{"via": via},
		"cc":        emptyIfNil(c.Cc),
		"bcc":       emptyIfNil(c.Bcc),
		"customer":  customer,
		"_embedded": map[string]any{"threads": threads},
	}, nil
}

func summary(f formatter.Formattable) map[string]any {
	// Summary shapes never fail.
	doc, _ := f.Format(formatter.Options{})
	return doc
}

func formatDate(t *time.Time) any {
	if t == nil || t.IsZero() {
		return nil
	}
	return t.UTC().Format(time.RFC3339)
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

func emptyIfNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
