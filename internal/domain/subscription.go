package domain

import (
	"fmt"
	"net/url"
	"slices"
	"sort"
	"strings"
	"time"
)

const maxSecretLength = 255

// Subscription is one externally hosted endpoint and the events it wants.
type Subscription struct {
	ID            int64      `json:"id"`
	URL           string     `json:"url"`
	Events        []string   `json:"events"`
	RoutingKeys   []int64    `json:"mailboxes,omitempty"`
	Secret        *string    `json:"-"`
	LastAttemptAt *time.Time `json:"lastRunTime,omitempty"`
	LastError     *string    `json:"lastRunError,omitempty"`
	CreatedAt     time.Time  `json:"createdAt"`
	UpdatedAt     time.Time  `json:"updatedAt"`
}

// WantsEvent reports whether name is in the subscription's event filter.
func (s Subscription) WantsEvent(name string) bool {
	return slices.Contains(s.Events, name)
}

// MatchesRouting reports whether the subscription accepts the routing key.
// A nil key or an empty routing filter matches everything.
func (s Subscription) MatchesRouting(key *int64) bool {
	if key == nil || len(s.RoutingKeys) == 0 {
		return true
	}
	return slices.Contains(s.RoutingKeys, *key)
}

// HasSecret reports whether a subscription-specific signing secret is set.
func (s Subscription) HasSecret() bool {
	return s.Secret != nil && *s.Secret != ""
}

// SubscriptionInput is the administrative create/update payload.
type SubscriptionInput struct {
	URL         string   `json:"url"`
	Events      []string `json:"events"`
	RoutingKeys []int64  `json:"mailboxes"`
	Secret      *string  `json:"secret"`
}

// Normalize deduplicates events and routing keys, preserving first-seen
// order. An empty routing filter becomes nil and a blank secret is cleared.
func (in SubscriptionInput) Normalize() SubscriptionInput {
	out := SubscriptionInput{URL: strings.TrimSpace(in.URL)}

	seen := make(map[string]struct{}, len(in.Events))
	for _, e := range in.Events {
		e = strings.TrimSpace(e)
		if _, ok := seen[e]; ok {
			continue
		}
		seen[e] = struct{}{}
		out.Events = append(out.Events, e)
	}

	if len(in.RoutingKeys) > 0 {
		keys := make(map[int64]struct{}, len(in.RoutingKeys))
		for _, k := range in.RoutingKeys {
			if _, ok := keys[k]; ok {
				continue
			}
			keys[k] = struct{}{}
			out.RoutingKeys = append(out.RoutingKeys, k)
		}
	}

	if in.Secret != nil && *in.Secret != "" {
		secret := *in.Secret
		out.Secret = &secret
	}

	return out
}

// Validate checks the input against the subscription rules and returns a
// *ValidationError describing every failing field.
func (in SubscriptionInput) Validate() error {
	verr := &ValidationError{}

	if in.URL == "" {
		verr.Add("url", "is required")
	} else if !isAbsoluteURL(in.URL) {
		verr.Add("url", "must be an absolute http or https URL")
	}

	if len(in.Events) == 0 {
		verr.Add("events", "must contain at least one event")
	}
	for _, e := range in.Events {
		if strings.TrimSpace(e) == "" {
			verr.Add("events", "must not contain empty names")
			break
		}
	}

	if in.Secret != nil && len(*in.Secret) > maxSecretLength {
		verr.Add("secret", fmt.Sprintf("must be at most %d characters", maxSecretLength))
	}

	if verr.HasErrors() {
		return verr
	}
	return nil
}

func isAbsoluteURL(raw string) bool {
	u, err := url.ParseRequestURI(raw)
	if err != nil {
		return false
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return false
	}
	return u.Host != ""
}

// ValidationError collects per-field validation messages.
type ValidationError struct {
	Fields map[string][]string `json:"fields"`
}

func (e *ValidationError) Add(field, msg string) {
	if e.Fields == nil {
		e.Fields = make(map[string][]string)
	}
	e.Fields[field] = append(e.Fields[field], msg)
}

func (e *ValidationError) HasErrors() bool {
	return len(e.Fields) > 0
}

func (e *ValidationError) Error() string {
	names := make([]string, 0, len(e.Fields))
	for name := range e.Fields {
		names = append(names, name)
	}
	sort.Strings(names)

	parts := make([]string, 0, len(names))
	for _, name := range names {
		parts = append(parts, name+" "+strings.Join(e.Fields[name], ", "))
	}
	return "validation failed: " + strings.Join(parts, "; ")
}
