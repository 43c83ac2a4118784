// Package formatter turns domain objects into the JSON documents sent to
// webhook subscribers.
package formatter

import (
	"encoding/json"
	"errors"
	"fmt"
)

var ErrUnformattable = errors.New("value cannot be formatted")

// Options controls the shape of a formatted document.
type Options struct {
	// Full selects the complete representation including embedded
	// relations. Webhook payloads always use it.
	Full bool
	// Extra is merged into the top level of the document.
	Extra map[string]any
}

// Formattable is implemented by domain types that know their own wire shape.
type Formattable interface {
	Format(opts Options) (map[string]any, error)
}

type Formatter interface {
	Format(v any, opts Options) (json.RawMessage, error)
}

// Default formats Formattable values and passes JSON documents through
// unchanged, so a stored payload can be re-sent as is.
type Default struct{}

func (Default) Format(v any, opts Options) (json.RawMessage, error) {
	switch p := v.(type) {
	case nil:
		return nil, fmt.Errorf("%w: nil payload", ErrUnformattable)
	case json.RawMessage:
		return passthrough(p, opts)
	case []byte:
		return passthrough(p, opts)
	case Formattable:
		doc, err := p.Format(opts)
		if err != nil {
			return nil, fmt.Errorf("formatting %T: %w", v, err)
		}
		return marshal(doc, opts)
	case map[string]any:
		return marshal(p, opts)
	default:
		return nil, fmt.Errorf("%w: unsupported type %T", ErrUnformattable, v)
	}
}

func passthrough(raw []byte, opts Options) (json.RawMessage, error) {
	if !json.Valid(raw) {
		return nil, fmt.Errorf("%w: invalid JSON document", ErrUnformattable)
	}
	if len(opts.Extra) == 0 {
		return json.RawMessage(raw), nil
	}

	var doc map[string]any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("%w: extra fields need a JSON object: %v", ErrUnformattable, err)
	}
	return marshal(doc, opts)
}

func marshal(doc map[string]any, opts Options) (json.RawMessage, error) {
	if len(opts.Extra) > 0 {
		merged := make(map[string]any, len(doc)+len(opts.Extra))
		for k, v := range doc {
			merged[k] = v
		}
		for k, v := range opts.Extra {
			merged[k] = v
		}
		doc = merged
	}

	b, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("marshaling payload: %w", err)
	}
	return b, nil
}
