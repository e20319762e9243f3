package message

import (
	"strings"

	"github.com/Enriquefft/webhook-funnel/internal/jsoncodec"
)

// Kind identifies the type of a Fragment.
type Kind int

const (
	KindText Kind = iota
	KindLink
)

func (k Kind) String() string {
	switch k {
	case KindText:
		return "text"
	case KindLink:
		return "url"
	default:
		return "unknown"
	}
}

// Fragment is the smallest unit of a chat post: plain text or a bare link.
type Fragment struct {
	Kind  Kind
	Value string
}

// Message is one deliverable chat post. Fragment order is significant.
// A Message is never mutated after construction; the builder methods return
// a new value.
type Message struct {
	fragments []Fragment
}

// New returns an empty message.
func New() Message {
	return Message{}
}

// TextMessage returns a message holding a single text fragment.
func TextMessage(s string) Message {
	return New().Text(s)
}

// LinkMessage returns a message holding a single link fragment.
func LinkMessage(url string) Message {
	return New().Link(url)
}

// Text returns a copy of m with a text fragment appended.
func (m Message) Text(s string) Message {
	return m.with(Fragment{Kind: KindText, Value: s})
}

// Link returns a copy of m with a link fragment appended.
func (m Message) Link(url string) Message {
	return m.with(Fragment{Kind: KindLink, Value: url})
}

func (m Message) with(f Fragment) Message {
	out := make([]Fragment, len(m.fragments), len(m.fragments)+1)
	copy(out, m.fragments)
	return Message{fragments: append(out, f)}
}

// Fragments returns a copy of the ordered fragments.
func (m Message) Fragments() []Fragment {
	out := make([]Fragment, len(m.fragments))
	copy(out, m.fragments)
	return out
}

// Len returns the number of fragments.
func (m Message) Len() int {
	return len(m.fragments)
}

// Equal reports whether both messages hold the same fragments in the same order.
func (m Message) Equal(other Message) bool {
	if len(m.fragments) != len(other.fragments) {
		return false
	}
	for i := range m.fragments {
		if m.fragments[i] != other.fragments[i] {
			return false
		}
	}
	return true
}

// String renders the fragments separated by a space. Used for logs and the CLI.
func (m Message) String() string {
	parts := make([]string, len(m.fragments))
	for i, f := range m.fragments {
		parts[i] = f.Value
	}
	return strings.Join(parts, " ")
}

// wireFragment is the JSON shape of a fragment on the chat wire.
type wireFragment struct {
	Text *string `json:"text,omitempty"`
	URL  *string `json:"url,omitempty"`
}

// MarshalJSON encodes the message as [{"text":"..."},{"url":"..."}].
func (m Message) MarshalJSON() ([]byte, error) {
	wire := make([]wireFragment, len(m.fragments))
	for i, f := range m.fragments {
		v := f.Value
		if f.Kind == KindLink {
			wire[i].URL = &v
		} else {
			wire[i].Text = &v
		}
	}
	return jsoncodec.Marshal(wire)
}

// UnmarshalJSON decodes the wire shape produced by MarshalJSON.
func (m *Message) UnmarshalJSON(data []byte) error {
	var wire []wireFragment
	if err := jsoncodec.Unmarshal(data, &wire); err != nil {
		return err
	}
	out := New()
	for _, w := range wire {
		switch {
		case w.URL != nil:
			out = out.Link(*w.URL)
		case w.Text != nil:
			out = out.Text(*w.Text)
		}
	}
	*m = out
	return nil
}
