package parser

import (
	"fmt"
	"log/slog"

	"github.com/Enriquefft/webhook-funnel/internal/jsoncodec"
	"github.com/Enriquefft/webhook-funnel/internal/logging"
	"github.com/Enriquefft/webhook-funnel/internal/message"
)

// Separator closes the rendering of every GitLab event.
const Separator = "=========="

const shortIDLen = 8

// gitlabKinds lists the supported values of the object_kind discriminator.
var gitlabKinds = map[string]struct{}{
	"push":          {},
	"tag_push":      {},
	"issue":         {},
	"note":          {},
	"merge_request": {},
	"wiki_page":     {},
	"build":         {},
	"deployment":    {},
	"feature_flag":  {},
	"release":       {},
}

// GitLab translates GitLab webhook payloads.
type GitLab struct {
	logger *slog.Logger
}

// NewGitLab creates the GitLab parser.
func NewGitLab(logger *slog.Logger) *GitLab {
	return &GitLab{logger: logging.Default(logger).With("component", "parser", "parser", "gitlab")}
}

func (g *GitLab) Name() string { return "gitlab" }

// TryParse renders a GitLab event as header, kind-specific body and a
// trailing separator.
func (g *GitLab) TryParse(raw string) Outcome {
	doc, err := jsoncodec.ParseDocument(raw)
	if err != nil {
		return NotApplicable()
	}

	kind, ok := doc.String("object_kind")
	if !ok {
		return NotApplicable()
	}
	if _, ok := gitlabKinds[kind]; !ok {
		return NotApplicable()
	}

	msgs, ok := g.header(doc, kind)
	if !ok {
		return NotApplicable()
	}

	switch kind {
	case "push":
		lines, ok := commitLines(doc)
		if !ok {
			return NotApplicable()
		}
		msgs = append(msgs, lines...)

	case "issue":
		title, ok := doc.String("object_attributes", "title")
		if !ok {
			return NotApplicable()
		}
		msgs = append(msgs, message.TextMessage("Title: "+title))
	}

	msgs = append(msgs, message.TextMessage(Separator))
	return Applicable(msgs)
}

// header builds the messages shared by every event kind: avatar link (when
// one resolves), "<user> -- <kind>", and the project URL (when present).
// It reports false when the acting user cannot be resolved.
func (g *GitLab) header(doc jsoncodec.Document, kind string) ([]message.Message, bool) {
	user, ok := username(doc)
	if !ok {
		g.logger.Debug("failed to resolve username", "kind", kind)
		return nil, false
	}

	var msgs []message.Message
	if avatar, ok := avatar(doc); ok {
		msgs = append(msgs, message.LinkMessage(avatar))
	} else {
		g.logger.Debug("no project or user avatar", "kind", kind, "user", user)
	}

	msgs = append(msgs, message.TextMessage(fmt.Sprintf("%s -- %s", user, kind)))

	if url, ok := nonEmpty(doc.String("project", "web_url")); ok {
		msgs = append(msgs, message.LinkMessage(url))
	}
	return msgs, true
}

// username resolves user_username, falling back to user.username.
func username(doc jsoncodec.Document) (string, bool) {
	if u, ok := nonEmpty(doc.String("user_username")); ok {
		return u, true
	}
	return nonEmpty(doc.String("user", "username"))
}

// avatar resolves project.avatar_url, falling back to user_avatar.
func avatar(doc jsoncodec.Document) (string, bool) {
	if a, ok := nonEmpty(doc.String("project", "avatar_url")); ok {
		return a, true
	}
	return nonEmpty(doc.String("user_avatar"))
}

// commitLines renders one line per commit in payload order. A commit without
// an id or title fails the whole event.
func commitLines(doc jsoncodec.Document) ([]message.Message, bool) {
	commits, ok := doc.Objects("commits")
	if !ok {
		return nil, true
	}

	lines := make([]message.Message, 0, len(commits))
	for _, c := range commits {
		if c == nil {
			return nil, false
		}
		id, ok := nonEmpty(c.String("id"))
		if !ok {
			return nil, false
		}
		title, ok := c.String("title")
		if !ok {
			return nil, false
		}
		lines = append(lines, message.TextMessage(fmt.Sprintf("    +  %s: %s", shortID(id), title)))
	}
	return lines, true
}

func shortID(id string) string {
	if len(id) <= shortIDLen {
		return id
	}
	return id[:shortIDLen]
}

func nonEmpty(s string, ok bool) (string, bool) {
	if !ok || s == "" {
		return "", false
	}
	return s, true
}
