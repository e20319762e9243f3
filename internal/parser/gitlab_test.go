package parser

import (
	"strings"
	"testing"

	"github.com/Enriquefft/webhook-funnel/internal/message"
)

const pushPayload = `{
  "object_kind": "push",
  "user_username": "jsmith",
  "user_avatar": "https://gitlab.example.com/uploads/user/avatar/1/index.jpg",
  "project": {
    "web_url": "https://gitlab.example.com/mike/diaspora",
    "avatar_url": "https://gitlab.example.com/uploads/project/avatar/15/logo.png"
  },
  "commits": [
    {"id": "a1", "title": "fix bug"},
    {"id": "b2", "title": "add test"}
  ]
}`

func wantMessages(t *testing.T, got, want []message.Message) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("got %d messages, want %d:\n%s", len(got), len(want), render(got))
	}
	for i := range want {
		if !got[i].Equal(want[i]) {
			t.Errorf("message %d: got %q, want %q", i, got[i].String(), want[i].String())
		}
	}
}

func render(msgs []message.Message) string {
	lines := make([]string, len(msgs))
	for i, m := range msgs {
		lines[i] = m.String()
	}
	return strings.Join(lines, "\n")
}

func TestGitLab_PushTwoCommits(t *testing.T) {
	out := NewGitLab(nil).TryParse(pushPayload)
	if !out.Applicable {
		t.Fatal("expected push payload to be applicable")
	}

	wantMessages(t, out.Messages, []message.Message{
		message.LinkMessage("https://gitlab.example.com/uploads/project/avatar/15/logo.png"),
		message.TextMessage("jsmith -- push"),
		message.LinkMessage("https://gitlab.example.com/mike/diaspora"),
		message.TextMessage("    +  a1: fix bug"),
		message.TextMessage("    +  b2: add test"),
		message.TextMessage(Separator),
	})
}

func TestGitLab_PushShortensCommitID(t *testing.T) {
	payload := `{"object_kind":"push","user_username":"jsmith","commits":[
		{"id":"da1560886d4f094c3e6c9ef40349f7d38b5d27d7","title":"Update Catalan translation"}]}`

	out := NewGitLab(nil).TryParse(payload)
	if !out.Applicable {
		t.Fatal("expected applicable")
	}
	got := out.Messages[len(out.Messages)-2].String()
	if got != "    +  da156088: Update Catalan translation" {
		t.Fatalf("got %q", got)
	}
}

func TestGitLab_PushWithoutCommits(t *testing.T) {
	payload := `{"object_kind":"push","user_username":"jsmith","project":{"web_url":"https://x"}}`

	out := NewGitLab(nil).TryParse(payload)
	if !out.Applicable {
		t.Fatal("expected applicable")
	}
	wantMessages(t, out.Messages, []message.Message{
		message.TextMessage("jsmith -- push"),
		message.LinkMessage("https://x"),
		message.TextMessage(Separator),
	})
}

func TestGitLab_PushCommitMissingTitleFailsWholeEvent(t *testing.T) {
	payload := `{"object_kind":"push","user_username":"jsmith","commits":[
		{"id":"a1","title":"fix bug"},{"id":"b2"}]}`

	if out := NewGitLab(nil).TryParse(payload); out.Applicable {
		t.Fatalf("expected not applicable, got %d messages", len(out.Messages))
	}
}

func TestGitLab_Issue(t *testing.T) {
	payload := `{
	  "object_kind": "issue",
	  "user": {"username": "root", "avatar_url": "ignored"},
	  "user_avatar": "https://gitlab.example.com/root.png",
	  "project": {"web_url": "https://gitlab.example.com/gitlabhq/gitlab-test"},
	  "object_attributes": {"title": "Crash on startup"}
	}`

	out := NewGitLab(nil).TryParse(payload)
	if !out.Applicable {
		t.Fatal("expected issue payload to be applicable")
	}
	wantMessages(t, out.Messages, []message.Message{
		message.LinkMessage("https://gitlab.example.com/root.png"),
		message.TextMessage("root -- issue"),
		message.LinkMessage("https://gitlab.example.com/gitlabhq/gitlab-test"),
		message.TextMessage("Title: Crash on startup"),
		message.TextMessage(Separator),
	})
}

func TestGitLab_IssueMissingTitle(t *testing.T) {
	payload := `{"object_kind":"issue","user_username":"root","object_attributes":{}}`
	if out := NewGitLab(nil).TryParse(payload); out.Applicable {
		t.Fatal("expected not applicable for issue without title")
	}
}

func TestGitLab_HeaderOnlyKinds(t *testing.T) {
	kinds := []string{
		"tag_push", "note", "merge_request", "wiki_page",
		"build", "deployment", "feature_flag", "release",
	}
	for _, kind := range kinds {
		t.Run(kind, func(t *testing.T) {
			payload := `{"object_kind":"` + kind + `","user":{"username":"alice"},
				"project":{"web_url":"https://gitlab.example.com/p","avatar_url":"https://gitlab.example.com/p.png"}}`

			out := NewGitLab(nil).TryParse(payload)
			if !out.Applicable {
				t.Fatalf("expected %s to be applicable", kind)
			}
			wantMessages(t, out.Messages, []message.Message{
				message.LinkMessage("https://gitlab.example.com/p.png"),
				message.TextMessage("alice -- " + kind),
				message.LinkMessage("https://gitlab.example.com/p"),
				message.TextMessage(Separator),
			})
		})
	}
}

func TestGitLab_UnknownKind(t *testing.T) {
	payload := `{"object_kind":"unknown_kind","user_username":"jsmith"}`
	if out := NewGitLab(nil).TryParse(payload); out.Applicable {
		t.Fatal("expected not applicable for unknown kind")
	}
}

func TestGitLab_MissingKind(t *testing.T) {
	payload := `{"user_username":"jsmith","project":{"web_url":"https://x"}}`
	if out := NewGitLab(nil).TryParse(payload); out.Applicable {
		t.Fatal("expected not applicable without object_kind")
	}
}

func TestGitLab_MissingUserFailsRegardlessOfOtherFields(t *testing.T) {
	payload := `{
	  "object_kind": "push",
	  "user_avatar": "https://gitlab.example.com/u.png",
	  "user": {"name": "John"},
	  "project": {"web_url": "https://x", "avatar_url": "https://x.png"},
	  "commits": [{"id": "a1", "title": "fix bug"}]
	}`
	out := NewGitLab(nil).TryParse(payload)
	if out.Applicable || out.Messages != nil {
		t.Fatalf("expected not applicable with no messages, got %+v", out)
	}
}

func TestGitLab_NestedUsernameFallback(t *testing.T) {
	payload := `{"object_kind":"note","user":{"username":"nested"}}`
	out := NewGitLab(nil).TryParse(payload)
	if !out.Applicable {
		t.Fatal("expected applicable")
	}
	if got := out.Messages[0].String(); got != "nested -- note" {
		t.Fatalf("got %q", got)
	}
}

func TestGitLab_MissingAvatarsStillApplicable(t *testing.T) {
	payload := `{"object_kind":"push","user_username":"jsmith",
		"project":{"web_url":"https://gitlab.example.com/mike/diaspora"},
		"commits":[{"id":"a1","title":"fix bug"}]}`

	out := NewGitLab(nil).TryParse(payload)
	if !out.Applicable {
		t.Fatal("expected applicable without avatars")
	}
	wantMessages(t, out.Messages, []message.Message{
		message.TextMessage("jsmith -- push"),
		message.LinkMessage("https://gitlab.example.com/mike/diaspora"),
		message.TextMessage("    +  a1: fix bug"),
		message.TextMessage(Separator),
	})
}

func TestGitLab_AvatarFallsBackToUser(t *testing.T) {
	payload := `{"object_kind":"release","user_username":"jsmith","user_avatar":"https://u.png","project":{}}`
	out := NewGitLab(nil).TryParse(payload)
	if !out.Applicable {
		t.Fatal("expected applicable")
	}
	if !out.Messages[0].Equal(message.LinkMessage("https://u.png")) {
		t.Fatalf("got first message %q, want user avatar link", out.Messages[0].String())
	}
}

func TestGitLab_MalformedInput(t *testing.T) {
	inputs := []string{
		"",
		"not json at all",
		`{"object_kind": "push"`,
		`[1, 2, 3]`,
		`null`,
		`"push"`,
		`{"object_kind": 42, "user_username": "jsmith"}`,
	}
	p := NewGitLab(nil)
	for _, in := range inputs {
		if out := p.TryParse(in); out.Applicable {
			t.Errorf("input %q: expected not applicable", in)
		}
	}
}
