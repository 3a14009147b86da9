package bot

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"lookupbot/internal/knowledge"
	"lookupbot/internal/model"
	"lookupbot/internal/storage/flatfile"
)

func newTestEngine(t *testing.T, entries ...model.Entry) *knowledge.Service {
	t.Helper()
	store := flatfile.New(filepath.Join(t.TempDir(), "entries.txt"))
	if err := store.Save(context.Background(), entries); err != nil {
		t.Fatalf("seed store: %v", err)
	}
	svc := knowledge.New(store)
	if err := svc.Load(context.Background()); err != nil {
		t.Fatalf("load: %v", err)
	}
	return svc
}

func TestParseCommand(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in    string
		name  string
		args  string
		isCmd bool
	}{
		{in: "/start", name: "start", isCmd: true},
		{in: "/ADD a,b some text", name: "add", args: "a,b some text", isCmd: true},
		{in: "/delete@LookupBot  x ", name: "delete", args: "x", isCmd: true},
		{in: "/edit\na new", name: "edit", args: "a new", isCmd: true},
		{in: "/", isCmd: false},
		{in: "fever", isCmd: false},
	}
	for _, tc := range cases {
		name, args, ok := parseCommand(tc.in)
		if ok != tc.isCmd || name != tc.name || args != tc.args {
			t.Fatalf("parseCommand(%q) => (%q, %q, %v), want (%q, %q, %v)", tc.in, name, args, ok, tc.name, tc.args, tc.isCmd)
		}
	}
}

func TestHandleStartAndButtons(t *testing.T) {
	svc := newTestEngine(t)
	ctx := context.Background()

	got := Handle(ctx, svc, "/start")
	if len(got) != 1 || !got[0].Menu || !strings.Contains(got[0].Text, "/add") {
		t.Fatalf("unexpected start reply: %#v", got)
	}
	for _, tc := range []struct{ button, want string }{
		{ButtonAdd, "/add"},
		{ButtonDelete, "/delete"},
		{ButtonEdit, "/edit"},
	} {
		got := Handle(ctx, svc, tc.button)
		if len(got) != 1 || !strings.Contains(got[0].Text, tc.want) {
			t.Fatalf("button %q: unexpected reply %#v", tc.button, got)
		}
	}
	if svc.Len() != 0 {
		t.Fatalf("buttons must not change the store")
	}
}

func TestHandleAddDeleteEditLookup(t *testing.T) {
	svc := newTestEngine(t)
	ctx := context.Background()

	got := Handle(ctx, svc, "/add aspirin")
	if len(got) != 1 || !strings.HasPrefix(got[0].Text, "❗️ Format") {
		t.Fatalf("expected format hint, got %#v", got)
	}

	got = Handle(ctx, svc, "/add Aspirin,ASA 500 mg twice a day")
	if len(got) != 1 || got[0].Text != "✅ Entry *aspirin, asa* added!" || !got[0].Quote {
		t.Fatalf("unexpected add reply: %#v", got)
	}

	got = Handle(ctx, svc, "what about asa?")
	if len(got) != 1 || got[0].Text != "500 mg twice a day" {
		t.Fatalf("unexpected lookup reply: %#v", got)
	}

	got = Handle(ctx, svc, "/edit asa 1 g once")
	if len(got) != 1 || got[0].Text != "✅ Text for *asa* updated!" {
		t.Fatalf("unexpected edit reply: %#v", got)
	}
	got = Handle(ctx, svc, "/edit ibuprofen 200 mg")
	if len(got) != 1 || got[0].Text != "⚠️ Text for *ibuprofen* not found." {
		t.Fatalf("unexpected edit miss reply: %#v", got)
	}

	got = Handle(ctx, svc, "/delete aspirin, nope")
	if len(got) != 1 || got[0].Text != "✅ Entry *aspirin* deleted!\n⚠️ Entry *nope* not found." {
		t.Fatalf("unexpected delete reply: %#v", got)
	}
	got = Handle(ctx, svc, "/delete")
	if len(got) != 1 || !strings.Contains(got[0].Text, "/delete") {
		t.Fatalf("expected delete format hint, got %#v", got)
	}

	got = Handle(ctx, svc, "asa")
	if len(got) != 1 || !strings.HasPrefix(got[0].Text, "😕") {
		t.Fatalf("expected no-answer reply, got %#v", got)
	}
}

func TestHandleSendsEachMatchSeparately(t *testing.T) {
	svc := newTestEngine(t,
		model.Entry{Keys: []string{"fever"}, Text: "Give antipyretic."},
		model.Entry{Keys: []string{"cough"}, Text: "Give syrup."},
		model.Entry{Keys: []string{"temperature", "fever"}, Text: "Give antipyretic."},
	)
	got := Handle(context.Background(), svc, "fever and cough")
	if len(got) != 2 || got[0].Text != "Give antipyretic." || got[1].Text != "Give syrup." {
		t.Fatalf("unexpected replies: %#v", got)
	}
	got = Handle(context.Background(), svc, "/unknown fever")
	if len(got) != 1 || got[0].Text != "Give antipyretic." {
		t.Fatalf("unknown commands should fall through to lookup, got %#v", got)
	}
}

func TestJoinKeysEscapesMarkdown(t *testing.T) {
	if got := joinKeys([]string{"vitamin_b12", "a*b"}); got != `vitamin\_b12, a\*b` {
		t.Fatalf("unexpected escaped keys: %q", got)
	}
}
