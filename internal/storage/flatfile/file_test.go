package flatfile

import (
	"context"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"lookupbot/internal/model"
)

func TestDecodeLines(t *testing.T) {
	t.Parallel()

	in := "\ufeffFever, Heat ||Give antipyretic.\naspirin||Dose:\n500 mg\n\nwith water\n||orphan\n"
	got, err := Decode(strings.NewReader(in))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	want := []model.Entry{
		{Keys: []string{"fever", "heat"}, Text: "Give antipyretic."},
		{Keys: []string{"aspirin"}, Text: "Dose:\n500 mg\n\nwith water"},
		{Keys: []string{}, Text: "orphan"},
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("unexpected entries:\n got %#v\nwant %#v", got, want)
	}
}

func TestDecodeLineEndings(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		in   string
		want []model.Entry
	}{
		{
			name: "crlf file",
			in:   "a||A\r\nb||B1\r\nB2\r\n",
			want: []model.Entry{{Keys: []string{"a"}, Text: "A"}, {Keys: []string{"b"}, Text: "B1\nB2"}},
		},
		{
			name: "crlf inside text of an lf file",
			in:   "a||x\r\ny\nb||B\n",
			want: []model.Entry{{Keys: []string{"a"}, Text: "x\r\ny"}, {Keys: []string{"b"}, Text: "B"}},
		},
	}
	for _, tc := range cases {
		got, err := Decode(strings.NewReader(tc.in))
		if err != nil {
			t.Fatalf("%s: decode: %v", tc.name, err)
		}
		if !reflect.DeepEqual(got, tc.want) {
			t.Fatalf("%s: got %#v want %#v", tc.name, got, tc.want)
		}
	}
}

func TestSaveLoadKeepsCarriageReturnsInText(t *testing.T) {
	s := New(filepath.Join(t.TempDir(), "entries.txt"))
	entries := []model.Entry{{Keys: []string{"win"}, Text: "line one\r\nline two"}}
	if err := s.Save(context.Background(), entries); err != nil {
		t.Fatalf("save: %v", err)
	}
	got, err := s.Load(context.Background())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !reflect.DeepEqual(got, entries) {
		t.Fatalf("round trip changed text: %#v", got)
	}
}

func TestDecodeSkipsLeadingStrayLines(t *testing.T) {
	t.Parallel()

	got, err := Decode(strings.NewReader("stray\na||A\n"))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(got) != 1 || got[0].Text != "A" {
		t.Fatalf("unexpected entries: %#v", got)
	}
}

func TestLoadMissingFileIsEmpty(t *testing.T) {
	s := New(filepath.Join(t.TempDir(), "missing.txt"))
	got, err := s.Load(context.Background())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("expected no entries, got %d", len(got))
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "entries.txt")
	s := New(path)
	entries := []model.Entry{
		{Keys: []string{"a", "b"}, Text: "first"},
		{Keys: []string{"мочевой пузырь"}, Text: "line one\nline two\n"},
		{Keys: []string{"c"}, Text: "*bold* text"},
	}
	ctx := context.Background()
	if err := s.Save(ctx, entries); err != nil {
		t.Fatalf("save: %v", err)
	}
	loaded, err := s.Load(ctx)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !reflect.DeepEqual(loaded, entries) {
		t.Fatalf("round trip mismatch:\n got %#v\nwant %#v", loaded, entries)
	}
	if err := s.Save(ctx, loaded); err != nil {
		t.Fatalf("second save: %v", err)
	}
	again, err := s.Load(ctx)
	if err != nil {
		t.Fatalf("second load: %v", err)
	}
	if !reflect.DeepEqual(again, entries) {
		t.Fatalf("save(load()) changed content: %#v", again)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read file: %v", err)
	}
	if !strings.HasPrefix(string(raw), "a,b||first\n") {
		t.Fatalf("unexpected on-disk layout: %q", raw)
	}
	leftovers, _ := filepath.Glob(filepath.Join(filepath.Dir(path), ".*.tmp"))
	if len(leftovers) != 0 {
		t.Fatalf("temp files left behind: %v", leftovers)
	}
}

func TestSaveEmptyTruncates(t *testing.T) {
	s := New(filepath.Join(t.TempDir(), "entries.txt"))
	ctx := context.Background()
	if err := s.Save(ctx, []model.Entry{{Keys: []string{"a"}, Text: "A"}}); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := s.Save(ctx, nil); err != nil {
		t.Fatalf("save empty: %v", err)
	}
	got, err := s.Load(ctx)
	if err != nil || len(got) != 0 {
		t.Fatalf("expected empty file, got %#v err=%v", got, err)
	}
}
