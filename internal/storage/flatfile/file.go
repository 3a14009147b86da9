// Package flatfile stores entries in a plain text file, one entry per line:
//
//	key1,key2||text
//
// Neither separator is escaped, so keys must not contain "," or "||". A line
// without "||" continues the text of the previous entry, which lets texts span
// several lines.
package flatfile

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"lookupbot/internal/model"
)

const Separator = "||"

type Store struct {
	Path string
}

func New(path string) *Store {
	return &Store{Path: path}
}

// Load reads the file. A missing file is an empty knowledge base.
func (s *Store) Load(_ context.Context) ([]model.Entry, error) {
	f, err := os.Open(s.Path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return []model.Entry{}, nil
		}
		return nil, fmt.Errorf("open entries file: %w", err)
	}
	defer f.Close()
	entries, err := Decode(f)
	if err != nil {
		return nil, fmt.Errorf("read entries file %s: %w", s.Path, err)
	}
	return entries, nil
}

// Save writes all entries to a temporary file next to Path and renames it
// over the old one, so readers see either the old or the new content.
func (s *Store) Save(_ context.Context, entries []model.Entry) error {
	dir := filepath.Dir(s.Path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("mkdir entries dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(s.Path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp entries file: %w", err)
	}
	tmpName := tmp.Name()
	cleanup := func() {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
	}
	if err := Encode(tmp, entries); err != nil {
		cleanup()
		return fmt.Errorf("write entries file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		cleanup()
		return fmt.Errorf("sync entries file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("close entries file: %w", err)
	}
	if err := os.Rename(tmpName, s.Path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("replace entries file: %w", err)
	}
	return nil
}

// Decode parses the line format from r.
func Decode(r io.Reader) ([]model.Entry, error) {
	b, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	b = bytes.TrimPrefix(b, []byte("\ufeff"))
	entries := []model.Entry{}
	if len(b) == 0 {
		return entries, nil
	}
	content := string(b)
	// A hand-edited CRLF file has "\r" before every line break. Files written by
	// Encode end each entry with a bare "\n", so CRLF inside a text survives.
	crlf := strings.Count(content, "\r\n") == strings.Count(content, "\n")
	lines := strings.Split(content, "\n")
	if crlf {
		for i := range lines {
			lines[i] = strings.TrimSuffix(lines[i], "\r")
		}
	}
	if lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	for _, ln := range lines {
		keysPart, text, ok := strings.Cut(ln, Separator)
		if !ok {
			if len(entries) == 0 {
				// Stray text before the first entry has nowhere to go.
				continue
			}
			last := &entries[len(entries)-1]
			last.Text += "\n" + ln
			continue
		}
		keys := []string{}
		for _, k := range strings.Split(keysPart, ",") {
			k = strings.ToLower(strings.TrimSpace(k))
			if k != "" {
				keys = append(keys, k)
			}
		}
		entries = append(entries, model.Entry{Keys: keys, Text: text})
	}
	return entries, nil
}

// Encode writes entries in the line format.
func Encode(w io.Writer, entries []model.Entry) error {
	bw := bufio.NewWriter(w)
	for _, e := range entries {
		if _, err := bw.WriteString(strings.Join(e.Keys, ",") + Separator + e.Text + "\n"); err != nil {
			return err
		}
	}
	return bw.Flush()
}
