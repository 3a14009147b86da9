// Package backup writes point-in-time copies of the knowledge base in the
// flat-file layout and optionally ships them to Google Cloud Storage.
package backup

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"time"

	"lookupbot/internal/model"
	"lookupbot/internal/storage/flatfile"
)

const filePrefix = "entries-"

// Source yields the entries to snapshot.
type Source interface {
	Entries() []model.Entry
}

// Uploader copies a finished snapshot somewhere off the host.
type Uploader interface {
	Upload(ctx context.Context, localPath, objectName string) error
}

type Result struct {
	Path     string `json:"path"`
	Entries  int    `json:"entries"`
	Checksum string `json:"checksum"`
	Skipped  bool   `json:"skipped"`
	Uploaded bool   `json:"uploaded"`
}

type Snapshotter struct {
	Source   Source
	Dir      string
	Keep     int
	Uploader Uploader

	now func() time.Time
}

func NewSnapshotter(src Source, dir string, keep int, up Uploader) *Snapshotter {
	return &Snapshotter{Source: src, Dir: dir, Keep: keep, Uploader: up, now: time.Now}
}

// Run writes a snapshot unless the newest existing one has identical content,
// prunes old snapshots beyond Keep and uploads the new file.
func (s *Snapshotter) Run(ctx context.Context) (Result, error) {
	entries := s.Source.Entries()
	var buf bytes.Buffer
	if err := flatfile.Encode(&buf, entries); err != nil {
		return Result{}, fmt.Errorf("encode snapshot: %w", err)
	}
	res := Result{Entries: len(entries), Checksum: checksum(buf.Bytes())}

	if err := os.MkdirAll(s.Dir, 0o755); err != nil {
		return Result{}, fmt.Errorf("mkdir backup dir: %w", err)
	}
	existing, err := s.list()
	if err != nil {
		return Result{}, err
	}
	if n := len(existing); n > 0 {
		latest := existing[n-1]
		if b, err := os.ReadFile(latest); err == nil && checksum(b) == res.Checksum {
			res.Path = latest
			res.Skipped = true
			return res, nil
		}
	}

	ts := s.now().UTC().Format("20060102T150405.000Z")
	res.Path = filepath.Join(s.Dir, filePrefix+ts+".txt")
	if err := os.WriteFile(res.Path, buf.Bytes(), 0o600); err != nil {
		return Result{}, fmt.Errorf("write snapshot: %w", err)
	}
	if err := s.prune(); err != nil {
		log.Printf("prune backups in %s: %v", s.Dir, err)
	}
	if s.Uploader != nil {
		if err := s.Uploader.Upload(ctx, res.Path, filepath.Base(res.Path)); err != nil {
			return res, fmt.Errorf("upload snapshot: %w", err)
		}
		res.Uploaded = true
	}
	return res, nil
}

// list returns snapshot paths oldest first; the timestamp layout sorts
// lexically.
func (s *Snapshotter) list() ([]string, error) {
	matches, err := filepath.Glob(filepath.Join(s.Dir, filePrefix+"*.txt"))
	if err != nil {
		return nil, fmt.Errorf("list snapshots: %w", err)
	}
	sort.Strings(matches)
	return matches, nil
}

func (s *Snapshotter) prune() error {
	if s.Keep <= 0 {
		return nil
	}
	files, err := s.list()
	if err != nil {
		return err
	}
	for len(files) > s.Keep {
		if err := os.Remove(files[0]); err != nil {
			return err
		}
		files = files[1:]
	}
	return nil
}

func checksum(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}
