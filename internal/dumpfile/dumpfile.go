// Package dumpfile reads and writes the semicolon-delimited result files a dump
// run produces: apps.txt ("appId;appName") and keys.txt ("depotId;DEPOTKEYHEX").
package dumpfile

import (
	"bufio"
	"bytes"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"sync"
)

const (
	AppsFileName = "apps.txt"
	KeysFileName = "keys.txt"
)

// AppEntry is one line of apps.txt
type AppEntry struct {
	AppID uint32
	Name  string
}

// KeyEntry is one line of keys.txt
type KeyEntry struct {
	DepotID uint32
	Key     string // Uppercase hex
}

// ParseError reports a malformed line
type ParseError struct {
	Path string
	Line int
	Text string
	Err  error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("%s:%d: malformed line %q: %v", e.Path, e.Line, e.Text, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// FormatKey renders a depot key as uppercase hex
func FormatKey(key []byte) string {
	return strings.ToUpper(hex.EncodeToString(key))
}

// ReadApps parses an apps file. A missing file yields no entries.
func ReadApps(path string) ([]AppEntry, error) {
	var out []AppEntry
	err := readLines(path, func(id uint32, value string) error {
		out = append(out, AppEntry{AppID: id, Name: value})
		return nil
	})
	return out, err
}

// ReadKeys parses a keys file. A missing file yields no entries.
func ReadKeys(path string) ([]KeyEntry, error) {
	var out []KeyEntry
	err := readLines(path, func(id uint32, value string) error {
		if _, err := hex.DecodeString(value); err != nil || value == "" {
			return fmt.Errorf("depot key is not hex")
		}
		out = append(out, KeyEntry{DepotID: id, Key: strings.ToUpper(value)})
		return nil
	})
	return out, err
}

func readLines(path string, fn func(id uint32, value string) error) error {
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	defer f.Close()
	return scanLines(path, f, fn)
}

func scanLines(path string, r io.Reader, fn func(id uint32, value string) error) error {
	scanner := bufio.NewScanner(r)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}
		rawID, value, ok := strings.Cut(text, ";")
		if !ok {
			return &ParseError{Path: path, Line: lineNo, Text: text, Err: errors.New("missing ';'")}
		}
		id, err := strconv.ParseUint(strings.TrimSpace(rawID), 10, 32)
		if err != nil {
			return &ParseError{Path: path, Line: lineNo, Text: text, Err: err}
		}
		if err := fn(uint32(id), strings.TrimSpace(value)); err != nil {
			return &ParseError{Path: path, Line: lineNo, Text: text, Err: err}
		}
	}
	return scanner.Err()
}

// Writer accumulates result entries for a dump directory and flushes them
// merged with whatever the files already held. Later entries for an ID win.
// Safe for concurrent use.
type Writer struct {
	dir string

	mu   sync.Mutex
	apps map[uint32]string
	keys map[uint32]string
}

// OpenWriter loads the existing result files in dir
func OpenWriter(dir string) (*Writer, error) {
	w := &Writer{dir: dir, apps: make(map[uint32]string), keys: make(map[uint32]string)}

	apps, err := ReadApps(w.AppsPath())
	if err != nil {
		return nil, err
	}
	for _, a := range apps {
		w.apps[a.AppID] = a.Name
	}

	keys, err := ReadKeys(w.KeysPath())
	if err != nil {
		return nil, err
	}
	for _, k := range keys {
		w.keys[k.DepotID] = k.Key
	}
	return w, nil
}

func (w *Writer) AppsPath() string { return filepath.Join(w.dir, AppsFileName) }
func (w *Writer) KeysPath() string { return filepath.Join(w.dir, KeysFileName) }

// AddApp records an app name. Semicolons and newlines are stripped from the name.
func (w *Writer) AddApp(appID uint32, name string) {
	name = strings.NewReplacer(";", " ", "\n", " ", "\r", " ").Replace(name)
	w.mu.Lock()
	w.apps[appID] = strings.TrimSpace(name)
	w.mu.Unlock()
}

// AddKey records a depot key
func (w *Writer) AddKey(depotID uint32, key []byte) {
	w.mu.Lock()
	w.keys[depotID] = FormatKey(key)
	w.mu.Unlock()
}

// Flush writes both files sorted by ID, replacing them atomically
func (w *Writer) Flush() error {
	w.mu.Lock()
	apps := render(w.apps)
	keys := render(w.keys)
	w.mu.Unlock()

	if err := WriteBytes(w.AppsPath(), apps); err != nil {
		return err
	}
	return WriteBytes(w.KeysPath(), keys)
}

func render(entries map[uint32]string) []byte {
	ids := make([]uint32, 0, len(entries))
	for id := range entries {
		ids = append(ids, id)
	}
	slices.Sort(ids)

	var buf bytes.Buffer
	for _, id := range ids {
		fmt.Fprintf(&buf, "%d;%s\n", id, entries[id])
	}
	return buf.Bytes()
}

// WriteBytes replaces path with data. The bytes go to a sibling temp file that
// is synced and renamed over path, so readers see the old or the new content.
// An existing file keeps its permissions; new files get 0644.
func WriteBytes(path string, data []byte) (err error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create %s: %w", dir, err)
	}

	mode := os.FileMode(0o644)
	if info, statErr := os.Stat(path); statErr == nil {
		mode = info.Mode().Perm()
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("failed to create temp file for %s: %w", path, err)
	}
	defer func() {
		if err != nil {
			tmp.Close()
			os.Remove(tmp.Name())
		}
	}()

	if _, err = tmp.Write(data); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err = tmp.Chmod(mode); err != nil {
		return fmt.Errorf("failed to set mode on %s: %w", path, err)
	}
	if err = tmp.Sync(); err != nil {
		return fmt.Errorf("failed to sync %s: %w", path, err)
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("failed to close %s: %w", path, err)
	}
	if err = os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to replace %s: %w", path, err)
	}
	return nil
}
