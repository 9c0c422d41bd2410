// Package vfs holds script sources in memory and resolves #include names
// against them or against directories on the host.
package vfs

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"
)

// MaxDiskBytes caps the total size of all sources held by one ScriptDisk.
const MaxDiskBytes = 4 << 20

// validName accepts plain script names such as "room1.asc" or "globals.ash".
var validName = regexp.MustCompile(`^[a-zA-Z0-9_][a-zA-Z0-9_\-]{0,63}(\.[a-zA-Z0-9]{1,4})?$`)

var (
	ErrFileNotFound    = errors.New("file not found")
	ErrInvalidFilename = errors.New("invalid filename")
	ErrQuotaExceeded   = errors.New("disk quota exceeded")
)

// ValidName reports whether name may be stored on a ScriptDisk.
func ValidName(name string) bool {
	return validName.MatchString(name)
}

type FileEntry struct {
	Source   string
	Created  time.Time
	Modified time.Time
}

// ScriptDisk is an in-memory set of named script sources. Editors write
// unsaved buffers here so includes see the text being edited.
type ScriptDisk struct {
	Mu         sync.RWMutex
	Files      map[string]*FileEntry
	DirtyFiles map[string]bool
	UsedBytes  int
	Dirty      bool
}

func NewScriptDisk() *ScriptDisk {
	return &ScriptDisk{
		Files:      make(map[string]*FileEntry),
		DirtyFiles: make(map[string]bool),
	}
}

// Write stores source under name, replacing any previous text. The quota
// is checked against the size after replacement.
func (d *ScriptDisk) Write(name, source string) error {
	d.Mu.Lock()
	defer d.Mu.Unlock()

	if !validName.MatchString(name) {
		return ErrInvalidFilename
	}

	oldSize := 0
	entry, ok := d.Files[name]
	if ok {
		oldSize = len(entry.Source)
	}
	if d.UsedBytes-oldSize+len(source) > MaxDiskBytes {
		return ErrQuotaExceeded
	}

	if entry == nil {
		entry = &FileEntry{Created: time.Now()}
		d.Files[name] = entry
	}
	entry.Source = source
	entry.Modified = time.Now()

	d.DirtyFiles[name] = true
	d.UsedBytes += len(source) - oldSize
	d.Dirty = true
	return nil
}

func (d *ScriptDisk) Read(name string) (string, error) {
	d.Mu.RLock()
	defer d.Mu.RUnlock()

	if !validName.MatchString(name) {
		return "", ErrInvalidFilename
	}
	entry, ok := d.Files[name]
	if !ok {
		return "", ErrFileNotFound
	}
	return entry.Source, nil
}

func (d *ScriptDisk) Delete(name string) error {
	d.Mu.Lock()
	defer d.Mu.Unlock()

	if !validName.MatchString(name) {
		return ErrInvalidFilename
	}
	entry, ok := d.Files[name]
	if !ok {
		return ErrFileNotFound
	}
	d.UsedBytes -= len(entry.Source)
	delete(d.Files, name)

	// a persisted copy has to be removed as well
	d.DirtyFiles[name] = true
	d.Dirty = true
	return nil
}

func (d *ScriptDisk) FreeSpace() int {
	d.Mu.RLock()
	defer d.Mu.RUnlock()
	return MaxDiskBytes - d.UsedBytes
}

// List returns the stored names, sorted.
func (d *ScriptDisk) List() []string {
	d.Mu.RLock()
	defer d.Mu.RUnlock()

	names := make([]string, 0, len(d.Files))
	for k := range d.Files {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// GetMeta returns the creation and modification time of a file.
func (d *ScriptDisk) GetMeta(name string) (time.Time, time.Time, error) {
	d.Mu.RLock()
	defer d.Mu.RUnlock()

	if !validName.MatchString(name) {
		return time.Time{}, time.Time{}, ErrInvalidFilename
	}
	entry, ok := d.Files[name]
	if !ok {
		return time.Time{}, time.Time{}, ErrFileNotFound
	}
	return entry.Created, entry.Modified, nil
}

// ResolveInclude serves #include from the disk. Names are matched exactly;
// a directory prefix is ignored so "lib/util.ash" finds "util.ash".
// A name the disk could never hold is reported as not found.
func (d *ScriptDisk) ResolveInclude(name string) (string, error) {
	src, err := d.Read(filepath.Base(name))
	if errors.Is(err, ErrInvalidFilename) {
		err = ErrFileNotFound
	}
	if err != nil {
		return "", fmt.Errorf("%s: %w", name, err)
	}
	return src, nil
}

// LoadFrom adds every script in the host directory path. Entries with names
// the disk would refuse are skipped. A missing directory is not an error.
func (d *ScriptDisk) LoadFrom(path string) error {
	entries, err := os.ReadDir(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	d.Mu.Lock()
	defer d.Mu.Unlock()

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if !validName.MatchString(name) {
			continue
		}
		full := filepath.Join(path, name)
		raw, err := os.ReadFile(full)
		if err != nil {
			continue
		}
		if d.UsedBytes+len(raw) > MaxDiskBytes {
			return ErrQuotaExceeded
		}

		fe := &FileEntry{Source: string(raw), Created: time.Now(), Modified: time.Now()}
		if info, err := entry.Info(); err == nil {
			fe.Created = info.ModTime()
			fe.Modified = info.ModTime()
		}
		if old, ok := d.Files[name]; ok {
			d.UsedBytes -= len(old.Source)
		}
		d.Files[name] = fe
		d.UsedBytes += len(raw)
	}
	return nil
}

// PersistTo writes dirty files to the host directory path, creating it if
// needed, and removes files deleted since the last call. The first error
// is returned; files that failed stay dirty.
func (d *ScriptDisk) PersistTo(path string) error {
	if err := os.MkdirAll(path, 0o755); err != nil {
		return err
	}

	d.Mu.Lock()
	snapshot := make(map[string]FileEntry)
	var deleted []string
	for name := range d.DirtyFiles {
		if entry, ok := d.Files[name]; ok {
			snapshot[name] = *entry
		} else {
			deleted = append(deleted, name)
		}
		delete(d.DirtyFiles, name)
	}
	d.Dirty = false
	d.Mu.Unlock()

	var firstErr error
	for _, name := range deleted {
		if err := os.Remove(filepath.Join(path, name)); err != nil && !os.IsNotExist(err) && firstErr == nil {
			firstErr = err
		}
	}
	for name, entry := range snapshot {
		full := filepath.Join(path, name)
		if err := os.WriteFile(full, []byte(entry.Source), 0o644); err != nil {
			d.Mu.Lock()
			d.DirtyFiles[name] = true
			d.Dirty = true
			d.Mu.Unlock()
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		_ = os.Chtimes(full, time.Now(), entry.Modified)
	}
	return firstErr
}

// DirResolver resolves includes relative to a list of host directories,
// searched in order.
type DirResolver struct {
	Dirs []string
}

func (r DirResolver) ResolveInclude(name string) (string, error) {
	if filepath.IsAbs(name) {
		raw, err := os.ReadFile(name)
		if err != nil {
			return "", err
		}
		return string(raw), nil
	}
	clean := filepath.Clean(name)
	if clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%s: %w", name, ErrInvalidFilename)
	}
	for _, dir := range r.Dirs {
		raw, err := os.ReadFile(filepath.Join(dir, clean))
		if err == nil {
			return string(raw), nil
		}
		if !os.IsNotExist(err) {
			return "", err
		}
	}
	return "", fmt.Errorf("%s: %w", name, ErrFileNotFound)
}

// Resolver is satisfied by compiler.IncludeResolver.
type Resolver interface {
	ResolveInclude(name string) (string, error)
}

// Chain tries each resolver in turn and returns the first text found.
// Errors other than ErrFileNotFound stop the search.
type Chain []Resolver

func (c Chain) ResolveInclude(name string) (string, error) {
	for _, r := range c {
		src, err := r.ResolveInclude(name)
		if err == nil {
			return src, nil
		}
		if !errors.Is(err, ErrFileNotFound) {
			return "", err
		}
	}
	return "", fmt.Errorf("%s: %w", name, ErrFileNotFound)
}
