// Package state records which targets were already fully processed, so
// a restarted workflow resumes instead of rescanning. The durable JSON file
// is the single source of truth, every query reads it.
package state

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"sync"

	"github.com/algohub/algohub/internal/model"
)

// document is the on disk layout: workflow -> key -> targets in completion order.
//
//	{"BlackBox": {"scanned_subnets": ["10.0.0.0/24"]}, ...}
type document map[string]map[string][]string

// Store serializes all the reads and writes of a state file within a process.
type Store struct {
	mx   sync.Mutex
	path string
}

func New(path string) *Store {
	return &Store{path: path}
}

func (s *Store) Path() string {
	return s.path
}

// Init creates the state file with all known categories empty.
// An existing file is never overwritten. Returns true when the file was created.
func (s *Store) Init() (bool, error) {
	s.mx.Lock()
	defer s.mx.Unlock()

	_, err := os.Stat(s.path)
	if err == nil {
		return false, nil
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return false, fmt.Errorf("state %s: %w", s.path, err)
	}

	doc := make(document)
	for _, c := range model.Categories() {
		doc.ensure(c)
	}
	if err := s.write(doc); err != nil {
		return false, err
	}
	return true, nil
}

// IsScanned returns true if target was marked in a category.
func (s *Store) IsScanned(cat model.Category, target string) (bool, error) {
	s.mx.Lock()
	defer s.mx.Unlock()
	doc, err := s.read()
	if err != nil {
		return false, err
	}
	return slices.Contains(doc[cat.Workflow][cat.Key], target), nil
}

// Scanned returns targets of a category in the order they were marked.
func (s *Store) Scanned(cat model.Category) ([]string, error) {
	s.mx.Lock()
	defer s.mx.Unlock()
	doc, err := s.read()
	if err != nil {
		return nil, err
	}
	return slices.Clone(doc[cat.Workflow][cat.Key]), nil
}

// Filter splits targets into those not yet scanned and those already done
// using a single read of the state file.
func (s *Store) Filter(cat model.Category, targets []string) (pending, done []string, err error) {
	s.mx.Lock()
	defer s.mx.Unlock()
	doc, err := s.read()
	if err != nil {
		return nil, nil, err
	}
	scanned := doc[cat.Workflow][cat.Key]
	for _, t := range targets {
		if slices.Contains(scanned, t) {
			done = append(done, t)
		} else {
			pending = append(pending, t)
		}
	}
	return pending, done, nil
}

// MarkScanned adds target to a category and persists the file before it
// returns. Marking an already present target is a no-op and does not write.
func (s *Store) MarkScanned(cat model.Category, target string) error {
	s.mx.Lock()
	defer s.mx.Unlock()
	doc, err := s.read()
	if err != nil {
		return err
	}
	list := doc.ensure(cat)
	if slices.Contains(list, target) {
		return nil
	}
	doc[cat.Workflow][cat.Key] = append(list, target)
	return s.write(doc)
}

func (d document) ensure(cat model.Category) []string {
	w, ok := d[cat.Workflow]
	if !ok || w == nil {
		w = make(map[string][]string)
		d[cat.Workflow] = w
	}
	list, ok := w[cat.Key]
	if !ok || list == nil {
		list = []string{}
		w[cat.Key] = list
	}
	return list
}

func (s *Store) read() (document, error) {
	b, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", model.ErrStateMissing, s.path)
	}
	if err != nil {
		return nil, fmt.Errorf("reading state %s: %w", s.path, err)
	}

	var doc document
	if err := json.Unmarshal(b, &doc); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", model.ErrStateCorrupt, s.path, err)
	}
	if doc == nil {
		return nil, fmt.Errorf("%w: %s: not a json object", model.ErrStateCorrupt, s.path)
	}
	return doc, nil
}

// write replaces the state file atomically, so a crash never leaves
// a partially written document behind.
func (s *Store) write(doc document) error {
	b, err := json.MarshalIndent(doc, "", "    ")
	if err != nil {
		return fmt.Errorf("encoding state: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating directory %s: %w", dir, err)
	}
	f, err := os.CreateTemp(dir, filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("creating temporary state: %w", err)
	}
	tmp := f.Name()
	defer func() {
		_ = os.Remove(tmp)
	}()

	_, err = f.Write(b)
	if err == nil {
		err = f.Sync()
	}
	err = errors.Join(err, f.Close())
	if err != nil {
		return fmt.Errorf("writing state %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("replacing state %s: %w", s.path, err)
	}
	return nil
}
