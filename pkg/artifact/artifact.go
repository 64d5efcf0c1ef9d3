// Package artifact pulls the text artifact (typically G-code) out of a
// labelled output node after each evaluation and keeps the last good copy.
package artifact

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/chazu/knurl/pkg/graph"
)

// DefaultLabel is the label of the node whose output is the artifact.
const DefaultLabel = "gcode"

// Extraction failures. Each leaves the previously stored artifact in place.
var (
	ErrNodeNotFound = errors.New("artifact: no node carries the artifact label")
	ErrEmptyOutput  = errors.New("artifact: output slot is empty")
	ErrNotText      = errors.New("artifact: output entry is not text")
)

// OutputReader reads a node's output slot after an evaluation pass.
// graph.Evaluator satisfies it.
type OutputReader interface {
	GetNodeOutput(id graph.NodeID) (*graph.NodeOutput, error)
}

// Extract returns the text payload of the first entry of the first output
// channel of the node labelled label. An empty label selects DefaultLabel.
func Extract(g *graph.Graph, out OutputReader, label string) (string, error) {
	if label == "" {
		label = DefaultLabel
	}
	if g == nil {
		return "", fmt.Errorf("%w: %q (no graph)", ErrNodeNotFound, label)
	}
	node := g.Lookup(label)
	if node == nil {
		return "", fmt.Errorf("%w: %q", ErrNodeNotFound, label)
	}

	slot, err := out.GetNodeOutput(node.ID)
	if err != nil {
		return "", fmt.Errorf("reading output of %q: %w", label, err)
	}
	if slot == nil || len(slot.Channels) == 0 || len(slot.Channels[0].Entries) == 0 {
		return "", fmt.Errorf("%w: %q", ErrEmptyOutput, label)
	}

	entry := slot.Channels[0].Entries[0]
	text, ok := entry.Value.(string)
	if entry.Kind != graph.PayloadText || !ok {
		return "", fmt.Errorf("%w: %q carries %s", ErrNotText, label, entry.Kind)
	}
	return text, nil
}

// Store holds the most recent successfully extracted artifact. It is safe
// for concurrent use.
type Store struct {
	mu    sync.RWMutex
	text  string
	valid bool
	at    time.Time
}

// Set replaces the stored artifact.
func (s *Store) Set(text string, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.text, s.valid, s.at = text, true, at
}

// Get returns the stored artifact and whether one has been set.
func (s *Store) Get() (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.text, s.valid
}

// UpdatedAt returns when the artifact was last replaced.
func (s *Store) UpdatedAt() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.at
}

// Clear forgets the stored artifact, e.g. when a new graph is loaded.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.text, s.valid, s.at = "", false, time.Time{}
}

// FileName returns "<prefix>-YYYYMMDD-HHMMSS.<ext>" for now.
func FileName(prefix, ext string, now time.Time) string {
	ext = strings.TrimPrefix(ext, ".")
	return fmt.Sprintf("%s-%s.%s", prefix, now.Format("20060102-150405"), ext)
}

// Export writes text to dir under a timestamped name and returns the path.
func Export(dir, prefix, ext, text string, now time.Time) (string, error) {
	if text == "" {
		return "", errors.New("artifact: nothing to export")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("creating export directory: %w", err)
	}
	path := filepath.Join(dir, FileName(prefix, ext, now))
	if err := os.WriteFile(path, []byte(text), 0o644); err != nil {
		return "", fmt.Errorf("writing artifact: %w", err)
	}
	return path, nil
}
