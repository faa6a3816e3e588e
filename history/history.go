package history

// This file contains shared history utilities for recording, loading and
// selecting run metadata.

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/perfgo/pwbox/model"
	"github.com/rs/zerolog"
)

// FileName is the run metadata file inside every workspace.
const FileName = "run.json"

type Entry struct {
	Run      model.Run
	FullPath string
}

// Record writes the metadata of run into dir.
func Record(dir string, run *model.Run) error {
	data, err := json.MarshalIndent(run, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal run metadata: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, FileName), data, 0644); err != nil {
		return fmt.Errorf("failed to write run metadata: %w", err)
	}
	return nil
}

// Load reads the metadata recorded in dir.
func Load(dir string) (model.Run, error) {
	return parseRunJSON(filepath.Join(dir, FileName))
}

// LoadEntries loads all runs recorded below root, newest first.
func LoadEntries(logger zerolog.Logger, root string) ([]Entry, error) {
	dirs, err := os.ReadDir(root)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read runs directory: %w", err)
	}

	var entries []Entry
	for _, d := range dirs {
		if !d.IsDir() {
			continue
		}
		path := filepath.Join(root, d.Name())
		runPath := filepath.Join(path, FileName)
		if _, err := os.Stat(runPath); err != nil {
			continue
		}
		run, err := parseRunJSON(runPath)
		if err != nil {
			logger.Warn().Err(err).Str("path", runPath).Msg("Failed to parse run.json")
			continue
		}
		entries = append(entries, Entry{Run: run, FullPath: path})
	}

	// Sort by timestamp (newest first)
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Run.Timestamp.After(entries[j].Run.Timestamp)
	})

	return entries, nil
}

// Find selects an entry from a newest-first list. "0" is the last run, "-1"
// the one before it, anything else is matched as an ID prefix.
func Find(entries []Entry, arg string) (*Entry, error) {
	if len(entries) == 0 {
		return nil, fmt.Errorf("no runs found")
	}

	if parsed, err := strconv.ParseInt(arg, 10, 64); err == nil && !looksLikeID(arg) {
		if parsed > 0 {
			return nil, fmt.Errorf("invalid index: %s (use 0 for last, -1 for second-to-last, -2 for third-to-last, etc.)", arg)
		}
		index := int(-parsed)
		if index >= len(entries) {
			return nil, fmt.Errorf("index %s out of range (only %d runs)", arg, len(entries))
		}
		return &entries[index], nil
	}

	prefix := strings.ToLower(arg)
	for i := range entries {
		if strings.HasPrefix(strings.ToLower(entries[i].Run.ID), prefix) {
			return &entries[i], nil
		}
	}
	return nil, fmt.Errorf("no run found matching ID: %s", arg)
}

// looksLikeID reports whether a numeric argument is more likely an ID prefix
// than an index, as IDs are hex and may consist of digits only.
func looksLikeID(arg string) bool {
	return len(arg) >= 4 && !strings.HasPrefix(arg, "-")
}

// parseRunJSON parses a run.json file.
func parseRunJSON(path string) (model.Run, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return model.Run{}, err
	}

	var run model.Run
	if err := json.Unmarshal(data, &run); err != nil {
		return model.Run{}, err
	}

	return run, nil
}
