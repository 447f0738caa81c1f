package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// FileTransitionLog is an implementation of TransitionLog that logs to a file.
// A file is created per candidate. The file is formatted as newline-delimited JSON.
type FileTransitionLog struct {
	directory string
}

func NewFileTransitionLog(directory string) *FileTransitionLog {
	return &FileTransitionLog{directory: directory}
}

func (l *FileTransitionLog) candidateLogPath(candidateID string) string {
	return filepath.Join(l.directory, fmt.Sprintf("%s.jsonl", candidateID))
}

func (l *FileTransitionLog) GetTransitionHistory(ctx context.Context, candidateID string) ([]*TransitionLogEntry, error) {
	filePath := l.candidateLogPath(candidateID)
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, err
	}
	var entries []*TransitionLogEntry
	for _, line := range strings.Split(string(data), "\n") {
		if line == "" {
			continue
		}
		var entry TransitionLogEntry
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			return nil, err
		}
		entries = append(entries, &entry)
	}
	return entries, nil
}

func (l *FileTransitionLog) LogTransition(ctx context.Context, entry *TransitionLogEntry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	filePath := l.candidateLogPath(entry.CandidateID)
	if err := os.MkdirAll(filepath.Dir(filePath), 0755); err != nil {
		return err
	}
	f, err := os.OpenFile(filePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return err
	}
	defer f.Close()

	if _, err := f.Write(append(data, '\n')); err != nil {
		return err
	}
	return f.Sync()
}
