package types

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
)

const (
	// MaxNumTags is the maximum number of tags a file may carry.
	MaxNumTags = 8

	// MaxTagLength is the maximum length of a single tag.
	MaxTagLength = 64

	// MaxPathLength is the maximum length of a file path.
	MaxPathLength = 4096
)

var tagRegexp = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

// IsTagValid reports whether tag is a valid file tag.
func IsTagValid(tag string) bool {
	return len(tag) <= MaxTagLength && tagRegexp.MatchString(tag)
}

// IsPathValid reports whether path is acceptable as a stored file path:
// valid UTF-8, bounded length, relative, and free of parent references.
func IsPathValid(path string) bool {
	if path == "" || len(path) > MaxPathLength || !utf8.ValidString(path) {
		return false
	}
	if strings.HasPrefix(path, "/") {
		return false
	}
	for _, part := range strings.Split(path, "/") {
		if part == ".." {
			return false
		}
	}
	return true
}

// FileInfo is the metadata record for a stored file. The blob on disk is
// named by the id, without braces or extension.
type FileInfo struct {
	ID           uuid.UUID    `json:"id"`
	Path         string       `json:"path"`
	Size         int64        `json:"size"`
	MD5Checksum  string       `json:"md5Checksum"`
	Version      string       `json:"version"`
	Tags         []string     `json:"tags"`
	AccessRights AccessRights `json:"accessRights"`
	CreatedAt    int64        `json:"createdAt"`
	UpdatedAt    int64        `json:"updatedAt"`
}

// IndexLine serializes the record for the store index file, one compact
// document per line with a fixed field order.
func (f FileInfo) IndexLine() (string, error) {
	data, err := json.Marshal(f)
	if err != nil {
		return "", fmt.Errorf("failed to serialize file info: %w", err)
	}
	return string(data), nil
}

// FileInfoFromIndexLine parses a store index line.
func FileInfoFromIndexLine(line string) (FileInfo, error) {
	var f FileInfo
	if err := json.Unmarshal([]byte(line), &f); err != nil {
		return FileInfo{}, fmt.Errorf("failed to parse index line: %w", err)
	}
	return f, nil
}

// FileObject is the in-memory carrier of a file-service task: metadata,
// content and the outcome of the task.
type FileObject struct {
	Info      FileInfo
	Content   []byte
	ErrorType ErrorType
}
