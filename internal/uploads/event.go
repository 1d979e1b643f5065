// Package uploads carries upload progress on one shared stream and links
// each event back to the question that asked for the file.
package uploads

import (
	"path/filepath"
	"strings"
)

// Status is the lifecycle state of one upload.
type Status string

const (
	StatusUploading Status = "uploading"
	StatusSuccess   Status = "success"
	StatusError     Status = "error"
)

// Terminal reports whether no further events are expected.
func (s Status) Terminal() bool { return s == StatusSuccess || s == StatusError }

// Event is one progress notification on the shared stream.
type Event struct {
	ID           string `json:"id"`
	FileName     string `json:"fileName,omitempty"`
	FileSize     int64  `json:"fileSize,omitempty"`
	Extension    string `json:"extension,omitempty"`
	Progress     int    `json:"progress"`
	Status       Status `json:"status"`
	Error        string `json:"error,omitempty"`
	ScopeID      string `json:"scopeId,omitempty"`
	Category     string `json:"category,omitempty"`
	ContextID    string `json:"contextId,omitempty"`
	ContextLabel string `json:"contextLabel,omitempty"`
	GroupKey     string `json:"groupKey,omitempty"`
}

// Context tags an upload with the question that requested it.
type Context struct {
	ScopeID      string `json:"scopeId,omitempty"`
	ContextID    string `json:"contextId,omitempty"`
	ContextLabel string `json:"contextLabel,omitempty"`
	GroupKey     string `json:"groupKey,omitempty"`
	UploadedBy   string `json:"-"`
}

// Label builds the "<id> • <question>" context label shown next to a file.
func Label(itemID, question string) string {
	if question == "" {
		return itemID
	}
	return itemID + " • " + question
}

// Outcome is the per-file result of an upload call.
type Outcome struct {
	ID        string `json:"id,omitempty"`
	FileName  string `json:"fileName"`
	FileSize  int64  `json:"fileSize"`
	OK        bool   `json:"ok"`
	Error     string `json:"error,omitempty"`
	PageCount int    `json:"pageCount,omitempty"`
}

// Extension returns the lower-cased extension of name including the dot.
func Extension(name string) string {
	return strings.ToLower(filepath.Ext(name))
}

var previewable = map[string]bool{".png": true, ".jpg": true, ".jpeg": true}

// Previewable reports whether files with ext can be shown inline.
func Previewable(ext string) bool { return previewable[strings.ToLower(ext)] }
