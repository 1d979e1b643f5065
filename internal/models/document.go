package models

// Document is the metadata record of an uploaded file. The file itself lives
// in the blob bucket under BlobKey.
type Document struct {
	ID           string `json:"id"`
	FileName     string `json:"fileName"`
	FileSize     int64  `json:"fileSize"`
	Extension    string `json:"extension"`
	MimeType     string `json:"mimeType"`
	Category     string `json:"category"`
	ScopeID      string `json:"scopeId"`
	ContextID    string `json:"contextId,omitempty"`
	ContextLabel string `json:"contextLabel,omitempty"`
	GroupKey     string `json:"groupKey,omitempty"`
	BlobKey      string `json:"blobKey"`
	PageCount    int    `json:"pageCount,omitempty"`
	UploadedBy   string `json:"uploadedBy"`
	CreatedAt    string `json:"createdAt"`
}
