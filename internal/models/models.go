package models

import "time"

const DefaultDocumentID = "default-document"

// Socket event names.
const (
	EventJoinDocument   = "join-document"
	EventEditDocument   = "edit-document"
	EventLoadDocument   = "load-document"
	EventUpdateDocument = "update-document"
	EventError          = "error"
)

// Document is the persisted snapshot of one shared text surface.
type Document struct {
	DocumentID   string    `json:"documentId" bson:"documentId"`
	Content      string    `json:"content" bson:"content"`
	LastModified time.Time `json:"lastModified" bson:"lastModified"`
}

type WSFrame struct {
	Type string      `json:"type"` // see Event* constants
	Data interface{} `json:"data"`
}

type JoinRequest struct {
	DocumentID string `json:"documentId"`
	Username   string `json:"username"`
}

// EditRequest carries the full new content, never a delta.
type EditRequest struct {
	DocumentID string `json:"documentId"`
	Content    string `json:"content"`
	Username   string `json:"username"`
}

type SaveRequest struct {
	DocumentID string `json:"documentId"`
	Content    string `json:"content"`
	Username   string `json:"username"`
}

type CreateDocumentRequest struct {
	DocumentID string `json:"documentId"`
}

type UpdateDocumentRequest struct {
	Content string `json:"content"`
}

type DocumentsResponse struct {
	Total int        `json:"total"`
	Items []Document `json:"items"`
}

type MessageResponse struct {
	Message string `json:"message"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}
