package model

import (
	"time"
)

// MessageType discriminates frames on the realtime channel.
type MessageType string

const (
	MessageCrudDocument    MessageType = "crudDocument"
	MessageCrudAnnotation  MessageType = "crudAnnotation"
	MessageOfflineToOnline MessageType = "offlineToOnline"
)

// CrudSubtype names the mutation a crud envelope carries.
type CrudSubtype string

const (
	SubtypeCreate CrudSubtype = "create"
	SubtypeUpdate CrudSubtype = "update"
	SubtypeDelete CrudSubtype = "delete"
)

// MergeStrategy selects who wins when resync finds conflicting state.
type MergeStrategy string

const (
	// MergeKeepServer discards changes made locally while offline in favor
	// of the server's view.
	MergeKeepServer MergeStrategy = "keepServer"
	// MergeOverrideServer pushes the locally made changes onto the server.
	MergeOverrideServer MergeStrategy = "overrideServer"
)

// Valid reports whether the strategy is one of the known values.
func (s MergeStrategy) Valid() bool {
	return s == MergeKeepServer || s == MergeOverrideServer
}

// MessageHeader is the minimal prefix decoded from every incoming frame to
// route it; the full payload is re-decoded by the matching handler.
type MessageHeader struct {
	Type     MessageType `json:"type"`
	SenderID string      `json:"senderId"`
}

// DocumentMessage is the realtime envelope for one document mutation.
type DocumentMessage struct {
	Type     MessageType `json:"type"`
	SenderID string      `json:"senderId"`
	Subtype  CrudSubtype `json:"subtype"`
	Document *Document   `json:"document"`
}

// NewDocumentMessage builds a crudDocument envelope.
func NewDocumentMessage(senderID string, subtype CrudSubtype, doc *Document) *DocumentMessage {
	return &DocumentMessage{
		Type:     MessageCrudDocument,
		SenderID: senderID,
		Subtype:  subtype,
		Document: doc,
	}
}

// AnnotationMessage is the realtime envelope for one annotation mutation.
type AnnotationMessage struct {
	Type       MessageType `json:"type"`
	SenderID   string      `json:"senderId"`
	Subtype    CrudSubtype `json:"subtype"`
	Annotation *Annotation `json:"annotation"`
}

// NewAnnotationMessage builds a crudAnnotation envelope.
func NewAnnotationMessage(senderID string, subtype CrudSubtype, ann *Annotation) *AnnotationMessage {
	return &AnnotationMessage{
		Type:       MessageCrudAnnotation,
		SenderID:   senderID,
		Subtype:    subtype,
		Annotation: ann,
	}
}

// OfflineToOnlineMessage is both the resync request a reconnecting client
// sends (carrying everything modified locally after LastOnlineAt) and the
// decision payload the hub answers with (carrying the merged authoritative
// state). It is transient: transported, never persisted.
type OfflineToOnlineMessage struct {
	Type          MessageType   `json:"type"`
	SenderID      string        `json:"senderId"`
	MergeStrategy MergeStrategy `json:"mergeStrategy"`
	LastOnlineAt  time.Time     `json:"lastOnlineAt"`
	Documents     []*Document   `json:"documents"`
	Annotations   []*Annotation `json:"annotations"`
}

// NewOfflineToOnlineMessage builds a resync request.
func NewOfflineToOnlineMessage(senderID string, strategy MergeStrategy, lastOnlineAt time.Time,
	docs []*Document, anns []*Annotation) *OfflineToOnlineMessage {
	return &OfflineToOnlineMessage{
		Type:          MessageOfflineToOnline,
		SenderID:      senderID,
		MergeStrategy: strategy,
		LastOnlineAt:  lastOnlineAt,
		Documents:     docs,
		Annotations:   anns,
	}
}
