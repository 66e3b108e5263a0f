package eventbus

import (
	"github.com/Jeffail/gabs/v2"
)

// AuditEventBuilder assembles a nested JSON audit-event payload field by
// field, the same shape Context.SnapshotJSON produces for the same library,
// so the saga's "emit audit event" step and its context snapshots stay
// consistent in how they build nested documents from flat data.
type AuditEventBuilder struct {
	doc *gabs.Container
}

// NewAuditEventBuilder starts a fresh, empty event document.
func NewAuditEventBuilder() *AuditEventBuilder {
	return &AuditEventBuilder{doc: gabs.New()}
}

// Set assigns value at the dotted path, creating intermediate objects as
// needed (e.g. "user.id" nests under "user").
func (b *AuditEventBuilder) Set(path string, value any) *AuditEventBuilder {
	if _, err := b.doc.SetP(value, path); err != nil {
		b.doc.Set(value, path)
	}
	return b
}

// Build renders the accumulated document as an Event for topic.
func (b *AuditEventBuilder) Build(topic string) Event {
	return Event{Topic: topic, Payload: b.doc.Bytes()}
}

// String renders the accumulated document for debugging.
func (b *AuditEventBuilder) String() string {
	return b.doc.String()
}
