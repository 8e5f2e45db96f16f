// Package broadcast fans committed revisions out to every server process
// subscribed to a document, so a client connected to a different process
// than the one that admitted the write still sees it promptly instead of
// waiting for its next poll.
//
// Subscribers must tolerate duplicates and gaps: a missed or
// out-of-order message just means the client falls back to
// GetDocumentRevisions, which pkg/collab.Document.Revisions always
// answers from the durable log regardless of what the broadcast channel
// delivered.
package broadcast

import (
	"github.com/quillsync/quill/pkg/revlog"
)

// Publisher announces a newly committed revision for docID to every
// other subscriber.
type Publisher interface {
	Publish(docID string, rev revlog.Revision)
}

// Subscriber hands back a channel of revisions for docID plus an
// unsubscribe func that ends the subscription. Memory closes the
// channel on unsubscribe; Redis leaves it open.
type Subscriber interface {
	Subscribe(docID string) (ch <-chan revlog.Revision, unsubscribe func())
}

// PubSub combines both directions, the shape every backend in this
// package implements.
type PubSub interface {
	Publisher
	Subscriber
}
