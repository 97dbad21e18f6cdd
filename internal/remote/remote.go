// Package remote defines the document store the reconciler talks to and an
// in-process implementation of it.
package remote

import (
	"context"
	"encoding/json"
	"fmt"
)

// Document is one stored document.
type Document struct {
	ID   string
	Data json.RawMessage
}

// Snapshot is the full content of a collection at one point in time.
// FromCache is set when the client answered from its local cache rather
// than the server.
type Snapshot struct {
	Docs      []Document
	FromCache bool
}

// Client is a remote document store. Every Subscribe snapshot replaces the
// previous one in full.
type Client interface {
	Subscribe(ctx context.Context, collection string, onSnapshot func(Snapshot), onError func(error)) (cancel func(), err error)
	Get(ctx context.Context, collection string) (Snapshot, error)
	Set(ctx context.Context, collection, id string, data json.RawMessage) error
	Delete(ctx context.Context, collection, id string) error
}

// ExamsCollection is the per-user exam collection path.
func ExamsCollection(userID string) string {
	return fmt.Sprintf("users/%s/exams", userID)
}
