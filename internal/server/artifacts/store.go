// Package artifacts stores the binary masters behind saved image slots. A
// handle is the opaque string a store hands out on Put and later accepts on
// Get and Delete; it is what the slot keeps as its public id.
package artifacts

import (
	"context"
	"mime"
	"path"
)

// Artifact is a stored binary.
type Artifact struct {
	Handle string
	URL    string
}

// Store is an artifact backend. Get of a missing handle returns
// common.ErrorNotFound; Delete of a missing handle succeeds.
type Store interface {
	Put(ctx context.Context, name string, data []byte) (Artifact, error)
	Get(ctx context.Context, handle string) ([]byte, error)
	Delete(ctx context.Context, handle string) error
}

func contentType(name string) string {
	if t := mime.TypeByExtension(path.Ext(name)); t != "" {
		return t
	}
	return "application/octet-stream"
}
