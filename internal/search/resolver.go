package search

import (
	"errors"
	"fmt"

	"github.com/charmbracelet/log"

	"github.com/Ranjithnathk/ClauseWise/internal/fs"
	"github.com/Ranjithnathk/ClauseWise/internal/store"
)

// ErrDocumentNotFound reports a document that exists in neither the user's
// scope nor the public scope.
var ErrDocumentNotFound = errors.New("document not found")

// Resolver decides which scope answers a request for a document.
// Nothing is cached; every call inspects the disk again.
type Resolver struct {
	uploadDir string
	store     store.Store
}

// NewResolver creates a resolver over the upload root and index store.
func NewResolver(uploadDir string, st store.Store) *Resolver {
	return &Resolver{uploadDir: uploadDir, store: st}
}

// Resolve returns the user's scope when the user owns the document,
// otherwise the public scope when it exists.
func (r *Resolver) Resolve(user, document string) (store.Scope, error) {
	name := fs.DocumentName(document)

	public := store.Scope{Owner: store.PublicOwner, Document: name}
	if err := public.Validate(); err != nil {
		return store.Scope{}, fmt.Errorf("%w: %w", ErrDocumentNotFound, err)
	}

	if user != "" && user != store.PublicOwner {
		private := store.Scope{Owner: user, Document: name}
		if err := private.Validate(); err != nil {
			return store.Scope{}, err
		}
		if r.has(private) {
			log.Debug("Resolved private document", "user", user, "document", name)
			return private, nil
		}
	}

	if r.has(public) {
		log.Debug("Resolved public document", "user", user, "document", name)
		return public, nil
	}

	return store.Scope{}, fmt.Errorf("%w: %s", ErrDocumentNotFound, document)
}

// has reports whether the scope has an uploaded file or a built index.
func (r *Resolver) has(scope store.Scope) bool {
	if r.store.Exists(scope) {
		return true
	}

	names, err := fs.ListDocuments(r.DocumentDir(scope.Owner), fs.SupportedExtensions()...)
	if err != nil {
		log.Warn("Failed to list documents", "owner", scope.Owner, "error", err)
		return false
	}
	for _, n := range names {
		if fs.DocumentName(n) == scope.Document {
			return true
		}
	}
	return false
}

// DocumentDir returns where an owner's uploaded files live.
func (r *Resolver) DocumentDir(owner string) string {
	return store.DocumentDir(r.uploadDir, owner)
}
