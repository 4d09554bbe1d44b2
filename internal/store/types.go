// Package store persists one vector index per (owner, document) scope and
// answers nearest-neighbour queries against it.
package store

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/Ranjithnathk/ClauseWise/internal/fs"
)

// PublicOwner owns documents visible to every user.
const PublicOwner = "public"

// Scope identifies one index: an owner and a document name without extension.
type Scope struct {
	Owner    string `json:"owner"`
	Document string `json:"document"`
}

// NewScope builds a scope from an owner and a file name, stripping the extension.
func NewScope(owner, filename string) Scope {
	return Scope{Owner: owner, Document: fs.DocumentName(filename)}
}

// PublicScope builds the public scope for a file name.
func PublicScope(filename string) Scope {
	return NewScope(PublicOwner, filename)
}

// DocumentDir returns where an owner's uploaded files live under uploadRoot.
// Public files sit directly under the root, user files in a subdirectory.
func DocumentDir(uploadRoot, owner string) string {
	if owner == PublicOwner {
		return uploadRoot
	}
	return filepath.Join(uploadRoot, owner)
}

// IsPublic reports whether the scope belongs to the public owner.
func (s Scope) IsPublic() bool {
	return s.Owner == PublicOwner
}

// String renders the scope as owner/document.
func (s Scope) String() string {
	return s.Owner + "/" + s.Document
}

// Validate rejects names that cannot be used as a single path element.
func (s Scope) Validate() error {
	if err := validName(s.Owner); err != nil {
		return fmt.Errorf("%w: owner %q: %v", ErrInvalidScope, s.Owner, err)
	}
	if err := validName(s.Document); err != nil {
		return fmt.Errorf("%w: document %q: %v", ErrInvalidScope, s.Document, err)
	}
	return nil
}

// ValidateOwner rejects owner names that cannot be used as a directory name.
func ValidateOwner(owner string) error {
	if err := validName(owner); err != nil {
		return fmt.Errorf("%w: owner %q: %v", ErrInvalidScope, owner, err)
	}
	return nil
}

func validName(name string) error {
	switch {
	case strings.TrimSpace(name) == "":
		return fmt.Errorf("empty name")
	case name == "." || name == "..":
		return fmt.Errorf("reserved name")
	case strings.HasPrefix(name, "."):
		return fmt.Errorf("hidden name")
	case strings.ContainsAny(name, `/\`+"\x00"):
		return fmt.Errorf("contains a path separator")
	}
	return nil
}

// Passage is an indexed chunk of document text.
type Passage struct {
	Seq       int    `json:"seq"` // Insertion order within the index
	Content   string `json:"content"`
	Source    string `json:"source"`
	Page      int    `json:"page,omitempty"`
	StartChar int    `json:"start_char"`
	EndChar   int    `json:"end_char"`
}

// Result is a passage returned by a search.
type Result struct {
	Passage
	Distance float64 `json:"distance"` // Metric distance, smaller is nearer
	Score    float64 `json:"score"`    // Similarity derived from distance
}

// IndexInfo describes a persisted index.
type IndexInfo struct {
	ID                string    `json:"id"`
	Scope             Scope     `json:"scope"`
	Backend           string    `json:"backend"`
	Metric            string    `json:"metric"`
	EmbeddingProvider string    `json:"embedding_provider"`
	EmbeddingModel    string    `json:"embedding_model"`
	Dimensions        int       `json:"dimensions"`
	ChunkCount        int       `json:"chunk_count"`
	SourceFile        string    `json:"source_file,omitempty"`
	ContentHash       string    `json:"content_hash,omitempty"`
	CreatedAt         time.Time `json:"created_at"`
}

// BuildOptions carries provenance recorded alongside an index.
type BuildOptions struct {
	SourceFile  string
	ContentHash string
}

// passagesFromChunks assigns insertion order to chunks.
func passagesFromChunks(chunks []fs.Chunk) []Passage {
	passages := make([]Passage, len(chunks))
	for i, c := range chunks {
		passages[i] = Passage{
			Seq:       i,
			Content:   c.Content,
			Source:    c.Source,
			Page:      c.Page,
			StartChar: c.StartChar,
			EndChar:   c.EndChar,
		}
	}
	return passages
}
