// ABOUTME: Answer-service collaborator: the single "ask" call and its response types
// ABOUTME: Carries the answer text plus citation and source-document lists

package answer

import (
	"context"
	"errors"
)

// ErrResponse is returned when the answer service responds with an error.
var ErrResponse = errors.New("answer service error")

// AskRequest is one question for the answer service.
type AskRequest struct {
	Message   string `json:"message"`
	PersonaID *int64 `json:"persona_id,omitempty"`

	// APIKey authenticates the tenant; sent as a bearer credential,
	// never in the body.
	APIKey string `json:"-"`
}

// Citation links a numbered reference in the answer to a source document.
type Citation struct {
	CitationNumber int    `json:"citation_number"`
	DocumentID     string `json:"document_id"`
}

// Document is a ranked source document referenced by citations.
type Document struct {
	DocumentID         string `json:"document_id"`
	SemanticIdentifier string `json:"semantic_identifier"`
	Link               string `json:"link"`
}

// ChatResponse is the answer service's reply.
type ChatResponse struct {
	Answer       string     `json:"answer"`
	CitationInfo []Citation `json:"citation_info"`
	TopDocuments []Document `json:"top_documents"`
}

// Service answers questions on behalf of a tenant.
type Service interface {
	Ask(ctx context.Context, req AskRequest) (*ChatResponse, error)
	Close() error
}
