// ABOUTME: Tests for the HTTP answer-service client
// ABOUTME: Covers request shape, bearer auth, error statuses, and body decoding

package answer

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPService_Ask(t *testing.T) {
	var gotPath, gotAuth string
	var gotBody map[string]any

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))

		json.NewEncoder(w).Encode(ChatResponse{
			Answer: "forty-two",
			CitationInfo: []Citation{
				{CitationNumber: 1, DocumentID: "doc-1"},
			},
			TopDocuments: []Document{
				{DocumentID: "doc-1", SemanticIdentifier: "Guide", Link: "https://example.com"},
			},
		})
	}))
	defer srv.Close()

	svc := NewHTTPService(srv.URL + "/") // trailing slash gets trimmed
	defer svc.Close()

	persona := int64(3)
	resp, err := svc.Ask(context.Background(), AskRequest{
		Message:   "what is the answer?",
		PersonaID: &persona,
		APIKey:    "raw-key",
	})
	require.NoError(t, err)

	assert.Equal(t, "/chat/send-message", gotPath)
	assert.Equal(t, "Bearer raw-key", gotAuth)
	assert.Equal(t, "what is the answer?", gotBody["message"])
	assert.Equal(t, float64(3), gotBody["persona_id"])
	assert.NotContains(t, gotBody, "APIKey", "credential never travels in the body")

	assert.Equal(t, "forty-two", resp.Answer)
	require.Len(t, resp.CitationInfo, 1)
	assert.Equal(t, "doc-1", resp.CitationInfo[0].DocumentID)
}

func TestHTTPService_Ask_OmitsNilPersona(t *testing.T) {
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		json.NewEncoder(w).Encode(ChatResponse{Answer: "ok"})
	}))
	defer srv.Close()

	svc := NewHTTPService(srv.URL)
	defer svc.Close()

	_, err := svc.Ask(context.Background(), AskRequest{Message: "hi", APIKey: "k"})
	require.NoError(t, err)
	assert.NotContains(t, gotBody, "persona_id")
}

func TestHTTPService_Ask_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "key invalid", http.StatusUnauthorized)
	}))
	defer srv.Close()

	svc := NewHTTPService(srv.URL)
	defer svc.Close()

	_, err := svc.Ask(context.Background(), AskRequest{Message: "hi", APIKey: "bad"})
	require.ErrorIs(t, err, ErrResponse)
	assert.Contains(t, err.Error(), "401")
}

func TestHTTPService_Ask_MalformedBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("{not json"))
	}))
	defer srv.Close()

	svc := NewHTTPService(srv.URL)
	defer svc.Close()

	_, err := svc.Ask(context.Background(), AskRequest{Message: "hi", APIKey: "k"})
	assert.Error(t, err)
}

func TestHTTPService_Ask_ServerUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // immediately closed

	svc := NewHTTPService(srv.URL)
	defer svc.Close()

	_, err := svc.Ask(context.Background(), AskRequest{Message: "hi", APIKey: "k"})
	assert.Error(t, err)
}
