package api

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/scrycache/scrycache/breaker"
	"github.com/scrycache/scrycache/query"
	"github.com/scrycache/scrycache/store"
	"github.com/scrycache/scrycache/upstream"
)

func TestSanitizeQuery(t *testing.T) {
	var cases = []struct {
		raw      string
		expected string
	}{
		{"", ""},
		{"q=c%3Ar&page=2", "q=c%3Ar&page=2"},
		{"api_key=hunter2", "api_key=***"},
		{"q=bolt&token=abc123&page=1", "q=bolt&token=***&page=1"},
		{"password=s3cret&secret=xyz", "password=***&secret=***"},
		{"api_key_id=ok", "api_key_id=ok"},
		{"flag", "flag"},
	}
	for _, tc := range cases {
		require.Equal(t, tc.expected, sanitizeQuery(tc.raw), tc.raw)
	}
}

func TestClassify(t *testing.T) {
	var cases = []struct {
		err  error
		code Code
	}{
		{&query.ParseError{Err: errors.New("unbalanced parentheses")}, CodeInvalidQuery},
		{&query.ValidationError{Err: errors.New("query too deep")}, CodeValidationError},
		{breaker.ErrOpen, CodeScryfallAPIError},
		{fmt.Errorf("searching: %w", breaker.ErrOpen), CodeScryfallAPIError},
		{&upstream.Error{Status: 500, Body: "oops"}, CodeScryfallAPIError},
		{&upstream.Error{Err: errors.New("dial tcp: connection refused")}, CodeScryfallAPIError},
		// A client timeout unwraps to context.DeadlineExceeded; the typed
		// upstream error must still win over the deadline mapping.
		{&upstream.Error{Err: &url.Error{Op: "Get", URL: "/cards", Err: context.DeadlineExceeded}}, CodeScryfallAPIError},
		{store.Failed(store.Unavailable, "query", errors.New("locked")), CodeDatabaseError},
		{context.DeadlineExceeded, CodeDatabaseError},
		{errors.New("boom"), CodeInternalError},
	}
	for _, tc := range cases {
		require.Equal(t, tc.code, classify(tc.err), "%v", tc.err)
	}
}
