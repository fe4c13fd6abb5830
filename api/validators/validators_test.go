package validators

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/alumnet-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/alumnet-backend/pkg/errors"
)

type sampleBody struct {
	Title    string `json:"title" validate:"required,max=10"`
	Capacity int64  `json:"capacity" validate:"gte=0"`
}

func TestDecodeJSONBody(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"title":"Gala","capacity":5}`))
	var body sampleBody
	require.NoError(t, DecodeJSONBody(req, &body))
	assert.Equal(t, "Gala", body.Title)
	assert.Equal(t, int64(5), body.Capacity)
}

func TestDecodeJSONBodyRejects(t *testing.T) {
	cases := map[string]string{
		"unknown field": `{"title":"Gala","extra":1}`,
		"malformed":     `{"title":`,
		"missing title": `{"capacity":1}`,
		"negative":      `{"title":"Gala","capacity":-1}`,
	}
	for name, raw := range cases {
		req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(raw))
		var body sampleBody
		err := DecodeJSONBody(req, &body)
		require.Error(t, err, name)
		assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation), name)
	}
}

func TestValidationDetailsUseJSONNames(t *testing.T) {
	err := Struct(&sampleBody{Title: "far too long a title"})
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	details, ok := typed.Details().(map[string]string)
	require.True(t, ok)
	assert.Equal(t, "must be at most 10", details["title"])
}

func TestParseQueryInt(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/?limit=20", nil)
	v, err := ParseQueryInt(req, "limit", 10, 1, 50)
	require.NoError(t, err)
	assert.Equal(t, 20, v)

	v, err = ParseQueryInt(httptest.NewRequest(http.MethodGet, "/", nil), "limit", 10, 1, 50)
	require.NoError(t, err)
	assert.Equal(t, 10, v)

	_, err = ParseQueryInt(httptest.NewRequest(http.MethodGet, "/?limit=x", nil), "limit", 10, 1, 50)
	require.Error(t, err)
	_, err = ParseQueryInt(httptest.NewRequest(http.MethodGet, "/?limit=99", nil), "limit", 10, 1, 50)
	require.Error(t, err)
}

func TestParseUUIDParam(t *testing.T) {
	id := uuid.New()
	req := withParam(httptest.NewRequest(http.MethodGet, "/", nil), "eventId", id.String())
	got, err := ParseUUIDParam(req, "eventId")
	require.NoError(t, err)
	assert.Equal(t, id, got)

	req = withParam(httptest.NewRequest(http.MethodGet, "/", nil), "eventId", "nope")
	_, err = ParseUUIDParam(req, "eventId")
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestParseStatusFilter(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/?status=registered,attended&status=cancelled", nil)
	got, err := ParseStatusFilter(req)
	require.NoError(t, err)
	assert.Equal(t, []enums.LedgerStatus{enums.LedgerStatusRegistered, enums.LedgerStatusAttended, enums.LedgerStatusCancelled}, got)

	_, err = ParseStatusFilter(httptest.NewRequest(http.MethodGet, "/?status=archived", nil))
	require.Error(t, err)
}

func TestSanitizeString(t *testing.T) {
	assert.Equal(t, "abc", SanitizeString("  abc  ", 0))
	assert.Equal(t, "ab", SanitizeString("abc", 2))
	assert.Equal(t, "héll", SanitizeString("héllo", 4))
	assert.Equal(t, "Spring Gala", SanitizeString("Spring\x00 Gala\t", 0))
	assert.Equal(t, "ab", SanitizeString("ab cd", 3))
}

func withParam(r *http.Request, key, value string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add(key, value)
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}
