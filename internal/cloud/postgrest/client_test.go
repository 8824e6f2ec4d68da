package postgrest

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hyperengineering/gloss/internal/cloud"
)

func TestSelect_BuildsQueryAndDecodesRows(t *testing.T) {
	var gotReq *http.Request
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotReq = r
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[{"id":"id:TB1:JHN:3:16:16","chapter":3}]`))
	}))
	defer server.Close()

	c := New(server.URL, "anon-key", WithAccessToken("user-token"))
	rows, err := c.Select(context.Background(), "bookmarks", []string{"id", "chapter"}, cloud.Eq("user_id", "u1"))
	require.NoError(t, err)

	require.Len(t, rows, 1)
	assert.Equal(t, "id:TB1:JHN:3:16:16", rows[0]["id"])
	assert.EqualValues(t, 3, rows[0]["chapter"])

	assert.Equal(t, http.MethodGet, gotReq.Method)
	assert.Equal(t, "/rest/v1/bookmarks", gotReq.URL.Path)
	assert.Equal(t, "id,chapter", gotReq.URL.Query().Get("select"))
	assert.Equal(t, "eq.u1", gotReq.URL.Query().Get("user_id"))
	assert.Equal(t, "anon-key", gotReq.Header.Get("apikey"))
	assert.Equal(t, "Bearer user-token", gotReq.Header.Get("Authorization"))
}

func TestUpsert_SendsConflictTargetAndRows(t *testing.T) {
	var (
		gotReq  *http.Request
		gotBody []map[string]any
	)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotReq = r
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &gotBody)
		w.WriteHeader(http.StatusCreated)
	}))
	defer server.Close()

	created := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	c := New(server.URL, "key")
	err := c.Upsert(context.Background(), "highlights", []cloud.Row{
		{"user_id": "u1", "verse_number": 16, "created_at": created},
		{"user_id": "u1", "verse_number": 17, "created_at": created},
	}, []string{"user_id", "verse_number"})
	require.NoError(t, err)

	assert.Equal(t, http.MethodPost, gotReq.Method)
	assert.Equal(t, "user_id,verse_number", gotReq.URL.Query().Get("on_conflict"))
	assert.Contains(t, gotReq.Header.Get("Prefer"), "resolution=merge-duplicates")
	require.Len(t, gotBody, 2)
	assert.Equal(t, "2024-01-02T03:04:05Z", gotBody[0]["created_at"])
	assert.EqualValues(t, 17, gotBody[1]["verse_number"])
}

func TestUpsert_EmptyIsNoop(t *testing.T) {
	called := false
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	defer server.Close()

	require.NoError(t, New(server.URL, "key").Upsert(context.Background(), "notes", nil, []string{"id"}))
	assert.False(t, called)
}

func TestDelete_InFilter(t *testing.T) {
	var gotReq *http.Request
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotReq = r
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	c := New(server.URL, "key")
	err := c.Delete(context.Background(), "plan_progress", cloud.Eq("user_id", "u1").WithIn("plan_id", []any{"a", "b"}))
	require.NoError(t, err)

	assert.Equal(t, http.MethodDelete, gotReq.Method)
	assert.Equal(t, "eq.u1", gotReq.URL.Query().Get("user_id"))
	assert.Equal(t, `in.("a","b")`, gotReq.URL.Query().Get("plan_id"))
}

func TestErrorClassification(t *testing.T) {
	tests := []struct {
		name       string
		status     int
		body       string
		wantKind   cloud.Kind
		wantColumn string
	}{
		{
			name:       "undefined column",
			status:     http.StatusBadRequest,
			body:       `{"code":"42703","message":"column highlights.language_code does not exist"}`,
			wantKind:   cloud.SchemaMismatch,
			wantColumn: "language_code",
		},
		{
			name:       "schema cache column",
			status:     http.StatusBadRequest,
			body:       `{"code":"PGRST204","message":"Could not find the 'version_code' column of 'notes' in the schema cache"}`,
			wantKind:   cloud.SchemaMismatch,
			wantColumn: "version_code",
		},
		{
			name:     "missing table",
			status:   http.StatusNotFound,
			body:     `{"code":"PGRST205","message":"Could not find the table 'public.notes' in the schema cache"}`,
			wantKind: cloud.SchemaMismatch,
		},
		{
			name:     "no matching conflict constraint",
			status:   http.StatusBadRequest,
			body:     `{"code":"42P10","message":"there is no unique or exclusion constraint matching the ON CONFLICT specification"}`,
			wantKind: cloud.SchemaMismatch,
		},
		{
			name:     "single row not found",
			status:   http.StatusNotAcceptable,
			body:     `{"code":"PGRST116","message":"JSON object requested, multiple (or no) rows returned"}`,
			wantKind: cloud.NotFound,
		},
		{
			name:     "server error",
			status:   http.StatusServiceUnavailable,
			body:     `upstream unavailable`,
			wantKind: cloud.Transient,
		},
		{
			name:     "permission denied",
			status:   http.StatusForbidden,
			body:     `{"code":"42501","message":"permission denied for table notes"}`,
			wantKind: cloud.Transient,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer server.Close()

			_, err := New(server.URL, "key").Select(context.Background(), "notes", []string{"id"}, cloud.Filter{})
			require.Error(t, err)

			var ce *cloud.Error
			require.ErrorAs(t, err, &ce)
			assert.Equal(t, tt.wantKind, ce.Kind)
			assert.Equal(t, tt.wantColumn, ce.Column)
			assert.Equal(t, "notes", ce.Table)
		})
	}
}

func TestNetworkFailureIsTransient(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	err := New(url, "key", WithTimeout(time.Second)).Delete(context.Background(), "notes", cloud.Eq("user_id", "u"))
	assert.Equal(t, cloud.Transient, cloud.KindOf(err))
}

func TestTruncateForLog(t *testing.T) {
	assert.Equal(t, "abc", truncateForLog("abc", 5))
	assert.Equal(t, "ab... [truncated, 4 bytes total]", truncateForLog("abcd", 2))
}
