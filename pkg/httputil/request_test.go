package httputil

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
)

func TestParseJSON(t *testing.T) {
	tests := []struct {
		name        string
		body        string
		expectError bool
	}{
		{"valid JSON", `{"name": "test"}`, false},
		{"invalid JSON", `{invalid}`, true},
		{"unknown field", `{"name": "test", "extra": 1}`, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("POST", "/test", bytes.NewBufferString(tt.body))
			var dest struct {
				Name string `json:"name"`
			}

			err := ParseJSON(req, &dest)

			if tt.expectError {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
				assert.Equal(t, "test", dest.Name)
			}
		})
	}
}

func TestParseJSONOrError(t *testing.T) {
	w := httptest.NewRecorder()
	req := httptest.NewRequest("POST", "/test", bytes.NewBufferString(`{`))
	var dest map[string]string

	assert.False(t, ParseJSONOrError(w, req, &dest))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestParsePathStringOrError(t *testing.T) {
	req := httptest.NewRequest("GET", "/roles/SALES", nil)
	req = mux.SetURLVars(req, map[string]string{"code": "SALES", "blank": "  "})

	w := httptest.NewRecorder()
	val, ok := ParsePathStringOrError(w, req, "code")
	assert.True(t, ok)
	assert.Equal(t, "SALES", val)

	w = httptest.NewRecorder()
	_, ok = ParsePathStringOrError(w, req, "blank")
	assert.False(t, ok)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestParseQuery(t *testing.T) {
	req := httptest.NewRequest("GET", "/check?action=edit&legacy=true&bad=maybe&limit=25", nil)

	assert.Equal(t, "edit", ParseQueryString(req, "action", "view"))
	assert.Equal(t, "view", ParseQueryString(req, "missing", "view"))

	legacy, err := ParseQueryBool(req, "legacy", false)
	assert.NoError(t, err)
	assert.True(t, legacy)

	_, err = ParseQueryBool(req, "bad", false)
	assert.Error(t, err)

	limit, err := ParseQueryInt(req, "limit", 100)
	assert.NoError(t, err)
	assert.Equal(t, 25, limit)

	limit, err = ParseQueryInt(req, "missing", 100)
	assert.NoError(t, err)
	assert.Equal(t, 100, limit)

	_, err = ParseQueryInt(req, "bad", 0)
	assert.Error(t, err)
}

func TestRequireNonEmpty(t *testing.T) {
	w := httptest.NewRecorder()
	assert.True(t, RequireNonEmpty(w, "x", "code"))

	w = httptest.NewRecorder()
	assert.False(t, RequireNonEmpty(w, " ", "code"))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "code is required")
}
