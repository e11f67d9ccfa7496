package httpx

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/contentieux/contentieux/internal/shared"
)

func TestRespondErrorMapsSentinels(t *testing.T) {
	cases := []struct {
		err    error
		status int
		detail bool
	}{
		{fmt.Errorf("%w: 2024-13", shared.ErrInvalidPeriod), http.StatusBadRequest, true},
		{fmt.Errorf("%w: policy", shared.ErrValidation), http.StatusBadRequest, true},
		{shared.ErrNotFound, http.StatusNotFound, true},
		{errors.New("pq: password authentication failed"), http.StatusInternalServerError, false},
	}
	for _, tc := range cases {
		rr := httptest.NewRecorder()
		RespondError(rr, tc.err)
		require.Equal(t, tc.status, rr.Code, tc.err)
		assert.Equal(t, ProblemContentType, rr.Header().Get("Content-Type"))

		var problem ProblemDetail
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &problem))
		assert.Equal(t, tc.status, problem.Status)
		if tc.detail {
			assert.Equal(t, tc.err.Error(), problem.Detail)
		} else {
			assert.Empty(t, problem.Detail)
		}
	}
}

func TestWriteProblemExtensions(t *testing.T) {
	index := 0
	rr := httptest.NewRecorder()
	WriteProblem(rr, ProblemDetail{Status: http.StatusUnprocessableEntity, CaseID: "AFF-1", Index: &index})

	var body map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, "Unprocessable Entity", body["title"])
	assert.Equal(t, "AFF-1", body["case_id"])
	assert.Equal(t, float64(0), body["index"])
}
