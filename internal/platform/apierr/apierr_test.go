package apierr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	pkgerrors "github.com/yungbote/studyquiz-backend/internal/pkg/errors"
)

func TestFromError(t *testing.T) {
	cases := []struct {
		err    error
		status int
		code   string
	}{
		{fmt.Errorf("material m1: %w", pkgerrors.ErrNotFound), http.StatusNotFound, "not_found"},
		{pkgerrors.ErrNoMistakes, http.StatusUnprocessableEntity, "no_mistakes"},
		{pkgerrors.MissingCredentials(), http.StatusPreconditionRequired, "api_key_missing"},
		{pkgerrors.Recitation(nil), http.StatusUnprocessableEntity, "recitation_blocked"},
		{fmt.Errorf("save: %w", pkgerrors.ErrStorageUnavailable), http.StatusServiceUnavailable, "storage_unavailable"},
		{errors.New("boom"), http.StatusInternalServerError, "internal"},
	}
	for _, tc := range cases {
		got := FromError(tc.err)
		if got.Status != tc.status || got.Code != tc.code {
			t.Fatalf("%v: want=%d/%s got=%d/%s", tc.err, tc.status, tc.code, got.Status, got.Code)
		}
	}
	explicit := New(http.StatusConflict, "pdf_needs_selection", nil)
	if got := FromError(fmt.Errorf("wrap: %w", explicit)); got != explicit {
		t.Fatalf("explicit api error must pass through")
	}
}
