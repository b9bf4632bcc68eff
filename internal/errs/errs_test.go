package errs

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHTTPStatus(t *testing.T) {
	testCases := []struct {
		err      error
		expected int
	}{
		{nil, http.StatusOK},
		{ErrDirectoryNotFound, http.StatusBadRequest},
		{fmt.Errorf("stage: %w", ErrPathTooLong), http.StatusBadRequest},
		{ErrPayloadTooLarge, http.StatusRequestEntityTooLarge},
		{ErrNotAPicture, http.StatusUnsupportedMediaType},
		{fmt.Errorf("%w: %w", ErrProcessingFailed, ErrNotAPicture), http.StatusInternalServerError},
		{ErrAdmissionInFlight, http.StatusConflict},
		{fmt.Errorf("%w: product 7", ErrNotFound), http.StatusNotFound},
		{ErrRecordNotFound, http.StatusInternalServerError},
		{ErrHashComputation, http.StatusInternalServerError},
	}
	for _, tc := range testCases {
		assert.Equal(t, tc.expected, HTTPStatus(tc.err), "error: %v", tc.err)
	}
}

func TestIsClientFault(t *testing.T) {
	assert.True(t, IsClientFault(fmt.Errorf("wrap: %w", ErrPayloadTooLarge)))
	assert.False(t, IsClientFault(ErrToolTimeout))
	assert.False(t, IsClientFault(nil))
}
