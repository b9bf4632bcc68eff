package errs

import (
	"errors"
	"net/http"
)

// Staging / validation errors. These are the client's fault.
var (
	ErrDirectoryNotFound = errors.New("upload directory does not exist")
	ErrPathTooLong       = errors.New("file path is too long")
	ErrPayloadTooLarge   = errors.New("file is too large")
	ErrNotAPicture       = errors.New("file is not a picture")
)

// Processing errors.
var (
	ErrHashComputation     = errors.New("failed to compute content hash")
	ErrInvalidResizeTarget = errors.New("maximum size cannot be zero")
	ErrMetadataStripFailed = errors.New("failed to strip picture metadata")
	ErrConversionFailed    = errors.New("failed to convert picture")
	ErrProcessingFailed    = errors.New("picture processing failed")
	ErrToolTimeout         = errors.New("external tool timed out")
)

// Registry errors.
var (
	ErrRecordNotFound = errors.New("picture record not found")
	// ErrAdmissionInFlight is returned when the same content is being admitted by
	// someone that does not share our digest lock and has not finished processing.
	ErrAdmissionInFlight = errors.New("picture admission already in progress")
)

// ErrNotFound is what a caller asking for an unknown picture or product gets.
// Unlike ErrRecordNotFound it is the caller's mistake, not ours.
var ErrNotFound = errors.New("not found")

var clientFaults = []error{
	ErrDirectoryNotFound,
	ErrPathTooLong,
	ErrPayloadTooLarge,
}

// IsClientFault reports whether err was caused by the uploaded data.
func IsClientFault(err error) bool {
	if err == nil {
		return false
	}
	for _, target := range clientFaults {
		if errors.Is(err, target) {
			return true
		}
	}
	// a non-image rejected before admission; inside the pipeline it is wrapped
	// with ErrProcessingFailed and stays a server-side failure
	return errors.Is(err, ErrNotAPicture) && !errors.Is(err, ErrProcessingFailed)
}

// HTTPStatus maps an error to the status code the HTTP layer should answer with.
func HTTPStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrPayloadTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, ErrNotAPicture) && !errors.Is(err, ErrProcessingFailed):
		return http.StatusUnsupportedMediaType
	case IsClientFault(err):
		return http.StatusBadRequest
	case errors.Is(err, ErrAdmissionInFlight):
		return http.StatusConflict
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}
