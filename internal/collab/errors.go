package collab

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/go-resty/resty/v2"
)

// PermanentError marks a collaborator failure that retrying cannot fix.
// Client errors other than 408 and 429 fall in this class.
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string { return e.Err.Error() }
func (e *PermanentError) Unwrap() error { return e.Err }

// IsPermanent reports whether err carries a PermanentError anywhere in its
// chain. Callers use it to stop retry loops early.
func IsPermanent(err error) bool {
	var pe *PermanentError
	return errors.As(err, &pe)
}

func permanentStatus(code int) bool {
	return code >= 400 && code < 500 &&
		code != http.StatusRequestTimeout && code != http.StatusTooManyRequests
}

// statusError wraps a non-2xx collaborator response in the given sentinel,
// classifying it as permanent or retryable by status code.
func statusError(sentinel error, resp *resty.Response) error {
	err := fmt.Errorf("%w: HTTP %d: %s", sentinel, resp.StatusCode(), resp.String())
	if permanentStatus(resp.StatusCode()) {
		return &PermanentError{Err: err}
	}
	return err
}
