package github

import (
	"errors"
	"fmt"
	"net/http"

	gh "github.com/google/go-github/v68/github"

	"github.com/sakif/oss-hunter/internal/retry"
)

// ErrNoCredential is returned when a user has no stored GitHub token.
var ErrNoCredential = errors.New("github: no access token for user")

// GatewayError is any failure talking to GitHub. Status is the HTTP status
// when one was received, else 0.
type GatewayError struct {
	Op     string
	Status int
	Err    error
}

func (e *GatewayError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("github: %s: status %d: %v", e.Op, e.Status, e.Err)
	}
	return fmt.Sprintf("github: %s: %v", e.Op, e.Err)
}

func (e *GatewayError) Unwrap() error { return e.Err }

// NotFound reports whether GitHub answered 404.
func (e *GatewayError) NotFound() bool { return e.Status == http.StatusNotFound }

// wrapErr turns a go-github error into a *GatewayError. Client errors (4xx)
// are additionally marked permanent so retry.DoVal gives up at once.
func wrapErr(op string, err error) error {
	if err == nil {
		return nil
	}
	ge := &GatewayError{Op: op, Err: err}

	var ghErr *gh.ErrorResponse
	if errors.As(err, &ghErr) && ghErr.Response != nil {
		ge.Status = ghErr.Response.StatusCode
	}
	var rlErr *gh.RateLimitError
	if errors.As(err, &rlErr) && rlErr.Response != nil {
		ge.Status = rlErr.Response.StatusCode
	}

	if ge.Status >= 400 && ge.Status < 500 && ge.Status != http.StatusTooManyRequests {
		return retry.Permanent(ge)
	}
	return ge
}

// IsNotFound reports whether err is a GitHub 404.
func IsNotFound(err error) bool {
	var ge *GatewayError
	return errors.As(err, &ge) && ge.NotFound()
}
