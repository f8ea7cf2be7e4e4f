package resolver

import (
	"fmt"
	"time"
)

// RateLimitedError is an expected-frequent outcome, not a fault: the caller
// gets a retry hint and the request never reaches the pipeline.
type RateLimitedError struct {
	Reason     string
	RetryAfter time.Duration
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("rate limited: %s, retry in %s", e.Reason, e.RetryAfter)
}

// BadRequestError marks input the pipeline cannot work with, such as a text
// request with no text and no audio.
type BadRequestError struct {
	Reason string
}

func (e *BadRequestError) Error() string {
	return e.Reason
}
