package events

import "testing"

func TestNilPublisherIsSafe(t *testing.T) {
	var p *Publisher
	p.Publish(SubjectRateLimited, RateLimitedSignal{CallerID: "x"})
	p.Publish(SubjectCompleted, CompletedSignal{ThreadID: "t"})
	p.Close()
}

func TestEmptyPublisherIsSafe(t *testing.T) {
	p := &Publisher{}
	p.Publish(SubjectProviderDegraded, ProviderDegradedSignal{Provider: "audd", State: "open"})
	p.Close()
}
