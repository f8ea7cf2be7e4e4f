package llm

import "testing"

func TestExtractJSON(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "bare object",
			input:    `{"type":"humming"}`,
			expected: `{"type":"humming"}`,
		},
		{
			name:     "fenced json",
			input:    "```json\n{\"type\":\"humming\"}\n```",
			expected: `{"type":"humming"}`,
		},
		{
			name:     "fenced without language tag",
			input:    "```\n{\"a\":1}\n```",
			expected: `{"a":1}`,
		},
		{
			name:     "leading prose",
			input:    "Here is the classification:\n{\"type\":\"information\",\"confidence\":0.9}",
			expected: `{"type":"information","confidence":0.9}`,
		},
		{
			name:     "trailing prose",
			input:    `{"type":"unclear"} hope that helps!`,
			expected: `{"type":"unclear"}`,
		},
		{
			name:     "nested objects",
			input:    `{"answer":{"text":"x"},"candidates":[]}`,
			expected: `{"answer":{"text":"x"},"candidates":[]}`,
		},
		{
			name:     "braces inside strings",
			input:    `{"reason":"matches {title}"} trailing`,
			expected: `{"reason":"matches {title}"}`,
		},
		{
			name:     "no object at all",
			input:    "plain text",
			expected: "plain text",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ExtractJSON(tt.input); got != tt.expected {
				t.Errorf("got %q, want %q", got, tt.expected)
			}
		})
	}
}
