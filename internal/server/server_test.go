package server

import "testing"

func TestShouldSkipJWT(t *testing.T) {
	t.Parallel()

	cases := []struct {
		path string
		want bool
	}{
		{path: "/ping", want: true},
		{path: "/health", want: true},
		{path: "/auth/login", want: true},
		{path: "/auth/me", want: false},
		{path: "/api/webhooks/line/acct-1", want: true},
		{path: "/api/webhooks/facebook", want: true},
		{path: "/api/chat/widget", want: true},
		{path: "/api/chat/widget/stream", want: true},
		{path: "/api/conversations", want: false},
		{path: "/api/messages", want: false},
		{path: "/api/feed", want: false},
	}

	for _, tc := range cases {
		got := shouldSkipJWT(tc.path)
		if got != tc.want {
			t.Fatalf("path=%q want=%v got=%v", tc.path, tc.want, got)
		}
	}
}
