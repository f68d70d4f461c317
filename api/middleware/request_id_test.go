package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestRequestID(t *testing.T) {
	cases := []struct {
		name   string
		header string
		keep   bool
	}{
		{name: "echoed", header: "till-7-42", keep: true},
		{name: "missing", header: ""},
		{name: "control chars", header: "abc\ninjected"},
		{name: "too long", header: strings.Repeat("a", maxRequestIDLength+1)},
	}
	for _, tc := range cases {
		var seen string
		handler := RequestID(nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			seen = RequestIDFromContext(r.Context())
		}))
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		if tc.header != "" {
			req.Header[requestIDHeader] = []string{tc.header}
		}
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		got := rec.Header().Get(requestIDHeader)
		if got == "" || got != seen {
			t.Fatalf("%s: response id %q and context id %q must match", tc.name, got, seen)
		}
		if tc.keep != (got == tc.header) {
			t.Fatalf("%s: header %q, got %q", tc.name, tc.header, got)
		}
	}
}
