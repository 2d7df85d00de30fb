package obs

import "testing"

func TestCanonicalPath(t *testing.T) {
	cases := map[string]string{
		"":                          "/",
		"/metrics":                  "/metrics",
		"/v1/assets/42":             "/v1/assets/:id",
		"/v1/assets/42/history":     "/v1/assets/:id/history",
		"/v1/assets/42/status":      "/v1/assets/:id/status",
		"/v1/assets/42/extra":       "/v1/assets/42/extra",
		"/v1/accounts/u1":           "/v1/accounts/:id",
		"/v1/accounts/u1/assets":    "/v1/accounts/:id/assets",
		"/v1/activity/u1":           "/v1/activity/:id",
		"/v1/transfers":             "/v1/transfers",
		"/v1/assets?q=report":       "/v1/assets",
		"/v1/activity/u1?limit=10":  "/v1/activity/:id",
		"/v1/stats":                 "/v1/stats",
	}
	for input, expected := range cases {
		if got := CanonicalPath(input); got != expected {
			t.Fatalf("CanonicalPath(%q)=%q, want %q", input, got, expected)
		}
	}
}
