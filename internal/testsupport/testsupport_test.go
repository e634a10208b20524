package testsupport

import "testing"

func TestWithSearchPathSetsOptionsParam(t *testing.T) {
	got := withSearchPath("postgres://u:p@host:5432/db?sslmode=disable", "t_a_1")
	want := "postgres://u:p@host:5432/db?options=-c+search_path%3Dt_a_1%2Cpublic&sslmode=disable"
	if got != want {
		t.Fatalf("unexpected connection string:\n got  %s\n want %s", got, want)
	}
}

func TestWithSearchPathPassesThroughInvalidURL(t *testing.T) {
	got := withSearchPath("://not a url", "s")
	if got != "://not a url" {
		t.Fatalf("expected passthrough on parse failure, got %q", got)
	}
}
