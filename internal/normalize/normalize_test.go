package normalize_test

import (
	"testing"

	"github.com/nulpointcorp/adaptivemock/internal/normalize"
)

func TestPath(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"/users/42/profile", "/users/{id}/profile"},
		{"/files/a1b2c3d4e5f6a7b8c9d0e1f2a3b4c5d6", "/files/{hash}"},
		{"/api/v2/items", "/api/v2/items"},
		{"/users/550e8400-e29b-41d4-a716-446655440000", "/users/{id}"},
		{"/posts/my-favorite-post-2024", "/posts/{slug}"},
		{"/orders/a1b2c3", "/orders/{id}"},
	}

	for _, c := range cases {
		if got := normalize.Path(c.in); got != c.want {
			t.Errorf("Path(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestPathIdempotent(t *testing.T) {
	inputs := []string{
		"/users/42/profile",
		"/files/a1b2c3d4e5f6a7b8c9d0e1f2a3b4c5d6",
		"/api/v2/items",
		"/posts/my-favorite-post-2024",
	}
	for _, in := range inputs {
		once := normalize.Path(in)
		twice := normalize.Path(once)
		if once != twice {
			t.Errorf("normalize not idempotent: Path(%q)=%q, Path(that)=%q", in, once, twice)
		}
	}
}
