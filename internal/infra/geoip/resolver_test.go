package geoip

import (
	"errors"
	"testing"
)

func TestNewResolverEmptyPath(t *testing.T) {
	r, err := NewResolver("  ")
	if err != nil {
		t.Fatalf("NewResolver error: %v", err)
	}
	if r != nil {
		t.Fatalf("expected nil resolver for empty path")
	}
}

func TestNilResolverUnavailable(t *testing.T) {
	var r *Resolver
	if _, err := r.CountryCode("8.8.8.8"); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
	if err := r.Close(); err != nil {
		t.Fatalf("Close on nil resolver: %v", err)
	}
}

type countingResolver struct {
	calls int
	fail  bool
}

func (c *countingResolver) CountryCode(host string) (string, error) {
	c.calls++
	if c.fail {
		return "", ErrUnavailable
	}
	if host == "10.0.0.1" {
		return "", nil
	}
	return "DE", nil
}

func TestCachedResolverMemoizesHosts(t *testing.T) {
	inner := &countingResolver{}
	c := NewCached(inner)
	for i := 0; i < 3; i++ {
		if cc, err := c.CountryCode("5.9.0.1"); err != nil || cc != "DE" {
			t.Fatalf("lookup: %q %v", cc, err)
		}
		if cc, _ := c.CountryCode("10.0.0.1"); cc != "" {
			t.Fatalf("private host should have no country, got %q", cc)
		}
	}
	if inner.calls != 2 {
		t.Fatalf("expected one lookup per host, got %d", inner.calls)
	}

	inner.fail = true
	if _, err := c.CountryCode("1.1.1.1"); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected error to pass through, got %v", err)
	}
	inner.fail = false
	if cc, err := c.CountryCode("1.1.1.1"); err != nil || cc != "DE" {
		t.Fatalf("failed lookups must not be cached: %q %v", cc, err)
	}
}
