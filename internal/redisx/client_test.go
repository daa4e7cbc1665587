package redisx

import (
	"testing"
	"time"
)

func TestNew_AppliesTimeouts(t *testing.T) {
	c := New("127.0.0.1:6379")
	defer c.Close()

	opts := c.Options()
	if opts.ReadTimeout != 2*time.Second {
		t.Errorf("ReadTimeout = %v, want 2s", opts.ReadTimeout)
	}
	if opts.WriteTimeout != 2*time.Second {
		t.Errorf("WriteTimeout = %v, want 2s", opts.WriteTimeout)
	}
}
