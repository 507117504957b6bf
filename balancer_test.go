package knet

import "testing"

func TestBalancerChoosesLeastLoaded(t *testing.T) {
	a, err := NewLoop(Config{})
	if err != nil {
		t.Fatalf("NewLoop a: %v", err)
	}
	b, err := NewLoop(Config{})
	if err != nil {
		t.Fatalf("NewLoop b: %v", err)
	}
	c, err := NewLoop(Config{})
	if err != nil {
		t.Fatalf("NewLoop c: %v", err)
	}

	bal := NewBalancer(a, b, c)

	if got := bal.Choose(); got != a {
		t.Fatalf("expected first loop a on tie, got %p want %p", got, a)
	}

	// Simulate load by registering refs directly into b's active list.
	for i := 0; i < 2; i++ {
		ch := newChannelFromFD(-1, 4, 4)
		ref := newRefInfo(ch, b, ChannelRefOptions{}, nil)
		ref.elem = b.active.PushBack(ref)
		b.refCount.Add(1)
	}

	if got := bal.Choose(); got != a {
		t.Fatalf("expected a (still least loaded), got %p", got)
	}

	for i := 0; i < 2; i++ {
		ch := newChannelFromFD(-1, 4, 4)
		ref := newRefInfo(ch, a, ChannelRefOptions{}, nil)
		ref.elem = a.active.PushBack(ref)
		a.refCount.Add(1)
	}
	ch := newChannelFromFD(-1, 4, 4)
	ref := newRefInfo(ch, a, ChannelRefOptions{}, nil)
	ref.elem = a.active.PushBack(ref)
	a.refCount.Add(1)

	if got := bal.Choose(); got != c {
		t.Fatalf("expected c (still empty) once a and b carry load, got %p want %p", got, c)
	}
}

func TestEmptyBalancerChoosesNil(t *testing.T) {
	bal := NewBalancer()
	if got := bal.Choose(); got != nil {
		t.Fatalf("expected nil from empty balancer, got %v", got)
	}
}
