package knet

import "testing"

func newTestRef(t *testing.T) *ChannelRef {
	t.Helper()
	loop, err := NewLoop(Config{})
	if err != nil {
		t.Fatalf("NewLoop: %v", err)
	}
	ch, err := newChannel(4, 4)
	if err != nil {
		t.Fatalf("newChannel: %v", err)
	}
	info := newRefInfo(ch, loop, ChannelRefOptions{}, nil)
	return info.handle()
}

func TestShareLeaveDestroy(t *testing.T) {
	ref := newTestRef(t)

	if err := ref.Destroy(); err != nil {
		t.Fatalf("Destroy with no outstanding shares: %v", err)
	}

	ref2 := newTestRef(t)
	shared := ref2.Share()

	if err := ref2.Destroy(); err != ErrRefNonzero {
		t.Fatalf("Destroy with a live share: got %v, want ErrRefNonzero", err)
	}

	shared.Leave()
	if err := ref2.Destroy(); err != nil {
		t.Fatalf("Destroy after the share left: %v", err)
	}
}

func TestFlagAndUserData(t *testing.T) {
	ref := newTestRef(t)

	if got := ref.Flag(); got != 0 {
		t.Fatalf("default flag = %d, want 0", got)
	}
	ref.SetFlag(7)
	if got := ref.Flag(); got != 7 {
		t.Fatalf("Flag() = %d, want 7", got)
	}

	if got := ref.UserData(); got != nil {
		t.Fatalf("default user data = %v, want nil", got)
	}
	ref.SetUserData("payload")
	if got := ref.UserData(); got != "payload" {
		t.Fatalf("UserData() = %v, want %q", got, "payload")
	}
}

func TestMigratedDefaultsFalse(t *testing.T) {
	ref := newTestRef(t)
	if ref.Migrated() {
		t.Fatal("freshly constructed ref reports migrated")
	}
}

func TestSetIdleTimeoutRejectsNegative(t *testing.T) {
	ref := newTestRef(t)

	defer func() {
		if recover() == nil {
			t.Fatal("SetIdleTimeout(-1) should have panicked")
		}
	}()
	ref.SetIdleTimeout(-1)
}

func TestSetConnectDeadlineRejectsNegative(t *testing.T) {
	ref := newTestRef(t)

	defer func() {
		if recover() == nil {
			t.Fatal("SetConnectDeadline(-1) should have panicked")
		}
	}()
	ref.SetConnectDeadline(-1)
}
