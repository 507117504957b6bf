//go:build unix

package sock

import (
	"testing"
	"time"
)

func TestListenConnectAcceptSendRecv(t *testing.T) {
	listener, err := Create()
	if err != nil {
		t.Fatalf("Create() listener = %v", err)
	}
	defer listener.Close()

	if err := listener.BindAndListen("127.0.0.1", 0, 16); err != nil {
		t.Fatalf("BindAndListen() = %v", err)
	}

	addr, err := listener.GetSockName()
	if err != nil {
		t.Fatalf("GetSockName() = %v", err)
	}

	client, err := Create()
	if err != nil {
		t.Fatalf("Create() client = %v", err)
	}
	defer client.Close()

	if err := client.Connect("127.0.0.1", addr.Port); err != nil {
		t.Fatalf("Connect() = %v", err)
	}

	var server *Socket
	deadline := time.Now().Add(2 * time.Second)
	for server == nil {
		server, err = listener.Accept()
		if err != nil {
			t.Fatalf("Accept() = %v", err)
		}
		if server == nil && time.Now().After(deadline) {
			t.Fatalf("Accept() timed out waiting for the connect to land")
		}
	}
	defer server.Close()

	msg := []byte("hello from client")
	var n int
	deadline = time.Now().Add(2 * time.Second)
	for {
		n, err = client.Send(msg)
		if err != nil {
			t.Fatalf("Send() = %v", err)
		}
		if n > 0 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("Send() timed out")
		}
	}

	buf := make([]byte, 64)
	deadline = time.Now().Add(2 * time.Second)
	for {
		n, err = server.Recv(buf)
		if err != nil {
			t.Fatalf("Recv() = %v", err)
		}
		if n > 0 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("Recv() timed out")
		}
	}

	if string(buf[:n]) != string(msg) {
		t.Fatalf("Recv() = %q, want %q", buf[:n], msg)
	}
}

func TestPairWakesUpBothEnds(t *testing.T) {
	a, b, err := Pair()
	if err != nil {
		t.Fatalf("Pair() = %v", err)
	}
	defer a.Close()
	defer b.Close()

	if _, err := a.Send([]byte{1}); err != nil {
		t.Fatalf("Send() = %v", err)
	}

	buf := make([]byte, 1)
	deadline := time.Now().Add(2 * time.Second)
	for {
		n, err := b.Recv(buf)
		if err != nil {
			t.Fatalf("Recv() = %v", err)
		}
		if n == 1 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("Recv() on paired socket timed out")
		}
	}
}

func TestRecvPeerClosedMapsToError(t *testing.T) {
	a, b, err := Pair()
	if err != nil {
		t.Fatalf("Pair() = %v", err)
	}
	defer a.Close()

	b.Close()

	buf := make([]byte, 1)
	deadline := time.Now().Add(2 * time.Second)
	for {
		n, err := a.Recv(buf)
		if err != nil {
			return // expected: peer closed surfaces as an error
		}
		if n > 0 {
			t.Fatalf("Recv() returned data after peer close")
		}
		if time.Now().After(deadline) {
			t.Fatalf("Recv() never observed the peer close")
		}
	}
}
