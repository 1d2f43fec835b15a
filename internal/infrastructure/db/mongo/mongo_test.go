package mongo

import (
	"context"
	"net"
	"strconv"
	"testing"
	"time"
)

func TestConnect_InvalidURI(t *testing.T) {
	if _, _, err := Connect(context.Background(), Config{URI: "not-a-mongo-uri", Database: "accounts"}); err == nil {
		t.Fatalf("expected error for malformed uri")
	}
}

func TestConnect_Unreachable(t *testing.T) {
	// Reserve a port and release it so nothing is listening there.
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	port := l.Addr().(*net.TCPAddr).Port
	if err := l.Close(); err != nil {
		t.Fatalf("close listener: %v", err)
	}

	uri := "mongodb://127.0.0.1:" + strconv.Itoa(port) + "/?connectTimeoutMS=200"
	start := time.Now()
	_, _, err = Connect(context.Background(), Config{URI: uri, Database: "accounts", AppName: "accountsd", Timeout: 500 * time.Millisecond})
	if err == nil {
		t.Fatalf("expected ping failure against a closed port")
	}
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Fatalf("connect ignored its timeout, took %s", elapsed)
	}
}
