package redisx

import (
	"context"
	"testing"
)

func TestOpenWithoutAddr(t *testing.T) {
	rdb, err := Open(context.Background(), Options{})
	if err != nil || rdb != nil {
		t.Fatalf("expected nil client and no error, got %v %v", rdb, err)
	}
	if err := ReadyCheck(nil)(context.Background()); err == nil {
		t.Fatal("expected ready check to fail without a client")
	}
}
