package nonce

import (
	"testing"
	"time"
)

func TestAdmit_FirstTimeAdmitted(t *testing.T) {
	g := New(100, time.Hour)
	if !g.Admit("a") {
		t.Fatal("expected first admission to succeed")
	}
}

func TestAdmit_DuplicateWhileInFlightRejected(t *testing.T) {
	g := New(100, time.Hour)
	if !g.Admit("a") {
		t.Fatal("expected first admission to succeed")
	}
	if g.Admit("a") {
		t.Fatal("expected duplicate admission while in-flight to be rejected")
	}
}

func TestAdmit_DuplicateAfterCompleteRejected(t *testing.T) {
	g := New(100, time.Hour)
	g.Admit("a")
	g.Complete("a")
	if g.Admit("a") {
		t.Fatal("expected duplicate admission after complete to be rejected")
	}
}

func TestAdmit_DuplicateAfterFailedRejected(t *testing.T) {
	g := New(100, time.Hour)
	g.Admit("a")
	g.Failed("a")
	if g.Admit("a") {
		t.Fatal("expected duplicate admission after failed to be rejected")
	}
}

func TestAdmit_BoundedCapacityEvictsOldest(t *testing.T) {
	g := New(2, time.Hour)
	g.Admit("a")
	g.Complete("a")
	g.Admit("b")
	g.Admit("c") // evicts "a" per LRU policy
	if !g.Admit("a") {
		t.Fatal("expected id evicted by capacity to be admitted again")
	}
}

func TestAdmit_TTLExpiryReadmits(t *testing.T) {
	g := New(100, 10*time.Millisecond)
	g.Admit("a")
	g.Complete("a")
	time.Sleep(50 * time.Millisecond)
	if !g.Admit("a") {
		t.Fatal("expected id to be admitted again after TTL expiry")
	}
}
