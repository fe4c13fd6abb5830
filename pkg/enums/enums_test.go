package enums

import "testing"

func TestParseLedgerStatus(t *testing.T) {
	for _, status := range validLedgerStatuses {
		got, err := ParseLedgerStatus(string(status))
		if err != nil {
			t.Fatalf("parse %q: %v", status, err)
		}
		if got != status {
			t.Fatalf("expected %q got %q", status, got)
		}
	}
	if _, err := ParseLedgerStatus("archived"); err == nil {
		t.Fatal("expected error for unknown status")
	}
	if LedgerStatusNone.IsValid() {
		t.Fatal("none pseudo-state must not be persisted")
	}
	if LedgerStatusNone.String() != "none" {
		t.Fatalf("unexpected none string %q", LedgerStatusNone.String())
	}
}

func TestLedgerKindValidation(t *testing.T) {
	if !LedgerKindDonation.IsValid() {
		t.Fatal("donation kind should be valid")
	}
	if LedgerKind("booking").IsValid() {
		t.Fatal("unexpected valid kind")
	}
	if _, err := ParseLedgerKind("mentorship_connection"); err != nil {
		t.Fatalf("parse kind: %v", err)
	}
	if CounterKind("room").IsValid() {
		t.Fatal("unexpected valid counter kind")
	}
}

func TestEventStatusOpenForRegistration(t *testing.T) {
	cases := map[EventStatus]bool{
		EventStatusDraft:     false,
		EventStatusPublished: true,
		EventStatusClosed:    false,
		EventStatusCancelled: false,
	}
	for status, want := range cases {
		if got := status.OpenForRegistration(); got != want {
			t.Fatalf("%s: expected %v got %v", status, want, got)
		}
	}
	if _, err := ParseEventStatus("archived"); err == nil {
		t.Fatal("expected parse error")
	}
}
