package reconcile

import (
	"testing"

	"github.com/arenatime/arenatime/services/payment-service/internal/model"
)

func TestTransition(t *testing.T) {
	cases := []struct {
		name      string
		current   string
		reported  string
		wantNext  string
		wantApply bool
	}{
		{"pending to approved", model.PaymentPending, model.PaymentApproved, model.PaymentApproved, true},
		{"pending to rejected", model.PaymentPending, model.PaymentRejected, model.PaymentRejected, true},
		{"pending to cancelled", model.PaymentPending, model.PaymentCancelled, model.PaymentCancelled, true},
		{"pending stays pending", model.PaymentPending, model.PaymentPending, model.PaymentPending, false},
		{"approved is terminal", model.PaymentApproved, model.PaymentRejected, model.PaymentApproved, false},
		{"approved replay is noop", model.PaymentApproved, model.PaymentApproved, model.PaymentApproved, false},
		{"rejected is terminal", model.PaymentRejected, model.PaymentApproved, model.PaymentRejected, false},
		{"cancelled is terminal", model.PaymentCancelled, model.PaymentApproved, model.PaymentCancelled, false},
		{"late pending report cannot regress", model.PaymentApproved, model.PaymentPending, model.PaymentApproved, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			next, apply := Transition(tc.current, tc.reported)
			if next != tc.wantNext || apply != tc.wantApply {
				t.Fatalf("Transition(%q, %q) = (%q, %v), want (%q, %v)",
					tc.current, tc.reported, next, apply, tc.wantNext, tc.wantApply)
			}
		})
	}
}

func TestTransitionIdempotent(t *testing.T) {
	// Applying the same report twice must land in the same state with no
	// second write. This is the property that makes webhook replays safe.
	next, apply := Transition(model.PaymentPending, model.PaymentApproved)
	if !apply {
		t.Fatal("first apply expected")
	}
	again, applyAgain := Transition(next, model.PaymentApproved)
	if applyAgain {
		t.Fatal("second apply must be a no-op")
	}
	if again != next {
		t.Fatalf("state moved on replay: %q -> %q", next, again)
	}
}

func TestOutcome(t *testing.T) {
	cases := map[string]string{
		model.PaymentApproved:  "approved",
		model.PaymentRejected:  "failed",
		model.PaymentCancelled: "failed",
		model.PaymentPending:   "pending",
		"":                     "pending",
	}
	for in, want := range cases {
		if got := Outcome(in); got != want {
			t.Errorf("Outcome(%q) = %q, want %q", in, got, want)
		}
	}
}
