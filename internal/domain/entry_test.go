package domain_test

import (
	"errors"
	"testing"

	"github.com/peoplehub/hr-notify/internal/domain"
)

func validEvent() domain.Event {
	return domain.Event{
		Module:      "leave",
		ReferenceID: "leave-42",
		Kind:        "leave_approved",
		Priority:    domain.PriorityNormal,
		Recipients:  domain.RecipientSpec{ToUserIDs: []string{"emp-1"}},
		LastPart:    true,
	}
}

func TestEvent_Validate(t *testing.T) {
	t.Run("valid event passes", func(t *testing.T) {
		ev := validEvent()
		if err := ev.Validate(); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
	})

	t.Run("empty module", func(t *testing.T) {
		ev := validEvent()
		ev.Module = ""
		if err := ev.Validate(); err != domain.ErrInvalidModule {
			t.Fatalf("expected ErrInvalidModule, got %v", err)
		}
	})

	t.Run("empty reference", func(t *testing.T) {
		ev := validEvent()
		ev.ReferenceID = ""
		if err := ev.Validate(); err != domain.ErrInvalidReference {
			t.Fatalf("expected ErrInvalidReference, got %v", err)
		}
	})

	t.Run("empty kind", func(t *testing.T) {
		ev := validEvent()
		ev.Kind = ""
		if err := ev.Validate(); err != domain.ErrInvalidKind {
			t.Fatalf("expected ErrInvalidKind, got %v", err)
		}
	})

	t.Run("unknown priority", func(t *testing.T) {
		ev := validEvent()
		ev.Priority = "asap"
		if err := ev.Validate(); err != domain.ErrInvalidPriority {
			t.Fatalf("expected ErrInvalidPriority, got %v", err)
		}
	})

	t.Run("empty priority defaults to normal", func(t *testing.T) {
		ev := validEvent()
		ev.Priority = ""
		if err := ev.Validate(); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if ev.Priority != domain.PriorityNormal {
			t.Fatalf("expected priority=normal, got %s", ev.Priority)
		}
	})

	t.Run("no recipients", func(t *testing.T) {
		ev := validEvent()
		ev.Recipients = domain.RecipientSpec{CCTags: []string{"hr"}}
		if err := ev.Validate(); err != domain.ErrNoRecipients {
			t.Fatalf("expected ErrNoRecipients, got %v", err)
		}
	})
}

func TestPriority_Rank(t *testing.T) {
	order := []domain.Priority{
		domain.PriorityUrgent,
		domain.PriorityHigh,
		domain.PriorityNormal,
		domain.PriorityLow,
	}
	for i := 1; i < len(order); i++ {
		if order[i-1].Rank() >= order[i].Rank() {
			t.Fatalf("expected %s to rank before %s", order[i-1], order[i])
		}
	}
}

func TestStatus_Terminal(t *testing.T) {
	if domain.StatusPending.Terminal() {
		t.Fatal("pending must not be terminal")
	}
	for _, s := range []domain.Status{domain.StatusSent, domain.StatusFailed, domain.StatusCancelled} {
		if !s.Terminal() {
			t.Fatalf("expected %s to be terminal", s)
		}
	}
}

func TestRetryable_Classification(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		retryable bool
		class     string
	}{
		{"retryable transport", &domain.TransportError{Retryable: true, Err: errors.New("timeout")}, true, domain.ClassTransport},
		{"terminal transport", &domain.TransportError{Retryable: false, Err: errors.New("bad address")}, false, domain.ClassTransport},
		{"resolution", &domain.ResolutionError{Reason: "no primary recipient"}, false, domain.ClassResolution},
		{"render", &domain.RenderError{Kind: "leave_approved", Err: errors.New("missing key")}, false, domain.ClassRender},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := domain.Retryable(tc.err); got != tc.retryable {
				t.Fatalf("Retryable: expected %v, got %v", tc.retryable, got)
			}
			if got := domain.Classify(tc.err); got != tc.class {
				t.Fatalf("Classify: expected %s, got %s", tc.class, got)
			}
		})
	}
}

func TestQueueEntry_Key(t *testing.T) {
	e := domain.QueueEntry{Module: "performance", ReferenceID: "emp-9", Kind: "kra_evaluated", Scope: "2026-Q1"}
	want := domain.DedupKey{Module: "performance", ReferenceID: "emp-9", Kind: "kra_evaluated", Scope: "2026-Q1"}
	if e.Key() != want {
		t.Fatalf("unexpected key: %+v", e.Key())
	}
}
