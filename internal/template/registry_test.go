package template_test

import (
	"errors"
	"strings"
	"testing"

	"github.com/peoplehub/hr-notify/internal/domain"
	"github.com/peoplehub/hr-notify/internal/template"
)

func TestRegistry_Render(t *testing.T) {
	r := template.NewRegistry()
	err := r.Register("leave_approved",
		"Leave approved for {{.employee_name}}",
		"Hi {{.employee_name}}, your leave was approved by {{.approver_name}}.")
	if err != nil {
		t.Fatalf("unexpected register error: %v", err)
	}

	got, err := r.Render("leave_approved", map[string]any{
		"employee_name": "Alice",
		"approver_name": "Bob",
	})
	if err != nil {
		t.Fatalf("unexpected render error: %v", err)
	}
	if got.Subject != "Leave approved for Alice" {
		t.Fatalf("unexpected subject: %q", got.Subject)
	}
	if !strings.Contains(got.Body, "approved by Bob") {
		t.Fatalf("unexpected body: %q", got.Body)
	}
}

func TestRegistry_UnknownKind(t *testing.T) {
	r := template.NewRegistry()

	_, err := r.Render("no_such_kind", nil)
	var renderErr *domain.RenderError
	if !errors.As(err, &renderErr) {
		t.Fatalf("expected RenderError, got %v", err)
	}
	if domain.Retryable(err) {
		t.Fatal("render errors must not be retryable")
	}
}

func TestRegistry_MissingPayloadKey(t *testing.T) {
	r := template.NewRegistry()
	if err := r.Register("kra_evaluated", "KRA done for {{.quarter}}", "Rating: {{.rating}}"); err != nil {
		t.Fatal(err)
	}

	_, err := r.Render("kra_evaluated", map[string]any{"quarter": "2026-Q1"})
	var renderErr *domain.RenderError
	if !errors.As(err, &renderErr) {
		t.Fatalf("expected RenderError for missing payload key, got %v", err)
	}
}

func TestRegistry_InvalidTemplate(t *testing.T) {
	r := template.NewRegistry()
	if err := r.Register("bad", "{{.unclosed", "body"); err == nil {
		t.Fatal("expected parse error for malformed template")
	}
}

func TestDefaults_AllKindsRender(t *testing.T) {
	r := template.Defaults()

	payload := map[string]any{
		"employee_name": "Alice",
		"approver_name": "Bob",
		"leave_type":    "annual",
		"start_date":    "2026-09-01",
		"end_date":      "2026-09-05",
		"reason":        "coverage",
		"quarter":       "2026-Q3",
		"rating":        "4.5",
		"policy_name":   "Remote Work",
		"asset_name":    "MacBook Pro",
		"asset_tag":     "IT-0042",
	}

	for _, kind := range []string{
		"leave_approved", "leave_rejected", "kra_evaluated",
		"policy_assigned", "asset_assigned", "asset_returned",
	} {
		if _, err := r.Render(kind, payload); err != nil {
			t.Fatalf("kind %q: unexpected error: %v", kind, err)
		}
	}
}
