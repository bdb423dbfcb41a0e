// Package template renders notification content. A template is selected
// by notification kind and filled from the entry's payload data bag.
package template

import (
	"fmt"
	"strings"
	"sync"
	texttemplate "text/template"

	"github.com/peoplehub/hr-notify/internal/domain"
)

// Rendered is the output of a successful render.
type Rendered struct {
	Subject string
	Body    string
}

// Renderer is the contract the guard and dispatcher depend on.
type Renderer interface {
	Render(kind string, payload map[string]any) (*Rendered, error)
}

type entry struct {
	subject *texttemplate.Template
	body    *texttemplate.Template
}

// Registry maps notification kinds to subject/body templates.
// Registration happens once at startup; Render is safe for concurrent use.
type Registry struct {
	mu    sync.RWMutex
	kinds map[string]entry
}

func NewRegistry() *Registry {
	return &Registry{kinds: make(map[string]entry)}
}

// Register parses and stores the templates for a kind. Templates use
// text/template syntax against the payload map; a reference to a key
// missing from the payload fails the render rather than emitting
// "<no value>" into an outbound email.
func (r *Registry) Register(kind, subject, body string) error {
	subjectTmpl, err := texttemplate.New(kind + ":subject").Option("missingkey=error").Parse(subject)
	if err != nil {
		return fmt.Errorf("parse subject template for %q: %w", kind, err)
	}
	bodyTmpl, err := texttemplate.New(kind + ":body").Option("missingkey=error").Parse(body)
	if err != nil {
		return fmt.Errorf("parse body template for %q: %w", kind, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.kinds[kind] = entry{subject: subjectTmpl, body: bodyTmpl}
	return nil
}

// Render produces subject and body for the kind. An unknown kind or a
// payload that does not satisfy the template is a RenderError (terminal).
func (r *Registry) Render(kind string, payload map[string]any) (*Rendered, error) {
	r.mu.RLock()
	e, ok := r.kinds[kind]
	r.mu.RUnlock()
	if !ok {
		return nil, &domain.RenderError{Kind: kind, Err: fmt.Errorf("no template registered")}
	}

	var subject, body strings.Builder
	if err := e.subject.Execute(&subject, payload); err != nil {
		return nil, &domain.RenderError{Kind: kind, Err: err}
	}
	if err := e.body.Execute(&body, payload); err != nil {
		return nil, &domain.RenderError{Kind: kind, Err: err}
	}
	return &Rendered{Subject: subject.String(), Body: body.String()}, nil
}

var _ Renderer = (*Registry)(nil)
