package engine

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/open-policy-agent/opa/v1/ast"
	"github.com/open-policy-agent/opa/v1/rego"

	"feedback-collector/backend/internal/session/domain"
)

const policyPackage = "feedback.access"

// Default Rego policy: the lead and organisers with edit rights may update and close.
const defaultRegoPolicy = `package feedback.access

default allow_update := false
default allow_close := false

organiser_may_edit if {
	input.organiser.is_lead
}

organiser_may_edit if {
	input.organiser.can_edit
}

allow_update if {
	organiser_may_edit
	not input.session.closed
}

allow_close if {
	organiser_may_edit
}
`

var _ AccessEvaluator = (*OPAEvaluator)(nil)

// OPAEvaluator evaluates session access using OPA Rego. Queries are compiled once at construction.
type OPAEvaluator struct {
	update rego.PreparedEvalQuery
	close  rego.PreparedEvalQuery
}

// NewOPAEvaluator compiles the given Rego modules. The modules must declare package feedback.access.
// With no modules, the built-in policy is used.
func NewOPAEvaluator(ctx context.Context, modules ...string) (*OPAEvaluator, error) {
	if len(modules) == 0 {
		modules = []string{defaultRegoPolicy}
	}
	files := make(map[string]string, len(modules))
	for i, m := range modules {
		files[fmt.Sprintf("policy_%d.rego", i)] = m
	}
	compiler, err := ast.CompileModules(files)
	if err != nil {
		return nil, fmt.Errorf("compile policies: %w", err)
	}
	prepare := func(rule string) (rego.PreparedEvalQuery, error) {
		return rego.New(
			rego.Query(fmt.Sprintf("data.%s.%s", policyPackage, rule)),
			rego.Compiler(compiler),
		).PrepareForEval(ctx)
	}
	e := &OPAEvaluator{}
	if e.update, err = prepare("allow_update"); err != nil {
		return nil, fmt.Errorf("prepare allow_update: %w", err)
	}
	if e.close, err = prepare("allow_close"); err != nil {
		return nil, fmt.Errorf("prepare allow_close: %w", err)
	}
	return e, nil
}

// NewOPAEvaluatorFromFile loads a replacement policy from path. An empty path uses the built-in policy.
func NewOPAEvaluatorFromFile(ctx context.Context, path string) (*OPAEvaluator, error) {
	if path == "" {
		return NewOPAEvaluator(ctx)
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read policy file: %w", err)
	}
	return NewOPAEvaluator(ctx, string(b))
}

// HealthCheck evaluates both rules against a minimal input.
func (e *OPAEvaluator) HealthCheck(ctx context.Context) error {
	s := &domain.Session{ID: "health", Organisers: []domain.Organiser{{Email: "lead@health.check", IsLead: true}}}
	for _, a := range []Action{ActionUpdate, ActionClose} {
		q := e.query(a)
		if _, err := q.Eval(ctx, rego.EvalInput(buildInput(a, s, domain.Actor{Email: "lead@health.check"}))); err != nil {
			return fmt.Errorf("eval %s: %w", a, err)
		}
	}
	return nil
}

// Allow evaluates the policy rule for action. Non-organisers are denied without evaluating the policy.
// Evaluation failures fall back to the built-in decision.
func (e *OPAEvaluator) Allow(ctx context.Context, action Action, s *domain.Session, actor domain.Actor) (bool, error) {
	if s == nil {
		return false, nil
	}
	if action != ActionUpdate && action != ActionClose {
		return false, fmt.Errorf("unknown action %q", action)
	}
	o := s.Organiser(actor.Email)
	if o == nil {
		return false, nil
	}
	rs, err := e.query(action).Eval(ctx, rego.EvalInput(buildInput(action, s, actor)))
	if err != nil {
		log.Printf("policy: evaluation of %s failed: %v, using default decision", action, err)
		return defaultDecision(action, s, o), nil
	}
	if len(rs) == 0 || len(rs[0].Expressions) == 0 {
		return false, nil
	}
	allowed, ok := rs[0].Expressions[0].Value.(bool)
	if !ok {
		log.Printf("policy: %s returned non-boolean %T, using default decision", action, rs[0].Expressions[0].Value)
		return defaultDecision(action, s, o), nil
	}
	return allowed, nil
}

func (e *OPAEvaluator) query(action Action) rego.PreparedEvalQuery {
	if action == ActionClose {
		return e.close
	}
	return e.update
}

func buildInput(action Action, s *domain.Session, actor domain.Actor) map[string]interface{} {
	organiser := map[string]interface{}{
		"email":    domain.NormalizeEmail(actor.Email),
		"is_lead":  false,
		"can_edit": false,
	}
	if o := s.Organiser(actor.Email); o != nil {
		organiser["is_lead"] = o.IsLead
		organiser["can_edit"] = o.CanEdit
	}
	return map[string]interface{}{
		"action": string(action),
		"session": map[string]interface{}{
			"id":              s.ID,
			"closed":          s.Closed,
			"is_subsession":   s.IsSubsession,
			"organiser_count": len(s.Organisers),
		},
		"organiser": organiser,
	}
}

func defaultDecision(action Action, s *domain.Session, o *domain.Organiser) bool {
	if !o.IsLead && !o.CanEdit {
		return false
	}
	return action == ActionClose || !s.Closed
}
