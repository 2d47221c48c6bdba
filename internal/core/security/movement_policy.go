package security

import (
	"context"
	"fmt"

	"github.com/google/cel-go/cel"

	"pestctl/internal/core/apperror"
	"pestctl/internal/core/entity"
)

// MovementAuthorizer is the capability checked once per movement, before any mutation.
// Locations are passed already resolved (no WAREHOUSE aliases).
type MovementAuthorizer interface {
	AuthorizeMovement(ctx context.Context, actor Actor, kind entity.MovementKind, source, destination entity.Location) error
}

// MovementRule allows a role to perform a movement kind between two location kinds.
// Condition is an optional CEL expression over `actor`, `source` and `destination`
// (all map(string, string)); the rule applies only when it evaluates to true.
type MovementRule struct {
	Role        Role
	Kind        entity.MovementKind
	Source      entity.LocationKind
	Destination entity.LocationKind
	Condition   string
}

type ruleKey struct {
	role        Role
	kind        entity.MovementKind
	source      entity.LocationKind
	destination entity.LocationKind
}

type compiledRule struct {
	rule    MovementRule
	program cel.Program // nil = unconditional
}

// MovementPolicy is the authorization table: (role, kind, source kind, destination kind) → allowed.
type MovementPolicy struct {
	rules map[ruleKey][]compiledRule
}

var _ MovementAuthorizer = (*MovementPolicy)(nil)

// NewMovementPolicy compiles the rule table. Invalid conditions fail fast.
func NewMovementPolicy(rules []MovementRule) (*MovementPolicy, error) {
	env, err := cel.NewEnv(
		cel.Variable("actor", cel.MapType(cel.StringType, cel.StringType)),
		cel.Variable("source", cel.MapType(cel.StringType, cel.StringType)),
		cel.Variable("destination", cel.MapType(cel.StringType, cel.StringType)),
	)
	if err != nil {
		return nil, fmt.Errorf("create cel env: %w", err)
	}

	p := &MovementPolicy{rules: make(map[ruleKey][]compiledRule, len(rules))}
	for i, r := range rules {
		cr := compiledRule{rule: r}
		if r.Condition != "" {
			ast, iss := env.Compile(r.Condition)
			if iss != nil && iss.Err() != nil {
				return nil, fmt.Errorf("rule %d: compile condition: %w", i, iss.Err())
			}
			if !ast.OutputType().IsExactType(cel.BoolType) {
				return nil, fmt.Errorf("rule %d: condition must be boolean, got %s", i, ast.OutputType())
			}
			prg, err := env.Program(ast)
			if err != nil {
				return nil, fmt.Errorf("rule %d: build program: %w", i, err)
			}
			cr.program = prg
		}
		key := ruleKey{role: r.Role, kind: r.Kind, source: r.Source, destination: r.Destination}
		p.rules[key] = append(p.rules[key], cr)
	}
	return p, nil
}

// MustMovementPolicy is NewMovementPolicy that panics on error. Use for static tables.
func MustMovementPolicy(rules []MovementRule) *MovementPolicy {
	p, err := NewMovementPolicy(rules)
	if err != nil {
		panic(err)
	}
	return p
}

// AuthorizeMovement implements MovementAuthorizer.
func (p *MovementPolicy) AuthorizeMovement(
	ctx context.Context,
	actor Actor,
	kind entity.MovementKind,
	source, destination entity.Location,
) error {
	key := ruleKey{role: actor.Role, kind: kind, source: source.Kind, destination: destination.Kind}
	candidates := p.rules[key]

	vars := map[string]any{
		"actor":       actor.attributes(),
		"source":      locationAttributes(source),
		"destination": locationAttributes(destination),
	}

	for _, cr := range candidates {
		if cr.program == nil {
			return nil
		}
		out, _, err := cr.program.ContextEval(ctx, vars)
		if err != nil {
			return apperror.NewInternal(fmt.Errorf("evaluate movement rule: %w", err))
		}
		if allowed, ok := out.Value().(bool); ok && allowed {
			return nil
		}
	}

	return apperror.NewForbidden("movement not allowed for caller").
		WithDetail("role", string(actor.Role)).
		WithDetail("kind", string(kind)).
		WithDetail("source_kind", string(source.Kind)).
		WithDetail("destination_kind", string(destination.Kind))
}

func locationAttributes(l entity.Location) map[string]string {
	if l.IsZero() {
		return map[string]string{"kind": "", "id": ""}
	}
	return map[string]string{"kind": string(l.Kind), "id": l.ID.String()}
}

// Conditions used by the default table.
const (
	ownSourceBranch      = `source.id == actor.branch_id`
	ownDestinationBranch = `destination.id == actor.branch_id`
	ownSourceTechnician  = `source.id == actor.technician_id`
)

// DefaultMovementRules is the production authorization table.
func DefaultMovementRules() []MovementRule {
	const (
		none = entity.LocationNone
		co   = entity.LocationCompany
		br   = entity.LocationBranch
		tech = entity.LocationTechnician
	)

	return []MovementRule{
		// Company administrators.
		{Role: RoleAdmin, Kind: entity.MovementReceipt, Source: none, Destination: co},
		{Role: RoleAdmin, Kind: entity.MovementReceipt, Source: none, Destination: br},
		{Role: RoleAdmin, Kind: entity.MovementIssue, Source: co, Destination: br},
		{Role: RoleAdmin, Kind: entity.MovementIssue, Source: co, Destination: tech},
		{Role: RoleAdmin, Kind: entity.MovementIssue, Source: br, Destination: br},
		{Role: RoleAdmin, Kind: entity.MovementIssue, Source: br, Destination: tech},
		{Role: RoleAdmin, Kind: entity.MovementTransfer, Source: co, Destination: br},
		{Role: RoleAdmin, Kind: entity.MovementTransfer, Source: br, Destination: co},
		{Role: RoleAdmin, Kind: entity.MovementTransfer, Source: br, Destination: br},
		{Role: RoleAdmin, Kind: entity.MovementReturn, Source: tech, Destination: br},
		{Role: RoleAdmin, Kind: entity.MovementReturn, Source: tech, Destination: co},
		{Role: RoleAdmin, Kind: entity.MovementReturn, Source: br, Destination: co},
		{Role: RoleAdmin, Kind: entity.MovementConsumption, Source: tech, Destination: none},

		// Branch managers act on their own branch.
		{Role: RoleBranchManager, Kind: entity.MovementReceipt, Source: none, Destination: br, Condition: ownDestinationBranch},
		{Role: RoleBranchManager, Kind: entity.MovementIssue, Source: br, Destination: tech, Condition: ownSourceBranch},
		{Role: RoleBranchManager, Kind: entity.MovementIssue, Source: br, Destination: br, Condition: ownSourceBranch},
		{Role: RoleBranchManager, Kind: entity.MovementTransfer, Source: br, Destination: br, Condition: ownSourceBranch},
		{Role: RoleBranchManager, Kind: entity.MovementReturn, Source: tech, Destination: br, Condition: ownDestinationBranch},
		{Role: RoleBranchManager, Kind: entity.MovementReturn, Source: br, Destination: co, Condition: ownSourceBranch},
		{Role: RoleBranchManager, Kind: entity.MovementConsumption, Source: tech, Destination: none},

		// Technicians only move their own stock.
		{Role: RoleTechnician, Kind: entity.MovementReturn, Source: tech, Destination: br, Condition: ownSourceTechnician},
		{Role: RoleTechnician, Kind: entity.MovementConsumption, Source: tech, Destination: none, Condition: ownSourceTechnician},
	}
}
