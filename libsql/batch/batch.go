// Package batch turns statements and bound parameters into pipeline requests.
//
// The pipeline endpoint reports affected_row_count for every execute, but the
// UPDATE/DELETE concurrency check needs to tell "row never existed" apart from
// "row changed underneath us", so those statements are wrapped in extra
// requests in the same batch:
//
//	[verify COUNT(*), main statement, SELECT changes(), refresh SELECT (UPDATE only), close]
//
// Callers map responses back positionally through Plan.Steps.
package batch

import (
	"fmt"
	"strings"

	"github.com/tomyedwab/libsqlhttp/libsql/codec"
	"github.com/tomyedwab/libsqlhttp/libsql/dberr"
	"github.com/tomyedwab/libsqlhttp/libsql/sqltext"
	"github.com/tomyedwab/libsqlhttp/libsql/types"
)

// Step says what a request in a plan is for.
type Step int

const (
	StepMain Step = iota
	StepVerify
	StepChanges
	StepRefresh
	StepClose
)

func (s Step) String() string {
	switch s {
	case StepVerify:
		return "verify"
	case StepChanges:
		return "changes"
	case StepRefresh:
		return "refresh"
	case StepClose:
		return "close"
	}
	return "main"
}

// Parameters resolves a placeholder name (without prefix) to a bound parameter.
type Parameters interface {
	Lookup(name string) (*codec.Parameter, bool)
}

// Params is a Parameters backed by a plain list.
type Params []*codec.Parameter

// Lookup matches names case-insensitively, ignoring any @, : or $ prefix.
func (ps Params) Lookup(name string) (*codec.Parameter, bool) {
	name = codec.NormalizeName(name)
	for _, p := range ps {
		if strings.EqualFold(codec.NormalizeName(p.Name), name) {
			return p, true
		}
	}
	return nil, false
}

// Expectation is a concurrency token compared in the WHERE clause, reported
// when a check fails.
type Expectation struct {
	Column string
	Value  any
}

// Plan is an ordered batch plus the meaning of each entry.
type Plan struct {
	Kind     sqltext.Kind
	SQL      string
	Table    string
	Requests []types.StreamRequest
	Steps    []Step

	// IDValue is the bound value of the Id predicate when a verify step exists.
	IDValue  any
	Expected []Expectation
}

// Pipeline returns the request body for the plan.
func (p *Plan) Pipeline() *types.PipelineRequest {
	return &types.PipelineRequest{Requests: p.Requests}
}

// Has reports whether the plan contains a step.
func (p *Plan) Has(step Step) bool {
	for _, s := range p.Steps {
		if s == step {
			return true
		}
	}
	return false
}

func (p *Plan) add(step Step, req types.StreamRequest) {
	p.Steps = append(p.Steps, step)
	p.Requests = append(p.Requests, req)
}

// Build plans a single statement of the given kind.
func Build(kind sqltext.Kind, stmt string, params Parameters) (*Plan, error) {
	plan := &Plan{Kind: kind, SQL: stmt}

	main, err := Statement(stmt, params)
	if err != nil {
		return nil, err
	}

	if kind != sqltext.Update && kind != sqltext.Delete {
		plan.add(StepMain, main)
		plan.add(StepClose, types.CloseRequest())
		return plan, nil
	}

	table, ok := sqltext.TableIdent(stmt)
	if !ok {
		// Nothing to verify against; the count comes from affected_row_count.
		plan.add(StepMain, main)
		plan.add(StepClose, types.CloseRequest())
		return plan, nil
	}
	plan.Table = strings.Join(table, ".")

	idParam, hasID := sqltext.IDPredicate(stmt)
	if !hasID {
		plan.add(StepMain, main)
		plan.add(StepChanges, types.ExecuteRequest("SELECT changes();", nil))
		plan.add(StepClose, types.CloseRequest())
		return plan, nil
	}

	id, ok := params.Lookup(idParam)
	if !ok {
		return nil, dberr.NewInvalidParameterError(fmt.Sprintf("parameter @%s is referenced but not bound", idParam)).WithSQL(stmt)
	}
	plan.IDValue = id.Value
	for _, pred := range sqltext.Predicates(stmt) {
		if strings.EqualFold(pred.Column, "id") {
			continue
		}
		if p, ok := params.Lookup(pred.Param); ok {
			plan.Expected = append(plan.Expected, Expectation{Column: pred.Column, Value: p.Value})
		}
	}

	quoted := sqltext.QuoteQualified(table)
	idPredicate := fmt.Sprintf(`WHERE "Id" = @%s`, idParam)

	verify, err := Statement(fmt.Sprintf("SELECT COUNT(*) FROM %s %s", quoted, idPredicate), params)
	if err != nil {
		return nil, err
	}
	plan.add(StepVerify, verify)
	plan.add(StepMain, main)
	plan.add(StepChanges, types.ExecuteRequest("SELECT changes();", nil))

	if kind == sqltext.Update {
		refresh, err := Statement(fmt.Sprintf("SELECT * FROM %s %s", quoted, idPredicate), params)
		if err != nil {
			return nil, err
		}
		plan.add(StepRefresh, refresh)
	}

	plan.add(StepClose, types.CloseRequest())
	return plan, nil
}

// BuildScript plans every statement as a plain execute in one batch, for the
// scalar and reader paths.
func BuildScript(stmts []string, params Parameters) (*Plan, error) {
	plan := &Plan{Kind: sqltext.Other, SQL: strings.Join(stmts, ";\n")}
	for _, stmt := range stmts {
		req, err := Statement(stmt, params)
		if err != nil {
			return nil, err
		}
		plan.add(StepMain, req)
	}
	plan.add(StepClose, types.CloseRequest())
	return plan, nil
}

// Statement builds an execute request for stmt, rewriting @name placeholders to
// positional ?k arguments in order of first appearance.
func Statement(stmt string, params Parameters) (types.StreamRequest, error) {
	sql, names := sqltext.Rewrite(stmt)

	args := make([]types.Value, 0, len(names))
	for _, name := range names {
		p, ok := params.Lookup(name)
		if !ok {
			return types.StreamRequest{}, dberr.NewInvalidParameterError(fmt.Sprintf("parameter @%s is referenced but not bound", name)).WithSQL(stmt)
		}
		v, err := codec.Encode(p)
		if err != nil {
			return types.StreamRequest{}, dberr.Wrap(dberr.KindInvalidParameter, fmt.Sprintf("failed to encode parameter @%s", name), err).WithSQL(stmt)
		}
		args = append(args, v.Named("@"+name))
	}

	return types.ExecuteRequest(sql, args), nil
}
