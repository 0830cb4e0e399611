package policyopa

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"noskid/internal/usecase"

	"github.com/open-policy-agent/opa/ast"
	"github.com/open-policy-agent/opa/rego"
)

const defaultQuery = "data.noskid.acceptance.result"

type Engine struct {
	query      rego.PreparedEvalQuery
	policyHash string
}

var _ usecase.AcceptancePolicy = (*Engine)(nil)

// NewEngineFromPath loads a .rego file or a directory of them.
func NewEngineFromPath(ctx context.Context, path string) (*Engine, error) {
	hash, err := PolicyHashFromPath(path)
	if err != nil {
		return nil, err
	}
	return newEngine(ctx, hash, rego.Load([]string{path}, nil))
}

func NewEngineFromModule(ctx context.Context, filename, source string) (*Engine, error) {
	hash := hashSources(map[string]string{filename: source})
	return newEngine(ctx, hash, rego.Module(filename, source))
}

func newEngine(ctx context.Context, hash string, source func(*rego.Rego)) (*Engine, error) {
	capabilities := ast.CapabilitiesForThisVersion()
	capabilities.Builtins = filterBuiltins(capabilities.Builtins)
	compiler := ast.NewCompiler().WithCapabilities(capabilities)

	r := rego.New(
		rego.Query(defaultQuery),
		rego.Compiler(compiler),
		rego.StrictBuiltinErrors(true),
		source,
	)
	prepared, err := r.PrepareForEval(ctx)
	if err != nil {
		return nil, err
	}
	if err := assertNoForbiddenBuiltins(compiler); err != nil {
		return nil, err
	}
	return &Engine{query: prepared, policyHash: hash}, nil
}

func (e *Engine) PolicyHash() string {
	if e == nil {
		return ""
	}
	return e.policyHash
}

func (e *Engine) Evaluate(ctx context.Context, input usecase.AcceptanceInput) (usecase.AcceptanceDecision, error) {
	if e == nil {
		return usecase.AcceptanceDecision{}, errors.New("policy engine is nil")
	}
	results, err := e.query.Eval(ctx, rego.EvalInput(input))
	if err != nil {
		return usecase.AcceptanceDecision{}, err
	}
	if len(results) == 0 || len(results[0].Expressions) == 0 {
		return usecase.AcceptanceDecision{}, errors.New("empty policy result")
	}
	decision, err := decodeDecision(results[0].Expressions[0].Value)
	if err != nil {
		return usecase.AcceptanceDecision{}, err
	}
	// A policy that denies anything does not allow, whatever it says.
	if len(decision.Deny) > 0 {
		decision.Allow = false
	}
	sort.Slice(decision.Deny, func(i, j int) bool {
		if decision.Deny[i].Code == decision.Deny[j].Code {
			return decision.Deny[i].Message < decision.Deny[j].Message
		}
		return decision.Deny[i].Code < decision.Deny[j].Code
	})
	return decision, nil
}

func decodeDecision(value any) (usecase.AcceptanceDecision, error) {
	payload, err := json.Marshal(value)
	if err != nil {
		return usecase.AcceptanceDecision{}, err
	}
	var decision usecase.AcceptanceDecision
	if err := json.Unmarshal(payload, &decision); err != nil {
		return usecase.AcceptanceDecision{}, fmt.Errorf("decode policy result: %w", err)
	}
	return decision, nil
}

func assertNoForbiddenBuiltins(compiler *ast.Compiler) error {
	if compiler == nil {
		return errors.New("policy compiler is nil")
	}
	forbidden := make(map[string]struct{})
	for _, module := range compiler.Modules {
		ast.WalkTerms(module, func(term *ast.Term) bool {
			call, ok := term.Value.(ast.Call)
			if !ok || len(call) == 0 || call[0] == nil {
				return false
			}
			name := call[0].Value.String()
			if _, ok := ast.BuiltinMap[name]; !ok {
				return false
			}
			if _, ok := allowedBuiltins[name]; ok {
				return false
			}
			forbidden[name] = struct{}{}
			return false
		})
	}
	if len(forbidden) == 0 {
		return nil
	}
	names := make([]string, 0, len(forbidden))
	for name := range forbidden {
		names = append(names, name)
	}
	sort.Strings(names)
	return fmt.Errorf("forbidden builtins: %s", strings.Join(names, ", "))
}
