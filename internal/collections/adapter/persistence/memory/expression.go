package memory

import (
	"docdb-binder/internal/shared/errors"

	"github.com/google/cel-go/cel"
	lru "github.com/hashicorp/golang-lru/v2"
)

// documentVariable is the name under which native expressions see the document.
const documentVariable = "doc"

// maxCachedExpressions bounds the compiled programs kept by a client.
const maxCachedExpressions = 256

type compiledExpression struct {
	source  string
	program cel.Program
}

// matches evaluates the expression against one document. Evaluation errors, such as
// a reference to a missing field, count as a non-match.
func (e *compiledExpression) matches(doc map[string]interface{}) bool {
	out, _, err := e.program.Eval(map[string]interface{}{documentVariable: doc})
	if err != nil {
		return false
	}
	result, ok := out.Value().(bool)
	return ok && result
}

// expressionCache compiles CEL expressions and keeps the most recently used programs.
type expressionCache struct {
	env      *cel.Env
	compiled *lru.Cache[string, *compiledExpression]
}

func newExpressionCache(size int) (*expressionCache, error) {
	env, err := cel.NewEnv(
		cel.Variable(documentVariable, cel.MapType(cel.StringType, cel.DynType)),
		cel.CrossTypeNumericComparisons(true),
	)
	if err != nil {
		return nil, err
	}
	compiled, err := lru.New[string, *compiledExpression](size)
	if err != nil {
		return nil, err
	}
	return &expressionCache{env: env, compiled: compiled}, nil
}

func (c *expressionCache) compile(expression string) (*compiledExpression, error) {
	if cached, ok := c.compiled.Get(expression); ok {
		return cached, nil
	}

	ast, issues := c.env.Compile(expression)
	if issues != nil && issues.Err() != nil {
		return nil, errors.NewValidationError("invalid native query expression").
			WithCause(issues.Err()).
			WithDetail("expression", expression)
	}
	if out := ast.OutputType().String(); out != "bool" && out != "dyn" {
		return nil, errors.NewValidationError("native query expression must evaluate to a boolean").
			WithDetail("expression", expression).
			WithDetail("output_type", ast.OutputType().String())
	}

	program, err := c.env.Program(ast)
	if err != nil {
		return nil, errors.NewValidationError("native query expression cannot be planned").WithCause(err)
	}

	compiled := &compiledExpression{source: expression, program: program}
	c.compiled.Add(expression, compiled)
	return compiled, nil
}
