package services

import (
	"errors"
	"fmt"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
	"github.com/paulexconde/bizassess/internal/config"
	"github.com/paulexconde/bizassess/internal/models"
	"github.com/paulexconde/bizassess/pkg/fault"
)

// A boolean condition a version must satisfy before it can be published.
//
// Expressions see the structure statistics: name, type, categories,
// subcategories, questions and answers. For example `questions >= 5`.
type PublishRule struct {
	Name       string
	Expression string
	program    *vm.Program
}

// CompilePublishRules type-checks every configured expression up front so a bad
// rule fails at startup instead of at publish time.
func CompilePublishRules(cfg []config.PublishRule) ([]PublishRule, error) {
	rules := make([]PublishRule, 0, len(cfg))
	for _, rc := range cfg {
		program, err := expr.Compile(rc.Expression, expr.Env(models.StructureStats{}), expr.AsBool())
		if err != nil {
			return nil, fmt.Errorf("publish rule %q: %w", rc.Name, err)
		}
		rules = append(rules, PublishRule{Name: rc.Name, Expression: rc.Expression, program: program})
	}
	return rules, nil
}

// checkPublishRules returns an InvalidStructure fault naming the first rule that does not hold.
func checkPublishRules(rules []PublishRule, version *models.SurveyVersion) error {
	if len(rules) == 0 {
		return nil
	}

	stats := version.Structure.Stats()
	stats.Name = version.Name
	stats.Type = string(version.Type)

	for _, rule := range rules {
		ok, err := evaluateExpression(rule.program, stats)
		if err != nil {
			return fmt.Errorf("publish rule %q: %w", rule.Name, err)
		}

		if !ok {
			return fault.InvalidStructure(rule.Name, fmt.Sprintf("Publish rule %q not satisfied: %s", rule.Name, rule.Expression))
		}
	}

	return nil
}

func evaluateExpression(program *vm.Program, input models.StructureStats) (bool, error) {
	output, err := expr.Run(program, input)
	if err != nil {
		return false, err
	}

	result, ok := output.(bool)

	if !ok {
		return false, errors.New("expression did not return a boolean")
	}

	return result, nil
}
