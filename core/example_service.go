//go:build example
// +build example

package core

import (
	"context"
	"fmt"
	"log"
	"math"
	"strconv"
	"strings"
)

// ExampleCalculatorService shows how to build a capability service with the
// core module only. The calculator evaluates a power expression and returns
// the result directly instead of feeding it back into further reasoning.
func ExampleCalculatorService() {
	svc := NewService("calculator-service")

	calculator := &Capability{
		Name:         "Calculator",
		Description:  "Evaluates power expressions like '2**10'",
		DirectReturn: true,
		Handler: func(ctx context.Context, input Input) (string, error) {
			parts := strings.SplitN(input.Raw, "**", 2)
			if len(parts) != 2 {
				return "", Recoverable("BAD_EXPRESSION", "expected 'base**exponent'", CategoryInputError)
			}
			base, err1 := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
			exp, err2 := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
			if err1 != nil || err2 != nil {
				return "", Recoverable("BAD_OPERAND", "operands must be numbers", CategoryInputError)
			}
			return fmt.Sprintf("%g", math.Pow(base, exp)), nil
		},
	}
	if err := svc.RegisterCapability(calculator); err != nil {
		log.Fatal(err)
	}

	// A flaky backend translated to a steer-away observation instead of
	// halting the orchestrator
	search := &Capability{
		Name:        "Search_tool1",
		Description: "Searches the product knowledge base",
		ErrorPolicy: FixedMessage("try another tool"),
		Handler: func(ctx context.Context, input Input) (string, error) {
			return "", Recoverable("BACKEND_DOWN", "knowledge base unavailable", CategoryServiceError)
		},
	}
	if err := svc.RegisterCapability(search); err != nil {
		log.Fatal(err)
	}

	ctx := context.Background()
	if err := svc.Initialize(ctx); err != nil {
		log.Fatal(err)
	}
	if err := svc.Start(ctx, 8080); err != nil {
		log.Fatal(err)
	}
}
