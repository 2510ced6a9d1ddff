package decomp_test

import (
	"context"
	"fmt"
	"log"

	"github.com/aretw0/decomp"
	"github.com/aretw0/decomp/pkg/problem"
)

// ExampleNewFromProblem solves a two-scenario capacity problem decoded in memory.
func ExampleNewFromProblem() {
	p, err := problem.Parse([]byte(`
name: capacity
master:
  variables: [{name: x, upper: 10}]
  objectives: [{x: 0.5}]
  coupling: [x]
scenarios:
  - {id: 1, probability: 0.5, q: [2], w: [[1]], h: [3], t: [[1]]}
  - {id: 2, probability: 0.5, q: [2], w: [[1]], h: [5], t: [[1]]}
`))
	if err != nil {
		log.Fatal(err)
	}

	eng, err := decomp.NewFromProblem(p)
	if err != nil {
		log.Fatal(err)
	}
	res, err := eng.Run(context.Background(), decomp.ModeTree)
	if err != nil {
		log.Fatal(err)
	}

	fmt.Printf("Status: %s\n", res.Status)
	fmt.Printf("Objective: %.2f\n", res.Objective)
	fmt.Printf("x: %.2f\n", res.Solution[0])
	// Output:
	// Status: optimal
	// Objective: 2.50
	// x: 5.00
}
