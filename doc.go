/*
Package decomp is a decomposition engine for large linear programs.

It splits a problem into a master and children arranged as a tree. The master
proposes a trial point; every child solves its own subproblem at that point and
answers with cuts; the master adds the cuts and proposes again until its bound and
its best objective meet.

# Concept

Two decompositions share the same machinery:

  - Benders: the master holds the first-stage variables, each scenario is a
    recourse problem, and optimality or feasibility cuts approximate its value.
  - Lagrangian: the master holds the multipliers of the relaxed rows, each block
    is priced by them, and the master maximizes the resulting dual function.

The master is a cutting-plane engine (Kelley's method) or, when enabled, a proximal
bundle method that keeps a stability center. Cuts live in a store that rejects
duplicates and purges cuts that stayed slack for too long.

# Orchestration

The same tree runs three ways:

  - Tree: every node in one process; inner nodes run their own loops.
  - Hub-and-Spoke: a single master with leaf children only.
  - Distributed: children are dealt to the ranks of a communicator and exchange
    messages with the master on rank 0. Ranks may be goroutines (RunLocal) or
    separate processes sharing a Redis server.

# Usage

	package main

	import (
		"context"
		"fmt"
		"log"

		"github.com/aretw0/decomp"
	)

	func main() {
		eng, err := decomp.New("examples/capacity/problem.yaml")
		if err != nil {
			log.Fatal(err)
		}
		res, err := eng.Run(context.Background(), decomp.ModeTree)
		if err != nil {
			log.Fatal(err)
		}
		fmt.Println(res.Status, res.Objective, res.Solution)
	}
*/
package decomp
