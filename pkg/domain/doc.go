/*
Package domain contains the core domain models of the decomposition engine.

It defines the value types exchanged between a master problem and its subproblems:
cuts, node topology, protocol messages and run statuses. This package is kept pure
and free of external dependencies like solvers, I/O or transports, following
Hexagonal Architecture principles.

# Key Entities

  - Cut: A linear inequality outer-approximating a subproblem (Optimality or Feasibility).
  - Node: A point in the decomposition forest (Root, Inner or Leaf).
  - Messages: InitDn/InitUp, Dn/Up and FinalDn/FinalUp for the orchestration phases.
  - Status: The terminal or running state of a cutting-plane engine.
*/
package domain
