/*
Package ports defines the driven ports (interfaces) of the decomposition engine.

These interfaces decouple the cutting-plane core from external implementations,
allowing the engine to work with any LP/MIP solver, any subproblem model and any
transport between ranks.

# Key Interfaces

  - MasterModel: The relaxed master problem, owned by a Root or Inner node.
  - Subproblem: The solver adapter behind a Leaf node.
  - Transport / Communicator: Point-to-point and collective messaging between ranks.
  - Recorder: Persists per-node iteration histories.
*/
package ports
