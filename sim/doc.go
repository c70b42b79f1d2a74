// Package sim provides the discrete-event engine of the pedestrian simulator.
//
// # Reading Guide
//
// Start with these files to understand the simulation kernel:
//   - state.go: the grid, its per-type index and the update notifications
//   - scheduler.go: the time-ordered event queue that drives everything
//   - simulator.go: the lifecycle (play, pause, step, reset, terminate) and the run loop
//
// # Architecture
//
// A world is a grid of cells. Each cell holds at most one occupant (person,
// obstacle, source, target or light barrier); a person may additionally ride on
// a walkable occupant. Sources spawn people through a SpawnStrategy, people
// walk through a MovementStrategy, and targets consume them through a
// ConsumeStrategy. Every strategy draws from its own PartitionedRNG stream, so
// a run is reproducible from the master seed.
//
// Sub-packages:
//   - sim/potential/: static potential fields (Euclidean, Dijkstra, fast marching)
//   - sim/trace/: compressed JSONL recording of moves and statistics
//   - sim/recorder/: SQLite time series of statistics snapshots
//   - sim/observer/: WebSocket fan-out of grid updates and statistics
//
// # Key Interfaces
//
//   - SpawnStrategy: place new people next to a source and pace the next spawn
//   - MovementStrategy: choose and perform the next step of a person
//   - ConsumeStrategy: decide what happens at the target
//   - SpeedGenerator, PatienceGenerator: per-person attribute draws
//   - LifecycleListener, StatisticsListener, UpdateListener: observation hooks
package sim
