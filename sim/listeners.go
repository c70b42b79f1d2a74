package sim

// LifecycleListener is notified about phase changes of a Simulator and about every
// advance of virtual time. Callbacks run on the simulation goroutine; they must
// not call Pause, Reset or Terminate, which wait for that goroutine.
type LifecycleListener interface {
	OnStart()
	OnPause()
	OnContinue()
	OnReset()
	OnEnd()
	OnTimeChange(time float64)
}

// StatisticsListener receives every recomputed statistics snapshot.
type StatisticsListener interface {
	OnUpdate(stats Statistics)
}

// LifecycleFuncs adapts plain functions to LifecycleListener. Nil fields are skipped.
type LifecycleFuncs struct {
	Start      func()
	Pause      func()
	Continue   func()
	Reset      func()
	End        func()
	TimeChange func(time float64)
}

func (f LifecycleFuncs) OnStart()    { call(f.Start) }
func (f LifecycleFuncs) OnPause()    { call(f.Pause) }
func (f LifecycleFuncs) OnContinue() { call(f.Continue) }
func (f LifecycleFuncs) OnReset()    { call(f.Reset) }
func (f LifecycleFuncs) OnEnd()      { call(f.End) }

func (f LifecycleFuncs) OnTimeChange(time float64) {
	if f.TimeChange != nil {
		f.TimeChange(time)
	}
}

// StatisticsFunc adapts a function to StatisticsListener.
type StatisticsFunc func(Statistics)

func (f StatisticsFunc) OnUpdate(stats Statistics) { f(stats) }

func call(fn func()) {
	if fn != nil {
		fn()
	}
}
