package verbump

import (
	"fmt"

	"github.com/blang/semver"
	"github.com/felixgeelhaar/statekit"
)

// Action is the kind of lifecycle step a release takes.
type Action string

const (
	// ActionContinue stays in the current tier.
	ActionContinue Action = "continue"
	// ActionStart opens a pre-release series from a stable version.
	ActionStart Action = "start"
	// ActionEnd finalises a pre-release series as stable.
	ActionEnd Action = "end"
	// ActionTransition promotes a series to a more mature tier.
	ActionTransition Action = "transition"
)

// State and event names of the lifecycle machine.
const (
	stateStable statekit.StateID = "stable"
	stateAlpha  statekit.StateID = "alpha"
	stateBeta   statekit.StateID = "beta"

	eventStable statekit.EventType = "RELEASE_STABLE"
	eventAlpha  statekit.EventType = "RELEASE_ALPHA"
	eventBeta   statekit.EventType = "RELEASE_BETA"
)

type lifecycleContext struct{}

// Transition is the result of Lifecycle.NextState.
type Transition struct {
	Valid  bool
	Action Action
	Err    *Error
}

// Lifecycle is the one-way pre-release state machine:
// stable -> alpha -> beta -> stable, where alpha may also end directly.
// The machine alone decides which moves are legal.
type Lifecycle struct {
	interpreter func() *statekit.Interpreter[lifecycleContext]
}

// lifecycleMoves lists the tiers each tier may release next. Beta never
// returns to alpha.
func lifecycleMoves() map[PreRelease][]PreRelease {
	return map[PreRelease][]PreRelease{
		PreReleaseNone:  {PreReleaseNone, PreReleaseAlpha, PreReleaseBeta},
		PreReleaseAlpha: {PreReleaseAlpha, PreReleaseBeta, PreReleaseNone},
		PreReleaseBeta:  {PreReleaseBeta, PreReleaseNone},
	}
}

// NewLifecycle builds the lifecycle machine.
func NewLifecycle() (*Lifecycle, error) {
	return newLifecycle(lifecycleMoves())
}

func newLifecycle(moves map[PreRelease][]PreRelease) (*Lifecycle, error) {
	builder := statekit.NewMachine[lifecycleContext]("prerelease-lifecycle").
		WithInitial(stateStable)
	for _, from := range []PreRelease{PreReleaseNone, PreReleaseAlpha, PreReleaseBeta} {
		state := builder.State(stateFor(from))
		for _, to := range moves[from] {
			state.On(eventFor(to)).Target(stateFor(to))
		}
	}

	machine, err := builder.Build()
	if err != nil {
		return nil, fmt.Errorf("building lifecycle machine: %w", err)
	}

	return &Lifecycle{
		interpreter: func() *statekit.Interpreter[lifecycleContext] {
			return statekit.NewInterpreter(machine)
		},
	}, nil
}

// NextState decides how a release moves from the tier of the latest tag
// (current) to the tier of the release branch (target).
func (l *Lifecycle) NextState(current, target PreRelease, base semver.Version) Transition {
	const op = "lifecycle.NextState"

	action := actionFor(current, target)
	allowed, err := l.replay(current, target)
	if err != nil {
		return Transition{Action: action, Err: wrapError(err, KindInternal, op,
			"lifecycle machine cannot represent %s", current)}
	}
	if !allowed {
		return Transition{Action: action, Err: backwardTransition(op, current, target, base)}
	}
	return Transition{Valid: true, Action: action}
}

// Allows reports whether a release in tier target may follow one in current.
func (l *Lifecycle) Allows(current, target PreRelease) bool {
	allowed, err := l.replay(current, target)
	return err == nil && allowed
}

func actionFor(current, target PreRelease) Action {
	switch {
	case current == target:
		return ActionContinue
	case current == PreReleaseNone:
		return ActionStart
	case target == PreReleaseNone:
		return ActionEnd
	default:
		return ActionTransition
	}
}

// replay drives a fresh interpreter into current, sends the release event of
// target and reports whether the machine moved to target.
func (l *Lifecycle) replay(current, target PreRelease) (bool, error) {
	interp := l.interpreter()
	interp.Start()

	if current != PreReleaseNone {
		interp.Send(statekit.Event{Type: eventFor(current)})
	}
	if got := interp.State().Value; got != stateFor(current) {
		return false, fmt.Errorf("machine in state %q, want %q", got, stateFor(current))
	}

	interp.Send(statekit.Event{Type: eventFor(target)})
	return interp.State().Value == stateFor(target), nil
}

func backwardTransition(op string, current, target PreRelease, base semver.Version) *Error {
	version := Base(base).String()
	err := newError(KindInvalidTransition, op,
		"cannot start %s after %s for version %s; %s ended when %s began",
		target, current, version, target, current)
	return err.
		WithDetail("from", current.String()).
		WithDetail("to", target.String()).
		WithDetail("version", version)
}

func stateFor(p PreRelease) statekit.StateID {
	switch p {
	case PreReleaseAlpha:
		return stateAlpha
	case PreReleaseBeta:
		return stateBeta
	default:
		return stateStable
	}
}

func eventFor(p PreRelease) statekit.EventType {
	switch p {
	case PreReleaseAlpha:
		return eventAlpha
	case PreReleaseBeta:
		return eventBeta
	default:
		return eventStable
	}
}

// NextBuildNumber returns the build number of the next {base}-{tier}.N tag:
// one past the highest existing build, or 1. Stable releases have none.
func NextBuildNumber(action Action, tags []string, base semver.Version, tier PreRelease) uint64 {
	if tier == PreReleaseNone || action == ActionEnd {
		return 0
	}
	return MaxBuildNumber(tags, base, tier) + 1
}

// NextBase computes the numeric version a release publishes, given the base
// of the latest tag and the aggregated commit evidence.
//
// Stable releases and new pre-release series apply the bump. Builds within a
// tier and promotions between tiers hold the base. Ending a series releases
// the base as is unless a minor or major keyword asks for more.
func NextBase(action Action, target PreRelease, last semver.Version, agg Classification) semver.Version {
	switch action {
	case ActionContinue:
		if target == PreReleaseNone {
			return Step(last, agg.Bump)
		}
		return Base(last)
	case ActionStart:
		return Step(last, agg.Bump)
	case ActionEnd:
		if agg.Explicit && agg.Bump > BumpPatch {
			return Step(last, agg.Bump)
		}
		return Base(last)
	default:
		return Base(last)
	}
}
