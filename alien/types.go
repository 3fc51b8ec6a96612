package alien

type subscriberFlags uint16

const (
	fEffect subscriberFlags = 1 << iota
	fTracking
	fNotified
	fDirty
	fStopped
	fEffectScope
)

// link joins one dependency to one subscriber. It sits in two lists at once:
// the dependency's subscribers (prevSub/nextSub) and the subscriber's
// dependencies (nextDep).
type link struct {
	dep     *signal
	sub     *signal
	prevSub *link
	nextSub *link
	nextDep *link
}

// signal is a graph node. Plain signals only use subs, effects only use
// deps, scopes use deps to hold the effects they own.
type signal struct {
	ref                            interface{}
	flags                          subscriberFlags
	deps, depsTail, subs, subsTail *link
}
