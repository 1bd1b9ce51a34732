package syncer

import "time"

// Timer is a cancelable scheduled call.
type Timer interface {
	Stop() bool
}

// Clock abstracts time and timer scheduling so tests can drive the retry
// state machine deterministically.
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) Timer
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

func (realClock) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}
