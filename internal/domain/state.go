package domain

// State is a sealed union: Idle, Loading, Success[T] or Failed.
type State interface{ isState() }

type Idle struct{}

type Loading struct{}

type Success[T any] struct{ Data T }

type Failed struct{ Reason string }

func (Idle) isState()       {}
func (Loading) isState()    {}
func (Success[T]) isState() {}
func (Failed) isState()     {}
