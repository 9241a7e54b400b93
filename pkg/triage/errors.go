package triage

import "errors"

// ErrUnknownSet is returned when a wire value is not one of the four sets.
var ErrUnknownSet = errors.New("unknown photo set")

// ErrEmptySelection is returned when a promote/demote is requested with no
// photo ids. It is rejected before any network or database work.
var ErrEmptySelection = errors.New("no photo ids given")
