package gpib

import "errors"

// ErrNotConnected is returned when an operation needs a live session
// and the instrument has none.
var ErrNotConnected = errors.New("instrument not connected")
