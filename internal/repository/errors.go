package repository

import "errors"

// ErrSlotConflict means another item already holds the scheduled instant for
// this user. The caller should re-read occupied slots and allocate again.
var ErrSlotConflict = errors.New("scheduled slot already taken")
