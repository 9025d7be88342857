package pipeline

import "sync/atomic"

// Interrupt coordinates barge-in between stages through an epoch counter.
// The transcription stage advances the epoch whenever the caller speaks,
// the conversation stage stamps outgoing speech with the epoch it started
// answering in, and the synthesis stage drops speech stamped with a
// superseded epoch instead of talking over the caller.
type Interrupt struct {
	epoch atomic.Uint64
}

// NewInterrupt creates an interrupt at epoch zero.
func NewInterrupt() *Interrupt {
	return &Interrupt{}
}

// Raise advances the epoch, invalidating any in-flight bot speech.
func (i *Interrupt) Raise() {
	i.epoch.Add(1)
}

// Epoch returns the current epoch.
func (i *Interrupt) Epoch() uint64 {
	return i.epoch.Load()
}

// Stale reports whether speech stamped with the given epoch has been
// superseded by a newer caller utterance.
func (i *Interrupt) Stale(epoch uint64) bool {
	return epoch < i.epoch.Load()
}
