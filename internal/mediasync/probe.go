package mediasync

import "redleaf/api/internal/frame"

// Pre-roll capture: the two probe timestamps are measured at the same
// reference instant from two different clocks. The transcript side comes
// from putting the viewer into sync mode and waiting for its
// setTranscriptTime reply; the streaming side from querying the external
// player's current position.

// RequestTranscriptTime puts the viewer into sync mode; the viewer answers
// with a setTranscriptTime message when the user marks the instant.
func (c *Controller) RequestTranscriptTime() {
	c.viewer.Send(frame.Envelope{Type: frame.SetSyncMode, Active: true})
}

// RequestStreamingTime asks the viewer for the external player's current
// playback position; it answers with returnCurrentAudioTime.
func (c *Controller) RequestStreamingTime() {
	c.viewer.Send(frame.Envelope{Type: frame.GetCurrentAudioTime})
}

// HandleFrameMessage consumes probe replies from the viewer channel. Wire it
// as the dispatcher handler for setTranscriptTime and
// returnCurrentAudioTime.
func (c *Controller) HandleFrameMessage(env frame.Envelope) {
	switch env.Type {
	case frame.SetTranscriptTime:
		t := env.Time
		c.mu.Lock()
		c.transcriptPreroll = &t
		c.mu.Unlock()
		// Leave sync mode once the probe is captured.
		c.viewer.Send(frame.Envelope{Type: frame.SetSyncMode, Active: false})
	case frame.ReturnCurrentAudioTime:
		t := env.Time
		c.mu.Lock()
		c.streamingPreroll = &t
		c.mu.Unlock()
	}
}

// Probes returns the captured pre-roll values; a nil means that probe has
// not been captured yet.
func (c *Controller) Probes() (transcript, streaming *float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.transcriptPreroll, c.streamingPreroll
}
