package pipeline

// Frame is one unit of data or control moving through the pipeline.
// Processors forward frames they do not handle, so control frames reach
// every stage.
type Frame interface {
	frame()
}

// AudioInputFrame carries caller audio from the transport to the
// transcriber. PCM is 16-bit little-endian mono.
type AudioInputFrame struct {
	PCM        []byte
	SampleRate int
}

// AudioOutputFrame carries synthesized audio to the transport.
type AudioOutputFrame struct {
	PCM        []byte
	SampleRate int
}

// TranscriptionFrame is a transcriber result. Interim results keep the
// conversation display warm; only final results reach the model.
type TranscriptionFrame struct {
	Text  string
	Final bool
}

// TextFrame carries assistant text from the model to the synthesizer.
// Epoch is the barge-in epoch the text was generated in; the synthesizer
// drops frames from a superseded epoch.
type TextFrame struct {
	Text  string
	Epoch uint64
}

// StartFrame opens a session. Emitted once by the transport.
type StartFrame struct{}

// EndFrame ends the call gracefully: it drains through every stage so
// queued audio still plays out.
type EndFrame struct{}

// CancelFrame aborts the call immediately (caller hung up).
type CancelFrame struct{}

func (AudioInputFrame) frame()    {}
func (AudioOutputFrame) frame()   {}
func (TranscriptionFrame) frame() {}
func (TextFrame) frame()          {}
func (StartFrame) frame()         {}
func (EndFrame) frame()           {}
func (CancelFrame) frame()        {}
