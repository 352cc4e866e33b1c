package job

// Config amends Runner construction the way heap.Config amends Heap
// construction, and dbm.Options amends DB construction: exported fields,
// zero value is a sane default, non-zero fields override.
type Config struct {
	// CaptureBufferSize is the chunk size the output-capture reader uses
	// per Read call. The read loop always continues to EOF regardless of
	// this value — it only bounds the size of each individual read.
	CaptureBufferSize int

	populated bool
}

const defaultCaptureBufferSize = 4096

func (c *Config) populateDefaults() {
	if c.populated {
		return
	}
	if c.CaptureBufferSize <= 0 {
		c.CaptureBufferSize = defaultCaptureBufferSize
	}
	c.populated = true
}
