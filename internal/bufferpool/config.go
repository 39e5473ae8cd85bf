package bufferpool

// Config carries every tunable named in spec §6. PageSize, BufferCount,
// PartitionCount, BGWriterLRUMaxPages and BGWriterLRUMultiplier fall back
// to the defaults in withDefaults when at or below zero, mirroring the
// teacher's NewPool/NewGlobalPool "if capacity <= 0" convention; the other
// fields are used as given.
type Config struct {
	PageSize       int
	BufferCount    int
	PartitionCount int

	BGWriterLRUMaxPages    int
	BGWriterLRUMultiplier  float64
	CheckpointFlushAfter   int
	BGWriterFlushAfter     int
	BackendFlushAfter      int
	EffectiveIOConcurrency int
	MaintenanceIOConcurrency int

	// ZeroDamagedPages mirrors Postgres's zero_damaged_pages: when true, a
	// checksum failure on read zeroes the page and logs a warning instead
	// of failing the read (§4.7 step 3).
	ZeroDamagedPages bool
	TrackIOTiming    bool
	IODirectData     bool
}

const (
	defaultPageSize       = 8192
	defaultBufferCount    = 128
	defaultPartitionCount = 128
)

func (c Config) withDefaults() Config {
	if c.PageSize <= 0 {
		c.PageSize = defaultPageSize
	}
	if c.BufferCount <= 0 {
		c.BufferCount = defaultBufferCount
	}
	if c.PartitionCount <= 0 {
		c.PartitionCount = defaultPartitionCount
	}
	if c.BGWriterLRUMaxPages <= 0 {
		c.BGWriterLRUMaxPages = 100
	}
	if c.BGWriterLRUMultiplier <= 0 {
		c.BGWriterLRUMultiplier = 2.0
	}
	return c
}
