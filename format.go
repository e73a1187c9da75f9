package waveform

// Format identifies which registry entry produced a Stream.
type Format int

func (f Format) String() string {
	if name := FormatName(int(f)); name != "" {
		return name
	}
	return "unknown"
}
