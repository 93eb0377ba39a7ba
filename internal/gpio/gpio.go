// Package gpio drives the light's output line with hardware abstraction.
// The real implementation uses the Linux GPIO character device.
// The fake implementation allows testing without hardware.
package gpio

// Writer drives a single digital output.
type Writer interface {
	// Set drives the line high (true) or low (false).
	Set(on bool) error

	// Close drives the line low and releases GPIO resources.
	Close() error
}

// Defaults (BCM numbering).
const (
	DefaultChip = "gpiochip0"
	DefaultLine = 17
)
