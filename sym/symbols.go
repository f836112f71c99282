// Package sym holds the glyphs blogpulse uses to tag log lines and CLI output
// by subsystem.
package sym

const (
	// Pulse marks scheduler activity
	Pulse = "꩜"
	// PulseOpen marks scheduler startup
	PulseOpen = "✿"
	// PulseClose marks scheduler shutdown
	PulseClose = "❀"
	// DB marks storage operations
	DB = "⊔"
	// Gen marks generation gateway calls
	Gen = "✎"
	// Health marks queue health reports
	Health = "♥"
)

// ForStatus returns the glyph shown next to a health status in CLI output
func ForStatus(status string) string {
	switch status {
	case "good":
		return "●"
	case "warning":
		return "◐"
	case "critical":
		return "○"
	default:
		return "?"
	}
}
