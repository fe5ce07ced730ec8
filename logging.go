package richtext

import (
	"github.com/rs/zerolog"
)

// log is disabled by default; a library must not write to the host's
// stderr uninvited.
var log = zerolog.Nop()

// SetLogger routes this package's diagnostics (render recovery,
// unparseable references) to the host's logger.
func SetLogger(l zerolog.Logger) {
	log = l
}
