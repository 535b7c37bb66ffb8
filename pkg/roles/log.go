package roles

import "github.com/btcsuite/btclog"

// log is silent until the embedding application calls UseLogger.
var log = btclog.Disabled

// DisableLog disables all library log output.
func DisableLog() {
	log = btclog.Disabled
}

// UseLogger sets the logger used by the package.
func UseLogger(logger btclog.Logger) {
	log = logger
}
