package hps

import "github.com/blang/semver"

// CurrentVersion is the daemon's own version, logged at startup and
// returned by --version. It is unrelated to the HTTP Proxy Service wire
// protocol, which is fixed by the Bluetooth SIG and carries no version
// field of its own.
var CurrentVersion = semver.MustParse("1.0.0")
