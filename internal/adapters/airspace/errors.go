package airspace

import "errors"

// ErrZoneDataUnavailable means the restricted zone set could not be read.
// Callers must not treat the absence of zones as compliant airspace.
var ErrZoneDataUnavailable = errors.New("restricted zone data unavailable")
