package timefmt

import "errors"

// ErrInvalidTimecode indicates a string that matches none of the accepted
// timecode shapes. Errors wrap it as fmt.Errorf("%q: %w", input, ErrInvalidTimecode).
var ErrInvalidTimecode = errors.New("invalid timecode")
