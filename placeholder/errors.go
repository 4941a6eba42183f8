package placeholder

import "errors"

// ErrMalformed is returned when a text/map pair violates the placeholder
// coupling rules (a token in the text with no map entry).
var ErrMalformed = errors.New("placeholder: malformed placeholder structure")
