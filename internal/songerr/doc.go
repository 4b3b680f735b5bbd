// Package songerr classifies songmesh failures.
//
// Every failure that crosses a package or process boundary is an *Error with
// a Kind and a wire Code. Kinds are matched with errors.Is against the
// exported sentinels:
//
//	if errors.Is(err, songerr.ErrInvalidTitle) {
//	    // reject the request, nothing was sent
//	}
//
// Nodes put the code in error responses and clients rebuild the error with
// FromCode, so the kind survives the round trip.
package songerr
