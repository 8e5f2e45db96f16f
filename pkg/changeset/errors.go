package changeset

import "errors"

// ErrLengthMismatch is returned by Apply and Invert when a change set's
// InputLen does not match the length of the text it is applied to.
var ErrLengthMismatch = errors.New("changeset: length mismatch")

// ErrCompositionMismatch is returned by Compose when the first operation's
// OutputLen does not match the second operation's InputLen.
var ErrCompositionMismatch = errors.New("changeset: composition mismatch")

// ErrTransformMismatch is returned by Transform when the two operations do
// not share the same InputLen (i.e. are not rooted at the same document
// state).
var ErrTransformMismatch = errors.New("changeset: transform mismatch")

// ErrMalformedChangeSet is returned by the wire decoders when a serialized
// change set violates the encoding contract (bad discriminator, a code
// unit outside 0..0xFFFF, etc).
var ErrMalformedChangeSet = errors.New("changeset: malformed change set")
