package kcrypto

import "errors"

// ErrAuthenticationFailure is returned when an AEAD tag fails to
// verify on Decrypt. It is caller-visible application data, not a
// process-level invariant violation.
var ErrAuthenticationFailure = errors.New("kcrypto: authentication failure")
