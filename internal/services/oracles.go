package services

import "context"

// OTPProvider sends and checks one-time passwords.
//
// Send returns the provider's session token. A refusal is reported as
// Rejected(ErrUpstreamRejected, detail); Verify reports a wrong or expired
// code as Rejected(ErrOtpInvalid, detail). Unparsable responses and
// transport faults wrap ErrUnavailable.
type OTPProvider interface {
	Send(ctx context.Context, mobile string) (string, error)
	Verify(ctx context.Context, token, code string) error
}

// ImageHost stores an image and returns its public URL.
type ImageHost interface {
	Upload(ctx context.Context, data []byte, filename string) (string, error)
}
