package delegation

import "errors"

var (
	ErrNoIdentity      = errors.New("no node identity initialized")
	ErrNoPeerAvailable = errors.New("no peer available for this requirement")
	ErrPeerRejected    = errors.New("peer rejected the delegated task")
	ErrInvalidSignature = errors.New("invalid signature")
	ErrMissingFields   = errors.New("missing required fields")
	ErrTooManyInbound  = errors.New("too many concurrent inbound delegations")
	ErrMissingSkills   = errors.New("missing skills")
	ErrAccessLevelTooHigh = errors.New("required access level exceeds what this node accepts")
	ErrUnknownTask     = errors.New("unknown task id")
	ErrUnknownSender   = errors.New("sender public key not known to this node")
)
