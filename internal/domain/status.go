package domain

// StatusCode is the wire-level outcome code of a protocol exchange.
// Success variants carry the ok_ prefix.
type StatusCode string

const (
	StatusOKCertAvailable     StatusCode = "ok_cert_available"
	StatusOKSyntax            StatusCode = "ok_syntax"
	StatusOKReceivedCorrectly StatusCode = "ok_received_correctly"

	StatusFailureSyntax           StatusCode = "failure_syntax"
	StatusFailureInnerSignature   StatusCode = "failure_inner_signature"
	StatusFailureOuterSignature   StatusCode = "failure_outer_signature"
	StatusFailureSyncProcessing   StatusCode = "failure_synchronous_processing_not_possible"
	StatusFailureMessageIDUnknown StatusCode = "failure_messageid_unknown"
	StatusFailureDeviceError      StatusCode = "failure_device_error"
)

func (s StatusCode) OK() bool {
	return s == StatusOKCertAvailable || s == StatusOKSyntax || s == StatusOKReceivedCorrectly
}

// CallbackIndicator is the caller's declared ability to receive a later,
// independently initiated response.
type CallbackIndicator string

const (
	CallbackPossible    CallbackIndicator = "callback_possible"
	CallbackNotPossible CallbackIndicator = "callback_not_possible"
)

func (c CallbackIndicator) Possible() bool {
	return c == CallbackPossible
}
