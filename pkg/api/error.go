package api

import "fmt"

// ErrCode is a stable machine-readable failure code.
type ErrCode string

const (
	ErrValidation          ErrCode = "VALIDATION_ERROR"
	ErrRoomNotFound        ErrCode = "ROOM_NOT_FOUND"
	ErrDuplicateRoom       ErrCode = "DUPLICATE_ROOM"
	ErrRoomFull            ErrCode = "ROOM_FULL"
	ErrDuplicateUser       ErrCode = "DUPLICATE_PARTICIPANT"
	ErrConnLimit           ErrCode = "CONNECTION_LIMIT_EXCEEDED"
	ErrConnNotFound        ErrCode = "CONNECTION_NOT_FOUND"
	ErrObjectLimit         ErrCode = "OBJECT_LIMIT_EXCEEDED"
	ErrObjectNotFound      ErrCode = "OBJECT_NOT_FOUND"
	ErrParticipantNotFound ErrCode = "PARTICIPANT_NOT_FOUND"
	ErrPermissionDenied    ErrCode = "PERMISSION_DENIED"
)

// CodedError is a caller-facing failure with a stable code.
// Internal invariant violations are absorbed as no-ops and never
// reach this type.
type CodedError struct {
	Code    ErrCode `json:"code"`
	Message string  `json:"message"`
}

func (e *CodedError) Error() string { return fmt.Sprintf("%s: %s", e.Code, e.Message) }

func Errorf(code ErrCode, format string, args ...any) *CodedError {
	return &CodedError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// CodeOf extracts the stable code of err or empty when it is not coded.
func CodeOf(err error) ErrCode {
	if e, ok := err.(*CodedError); ok {
		return e.Code
	}
	return ""
}
