package errs

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	pkgerrors "github.com/pkg/errors"
)

// Codes used across the relay. Authentication codes double as websocket close codes.
const (
	ServerInternalError = 500

	ValidationError = 1001

	UpstreamError = 1101

	BusTransportError = 1201

	AuthenticationError = 4000
	AuthRequiredError   = 4001
	InvalidTokenError   = 4003
)

var (
	ErrAuthentication = NewCodeError(AuthenticationError, "authentication failed")
	ErrAuthRequired = NewCodeError(AuthRequiredError, "authentication required")
	ErrInvalidToken = NewCodeError(InvalidTokenError, "invalid token")
	ErrValidation   = NewCodeError(ValidationError, "validation failed")
	ErrUpstream     = NewCodeError(UpstreamError, "upstream request failed")
	ErrBusTransport = NewCodeError(BusTransportError, "bus transport unavailable")
	ErrInternal     = NewCodeError(ServerInternalError, "internal error")
)

var DefaultCodeRelation = newCodeRelation()

func init() {
	// 4000 覆盖所有鉴权失败
	_ = DefaultCodeRelation.Add(AuthenticationError, AuthRequiredError)
	_ = DefaultCodeRelation.Add(AuthenticationError, InvalidTokenError)
}

func NewCodeError(code int, msg string) CodeError {
	return CodeError{
		Code: code,
		Msg:  msg,
	}
}

type CodeError struct {
	Code   int    `json:"code"`
	Msg    string `json:"msg"`
	Detail string `json:"detail,omitempty"`
}

func (e CodeError) WithDetail(detail string) CodeError {
	var d string
	if e.Detail == "" {
		d = detail
	} else {
		d = e.Detail + ", " + detail
	}
	return CodeError{
		Code:   e.Code,
		Msg:    e.Msg,
		Detail: d,
	}
}

// WrapMsg copies the error, appends msg and key/value pairs to Detail, and attaches a stack.
func (e CodeError) WrapMsg(msg string, kv ...any) error {
	retErr := e
	if msg != "" || len(kv) > 0 {
		detail := toString(msg, kv)
		if retErr.Detail == "" {
			retErr.Detail = detail
		} else {
			retErr.Detail += ", " + detail
		}
	}
	return pkgerrors.WithStack(retErr)
}

// Is matches any error whose CodeError code equals e.Code or is related to it.
func (e CodeError) Is(err error) bool {
	codeErr, ok := AsCode(err)
	if !ok {
		return false
	}
	if e.Code == codeErr.Code {
		return true
	}
	return DefaultCodeRelation.Is(e.Code, codeErr.Code)
}

const initialCapacity = 3

func (e CodeError) Error() string {
	v := make([]string, 0, initialCapacity)
	v = append(v, strconv.Itoa(e.Code), e.Msg)

	if e.Detail != "" {
		v = append(v, e.Detail)
	}

	return strings.Join(v, " ")
}

// AsCode finds the first CodeError in err's chain.
func AsCode(err error) (CodeError, bool) {
	var codeErr CodeError
	if errors.As(err, &codeErr) {
		return codeErr, true
	}
	return CodeError{}, false
}

func toString(msg string, kv []any) string {
	if len(kv) == 0 {
		return msg
	}
	var sb strings.Builder
	sb.WriteString(msg)
	for i := 0; i < len(kv); i += 2 {
		if sb.Len() > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(fmt.Sprint(kv[i]))
		sb.WriteString("=")
		if i+1 < len(kv) {
			sb.WriteString(fmt.Sprint(kv[i+1]))
		} else {
			sb.WriteString("MISSING")
		}
	}
	return sb.String()
}

type CodeRelation interface {
	Add(codes ...int) error
	Is(parent, child int) bool
}

func newCodeRelation() CodeRelation {
	return &codeRelation{m: make(map[int]map[int]struct{})}
}

type codeRelation struct {
	m map[int]map[int]struct{}
}

const minimumCodesLength = 2

func (r *codeRelation) Add(codes ...int) error {
	if len(codes) < minimumCodesLength {
		return pkgerrors.Errorf("codes length must be at least %d: %v", minimumCodesLength, codes)
	}
	for i := 1; i < len(codes); i++ {
		parent := codes[i-1]
		s, ok := r.m[parent]
		if !ok {
			s = make(map[int]struct{})
			r.m[parent] = s
		}
		for _, code := range codes[i:] {
			s[code] = struct{}{}
		}
	}
	return nil
}

func (r *codeRelation) Is(parent, child int) bool {
	if parent == child {
		return true
	}
	s, ok := r.m[parent]
	if !ok {
		return false
	}
	_, ok = s[child]
	return ok
}
