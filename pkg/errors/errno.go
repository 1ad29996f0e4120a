// Package errors 定义服务统一的错误码。
//
// 错误码格式 AABBCCC：AA 为服务，BB 为类别，CCC 为类别内序号。
// 每个错误携带 HTTP 状态码以及英文、孟加拉文两种提示。
//
//	return errors.ErrInvalidParam.WithMessage("question is required")
//	return errors.ErrPersistence.WithCause(err)
package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
)

// Errno 带错误码的结构化错误。值不可变，With* 方法返回副本。
type Errno struct {
	Code      int    `json:"code"`
	HTTP      int    `json:"-"`
	MessageEN string `json:"message"`
	MessageBN string `json:"message_bn,omitempty"`

	cause error
}

func (e *Errno) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("errno %d: %s: %v", e.Code, e.MessageEN, e.cause)
	}
	return fmt.Sprintf("errno %d: %s", e.Code, e.MessageEN)
}

func (e *Errno) Unwrap() error {
	return e.cause
}

// Is 按错误码比较，忽略消息与 cause。
func (e *Errno) Is(target error) bool {
	t, ok := target.(*Errno)
	return ok && e.Code == t.Code
}

// WithCause 附加底层错误。
func (e *Errno) WithCause(cause error) *Errno {
	n := *e
	n.cause = cause
	return &n
}

// WithMessage 替换提示信息。自定义信息只有英文，孟加拉文提示随之清空。
func (e *Errno) WithMessage(msg string) *Errno {
	n := *e
	n.MessageEN = msg
	n.MessageBN = ""
	return &n
}

func (e *Errno) WithMessagef(format string, args ...any) *Errno {
	return e.WithMessage(fmt.Sprintf(format, args...))
}

// WithMessages 同时替换英文与孟加拉文提示。bn 为空时等同于 WithMessage。
func (e *Errno) WithMessages(en, bn string) *Errno {
	n := e.WithMessage(en)
	n.MessageBN = bn
	return n
}

// Message 按语言返回提示。lang 可以直接传 Accept-Language 头，
// 以 bn 开头且存在孟加拉文提示时返回孟加拉文，其余返回英文。
func (e *Errno) Message(lang string) string {
	if e.MessageBN != "" && strings.HasPrefix(strings.ToLower(strings.TrimSpace(lang)), "bn") {
		return e.MessageBN
	}
	return e.MessageEN
}

func (e *Errno) HTTPStatus() int {
	if e.HTTP != 0 {
		return e.HTTP
	}
	return http.StatusInternalServerError
}

// Format 支持 %+v 输出状态码与 cause 链。
func (e *Errno) Format(s fmt.State, verb rune) {
	switch verb {
	case 'v':
		if s.Flag('+') {
			_, _ = fmt.Fprintf(s, "errno %d [HTTP %d]: %s", e.Code, e.HTTPStatus(), e.MessageEN)
			if e.cause != nil {
				_, _ = fmt.Fprintf(s, "\ncaused by: %+v", e.cause)
			}
			return
		}
		fallthrough
	case 's':
		_, _ = fmt.Fprint(s, e.Error())
	case 'q':
		_, _ = fmt.Fprintf(s, "%q", e.Error())
	}
}

var (
	registryMu sync.RWMutex
	registry   = make(map[int]*Errno)
)

func register(e *Errno) (*Errno, error) {
	registryMu.Lock()
	defer registryMu.Unlock()

	if existing, ok := registry[e.Code]; ok {
		return nil, fmt.Errorf("errno code %d already registered: %s", e.Code, existing.MessageEN)
	}
	registry[e.Code] = e
	return e, nil
}

// Lookup 按错误码查找已注册的错误。
func Lookup(code int) (*Errno, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	e, ok := registry[code]
	return e, ok
}

// FromError 沿错误链查找 *Errno，找不到时包装为 ErrInternal。
func FromError(err error) *Errno {
	if err == nil {
		return nil
	}
	var e *Errno
	if stderrors.As(err, &e) {
		return e
	}
	return ErrInternal.WithCause(err)
}

// IsCode 错误链中是否存在指定错误码。
func IsCode(err error, code int) bool {
	return GetCode(err) == code
}

// GetCode 返回错误链中的错误码，不是 *Errno 时返回 -1。
func GetCode(err error) int {
	var e *Errno
	if stderrors.As(err, &e) {
		return e.Code
	}
	return -1
}
