package types

import (
	"errors"
	"fmt"
)

// Kind 错误类别
type Kind string

const (
	KindUnsupportedFormat Kind = "unsupported_format"
	KindExtraction        Kind = "extraction"
	KindEmptyContent      Kind = "empty_content"
	KindEmbeddingService  Kind = "embedding_service"
	KindVectorStoreWrite  Kind = "vector_store_write"
	KindVectorStoreRead   Kind = "vector_store_read"
	KindInvalidRequest    Kind = "invalid_request"
	KindNotFound          Kind = "not_found"
	KindTimeout           Kind = "timeout"
	KindInternal          Kind = "internal"
)

// 哨兵错误，配合 errors.Is 按类别匹配
var (
	ErrUnsupportedFormat = &Error{Kind: KindUnsupportedFormat}
	ErrExtraction        = &Error{Kind: KindExtraction}
	ErrEmptyContent      = &Error{Kind: KindEmptyContent}
	ErrEmbeddingService  = &Error{Kind: KindEmbeddingService}
	ErrVectorStoreWrite  = &Error{Kind: KindVectorStoreWrite}
	ErrVectorStoreRead   = &Error{Kind: KindVectorStoreRead}
	ErrInvalidRequest    = &Error{Kind: KindInvalidRequest}
	ErrNotFound          = &Error{Kind: KindNotFound}
)

// Error 带类别的领域错误
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

// E 创建领域错误
func E(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// Errorf 以格式化消息创建领域错误
func Errorf(kind Kind, op, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Err: fmt.Errorf(format, args...)}
}

func (e *Error) Error() string {
	switch {
	case e.Op != "" && e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	case e.Err != nil:
		return e.Err.Error()
	case e.Op != "":
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	default:
		return string(e.Kind)
	}
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is 按类别比较
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// KindOf 返回错误链上第一个领域错误的类别
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}
