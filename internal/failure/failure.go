// Package failure defines the error taxonomy shared by the pipeline, the
// review workflow and the scheduler.
package failure

import (
	"errors"
	"fmt"
)

// Kind classifies a failure for retry decisions and operator reporting.
type Kind string

const (
	KindUnknown             Kind = "unknown"
	KindTransientProvider   Kind = "transient_provider"
	KindIncompleteResponse  Kind = "incomplete_response"
	KindUnparseableResponse Kind = "unparseable_response"
	KindEditorUnavailable   Kind = "editor_unavailable"
	KindEditorDenied        Kind = "editor_denied"
	KindPersistence         Kind = "persistence"
	KindPublish             Kind = "publish"
)

// Error carries a Kind plus the group and operation it happened in.
type Error struct {
	Kind    Kind
	GroupID string
	Op      string
	Err     error
}

func (e *Error) Error() string {
	msg := string(e.Kind)
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.GroupID != "" {
		msg += fmt.Sprintf(" (group %s)", e.GroupID)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New builds an Error without a group.
func New(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// Wrap attaches a group id to err. An existing *Error keeps its kind.
func Wrap(groupID string, kind Kind, op string, err error) error {
	if err == nil {
		return nil
	}
	var fe *Error
	if errors.As(err, &fe) {
		kind = fe.Kind
	}
	return &Error{Kind: kind, GroupID: groupID, Op: op, Err: err}
}

// KindOf returns the kind of the outermost *Error in err's chain.
func KindOf(err error) Kind {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return KindUnknown
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// Describe returns the operator-facing name of a kind.
func Describe(kind Kind) string {
	switch kind {
	case KindTransientProvider:
		return "сервис временно недоступен"
	case KindIncompleteResponse:
		return "неполный ответ редактора"
	case KindUnparseableResponse:
		return "не удалось разобрать ответ редактора"
	case KindEditorUnavailable:
		return "редактор недоступен"
	case KindEditorDenied:
		return "редактор отклонил новый вариант"
	case KindPersistence:
		return "ошибка базы данных"
	case KindPublish:
		return "ошибка публикации"
	default:
		return "неизвестная ошибка"
	}
}
