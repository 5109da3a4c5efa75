// Package common — errors.go определяет таксономию ошибок сервиса
// и доменные ошибки, которые используются во всех модулях.
// Обработчики различают ошибки по Kind и отдают клиенту нужный HTTP-статус.
package common

import (
	"errors"
	"fmt"
)

// Kind — класс ошибки. Каждый класс соответствует ровно одному HTTP-статусу.
type Kind int

const (
	KindInternal   Kind = iota // сбой хранилища или неожиданная ошибка → 500
	KindValidation             // некорректный ввод → 400
	KindAuth                   // нет/битый/просроченный токен, неверные креды → 401
	KindForbidden              // не хватает роли или чужой ресурс → 403
	KindNotFound               // ресурс не найден → 404
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindAuth:
		return "auth"
	case KindForbidden:
		return "forbidden"
	case KindNotFound:
		return "not_found"
	default:
		return "internal"
	}
}

// Error — ошибка с классом. Msg безопасно показывать клиенту,
// Err (причина) пишется только в лог.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Msg, e.Err)
	}
	return e.Msg
}

func (e *Error) Unwrap() error { return e.Err }

// Validation создаёт ошибку валидации (400).
func Validation(format string, args ...any) *Error {
	return &Error{Kind: KindValidation, Msg: fmt.Sprintf(format, args...)}
}

// NotFound создаёт ошибку «не найдено» (404).
func NotFound(format string, args ...any) *Error {
	return &Error{Kind: KindNotFound, Msg: fmt.Sprintf(format, args...)}
}

// Forbidden создаёт ошибку доступа (403).
func Forbidden(format string, args ...any) *Error {
	return &Error{Kind: KindForbidden, Msg: fmt.Sprintf(format, args...)}
}

// Internal оборачивает причину во внутреннюю ошибку (500).
func Internal(msg string, err error) *Error {
	return &Error{Kind: KindInternal, Msg: msg, Err: err}
}

// KindOf возвращает класс ошибки. Всё, что не *Error, считается внутренней ошибкой.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// PublicMessage возвращает текст, который можно отдать клиенту.
// Для внутренних ошибок причина никогда не раскрывается.
func PublicMessage(err error) string {
	var e *Error
	if errors.As(err, &e) && e.Kind != KindInternal {
		return e.Msg
	}
	return "внутренняя ошибка сервера"
}

// Ошибки аутентификации и доступа
var (
	// ErrMissingToken — в запросе нет Bearer-токена
	ErrMissingToken = &Error{Kind: KindAuth, Msg: "требуется авторизация"}
	// ErrInvalidToken — подпись неверна, токен битый или просрочен
	ErrInvalidToken = &Error{Kind: KindAuth, Msg: "недействительный или просроченный токен"}
	// ErrBadCredentials — неверный email или пароль
	ErrBadCredentials = &Error{Kind: KindAuth, Msg: "неверный email или пароль"}
	// ErrForbidden — роли недостаточно для операции
	ErrForbidden = &Error{Kind: KindForbidden, Msg: "недостаточно прав"}
	// ErrNotOwner — ресурс принадлежит другому пользователю
	ErrNotOwner = &Error{Kind: KindForbidden, Msg: "нет доступа к чужому ресурсу"}
	// ErrNotVerified — email ещё не подтверждён
	ErrNotVerified = &Error{Kind: KindForbidden, Msg: "email не подтверждён"}
	// ErrDeactivated — учётная запись отключена
	ErrDeactivated = &Error{Kind: KindForbidden, Msg: "учётная запись отключена"}
)

// Ошибки пользователей
var (
	// ErrUserNotFound — пользователь не найден в базе
	ErrUserNotFound = &Error{Kind: KindNotFound, Msg: "пользователь не найден"}
	// ErrEmailTaken — email уже зарегистрирован
	ErrEmailTaken = &Error{Kind: KindValidation, Msg: "email уже зарегистрирован"}
	// ErrUnknownToken — токен подтверждения/сброса не найден или истёк
	ErrUnknownToken = &Error{Kind: KindValidation, Msg: "неизвестный или просроченный токен"}
	// ErrSelfRoleChange — нельзя менять роль или статус самому себе
	ErrSelfRoleChange = &Error{Kind: KindValidation, Msg: "нельзя менять собственную роль или статус"}
)

// Ошибки леджера
var (
	// ErrInvalidAmount — сумма не положительная или больше двух знаков после запятой
	ErrInvalidAmount = &Error{Kind: KindValidation, Msg: "сумма должна быть положительной, не более 2 знаков после запятой"}
	// ErrSameAccount — перевод со счёта на него же
	ErrSameAccount = &Error{Kind: KindValidation, Msg: "счета отправителя и получателя совпадают"}
	// ErrAccountNotFound — счёт не найден
	ErrAccountNotFound = &Error{Kind: KindNotFound, Msg: "счёт не найден"}
	// ErrTransactionNotFound — транзакция не найдена
	ErrTransactionNotFound = &Error{Kind: KindNotFound, Msg: "транзакция не найдена"}
	// ErrConfirmedImmutable — подтверждённую транзакцию нельзя менять по сумме или статусу
	ErrConfirmedImmutable = &Error{Kind: KindValidation, Msg: "подтверждённая транзакция не может менять сумму или статус"}
)

// Ошибки промо-акций
var (
	// ErrPromotionNotFound — промо-акция не найдена
	ErrPromotionNotFound = &Error{Kind: KindNotFound, Msg: "промо-акция не найдена"}
	// ErrNotAssigned — пользователь не назначен на промо-акцию
	ErrNotAssigned = &Error{Kind: KindForbidden, Msg: "промо-акция не назначена пользователю"}
	// ErrProgressNotFound — прогресс ещё не записан
	ErrProgressNotFound = &Error{Kind: KindNotFound, Msg: "прогресс не найден"}
)

// Ошибки ставок и задач
var (
	// ErrBetNotFound — ставка не найдена
	ErrBetNotFound = &Error{Kind: KindNotFound, Msg: "ставка не найдена"}
	// ErrBetSettled — рассчитанную ставку нельзя менять
	ErrBetSettled = &Error{Kind: KindValidation, Msg: "ставка уже рассчитана"}
	// ErrTaskNotFound — задача не найдена
	ErrTaskNotFound = &Error{Kind: KindNotFound, Msg: "задача не найдена"}
)
