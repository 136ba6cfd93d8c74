package ledger

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

const (
	ErrRateLimit    = "E_RATE_LIMIT"
	ErrBossDefeated = "E_BOSS_DEFEATED"
	ErrJobNotReady  = "E_JOB_NOT_READY"
	ErrNoStake      = "E_NO_STAKE"
	ErrNoActiveJob  = "E_NO_ACTIVE_JOB"
	ErrTxFailed     = "E_TX_FAILED"
	ErrNotFound     = "E_NOT_FOUND"
	ErrBadResponse  = "E_BAD_RESPONSE"
	ErrUnavailable  = "E_UNAVAILABLE"
	ErrInternal     = "E_INTERNAL"
)

var knownCodes = map[string]struct{}{
	ErrRateLimit:    {},
	ErrBossDefeated: {},
	ErrJobNotReady:  {},
	ErrNoStake:      {},
	ErrNoActiveJob:  {},
	ErrTxFailed:     {},
	ErrNotFound:     {},
	ErrBadResponse:  {},
	ErrUnavailable:  {},
	ErrInternal:     {},
}

func IsKnownCode(code string) bool {
	if code == "" {
		return true
	}
	_, ok := knownCodes[code]
	return ok
}

// Program error numbers the relay may forward from a failed transaction.
const (
	programNotHelper   uint32 = 6007
	programJobNotReady uint32 = 6008
	programNoActiveJob uint32 = 6009
)

// Error is a structured failure reported by the ledger relay.
type Error struct {
	Code        string
	Message     string
	Status      int    // HTTP status, 0 when not applicable
	RPCCode     int    // JSON-RPC error code, 0 when not applicable
	ProgramCode uint32 // on-chain program error, 0 when not applicable
}

func (e *Error) Error() string {
	if e.Message == "" {
		return e.Code
	}
	return e.Code + ": " + e.Message
}

// ProgramCodeError maps a program error number onto a relay error code.
func ProgramCodeError(code uint32, msg string) *Error {
	e := &Error{Code: ErrTxFailed, Message: msg, ProgramCode: code}
	switch code {
	case programJobNotReady:
		e.Code = ErrJobNotReady
	case programNoActiveJob:
		e.Code = ErrNoActiveJob
	case programNotHelper:
		e.Code = ErrNoStake
	}
	return e
}

type Kind int

const (
	KindOther Kind = iota
	KindRateLimited
	KindBossDefeated
	KindTransient
	KindCanceled
)

func (k Kind) String() string {
	switch k {
	case KindRateLimited:
		return "rate_limited"
	case KindBossDefeated:
		return "boss_defeated"
	case KindTransient:
		return "transient"
	case KindCanceled:
		return "canceled"
	default:
		return "other"
	}
}

// Classify sorts an error for the scheduler. Structured relay errors are
// trusted first; free text is only inspected for errors that carry no code,
// and a failed transaction is only read for a defeated boss.
func Classify(err error) Kind {
	if err == nil {
		return KindOther
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return KindCanceled
	}
	var le *Error
	if errors.As(err, &le) {
		switch {
		case le.Code == ErrRateLimit, le.Status == http.StatusTooManyRequests, le.RPCCode == 429, le.RPCCode == -32429:
			return KindRateLimited
		case le.Code == ErrBossDefeated:
			return KindBossDefeated
		case le.Code == ErrUnavailable, le.Status >= 500:
			return KindTransient
		case le.Code == ErrTxFailed:
			// Program errors without a mapped code still name themselves.
			if classifyText(le.Message) == KindBossDefeated {
				return KindBossDefeated
			}
			return KindOther
		case le.Code != "" && le.Code != ErrInternal:
			return KindOther
		}
	}
	return classifyText(err.Error())
}

func classifyText(msg string) Kind {
	m := strings.ToLower(msg)
	switch {
	case strings.Contains(m, "429"), strings.Contains(m, "too many requests"), strings.Contains(m, "rate limit"):
		return KindRateLimited
	case strings.Contains(m, "already defeated"), strings.Contains(m, "bossalreadydefeated"):
		return KindBossDefeated
	case strings.Contains(m, "timeout"), strings.Contains(m, "connection reset"), strings.Contains(m, "connection refused"):
		return KindTransient
	}
	return KindOther
}

func IsCode(err error, code string) bool {
	var le *Error
	return errors.As(err, &le) && le.Code == code
}

func Errorf(code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}
