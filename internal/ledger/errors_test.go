package ledger

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestIsKnownCode(t *testing.T) {
	cases := []string{
		"",
		ErrRateLimit,
		ErrBossDefeated,
		ErrJobNotReady,
		ErrNoStake,
		ErrNoActiveJob,
		ErrTxFailed,
		ErrNotFound,
		ErrBadResponse,
		ErrUnavailable,
		ErrInternal,
	}
	for _, c := range cases {
		if !IsKnownCode(c) {
			t.Fatalf("expected known code: %q", c)
		}
	}
	if IsKnownCode("E_NOT_DEFINED") {
		t.Fatalf("expected unknown code rejected")
	}
}

func TestClassify_StructuredBeforeText(t *testing.T) {
	cases := []struct {
		err  error
		want Kind
	}{
		{&Error{Code: ErrRateLimit}, KindRateLimited},
		{&Error{Code: ErrInternal, Status: http.StatusTooManyRequests}, KindRateLimited},
		{fmt.Errorf("submit: %w", &Error{Code: ErrBossDefeated}), KindBossDefeated},
		{&Error{Code: ErrUnavailable}, KindTransient},
		{&Error{Code: ErrInternal, Status: 502}, KindTransient},
		// A coded error is not re-read as text even if the message looks like a rate limit.
		{&Error{Code: ErrTxFailed, Message: "429 too many requests"}, KindOther},
		{ProgramCodeError(6020, "Error Code: BossAlreadyDefeated. Boss already defeated"), KindBossDefeated},
		{fmt.Errorf("tick: %w", &Error{Code: ErrTxFailed, Message: "boss already defeated"}), KindBossDefeated},
		{&Error{Code: ErrInternal, Message: "upstream said 429"}, KindRateLimited},
		{errors.New("HTTP 429 Too Many Requests"), KindRateLimited},
		{errors.New("provider rate limit exceeded"), KindRateLimited},
		{errors.New("BossAlreadyDefeated"), KindBossDefeated},
		{errors.New("dial tcp: connection refused"), KindTransient},
		{errors.New("custom program error: 0x1770"), KindOther},
		{context.Canceled, KindCanceled},
	}
	for _, c := range cases {
		if got := Classify(c.err); got != c.want {
			t.Fatalf("Classify(%v)=%v want=%v", c.err, got, c.want)
		}
	}
}

func TestProgramCodeError(t *testing.T) {
	if e := ProgramCodeError(6008, "not ready"); e.Code != ErrJobNotReady {
		t.Fatalf("6008 code=%s", e.Code)
	}
	if e := ProgramCodeError(6007, ""); e.Code != ErrNoStake {
		t.Fatalf("6007 code=%s", e.Code)
	}
	if e := ProgramCodeError(6017, "transfer"); e.Code != ErrTxFailed || e.ProgramCode != 6017 {
		t.Fatalf("6017 err=%+v", e)
	}
}
