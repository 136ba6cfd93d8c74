// Package tuning loads the scheduler and relay knobs from YAML.
package tuning

import (
	"fmt"
	"math"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Tuning struct {
	Scheduler Scheduler `yaml:"scheduler"`
	Relay     Relay     `yaml:"relay"`
}

// Scheduler holds every timing knob of the job and boss loops. Seconds are
// floats so YAML can say 0.75.
type Scheduler struct {
	IdlePollSeconds           float64 `yaml:"idle_poll_seconds"`
	MinRecheckSeconds         float64 `yaml:"min_recheck_seconds"`
	MaxRecheckSeconds         float64 `yaml:"max_recheck_seconds"`
	PlayerStateRefreshSeconds float64 `yaml:"player_state_refresh_seconds"`
	SecondsPerSlotEstimate    float64 `yaml:"seconds_per_slot_estimate"`
	ReadyBufferSlots          uint64  `yaml:"ready_buffer_slots"`
	TxAttemptCooldownSeconds  float64 `yaml:"tx_attempt_cooldown_seconds"`

	CompleteJobFailCooldownSeconds float64 `yaml:"complete_job_fail_cooldown_seconds"`
	MaxCompleteJobRetries          int     `yaml:"max_complete_job_retries"`
	ConfirmTxPollSeconds           float64 `yaml:"confirm_tx_poll_seconds"`
	ConfirmTxMaxPolls              int     `yaml:"confirm_tx_max_polls"`
	MaxClaimRetries                int     `yaml:"max_claim_retries"`
	ClaimRetryDelaySeconds         float64 `yaml:"claim_retry_delay_seconds"`

	BossAutoTick                         bool    `yaml:"boss_auto_tick"`
	BossTickIntervalSeconds              float64 `yaml:"boss_tick_interval_seconds"`
	BossTickRetryCooldownSeconds         float64 `yaml:"boss_tick_retry_cooldown_seconds"`
	BossTickRateLimitBaseCooldownSeconds float64 `yaml:"boss_tick_rate_limit_base_cooldown_seconds"`
	BossTickRateLimitMaxCooldownSeconds  float64 `yaml:"boss_tick_rate_limit_max_cooldown_seconds"`
	BossPropagationMaxAttempts           int     `yaml:"boss_propagation_max_attempts"`
	BossPropagationDelayMs               int     `yaml:"boss_propagation_delay_ms"`
	FighterCheckTTLSeconds               float64 `yaml:"fighter_check_ttl_seconds"`

	SweepStaleJobs bool `yaml:"sweep_stale_jobs"`
}

type Relay struct {
	URL               string  `yaml:"url"`
	WSURL             string  `yaml:"ws_url"`
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	Burst             int     `yaml:"burst"`
	TimeoutSeconds    float64 `yaml:"timeout_seconds"`
}

func Defaults() Tuning {
	return Tuning{
		Scheduler: DefaultScheduler(),
		Relay: Relay{
			URL:               "http://127.0.0.1:8899/rpc",
			RequestsPerSecond: 8,
			Burst:             4,
			TimeoutSeconds:    10,
		},
	}
}

func DefaultScheduler() Scheduler {
	return Scheduler{
		IdlePollSeconds:           6,
		MinRecheckSeconds:         0.75,
		MaxRecheckSeconds:         8,
		PlayerStateRefreshSeconds: 20,
		SecondsPerSlotEstimate:    0.4,
		ReadyBufferSlots:          1,
		TxAttemptCooldownSeconds:  2,

		CompleteJobFailCooldownSeconds: 5,
		MaxCompleteJobRetries:          3,
		ConfirmTxPollSeconds:           0.5,
		ConfirmTxMaxPolls:              10,
		MaxClaimRetries:                3,
		ClaimRetryDelaySeconds:         1.5,

		BossAutoTick:                         true,
		BossTickIntervalSeconds:              4,
		BossTickRetryCooldownSeconds:         2,
		BossTickRateLimitBaseCooldownSeconds: 3,
		BossTickRateLimitMaxCooldownSeconds:  18,
		BossPropagationMaxAttempts:           6,
		BossPropagationDelayMs:               180,
		FighterCheckTTLSeconds:               2,

		SweepStaleJobs: true,
	}
}

// Load reads path over Defaults, so a partial file only overrides the keys
// it names.
func Load(path string) (Tuning, error) {
	t := Defaults()
	raw, err := os.ReadFile(path)
	if err != nil {
		return t, err
	}
	if err := yaml.Unmarshal(raw, &t); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	if err := t.Validate(); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	return t, nil
}

func (t Tuning) Validate() error {
	if err := t.Scheduler.Validate(); err != nil {
		return err
	}
	return t.Relay.Validate()
}

func (s Scheduler) Validate() error {
	positive := []struct {
		name string
		v    float64
	}{
		{"idle_poll_seconds", s.IdlePollSeconds},
		{"min_recheck_seconds", s.MinRecheckSeconds},
		{"max_recheck_seconds", s.MaxRecheckSeconds},
		{"seconds_per_slot_estimate", s.SecondsPerSlotEstimate},
		{"boss_tick_interval_seconds", s.BossTickIntervalSeconds},
		{"boss_tick_rate_limit_base_cooldown_seconds", s.BossTickRateLimitBaseCooldownSeconds},
		{"boss_tick_rate_limit_max_cooldown_seconds", s.BossTickRateLimitMaxCooldownSeconds},
	}
	for _, p := range positive {
		if !(p.v > 0) || math.IsInf(p.v, 0) {
			return fmt.Errorf("%s must be > 0", p.name)
		}
	}
	nonNegative := []struct {
		name string
		v    float64
	}{
		{"player_state_refresh_seconds", s.PlayerStateRefreshSeconds},
		{"tx_attempt_cooldown_seconds", s.TxAttemptCooldownSeconds},
		{"complete_job_fail_cooldown_seconds", s.CompleteJobFailCooldownSeconds},
		{"confirm_tx_poll_seconds", s.ConfirmTxPollSeconds},
		{"claim_retry_delay_seconds", s.ClaimRetryDelaySeconds},
		{"boss_tick_retry_cooldown_seconds", s.BossTickRetryCooldownSeconds},
		{"fighter_check_ttl_seconds", s.FighterCheckTTLSeconds},
		{"boss_propagation_delay_ms", float64(s.BossPropagationDelayMs)},
	}
	for _, p := range nonNegative {
		if p.v < 0 || math.IsNaN(p.v) || math.IsInf(p.v, 0) {
			return fmt.Errorf("%s must be >= 0", p.name)
		}
	}
	if s.MinRecheckSeconds > s.MaxRecheckSeconds {
		return fmt.Errorf("min_recheck_seconds (%v) exceeds max_recheck_seconds (%v)", s.MinRecheckSeconds, s.MaxRecheckSeconds)
	}
	if s.BossTickRateLimitBaseCooldownSeconds > s.BossTickRateLimitMaxCooldownSeconds {
		return fmt.Errorf("boss rate limit base cooldown exceeds max cooldown")
	}
	if s.MaxCompleteJobRetries < 1 {
		return fmt.Errorf("max_complete_job_retries must be >= 1")
	}
	if s.MaxClaimRetries < 1 {
		return fmt.Errorf("max_claim_retries must be >= 1")
	}
	if s.ConfirmTxMaxPolls < 0 || s.BossPropagationMaxAttempts < 0 {
		return fmt.Errorf("poll and attempt counts must be >= 0")
	}
	return nil
}

func (r Relay) Validate() error {
	if strings.TrimSpace(r.URL) == "" {
		return fmt.Errorf("relay.url is required")
	}
	if r.RequestsPerSecond < 0 {
		return fmt.Errorf("relay.requests_per_second must be >= 0")
	}
	if r.RequestsPerSecond > 0 && r.Burst < 1 {
		return fmt.Errorf("relay.burst must be >= 1 when throttling")
	}
	if r.TimeoutSeconds < 0 {
		return fmt.Errorf("relay.timeout_seconds must be >= 0")
	}
	return nil
}

func (s Scheduler) IdlePoll() time.Duration      { return secs(s.IdlePollSeconds) }
func (s Scheduler) MinRecheck() time.Duration    { return secs(s.MinRecheckSeconds) }
func (s Scheduler) MaxRecheck() time.Duration    { return secs(s.MaxRecheckSeconds) }
func (s Scheduler) PlayerRefresh() time.Duration { return secs(s.PlayerStateRefreshSeconds) }
func (s Scheduler) TxCooldown() time.Duration    { return secs(s.TxAttemptCooldownSeconds) }
func (s Scheduler) CompleteFailCooldown() time.Duration {
	return secs(s.CompleteJobFailCooldownSeconds)
}
func (s Scheduler) ConfirmPoll() time.Duration     { return secs(s.ConfirmTxPollSeconds) }
func (s Scheduler) ClaimRetryDelay() time.Duration { return secs(s.ClaimRetryDelaySeconds) }
func (s Scheduler) BossInterval() time.Duration    { return secs(s.BossTickIntervalSeconds) }
func (s Scheduler) BossRetryCooldown() time.Duration {
	return secs(s.BossTickRetryCooldownSeconds)
}
func (s Scheduler) RateLimitBase() time.Duration { return secs(s.BossTickRateLimitBaseCooldownSeconds) }
func (s Scheduler) RateLimitMax() time.Duration  { return secs(s.BossTickRateLimitMaxCooldownSeconds) }
func (s Scheduler) PropagationDelay() time.Duration {
	return time.Duration(s.BossPropagationDelayMs) * time.Millisecond
}
func (s Scheduler) FighterCheckTTL() time.Duration { return secs(s.FighterCheckTTLSeconds) }

func (r Relay) Timeout() time.Duration { return secs(r.TimeoutSeconds) }

func secs(v float64) time.Duration {
	return time.Duration(v * float64(time.Second))
}
