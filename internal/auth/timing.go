package auth

import (
	"crypto/rand"
	"encoding/binary"
	"time"
)

// TimingConfig holds configuration for timing attack prevention
type TimingConfig struct {
	BaseDelay      time.Duration
	RandomDelay    time.Duration // upper bound of the random jitter added to BaseDelay
	DelayOnSuccess bool
}

// TimingDelay pads failed authentication so that unknown accounts and wrong passwords
// take roughly the same time to answer.
type TimingDelay struct {
	config TimingConfig
}

func NewTimingDelay(config TimingConfig) *TimingDelay {
	return &TimingDelay{
		config: config,
	}
}

// cryptoRandIntn returns a secure random number between 0 and max (exclusive)
func cryptoRandIntn(max int64) (int64, error) {
	if max <= 0 {
		return 0, nil
	}

	randomBytes := make([]byte, 8)
	if _, err := rand.Read(randomBytes); err != nil {
		return 0, err
	}

	randomValue := binary.BigEndian.Uint64(randomBytes)
	return int64(randomValue % uint64(max)), nil
}

func (td *TimingDelay) target() time.Duration {
	delay := td.config.BaseDelay
	if td.config.RandomDelay > 0 {
		if jitter, err := cryptoRandIntn(int64(td.config.RandomDelay)); err == nil {
			delay += time.Duration(jitter)
		}
	}
	return delay
}

// WaitFrom pads the time elapsed since startTime up to the target delay.
func (td *TimingDelay) WaitFrom(startTime time.Time, success bool) {
	if td == nil || (success && !td.config.DelayOnSuccess) {
		return
	}
	if remaining := td.target() - time.Since(startTime); remaining > 0 {
		time.Sleep(remaining)
	}
}
