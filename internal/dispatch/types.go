package dispatch

import (
	"errors"
	"time"
)

var (
	ErrNoSender      = errors.New("dispatch: sender phone is not configured")
	ErrNoRecipients  = errors.New("dispatch: no recipients")
	ErrEmptyTemplate = errors.New("dispatch: message template is empty")
)

const (
	defaultSendDelay   = 500 * time.Millisecond
	defaultSendTimeout = 10 * time.Second
)

// Config controls pacing for a dispatch run. RatePerSec switches the
// throttle from a fixed inter-send delay to a token bucket when set.
type Config struct {
	SenderPhone string
	SendDelay   time.Duration
	SendTimeout time.Duration
	RatePerSec  float64
}

func (c Config) normalized() Config {
	if c.SendDelay <= 0 {
		c.SendDelay = defaultSendDelay
	}
	if c.SendTimeout <= 0 {
		c.SendTimeout = defaultSendTimeout
	}
	return c
}

// Recipient is the minimal addressing info a run needs. The caller maps
// its roster entries into this shape.
type Recipient struct {
	Name  string
	Phone string
}

// Progress is reported before each send attempt. Current is 1-based.
type Progress struct {
	Current   int
	Total     int
	Recipient Recipient
}

// Outcome records the result of one send attempt within a batch.
type Outcome struct {
	Recipient string
	Phone     string
	Message   string
	Success   bool
	MessageID string
	Err       error
}

// Summary aggregates a batch's outcomes.
type Summary struct {
	Total  int
	Sent   int
	Failed int
}

func Summarize(outcomes []Outcome) Summary {
	s := Summary{Total: len(outcomes)}
	for _, o := range outcomes {
		if o.Success {
			s.Sent++
		} else {
			s.Failed++
		}
	}
	return s
}
