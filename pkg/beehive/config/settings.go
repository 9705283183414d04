package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"

	bherrors "github.com/randalmurphal/beehive/pkg/beehive/errors"
	"github.com/randalmurphal/beehive/pkg/beehive/sched"
)

// DefaultMaxFrameSize bounds a single transport message.
const DefaultMaxFrameSize = 16 << 20

// Settings are the tunables of a hive.
type Settings struct {
	// Scheduling names the scheduling model: preemptive (threaded) or
	// cooperative (async).
	Scheduling string `validate:"omitempty,oneof=preemptive threaded cooperative async"`

	// PollInterval is how long an idle task parks before polling again.
	PollInterval time.Duration `validate:"gt=0,lte=1m"`

	// QueueWait bounds a blocking queue pop under preemptive scheduling.
	// It bounds shutdown latency, not throughput.
	QueueWait time.Duration `validate:"gt=0,lte=1m"`

	// MaxFrameSize is the largest message the transport sends or accepts.
	MaxFrameSize int `validate:"gt=0,lte=1073741824"`

	// The Send fields drive client retries of transient send failures.
	// Each backoff is the previous one times SendBackoffFactor, capped at
	// SendMaxBackoff and spread by up to SendJitter of itself.
	SendAttempts      int           `validate:"gte=1,lte=100"`
	SendBackoff       time.Duration `validate:"gte=0"`
	SendMaxBackoff    time.Duration `validate:"gtefield=SendBackoff"`
	SendBackoffFactor float64       `validate:"gte=1,lte=10"`
	SendJitter        float64       `validate:"gte=0,lte=1"`

	// Debug enables debug logging when the hive has no logger of its own.
	Debug bool
}

// DefaultSettings returns the settings a hive uses when none are given.
func DefaultSettings() Settings {
	return Settings{
		Scheduling:     sched.Preemptive.String(),
		PollInterval:   sched.DefaultPollInterval,
		QueueWait:      sched.DefaultQueueWait,
		MaxFrameSize:   DefaultMaxFrameSize,
		SendAttempts:   bherrors.TransportRetry.MaxAttempts,
		SendBackoff:    bherrors.TransportRetry.InitialBackoff,
		SendMaxBackoff: bherrors.TransportRetry.MaxBackoff,

		SendBackoffFactor: bherrors.TransportRetry.BackoffFactor,
		SendJitter:        bherrors.TransportRetry.Jitter,
	}
}

// LoadSettings reads settings from cfg on top of DefaultSettings and
// validates the result.
//
// Recognised keys:
//
//	scheduling      string
//	poll_interval   duration
//	queue_wait      duration
//	debug           bool
//	transport:
//	  max_frame_size    int
//	  send_attempts     int
//	  send_backoff      duration
//	  send_max_backoff  duration
//	  send_backoff_factor float
//	  send_jitter       float
func LoadSettings(cfg Config) (Settings, error) {
	s := DefaultSettings()
	s.Scheduling = cfg.String("scheduling", s.Scheduling)
	s.PollInterval = cfg.Duration("poll_interval", s.PollInterval)
	s.QueueWait = cfg.Duration("queue_wait", s.QueueWait)
	s.Debug = cfg.Bool("debug", s.Debug)

	tr := cfg.Sub("transport")
	s.MaxFrameSize = tr.Int("max_frame_size", s.MaxFrameSize)
	s.SendAttempts = tr.Int("send_attempts", s.SendAttempts)
	s.SendBackoff = tr.Duration("send_backoff", s.SendBackoff)
	s.SendMaxBackoff = tr.Duration("send_max_backoff", s.SendMaxBackoff)
	s.SendBackoffFactor = tr.Float("send_backoff_factor", s.SendBackoffFactor)
	s.SendJitter = tr.Float("send_jitter", s.SendJitter)

	if err := s.Validate(); err != nil {
		return Settings{}, err
	}
	return s, nil
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks every field. The first violation is returned as a
// *errors.ConfigurationError naming the field.
func (s Settings) Validate() error {
	err := validate.Struct(s)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		return &bherrors.ConfigurationError{
			Field:   fe.Field(),
			Message: describe(fe),
			Err:     err,
		}
	}
	return &bherrors.ConfigurationError{Field: "settings", Err: err}
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "oneof":
		return fmt.Sprintf("%v is not one of [%s]", fe.Value(), fe.Param())
	case "gtefield":
		return fmt.Sprintf("must be at least %s", fe.Param())
	case "":
		return "invalid"
	default:
		if fe.Param() != "" {
			return fmt.Sprintf("%v violates %s=%s", fe.Value(), fe.Tag(), fe.Param())
		}
		return fmt.Sprintf("%v violates %s", fe.Value(), fe.Tag())
	}
}

// Model returns the scheduling model. Validated settings always parse.
func (s Settings) Model() sched.Model {
	m, _ := sched.ParseModel(s.Scheduling)
	return m
}

// Sched returns the scheduler configuration.
func (s Settings) Sched() sched.Config {
	return sched.Config{
		PollInterval: s.PollInterval,
		QueueWait:    s.QueueWait,
	}
}

// Retry returns the client send retry configuration.
func (s Settings) Retry() bherrors.RetryConfig {
	return bherrors.NewRetryConfig(bherrors.TransportRetry,
		bherrors.WithMaxAttempts(s.SendAttempts),
		bherrors.WithInitialBackoff(s.SendBackoff),
		bherrors.WithMaxBackoff(s.SendMaxBackoff),
		bherrors.WithBackoffFactor(s.SendBackoffFactor),
		bherrors.WithJitter(s.SendJitter),
	)
}
