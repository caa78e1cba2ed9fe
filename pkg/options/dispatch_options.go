package options

import (
	"fmt"
	"time"

	"github.com/spf13/pflag"
)

var _ IOptions = (*DispatchOptions)(nil)

// DispatchOptions configures the per-vehicle command queues.
type DispatchOptions struct {
	QueueCapacity int `json:"queue-capacity" mapstructure:"queue-capacity"`

	// MessageTimeout bounds the wait for the response to a HARD command. It
	// is also the shutdown grace for in-flight HARD commands.
	MessageTimeout time.Duration `json:"message-timeout" mapstructure:"message-timeout"`

	// MaxRetries bounds resends of a SOFT command (retry_policies.message_resend.max_retries).
	MaxRetries int           `json:"max-retries" mapstructure:"max-retries"`
	RetryDelay time.Duration `json:"retry-delay" mapstructure:"retry-delay"`
}

func NewDispatchOptions() *DispatchOptions {
	return &DispatchOptions{
		QueueCapacity:  1000,
		MessageTimeout: 30 * time.Second,
		MaxRetries:     3,
		RetryDelay:     time.Second,
	}
}

func (o *DispatchOptions) Validate() []error {
	if o == nil {
		return nil
	}

	errors := []error{}

	if o.QueueCapacity < 1 {
		errors = append(errors, fmt.Errorf("dispatch.queue-capacity must be at least 1"))
	}
	if o.MessageTimeout <= 0 {
		errors = append(errors, fmt.Errorf("dispatch.message-timeout must be positive"))
	}
	if o.MaxRetries < 0 {
		errors = append(errors, fmt.Errorf("dispatch.max-retries must not be negative"))
	}
	if o.RetryDelay <= 0 {
		errors = append(errors, fmt.Errorf("dispatch.retry-delay must be positive"))
	}

	return errors
}

func (o *DispatchOptions) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	fs.IntVar(&o.QueueCapacity, "dispatch.queue-capacity", o.QueueCapacity, "Maximum number of queued commands per vehicle.")
	fs.DurationVar(&o.MessageTimeout, "dispatch.message-timeout", o.MessageTimeout, "Wait for a HARD command response; also the shutdown grace.")
	fs.IntVar(&o.MaxRetries, "dispatch.max-retries", o.MaxRetries, "Resends of a SOFT command after a send failure.")
	fs.DurationVar(&o.RetryDelay, "dispatch.retry-delay", o.RetryDelay, "Delay before resending a SOFT command.")
}
