package kafkax

import (
	"context"
	"errors"
	"time"

	"github.com/md-rashed-zaman/bookly/libs/runtime"
	"github.com/segmentio/kafka-go"
)

// ReadyChecks returns the kafka check for /readyz, or none when no brokers are configured and
// the service runs with eventing disabled.
func ReadyChecks(brokers string) []runtime.ReadyCheck {
	if len(SplitBrokers(brokers)) == 0 {
		return nil
	}
	return []runtime.ReadyCheck{{Name: "kafka", Check: ReadyCheck(brokers)}}
}

// ReadyCheck succeeds when any configured broker accepts a TCP connection.
func ReadyCheck(brokers string) func(context.Context) error {
	return func(ctx context.Context) error {
		list := SplitBrokers(brokers)
		if len(list) == 0 {
			return errors.New("kafka brokers not configured")
		}
		dialer := kafka.Dialer{Timeout: 2 * time.Second}
		var lastErr error
		for _, broker := range list {
			conn, err := dialer.DialContext(ctx, "tcp", broker)
			if err != nil {
				lastErr = err
				continue
			}
			_ = conn.Close()
			return nil
		}
		return lastErr
	}
}
