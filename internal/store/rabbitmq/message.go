package rabbitmq

import (
	"encoding/json"
	"errors"
	"strconv"
	"strings"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// AttemptHeader counts deliveries of a message through the retry queue.
const AttemptHeader = "x-attempt"

var ErrBadMessage = errors.New("rabbitmq: bad run message")

type RunMessage struct {
	RunID string `json:"run_id"`
}

func DecodeRunMessage(body []byte) (RunMessage, error) {
	var m RunMessage
	if err := json.Unmarshal(body, &m); err != nil {
		return RunMessage{}, errors.Join(ErrBadMessage, err)
	}
	m.RunID = strings.TrimSpace(m.RunID)
	if m.RunID == "" {
		return RunMessage{}, ErrBadMessage
	}
	return m, nil
}

// Attempt returns how many times the message was already retried.
func Attempt(headers amqp.Table) int {
	switch v := headers[AttemptHeader].(type) {
	case int32:
		return int(v)
	case int64:
		return int(v)
	case int:
		return v
	default:
		return 0
	}
}

func runPublishing(runID string, attempt int) (amqp.Publishing, error) {
	body, err := json.Marshal(RunMessage{RunID: runID})
	if err != nil {
		return amqp.Publishing{}, err
	}
	p := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Body:         body,
		Timestamp:    time.Now(),
	}
	if attempt > 0 {
		p.Headers = amqp.Table{AttemptHeader: int32(attempt)}
	}
	return p, nil
}

// retryPublishing parks the message in the retry queue for delay; the
// queue dead-letters it back to the main queue once it expires.
func retryPublishing(runID string, attempt int, delay time.Duration) (amqp.Publishing, error) {
	p, err := runPublishing(runID, attempt)
	if err != nil {
		return p, err
	}
	p.Expiration = strconv.FormatInt(delay.Milliseconds(), 10)
	return p, nil
}
