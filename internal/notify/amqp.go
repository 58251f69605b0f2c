package notify

import (
	"context"
	"encoding/json"
	"time"

	"github.com/streadway/amqp"
)

// AMQPPublisher publishes notification events to a fanout exchange consumed
// by the notification service.
type AMQPPublisher struct {
	conn     *amqp.Connection
	ch       *amqp.Channel
	exchange string
}

func NewAMQPPublisher(url, exchange string) (*AMQPPublisher, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, err
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, err
	}
	if err := ch.ExchangeDeclare(exchange, "fanout", true, false, false, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return nil, err
	}
	return &AMQPPublisher{conn: conn, ch: ch, exchange: exchange}, nil
}

type message struct {
	Event  string            `json:"event"`
	UserID string            `json:"user_id"`
	Params map[string]string `json:"params,omitempty"`
	SentAt int64             `json:"sent_at"`
}

func (p *AMQPPublisher) Notify(_ context.Context, event string, params map[string]string, userID string) error {
	body, err := json.Marshal(message{
		Event:  event,
		UserID: userID,
		Params: params,
		SentAt: time.Now().Unix(),
	})
	if err != nil {
		return err
	}
	return p.ch.Publish(p.exchange, "", false, false, amqp.Publishing{
		ContentType: "application/json",
		Body:        body,
	})
}

func (p *AMQPPublisher) Close() error {
	p.ch.Close()
	return p.conn.Close()
}
