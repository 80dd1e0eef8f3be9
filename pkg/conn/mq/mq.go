// Package mq connects to the run-status message queue.
//
// The queue is AMQP 0-9-1, one durable queue per deployment, consumed
// by a single logical consumer with a bounded unacknowledged-delivery
// ceiling for backpressure.
package mq

import (
	"context"

	amqp "github.com/rabbitmq/amqp091-go"
)

type Queue struct {
	conn    *amqp.Connection
	channel *amqp.Channel

	// Queue name, as declared.
	Name string
}

// Open dials url, declares the named durable queue and caps in-flight
// unacknowledged deliveries at prefetch.
func Open(url string, name string, prefetch int) (*Queue, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, err
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, err
	}

	if err := channel.Qos(prefetch, 0, false); err != nil {
		conn.Close()
		return nil, err
	}

	if _, err := channel.QueueDeclare(
		name,
		true,  // durable
		false, // autoDelete
		false, // exclusive
		false, // noWait
		nil,
	); err != nil {
		conn.Close()
		return nil, err
	}

	return &Queue{conn: conn, channel: channel, Name: name}, nil
}

// Consume starts delivering messages. Acknowledgement is explicit,
// per delivery.
func (q *Queue) Consume(consumerTag string) (<-chan amqp.Delivery, error) {
	return q.channel.Consume(
		q.Name,
		consumerTag,
		false, // autoAck
		false, // exclusive
		false, // noLocal
		false, // noWait
		nil,
	)
}

// Publish sends a JSON body to the queue via the default exchange.
func (q *Queue) Publish(ctx context.Context, body []byte) error {
	return q.channel.PublishWithContext(
		ctx,
		"",     // default exchange
		q.Name, // routing key = queue name
		false,  // mandatory
		false,  // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Body:         body,
		},
	)
}

func (q *Queue) Close() error {
	return q.conn.Close()
}
