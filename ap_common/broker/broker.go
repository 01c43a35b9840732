/*
 * Copyright 2020 Brightgate Inc.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at https://mozilla.org/MPL/2.0/.
 */


// Package broker publishes station events to other daemons over a mangos
// pub/sub socket.  Each message is the topic, a NUL, and a marshaled protobuf.
package broker

import (
	"bytes"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/golang/protobuf/proto"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"nanomsg.org/go/mangos/v2"
	"nanomsg.org/go/mangos/v2/protocol/pub"
	"nanomsg.org/go/mangos/v2/protocol/sub"
	// Importing the transports
	_ "nanomsg.org/go/mangos/v2/transport/inproc"
	_ "nanomsg.org/go/mangos/v2/transport/tcp"
)

// Broker is the publishing end of the event bus.
type Broker struct {
	Name string

	url          string
	slog         *zap.SugaredLogger
	publisherMtx sync.Mutex
	publisher    mangos.Socket
}

// New opens a publisher socket listening on url.
func New(url, name string, slog *zap.SugaredLogger) (*Broker, error) {
	if len(name) == 0 {
		return nil, errors.New("broker consumer must give its name")
	}

	sock, err := pub.NewSocket()
	if err != nil {
		return nil, errors.Wrap(err, "creating publisher")
	}
	if err = sock.Listen(url); err != nil {
		sock.Close()
		return nil, errors.Wrapf(err, "listening on %s", url)
	}

	b := &Broker{
		Name:      fmt.Sprintf("%s(%d)", name, os.Getpid()),
		url:       url,
		slog:      slog,
		publisher: sock,
	}
	slog.Infof("publishing events on %s", url)
	return b, nil
}

// Publish first marshals the protobuf into its wire format and then sends the
// resulting data on the broker's socket.  A publisher never blocks; messages
// are dropped for subscribers which can't keep up.
func (b *Broker) Publish(pb proto.Message, topic string) error {
	data, err := proto.Marshal(pb)
	if err != nil {
		return errors.Wrapf(err, "marshalling %s", topic)
	}

	msg := make([]byte, 0, len(topic)+1+len(data))
	msg = append(msg, topic...)
	msg = append(msg, 0)
	msg = append(msg, data...)

	b.publisherMtx.Lock()
	err = b.publisher.Send(msg)
	b.publisherMtx.Unlock()
	if err != nil {
		return errors.Wrapf(err, "sending %s", topic)
	}

	return nil
}

// Fini closes the publisher socket.
func (b *Broker) Fini() {
	b.publisherMtx.Lock()
	b.publisher.Close()
	b.publisherMtx.Unlock()
}

// Split separates a received message into its topic and payload.
func Split(msg []byte) (string, []byte, error) {
	idx := bytes.IndexByte(msg, 0)
	if idx < 0 {
		return "", nil, errors.New("message has no topic")
	}
	return string(msg[:idx]), msg[idx+1:], nil
}

// Subscriber is the receiving end of the event bus.
type Subscriber struct {
	sock mangos.Socket
}

// NewSubscriber dials a publisher and subscribes to the listed topics, or to
// every topic if none are given.
func NewSubscriber(url string, topics ...string) (*Subscriber, error) {
	sock, err := sub.NewSocket()
	if err != nil {
		return nil, errors.Wrap(err, "creating subscriber")
	}
	if len(topics) == 0 {
		topics = []string{""}
	}
	for _, t := range topics {
		if err = sock.SetOption(mangos.OptionSubscribe, []byte(t)); err != nil {
			sock.Close()
			return nil, errors.Wrapf(err, "subscribing to '%s'", t)
		}
	}
	if err = sock.Dial(url); err != nil {
		sock.Close()
		return nil, errors.Wrapf(err, "dialing %s", url)
	}

	return &Subscriber{sock: sock}, nil
}

// Recv waits up to timeout for the next message.  A zero timeout waits
// forever.
func (s *Subscriber) Recv(timeout time.Duration) (string, []byte, error) {
	if err := s.sock.SetOption(mangos.OptionRecvDeadline, timeout); err != nil {
		return "", nil, errors.Wrap(err, "setting deadline")
	}
	msg, err := s.sock.Recv()
	if err != nil {
		return "", nil, err
	}
	return Split(msg)
}

// Close closes the subscriber socket.
func (s *Subscriber) Close() {
	s.sock.Close()
}
