// Package mqttsource feeds the canonical sensor model from the short-range
// fallback link. It is a pure second data source: payloads go through the
// same dispatcher into the same record stream. Reconnection is autopaho's
// own; it never touches the bridge manager's state machine or attempt
// counter.
package mqttsource

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/eclipse/paho.golang/autopaho"
	"github.com/eclipse/paho.golang/paho"

	"github.com/wayfinder-io/wayfinder/internal/pkg/metrics"
	"github.com/wayfinder-io/wayfinder/internal/telemetry/bus"
	"github.com/wayfinder-io/wayfinder/internal/telemetry/dispatch"
	"github.com/wayfinder-io/wayfinder/internal/telemetry/record"
	"github.com/wayfinder-io/wayfinder/pkg/log"
)

// Recorder is the slice of the manager's statistics the fallback source
// shares: frame and decode counters plus sample freshness.
type Recorder interface {
	dispatch.Recorder
	FrameReceived()
	SampleSeen(t time.Time)
}

// Source subscribes to the fallback topic and publishes decoded records.
type Source struct {
	cfg     *Config
	cm      *autopaho.ConnectionManager
	decoder *dispatch.Decoder
	records *bus.Stream[record.SensorRecord]
	stats   Recorder
}

// New creates a fallback source publishing into the given record stream.
func New(cfg *Config, records *bus.Stream[record.SensorRecord], stats Recorder) (*Source, error) {
	if cfg == nil {
		return nil, fmt.Errorf("mqtt config is required")
	}

	setDefaultConfig(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid mqtt config: %w", err)
	}

	return &Source{
		cfg:     cfg,
		decoder: dispatch.NewDecoder(dispatch.WithRecorder(stats)),
		records: records,
		stats:   stats,
	}, nil
}

// Start initiates the broker connection. Non-blocking; autopaho maintains
// the connection and re-subscribes after every reconnect.
func (s *Source) Start(ctx context.Context) error {
	brokerURL, _ := url.Parse(s.cfg.BrokerURL) // already validated

	pahoCfg := autopaho.ClientConfig{
		ServerUrls:       []*url.URL{brokerURL},
		KeepAlive:        s.cfg.KeepAlive,
		ReconnectBackoff: autopaho.NewConstantBackoff(3 * time.Second),
		ConnectTimeout:   s.cfg.ConnectTimeout,
		ConnectUsername:  s.cfg.Username,
		ConnectPassword:  []byte(s.cfg.Password),
		TlsCfg: &tls.Config{
			InsecureSkipVerify: s.cfg.InsecureSkipVerify,
		},
		ClientConfig: paho.ClientConfig{
			ClientID: s.cfg.ClientID,
			OnClientError: func(err error) {
				log.Error(err, "Fallback link client error")
			},
			OnServerDisconnect: func(d *paho.Disconnect) {
				log.Warn("Fallback broker requested disconnect", "reasonCode", d.ReasonCode)
			},
			OnPublishReceived: []func(paho.PublishReceived) (bool, error){
				s.onMessage,
			},
		},
		OnConnectionUp: s.onConnectionUp,
		OnConnectError: func(err error) {
			log.Error(err, "Fallback broker connection failed, retrying...")
		},
	}

	log.Info("Starting fallback link", "broker", s.cfg.BrokerURL, "topic", s.cfg.Topic)

	cm, err := autopaho.NewConnection(ctx, pahoCfg)
	if err != nil {
		return err
	}
	s.cm = cm
	return nil
}

// Stop cleanly closes the broker connection.
func (s *Source) Stop(ctx context.Context) {
	if s.cm != nil {
		_ = s.cm.Disconnect(ctx)
		log.Info("Fallback link stopped")
	}
}

func (s *Source) onConnectionUp(cm *autopaho.ConnectionManager, _ *paho.Connack) {
	log.Info("Fallback broker connected", "topic", s.cfg.Topic)

	if _, err := cm.Subscribe(context.Background(), &paho.Subscribe{
		Subscriptions: []paho.SubscribeOptions{
			{Topic: s.cfg.Topic, QoS: 1},
		},
	}); err != nil {
		log.Error(err, "Failed to subscribe to fallback topic", "topic", s.cfg.Topic)
	}
}

func (s *Source) onMessage(p paho.PublishReceived) (bool, error) {
	if !topicsMatch(s.cfg.Topic, p.Packet.Topic) {
		return true, nil
	}

	s.stats.FrameReceived()

	ev, err := s.decoder.Decode(p.Packet.Payload)
	if err != nil {
		log.Debug("Fallback frame decode failed", "err", err, "topic", p.Packet.Topic)
		return true, nil
	}

	if se, ok := ev.(dispatch.Sensor); ok {
		s.stats.SampleSeen(se.Record.Timestamp)
		metrics.SamplesTotal.WithLabelValues("mqtt").Inc()
		s.records.Publish(se.Record)
	}

	return true, nil
}

// topicsMatch checks a topic against a filter with + and # wildcards.
func topicsMatch(filter, topic string) bool {
	if filter == topic {
		return true
	}
	if !strings.Contains(filter, "+") && !strings.Contains(filter, "#") {
		return false
	}

	filterParts := strings.Split(filter, "/")
	topicParts := strings.Split(topic, "/")

	for i, part := range filterParts {
		if part == "#" {
			return true
		}
		if i >= len(topicParts) {
			return false
		}
		if part != "+" && part != topicParts[i] {
			return false
		}
	}

	return len(filterParts) == len(topicParts)
}
