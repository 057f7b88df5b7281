package mqtt

import (
	"encoding/json"
	"fmt"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"

	"gate-monitor/internal/config"
	"gate-monitor/internal/domain/monitor"
)

// Publisher pushes detection lifecycle notices to an MQTT broker so
// downstream systems (barriers, tally boards, logging collectors) can
// react without polling this service.
type Publisher struct {
	client mqtt.Client
	topic  string
	log    zerolog.Logger
}

func NewPublisher(cfg config.MQTTConfig, log zerolog.Logger) *Publisher {
	logger := log.With().Str("component", "mqtt").Logger()

	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(cfg.ClientID)
	if cfg.User != "" {
		opts.SetUsername(cfg.User)
		opts.SetPassword(cfg.Password)
	}
	opts.SetAutoReconnect(true)
	opts.SetOnConnectHandler(func(c mqtt.Client) {
		logger.Info().Str("broker", cfg.Broker).Msg("connected to MQTT broker")
	})
	opts.SetConnectionLostHandler(func(c mqtt.Client, err error) {
		logger.Warn().Err(err).Msg("lost connection to MQTT broker")
	})

	return &Publisher{
		client: mqtt.NewClient(opts),
		topic:  cfg.Topic,
		log:    logger,
	}
}

func (p *Publisher) Connect() error {
	token := p.client.Connect()
	if token.Wait() && token.Error() != nil {
		return fmt.Errorf("failed to connect to MQTT broker: %w", token.Error())
	}
	return nil
}

// PublishDetection sends one lifecycle notice. Failures are the
// caller's to log; notices are advisory and never retried.
func (p *Publisher) PublishDetection(notice monitor.DetectionNotice) error {
	payload, err := json.Marshal(notice)
	if err != nil {
		return fmt.Errorf("failed to marshal detection notice: %w", err)
	}

	token := p.client.Publish(p.topic, 0, false, payload)
	if token.Wait() && token.Error() != nil {
		return token.Error()
	}

	p.log.Debug().Str("type", notice.Type).Str("plate", notice.Plate).Msg("published detection notice")
	return nil
}

func (p *Publisher) Disconnect() {
	p.client.Disconnect(250)
}
