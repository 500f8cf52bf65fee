// Package publish sends decoded histogram frames to an MQTT broker.
package publish

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"

	"github.com/cgxeiji/opcr2/histogram"
	"github.com/cgxeiji/opcr2/internal/config"
)

const publishTimeout = 5 * time.Second

// Message is the JSON payload published for each frame. Floats the frame
// holds as NaN or ±Inf are published as null; Raw always carries the bytes.
type Message struct {
	Time             time.Time   `json:"time"`
	Bins             []uint16    `json:"bins"`
	TimeOfFlight     []uint8     `json:"tof"`
	SampleFlowRate   *float32    `json:"flow_mls"`
	Temperature      float64     `json:"temperature_c"`
	Humidity         float64     `json:"humidity_rh"`
	SamplingPeriod   *float32    `json:"period_s"`
	RejectGlitch     uint8       `json:"reject_glitch"`
	RejectLong       uint8       `json:"reject_long"`
	PM               [3]*float32 `json:"pm_ugm3"`
	DeviceChecksum   uint16      `json:"checksum"`
	ComputedChecksum uint16      `json:"checksum_computed"`
	Valid            bool        `json:"valid"`
	Ready            bool        `json:"ready"`
	Raw              string      `json:"raw"`
}

func finite(v float32) *float32 {
	if math.IsNaN(float64(v)) || math.IsInf(float64(v), 0) {
		return nil
	}
	return &v
}

// NewMessage builds the payload for f read at t.
func NewMessage(f *histogram.Frame, t time.Time) Message {
	return Message{
		Time:             t.UTC(),
		Bins:             append([]uint16(nil), f.Bins[:]...),
		TimeOfFlight:     append([]uint8(nil), f.TimeOfFlight[:]...),
		SampleFlowRate:   finite(f.SampleFlowRate),
		Temperature:      f.Temperature,
		Humidity:         f.Humidity,
		SamplingPeriod:   finite(f.SamplingPeriod),
		RejectGlitch:     f.RejectGlitch,
		RejectLong:       f.RejectLong,
		PM:               [3]*float32{finite(f.PM[0]), finite(f.PM[1]), finite(f.PM[2])},
		DeviceChecksum:   f.DeviceChecksum,
		ComputedChecksum: f.ComputedChecksum,
		Valid:            f.Valid(),
		Ready:            f.Ready,
		Raw:              hex.EncodeToString(f.Raw[:]),
	}
}

// Publisher publishes frames on a single topic.
type Publisher struct {
	client mqtt.Client
	topic  string
	qos    byte
	log    *zap.Logger
}

// Dial connects to the broker in cfg.
func Dial(cfg config.MQTTConfig, log *zap.Logger) (*Publisher, error) {
	opts := mqtt.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(cfg.ClientID).
		SetKeepAlive(30 * time.Second).
		SetAutoReconnect(true).
		SetConnectionLostHandler(func(_ mqtt.Client, err error) {
			log.Warn("mqtt connection lost", zap.Error(err))
		})

	c := mqtt.NewClient(opts)
	if token := c.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("publish: could not connect to %s: %w", cfg.Broker, token.Error())
	}

	return New(c, cfg.Topic, cfg.QoS, log), nil
}

// New returns a publisher using an already connected client.
func New(c mqtt.Client, topic string, qos byte, log *zap.Logger) *Publisher {
	if log == nil {
		log = zap.NewNop()
	}
	return &Publisher{
		client: c,
		topic:  topic,
		qos:    qos,
		log:    log,
	}
}

// Publish sends f as JSON.
func (p *Publisher) Publish(f *histogram.Frame, t time.Time) error {
	msg, err := json.Marshal(NewMessage(f, t))
	if err != nil {
		return fmt.Errorf("publish: could not encode frame: %w", err)
	}

	token := p.client.Publish(p.topic, p.qos, false, msg)
	if !token.WaitTimeout(publishTimeout) {
		return fmt.Errorf("publish: timed out on %s", p.topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish: could not publish on %s: %w", p.topic, err)
	}

	p.log.Debug("frame published", zap.String("topic", p.topic), zap.Int("bytes", len(msg)))
	return nil
}

// Close disconnects from the broker.
func (p *Publisher) Close() {
	p.client.Disconnect(250)
}
