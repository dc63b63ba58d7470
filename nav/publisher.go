package nav

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// DefaultPublishPrefix is the topic prefix when none is configured
const DefaultPublishPrefix = "tilenav"

// PosePayload is the retained pose message
type PosePayload struct {
	X         float64 `json:"x"`
	Y         float64 `json:"y"`
	Heading   float64 `json:"heading"` // degrees, clockwise from North
	Timestamp int64   `json:"timestamp"`
}

// Publisher pushes pose, progress and results to MQTT. It implements Reporter;
// publish failures are logged and never reach the caller.
type Publisher struct {
	client        mqtt.Client
	publishPrefix string
	qos           byte
	retain        bool
}

// NewPublisher creates a publisher. If client is nil, publishing is disabled.
// The topic prefix comes from MQTT_PUBLISH_PREFIX, then prefix, then the default.
func NewPublisher(client mqtt.Client, prefix string) *Publisher {
	if env := os.Getenv("MQTT_PUBLISH_PREFIX"); env != "" {
		prefix = env
	}
	if prefix == "" {
		prefix = DefaultPublishPrefix
	}

	return &Publisher{
		client:        client,
		publishPrefix: prefix,
		qos:           0,
		retain:        true,
	}
}

// Prefix returns the topic prefix
func (p *Publisher) Prefix() string {
	return p.publishPrefix
}

// SetQoS sets the Quality of Service level for publishing (0, 1, or 2)
func (p *Publisher) SetQoS(qos byte) {
	if qos <= 2 {
		p.qos = qos
	}
}

// SetRetain sets whether published messages should be retained by the broker
func (p *Publisher) SetRetain(retain bool) {
	p.retain = retain
}

func (p *Publisher) publish(suffix string, retain bool, v any) error {
	if p.client == nil || !p.client.IsConnected() {
		return fmt.Errorf("MQTT client not connected")
	}

	topic := fmt.Sprintf("%s/%s", p.publishPrefix, suffix)
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshaling %s: %w", suffix, err)
	}

	token := p.client.Publish(topic, p.qos, retain, payload)
	if token.WaitTimeout(2*time.Second) && token.Error() != nil {
		return fmt.Errorf("publishing to %s: %w", topic, token.Error())
	}
	return nil
}

// PublishPose publishes to {prefix}/pose
func (p *Publisher) PublishPose(pose Pose) error {
	return p.publish("pose", p.retain, PosePayload{
		X:         pose.X,
		Y:         pose.Y,
		Heading:   pose.HeadingDeg(),
		Timestamp: time.Now().Unix(),
	})
}

// PublishStep publishes to {prefix}/localization/step. Steps are transient and
// never retained.
func (p *Publisher) PublishStep(s Step) error {
	return p.publish("localization/step", false, s)
}

// PublishResult publishes to {prefix}/localization/result
func (p *Publisher) PublishResult(r Result) error {
	if err := p.publish("localization/result", p.retain, r); err != nil {
		return err
	}
	log.Printf("[MQTT] Published result for run %s: start %s", r.RunID, r.Start)
	return nil
}

func (p *Publisher) ReportPose(pose Pose) {
	if err := p.PublishPose(pose); err != nil && p.client != nil {
		log.Printf("[MQTT] Error publishing pose: %v", err)
	}
}

func (p *Publisher) ReportStep(s Step) {
	if err := p.PublishStep(s); err != nil && p.client != nil {
		log.Printf("[MQTT] Error publishing step %d: %v", s.Iteration, err)
	}
}

func (p *Publisher) ReportResult(r Result) {
	if err := p.PublishResult(r); err != nil && p.client != nil {
		log.Printf("[MQTT] Error publishing result: %v", err)
	}
}
