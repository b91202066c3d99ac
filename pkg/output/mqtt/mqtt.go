package mqtt

import (
	"encoding/json"
	"fmt"
	"strings"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/sirupsen/logrus"

	"github.com/ericogr/plura-monitor/pkg/config"
	"github.com/ericogr/plura-monitor/pkg/output"
	"github.com/ericogr/plura-monitor/pkg/store"
)

const (
	// defaults
	DefaultServer      = "tcp://localhost:1883"
	DefaultClientID    = "plura-monitor"
	DefaultStateTopic  = "plura/%s"
	perChannelTopicFmt = "plura/%s"
	disconnectQuiesce  = 250
	// discovery payload keys/values
	keyName                = "name"
	keyStateTopic          = "state_topic"
	keyUnitOfMeasurement   = "unit_of_measurement"
	keyDeviceClass         = "device_class"
	keyStateClass          = "state_class"
	keyValueTemplate       = "value_template"
	keyJSONAttributesTopic = "json_attributes_topic"
	keyUniqueID            = "unique_id"
	stateClassMeasurement  = "measurement"
	valueTemplate          = "{{ value_json.value }}"
)

// deviceClasses maps reading units to Home Assistant device classes and
// units of measurement.
var deviceClasses = map[string][2]string{
	"mV":  {"voltage", "mV"},
	"V":   {"voltage", "V"},
	"°C":  {"temperature", "°C"},
	"%RH": {"humidity", "%"},
}

type MQTTOutput struct {
	client         mqtt.Client
	stateTopic     string
	discoveryTopic string
}

// NewMQTT connects to the broker and announces channels when a discovery
// topic is configured.
func NewMQTT(cfg config.MQTTConfig, channels []output.Channel) (output.Output, error) {
	server := cfg.Server
	if server == "" {
		server = DefaultServer
	}
	clientID := cfg.ClientID
	if clientID == "" {
		clientID = DefaultClientID
	}
	opts := mqtt.NewClientOptions().AddBroker(server).SetClientID(clientID)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
	}
	if cfg.Password != "" {
		opts.SetPassword(cfg.Password)
	}
	opts.SetAutoReconnect(true)
	client := mqtt.NewClient(opts)
	token := client.Connect()
	if token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("mqtt connect: %w", token.Error())
	}
	cfg.ClientID = clientID
	return newMQTTOutput(client, cfg, channels), nil
}

func newMQTTOutput(client mqtt.Client, cfg config.MQTTConfig, channels []output.Channel) *MQTTOutput {
	m := &MQTTOutput{client: client, stateTopic: cfg.StateTopic, discoveryTopic: cfg.DiscoveryTopic}
	if m.discoveryTopic == "" {
		return m
	}

	// per-channel discovery when discoveryTopic contains a formatter
	if strings.Contains(m.discoveryTopic, "%s") {
		for _, ch := range channels {
			dTopic := fmt.Sprintf(m.discoveryTopic, discoveryObjectID(ch.ID))
			payload := baseDiscoveryPayload(discoveryName(cfg, &ch), formatStateTopic(cfg.StateTopic, ch.ID), discoveryUniqueID(cfg, &ch), ch.Unit)
			if err := m.publishJSON(dTopic, payload); err != nil {
				logrus.WithError(err).WithField("topic", dTopic).Warn("mqtt discovery publish error")
			}
		}
		return m
	}
	unit := ""
	if len(channels) > 0 {
		unit = channels[0].Unit
	}
	payload := baseDiscoveryPayload(discoveryName(cfg, nil), m.stateTopic, discoveryUniqueID(cfg, nil), unit)
	if err := m.publishJSON(m.discoveryTopic, payload); err != nil {
		logrus.WithError(err).WithField("topic", m.discoveryTopic).Warn("mqtt discovery publish error")
	}
	return m
}

// statePayload is published for every entry.
type statePayload struct {
	Value      *float64 `json:"value,omitempty"`
	Raw        *int     `json:"raw,omitempty"`
	Unit       string   `json:"unit"`
	Calibrated bool     `json:"calibrated"`
	Timestamp  int64    `json:"ts"`
}

func (m *MQTTOutput) Publish(entries []store.Entry) error {
	for _, e := range entries {
		topic := formatStateTopic(m.stateTopic, e.ID)

		r := e.Reading
		p := statePayload{Unit: r.Unit, Calibrated: r.Calibrated, Timestamp: r.UpdatedAt.Unix()}
		if r.Calibrated {
			v := r.Value
			p.Value = &v
		}
		if r.HasRaw {
			raw := r.Raw
			p.Raw = &raw
		}
		b, err := json.Marshal(p)
		if err != nil {
			return err
		}
		token := m.client.Publish(topic, 0, false, b)
		token.Wait()
		if token.Error() != nil {
			return token.Error()
		}
	}
	return nil
}

func (m *MQTTOutput) Close() error {
	if m.client != nil {
		m.client.Disconnect(disconnectQuiesce)
	}
	return nil
}

// PublishRaw publishes a raw payload to the given topic. The caller can set the
// retain flag which is useful for discovery messages.
func (m *MQTTOutput) PublishRaw(topic string, payload []byte, retained bool) error {
	if m.client == nil {
		return fmt.Errorf("mqtt client not connected")
	}
	token := m.client.Publish(topic, 0, retained, payload)
	token.Wait()
	return token.Error()
}

// helper: format a state topic for a channel using an optional formatter.
// Without a formatter every channel shares base.
func formatStateTopic(base string, id store.ID) string {
	if base != "" {
		if strings.Contains(base, "%s") {
			return fmt.Sprintf(base, id)
		}
		return base
	}
	return fmt.Sprintf(perChannelTopicFmt, id)
}

// discoveryObjectID turns a channel ID into a valid discovery object id.
func discoveryObjectID(id store.ID) string {
	return strings.ReplaceAll(string(id), ".", "_")
}

// helper: build a human-friendly discovery name; if ch != nil append channel
func discoveryName(cfg config.MQTTConfig, ch *output.Channel) string {
	name := cfg.DiscoveryName
	if name == "" {
		name = fmt.Sprintf("PLURA %s", cfg.ClientID)
	}
	if ch != nil {
		name = fmt.Sprintf("%s %s", name, ch.ID)
	}
	return name
}

// helper: build a unique id for discovery; if ch != nil append channel
func discoveryUniqueID(cfg config.MQTTConfig, ch *output.Channel) string {
	uid := cfg.DiscoveryUniqueID
	if uid == "" {
		uid = cfg.ClientID
	}
	if uid != "" && ch != nil {
		uid = fmt.Sprintf("%s_%s", uid, discoveryObjectID(ch.ID))
	}
	return uid
}

// helper: base discovery payload map common to all entries
func baseDiscoveryPayload(name, stateTopic, uniqueID, unit string) map[string]interface{} {
	payload := map[string]interface{}{
		keyName:                name,
		keyStateTopic:          stateTopic,
		keyStateClass:          stateClassMeasurement,
		keyValueTemplate:       valueTemplate,
		keyJSONAttributesTopic: stateTopic,
	}
	if dc, ok := deviceClasses[unit]; ok {
		payload[keyDeviceClass] = dc[0]
		payload[keyUnitOfMeasurement] = dc[1]
	} else if unit != "" {
		payload[keyUnitOfMeasurement] = unit
	}
	if uniqueID != "" {
		payload[keyUniqueID] = uniqueID
	}
	return payload
}

// publishJSON publishes a retained discovery payload.
func (m *MQTTOutput) publishJSON(topic string, payload map[string]interface{}) error {
	b, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return m.PublishRaw(topic, b, true)
}
