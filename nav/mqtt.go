package nav

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// Command actions accepted on {prefix}/cmd
const (
	ActionLocalize = "localize"
	ActionDemo     = "demo"
	ActionTravel   = "travel"
	ActionStop     = "stop"
)

// Command is a remote request to the robot
type Command struct {
	Action string  `json:"action"`
	Policy string  `json:"policy,omitempty"`
	X      float64 `json:"x,omitempty"`
	Y      float64 `json:"y,omitempty"`
}

// CommandHandler is called for every valid command received
type CommandHandler func(cmd Command)

// ParseCommand accepts a JSON object ({"action":"travel","x":15,"y":45}) or a
// plain-text line ("localize stochastic", "travel 15 45").
func ParseCommand(payload []byte) (Command, error) {
	text := strings.TrimSpace(string(payload))
	if text == "" {
		return Command{}, fmt.Errorf("empty command")
	}

	var cmd Command
	if strings.HasPrefix(text, "{") {
		if err := json.Unmarshal([]byte(text), &cmd); err != nil {
			return Command{}, fmt.Errorf("parsing command JSON: %w", err)
		}
	} else {
		fields := strings.Fields(text)
		cmd.Action = fields[0]
		args := fields[1:]
		switch strings.ToLower(cmd.Action) {
		case ActionLocalize:
			if len(args) > 0 {
				cmd.Policy = args[0]
			}
		case ActionTravel:
			if len(args) != 2 {
				return Command{}, fmt.Errorf("travel needs x and y, got %q", text)
			}
			x, errX := strconv.ParseFloat(args[0], 64)
			y, errY := strconv.ParseFloat(args[1], 64)
			if errX != nil || errY != nil {
				return Command{}, fmt.Errorf("travel coordinates must be numbers, got %q", text)
			}
			cmd.X, cmd.Y = x, y
		}
	}

	cmd.Action = strings.ToLower(strings.TrimSpace(cmd.Action))
	switch cmd.Action {
	case ActionLocalize:
		if _, err := ParsePolicy(cmd.Policy); err != nil {
			return Command{}, err
		}
	case ActionDemo, ActionTravel, ActionStop:
	default:
		return Command{}, fmt.Errorf("unknown command %q", cmd.Action)
	}
	return cmd, nil
}

// MQTTClient manages the broker connection and the command subscription
type MQTTClient struct {
	client       mqtt.Client
	commandTopic string
	handler      CommandHandler
	isConnected  bool
	done         chan struct{}
	closeOnce    sync.Once
	mu           sync.RWMutex
}

// InitMQTT connects to the broker named by MQTT_BROKER or the config. If
// neither is set, MQTT is disabled and this returns nil.
func InitMQTT(config *Config, handler CommandHandler) (*MQTTClient, error) {
	broker := os.Getenv("MQTT_BROKER")
	if broker == "" && config != nil {
		broker = config.MQTT.Broker
	}

	if broker == "" {
		log.Println("[MQTT] Disabled: MQTT_BROKER not set")
		return nil, nil
	}
	if config == nil {
		return nil, fmt.Errorf("MQTT enabled but no configuration provided")
	}

	prefix := NewPublisher(nil, config.MQTT.PublishPrefix).Prefix()
	client := newMQTTClient(nil, prefix, handler)

	opts := mqtt.NewClientOptions()
	opts.AddBroker(broker)

	clientID := os.Getenv("MQTT_CLIENT_ID")
	if clientID == "" {
		clientID = config.MQTT.ClientID
	}
	if clientID == "" {
		clientID = DefaultPublishPrefix
	}
	opts.SetClientID(clientID)

	username := os.Getenv("MQTT_USERNAME")
	if username == "" {
		username = config.MQTT.Username
	}
	if username != "" {
		opts.SetUsername(username)
		password := os.Getenv("MQTT_PASSWORD")
		if password == "" {
			password = config.MQTT.Password
		}
		opts.SetPassword(password)
	}

	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(5 * time.Second)
	opts.SetMaxReconnectInterval(60 * time.Second)
	opts.SetKeepAlive(60 * time.Second)
	opts.SetPingTimeout(10 * time.Second)
	opts.SetCleanSession(false)
	// Commands must run in arrival order
	opts.SetOrderMatters(true)

	opts.SetOnConnectHandler(client.onConnect)
	opts.SetConnectionLostHandler(client.onConnectionLost)
	opts.SetReconnectingHandler(client.onReconnecting)

	client.client = mqtt.NewClient(opts)

	go client.connectWithRetry()

	return client, nil
}

func newMQTTClient(client mqtt.Client, prefix string, handler CommandHandler) *MQTTClient {
	return &MQTTClient{
		client:       client,
		commandTopic: prefix + "/cmd",
		handler:      handler,
		done:         make(chan struct{}),
	}
}

// connectWithRetry attempts to connect to the MQTT broker with exponential
// backoff until it succeeds or Disconnect is called.
func (c *MQTTClient) connectWithRetry() {
	retryDelay := 1 * time.Second
	maxRetryDelay := 60 * time.Second

	for {
		log.Println("[MQTT] Connecting to broker...")

		token := c.client.Connect()
		if token.WaitTimeout(10 * time.Second) {
			if token.Error() == nil {
				log.Println("[MQTT] Connected to broker")
				c.setConnected(true)
				return
			}
			log.Printf("[MQTT] Connection failed: %v", token.Error())
		} else {
			log.Println("[MQTT] Connection timeout")
		}

		log.Printf("[MQTT] Retrying connection in %v...", retryDelay)
		select {
		case <-c.done:
			return
		case <-time.After(retryDelay):
		}
		retryDelay *= 2
		if retryDelay > maxRetryDelay {
			retryDelay = maxRetryDelay
		}
	}
}

// onConnect subscribes to the command topic
func (c *MQTTClient) onConnect(client mqtt.Client) {
	c.setConnected(true)

	log.Printf("[MQTT] Subscribing to %s", c.commandTopic)
	token := client.Subscribe(c.commandTopic, 1, c.handleCommand)
	if token.WaitTimeout(5*time.Second) && token.Error() != nil {
		log.Printf("[MQTT] Error subscribing to %s: %v", c.commandTopic, token.Error())
	}
}

func (c *MQTTClient) onConnectionLost(client mqtt.Client, err error) {
	log.Printf("[MQTT] Connection interrupted (%v), auto-reconnect will retry", err)
	c.setConnected(false)
}

func (c *MQTTClient) onReconnecting(client mqtt.Client, opts *mqtt.ClientOptions) {
	log.Println("[MQTT] Reconnecting...")
}

func (c *MQTTClient) handleCommand(client mqtt.Client, msg mqtt.Message) {
	cmd, err := ParseCommand(msg.Payload())
	if err != nil {
		log.Printf("[MQTT] Ignoring command on %s: %v", msg.Topic(), err)
		return
	}
	log.Printf("[MQTT] Received command %q", cmd.Action)
	if c.handler != nil {
		c.handler(cmd)
	}
}

// CommandTopic returns the subscribed command topic
func (c *MQTTClient) CommandTopic() string {
	return c.commandTopic
}

// IsConnected returns true if the MQTT client is connected
func (c *MQTTClient) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.isConnected
}

func (c *MQTTClient) setConnected(connected bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.isConnected = connected
}

// Disconnect stops reconnect attempts and closes the connection
func (c *MQTTClient) Disconnect() {
	c.closeOnce.Do(func() { close(c.done) })
	if c.client != nil && c.client.IsConnected() {
		log.Println("[MQTT] Disconnecting from broker...")
		c.client.Disconnect(250)
		c.setConnected(false)
	}
}

// GetClient returns the underlying MQTT client for publishing
func (c *MQTTClient) GetClient() mqtt.Client {
	return c.client
}
