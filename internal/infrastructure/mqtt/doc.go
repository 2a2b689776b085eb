// Package mqtt provides the broker session used by the fireplace bridge.
//
// This package manages:
//   - Connection to the broker with fixed-delay, unbounded retry
//   - Reconnection after session loss, stopping only on shutdown
//   - Re-subscription after every reconnect (clean sessions)
//   - Last Will and Testament for offline detection
//   - Message publishing with QoS and retain control
//
// # Session policy
//
// paho's built-in auto-reconnect uses exponential backoff. The bridge needs
// a fixed delay between attempts (5s by default), so auto-reconnect is off
// and Client runs its own loop. After each successful connect the on-connect
// callback runs before subscriptions are restored.
//
// # Usage
//
//	client := mqtt.NewClient(cfg.MQTT, &mqtt.Will{Topic: statusTopic, Payload: "offline", Retained: true})
//	client.SetOnConnect(func() { publishMeta() })
//	if err := client.Connect(ctx); err != nil {
//	    return err
//	}
//	defer client.Close(nil)
//
//	err := client.Subscribe("/devices/fireplace/controls/+/on", 0,
//	    func(topic string, payload []byte) error {
//	        return handle(topic, payload)
//	    })
package mqtt
