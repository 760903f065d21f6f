// Package mqtt_middleware wraps the handlers of MQTT subscriptions with reusable
// message middlewares.
package mqtt_middleware

import mqttLib "github.com/eclipse/paho.mqtt.golang"

// MessageMiddleware decorates a subscription callback.
type MessageMiddleware func(next mqttLib.MessageHandler) mqttLib.MessageHandler
