package mqtt_middleware

import (
	mqttLib "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"
)

// Chain wraps handler with middlewares. The first middleware sees each message first.
func Chain(handler mqttLib.MessageHandler, middlewares ...MessageMiddleware) mqttLib.MessageHandler {
	for i := len(middlewares) - 1; i >= 0; i-- {
		if middlewares[i] != nil {
			handler = middlewares[i](handler)
		}
	}
	return handler
}

// Recover stops a panicking handler from taking down the MQTT client's router goroutine.
func Recover(logger zerolog.Logger) MessageMiddleware {
	return func(next mqttLib.MessageHandler) mqttLib.MessageHandler {
		return func(client mqttLib.Client, msg mqttLib.Message) {
			defer func() {
				if r := recover(); r != nil {
					logger.Error().Interface("panic", r).Str("topic", msg.Topic()).Msg("MQTT message handler panicked")
				}
			}()
			next(client, msg)
		}
	}
}

// LimitPayload drops messages whose payload exceeds max bytes. onReject, when set,
// is called with the topic of each dropped message.
func LimitPayload(max int, onReject func(topic string)) MessageMiddleware {
	return func(next mqttLib.MessageHandler) mqttLib.MessageHandler {
		return func(client mqttLib.Client, msg mqttLib.Message) {
			if len(msg.Payload()) > max {
				if onReject != nil {
					onReject(msg.Topic())
				}
				return
			}
			next(client, msg)
		}
	}
}
