package mqtt_middleware

import (
	"testing"

	"github.com/benmeehan/irc-conntrack/internal/mocks"
	mqttLib "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func TestChainOrder(t *testing.T) {
	var calls []string
	record := func(name string) MessageMiddleware {
		return func(next mqttLib.MessageHandler) mqttLib.MessageHandler {
			return func(c mqttLib.Client, m mqttLib.Message) {
				calls = append(calls, name)
				next(c, m)
			}
		}
	}

	handler := Chain(func(mqttLib.Client, mqttLib.Message) {
		calls = append(calls, "handler")
	}, record("first"), nil, record("second"))

	handler(nil, mocks.NewMockMessage("t", nil))
	assert.Equal(t, []string{"first", "second", "handler"}, calls)
}

func TestRecover(t *testing.T) {
	handler := Chain(func(mqttLib.Client, mqttLib.Message) {
		panic("boom")
	}, Recover(zerolog.Nop()))

	assert.NotPanics(t, func() {
		handler(nil, mocks.NewMockMessage("t", []byte{1}))
	})
}

func TestLimitPayload(t *testing.T) {
	var handled int
	var rejected []string
	handler := Chain(func(mqttLib.Client, mqttLib.Message) {
		handled++
	}, LimitPayload(4, func(topic string) { rejected = append(rejected, topic) }))

	handler(nil, mocks.NewMockMessage("ok", []byte{1, 2, 3, 4}))
	handler(nil, mocks.NewMockMessage("big", []byte{1, 2, 3, 4, 5}))

	assert.Equal(t, 1, handled)
	assert.Equal(t, []string{"big"}, rejected)
}
