package mqtt

import (
	"log"
	"strings"

	"qrng-gateway/internal/bitstream"
	"qrng-gateway/internal/metrics"
)

// Collector receives parsed measurement bits for downstream batching.
type Collector interface {
	AddBits(bits bitstream.Sequence)
	IncrementDropped(count uint32)
}

// RxHandler implements Handler by parsing raw MQTT payloads into measurement
// bit sequences and forwarding them to the configured Collector.
type RxHandler struct {
	Collector Collector
}

// OnMessage parses the raw MQTT payload, validates the resulting bit
// sequence, and forwards it to the Collector. Invalid or unparseable
// messages are counted as dropped.
//
// The device publishes one ASCII character per measurement outcome ('0' or
// '1'); a payload may carry any number of outcomes. Whitespace between
// characters is tolerated.
func (handler *RxHandler) OnMessage(topic string, payload []byte) {
	metrics.RecordMQTTMessage()

	// The acquisition system publishes status metadata on ".../meta".
	// This is intentionally excluded from the measurement stream.
	if isMetaTopic(topic) {
		return
	}

	bits, err := parseOutcomes(payload)
	if err != nil {
		metrics.RecordEventDropped("parse_error")
		log.Printf("parse error: %v", err)
		if handler.Collector != nil {
			handler.Collector.IncrementDropped(1)
		}
		return
	}

	if len(bits) == 0 {
		metrics.RecordEventDropped("empty_payload")
		if handler.Collector != nil {
			handler.Collector.IncrementDropped(1)
		}
		return
	}

	metrics.RecordBitsReceived(len(bits))

	if handler.Collector != nil {
		handler.Collector.AddBits(bits)
	} else {
		log.Printf("rx: topic=%s bits=%d", topic, len(bits))
	}
}

// isMetaTopic reports whether the topic carries non-measurement metadata.
func isMetaTopic(topic string) bool {
	return strings.HasSuffix(strings.ToLower(strings.TrimSpace(topic)), "/meta")
}

// parseOutcomes decodes an MQTT payload of ASCII '0'/'1' measurement
// outcomes into a bit sequence. Whitespace is ignored; any other character
// fails the whole payload.
func parseOutcomes(payload []byte) (bitstream.Sequence, error) {
	compact := strings.Join(strings.Fields(string(payload)), "")
	if compact == "" {
		return nil, nil
	}
	return bitstream.FromString(compact)
}
