package registry

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/angelmondragon/agencyhub-backend/pkg/enums"
)

type decoderFunc func(payload json.RawMessage) (any, error)

type decoderKey struct {
	eventType enums.OutboxEventType
	version   int
}

// DecoderRegistry holds versioned payload decoders on the consuming side.
type DecoderRegistry struct {
	mu       sync.RWMutex
	decoders map[decoderKey]decoderFunc
}

func NewDecoderRegistry() *DecoderRegistry {
	return &DecoderRegistry{decoders: make(map[decoderKey]decoderFunc)}
}

// NewContractDecoders registers a v1 decoder per contract event.
func NewContractDecoders() *DecoderRegistry {
	reg := NewDecoderRegistry()
	for eventType, factory := range contractEvents {
		reg.Register(eventType, 1, jsonDecoder(factory))
	}
	return reg
}

func jsonDecoder(factory func() any) decoderFunc {
	return func(payload json.RawMessage) (any, error) {
		decoded := factory()
		if err := json.Unmarshal(payload, decoded); err != nil {
			return nil, err
		}
		return decoded, nil
	}
}

func (r *DecoderRegistry) Register(eventType enums.OutboxEventType, version int, decoder decoderFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.decoders[decoderKey{eventType, version}] = decoder
}

// Decode fails for an event type or version nobody registered.
func (r *DecoderRegistry) Decode(eventType enums.OutboxEventType, version int, payload json.RawMessage) (any, error) {
	r.mu.RLock()
	decoder, ok := r.decoders[decoderKey{eventType, version}]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("decoder not registered for %s@v%d", eventType, version)
	}
	return decoder(payload)
}
