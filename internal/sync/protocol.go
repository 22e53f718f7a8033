package sync

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/annel0/lightstage/internal/scene"
)

// MessageType тег варианта сообщения на проводе.
type MessageType string

const (
	TypeLiveState   MessageType = "LIVE_STATE"
	TypeRequestLive MessageType = "REQUEST_LIVE"
)

var (
	// ErrUnknownType сообщение неизвестного типа.
	ErrUnknownType = errors.New("unknown message type")
	// ErrBadPayload полезная нагрузка не декодируется в сцену.
	ErrBadPayload = errors.New("bad message payload")
)

// Message закрытое множество сообщений протокола.
type Message interface {
	Type() MessageType
	isMessage()
}

// LiveState полный снимок сцены для цели TargetID ("all" для всех).
type LiveState struct {
	TargetID string
	Payload  *scene.Scene
}

// RequestLive просьба прислать текущее состояние цели.
type RequestLive struct {
	TargetID string
}

func (LiveState) Type() MessageType   { return TypeLiveState }
func (RequestLive) Type() MessageType { return TypeRequestLive }
func (LiveState) isMessage()          {}
func (RequestLive) isMessage()        {}

// Meta служебные поля конверта.
type Meta struct {
	ID     string
	Source string
	Seq    uint64
	SentAt time.Time
}

// Envelope JSON-представление сообщения на проводе.
type Envelope struct {
	Type     MessageType     `json:"type"`
	TargetID string          `json:"targetId"`
	Payload  json.RawMessage `json:"payload,omitempty"`
	ID       string          `json:"id,omitempty"`
	Source   string          `json:"source,omitempty"`
	Seq      uint64          `json:"seq,omitempty"`
	SentAt   time.Time       `json:"sentAt"`
}

// Encode собирает конверт и кодирует его.
func Encode(msg Message, meta Meta, codec Codec) ([]byte, error) {
	env := Envelope{
		Type:   msg.Type(),
		ID:     meta.ID,
		Source: meta.Source,
		Seq:    meta.Seq,
		SentAt: meta.SentAt.UTC(),
	}
	switch m := msg.(type) {
	case LiveState:
		env.TargetID = m.TargetID
		payload, err := scene.MarshalPreset(m.Payload)
		if err != nil {
			return nil, err
		}
		env.Payload = payload
	case RequestLive:
		env.TargetID = m.TargetID
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnknownType, msg)
	}

	raw, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("marshal envelope: %w", err)
	}
	if codec == nil {
		return raw, nil
	}
	return codec.Encode(raw)
}

// Decode разбирает конверт. Полезная нагрузка LIVE_STATE проходит импорт
// пресета, то есть санитизацию: получатель никогда не видит сырой сцены.
func Decode(data []byte, codec Codec) (Message, Meta, error) {
	raw := data
	if codec != nil {
		var err error
		if raw, err = codec.Decode(data); err != nil {
			return nil, Meta{}, fmt.Errorf("decode frame: %w", err)
		}
	}

	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, Meta{}, fmt.Errorf("unmarshal envelope: %w", err)
	}
	meta := Meta{ID: env.ID, Source: env.Source, Seq: env.Seq, SentAt: env.SentAt}

	switch env.Type {
	case TypeLiveState:
		if len(env.Payload) == 0 {
			return nil, meta, fmt.Errorf("%w: empty", ErrBadPayload)
		}
		s, err := scene.Import(env.Payload)
		if err != nil {
			return nil, meta, fmt.Errorf("%w: %v", ErrBadPayload, err)
		}
		return LiveState{TargetID: env.TargetID, Payload: s}, meta, nil
	case TypeRequestLive:
		return RequestLive{TargetID: env.TargetID}, meta, nil
	default:
		return nil, meta, fmt.Errorf("%w: %q", ErrUnknownType, env.Type)
	}
}
