package sync

import (
	"bytes"
	"fmt"
	"io"

	"github.com/klauspost/compress/gzip"
)

// Codec кодирует сериализованный конверт для транспорта.
// Обе стороны канала должны использовать один и тот же кодек.
type Codec interface {
	Name() string
	Encode(raw []byte) ([]byte, error)
	Decode(payload []byte) ([]byte, error)
}

type jsonCodec struct{}

// JSONCodec передаёт JSON-конверт как есть.
func JSONCodec() Codec { return jsonCodec{} }

func (jsonCodec) Name() string                          { return "json" }
func (jsonCodec) Encode(raw []byte) ([]byte, error)     { return raw, nil }
func (jsonCodec) Decode(payload []byte) ([]byte, error) { return payload, nil }

// gzipCodec сжимает JSON-конверт gzip'ом.
type gzipCodec struct {
	level int
}

// GzipCodec создаёт gzip-кодек. level из klauspost/compress/gzip
// (gzip.DefaultCompression, gzip.BestSpeed, ...).
func GzipCodec(level int) Codec { return gzipCodec{level: level} }

func (gzipCodec) Name() string { return "gzip" }

func (g gzipCodec) Encode(raw []byte) ([]byte, error) {
	var buf bytes.Buffer
	gz, err := gzip.NewWriterLevel(&buf, g.level)
	if err != nil {
		return nil, fmt.Errorf("gzip writer: %w", err)
	}
	if _, err := gz.Write(raw); err != nil {
		return nil, err
	}
	if err := gz.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (gzipCodec) Decode(payload []byte) ([]byte, error) {
	gz, err := gzip.NewReader(bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	defer gz.Close()
	return io.ReadAll(gz)
}

// CodecByName выбирает кодек по имени из конфигурации.
func CodecByName(name string) (Codec, error) {
	switch name {
	case "", "json":
		return JSONCodec(), nil
	case "gzip":
		return GzipCodec(gzip.DefaultCompression), nil
	default:
		return nil, fmt.Errorf("unknown codec %q", name)
	}
}
