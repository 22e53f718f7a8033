package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/annel0/lightstage/internal/eventbus"
	"github.com/annel0/lightstage/internal/scene"
	lssync "github.com/annel0/lightstage/internal/sync"
	"github.com/annel0/lightstage/internal/uniform"
)

const (
	defaultServerAddr = "http://localhost:8088"
	timeFormat        = "15:04:05.000"
)

func main() {
	var (
		command  = flag.String("cmd", "sanitize", "Command: sanitize, compile, push, tail")
		input    = flag.String("in", "-", "Preset file ('-' for stdin)")
		height   = flag.Float64("height", 1080, "Canvas height for compile")
		server   = flag.String("server", defaultServerAddr, "Control REST address for push")
		mode     = flag.String("mode", "import", "Push mode: import (active target) or broadcast (all targets)")
		natsURL  = flag.String("nats", "nats://127.0.0.1:4222", "NATS URL for tail")
		channel  = flag.String("channel", lssync.DefaultChannel, "Sync channel for tail")
		codec    = flag.String("codec", "json", "Wire codec for tail: json, gzip")
		attempts = flag.Duration("retry", 10*time.Second, "Max time to retry push")
	)
	flag.Parse()

	var err error
	switch *command {
	case "sanitize":
		err = sanitizePreset(*input, os.Stdout)
	case "compile":
		err = compilePreset(*input, *height, os.Stdout)
	case "push":
		err = pushPreset(*input, &PushOptions{Server: *server, Mode: *mode, MaxElapsed: *attempts})
	case "tail":
		err = tailChannel(*natsURL, *channel, *codec)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", *command)
		flag.Usage()
		os.Exit(2)
	}
	if err != nil {
		log.Fatalf("❌ %s failed: %v", *command, err)
	}
}

// PushOptions параметры отправки пресета на управляющий экземпляр
type PushOptions struct {
	Server     string
	Mode       string
	MaxElapsed time.Duration
}

func readInput(path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(os.Stdin)
	}
	return os.ReadFile(path)
}

func loadPreset(path string) (*scene.Scene, error) {
	data, err := readInput(path)
	if err != nil {
		return nil, err
	}
	return scene.Import(data)
}

// sanitizePreset печатает пресет после импорта: значения зажаты, id уникальны.
func sanitizePreset(path string, out io.Writer) error {
	s, err := loadPreset(path)
	if err != nil {
		return err
	}
	data, err := scene.MarshalPreset(s)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(out, string(data))
	return err
}

func compilePreset(path string, height float64, out io.Writer) error {
	if height <= 0 {
		return fmt.Errorf("height must be positive, got %v", height)
	}
	s, err := loadPreset(path)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(uniform.Compile(s, height).Uniforms())
}

func pushPreset(path string, opts *PushOptions) error {
	s, err := loadPreset(path)
	if err != nil {
		return err
	}
	body, err := scene.MarshalPreset(s)
	if err != nil {
		return err
	}

	var endpoint string
	switch opts.Mode {
	case "import":
		endpoint = "/api/preset"
	case "broadcast":
		endpoint = "/api/broadcast/apply"
	default:
		return fmt.Errorf("unknown push mode %q", opts.Mode)
	}
	url := strings.TrimRight(opts.Server, "/") + endpoint

	client := &http.Client{Timeout: 5 * time.Second}
	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = opts.MaxElapsed

	op := func() error {
		resp, err := client.Post(url, "application/json", bytes.NewReader(body))
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		msg, _ := io.ReadAll(resp.Body)
		switch {
		case resp.StatusCode < 300:
			return nil
		case resp.StatusCode < 500:
			// Ошибка клиента повтором не исправится
			return backoff.Permanent(fmt.Errorf("%s: %s", resp.Status, strings.TrimSpace(string(msg))))
		default:
			return fmt.Errorf("%s: %s", resp.Status, strings.TrimSpace(string(msg)))
		}
	}
	notify := func(err error, d time.Duration) {
		log.Printf("⚠️ push: %v, повтор через %v", err, d)
	}
	if err := backoff.RetryNotify(op, bo, notify); err != nil {
		return err
	}
	log.Printf("✅ Пресет отправлен: %d слоёв -> %s", s.Len(), url)
	return nil
}

// tailChannel печатает сообщения синхронизации из NATS до Ctrl+C.
func tailChannel(url, channel, codecName string) error {
	codec, err := lssync.CodecByName(codecName)
	if err != nil {
		return err
	}
	bus, err := eventbus.NewNATSBus(eventbus.NATSConfig{URL: url, Name: "scenectl"})
	if err != nil {
		return err
	}
	defer bus.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	sub, err := bus.Subscribe(ctx, channel, func(_ context.Context, data []byte) {
		msg, meta, err := lssync.Decode(data, codec)
		if err != nil {
			fmt.Printf("❌ %s  undecodable: %v\n", time.Now().Format(timeFormat), err)
			return
		}
		switch m := msg.(type) {
		case lssync.LiveState:
			fmt.Printf("📦 %s  %-12s target=%-6s seq=%-6d src=%s layers=%d\n",
				meta.SentAt.Format(timeFormat), m.Type(), m.TargetID, meta.Seq, meta.Source, m.Payload.Len())
		case lssync.RequestLive:
			fmt.Printf("🙋 %s  %-12s target=%-6s seq=%-6d src=%s\n",
				meta.SentAt.Format(timeFormat), m.Type(), m.TargetID, meta.Seq, meta.Source)
		}
	})
	if err != nil {
		return err
	}
	defer sub.Unsubscribe()

	fmt.Printf("📡 Слушаем %s на %s (Ctrl+C для выхода)\n", channel, url)
	<-ctx.Done()
	return nil
}
