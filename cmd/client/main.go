package main

import (
	"bufio"
	"chat-relay/client"
	"chat-relay/envelope"
	"chat-relay/errors"
	"chat-relay/event"
	"chat-relay/storage"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/Netflix/go-env"
	"github.com/gookit/color"
	"github.com/mama165/sdk-go/logs"
)

// Exit codes for the client application.
const (
	exitOK      = 0
	exitRuntime = 1
	exitConfig  = 2
)

// Config defines the client-side environment variables.
type Config struct {
	ServerURL     string `env:"RELAY_URL,default=http://localhost:8080"`
	ClientID      string `env:"CLIENT_ID,required=true"`
	ClientSecret  string `env:"CLIENT_SECRET,required=true"`
	EncryptionKey string `env:"ENCRYPTION_KEY,required=true"`
	Token         string `env:"RELAY_TOKEN,required=true"`
	ChannelID     string `env:"CHANNEL_ID,default=general"`
	LogLevel      string `env:"LOG_LEVEL,default=INFO"`
}

func main() {
	code, err := run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Client error: %v\n", err)
	}
	os.Exit(code)
}

// run joins one channel, prints what arrives and sends every stdin line as
// a message.
func run() (int, error) {
	var config Config
	if _, err := env.UnmarshalFromEnviron(&config); err != nil {
		return exitConfig, fmt.Errorf("config error: %w", err)
	}
	codec, err := envelope.NewCodec(config.EncryptionKey)
	if err != nil {
		return exitConfig, err
	}
	log := logs.GetLoggerFromString(config.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	c := client.New(client.Config{BaseURL: config.ServerURL, ClientID: config.ClientID, Secret: config.ClientSecret}, codec)
	session, _, err := c.Dial(ctx, config.Token)
	if err != nil {
		return exitRuntime, err
	}
	defer func() {
		log.Info("Closing connection...")
		_ = session.Close()
	}()

	if err := session.Send(event.JoinChannelEvent, event.JoinChannel{ChannelID: config.ChannelID}); err != nil {
		return exitRuntime, err
	}
	log.Info("Connected, type a message and press enter (Ctrl+C to quit)", "url", config.ServerURL, "channel_id", config.ChannelID)

	go func() {
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if line == "" {
				continue
			}
			err := session.Send(event.SendMessageEvent, event.SendMessage{
				TargetKind: event.Channel, TargetID: config.ChannelID, Content: line,
			})
			if err != nil {
				log.Error("Send failed", "error", err)
				stop()
				return
			}
		}
	}()

	received := make(chan client.Message)
	readErr := make(chan error, 1)
	go func() {
		for {
			msg, err := session.Receive()
			if err != nil {
				readErr <- err
				return
			}
			received <- msg
		}
	}()

	for {
		select {
		case <-ctx.Done():
			log.Info("Stopping client...")
			return exitOK, nil
		case err := <-readErr:
			if ctx.Err() != nil {
				return exitOK, nil
			}
			return exitRuntime, fmt.Errorf("connection error: %w", err)
		case msg := <-received:
			render(msg)
		}
	}
}

func render(msg client.Message) {
	switch msg.Event {
	case string(event.NewMessageEvent):
		var m storage.Message
		if err := msg.Decode(&m); err != nil {
			return
		}
		fmt.Printf("[%s] %s: %s\n",
			m.CreatedAt.Local().Format(time.TimeOnly),
			color.New(color.FgCyan, color.OpBold).Render(m.AuthorID),
			m.Content)
	case string(event.ErrorEvent):
		var resp errors.Response
		if err := msg.Decode(&resp); err != nil {
			return
		}
		color.Red.Printf("! %s (%d)\n", resp.Message, resp.StatusCode)
	default:
		color.FgDarkGray.Printf("* %s %s\n", msg.Event, string(msg.Data))
	}
}
