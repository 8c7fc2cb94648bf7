// Command charla is an interactive conversation client. It connects a live
// session to the backend, streams microphone audio upstream, plays the
// synthesized replies, and lets you type messages on stdin.
//
// Configuration comes from the environment:
//
//	CHARLA_WS_URL          WebSocket endpoint (default ws://localhost:8000/ws/chat/)
//	CHARLA_API_URL         REST base URL (default http://localhost:8000)
//	CHARLA_TOKEN           access token (optional)
//	CHARLA_CHARACTER_ID    character persona (required)
//	CHARLA_CONVERSATION_ID conversation to resume (optional)
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"golang.org/x/oauth2"

	"github.com/vozlab/go-charla/internal/config"
	"github.com/vozlab/go-charla/internal/log"
	"github.com/vozlab/go-charla/pkg/audioio"
	"github.com/vozlab/go-charla/pkg/poller"
	"github.com/vozlab/go-charla/pkg/session"
	"github.com/vozlab/go-charla/pkg/transcript"
	"github.com/vozlab/go-charla/pkg/transport"
	"github.com/vozlab/go-charla/pkg/web"
)

func main() {
	var (
		audioFlag     = flag.String("audio", "mock", "audio backend: mock, or pipe (PCM16 on stdin/stdout; disables text input)")
		voiceFlag     = flag.Bool("voice", true, "capture and send microphone audio")
		mutedFlag     = flag.Bool("muted", false, "start with the microphone muted")
		dashboardFlag = flag.String("dashboard", "", "serve the status dashboard on this port (empty = off)")
		levelFlag     = flag.String("log", "info", "log level: debug, info, warn, error")
	)
	flag.Parse()

	log.Init(*levelFlag)
	logger := log.L()

	characterID := config.CharacterIDRequired()
	conversationID := config.ConversationID(uuid.NewString())

	var tokens oauth2.TokenSource
	if tok := config.Token(); tok != "" {
		tokens = oauth2.StaticTokenSource(&oauth2.Token{AccessToken: tok})
	}

	backend, err := transport.NewWebSocket(
		transport.WithURL(config.WSURL()),
		transport.WithCharacterID(characterID),
		transport.WithConversationID(conversationID),
		transport.WithTokenSource(tokens),
		transport.WithLogger(logger),
	)
	if err != nil {
		log.Error("transport setup failed", "error", err)
		os.Exit(1)
	}

	history := transcript.New(0)
	restClient := poller.NewClient(config.APIURL(), tokens)
	fallback := poller.New(restClient, history, poller.WithLogger(logger))

	// The dashboard is created after the session but receives events from
	// its callbacks, so route through a late-bound pointer.
	var dash *web.Server

	opts := []session.Option{
		session.WithTranscript(history),
		session.WithPoller(fallback),
		session.WithLogger(logger),
		session.OnStatus(func(status string) {
			fmt.Printf("\r[%s]\n> ", status)
			if dash != nil {
				dash.PublishStatus(status)
			}
		}),
		session.OnTranscript(func(entry transcript.Entry) {
			if !entry.Partial {
				fmt.Printf("\r%s: %s\n> ", entry.Role, entry.Content)
			}
			if dash != nil {
				dash.PublishTranscript(entry)
			}
		}),
	}

	pipeMode := *voiceFlag && *audioFlag == "pipe"
	if *voiceFlag {
		source, sink, err := buildAudio(*audioFlag)
		if err != nil {
			log.Error("audio setup failed", "error", err)
			os.Exit(1)
		}
		defer source.Close()
		defer sink.Close()
		opts = append(opts, session.WithSource(source), session.WithSink(sink))
	}

	sess := session.New(backend, opts...)
	sess.SetMuted(*mutedFlag)

	if *dashboardFlag != "" {
		dash = web.NewServer(*dashboardFlag, sess, logger)
		dash.StartAsync()
		defer dash.Shutdown()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	hydrate(ctx, restClient, history, conversationID)

	if err := sess.Connect(ctx); err != nil {
		log.Error("connect failed", "error", err)
		os.Exit(1)
	}
	defer sess.Disconnect()

	if pipeMode {
		// Stdin belongs to the audio pipe; run until interrupted.
		log.Info("voice session running, ctrl-c to stop")
		<-ctx.Done()
		return
	}

	fmt.Println("Connected. Type a message and press enter; /mute, /unmute, /quit.")
	fmt.Print("> ")

	lines := make(chan string)
	go readLines(lines)

	for {
		select {
		case <-ctx.Done():
			fmt.Println("\nshutting down")
			return
		case line, ok := <-lines:
			if !ok {
				return
			}
			switch line {
			case "":
			case "/quit":
				return
			case "/mute":
				sess.SetMuted(true)
				fmt.Println("microphone muted")
			case "/unmute":
				sess.SetMuted(false)
				fmt.Println("microphone live")
			default:
				if err := sess.SendText(line); err != nil {
					log.Error("send failed", "error", err)
					continue
				}
				// If the live push stays quiet, fall back to polling.
				go awaitFallback(ctx, sess, *voiceFlag)
			}
			fmt.Print("> ")
		}
	}
}

// buildAudio constructs the capture source and playback sink.
func buildAudio(backend string) (audioio.Source, audioio.Sink, error) {
	srcCfg := audioio.DefaultConfig()
	srcCfg.SampleRate = audioio.CaptureRate

	sinkCfg := audioio.DefaultConfig()
	sinkCfg.SampleRate = audioio.PlaybackRate

	switch backend {
	case "pipe":
		srcCfg.Backend = audioio.BackendPipe
		sinkCfg.Backend = audioio.BackendPipe
		return audioio.NewPipeSource(srcCfg, os.Stdin, log.L()),
			audioio.NewPipeSink(sinkCfg, os.Stdout, log.L()), nil
	case "mock":
		srcCfg.Backend = audioio.BackendMock
		sinkCfg.Backend = audioio.BackendMock
		return audioio.NewMockSource(srcCfg, log.L()),
			audioio.NewMockSink(sinkCfg, log.L()), nil
	default:
		return nil, nil, fmt.Errorf("unknown audio backend %q", backend)
	}
}

// hydrate preloads the transcript with whatever the backend already has for
// this conversation, so resuming shows history immediately.
func hydrate(ctx context.Context, client *poller.Client, history *transcript.Log, convID string) {
	hctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	conv, err := client.FetchConversation(hctx, convID)
	if err != nil {
		// A brand-new conversation has nothing to hydrate.
		log.Debug("hydration skipped", "error", err)
		return
	}
	for _, msg := range conv.Messages {
		history.Merge(transcript.Entry{ID: msg.ID, Role: msg.Role, Content: msg.Content})
	}
	log.Info("transcript hydrated", "entries", history.Len())
}

// awaitFallback polls for a response when the socket push is delayed.
func awaitFallback(ctx context.Context, sess *session.Session, voice bool) {
	pctx, cancel := context.WithTimeout(ctx, 35*time.Second)
	defer cancel()

	if _, err := sess.AwaitResponse(pctx, voice); err != nil {
		log.Debug("fallback poll ended", "error", err)
	}
}

func readLines(out chan<- string) {
	defer close(out)
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		out <- scanner.Text()
	}
}
