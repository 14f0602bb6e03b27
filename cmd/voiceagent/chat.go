package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/BaSui01/voiceagent/agent/playback"
	"github.com/BaSui01/voiceagent/agent/voice"
	"github.com/BaSui01/voiceagent/api"
	"github.com/BaSui01/voiceagent/config"
	"github.com/BaSui01/voiceagent/types"
)

const defaultPlayer = "ffplay -nodisp -autoexit -loglevel quiet"

// playCommand 手动播放最近一条被拦截的回复
const playCommand = "/play"

// chatBackend 执行一轮对话
type chatBackend interface {
	Send(ctx context.Context, text string) (*api.MessageResponse, error)
	Close() error
}

// =============================================================================
// 💬 chat 命令
// =============================================================================

func runChat(args []string) int {
	fs := flag.NewFlagSet("chat", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to config file")
	connect := fs.String("connect", "", "WebSocket URL of a running server")
	sessionID := fs.String("session", "", "Session id")
	player := fs.String("player", defaultPlayer, "Audio player command")
	autoplay := fs.Bool("autoplay", true, "Play replies as they arrive")
	logLevel := fs.String("log-level", "warn", "Log level")
	_ = fs.Parse(args)

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}

	// 日志写到 stderr，不打断对话输出
	logger := initLogger(config.LogConfig{Level: *logLevel, Format: "console", OutputPaths: []string{"stderr"}})
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	c := &chatSession{
		persona: cfg.Agent.PersonaName,
		out:     os.Stdout,
		logger:  logger,
	}
	c.coord = playback.NewCoordinator(
		playback.NewCommandOutput(*player, *autoplay, logger),
		playback.WithFetcher(playback.NewHTTPFetcher(cfg.Synthesis.Timeout)),
		playback.WithObserver(c.onTransition),
		playback.WithLogger(logger),
	)

	if *connect != "" {
		remote, err := dialRemote(ctx, *connect, *sessionID)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to connect: %v\n", err)
			return 1
		}
		c.backend = remote
		if remote.status.Persona != "" {
			c.persona = remote.status.Persona
		}
		fmt.Fprintf(c.out, "Connected to %s (session %s)\n", *connect, remote.status.SessionID)
	} else {
		p, err := buildPipeline(cfg, nil, logger)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to build pipeline: %v\n", err)
			return 1
		}
		defer func() { _ = p.Close() }()
		c.persona = p.fallback.Persona()
		c.backend = newLocalChat(p, *sessionID)
		c.greet(ctx, p)
	}
	defer func() { _ = c.backend.Close() }()

	if err := c.run(ctx, os.Stdin); err != nil && !errors.Is(err, context.Canceled) {
		fmt.Fprintf(os.Stderr, "chat: %v\n", err)
		return 1
	}
	return 0
}

// chatSession 终端对话循环
type chatSession struct {
	backend chatBackend
	coord   *playback.Coordinator
	persona string
	out     io.Writer
	logger  *zap.Logger

	plays errgroup.Group
}

// run 逐行读取输入直到 EOF、ctx 结束或会话以结束语收尾
func (c *chatSession) run(ctx context.Context, in io.Reader) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()
	defer func() { _ = c.plays.Wait() }()

	for {
		fmt.Fprint(c.out, "You: ")
		var line string
		select {
		case <-ctx.Done():
			fmt.Fprintln(c.out)
			return ctx.Err()
		case l, ok := <-lines:
			if !ok {
				fmt.Fprintln(c.out)
				return nil
			}
			line = strings.TrimSpace(l)
		}

		switch line {
		case "":
			continue
		case playCommand:
			c.replay(ctx)
			continue
		}

		resp, err := c.backend.Send(ctx, line)
		if err != nil {
			// 轮次级错误不结束对话，连接错误才结束
			var te *types.Error
			if !errors.As(err, &te) {
				return err
			}
			fmt.Fprintf(c.out, "  (%s)\n", te.Message)
			if te.Code == types.ErrSessionClosed {
				return nil
			}
			continue
		}
		fmt.Fprintf(c.out, "%s: %s\n", c.persona, resp.AIResponse)
		c.arrive(ctx, resp.Seq, resp.Speech, nil)

		if resp.Exit {
			return nil
		}
	}
}

// greet 播报开场白，不计入会话历史
func (c *chatSession) greet(ctx context.Context, p *pipeline) {
	text := p.fallback.Respond("hello", nil)
	fmt.Fprintf(c.out, "%s: %s\n", c.persona, text)
	res := p.synthesis.Synthesize(ctx, text)
	c.arrive(ctx, 0, api.NewSpeechInfo(res), res.AudioData)
}

func (c *chatSession) arrive(ctx context.Context, seq int, speech api.SpeechInfo, data []byte) {
	if !speech.Success {
		if speech.Error != "" && speech.Error != voice.DetailNotConfigured {
			fmt.Fprintf(c.out, "  (no audio: %s)\n", speech.Error)
		}
		return
	}
	clip := playback.Clip{Seq: seq, URL: speech.AudioURL, Data: data}
	if err := c.coord.Arrive(clip); err != nil {
		c.logger.Warn("clip rejected", zap.Int("seq", seq), zap.Error(err))
		return
	}
	c.plays.Go(func() error {
		if _, err := c.coord.Play(ctx, seq); err != nil {
			c.logger.Debug("playback ended with error", zap.Int("seq", seq), zap.Error(err))
		}
		return nil
	})
}

func (c *chatSession) replay(ctx context.Context) {
	seq, ok := c.coord.LastBlocked()
	if !ok {
		fmt.Fprintln(c.out, "  (nothing to play)")
		return
	}
	if _, err := c.coord.Retry(ctx, seq); err != nil {
		fmt.Fprintf(c.out, "  (playback failed: %v)\n", err)
	}
}

func (c *chatSession) onTransition(seq int, _, to playback.State) {
	switch to {
	case playback.StateBlocked:
		fmt.Fprintf(c.out, "  (audio ready, type %s to listen)\n", playCommand)
	case playback.StateErrored:
		fmt.Fprintln(c.out, "  (audio could not be played)")
	}
}

// =============================================================================
// 本地流水线
// =============================================================================

type localChat struct {
	registry  *voice.Registry
	sessionID string
}

func newLocalChat(p *pipeline, sessionID string) *localChat {
	if sessionID == "" {
		sessionID = voice.NewSessionID()
	}
	return &localChat{registry: p.registry, sessionID: sessionID}
}

func (l *localChat) Send(ctx context.Context, text string) (*api.MessageResponse, error) {
	res, err := l.registry.Submit(ctx, l.sessionID, text)
	if err != nil {
		return nil, err
	}
	resp := api.NewMessageResponse(res)
	return &resp, nil
}

func (l *localChat) Close() error {
	l.registry.Close(l.sessionID)
	return nil
}

// =============================================================================
// WebSocket 客户端
// =============================================================================

type remoteChat struct {
	conn      *websocket.Conn
	sessionID string
	status    api.StatusEvent
}

// dialRemote 连接服务器并读取首个 status 事件
func dialRemote(ctx context.Context, url, sessionID string) (*remoteChat, error) {
	conn, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		return nil, err
	}
	r := &remoteChat{conn: conn, sessionID: sessionID}
	if err := wsjson.Read(ctx, conn, &r.status); err != nil {
		_ = conn.CloseNow()
		return nil, fmt.Errorf("read status: %w", err)
	}
	if r.status.Type != api.EventStatus {
		_ = conn.CloseNow()
		return nil, fmt.Errorf("unexpected first event %q", r.status.Type)
	}
	if sessionID != "" {
		r.status.SessionID = sessionID
	}
	return r, nil
}

// Send 发送一条消息并等待对应的回复或错误事件
func (r *remoteChat) Send(ctx context.Context, text string) (*api.MessageResponse, error) {
	msg := api.ClientMessage{Type: api.EventSendMessage, Message: text, SessionID: r.sessionID}
	if err := wsjson.Write(ctx, r.conn, msg); err != nil {
		return nil, err
	}

	for {
		var raw json.RawMessage
		if err := wsjson.Read(ctx, r.conn, &raw); err != nil {
			return nil, err
		}
		var head struct {
			Type string `json:"type"`
		}
		if err := json.Unmarshal(raw, &head); err != nil {
			return nil, err
		}

		switch head.Type {
		case api.EventMessageResponse:
			var resp api.MessageResponse
			if err := json.Unmarshal(raw, &resp); err != nil {
				return nil, err
			}
			return &resp, nil
		case api.EventError:
			var ev api.ErrorEvent
			if err := json.Unmarshal(raw, &ev); err != nil {
				return nil, err
			}
			return nil, types.NewError(types.ErrorCode(ev.Code), ev.Message)
		default:
			// status 等通知事件不属于本轮
		}
	}
}

func (r *remoteChat) Close() error {
	return r.conn.Close(websocket.StatusNormalClosure, "bye")
}
