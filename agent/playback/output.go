package playback

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/exec"
	"slices"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/voiceagent/internal/tlsutil"
)

// ErrAutoplayBlocked 宿主拒绝在没有用户操作时启动音频，由 AudioOutput.Enable 返回
var ErrAutoplayBlocked = errors.New("playback: autoplay blocked")

// maxClipBytes 单个下载片段的大小上限
const maxClipBytes = 32 << 20

// Clip 一个轮次的音频。Data 与 URL 同时存在时优先使用 Data。
type Clip struct {
	Seq    int
	URL    string
	Data   []byte
	Format string
}

// AudioOutput 共享的音频设备
type AudioOutput interface {
	// Enable 获取输出上下文，每个 Coordinator 至多成功调用一次
	Enable(ctx context.Context) error
	Play(ctx context.Context, clip Clip) error
}

// Fetcher 下载片段音频
type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// HTTPFetcher 通过 HTTP(S) 下载音频
type HTTPFetcher struct {
	Client *http.Client
}

// NewHTTPFetcher 使用加固的 HTTP 客户端创建下载器
func NewHTTPFetcher(timeout time.Duration) *HTTPFetcher {
	return &HTTPFetcher{Client: tlsutil.SecureHTTPClient(timeout)}
}

func (f *HTTPFetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := f.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch audio: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		return nil, fmt.Errorf("fetch audio: status %d", resp.StatusCode)
	}
	return io.ReadAll(io.LimitReader(resp.Body, maxClipBytes))
}

// CommandOutput 用外部播放器 (ffplay、mpv 等) 播放片段。
// 关闭 Autoplay 时 Enable 返回 ErrAutoplayBlocked，每个片段都等待手动播放。
type CommandOutput struct {
	Player   string
	Args     []string
	Autoplay bool
	Logger   *zap.Logger
}

// NewCommandOutput 解析播放器命令行，例如 "ffplay -nodisp -autoexit"
func NewCommandOutput(command string, autoplay bool, logger *zap.Logger) *CommandOutput {
	if logger == nil {
		logger = zap.NewNop()
	}
	fields := strings.Fields(command)
	out := &CommandOutput{Autoplay: autoplay, Logger: logger}
	if len(fields) > 0 {
		out.Player, out.Args = fields[0], fields[1:]
	}
	return out
}

func (o *CommandOutput) Enable(context.Context) error {
	if o.Player == "" {
		return errors.New("playback: no player configured")
	}
	if _, err := exec.LookPath(o.Player); err != nil {
		return fmt.Errorf("playback: %w", err)
	}
	if !o.Autoplay {
		return ErrAutoplayBlocked
	}
	return nil
}

func (o *CommandOutput) Play(ctx context.Context, clip Clip) error {
	target := clip.URL
	if len(clip.Data) > 0 {
		f, err := os.CreateTemp("", fmt.Sprintf("voiceagent-%d-*.%s", clip.Seq, extension(clip.Format)))
		if err != nil {
			return err
		}
		defer os.Remove(f.Name())
		if _, err := f.Write(clip.Data); err != nil {
			f.Close()
			return err
		}
		if err := f.Close(); err != nil {
			return err
		}
		target = f.Name()
	}
	if target == "" {
		return errors.New("playback: clip has no audio")
	}

	args := append(slices.Clone(o.Args), target)
	cmd := exec.CommandContext(ctx, o.Player, args...)
	o.Logger.Debug("starting player", zap.String("player", o.Player), zap.Int("seq", clip.Seq))
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("player %s: %w: %s", o.Player, err, strings.TrimSpace(string(out)))
	}
	return nil
}

func extension(format string) string {
	if format == "" {
		return "mp3"
	}
	return strings.ToLower(format)
}
