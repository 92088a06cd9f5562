package audio

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/log"
)

var defaultPlayers = []string{"ffplay", "mpv", "vlc", "aplay"}

// Player plays feedback clips through the first available local player.
type Player struct {
	players []string
	logger  *log.Logger
}

func NewPlayer(preferred string, logger *log.Logger) *Player {
	if logger == nil {
		logger = log.Default()
	}
	players := defaultPlayers
	if preferred = strings.TrimSpace(preferred); preferred != "" {
		players = append([]string{preferred}, defaultPlayers...)
	}
	return &Player{players: players, logger: logger.WithPrefix("player")}
}

// Play blocks until playback of path finishes or ctx is cancelled.
func (p *Player) Play(ctx context.Context, path string) error {
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("audio clip not found: %w", err)
	}

	player, err := p.find()
	if err != nil {
		return err
	}

	cmd := exec.CommandContext(ctx, player, playerArgs(player, path)...)
	p.logger.Debug("playing", "player", player, "clip", path)
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("playback failed with %s: %w", filepath.Base(player), err)
	}
	return nil
}

func (p *Player) find() (string, error) {
	for _, player := range p.players {
		if path, err := exec.LookPath(player); err == nil {
			return path, nil
		}
	}
	return "", fmt.Errorf("no audio player found (tried: %s)", strings.Join(p.players, ", "))
}

func playerArgs(player string, path string) []string {
	switch filepath.Base(player) {
	case "ffplay":
		return []string{"-nodisp", "-autoexit", "-loglevel", "quiet", path}
	case "mpv":
		return []string{"--no-video", "--really-quiet", path}
	case "vlc", "cvlc":
		return []string{"--play-and-exit", "--intf", "dummy", path}
	default:
		return []string{path}
	}
}
