// Package config loads and validates the peer-side configuration for a
// streaming session: identity, transport endpoints, and the tunable
// thresholds the ring buffer / congestion controller use.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"os"
	"strings"

	"github.com/driftcast/beamcore/internal/util"
)

type Config struct {
	Identity   Identity   `json:"identity"`
	Transport  Transport  `json:"transport"`
	Ring       Ring       `json:"ring"`
	Audio      Audio      `json:"audio"`
	Congestion Congestion `json:"congestion"`
}

type Identity struct {
	// KeyFile holds the hex-encoded 16-byte pre-shared key.
	KeyFile string `json:"key_file"`
}

type Transport struct {
	ServerIP      string `json:"server_ip"`
	UDPBasePort   int    `json:"udp_base_port"`
	TCPBasePort   int    `json:"tcp_base_port"`
	DiscoveryPort int    `json:"discovery_port"`
	STUNServer    string `json:"stun_server"`
}

type Ring struct {
	VideoCapacity int `json:"video_capacity"` // slots; >= 4s at nominal fps
	AudioCapacity int `json:"audio_capacity"` // slots; >= 2.5s at nominal rate

	MaxUnsyncedFrames       int `json:"max_unsynced_frames"`
	MaxUnsyncedFramesRender int `json:"max_unsynced_frames_render"`
	MaxMissingPackets       int `json:"max_missing_packets"`
	MaxNACKedPerTick        int `json:"max_nacked_per_tick"`
}

type Audio struct {
	LowerWatermark  int `json:"lower_watermark_bytes"`
	TargetWatermark int `json:"target_watermark_bytes"`
	UpperWatermark  int `json:"upper_watermark_bytes"`
	BitrateBps      int `json:"bitrate_bps"` // opus bitrate hint handed to the audio decoder on Reset
}

type Congestion struct {
	InitialTargetBitrateBps int `json:"initial_target_bitrate_bps"`
	MinBurstBitrateBps      int `json:"min_burst_bitrate_bps"`
	MaxBurstBitrateBps      int `json:"max_burst_bitrate_bps"`
	MaxTargetBitrateBps     int `json:"max_target_bitrate_bps"`
}

func Default() Config {
	return Config{
		Identity: Identity{
			KeyFile: "data/session.key",
		},
		Transport: Transport{
			ServerIP:      "",
			UDPBasePort:   32263,
			TCPBasePort:   32273,
			DiscoveryPort: 32262,
			STUNServer:    "stun.l.google.com:19302",
		},
		Ring: Ring{
			VideoCapacity:           256,
			AudioCapacity:           128,
			MaxUnsyncedFrames:       10,
			MaxUnsyncedFramesRender: 12,
			MaxMissingPackets:       20,
			MaxNACKedPerTick:        8,
		},
		Audio: Audio{
			LowerWatermark:  18000,
			TargetWatermark: 28000,
			UpperWatermark:  59000,
			BitrateBps:      64_000,
		},
		Congestion: Congestion{
			InitialTargetBitrateBps: 8_000_000,
			MinBurstBitrateBps:      4_000_000,
			MaxBurstBitrateBps:      200_000_000,
			MaxTargetBitrateBps:     100_000_000,
		},
	}
}

func (c *Config) Validate() error {
	if strings.TrimSpace(c.Identity.KeyFile) == "" {
		return errors.New("identity.key_file is required")
	}

	if c.Transport.ServerIP != "" {
		if net.ParseIP(c.Transport.ServerIP) == nil {
			if _, err := net.LookupHost(c.Transport.ServerIP); err != nil {
				// Not fatal here: DNS may be unavailable at config-load time
				// (e.g. offline unit tests). The connect path re-resolves.
			}
		}
	}
	if c.Transport.UDPBasePort <= 0 || c.Transport.UDPBasePort > 65535 {
		return errors.New("transport.udp_base_port must be 1..65535")
	}
	if c.Transport.TCPBasePort <= 0 || c.Transport.TCPBasePort > 65535 {
		return errors.New("transport.tcp_base_port must be 1..65535")
	}
	if c.Transport.DiscoveryPort <= 0 || c.Transport.DiscoveryPort > 65535 {
		return errors.New("transport.discovery_port must be 1..65535")
	}

	if c.Ring.VideoCapacity <= 0 {
		return errors.New("ring.video_capacity must be > 0")
	}
	if c.Ring.AudioCapacity <= 0 {
		return errors.New("ring.audio_capacity must be > 0")
	}
	if c.Ring.MaxUnsyncedFrames <= 0 || c.Ring.MaxUnsyncedFramesRender < c.Ring.MaxUnsyncedFrames {
		return errors.New("ring.max_unsynced_frames_render must be >= ring.max_unsynced_frames > 0")
	}

	if c.Audio.LowerWatermark <= 0 || c.Audio.TargetWatermark <= c.Audio.LowerWatermark ||
		c.Audio.UpperWatermark <= c.Audio.TargetWatermark {
		return errors.New("audio watermarks must satisfy 0 < lower < target < upper")
	}
	if c.Audio.BitrateBps <= 0 {
		return errors.New("audio.bitrate_bps must be > 0")
	}

	if c.Congestion.MinBurstBitrateBps <= 0 || c.Congestion.MaxBurstBitrateBps <= c.Congestion.MinBurstBitrateBps {
		return errors.New("congestion burst bitrate bounds must satisfy 0 < min < max")
	}
	if c.Congestion.InitialTargetBitrateBps <= 0 || c.Congestion.InitialTargetBitrateBps > c.Congestion.MaxTargetBitrateBps {
		return errors.New("congestion.initial_target_bitrate_bps must be in (0, max_target_bitrate_bps]")
	}

	return nil
}

func Load(path string) (Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}

	// Start from defaults so missing JSON fields remain initialized.
	cfg := Default()
	if err := json.Unmarshal(b, &cfg); err != nil {
		return Config{}, err
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func Save(path string, cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	return util.WriteJSONFile(path, cfg)
}

// Ensure loads config if it exists; otherwise creates a default config file.
// Returns (cfg, createdNew, err).
func Ensure(path string) (Config, bool, error) {
	if _, err := os.Stat(path); err == nil {
		cfg, err := Load(path)
		return cfg, false, err
	} else if !os.IsNotExist(err) {
		return Config{}, false, err
	}

	cfg := Default()
	if err := Save(path, cfg); err != nil {
		return Config{}, false, fmt.Errorf("create default config: %w", err)
	}
	return cfg, true, nil
}
