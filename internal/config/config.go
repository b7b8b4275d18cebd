// Package config implements the baresip-style flat key/value config
// file (spec.md §6: `~/.baresip/config`), plus the accounts/contacts/
// uuid sibling files. Grounded in shape on teacher's bridge/config.go
// (a single typed Config struct with documented defaults), but the
// wire format itself follows spec.md's flat "key value" line format
// instead of teacher's YAML, since that is the format spec.md names.
package config

import (
	"bufio"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// Config holds the recognised keys from spec.md §6's config-file list.
// Fields default to baresip's own historical defaults where spec.md is
// silent on a specific value.
type Config struct {
	AudioPlayer   string
	AudioSource   string
	AudioAlert    string
	AudioSrate    int
	AudioChannels int
	AusrcFormat   string
	AuplayFormat  string

	VideoSource  string
	VideoDisplay string
	VideoSize    string
	VideoFPS     float64
	VideoBitrate int

	SIPListen     string
	SIPTransBsize int

	CallLocalTimeout int
	CallMaxCalls     int

	RTPTos       int
	RTPPorts     [2]int
	RTPBandwidth [2]int
	RTCPMux      bool

	JitterBufferDelay [2]int

	NetInterface string

	Module    []string
	ModuleApp []string
	ModuleTmp []string
}

// Default returns the baseline configuration used when no config file
// is found (baresip ships these as its compiled-in defaults).
func Default() *Config {
	return &Config{
		AudioSrate:        16000,
		AudioChannels:     1,
		SIPListen:         "0.0.0.0:5060",
		SIPTransBsize:     32,
		CallLocalTimeout:  120,
		CallMaxCalls:      8,
		RTPPorts:          [2]int{10000, 20000},
		JitterBufferDelay: [2]int{5, 10},
	}
}

// Dir resolves the config directory: the -f flag value if set,
// otherwise ~/.baresip.
func Dir(flagValue string) (string, error) {
	if flagValue != "" {
		return flagValue, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".baresip"), nil
}

// Load reads dir/config, applying recognised keys over Default()'s
// baseline. Unrecognised keys are ignored (matching baresip's
// forward-compatible config parsing: unknown keys are a no-op, not an
// error).
func Load(dir string) (*Config, error) {
	cfg := Default()
	path := filepath.Join(dir, "config")
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, val, ok := splitKV(line)
		if !ok {
			continue
		}
		applyKey(cfg, key, val)
	}
	return cfg, sc.Err()
}

func splitKV(line string) (key, val string, ok bool) {
	fields := strings.SplitN(line, " ", 2)
	if len(fields) != 2 {
		return "", "", false
	}
	return strings.TrimSpace(fields[0]), strings.TrimSpace(fields[1]), true
}

func applyKey(cfg *Config, key, val string) {
	switch key {
	case "audio_player":
		cfg.AudioPlayer = val
	case "audio_source":
		cfg.AudioSource = val
	case "audio_alert":
		cfg.AudioAlert = val
	case "audio_srate":
		cfg.AudioSrate = atoiOr(val, cfg.AudioSrate)
	case "audio_channels":
		cfg.AudioChannels = atoiOr(val, cfg.AudioChannels)
	case "ausrc_format":
		cfg.AusrcFormat = val
	case "auplay_format":
		cfg.AuplayFormat = val
	case "video_source":
		cfg.VideoSource = val
	case "video_display":
		cfg.VideoDisplay = val
	case "video_size":
		cfg.VideoSize = val
	case "video_fps":
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			cfg.VideoFPS = f
		}
	case "video_bitrate":
		cfg.VideoBitrate = atoiOr(val, cfg.VideoBitrate)
	case "sip_listen":
		cfg.SIPListen = val
	case "sip_trans_bsize":
		cfg.SIPTransBsize = atoiOr(val, cfg.SIPTransBsize)
	case "call_local_timeout":
		cfg.CallLocalTimeout = atoiOr(val, cfg.CallLocalTimeout)
	case "call_max_calls":
		cfg.CallMaxCalls = atoiOr(val, cfg.CallMaxCalls)
	case "rtp_tos":
		cfg.RTPTos = atoiOr(val, cfg.RTPTos)
	case "rtp_ports":
		if a, b, ok := splitPair(val); ok {
			cfg.RTPPorts = [2]int{a, b}
		}
	case "rtp_bandwidth":
		if a, b, ok := splitPair(val); ok {
			cfg.RTPBandwidth = [2]int{a, b}
		}
	case "rtcp_mux":
		cfg.RTCPMux = val == "yes" || val == "true"
	case "jitter_buffer_delay":
		if a, b, ok := splitPair(val); ok {
			cfg.JitterBufferDelay = [2]int{a, b}
		}
	case "net_interface":
		cfg.NetInterface = val
	case "module":
		cfg.Module = append(cfg.Module, val)
	case "module_app":
		cfg.ModuleApp = append(cfg.ModuleApp, val)
	case "module_tmp":
		cfg.ModuleTmp = append(cfg.ModuleTmp, val)
	}
}

func atoiOr(s string, fallback int) int {
	if n, err := strconv.Atoi(s); err == nil {
		return n
	}
	return fallback
}

func splitPair(val string) (int, int, bool) {
	parts := strings.SplitN(val, "-", 2)
	if len(parts) != 2 {
		parts = strings.SplitN(val, ",", 2)
	}
	if len(parts) != 2 {
		return 0, 0, false
	}
	a, errA := strconv.Atoi(strings.TrimSpace(parts[0]))
	b, errB := strconv.Atoi(strings.TrimSpace(parts[1]))
	if errA != nil || errB != nil {
		return 0, 0, false
	}
	return a, b, true
}
