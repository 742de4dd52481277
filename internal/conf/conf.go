package conf

import (
	"encoding/json"
	"fmt"
	"time"
)

// Bootstrap is the root of configs/config.yaml.
type Bootstrap struct {
	Server   *Server   `json:"server"`
	Data     *Data     `json:"data"`
	LLM      *LLM      `json:"llm"`
	Analysis *Analysis `json:"analysis"`
	Log      *Log      `json:"log"`
}

type Server struct {
	HTTP *Server_HTTP `json:"http"`
	GRPC *Server_GRPC `json:"grpc"`
}

type Server_HTTP struct {
	Network string   `json:"network"`
	Addr    string   `json:"addr"`
	Timeout Duration `json:"timeout"`
}

type Server_GRPC struct {
	Network string   `json:"network"`
	Addr    string   `json:"addr"`
	Timeout Duration `json:"timeout"`
}

type Data struct {
	Database *Data_Database `json:"database"`
	Redis    *Data_Redis    `json:"redis"`
}

// Enabled reports whether a database is configured.
func (d *Data) Enabled() bool {
	return d != nil && d.Database != nil && d.Database.Source != ""
}

// RedisEnabled reports whether Redis is configured.
func (d *Data) RedisEnabled() bool {
	return d != nil && d.Redis != nil && d.Redis.Addr != ""
}

type Data_Database struct {
	Driver string             `json:"driver"` // "postgres" or "sqlite"
	Source string             `json:"source"`
	Pool   Data_Database_Pool `json:"pool"`
}

type Data_Database_Pool struct {
	MaxOpenConns    int32 `json:"max_open_conns"`
	MinIdleConns    int32 `json:"min_idle_conns"`
	MaxConnLifetime int64 `json:"max_conn_lifetime"`  // minutes
	MaxConnIdleTime int64 `json:"max_conn_idle_time"` // minutes
}

type Data_Redis struct {
	Network      string   `json:"network"`
	Addr         string   `json:"addr"`
	Password     string   `json:"password"`
	DB           int      `json:"db"`
	ReadTimeout  Duration `json:"read_timeout"`
	WriteTimeout Duration `json:"write_timeout"`
}

type LLM struct {
	Provider    string   `json:"provider"` // "openai" or "ollama"
	BaseURL     string   `json:"base_url"`
	APIKey      string   `json:"api_key"`
	Model       string   `json:"model"`
	Temperature float64  `json:"temperature"`
	Timeout     Duration `json:"timeout"`
	MaxRetries  int      `json:"max_retries"`
}

type Analysis struct {
	VideoMode          string          `json:"video_mode"` // "pipeline" or "direct"
	WorkDir            string          `json:"work_dir"`
	FrameRate          float64         `json:"frame_rate"`
	MaxFrames          int             `json:"max_frames"`
	Concurrency        int             `json:"concurrency"`
	AssessTimeout      Duration        `json:"assess_timeout"`
	DemuxTimeout       Duration        `json:"demux_timeout"`
	FFmpeg             string          `json:"ffmpeg"`
	FFprobe            string          `json:"ffprobe"`
	MaxUploadBytes     int64           `json:"max_upload_bytes"`
	FetchTimeout       Duration        `json:"fetch_timeout"`
	SimilarMaxDistance int             `json:"similar_max_distance"`
	Cache              *Analysis_Cache `json:"cache"`
}

type Analysis_Cache struct {
	Enabled        bool     `json:"enabled"`
	TTL            Duration `json:"ttl"`
	BloomBits      uint     `json:"bloom_bits"`
	BloomHashFuncs uint     `json:"bloom_hash_funcs"`
}

type Log struct {
	Level string `json:"level"`
}

// Duration is a time.Duration that decodes from "30s" style strings or from a
// number of seconds.
type Duration time.Duration

// AsDuration returns the value as a time.Duration.
func (d Duration) AsDuration() time.Duration {
	return time.Duration(d)
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

func (d *Duration) UnmarshalJSON(b []byte) error {
	var v any
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	switch value := v.(type) {
	case nil:
		*d = 0
	case float64:
		*d = Duration(value * float64(time.Second))
	case string:
		if value == "" {
			*d = 0
			return nil
		}
		parsed, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", value, err)
		}
		*d = Duration(parsed)
	default:
		return fmt.Errorf("invalid duration %s", string(b))
	}
	return nil
}
