package config

import (
	"time"

	"github.com/spf13/viper"

	"github.com/weiawesome/wes-io-stage/internal/hub"
	"github.com/weiawesome/wes-io-stage/internal/webrtc"
	pkgconfig "github.com/weiawesome/wes-io-stage/pkg/config"
	"github.com/weiawesome/wes-io-stage/pkg/database"
	"github.com/weiawesome/wes-io-stage/pkg/log"
	"github.com/weiawesome/wes-io-stage/pkg/pubsub"
	"github.com/weiawesome/wes-io-stage/pkg/storage"
)

// Config is shared by the relay, operator and output binaries. Each one
// reads only the sections it needs.
type Config struct {
	Server     ServerConfig
	Control    ServerConfig
	WebSocket  hub.Config
	Relay      RelayConfig
	Signaling  SignalingConfig
	PubSub     pubsub.Config
	Kafka      KafkaConfig
	Database   database.Config
	Storage    storage.Config
	Snapshot   SnapshotConfig
	Camera     CameraConfig
	Program    ProgramConfig
	LowerThird LowerThirdConfig `mapstructure:"lower_third"`
	Output     OutputConfig
	Auth       AuthConfig
	Log        log.Config
}

type ServerConfig struct {
	Host string
	Port int
}

type RelayConfig struct {
	// PIN is the remote pin. Empty generates a random one at startup.
	PIN         string        `mapstructure:"pin"`
	PINLength   int           `mapstructure:"pin_length"`
	PINCost     int           `mapstructure:"pin_cost"`
	AuthTimeout time.Duration `mapstructure:"auth_timeout"`
	RateLimit   float64       `mapstructure:"rate_limit"`
	RateBurst   int           `mapstructure:"rate_burst"`
}

type SignalingConfig struct {
	URL            string        `mapstructure:"url"`
	PIN            string        `mapstructure:"pin"`
	ReconnectDelay time.Duration `mapstructure:"reconnect_delay"`
	WriteWait      time.Duration `mapstructure:"write_wait"`
	MaxMessageSize int64         `mapstructure:"max_message_size"`
}

type KafkaConfig struct {
	Enabled    bool
	Brokers    string
	Topic      string
	Partitions int
}

type RedisConfig struct {
	Address  string
	Password string
	DB       int
}

type SnapshotConfig struct {
	Driver string // "memory", "redis"
	Redis  RedisConfig
	TTL    time.Duration
}

type CameraConfig struct {
	MaxSources int                      `mapstructure:"max_sources"`
	ICEServers []webrtc.ICEServerConfig `mapstructure:"ice_servers"`
}

type ProgramConfig struct {
	Session     string
	SettleDelay time.Duration `mapstructure:"settle_delay"`
}

type LowerThirdConfig struct {
	TemplatesFile string `mapstructure:"templates_file"`
}

type OutputConfig struct {
	Host   string
	Port   int
	Width  int
	Height int
}

type AuthConfig struct {
	TokenTTL time.Duration `mapstructure:"token_ttl"`
	Issuer   string
}

func Load() (*Config, error) {
	v, err := pkgconfig.Load("./config", "config")
	if err != nil {
		return nil, err
	}

	// Set defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8090)
	v.SetDefault("control.host", "127.0.0.1")
	v.SetDefault("control.port", 8091)
	v.SetDefault("websocket.ping_interval", "30s")
	v.SetDefault("websocket.pong_wait", "60s")
	v.SetDefault("websocket.write_wait", "10s")
	v.SetDefault("websocket.max_message_size", 1<<20)
	v.SetDefault("websocket.send_buffer", 256)
	v.SetDefault("relay.pin", "")
	v.SetDefault("relay.pin_length", 6)
	v.SetDefault("relay.pin_cost", 0)
	v.SetDefault("relay.auth_timeout", "30s")
	v.SetDefault("relay.rate_limit", 50)
	v.SetDefault("relay.rate_burst", 100)
	v.SetDefault("signaling.url", "ws://127.0.0.1:8090/ws")
	v.SetDefault("signaling.reconnect_delay", "2s")
	v.SetDefault("signaling.write_wait", "10s")
	v.SetDefault("signaling.max_message_size", 1<<20)
	v.SetDefault("pubsub.driver", "redis")
	v.SetDefault("pubsub.redis.address", "localhost:6379")
	v.SetDefault("pubsub.redis.password", "")
	v.SetDefault("pubsub.redis.db", 0)
	v.SetDefault("pubsub.redis.pool_size", 10)
	v.SetDefault("pubsub.kafka.brokers", "localhost:9092")
	v.SetDefault("pubsub.kafka.group_id", "stage")
	v.SetDefault("pubsub.kafka.partitions", 1)
	v.SetDefault("kafka.enabled", false)
	v.SetDefault("kafka.brokers", "localhost:9092")
	v.SetDefault("kafka.topic", "stage-as-run")
	v.SetDefault("kafka.partitions", 1)
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.file_path", "stage.db")
	v.SetDefault("database.log_level", "warn")
	v.SetDefault("storage.driver", "local")
	v.SetDefault("storage.local.base_path", "./data")
	v.SetDefault("snapshot.driver", "redis")
	v.SetDefault("snapshot.redis.address", "localhost:6379")
	v.SetDefault("snapshot.redis.password", "")
	v.SetDefault("snapshot.redis.db", 0)
	v.SetDefault("snapshot.ttl", "24h")
	v.SetDefault("camera.max_sources", 0)
	v.SetDefault("program.session", "default")
	v.SetDefault("program.settle_delay", "80ms")
	v.SetDefault("lower_third.templates_file", "")
	v.SetDefault("output.host", "127.0.0.1")
	v.SetDefault("output.port", 8092)
	v.SetDefault("output.width", 1920)
	v.SetDefault("output.height", 1080)
	v.SetDefault("auth.token_ttl", "12h")
	v.SetDefault("auth.issuer", "wes-io-stage")
	v.SetDefault("log.level", "info")

	// Override from environment
	v.BindEnv("server.port", "PORT")
	v.BindEnv("control.port", "CONTROL_PORT")
	v.BindEnv("output.port", "OUTPUT_PORT")
	v.BindEnv("relay.pin", "REMOTE_PIN")
	v.BindEnv("signaling.url", "RELAY_URL")
	v.BindEnv("signaling.pin", "REMOTE_PIN")
	v.BindEnv("pubsub.driver", "PUBSUB_DRIVER")
	v.BindEnv("pubsub.redis.address", "REDIS_ADDRESS")
	v.BindEnv("pubsub.redis.password", "REDIS_PASSWORD")
	v.BindEnv("pubsub.kafka.brokers", "KAFKA_BROKERS")
	v.BindEnv("pubsub.kafka.group_id", "KAFKA_PUBSUB_GROUP_ID")
	v.BindEnv("kafka.enabled", "KAFKA_AS_RUN_ENABLED")
	v.BindEnv("kafka.brokers", "KAFKA_BROKERS")
	v.BindEnv("kafka.topic", "KAFKA_AS_RUN_TOPIC")
	v.BindEnv("database.driver", "DB_DRIVER")
	v.BindEnv("database.host", "DB_HOST")
	v.BindEnv("database.port", "DB_PORT")
	v.BindEnv("database.user", "DB_USER")
	v.BindEnv("database.password", "DB_PASSWORD")
	v.BindEnv("database.dbname", "DB_NAME")
	v.BindEnv("database.file_path", "DB_FILE_PATH")
	v.BindEnv("storage.driver", "STORAGE_DRIVER")
	v.BindEnv("storage.s3.bucket", "S3_BUCKET")
	v.BindEnv("storage.s3.region", "S3_REGION")
	v.BindEnv("storage.s3.endpoint", "S3_ENDPOINT")
	v.BindEnv("storage.s3.access_key_id", "S3_ACCESS_KEY_ID")
	v.BindEnv("storage.s3.secret_access_key", "S3_SECRET_ACCESS_KEY")
	v.BindEnv("snapshot.driver", "SNAPSHOT_DRIVER")
	v.BindEnv("snapshot.redis.address", "REDIS_ADDRESS")
	v.BindEnv("snapshot.redis.password", "REDIS_PASSWORD")
	v.BindEnv("program.session", "STAGE_SESSION")
	v.BindEnv("lower_third.templates_file", "LOWER_THIRD_TEMPLATES")
	v.BindEnv("log.level", "LOG_LEVEL")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	// Parse durations
	cfg.WebSocket.PingInterval = parseDuration(v, "websocket.ping_interval", 30*time.Second)
	cfg.WebSocket.PongWait = parseDuration(v, "websocket.pong_wait", 60*time.Second)
	cfg.WebSocket.WriteWait = parseDuration(v, "websocket.write_wait", 10*time.Second)
	cfg.Relay.AuthTimeout = parseDuration(v, "relay.auth_timeout", 30*time.Second)
	cfg.Signaling.ReconnectDelay = parseDuration(v, "signaling.reconnect_delay", 2*time.Second)
	cfg.Signaling.WriteWait = parseDuration(v, "signaling.write_wait", 10*time.Second)
	cfg.Snapshot.TTL = parseDuration(v, "snapshot.ttl", 24*time.Hour)
	cfg.Program.SettleDelay = parseDuration(v, "program.settle_delay", 80*time.Millisecond)
	cfg.Auth.TokenTTL = parseDuration(v, "auth.token_ttl", 12*time.Hour)

	return &cfg, nil
}

func parseDuration(v *viper.Viper, key string, defaultVal time.Duration) time.Duration {
	return pkgconfig.Duration(v, key, defaultVal)
}
