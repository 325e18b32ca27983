package config

import (
    "fmt"
    "strings"
    "time"

    "github.com/spf13/viper"
)

type Config struct {
    Server struct {
        Port          string
        GRPCPort      string
        LogLevel      string
        ReadLimit     int64
        InboundFPS    int
        WriteQueue    int
    }
    Turn struct {
        EnergyThreshold   float64
        SilenceFrames     int
        Grace             time.Duration
        HeartbeatInterval time.Duration
        SilenceTimeout    time.Duration
        HistoryCap        int
        ChunkChars        int
    }
    Deepgram struct {
        APIKey         string
        ListenURL      string
        SpeakURL       string
        Model          string
        Language       string
        Voice          string
        Endpointing    int
        UtteranceEndMs int
    }
    LLM struct {
        APIKey          string
        BaseURL         string
        Model           string
        DecisionModel   string
        AzureEndpoint   string
        AzureDeployment string
        AzureAPIVersion string
    }
    Search struct {
        APIKey     string
        BaseURL    string
        RPS        float64
        MaxResults int
    }
    Redis struct {
        Addr     string
        Password string
        DB       int
        TTL      time.Duration
    }
    Admin struct {
        TokenSecret string
        TokenSkew   time.Duration
    }
}

func Load() Config {
    v := viper.New()
    v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
    v.AutomaticEnv()

    // Defaults
    v.SetDefault("server.port", 8080)
    v.SetDefault("server.grpc_port", 9090)
    v.SetDefault("server.log_level", "info")
    v.SetDefault("server.read_limit", 1<<20)
    v.SetDefault("server.inbound_fps", 100)
    v.SetDefault("server.write_queue", 256)

    v.SetDefault("turn.energy_threshold", 0.01)
    v.SetDefault("turn.silence_frames", 6)
    v.SetDefault("turn.grace_ms", 300)
    v.SetDefault("turn.heartbeat_interval_ms", 500)
    v.SetDefault("turn.silence_timeout_ms", 1500)
    v.SetDefault("turn.history_cap", 12)
    v.SetDefault("turn.chunk_chars", 250)

    v.SetDefault("deepgram.listen_url", "wss://api.deepgram.com/v1/listen")
    v.SetDefault("deepgram.speak_url", "https://api.deepgram.com/v1/speak")
    v.SetDefault("deepgram.model", "nova-2")
    v.SetDefault("deepgram.language", "en-US")
    v.SetDefault("deepgram.voice", "aura-asteria-en")
    v.SetDefault("deepgram.endpointing", 300)
    v.SetDefault("deepgram.utterance_end_ms", 1000)

    v.SetDefault("llm.model", "gpt-4o-mini")
    v.SetDefault("llm.azure_api_version", "2024-06-01")

    v.SetDefault("search.base_url", "https://api.tavily.com/search")
    v.SetDefault("search.rps", 2.0)
    v.SetDefault("search.max_results", 3)

    v.SetDefault("redis.db", 0)
    v.SetDefault("redis.ttl_hours", 24)

    v.SetDefault("admin.token_skew_seconds", 30)

    // Map envs
    v.BindEnv("server.port", "PORT")
    v.BindEnv("server.grpc_port", "GRPC_PORT")
    v.BindEnv("server.log_level", "LOG_LEVEL")
    v.BindEnv("server.inbound_fps", "WS_INBOUND_FPS")

    v.BindEnv("turn.energy_threshold", "VAD_ENERGY_THRESHOLD")
    v.BindEnv("turn.silence_frames", "VAD_SILENCE_FRAMES")
    v.BindEnv("turn.grace_ms", "TURN_GRACE_MS")
    v.BindEnv("turn.heartbeat_interval_ms", "HEARTBEAT_INTERVAL_MS")
    v.BindEnv("turn.silence_timeout_ms", "SILENCE_TIMEOUT_MS")
    v.BindEnv("turn.history_cap", "HISTORY_CAP")

    v.BindEnv("deepgram.api_key", "DEEPGRAM_API_KEY")
    v.BindEnv("deepgram.listen_url", "DEEPGRAM_LISTEN_URL")
    v.BindEnv("deepgram.speak_url", "DEEPGRAM_SPEAK_URL")
    v.BindEnv("deepgram.model", "DEEPGRAM_MODEL")
    v.BindEnv("deepgram.language", "DEEPGRAM_LANGUAGE")
    v.BindEnv("deepgram.voice", "DEEPGRAM_VOICE")

    v.BindEnv("llm.api_key", "OPENAI_API_KEY")
    v.BindEnv("llm.base_url", "OPENAI_BASE_URL")
    v.BindEnv("llm.model", "OPENAI_MODEL")
    v.BindEnv("llm.decision_model", "OPENAI_DECISION_MODEL")
    v.BindEnv("llm.azure_endpoint", "AZURE_OPENAI_ENDPOINT")
    v.BindEnv("llm.azure_deployment", "AZURE_OPENAI_DEPLOYMENT")
    v.BindEnv("llm.azure_api_version", "AZURE_OPENAI_API_VERSION")

    v.BindEnv("search.api_key", "SEARCH_API_KEY")
    v.BindEnv("search.base_url", "SEARCH_BASE_URL")
    v.BindEnv("search.rps", "SEARCH_RPS")

    v.BindEnv("redis.addr", "REDIS_ADDR")
    v.BindEnv("redis.password", "REDIS_PASSWORD")
    v.BindEnv("redis.db", "REDIS_DB")
    v.BindEnv("redis.ttl_hours", "ARCHIVE_TTL_HOURS")

    v.BindEnv("admin.token_secret", "ADMIN_TOKEN_SECRET")
    v.BindEnv("admin.token_skew_seconds", "ADMIN_TOKEN_SKEW_SECONDS")

    var c Config
    c.Server.Port = toString(v.Get("server.port"))
    c.Server.GRPCPort = toString(v.Get("server.grpc_port"))
    c.Server.LogLevel = v.GetString("server.log_level")
    c.Server.ReadLimit = v.GetInt64("server.read_limit")
    c.Server.InboundFPS = v.GetInt("server.inbound_fps")
    c.Server.WriteQueue = v.GetInt("server.write_queue")

    c.Turn.EnergyThreshold = v.GetFloat64("turn.energy_threshold")
    c.Turn.SilenceFrames = v.GetInt("turn.silence_frames")
    c.Turn.Grace = millis(v.GetInt("turn.grace_ms"))
    c.Turn.HeartbeatInterval = millis(v.GetInt("turn.heartbeat_interval_ms"))
    c.Turn.SilenceTimeout = millis(v.GetInt("turn.silence_timeout_ms"))
    c.Turn.HistoryCap = v.GetInt("turn.history_cap")
    c.Turn.ChunkChars = v.GetInt("turn.chunk_chars")

    c.Deepgram.APIKey = v.GetString("deepgram.api_key")
    c.Deepgram.ListenURL = v.GetString("deepgram.listen_url")
    c.Deepgram.SpeakURL = v.GetString("deepgram.speak_url")
    c.Deepgram.Model = v.GetString("deepgram.model")
    c.Deepgram.Language = v.GetString("deepgram.language")
    c.Deepgram.Voice = v.GetString("deepgram.voice")
    c.Deepgram.Endpointing = v.GetInt("deepgram.endpointing")
    c.Deepgram.UtteranceEndMs = v.GetInt("deepgram.utterance_end_ms")

    c.LLM.APIKey = v.GetString("llm.api_key")
    c.LLM.BaseURL = v.GetString("llm.base_url")
    c.LLM.Model = v.GetString("llm.model")
    c.LLM.DecisionModel = v.GetString("llm.decision_model")
    if c.LLM.DecisionModel == "" {
        c.LLM.DecisionModel = c.LLM.Model
    }
    c.LLM.AzureEndpoint = v.GetString("llm.azure_endpoint")
    c.LLM.AzureDeployment = v.GetString("llm.azure_deployment")
    c.LLM.AzureAPIVersion = v.GetString("llm.azure_api_version")

    c.Search.APIKey = v.GetString("search.api_key")
    c.Search.BaseURL = v.GetString("search.base_url")
    c.Search.RPS = v.GetFloat64("search.rps")
    c.Search.MaxResults = v.GetInt("search.max_results")

    c.Redis.Addr = v.GetString("redis.addr")
    c.Redis.Password = v.GetString("redis.password")
    c.Redis.DB = v.GetInt("redis.db")
    c.Redis.TTL = time.Duration(v.GetInt("redis.ttl_hours")) * time.Hour

    c.Admin.TokenSecret = v.GetString("admin.token_secret")
    c.Admin.TokenSkew = time.Duration(v.GetInt("admin.token_skew_seconds")) * time.Second

    return c
}

func toString(v any) string { return fmt.Sprint(v) }

func millis(n int) time.Duration { return time.Duration(n) * time.Millisecond }
