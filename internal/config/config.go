package config

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/cloudwego/eino-ext/components/model/ark"
	"github.com/cloudwego/eino/components/model"
)

// ClientConfig 描述会话客户端的配置项。
type ClientConfig struct {
	ServerURL        string
	ViewerAddr       string
	HandshakeTimeout time.Duration
	PlaybackEnabled  bool
	CaptureEnabled   bool
}

// LoadClient 从环境变量加载客户端配置。
func LoadClient() (*ClientConfig, error) {
	handshake := 15
	if override, err := parseOptionalIntEnv("NOVA_HANDSHAKE_TIMEOUT"); err != nil {
		return nil, err
	} else if override != nil {
		if *override < 1 {
			return nil, fmt.Errorf("NOVA_HANDSHAKE_TIMEOUT must be at least 1 second, got %d", *override)
		}
		handshake = *override
	}

	playback, err := parseBoolEnv("NOVA_PLAYBACK_ENABLED", true)
	if err != nil {
		return nil, err
	}
	capture, err := parseBoolEnv("NOVA_CAPTURE_ENABLED", true)
	if err != nil {
		return nil, err
	}

	viewerAddr, err := normalizeAddr(getEnvOrDefault("NOVA_VIEWER_PORT", "9000"))
	if err != nil {
		return nil, err
	}

	return &ClientConfig{
		ServerURL:        getEnvOrDefault("NOVA_SERVER_URL", "ws://localhost:8000/ws/chat"),
		ViewerAddr:       viewerAddr,
		HandshakeTimeout: time.Duration(handshake) * time.Second,
		PlaybackEnabled:  playback,
		CaptureEnabled:   capture,
	}, nil
}

// AgentConfig 描述伴侣服务端的配置项。
type AgentConfig struct {
	Addr       string
	Model      ModelConfig
	Transcript string
}

// LoadAgent 从环境变量加载服务端配置。
func LoadAgent() (*AgentConfig, error) {
	addr, err := normalizeAddr(getEnvOrDefault("PORT", "8000"))
	if err != nil {
		return nil, err
	}

	modelCfg, err := loadModelConfig()
	if err != nil {
		return nil, err
	}

	return &AgentConfig{
		Addr:       addr,
		Model:      modelCfg,
		Transcript: strings.TrimSpace(os.Getenv("AGENT_FIXED_TRANSCRIPT")),
	}, nil
}

// normalizeAddr 允许直接传入 ":8000" 或 "127.0.0.1:8000"，也接受纯端口号。
func normalizeAddr(port string) (string, error) {
	port = strings.TrimSpace(port)
	if strings.Contains(port, ":") {
		return port, nil
	}
	if strings.Contains(port, " ") {
		return "", fmt.Errorf("invalid port value: %q", port)
	}
	return ":" + port, nil
}

// ModelConfig 描述大模型相关配置。
type ModelConfig struct {
	APIKey      string
	AccessKey   string
	SecretKey   string
	Model       string
	BaseURL     string
	Region      string
	Temperature *float64
	TopP        *float64
	MaxTokens   *int
}

// Enabled 表示是否提供了必需的密钥。
func (c ModelConfig) Enabled() bool {
	return c.Model != "" && (c.APIKey != "" || (c.AccessKey != "" && c.SecretKey != ""))
}

// NewChatModel 使用配置创建一个模型实例。
func (c ModelConfig) NewChatModel(ctx context.Context) (model.ChatModel, error) {
	if !c.Enabled() {
		return nil, fmt.Errorf("Ark 凭证或模型配置缺失，至少提供 ARK_API_KEY + ARK_MODEL 或 AK/SK 组合")
	}

	var temperature *float32
	if c.Temperature != nil {
		val := float32(*c.Temperature)
		temperature = &val
	}

	var topP *float32
	if c.TopP != nil {
		val := float32(*c.TopP)
		topP = &val
	}

	cfg := &ark.ChatModelConfig{
		BaseURL:     c.BaseURL,
		Region:      c.Region,
		APIKey:      c.APIKey,
		AccessKey:   c.AccessKey,
		SecretKey:   c.SecretKey,
		Model:       c.Model,
		MaxTokens:   c.MaxTokens,
		Temperature: temperature,
		TopP:        topP,
	}

	return ark.NewChatModel(ctx, cfg)
}

func loadModelConfig() (ModelConfig, error) {
	temperature, err := parseOptionalFloatEnv("ARK_TEMPERATURE")
	if err != nil {
		return ModelConfig{}, err
	}

	topP, err := parseOptionalFloatEnv("ARK_TOP_P")
	if err != nil {
		return ModelConfig{}, err
	}

	maxTokens, err := parseOptionalIntEnv("ARK_MAX_TOKENS")
	if err != nil {
		return ModelConfig{}, err
	}

	return ModelConfig{
		APIKey:      strings.TrimSpace(os.Getenv("ARK_API_KEY")),
		AccessKey:   strings.TrimSpace(os.Getenv("ARK_ACCESS_KEY")),
		SecretKey:   strings.TrimSpace(os.Getenv("ARK_SECRET_KEY")),
		Model:       strings.TrimSpace(os.Getenv("ARK_MODEL")),
		BaseURL:     getEnvOrDefault("ARK_BASE_URL", "https://ark.cn-beijing.volces.com/api/v3"),
		Region:      getEnvOrDefault("ARK_REGION", "cn-beijing"),
		Temperature: temperature,
		TopP:        topP,
		MaxTokens:   maxTokens,
	}, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func parseBoolEnv(key string, defaultValue bool) (bool, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return defaultValue, nil
	}

	val, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("invalid %s value %q: %w", key, raw, err)
	}
	return val, nil
}

func parseOptionalFloatEnv(key string) (*float64, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return nil, nil
	}

	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}

	val, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	return &val, nil
}

func parseOptionalIntEnv(key string) (*int, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return nil, nil
	}

	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}

	val, err := strconv.Atoi(value)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	return &val, nil
}
