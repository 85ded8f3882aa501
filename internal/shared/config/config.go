package config

import (
	"bufio"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/ini.v1"

	"moltfarm/internal/shared/securecrypt"
	"moltfarm/internal/shared/types"
)

// encPrefix marks API keys stored encrypted in accounts.json.
const encPrefix = "enc:"

// LoadIni loads the moltfarm.ini behavior configuration file.
func LoadIni(cfg *types.Config, fileName string) error {
	iniFile, err := ini.Load(fileName)
	if err != nil {
		return err
	}
	// ini cannot tell an unset bool from false, so true defaults are applied
	// before mapping; an explicit key in the file still overrides them.
	cfg.ProxyConf.ProxyPlainHTTP = true
	if err := iniFile.MapTo(cfg); err != nil {
		return err
	}
	overrideFromEnvInt(&cfg.CommonConf.Crypt, "CRYPT_KEY")
	overrideFromEnvString(&cfg.LLMConf.APIKey, "MOLT_LLM_API_KEY")
	applyDefaults(cfg)
	return nil
}

// applyDefaults fills in zero-valued settings with their documented defaults.
func applyDefaults(cfg *types.Config) {
	if cfg.PlatformConf.StatusPath == "" {
		cfg.PlatformConf.StatusPath = "/api/v1/agents/status"
	}
	if cfg.PlatformConf.PostPath == "" {
		cfg.PlatformConf.PostPath = "/api/v1/posts"
	}
	if cfg.PlatformConf.VerifyPath == "" {
		cfg.PlatformConf.VerifyPath = "/api/v1/verify"
	}
	if cfg.PlatformConf.RequestTimeoutSeconds <= 0 {
		cfg.PlatformConf.RequestTimeoutSeconds = 20
	}
	if cfg.PlatformConf.MaxRedirects <= 0 {
		cfg.PlatformConf.MaxRedirects = 5
	}
	if cfg.MintConf.DefaultCooldownMinutes <= 0 {
		cfg.MintConf.DefaultCooldownMinutes = 30
	}
	if cfg.MintConf.TickIntervalSeconds <= 0 {
		cfg.MintConf.TickIntervalSeconds = 60
	}
	if cfg.MintConf.TickFloorSeconds <= 0 {
		cfg.MintConf.TickFloorSeconds = 10
	}
	if cfg.LLMConf.TimeoutSeconds <= 0 {
		cfg.LLMConf.TimeoutSeconds = 60
	}
	if cfg.RetryConf.MaxAttempts <= 0 {
		cfg.RetryConf.MaxAttempts = 3
	}
	if cfg.RetryConf.BaseDelayMs <= 0 {
		cfg.RetryConf.BaseDelayMs = 1000
	}
}

// LoadAccounts loads the accounts.json data file. A missing file yields an
// empty list instead of an error. API keys prefixed with "enc:" are
// decrypted with the configured crypt key.
func LoadAccounts(fileName string, cryptKey int) ([]*types.Bot, error) {
	data, err := os.ReadFile(fileName)
	if err != nil {
		if os.IsNotExist(err) {
			return []*types.Bot{}, nil
		}
		return nil, fmt.Errorf("failed to read accounts file: %w", err)
	}

	var bots []*types.Bot
	if err := json.Unmarshal(data, &bots); err != nil {
		return nil, fmt.Errorf("failed to unmarshal accounts file: %w", err)
	}

	seen := make(map[string]struct{}, len(bots))
	for _, b := range bots {
		if b.Name == "" {
			return nil, fmt.Errorf("account entry with empty name")
		}
		if _, dup := seen[b.Name]; dup {
			return nil, fmt.Errorf("duplicate account name %q", b.Name)
		}
		seen[b.Name] = struct{}{}

		if strings.HasPrefix(b.APIKey, encPrefix) {
			plain, err := decryptAPIKey(b.APIKey, cryptKey)
			if err != nil {
				return nil, fmt.Errorf("account %q: %w", b.Name, err)
			}
			b.APIKey = plain
		}
	}
	return bots, nil
}

func decryptAPIKey(value string, cryptKey int) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(value, encPrefix))
	if err != nil {
		return "", fmt.Errorf("invalid encrypted api key encoding: %w", err)
	}
	cipher, err := securecrypt.NewCipher(cryptKey)
	if err != nil {
		return "", err
	}
	plain, err := cipher.Decrypt(raw)
	if err != nil {
		return "", fmt.Errorf("failed to decrypt api key: %w", err)
	}
	return string(plain), nil
}

// EncryptAPIKey is the inverse of the loader's decryption; it produces an
// "enc:" value suitable for accounts.json.
func EncryptAPIKey(plain string, cryptKey int) (string, error) {
	cipher, err := securecrypt.NewCipher(cryptKey)
	if err != nil {
		return "", err
	}
	raw, err := cipher.Encrypt([]byte(plain))
	if err != nil {
		return "", err
	}
	return encPrefix + base64.StdEncoding.EncodeToString(raw), nil
}

// LoadProxyLines loads the proxies.txt data file: one descriptor per line,
// blank lines and '#' comments skipped. A missing file yields an empty list,
// which means direct connections only.
func LoadProxyLines(fileName string) ([]string, error) {
	file, err := os.Open(fileName)
	if err != nil {
		if os.IsNotExist(err) {
			return []string{}, nil
		}
		return nil, fmt.Errorf("failed to open proxies file: %w", err)
	}
	defer file.Close()

	var lines []string
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		lines = append(lines, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return lines, nil
}

func overrideFromEnvInt(target *int, envName string) {
	envValue := os.Getenv(envName)
	if envValue != "" {
		if intValue, err := strconv.Atoi(envValue); err == nil {
			*target = intValue
		}
	}
}

func overrideFromEnvString(target *string, envName string) {
	if envValue := os.Getenv(envName); envValue != "" {
		*target = envValue
	}
}
