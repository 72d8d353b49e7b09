// Package share turns map view configurations into shareable links.
package share

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// QueryParam is the URL parameter carrying an encoded Config.
const QueryParam = "config"

var ErrBadConfig = errors.New("invalid share config")

// Config is the dashboard state captured in a share link. Field names and
// optionality follow the JSON the dashboard itself writes into ?config=, so
// links created by either side decode on the other.
type Config struct {
	SelectedMonth       string      `json:"selectedMonth,omitempty"`
	OriginCells         []string    `json:"originCells"`
	DestinationCells    []string    `json:"destinationCells"`
	DisplayType         string      `json:"displayType"`
	NormalizeComparison *bool       `json:"normalizeComparison,omitempty"`
	Scale               *[2]float64 `json:"scale,omitempty"`
	ScaleType           string      `json:"scaleType,omitempty"`
	VisibleLayers       []string    `json:"visibleLayers"`
	// Bounds is a map-library bounds value (or null), kept verbatim.
	Bounds json.RawMessage `json:"bounds,omitempty"`
}

// Validate checks the enumerated fields.
func (c Config) Validate() error {
	switch c.DisplayType {
	case "absolute", "comparison":
	default:
		return fmt.Errorf("%w: displayType must be 'absolute' or 'comparison'", ErrBadConfig)
	}
	switch c.ScaleType {
	case "", "dynamic", "custom":
	default:
		return fmt.Errorf("%w: scaleType must be 'dynamic' or 'custom'", ErrBadConfig)
	}
	if c.Scale != nil && c.Scale[1] < c.Scale[0] {
		return fmt.Errorf("%w: scale must be [min, max]", ErrBadConfig)
	}
	return nil
}

// Encode serializes cfg as unpadded URL-safe base64 of its JSON form.
func Encode(cfg Config) (string, error) {
	raw, err := json.Marshal(cfg)
	if err != nil {
		return "", fmt.Errorf("marshal share config: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(raw), nil
}

// Decode reverses Encode. Standard and URL alphabets, padded or not, are accepted.
func Decode(s string) (Config, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Config{}, fmt.Errorf("%w: empty", ErrBadConfig)
	}

	normalized := strings.TrimRight(s, "=")
	normalized = strings.NewReplacer("+", "-", "/", "_").Replace(normalized)

	raw, err := base64.RawURLEncoding.DecodeString(normalized)
	if err != nil {
		return Config{}, fmt.Errorf("%w: %v", ErrBadConfig, err)
	}

	var cfg Config
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return Config{}, fmt.Errorf("%w: %v", ErrBadConfig, err)
	}
	return cfg, nil
}

// BuildURL sets the config parameter on base, keeping any other query values.
func BuildURL(base string, cfg Config) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("parse share base url: %w", err)
	}
	enc, err := Encode(cfg)
	if err != nil {
		return "", err
	}
	q := u.Query()
	q.Set(QueryParam, enc)
	u.RawQuery = q.Encode()
	return u.String(), nil
}
