package utils

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"
)

// WriteJSON encodes v with the given status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("[http] encode response: %v", err)
	}
}

// WriteError writes {"error": msg}.
func WriteError(w http.ResponseWriter, status int, msg string) {
	WriteJSON(w, status, map[string]string{"error": msg})
}

// AddServerTiming appends one Server-Timing entry per name/duration pair.
func AddServerTiming(w http.ResponseWriter, kv ...TimingEntry) {
	if len(kv) == 0 {
		return
	}
	parts := make([]string, 0, len(kv))
	for _, p := range kv {
		parts = append(parts, fmt.Sprintf("%s;dur=%.1f", p.Name, float64(p.Duration.Microseconds())/1000))
	}
	w.Header().Add("Server-Timing", strings.Join(parts, ", "))
}

type TimingEntry struct {
	Name     string
	Duration time.Duration
}
