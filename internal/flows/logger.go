package flows

import (
	"log"
	"time"
)

func logRequest(fn string, params map[string]any) {
	log.Printf("[flows] %s params=%v", fn, params)
}

func logResponse(fn string, d time.Duration, rows int) {
	log.Printf("[flows] %s ok duration=%dms rows=%d", fn, d.Milliseconds(), rows)
}

func logError(fn string, err error) {
	log.Printf("[flows] %s error: %v", fn, err)
}
