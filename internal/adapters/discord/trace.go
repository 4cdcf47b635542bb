package discord

import (
	"log"
	"time"
)

// sólo se loguean los pasos que tardan más que esto
const slowStep = 2 * time.Second

func step(label string) func() {
	start := time.Now()
	return func() {
		if d := time.Since(start); d >= slowStep {
			log.Printf("[trace] %s = %s (lento)", label, d)
		}
	}
}
