package main

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
)

// Prints a random webhook secret suitable for WEBHOOK_SECRET.
func main() {
	secret := make([]byte, 32)
	if _, err := rand.Read(secret); err != nil {
		panic(err)
	}

	fmt.Printf("WEBHOOK_SECRET=%s\n", hex.EncodeToString(secret))
}
