package main

import (
	"fmt"
	"os"

	"altguard/internal/crypto"
)

func main() {
	key, err := crypto.GenerateAESKey()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to generate AES key: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("Generated AES-256 payload key")
	fmt.Println("=============================")
	fmt.Println()
	fmt.Println("Add this to your config.env file:")
	fmt.Printf("PAYLOAD_AES_KEY=%s\n", crypto.EncodeBase64(key))
	fmt.Println()
	fmt.Println("Clients must seal fingerprint payloads with this key (AES-256-GCM, base64).")
}
