package main

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"os"
	"strconv"
)

const defaultKeyBytes = 32

func main() {
	n := defaultKeyBytes
	if len(os.Args) > 1 {
		v, err := strconv.Atoi(os.Args[1])
		if err != nil || v < 16 {
			fmt.Println("Usage: go run cmd/keygen/main.go [bytes]")
			fmt.Println("Generates a random shared secret for clients of the gateway (at least 16 bytes)")
			os.Exit(1)
		}
		n = v
	}

	key, err := generateKey(n)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to generate key: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("API Key: %s\n", key)
	fmt.Println("\nAdd this to your environment:")
	fmt.Printf("  SERVICE_API_KEY=%s\n", key)
	fmt.Println("\nor to config.yaml:")
	fmt.Printf("  server:\n")
	fmt.Printf("    api_key: \"%s\"\n", key)
}

func generateKey(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return "sk-" + base64.RawURLEncoding.EncodeToString(b), nil
}
