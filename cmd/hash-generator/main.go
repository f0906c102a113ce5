// Command hash-generator prints the bcrypt hash of a client API key, suitable
// for BANANA_AUTH_API_KEY_HASH.
//
// Usage:
//
//	hash-generator -key <api-key>
//	echo -n <api-key> | hash-generator
package main

import (
	"bufio"
	"flag"
	"fmt"
	"os"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

func main() {
	key := flag.String("key", "", "API key to hash; read from stdin when empty")
	cost := flag.Int("cost", bcrypt.DefaultCost, "bcrypt cost")
	flag.Parse()

	value := *key
	if value == "" {
		line, err := bufio.NewReader(os.Stdin).ReadString('\n')
		if err != nil && line == "" {
			fmt.Fprintln(os.Stderr, "no API key given")
			os.Exit(2)
		}
		value = strings.TrimRight(line, "\r\n")
	}

	hash, err := hashKey(value, *cost)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error generating hash: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(hash)
}

func hashKey(key string, cost int) (string, error) {
	if key == "" {
		return "", fmt.Errorf("API key cannot be empty")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(key), cost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}
