// Seeds the API keys the gateway authenticator resolves at its redis
// level. Pairs are key=owner, from -keys or the SEED_API_KEYS env var:
//
//	go run ./scripts/seed_redis -keys "dashboard_key=dashboard,ci_key=ci"
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
)

const keyPrefix = "gateway:auth:"

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file — using system environment variables")
	}

	keysFlag := flag.String("keys", "",
		"comma-separated key=owner pairs (falls back to SEED_API_KEYS, then dev defaults)")
	flag.Parse()

	pairs := *keysFlag
	if pairs == "" {
		pairs = os.Getenv("SEED_API_KEYS")
	}
	if pairs == "" {
		// development defaults; production runs pass real keys
		pairs = "dashboard_key=dashboard,mobile_key=mobile_app,test_key=test_client"
	}

	keys, err := parsePairs(pairs)
	if err != nil {
		log.Fatalf("Bad -keys value: %v", err)
	}

	client := redis.NewClient(&redis.Options{
		Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
		Password: getEnv("REDIS_PASSWORD", ""),
		DB:       0,
	})
	defer client.Close()

	ctx := context.Background()

	fmt.Println("Connecting to Redis...")
	if err := client.Ping(ctx).Err(); err != nil {
		log.Fatalf("Connection failed: %v\n\nMake sure Redis is running:\n  docker-compose up -d redis", err)
	}
	fmt.Println("✓ Connected")

	// TTL 0 keeps seeded keys until they are explicitly removed
	for key, owner := range keys {
		if err := client.Set(ctx, keyPrefix+key, owner, 0).Err(); err != nil {
			log.Fatalf("Failed to set key %s: %v", key, err)
		}
		fmt.Printf("  ✓ %s%s → %s\n", keyPrefix, key, owner)
	}

	total, err := client.Keys(ctx, keyPrefix+"*").Result()
	if err != nil {
		log.Fatalf("Verification failed: %v", err)
	}
	fmt.Printf("\n✅ %d API keys now in Redis\n", len(total))
	fmt.Println("   Run next: go run ./cmd/gateway serve")
}

// parsePairs splits "k1=o1,k2=o2" into a map, rejecting empty keys or
// owners so a typo never seeds an unusable credential.
func parsePairs(s string) (map[string]string, error) {
	out := make(map[string]string)
	for _, pair := range strings.Split(s, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		key, owner, ok := strings.Cut(pair, "=")
		if !ok || key == "" || owner == "" {
			return nil, fmt.Errorf("expected key=owner, got %q", pair)
		}
		out[key] = owner
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("no key=owner pairs in %q", s)
	}
	return out, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
