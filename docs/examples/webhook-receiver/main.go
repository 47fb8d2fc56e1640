// Keydesk Webhook Receiver Example
//
// A minimal receiver for key lifecycle notifications.
//
// Usage:
//   export KEYDESK_WEBHOOK_SECRET="the value of WEBHOOK_SECRET"
//   go run main.go
//
// Then start keydesk with WEBHOOK_URL=http://localhost:9000/webhook and
// WEBHOOK_ALLOW_INSECURE=true.

package main

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"os"
	"strconv"
	"sync"
	"time"
)

const replayWindow = 5 * time.Minute

// KeyEvent is the notification payload.
type KeyEvent struct {
	ID           string    `json:"id"`
	Type         string    `json:"type"`
	SpaceID      string    `json:"space_id"`
	KeyID        string    `json:"key_id"`
	KeyName      string    `json:"key_name"`
	MaskedPrefix string    `json:"masked_prefix"`
	Status       string    `json:"status"`
	ActorID      string    `json:"actor_id"`
	ActorName    string    `json:"actor_name"`
	OccurredAt   time.Time `json:"occurred_at"`
}

func main() {
	secret := os.Getenv("KEYDESK_WEBHOOK_SECRET")
	if secret == "" {
		log.Fatal("KEYDESK_WEBHOOK_SECRET environment variable is required")
	}

	http.HandleFunc("/webhook", webhookHandler(secret))
	http.HandleFunc("/health", healthHandler)

	log.Println("Starting webhook receiver on :9000")
	log.Fatal(http.ListenAndServe(":9000", nil))
}

func webhookHandler(secret string) http.HandlerFunc {
	// Deliveries are at-least-once; the delivery id deduplicates retries.
	var (
		mu   sync.Mutex
		seen = map[string]bool{}
	)

	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}

		body, err := io.ReadAll(io.LimitReader(r.Body, 64<<10))
		if err != nil {
			http.Error(w, "Bad request", http.StatusBadRequest)
			return
		}
		defer r.Body.Close()

		if !verifySignature(r.Header, body, secret) {
			log.Println("rejected delivery with invalid signature")
			http.Error(w, "Invalid signature", http.StatusUnauthorized)
			return
		}

		deliveryID := r.Header.Get("X-Keydesk-Delivery-Id")
		mu.Lock()
		duplicate := seen[deliveryID]
		seen[deliveryID] = true
		mu.Unlock()
		if duplicate {
			w.WriteHeader(http.StatusOK)
			return
		}

		var event KeyEvent
		if err := json.Unmarshal(body, &event); err != nil {
			http.Error(w, "Invalid JSON", http.StatusBadRequest)
			return
		}

		log.Printf("%s: key %s (%s, %s) in space %s by %s",
			event.Type, event.KeyName, event.MaskedPrefix, event.Status, event.SpaceID, event.ActorName)

		w.WriteHeader(http.StatusNoContent)
	}
}

// verifySignature checks X-Keydesk-Signature, the hex HMAC-SHA256 of
// "{X-Keydesk-Timestamp}.{body}", and rejects stale timestamps.
func verifySignature(h http.Header, body []byte, secret string) bool {
	ts, err := strconv.ParseInt(h.Get("X-Keydesk-Timestamp"), 10, 64)
	if err != nil {
		return false
	}
	if age := time.Since(time.Unix(ts, 0)); age > replayWindow || age < -replayWindow {
		return false
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(strconv.FormatInt(ts, 10) + "."))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))

	return hmac.Equal([]byte(h.Get("X-Keydesk-Signature")), []byte(expected))
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}
