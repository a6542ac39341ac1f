package main

import (
	"fmt"
	"log"
	"net/http"
	"os"

	"sustainflow-service/internal/infrastructure/oauth"
	"sustainflow-service/pkg/logger"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
)

const callbackAddr = "localhost:8090"

// Obtains the GMAIL_REFRESH_TOKEN used to send notification mail
func main() {
	godotenv.Load()

	gmailOAuth, err := oauth.NewGmailOAuth(oauth.Credentials{
		ClientID:     os.Getenv("GMAIL_CLIENT_ID"),
		ClientSecret: os.Getenv("GMAIL_CLIENT_SECRET"),
		RedirectURL:  "http://" + callbackAddr + "/oauth2callback",
	}, logger.NewLogger("info"))
	if err != nil {
		log.Fatal(err)
	}

	state := uuid.NewString()

	http.HandleFunc("/oauth2callback", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("state") != state {
			http.Error(w, "Invalid state parameter", http.StatusBadRequest)
			return
		}

		refreshToken, err := gmailOAuth.ExchangeCode(r.Context(), r.URL.Query().Get("code"))
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}

		fmt.Printf("\nAdd this line to .env:\nGMAIL_REFRESH_TOKEN=%s\n\n", refreshToken)
		fmt.Fprintf(w, "Authentication successful! You can close this window.")
		os.Exit(0)
	})

	fmt.Printf("Open this URL in your browser:\n%s\n", gmailOAuth.AuthURL(state))

	log.Fatal(http.ListenAndServe(callbackAddr, nil))
}
