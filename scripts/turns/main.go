// Command turns prints the audit trail of one conversation using a freshly
// minted admin token.
//
//	ADMIN_JWT_SECRET=... go run ./scripts/turns <salon_id> <customer_handle> [limit]
package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/golang-jwt/jwt/v5"

	httpmiddleware "github.com/wolfman30/salon-concierge/internal/http/middleware"
)

func main() {
	if len(os.Args) < 3 {
		fmt.Println("Usage: go run ./scripts/turns <salon_id> <customer_handle> [limit]")
		fmt.Println("Example: go run ./scripts/turns studio-one +15551234567 20")
		os.Exit(1)
	}

	salonID := os.Args[1]
	customer := os.Args[2]
	limit := "50"
	if len(os.Args) > 3 {
		limit = os.Args[3]
	}

	secret := os.Getenv("ADMIN_JWT_SECRET")
	if secret == "" {
		fmt.Println("Error: ADMIN_JWT_SECRET environment variable not set")
		os.Exit(1)
	}

	apiURL := os.Getenv("API_URL")
	if apiURL == "" {
		apiURL = "http://localhost:8080"
	}

	claims := jwt.RegisteredClaims{
		Subject:   "operator",
		Audience:  jwt.ClaimStrings{httpmiddleware.AdminAudience},
		IssuedAt:  jwt.NewNumericDate(time.Now()),
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(15 * time.Minute)),
	}
	tokenString, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		fmt.Printf("Error signing token: %v\n", err)
		os.Exit(1)
	}

	endpoint := fmt.Sprintf("%s/admin/salons/%s/conversations/%s/turns?limit=%s",
		apiURL, url.PathEscape(salonID), url.PathEscape(customer), url.QueryEscape(limit))

	req, err := http.NewRequest(http.MethodGet, endpoint, nil)
	if err != nil {
		fmt.Printf("Error creating request: %v\n", err)
		os.Exit(1)
	}
	req.Header.Set("Authorization", "Bearer "+tokenString)

	client := &http.Client{Timeout: 30 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		fmt.Printf("Error making request: %v\n", err)
		os.Exit(1)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		fmt.Printf("Error: HTTP %d\n", resp.StatusCode)
		fmt.Printf("Response: %s\n", string(body))
		os.Exit(1)
	}

	var result map[string]interface{}
	if err := json.Unmarshal(body, &result); err != nil {
		fmt.Printf("Response: %s\n", string(body))
		return
	}
	prettyJSON, _ := json.MarshalIndent(result, "", "  ")
	fmt.Println(string(prettyJSON))
}
