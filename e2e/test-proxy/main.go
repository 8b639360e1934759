package main

import (
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"strings"
)

func main() {
	if len(os.Args) < 2 {
		log.Fatalf("Usage: %s <identity-token> [server-addr] [request-body]", os.Args[0])
	}

	identityToken := os.Args[1]
	serverAddr := "http://localhost:8123"
	if len(os.Args) > 2 {
		serverAddr = "http://localhost" + os.Args[2]
	}

	body := `{"resource":"health"}`
	if len(os.Args) > 3 {
		body = os.Args[3]
	}

	req, err := http.NewRequest("POST", serverAddr+"/v1/proxy", strings.NewReader(body))
	if err != nil {
		log.Fatalf("Failed to create request: %v", err)
	}

	req.Header.Set("X-Identity-Token", identityToken)
	req.Header.Set("Content-Type", "application/json")

	client := &http.Client{}
	resp, err := client.Do(req)
	if err != nil {
		log.Fatalf("Request failed: %v", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		log.Fatalf("Failed to read response: %v", err)
	}

	if resp.StatusCode == http.StatusOK {
		fmt.Println("✅ Operation ALLOWED")
		fmt.Printf("\nResponse:\n%s\n", string(respBody))
	} else {
		fmt.Printf("❌ Operation DENIED\n")
		fmt.Printf("Status: %d\n", resp.StatusCode)
		fmt.Printf("Body: %s\n", string(respBody))
	}
}
