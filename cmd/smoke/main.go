// Command smoke drives a running assetblock-api through the full asset
// lifecycle: register two accounts, upload a file, transfer it, then
// verify ownership and the transfer ledger.
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"math/rand"
	"mime/multipart"
	"net/http"
	"os"
	"time"
)

func main() {
	base := os.Getenv("ASSETBLOCK_API_URL")
	if base == "" {
		base = "http://localhost:8080"
	}
	client := &http.Client{Timeout: 10 * time.Second}
	run := rand.New(rand.NewSource(time.Now().UnixNano())).Int63()

	aliceUID := fmt.Sprintf("smoke-alice-%d", run)
	aliceEmail := fmt.Sprintf("alice-%d@smoke.test", run)
	bobUID := fmt.Sprintf("smoke-bob-%d", run)
	bobEmail := fmt.Sprintf("bob-%d@smoke.test", run)

	mustPost(client, base+"/v1/accounts", map[string]any{
		"uid": aliceUID, "email": aliceEmail,
	}, http.StatusOK)
	mustPost(client, base+"/v1/accounts", map[string]any{
		"uid": bobUID, "email": bobEmail,
	}, http.StatusOK)

	content := []byte(fmt.Sprintf("smoke payload %d", run))
	asset := uploadFile(client, base, aliceUID, aliceEmail, "smoke.txt", content)
	assetID := int64(asset["id"].(float64))

	// Same bytes again must be rejected as a duplicate.
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, _ := mw.CreateFormFile("file", "smoke-copy.txt")
	_, _ = part.Write(content)
	_ = mw.WriteField("owner_uid", bobUID)
	_ = mw.WriteField("owner_email", bobEmail)
	_ = mw.Close()
	resp, err := client.Post(base+"/v1/assets", mw.FormDataContentType(), &buf)
	if err != nil {
		log.Fatalf("duplicate upload: %v", err)
	}
	drain(resp)
	if resp.StatusCode != http.StatusConflict {
		log.Fatalf("duplicate upload: status = %d, want 409", resp.StatusCode)
	}

	mustPost(client, base+"/v1/transfers", map[string]any{
		"asset_id": assetID,
		"from_uid": aliceUID,
		"to_email": bobEmail,
		"note":     "smoke transfer",
	}, http.StatusOK)

	after := getJSON(client, fmt.Sprintf("%s/v1/assets/%d", base, assetID))
	if got := after["owner_uid"]; got != bobUID {
		log.Fatalf("owner after transfer = %v, want %s", got, bobUID)
	}

	history := getJSON(client, fmt.Sprintf("%s/v1/assets/%d/history", base, assetID))
	if total := int(history["total"].(float64)); total != 1 {
		log.Fatalf("transfer history length = %d, want 1", total)
	}

	fmt.Printf("✅ assetblock smoke test passed: asset=%d %s -> %s\n", assetID, aliceEmail, bobEmail)
}

func uploadFile(client *http.Client, base, uid, email, name string, content []byte) map[string]any {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", name)
	if err != nil {
		log.Fatalf("multipart: %v", err)
	}
	if _, err := part.Write(content); err != nil {
		log.Fatalf("multipart: %v", err)
	}
	_ = mw.WriteField("owner_uid", uid)
	_ = mw.WriteField("owner_email", email)
	_ = mw.WriteField("description", "smoke test upload")
	if err := mw.Close(); err != nil {
		log.Fatalf("multipart: %v", err)
	}
	resp, err := client.Post(base+"/v1/assets", mw.FormDataContentType(), &buf)
	if err != nil {
		log.Fatalf("upload: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		body, _ := io.ReadAll(resp.Body)
		log.Fatalf("upload: status = %d, body = %s", resp.StatusCode, body)
	}
	var out map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		log.Fatalf("upload decode: %v", err)
	}
	return out
}

func mustPost(client *http.Client, url string, payload map[string]any, want int) {
	body, _ := json.Marshal(payload)
	resp, err := client.Post(url, "application/json", bytes.NewReader(body))
	if err != nil {
		log.Fatalf("POST %s: %v", url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != want {
		out, _ := io.ReadAll(resp.Body)
		log.Fatalf("POST %s: status = %d, want %d, body = %s", url, resp.StatusCode, want, out)
	}
	_, _ = io.Copy(io.Discard, resp.Body)
}

func getJSON(client *http.Client, url string) map[string]any {
	resp, err := client.Get(url)
	if err != nil {
		log.Fatalf("GET %s: %v", url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		out, _ := io.ReadAll(resp.Body)
		log.Fatalf("GET %s: status = %d, body = %s", url, resp.StatusCode, out)
	}
	var out map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		log.Fatalf("GET %s decode: %v", url, err)
	}
	return out
}

func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()
}
