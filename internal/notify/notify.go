// Package notify implements the outbox delivery channels.
package notify

import (
	"context"
	"fmt"
	"io"
	"net/http"
)

const maxErrorBody = 512

// checkResponse drains resp and turns a non-2xx status into an error.
func checkResponse(resp *http.Response) error {
	defer resp.Body.Close()
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(body))
	}
	return nil
}

func post(ctx context.Context, client HTTPDoer, req *http.Request) error {
	resp, err := client.Do(ctx, req)
	if err != nil {
		return err
	}
	return checkResponse(resp)
}
